// Package keygen generates SSH key pairs and random passwords for stored
// credentials. Pure helpers, no state.
package keygen

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

type KeyPair struct {
	PublicKey    string `json:"public_key"`     // OpenSSH authorized_keys line
	PrivateKey   string `json:"private_key"`    // PEM
	PublicKeyPEM string `json:"public_key_pem"` // PEM (SPKI)
}

// GenerateKeyPair builds an SSH key pair of the given type ("ed25519" or
// "rsa"). The private key PEM is directly usable by SSH clients
// (PKCS#1 for RSA, PKCS#8 for Ed25519).
func GenerateKeyPair(keyType string) (*KeyPair, error) {
	switch keyType {
	case "ed25519":
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		der, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return nil, err
		}
		return assemble(pub, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	case "rsa":
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, err
		}
		der := x509.MarshalPKCS1PrivateKey(priv)
		return assemble(&priv.PublicKey, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}))
	default:
		return nil, fmt.Errorf("unsupported key type %q", keyType)
	}
}

func assemble(pub interface{}, privPEM []byte) (*KeyPair, error) {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, err
	}
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		PublicKey:    strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))),
		PrivateKey:   string(privPEM),
		PublicKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: spki})),
	}, nil
}

// GeneratePassword returns a random password shaped xxxx-xxxx-xxxx-xxxx.
func GeneratePassword() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	hexStr := hex.EncodeToString(buf)
	parts := make([]string, 4)
	for i := range parts {
		parts[i] = hexStr[i*4 : i*4+4]
	}
	return strings.Join(parts, "-")
}
