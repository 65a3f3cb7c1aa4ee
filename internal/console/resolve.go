package console

import (
	"context"
	"errors"
	"fmt"

	"github.com/sshconsole/sshconsole/internal/models"
	"golang.org/x/crypto/ssh"
)

// Store is the persistence surface the gateway consumes. The concrete
// implementation lives in internal/store.
type Store interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ActivateSession(ctx context.Context, id, socketID string) error
	ReleaseSession(ctx context.Context, id, socketID string) error
	GetServer(ctx context.Context, id string) (*models.Server, error)
	GetCredential(ctx context.Context, id string) (*models.Credential, error)
}

// AuthMethod is the closed set of SSH authentication materials a credential
// can resolve to. Adding a credential type means adding an implementation
// here and a case in credentialAuth.
type AuthMethod interface {
	sshAuth() ([]ssh.AuthMethod, error)
}

type PasswordAuth struct {
	Password string
}

func (a PasswordAuth) sshAuth() ([]ssh.AuthMethod, error) {
	return []ssh.AuthMethod{ssh.Password(a.Password)}, nil
}

type PrivateKeyAuth struct {
	PEM string
}

func (a PrivateKeyAuth) sshAuth() ([]ssh.AuthMethod, error) {
	signer, err := ssh.ParsePrivateKey([]byte(a.PEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

type PassphraseKeyAuth struct {
	PEM        string
	Passphrase string
}

func (a PassphraseKeyAuth) sshAuth() ([]ssh.AuthMethod, error) {
	signer, err := ssh.ParsePrivateKeyWithPassphrase([]byte(a.PEM), []byte(a.Passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

// ConnectConfig carries everything needed to establish one SSH connection.
type ConnectConfig struct {
	Host     string
	Port     int
	Username string
	Auth     AuthMethod // nil means try "none" authentication
}

func (c *ConnectConfig) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func credentialAuth(cred *models.Credential) (AuthMethod, error) {
	switch cred.Type {
	case models.CredentialTypePassword:
		return PasswordAuth{Password: cred.Password}, nil
	case models.CredentialTypePrivateKey:
		return PrivateKeyAuth{PEM: cred.PrivateKey}, nil
	case models.CredentialTypePrivateKeyWithPassphrase:
		return PassphraseKeyAuth{PEM: cred.PrivateKey, Passphrase: cred.Passphrase}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCredentialType, cred.Type)
	}
}

// resolveSessionConfig builds connection parameters from a persisted
// session: session -> server -> credential. Ended sessions are rejected.
func resolveSessionConfig(ctx context.Context, st Store, sessionID string) (*ConnectConfig, *models.Server, error) {
	session, err := st.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, ErrSessionNotFound
	}
	if session.Status == models.SessionStatusEnded {
		return nil, nil, ErrSessionEnded
	}

	server, err := st.GetServer(ctx, session.ServerID.String())
	if err != nil {
		return nil, nil, err
	}
	if server == nil {
		return nil, nil, ErrServerNotFound
	}

	cred, err := st.GetCredential(ctx, server.CredentialID.String())
	if err != nil {
		return nil, nil, err
	}
	if cred == nil {
		return nil, nil, ErrCredentialNotFound
	}

	auth, err := credentialAuth(cred)
	if err != nil {
		return nil, nil, err
	}

	return &ConnectConfig{
		Host:     server.Host,
		Port:     server.Port,
		Username: server.User,
		Auth:     auth,
	}, server, nil
}

// directConfig builds connection parameters from inline connect fields,
// bypassing persistence entirely.
func directConfig(msg *clientMessage) (*ConnectConfig, error) {
	if msg.Host == "" || msg.Port <= 0 || msg.Username == "" {
		return nil, errors.New("connect requires host, port and username")
	}

	cfg := &ConnectConfig{
		Host:     msg.Host,
		Port:     msg.Port,
		Username: msg.Username,
	}
	switch {
	case msg.PrivateKey != "" && msg.Passphrase != "":
		cfg.Auth = PassphraseKeyAuth{PEM: msg.PrivateKey, Passphrase: msg.Passphrase}
	case msg.PrivateKey != "":
		cfg.Auth = PrivateKeyAuth{PEM: msg.PrivateKey}
	case msg.Password != "":
		cfg.Auth = PasswordAuth{Password: msg.Password}
	}
	return cfg, nil
}
