package handlers_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// startTestSSHServer runs a minimal SSH server that accepts one password and
// serves an echo shell. Returns the listen address.
func startTestSSHServer(t *testing.T, user, password string) string {
	return startSSHServerShell(t, user, password, echoShell)
}

// startClosingSSHServer serves a shell that writes payload, reports a zero
// exit status, and closes the channel from the server side.
func startClosingSSHServer(t *testing.T, user, password string, payload []byte) string {
	return startSSHServerShell(t, user, password, func(ch ssh.Channel) {
		defer ch.Close()
		ch.Write(payload)
		ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
	})
}

func startSSHServerShell(t *testing.T, user, password string, shell func(ssh.Channel)) string {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host key signer: %v", err)
	}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if conn.User() == user && string(pass) == password {
				return nil, nil
			}
			return nil, errors.New("authentication failed")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSHConn(conn, cfg, shell)
		}
	}()

	return ln.Addr().String()
}

func serveSSHConn(conn net.Conn, cfg *ssh.ServerConfig, shell func(ssh.Channel)) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, chReqs, err := newChan.Accept()
		if err != nil {
			continue
		}

		// The shell behavior only starts once the client's shell request
		// has been acknowledged, so a fast server-side close cannot race
		// the channel setup.
		started := make(chan struct{})
		go func(in <-chan *ssh.Request) {
			var once sync.Once
			for req := range in {
				switch req.Type {
				case "pty-req", "shell", "window-change", "env":
					if req.WantReply {
						req.Reply(true, nil)
					}
					if req.Type == "shell" {
						once.Do(func() { close(started) })
					}
				default:
					if req.WantReply {
						req.Reply(false, nil)
					}
				}
			}
		}(chReqs)

		go func(ch ssh.Channel) {
			<-started
			shell(ch)
		}(ch)
	}
}

func echoShell(ch ssh.Channel) {
	defer ch.Close()
	ch.Write([]byte("welcome\r\n"))
	buf := make([]byte, 1024)
	for {
		n, err := ch.Read(buf)
		if n > 0 {
			ch.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}
