package console

import (
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	termType = "xterm-256color"

	// Covers TCP dial plus the SSH handshake so a hung target cannot pin
	// a connection session indefinitely.
	connectTimeout = 10 * time.Second

	defaultCols = 80
	defaultRows = 24

	// Bounded buffer so a slow browser cannot pile up unbounded output.
	eventBuffer = 64

	readBufSize = 4096
)

// EventKind tags bridge output. Exactly one of EventEnded or EventError is
// emitted per bridge, after which no further events follow.
type EventKind int

const (
	EventData EventKind = iota
	EventEnded
	EventError
)

type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

// Bridge owns one outbound SSH connection and, once OpenShell succeeds, one
// interactive shell channel with an allocated pseudo-terminal. A bridge is
// exclusively owned by a single ConnSession; it is never shared.
type Bridge struct {
	client *ssh.Client
	events chan Event
	done   chan struct{}

	mu      sync.Mutex
	session *ssh.Session
	stdin   io.WriteCloser

	pumps     sync.WaitGroup
	closeOnce sync.Once
	finalOnce sync.Once
}

// DialBridge establishes the SSH transport and authenticates. A non-nil
// return means the connection is authenticated and ready for OpenShell.
// There is no retry; retry policy belongs to the caller.
func DialBridge(cfg *ConnectConfig) (*Bridge, error) {
	var methods []ssh.AuthMethod
	if cfg.Auth != nil {
		var err error
		methods, err = cfg.Auth.sshAuth()
		if err != nil {
			return nil, err
		}
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}

	client, err := ssh.Dial("tcp", cfg.addr(), clientCfg)
	if err != nil {
		return nil, err
	}

	return &Bridge{
		client: client,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}, nil
}

// OpenShell requests a PTY and starts the interactive shell. Output from
// both the primary and extended streams flows onto Events undifferentiated.
func (b *Bridge) OpenShell(cols, rows int) error {
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}

	session, err := b.client.NewSession()
	if err != nil {
		return err
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(termType, rows, cols, modes); err != nil {
		session.Close()
		return err
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return err
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return err
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return err
	}

	b.mu.Lock()
	b.session = session
	b.stdin = stdin
	b.mu.Unlock()

	b.pumps.Add(2)
	go b.pump(stdout)
	go b.pump(stderr)
	go b.wait(session)

	return nil
}

// Events streams terminal output and the single terminal lifecycle event.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// Write sends raw bytes to the shell's input. A no-op before OpenShell.
func (b *Bridge) Write(p []byte) error {
	b.mu.Lock()
	stdin := b.stdin
	b.mu.Unlock()
	if stdin == nil {
		return nil
	}
	_, err := stdin.Write(p)
	return err
}

// Resize forwards a terminal window-size change. A no-op before OpenShell.
func (b *Bridge) Resize(cols, rows int) error {
	b.mu.Lock()
	session := b.session
	b.mu.Unlock()
	if session == nil || cols <= 0 || rows <= 0 {
		return nil
	}
	return session.WindowChange(rows, cols)
}

// Close tears down the channel and the underlying connection. Idempotent.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.mu.Lock()
		session := b.session
		b.mu.Unlock()
		if session != nil {
			session.Close()
		}
		b.client.Close()
	})
	return nil
}

func (b *Bridge) pump(r io.Reader) {
	defer b.pumps.Done()
	buf := make([]byte, readBufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !b.emit(Event{Kind: EventData, Data: data}) {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (b *Bridge) wait(session *ssh.Session) {
	err := session.Wait()
	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	// A shell exit status, even non-zero, is a clean remote close.
	if err != nil && !errors.As(err, &exitErr) && !errors.As(err, &missingErr) {
		b.finish(err)
		return
	}
	// Wait can return before the output pipes are drained; the ended
	// event must trail every buffered data chunk.
	b.pumps.Wait()
	b.finish(nil)
}

// finish emits the single terminal event, first-caller-wins.
func (b *Bridge) finish(err error) {
	b.finalOnce.Do(func() {
		ev := Event{Kind: EventEnded}
		if err != nil {
			ev = Event{Kind: EventError, Err: err}
		}
		select {
		case b.events <- ev:
		case <-b.done:
		}
	})
}

// emit delivers an event unless the bridge has been closed.
func (b *Bridge) emit(ev Event) bool {
	select {
	case b.events <- ev:
		return true
	case <-b.done:
		return false
	}
}
