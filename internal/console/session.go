package console

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sshconsole/sshconsole/internal/models"
)

// Connection session states. idle -> awaiting-ssh -> bridging -> closed.
type state int

const (
	stateIdle state = iota
	stateAwaitingSSH
	stateBridging
	stateClosed
)

const storeTimeout = 5 * time.Second

// Transport is the capability a ConnSession needs from its websocket. Both
// the fiber contrib conn and a gorilla conn satisfy it, so there is one
// session abstraction rather than one per transport binding.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ConnSession is the per-transport-connection state machine. It exclusively
// owns at most one Bridge and drives the persisted session's lifecycle. It is
// created by the websocket handler and destroyed when the transport closes.
type ConnSession struct {
	SocketID  string
	SessionID string // empty in direct mode
	UserID    string // advisory, for auditing

	// OnConnected fires when the shell channel opens for a session-bound
	// connection (server is nil in direct mode).
	OnConnected func(server *models.Server)

	ws    Transport
	store Store
	log   *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	state  state
	bridge *Bridge
	server *models.Server

	teardownOnce sync.Once
	done         chan struct{}
}

func NewConnSession(ws Transport, st Store, sessionID, userID string, log *slog.Logger) *ConnSession {
	if log == nil {
		log = slog.Default()
	}
	return &ConnSession{
		SocketID:  uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		ws:        ws,
		store:     st,
		log:       log,
		state:     stateIdle,
		done:      make(chan struct{}),
	}
}

// Run processes inbound frames until the transport closes, then tears down.
// It blocks for the lifetime of the connection.
func (s *ConnSession) Run() {
	defer s.teardown("transport closed")

	for {
		mt, frame, err := s.ws.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(mt, frame)
	}
}

func (s *ConnSession) handleFrame(mt int, frame []byte) {
	// Raw frames are always terminal input; only JSON objects are control.
	if mt == BinaryMessage || !looksLikeControl(frame) {
		s.writeInput(frame)
		return
	}

	var msg clientMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		s.sendJSON(serverMessage{Type: "error", Error: "Invalid JSON payload"})
		return
	}

	switch msg.Type {
	case msgConnect:
		s.handleConnect(&msg)
	case msgInput:
		s.writeInput([]byte(msg.Data))
	case msgResize:
		s.resize(msg.Cols, msg.Rows)
	case msgDisconnect:
		s.teardown("client disconnect")
	case msgPing:
		s.sendJSON(serverMessage{Type: "pong"})
	default:
		s.sendJSON(serverMessage{Type: "error", Error: "Unknown message type"})
	}
}

func (s *ConnSession) handleConnect(msg *clientMessage) {
	if !s.transition(stateIdle, stateAwaitingSSH) {
		s.sendJSON(serverMessage{Type: "error", Error: "Connection already in progress"})
		return
	}

	var (
		cfg    *ConnectConfig
		server *models.Server
		err    error
	)
	if s.SessionID != "" && s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		cfg, server, err = resolveSessionConfig(ctx, s.store, s.SessionID)
		cancel()
	} else {
		cfg, err = directConfig(msg)
	}
	if err != nil {
		s.sendJSON(serverMessage{Type: "ssh-error", Error: err.Error()})
		s.teardown("connect resolution failed")
		return
	}

	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	// Dial off the read loop so a disconnect can still be processed while
	// the handshake is in flight.
	go s.establish(cfg, msg.Cols, msg.Rows)
}

// establish runs the SSH side of a connect: handshake, shell channel,
// session activation, then event relaying.
func (s *ConnSession) establish(cfg *ConnectConfig, cols, rows int) {
	bridge, err := DialBridge(cfg)
	if err != nil {
		s.sendJSON(serverMessage{Type: "ssh-error", Error: err.Error()})
		s.teardown("ssh connect failed")
		return
	}

	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		bridge.Close()
		return
	}
	s.bridge = bridge
	s.mu.Unlock()

	s.sendJSON(serverMessage{Type: "ssh-status", Status: statusConnected, SessionID: s.SessionID})

	if err := bridge.OpenShell(cols, rows); err != nil {
		s.sendJSON(serverMessage{Type: "ssh-error", Error: err.Error()})
		s.teardown("shell channel failed")
		return
	}

	if s.SessionID != "" && s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := s.store.ActivateSession(ctx, s.SessionID, s.SocketID)
		cancel()
		if err != nil {
			s.log.Warn("Failed to activate session", "session_id", s.SessionID, "error", err)
		}
	}

	if !s.transition(stateAwaitingSSH, stateBridging) {
		// Torn down while the shell was being set up.
		bridge.Close()
		return
	}

	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if s.OnConnected != nil {
		s.OnConnected(server)
	}

	s.log.Info("Console session bridging",
		"socket_id", s.SocketID, "session_id", s.SessionID, "host", cfg.Host, "user", cfg.Username)

	go s.pumpEvents(bridge)
}

// pumpEvents relays bridge output to the transport until the single
// terminal event arrives or the session is torn down.
func (s *ConnSession) pumpEvents(bridge *Bridge) {
	for {
		select {
		case ev := <-bridge.Events():
			switch ev.Kind {
			case EventData:
				s.send(TextMessage, ev.Data)
			case EventEnded:
				s.teardown("remote closed")
				return
			case EventError:
				s.sendJSON(serverMessage{Type: "ssh-error", Error: ev.Err.Error()})
				s.teardown("ssh connection error")
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *ConnSession) writeInput(p []byte) {
	s.mu.Lock()
	bridge := s.bridge
	s.mu.Unlock()
	if bridge == nil {
		// Typing before the channel exists is expected client timing,
		// not a protocol violation.
		return
	}
	if err := bridge.Write(p); err != nil {
		s.log.Debug("Shell write failed", "socket_id", s.SocketID, "error", err)
	}
}

func (s *ConnSession) resize(cols, rows int) {
	s.mu.Lock()
	bridge := s.bridge
	s.mu.Unlock()
	if bridge == nil {
		return
	}
	if err := bridge.Resize(cols, rows); err != nil {
		s.log.Debug("Window change failed", "socket_id", s.SocketID, "error", err)
	}
}

// teardown is the single-fire cleanup latch. Whichever trigger fires first
// (remote close, SSH error, client disconnect, transport close) releases the
// bridge, finalizes the persisted session, and emits the final status frame
// exactly once. A storage failure never blocks resource release.
func (s *ConnSession) teardown(reason string) {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.state = stateClosed
		bridge := s.bridge
		s.mu.Unlock()

		close(s.done)

		if bridge != nil {
			bridge.Close()
		}

		if s.SessionID != "" && s.store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			err := s.store.ReleaseSession(ctx, s.SessionID, s.SocketID)
			cancel()
			if err != nil {
				s.log.Error("Failed to finalize session", "session_id", s.SessionID, "error", err)
			}
		}

		// Best effort: the transport may already be gone.
		s.sendJSON(serverMessage{Type: "ssh-status", Status: statusDisconnected, SessionID: s.SessionID})
		s.ws.Close()

		s.log.Info("Console session closed",
			"socket_id", s.SocketID, "session_id", s.SessionID, "reason", reason)
	})
}

func (s *ConnSession) transition(from, to state) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *ConnSession) sendJSON(msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.send(TextMessage, data)
}

func (s *ConnSession) send(mt int, data []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.ws.WriteMessage(mt, data); err != nil {
		s.log.Debug("Transport write failed", "socket_id", s.SocketID, "error", err)
	}
}
