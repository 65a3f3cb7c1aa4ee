package handlers_test

import (
	"bytes"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sshconsole/sshconsole/internal/models"
)

type wsFrame struct {
	Type      string `json:"type"`
	Status    string `json:"status,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

func dialConsole(t *testing.T, addr, query string) *websocket.Conn {
	t.Helper()
	url := "ws://" + addr + "/ws/ssh"
	if query != "" {
		url += "?" + query
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return data
}

// awaitControl reads frames, skipping raw terminal output, until a control
// frame of the wanted type arrives.
func awaitControl(t *testing.T, conn *websocket.Conn, wantType string) wsFrame {
	t.Helper()
	for i := 0; i < 50; i++ {
		data := readFrame(t, conn)
		var f wsFrame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			continue // terminal output
		}
		if f.Type == wantType {
			return f
		}
		t.Fatalf("got control frame %q (%s), want %q", f.Type, data, wantType)
	}
	t.Fatalf("no %q frame received", wantType)
	return wsFrame{}
}

// awaitOutput reads frames until raw terminal output containing sub arrives.
func awaitOutput(t *testing.T, conn *websocket.Conn, sub string) {
	t.Helper()
	var seen []string
	for i := 0; i < 50; i++ {
		data := readFrame(t, conn)
		var f wsFrame
		if err := json.Unmarshal(data, &f); err == nil && f.Type != "" {
			continue // control frame
		}
		seen = append(seen, string(data))
		if strings.Contains(strings.Join(seen, ""), sub) {
			return
		}
	}
	t.Fatalf("output %q never arrived, saw %q", sub, seen)
}

func splitSSHAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func seedConsoleSession(t *testing.T, env *testEnv, sshAddr, status string) *models.Session {
	t.Helper()
	host, port := splitSSHAddr(t, sshAddr)

	cred := models.Credential{Identifier: "test-pw", Type: models.CredentialTypePassword, User: "testuser", Password: "secret"}
	if err := env.db.Create(&cred).Error; err != nil {
		t.Fatalf("create credential: %v", err)
	}
	server := models.Server{Name: "sshd", Host: host, Port: port, CredentialID: cred.ID, User: "testuser"}
	if err := env.db.Create(&server).Error; err != nil {
		t.Fatalf("create server: %v", err)
	}
	sess := models.Session{ServerID: server.ID, Status: status}
	if err := env.db.Create(&sess).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	return &sess
}

func waitForSession(t *testing.T, env *testEnv, id string, cond func(*models.Session) bool) *models.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var sess models.Session
		if err := env.db.First(&sess, "id = ?", id).Error; err == nil && cond(&sess) {
			return &sess
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("session %s never reached expected state", id)
	return nil
}

func TestConsolePingPong(t *testing.T) {
	env := newTestEnv(t)
	conn := dialConsole(t, env.listen(t), "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	awaitControl(t, conn, "pong")
}

func TestConsoleDropBeforeReady(t *testing.T) {
	env := newTestEnv(t)
	conn := dialConsole(t, env.listen(t), "")

	// input and resize before any shell channel exist must be silently
	// dropped, not answered with an error.
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"input","data":"ls\r"}`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"resize","cols":120,"rows":40}`))
	conn.WriteMessage(websocket.TextMessage, []byte("raw keystrokes"))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))

	// The first frame back must be the pong: nothing errored before it.
	data := readFrame(t, conn)
	var f wsFrame
	if err := json.Unmarshal(data, &f); err != nil || f.Type != "pong" {
		t.Fatalf("first frame = %s, want pong", data)
	}
}

func TestConsoleUnknownTypeNonFatal(t *testing.T) {
	env := newTestEnv(t)
	conn := dialConsole(t, env.listen(t), "")

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`))
	f := awaitControl(t, conn, "error")
	if f.Error == "" {
		t.Fatal("error frame carries no message")
	}

	// The connection survives a bad frame.
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
	awaitControl(t, conn, "pong")
}

func TestConsoleMalformedJSON(t *testing.T) {
	env := newTestEnv(t)
	conn := dialConsole(t, env.listen(t), "")

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":`))
	f := awaitControl(t, conn, "error")
	if f.Error != "Invalid JSON payload" {
		t.Fatalf("error = %q", f.Error)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
	awaitControl(t, conn, "pong")
}

func TestConsoleDirectConnect(t *testing.T) {
	env := newTestEnv(t)
	sshAddr := startTestSSHServer(t, "testuser", "secret")
	host, port := splitSSHAddr(t, sshAddr)

	conn := dialConsole(t, env.listen(t), "")

	connect := map[string]interface{}{
		"type": "connect", "host": host, "port": port,
		"username": "testuser", "password": "secret",
	}
	payload, _ := json.Marshal(connect)
	conn.WriteMessage(websocket.TextMessage, payload)

	f := awaitControl(t, conn, "ssh-status")
	if f.Status != "connected" {
		t.Fatalf("status = %q, want connected", f.Status)
	}
	awaitOutput(t, conn, "welcome")

	// Raw text frames go straight to the shell; the echo server sends the
	// bytes back as terminal output.
	conn.WriteMessage(websocket.TextMessage, []byte("echo-me"))
	awaitOutput(t, conn, "echo-me")

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"resize","cols":132,"rows":43}`))

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"disconnect"}`))
	f = awaitControl(t, conn, "ssh-status")
	if f.Status != "disconnected" {
		t.Fatalf("status = %q, want disconnected", f.Status)
	}
}

func TestConsoleDirectConnectBadAuth(t *testing.T) {
	env := newTestEnv(t)
	sshAddr := startTestSSHServer(t, "testuser", "secret")
	host, port := splitSSHAddr(t, sshAddr)

	conn := dialConsole(t, env.listen(t), "")

	connect := map[string]interface{}{
		"type": "connect", "host": host, "port": port,
		"username": "testuser", "password": "wrong",
	}
	payload, _ := json.Marshal(connect)
	conn.WriteMessage(websocket.TextMessage, payload)

	if f := awaitControl(t, conn, "ssh-error"); f.Error == "" {
		t.Fatal("ssh-error frame carries no message")
	}
}

func TestConsoleSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	sshAddr := startTestSSHServer(t, "testuser", "secret")
	sess := seedConsoleSession(t, env, sshAddr, models.SessionStatusPending)

	conn := dialConsole(t, env.listen(t), "session_id="+sess.ID.String())
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connect"}`))

	f := awaitControl(t, conn, "ssh-status")
	if f.Status != "connected" {
		t.Fatalf("status = %q, want connected", f.Status)
	}
	if f.SessionID != sess.ID.String() {
		t.Fatalf("sessionId = %q, want %q", f.SessionID, sess.ID)
	}

	active := waitForSession(t, env, sess.ID.String(), func(s *models.Session) bool {
		return s.Status == models.SessionStatusActive
	})
	if active.StartedAt == nil {
		t.Fatal("started_at not set on activation")
	}
	if active.SocketID == "" {
		t.Fatal("socket_id not bound on activation")
	}

	// Transport close must deterministically reach teardown and finalize
	// the persisted session.
	conn.Close()
	ended := waitForSession(t, env, sess.ID.String(), func(s *models.Session) bool {
		return s.Status == models.SessionStatusEnded
	})
	if ended.EndedAt == nil {
		t.Fatal("ended_at not set on teardown")
	}
}

func TestConsoleRemoteCloseDeliversOutputFirst(t *testing.T) {
	env := newTestEnv(t)
	payload := bytes.Repeat([]byte("a"), 256<<10)
	sshAddr := startClosingSSHServer(t, "testuser", "secret", payload)
	host, port := splitSSHAddr(t, sshAddr)

	conn := dialConsole(t, env.listen(t), "")

	connect := map[string]interface{}{
		"type": "connect", "host": host, "port": port,
		"username": "testuser", "password": "secret",
	}
	data, _ := json.Marshal(connect)
	conn.WriteMessage(websocket.TextMessage, data)

	if f := awaitControl(t, conn, "ssh-status"); f.Status != "connected" {
		t.Fatalf("status = %q, want connected", f.Status)
	}

	// Every byte written before the remote close must arrive before the
	// disconnected frame; an early exit status never truncates output.
	var got int
	for i := 0; i < 10000; i++ {
		frame := readFrame(t, conn)
		var f wsFrame
		if err := json.Unmarshal(frame, &f); err == nil && f.Type != "" {
			if f.Type == "ssh-status" && f.Status == "disconnected" {
				if got != len(payload) {
					t.Fatalf("disconnected after %d of %d output bytes", got, len(payload))
				}
				return
			}
			t.Fatalf("unexpected control frame: %s", frame)
		}
		got += len(frame)
	}
	t.Fatal("disconnected frame never arrived")
}

func TestConsoleRemoteCloseEndsSession(t *testing.T) {
	env := newTestEnv(t)
	sshAddr := startClosingSSHServer(t, "testuser", "secret", []byte("goodbye\r\n"))
	sess := seedConsoleSession(t, env, sshAddr, models.SessionStatusPending)

	conn := dialConsole(t, env.listen(t), "session_id="+sess.ID.String())
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connect"}`))

	if f := awaitControl(t, conn, "ssh-status"); f.Status != "connected" {
		t.Fatalf("status = %q, want connected", f.Status)
	}
	awaitOutput(t, conn, "goodbye")

	if f := awaitControl(t, conn, "ssh-status"); f.Status != "disconnected" {
		t.Fatalf("status = %q, want disconnected", f.Status)
	}

	ended := waitForSession(t, env, sess.ID.String(), func(s *models.Session) bool {
		return s.Status == models.SessionStatusEnded
	})
	if ended.EndedAt == nil {
		t.Fatal("ended_at not set after remote close")
	}
}

func TestConsoleEndedSessionRejected(t *testing.T) {
	env := newTestEnv(t)
	sshAddr := startTestSSHServer(t, "testuser", "secret")
	sess := seedConsoleSession(t, env, sshAddr, models.SessionStatusEnded)

	conn := dialConsole(t, env.listen(t), "session_id="+sess.ID.String())
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connect"}`))

	if f := awaitControl(t, conn, "ssh-error"); f.Error == "" {
		t.Fatal("ssh-error frame carries no message")
	}
}

func TestConsoleTeardownIdempotent(t *testing.T) {
	env := newTestEnv(t)
	sshAddr := startTestSSHServer(t, "testuser", "secret")
	sess := seedConsoleSession(t, env, sshAddr, models.SessionStatusPending)

	conn := dialConsole(t, env.listen(t), "session_id="+sess.ID.String())
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connect"}`))
	awaitControl(t, conn, "ssh-status")

	waitForSession(t, env, sess.ID.String(), func(s *models.Session) bool {
		return s.Status == models.SessionStatusActive
	})

	// Explicit disconnect immediately followed by transport close: the
	// cleanup latch must fire once, ending the session exactly once.
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"disconnect"}`))
	conn.Close()

	first := waitForSession(t, env, sess.ID.String(), func(s *models.Session) bool {
		return s.Status == models.SessionStatusEnded && s.EndedAt != nil
	})

	time.Sleep(100 * time.Millisecond)
	second := waitForSession(t, env, sess.ID.String(), func(s *models.Session) bool {
		return s.Status == models.SessionStatusEnded
	})
	if !second.EndedAt.Equal(*first.EndedAt) {
		t.Fatalf("ended_at moved after teardown: %v -> %v", first.EndedAt, second.EndedAt)
	}
}
