package console

import "bytes"

// Browser-facing wire protocol. Control messages are JSON envelopes tagged
// with a "type" field; everything else on the socket is raw terminal bytes
// (keystrokes inbound, screen output outbound) and skips JSON entirely.

// WebSocket frame opcodes (RFC 6455). Declared here so the session logic
// does not depend on a concrete websocket library.
const (
	TextMessage   = 1
	BinaryMessage = 2
)

const (
	msgConnect    = "connect"
	msgInput      = "input"
	msgResize     = "resize"
	msgDisconnect = "disconnect"
	msgPing       = "ping"
)

type clientMessage struct {
	Type string `json:"type"`

	// Direct-mode connect parameters; ignored when the connection is bound
	// to a persisted session.
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`

	// input
	Data string `json:"data,omitempty"`

	// resize
	Cols int `json:"cols,omitempty"`
	Rows int `json:"rows,omitempty"`
}

type serverMessage struct {
	Type      string `json:"type"`
	Status    string `json:"status,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

const (
	statusConnected    = "connected"
	statusDisconnected = "disconnected"
)

// looksLikeControl reports whether a text frame should be parsed as a JSON
// control envelope. Frames that do not open a JSON object are terminal input.
func looksLikeControl(frame []byte) bool {
	trimmed := bytes.TrimLeft(frame, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}
