package console

import "errors"

// Configuration-level failures surfaced to the client as ssh-error frames.
var (
	ErrSessionNotFound           = errors.New("session not found")
	ErrSessionEnded              = errors.New("session is not available for connection")
	ErrServerNotFound            = errors.New("server not found")
	ErrCredentialNotFound        = errors.New("credential not found")
	ErrUnsupportedCredentialType = errors.New("unsupported credential type")
)
