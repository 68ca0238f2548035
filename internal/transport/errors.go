package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectInProgress is returned by Connect while another Connect
	// on the same manager has not yet resolved.
	ErrConnectInProgress = errors.New("connect already in progress")

	// ErrConnectAborted is returned when Disconnect or Close raced an
	// in-flight Connect and won.
	ErrConnectAborted = errors.New("connect aborted")

	// ErrHandshakeTimeout is returned when the server does not
	// acknowledge the connection within the handshake timeout.
	ErrHandshakeTimeout = errors.New("handshake timed out")

	// ErrClosed is returned by operations on a manager after Close.
	ErrClosed = errors.New("connection manager closed")
)

// HandshakeError is the server's explicit rejection of the handshake,
// typically an authentication failure.
type HandshakeError struct {
	Reason string
}

// Error implements the error interface.
func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake rejected: %s", e.Reason)
}
