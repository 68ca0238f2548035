// Package transport owns the single persistent connection to the chat
// backend: connect, authenticate, reconnect with a bounded retry budget,
// disconnect. No other component touches the socket directly; everything
// goes through Conn's Emit primitive so connection-state checks cannot be
// bypassed.
package transport

import (
	"context"
	"net/http"
	"time"
)

// Conn is the connection surface the rest of the SDK consumes.
type Conn interface {
	// Connect establishes the connection, authenticating with token as
	// part of the handshake. It returns once the server acknowledges the
	// connection, or an error on handshake failure or timeout.
	Connect(ctx context.Context, token string) error

	// Disconnect tears the connection down and releases transport
	// resources. Calling it while already disconnected is a no-op.
	Disconnect()

	// Reconnect is Disconnect followed by Connect with a fresh token.
	Reconnect(ctx context.Context, token string) error

	// IsConnected reports whether the server currently acknowledges us.
	IsConnected() bool

	// State returns the current connection state.
	State() ConnectionState

	// SubscribeState registers fn for state transitions. fn is invoked
	// immediately with the current state so no transition is missed
	// between subscription and the first event. The returned function
	// unsubscribes.
	SubscribeState(fn func(StateEvent)) func()

	// Emit queues an event frame for delivery. Fire-and-forget: frames
	// are dropped silently while not connected.
	Emit(event string, data any)

	// Frames returns the stream of inbound event frames. The channel
	// stays open across reconnects and closes only on Close.
	Frames() <-chan Frame

	// Close disconnects and permanently releases the connection manager.
	// After Close the Frames channel is closed and the manager cannot be
	// reused.
	Close()
}

// Socket is the minimal surface the Manager needs from a WebSocket
// connection. gorilla's *websocket.Conn satisfies it; tests substitute a
// scripted implementation.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Socket against url with the given request headers.
type Dialer func(ctx context.Context, url string, header http.Header) (Socket, error)
