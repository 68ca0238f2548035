// Package session is the public surface a UI layer consumes: open and
// close conversations, send messages, subscribe to timeline, typing and
// connection-state updates. Everything behind it (connection lifecycle,
// room membership, reconciliation) stays internal.
package session

import (
	"context"

	"github.com/curalink/chatkit/internal/rooms"
	"github.com/curalink/chatkit/internal/timeline"
	"github.com/curalink/chatkit/internal/transport"
	"github.com/curalink/chatkit/internal/typing"
)

// Session is the contract the UI consumes. Subscribers are replayed the
// current known state on subscription and notified synchronously in the
// order operations complete.
type Session interface {
	// Start connects and authenticates with token.
	Start(ctx context.Context, token string) error

	// Stop disconnects and releases all resources. The session cannot be
	// reused afterwards; construct a new one on the next login.
	Stop()

	// Reconnect performs a clean disconnect-and-connect with a fresh
	// token, e.g. after the auth token rotated or a terminal failure.
	Reconnect(ctx context.Context, token string) error

	// ConnectionState returns the current connection state.
	ConnectionState() transport.ConnectionState

	// OpenConversation joins the room of the given kind and loads the
	// conversation's history. Opening a conversation of a kind closes
	// the previously open conversation of that kind; the client occupies
	// at most one room per kind.
	OpenConversation(ctx context.Context, conversationID string, kind rooms.Kind) error

	// CloseConversation leaves the room and drops the conversation's
	// local state. In-flight requests for it are cancelled and their
	// late resolutions discarded.
	CloseConversation(conversationID string, kind rooms.Kind)

	// Send delivers a message to an open conversation, optimistically
	// first. On failure the returned error preserves the attempted body.
	Send(ctx context.Context, conversationID, body string) (timeline.Message, error)

	// SendTyping broadcasts the local typing state, best effort.
	SendTyping(conversationID string, isTyping bool)

	// SubscribeTimeline registers fn for timeline updates of a
	// conversation, replaying the current timeline immediately.
	SubscribeTimeline(conversationID string, fn func([]timeline.Message)) func()

	// SubscribeTyping registers fn for remote typing signals.
	SubscribeTyping(fn func(typing.Signal)) func()

	// SubscribeConnectionState registers fn for connection transitions,
	// replaying the current state immediately.
	SubscribeConnectionState(fn func(transport.StateEvent)) func()
}
