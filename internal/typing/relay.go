// Package typing relays the ephemeral typing indicator. Deliberately the
// simplest component: best-effort and unordered, since a lost typing
// event costs a moment of UX staleness, never correctness.
package typing

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/curalink/chatkit/internal/transport"
)

// Signal is one typing notification from a remote participant.
type Signal struct {
	ConversationID string
	UserID         string
	IsTyping       bool
}

// Emitter is the slice of the connection manager the relay needs.
type Emitter interface {
	Emit(event string, data any)
}

// Relay broadcasts local typing state and fans inbound signals out to
// subscribers, keeping only the latest boolean per remote participant.
type Relay struct {
	conn Emitter
	log  zerolog.Logger

	mu      sync.Mutex
	states  map[string]bool
	subs    map[int]func(Signal)
	nextSub int
}

// NewRelay creates a typing relay bound to conn.
func NewRelay(conn Emitter, logger zerolog.Logger) *Relay {
	return &Relay{
		conn:   conn,
		log:    logger.With().Str("component", "typing").Logger(),
		states: make(map[string]bool),
		subs:   make(map[int]func(Signal)),
	}
}

// SendTyping broadcasts the local user's typing state. Fire-and-forget:
// the frame is dropped silently while disconnected.
func (r *Relay) SendTyping(conversationID string, isTyping bool) {
	r.conn.Emit(transport.EventTyping, transport.TypingPayload{
		ConversationID: conversationID,
		IsTyping:       isTyping,
	})
}

// Apply records an inbound signal and notifies subscribers.
func (r *Relay) Apply(sig Signal) {
	if sig.UserID == "" {
		return
	}

	r.mu.Lock()
	if sig.IsTyping {
		r.states[sig.UserID] = true
	} else {
		delete(r.states, sig.UserID)
	}
	fns := make([]func(Signal), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(sig)
	}
}

// Subscribe registers fn for typing signals. The returned function
// unsubscribes. No replay: typing state is transient, and the caller
// debounces if it wants to.
func (r *Relay) Subscribe(fn func(Signal)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// IsTyping reports the last known typing state of a remote participant.
func (r *Relay) IsTyping(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[userID]
}

// Reset forgets all remote typing state, e.g. on reconnect.
func (r *Relay) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = make(map[string]bool)
}
