// Package timeline merges three independently-arriving message sources
// (fetched history, optimistic local sends, and server-pushed events)
// into one ordered, deduplicated timeline per conversation.
package timeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// conversation is the per-conversation reconciliation state: the ordered
// entries plus the set of confirmed server IDs already present.
type conversation struct {
	entries []Message
	ids     map[string]struct{}
}

// Engine reconciles message timelines. Entries are ordered by arrival,
// not timestamp: pushes arrive in causal order per room, and an
// optimistic entry is by definition the local user's most recent action,
// so pending entries always sit at the tail.
type Engine struct {
	store Store
	self  string
	log   zerolog.Logger

	// notifyMu serializes snapshot delivery so subscribers observe
	// mutations in the order they completed. It is acquired before mu
	// and held across the callbacks; mu is never held while calling out.
	notifyMu sync.Mutex

	mu      sync.Mutex
	convs   map[string]*conversation
	epochs  map[string]uint64
	subs    map[string]map[int]func([]Message)
	nextSub int
}

// NewEngine creates a reconciliation engine. selfID identifies the local
// user so pushed copies of our own messages can be matched against their
// pending entries.
func NewEngine(store Store, selfID string, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		self:   selfID,
		log:    logger.With().Str("component", "timeline").Logger(),
		convs:  make(map[string]*conversation),
		epochs: make(map[string]uint64),
		subs:   make(map[string]map[int]func([]Message)),
	}
}

// Open starts tracking a conversation with an empty timeline. Reopening
// an already-open conversation resets it.
func (e *Engine) Open(conversationID string) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	e.epochs[conversationID]++
	e.convs[conversationID] = &conversation{ids: make(map[string]struct{})}
	snapshot, fns := e.snapshotLocked(conversationID)
	e.mu.Unlock()

	deliver(snapshot, fns)
}

// Close drops a conversation's state. In-flight fetches and sends for it
// resolve against a bumped epoch and are discarded without mutating
// anything.
func (e *Engine) Close(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.epochs[conversationID]++
	delete(e.convs, conversationID)
}

// LoadHistory fetches the full message list and replaces the timeline
// wholesale, the only operation allowed to do so. On failure the
// timeline is left untouched and the error surfaced: an empty-looking
// chat with existing history is a correctness bug the user must see.
func (e *Engine) LoadHistory(ctx context.Context, conversationID string) error {
	e.mu.Lock()
	if _, open := e.convs[conversationID]; !open {
		e.mu.Unlock()
		return ErrConversationClosed
	}
	epoch := e.epochs[conversationID]
	e.mu.Unlock()

	msgs, err := e.store.History(ctx, conversationID)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Caller aborted: the response, whenever it lands, must not
		// touch the timeline.
		return ctxErr
	}
	if err != nil {
		return &HistoryError{ConversationID: conversationID, Err: err}
	}

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if e.epochs[conversationID] != epoch {
		e.mu.Unlock()
		return ErrConversationClosed
	}
	conv := e.convs[conversationID]
	conv.entries = conv.entries[:0]
	conv.ids = make(map[string]struct{})
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if _, dup := conv.ids[m.ID]; dup {
			continue
		}
		m.Status = StatusConfirmed
		conv.entries = append(conv.entries, m)
		conv.ids[m.ID] = struct{}{}
	}
	snapshot, fns := e.snapshotLocked(conversationID)
	e.mu.Unlock()

	deliver(snapshot, fns)
	return nil
}

// Send appends an optimistic pending entry immediately, then issues the
// network request. On success the pending entry is swapped for the
// confirmed one unless a racing push already delivered it; on failure
// the pending entry is removed and the attempted body preserved in the
// returned error.
func (e *Engine) Send(ctx context.Context, conversationID, body string) (Message, error) {
	if body == "" {
		return Message{}, fmt.Errorf("message body cannot be empty")
	}

	pending := Message{
		TempID:         uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       e.self,
		Body:           body,
		CreatedAt:      time.Now(),
		Status:         StatusPending,
	}

	e.notifyMu.Lock()
	e.mu.Lock()
	conv, open := e.convs[conversationID]
	if !open {
		e.mu.Unlock()
		e.notifyMu.Unlock()
		return Message{}, ErrConversationClosed
	}
	epoch := e.epochs[conversationID]
	conv.entries = append(conv.entries, pending)
	snapshot, fns := e.snapshotLocked(conversationID)
	e.mu.Unlock()
	deliver(snapshot, fns)
	e.notifyMu.Unlock()

	confirmed, err := e.store.Send(ctx, conversationID, body)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// The caller abandoned the send. Whatever the response says must
		// not land, but the optimistic entry cannot linger either: a
		// caller may cancel just this send without tearing the
		// conversation down.
		e.discardPending(conversationID, epoch, pending.TempID, body)
		return Message{}, ctxErr
	}

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if e.epochs[conversationID] != epoch {
		e.mu.Unlock()
		return Message{}, ErrConversationClosed
	}
	conv = e.convs[conversationID]

	if err != nil {
		removePending(conv, pending.TempID, body)
		snapshot, fns := e.snapshotLocked(conversationID)
		e.mu.Unlock()
		deliver(snapshot, fns)
		return Message{}, &SendError{Body: body, Err: err}
	}

	removePending(conv, pending.TempID, body)
	if _, dup := conv.ids[confirmed.ID]; !dup && confirmed.ID != "" {
		confirmed.Status = StatusConfirmed
		conv.entries = append(conv.entries, confirmed)
		conv.ids[confirmed.ID] = struct{}{}
	}
	// An unmatched pending entry here means a racing push already
	// replaced it: expected, not an error.
	snapshot, fns = e.snapshotLocked(conversationID)
	e.mu.Unlock()
	deliver(snapshot, fns)

	confirmed.Status = StatusConfirmed
	return confirmed, nil
}

// discardPending removes an optimistic entry whose send was abandoned.
// A bumped epoch means the conversation's state already went away and
// there is nothing to clean up.
func (e *Engine) discardPending(conversationID string, epoch uint64, tempID, body string) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if e.epochs[conversationID] != epoch {
		e.mu.Unlock()
		return
	}
	conv, open := e.convs[conversationID]
	if !open || !removePending(conv, tempID, body) {
		e.mu.Unlock()
		return
	}
	snapshot, fns := e.snapshotLocked(conversationID)
	e.mu.Unlock()

	deliver(snapshot, fns)
}

// ApplyPushed merges a server-pushed message. Duplicates by server ID
// are ignored; a push of our own message consumes its pending entry.
func (e *Engine) ApplyPushed(msg Message) {
	if msg.ID == "" {
		return
	}

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	conv, open := e.convs[msg.ConversationID]
	if !open {
		e.mu.Unlock()
		return
	}
	if _, dup := conv.ids[msg.ID]; dup {
		e.mu.Unlock()
		return
	}

	// The temporary ID never crosses the wire, so a push of our own
	// message is matched back to its pending entry by sender and body.
	if e.self != "" && msg.SenderID == e.self {
		consumePendingByBody(conv, msg.Body)
	}

	msg.Status = StatusConfirmed
	conv.entries = append(conv.entries, msg)
	conv.ids[msg.ID] = struct{}{}
	snapshot, fns := e.snapshotLocked(msg.ConversationID)
	e.mu.Unlock()

	deliver(snapshot, fns)
}

// Subscribe registers fn for timeline updates of a conversation. The
// current snapshot is replayed immediately so no state is missed between
// subscription and the first event. The returned function unsubscribes.
func (e *Engine) Subscribe(conversationID string, fn func([]Message)) func() {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if e.subs[conversationID] == nil {
		e.subs[conversationID] = make(map[int]func([]Message))
	}
	id := e.nextSub
	e.nextSub++
	e.subs[conversationID][id] = fn
	snapshot := e.timelineLocked(conversationID)
	e.mu.Unlock()

	fn(snapshot)

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs[conversationID], id)
	}
}

// Timeline returns a copy of the current timeline of a conversation.
func (e *Engine) Timeline(conversationID string) []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timelineLocked(conversationID)
}

func (e *Engine) timelineLocked(conversationID string) []Message {
	conv, open := e.convs[conversationID]
	if !open {
		return nil
	}
	out := make([]Message, len(conv.entries))
	copy(out, conv.entries)
	return out
}

// snapshotLocked captures the timeline and subscriber list for delivery
// after mu is released. Callers hold both notifyMu and mu.
func (e *Engine) snapshotLocked(conversationID string) ([]Message, []func([]Message)) {
	snapshot := e.timelineLocked(conversationID)
	fns := make([]func([]Message), 0, len(e.subs[conversationID]))
	for _, fn := range e.subs[conversationID] {
		fns = append(fns, fn)
	}
	return snapshot, fns
}

func deliver(snapshot []Message, fns []func([]Message)) {
	for _, fn := range fns {
		fn(snapshot)
	}
}

// removePending deletes the pending entry with the given temporary ID
// and body. Removal, not hiding: the confirmed entry replaces it.
func removePending(conv *conversation, tempID, body string) bool {
	for i, entry := range conv.entries {
		if entry.TempID == tempID && entry.Body == body && entry.Pending() {
			conv.entries = append(conv.entries[:i], conv.entries[i+1:]...)
			return true
		}
	}
	return false
}

// consumePendingByBody removes the oldest pending entry matching body.
func consumePendingByBody(conv *conversation, body string) bool {
	for i, entry := range conv.entries {
		if entry.Pending() && entry.Body == body {
			conv.entries = append(conv.entries[:i], conv.entries[i+1:]...)
			return true
		}
	}
	return false
}
