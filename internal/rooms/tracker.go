// Package rooms tracks which direct and group room the local client
// occupies. The transport only has join and leave primitives, no switch,
// so the at-most-one-room-per-kind invariant is enforced here: joining a
// new room of a kind leaves the previous one first.
package rooms

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/curalink/chatkit/internal/transport"
)

// Kind distinguishes the two room flavors. One tracker instance handles
// both; the flavors differ only in their wire event names.
type Kind int

const (
	// Direct is a one-on-one conversation room.
	Direct Kind = iota
	// Group is a multi-participant conversation room.
	Group
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if k == Group {
		return "group"
	}
	return "direct"
}

func (k Kind) joinEvent() string {
	if k == Group {
		return transport.EventJoinGroupRoom
	}
	return transport.EventJoinDirectRoom
}

func (k Kind) leaveEvent() string {
	if k == Group {
		return transport.EventLeaveGroupRoom
	}
	return transport.EventLeaveDirectRoom
}

// Connection is the slice of the connection manager the tracker needs.
type Connection interface {
	IsConnected() bool
	Emit(event string, data any)
	SubscribeState(fn func(transport.StateEvent)) func()
}

// Tracker owns the active room identifiers. Membership does not survive
// a disconnect: the tracker drops its state on any transition away from
// connected, and re-joining is the caller's responsibility.
type Tracker struct {
	conn  Connection
	log   zerolog.Logger
	unsub func()

	mu     sync.Mutex
	active map[Kind]string
}

// NewTracker creates a tracker bound to conn. It observes connection
// state and invalidates all memberships whenever the connection is lost.
func NewTracker(conn Connection, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		conn:   conn,
		log:    logger.With().Str("component", "rooms").Logger(),
		active: make(map[Kind]string),
	}
	t.unsub = conn.SubscribeState(func(ev transport.StateEvent) {
		if ev.New != transport.StateConnected && ev.Old == transport.StateConnected {
			t.Invalidate()
		}
	})
	return t
}

// Close releases the tracker's state subscription.
func (t *Tracker) Close() {
	if t.unsub != nil {
		t.unsub()
	}
}

// JoinDirect makes roomID the active direct room.
func (t *Tracker) JoinDirect(roomID string) { t.Join(Direct, roomID) }

// LeaveDirect leaves roomID if it is still the active direct room.
func (t *Tracker) LeaveDirect(roomID string) { t.Leave(Direct, roomID) }

// JoinGroup makes roomID the active group room.
func (t *Tracker) JoinGroup(roomID string) { t.Join(Group, roomID) }

// LeaveGroup leaves roomID if it is still the active group room.
func (t *Tracker) LeaveGroup(roomID string) { t.Leave(Group, roomID) }

// Join switches the active room of the given kind. No-op when roomID is
// already active; dropped silently when disconnected, matching the
// fire-and-forget transport semantics.
func (t *Tracker) Join(kind Kind, roomID string) {
	if roomID == "" {
		return
	}
	if !t.conn.IsConnected() {
		t.log.Debug().Str("kind", kind.String()).Str("room", roomID).
			Msg("join dropped, not connected")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active[kind] == roomID {
		return
	}
	// Leave must hit the wire before join so the server never considers
	// us present in two rooms of the same kind.
	if prev := t.active[kind]; prev != "" {
		t.conn.Emit(kind.leaveEvent(), transport.RoomPayload{RoomID: prev})
	}
	t.conn.Emit(kind.joinEvent(), transport.RoomPayload{RoomID: roomID})
	t.active[kind] = roomID
}

// Leave leaves roomID only if it is still the active room of its kind,
// guarding against a stale leave racing a newer join.
func (t *Tracker) Leave(kind Kind, roomID string) {
	if roomID == "" {
		return
	}
	if !t.conn.IsConnected() {
		t.log.Debug().Str("kind", kind.String()).Str("room", roomID).
			Msg("leave dropped, not connected")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active[kind] != roomID {
		return
	}
	t.conn.Emit(kind.leaveEvent(), transport.RoomPayload{RoomID: roomID})
	delete(t.active, kind)
}

// Active returns the active room of the given kind, if any.
func (t *Tracker) Active(kind Kind) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.active[kind]
	return id, ok
}

// Invalidate forgets all memberships without emitting leave frames. Used
// when the connection drops and the server has already forgotten us.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.active) > 0 {
		t.log.Debug().Msg("invalidating room memberships")
	}
	t.active = make(map[Kind]string)
}
