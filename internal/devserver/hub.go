package devserver

import (
	"sync"

	"github.com/curalink/chatkit/internal/transport"
)

type roomKind int

const (
	roomDirect roomKind = iota
	roomGroup
)

func (k roomKind) messageEvent() string {
	if k == roomGroup {
		return transport.EventNewGroupMessage
	}
	return transport.EventNewDirectMessage
}

type room struct {
	kind    roomKind
	members map[*client]struct{}
}

// hub tracks room membership and fans events out to members, in the
// mold of the usual websocket chat hub.
type hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func newHub() *hub {
	return &hub{rooms: make(map[string]*room)}
}

func (h *hub) join(c *client, roomID string, kind roomKind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{kind: kind, members: make(map[*client]struct{})}
		h.rooms[roomID] = r
	}
	r.members[c] = struct{}{}
}

func (h *hub) leave(c *client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(r.members, c)
	if len(r.members) == 0 {
		delete(h.rooms, roomID)
	}
}

// detach removes a client from every room, used on disconnect.
func (h *hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, r := range h.rooms {
		delete(r.members, c)
		if len(r.members) == 0 {
			delete(h.rooms, id)
		}
	}
}

// kindOf returns the kind a room was created with. Falls back to direct
// when nobody has joined the room yet.
func (h *hub) kindOf(roomID string) roomKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[roomID]; ok {
		return r.kind
	}
	return roomDirect
}

// broadcast pushes a frame to every member of a room. except, when
// non-nil, is skipped so typing indicators do not echo to the typist.
func (h *hub) broadcast(roomID string, frame transport.Frame, except *client) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	members := make([]*client, 0, len(r.members))
	for c := range r.members {
		if c != except {
			members = append(members, c)
		}
	}
	h.mu.Unlock()

	for _, c := range members {
		c.push(frame)
	}
}
