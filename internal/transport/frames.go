package transport

import (
	"encoding/json"
	"fmt"
)

// Event names exchanged with the server. The wire protocol has no
// room-switch primitive; only join and leave exist, which is why room
// exclusivity is enforced client-side (see the rooms package).
const (
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventError        = "error"

	EventJoinDirectRoom  = "join-direct-room"
	EventLeaveDirectRoom = "leave-direct-room"
	EventJoinGroupRoom   = "join-group-room"
	EventLeaveGroupRoom  = "leave-group-room"

	EventNewDirectMessage = "new-direct-message"
	EventNewGroupMessage  = "new-group-message"
	EventTyping           = "typing"
)

// Frame is one named event on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a Frame for the given event.
func NewFrame(event string, data any) (Frame, error) {
	if data == nil {
		return Frame{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: raw}, nil
}

// RoomPayload is the payload of the four join/leave events.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// TypingPayload is the payload of the typing event in both directions.
// UserID is set by the server on inbound frames and ignored outbound.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

// ConnectErrorPayload carries the server's handshake rejection reason.
type ConnectErrorPayload struct {
	Reason string `json:"reason"`
}
