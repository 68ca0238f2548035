package timeline

import (
	"context"
	"time"
)

// Status is the confirmation status of a timeline entry.
type Status string

const (
	// StatusPending marks an optimistic local entry awaiting the server.
	StatusPending Status = "pending"
	// StatusConfirmed marks an entry the server has assigned an ID to.
	StatusConfirmed Status = "confirmed"
	// StatusFailed marks an entry whose send was rejected.
	StatusFailed Status = "failed"
)

// Message is one timeline entry. Identity is the server-assigned ID once
// known; before confirmation the entry exists only under its temporary
// local ID, which never appears on the wire.
type Message struct {
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"createdAt"`
	Status         Status    `json:"status,omitempty"`

	// TempID keys the entry while pending. Local only.
	TempID string `json:"-"`
}

// Pending reports whether the entry is still awaiting confirmation.
func (m Message) Pending() bool {
	return m.Status == StatusPending
}

// Store is the request/response backend the engine fetches history from
// and sends messages through. The history package provides the HTTP
// implementation; tests substitute a mock.
type Store interface {
	// History returns the full ordered message list of a conversation.
	History(ctx context.Context, conversationID string) ([]Message, error)

	// Send persists a new message and returns the confirmed entry with
	// its server-assigned ID.
	Send(ctx context.Context, conversationID, body string) (Message, error)
}
