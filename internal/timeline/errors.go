package timeline

import (
	"errors"
	"fmt"
)

// ErrConversationClosed is returned when an operation targets a
// conversation that is not open.
var ErrConversationClosed = errors.New("conversation not open")

// SendError is a failed send. It preserves the attempted body so the
// caller can offer retry without the user retyping.
type SendError struct {
	Body string
	Err  error
}

// Error implements the error interface.
func (e *SendError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Err)
}

// Unwrap exposes the underlying cause.
func (e *SendError) Unwrap() error {
	return e.Err
}

// HistoryError is a failed history fetch. It is surfaced rather than
// swallowed: an empty-looking chat with real history behind it would
// silently hide data from the user.
type HistoryError struct {
	ConversationID string
	Err            error
}

// Error implements the error interface.
func (e *HistoryError) Error() string {
	return fmt.Sprintf("history fetch for %s failed: %v", e.ConversationID, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *HistoryError) Unwrap() error {
	return e.Err
}
