package devserver

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curalink/chatkit/internal/timeline"
)

// memoryStore keeps per-conversation message history in memory. The dev
// server is a test fixture; nothing survives a restart.
type memoryStore struct {
	mu       sync.Mutex
	messages map[string][]timeline.Message
}

func newMemoryStore() *memoryStore {
	return &memoryStore{messages: make(map[string][]timeline.Message)}
}

// history returns the ordered message list of a conversation.
func (s *memoryStore) history(conversationID string) []timeline.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	out := make([]timeline.Message, len(msgs))
	copy(out, msgs)
	return out
}

// append stores a new message and returns it with its assigned ID.
func (s *memoryStore) append(conversationID, senderID, body string) timeline.Message {
	msg := timeline.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      time.Now().UTC(),
		Status:         timeline.StatusConfirmed,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return msg
}
