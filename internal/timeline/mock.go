package timeline

import (
	"context"
	"fmt"
	"sync"
)

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// MockStore implements Store for testing with pluggable behavior.
type MockStore struct {
	HistoryFunc func(ctx context.Context, conversationID string) ([]Message, error)
	SendFunc    func(ctx context.Context, conversationID, body string) (Message, error)

	mu           sync.Mutex
	historyCalls []string
	sendCalls    []string
}

// NewMockStore creates a mock store whose defaults return empty history
// and echo sends back with a generated ID.
func NewMockStore() *MockStore {
	m := &MockStore{}
	m.HistoryFunc = func(_ context.Context, _ string) ([]Message, error) {
		return nil, nil
	}
	seq := 0
	m.SendFunc = func(_ context.Context, conversationID, body string) (Message, error) {
		seq++
		return Message{
			ID:             fmt.Sprintf("srv-%d", seq),
			ConversationID: conversationID,
			Body:           body,
		}, nil
	}
	return m
}

// History implements Store.History.
func (m *MockStore) History(ctx context.Context, conversationID string) ([]Message, error) {
	m.mu.Lock()
	m.historyCalls = append(m.historyCalls, conversationID)
	m.mu.Unlock()
	return m.HistoryFunc(ctx, conversationID)
}

// Send implements Store.Send.
func (m *MockStore) Send(ctx context.Context, conversationID, body string) (Message, error) {
	m.mu.Lock()
	m.sendCalls = append(m.sendCalls, body)
	m.mu.Unlock()
	return m.SendFunc(ctx, conversationID, body)
}

// HistoryCalls returns the conversation IDs fetched, in order.
func (m *MockStore) HistoryCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.historyCalls))
	copy(out, m.historyCalls)
	return out
}

// SendCalls returns the bodies sent, in order.
func (m *MockStore) SendCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sendCalls))
	copy(out, m.sendCalls)
	return out
}
