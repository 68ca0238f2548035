package transport

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Ensure MockConn implements Conn.
var _ Conn = (*MockConn)(nil)

// EmittedFrame records one Emit call on a MockConn.
type EmittedFrame struct {
	Event string
	Data  any
}

// MockConn implements Conn for testing higher layers.
type MockConn struct {
	// ConnectErr, when set, is returned by Connect.
	ConnectErr error

	mu       sync.Mutex
	state    ConnectionState
	token    string
	emitted  []EmittedFrame
	subs     map[int]func(StateEvent)
	nextSub  int
	frames   chan Frame
	closed   bool
}

// NewMockConn creates a mock connection in the disconnected state.
func NewMockConn() *MockConn {
	return &MockConn{
		state:  StateDisconnected,
		subs:   make(map[int]func(StateEvent)),
		frames: make(chan Frame, frameBufferSize),
	}
}

// Connect implements Conn.Connect.
func (m *MockConn) Connect(_ context.Context, token string) error {
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	m.SimulateState(StateConnected, nil)
	return nil
}

// Disconnect implements Conn.Disconnect.
func (m *MockConn) Disconnect() {
	m.SimulateState(StateDisconnected, nil)
}

// Reconnect implements Conn.Reconnect.
func (m *MockConn) Reconnect(ctx context.Context, token string) error {
	m.Disconnect()
	return m.Connect(ctx, token)
}

// IsConnected implements Conn.IsConnected.
func (m *MockConn) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// State implements Conn.State.
func (m *MockConn) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SubscribeState implements Conn.SubscribeState.
func (m *MockConn) SubscribeState(fn func(StateEvent)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	current := m.state
	m.mu.Unlock()

	fn(StateEvent{Old: current, New: current})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Emit implements Conn.Emit, recording the frame when connected and
// dropping it otherwise, matching the real manager's semantics.
func (m *MockConn) Emit(event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return
	}
	m.emitted = append(m.emitted, EmittedFrame{Event: event, Data: data})
}

// Frames implements Conn.Frames.
func (m *MockConn) Frames() <-chan Frame {
	return m.frames
}

// Close implements Conn.Close.
func (m *MockConn) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	close(m.frames)
}

// SimulateState drives a state transition and notifies subscribers.
func (m *MockConn) SimulateState(next ConnectionState, cause error) {
	m.mu.Lock()
	if m.state == next {
		m.mu.Unlock()
		return
	}
	ev := StateEvent{Old: m.state, New: next, Err: cause}
	m.state = next
	fns := make([]func(StateEvent), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// SimulateFrame delivers an inbound frame as if the server pushed it.
func (m *MockConn) SimulateFrame(frame Frame) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if !closed {
		m.frames <- frame
	}
}

// Emitted returns a copy of all recorded Emit calls.
func (m *MockConn) Emitted() []EmittedFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmittedFrame, len(m.emitted))
	copy(out, m.emitted)
	return out
}

// EmittedEvents returns just the event names, in emit order.
func (m *MockConn) EmittedEvents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.emitted))
	for i, e := range m.emitted {
		names[i] = e.Event
	}
	return names
}

// errSocketClosed terminates MockSocket reads after Close.
var errSocketClosed = errors.New("socket closed")

type mockRead struct {
	payload []byte
	err     error
}

// errReadTimeout is returned by MockSocket reads past the read deadline.
var errReadTimeout = errors.New("read deadline exceeded")

// MockSocket implements Socket with scripted reads for Manager tests.
type MockSocket struct {
	mu       sync.Mutex
	writes   [][]byte
	reads    chan mockRead
	closeCh  chan struct{}
	closed   bool
	deadline time.Time

	// WriteErr, when set, fails all writes.
	WriteErr error
}

// NewMockSocket creates a mock socket.
func NewMockSocket() *MockSocket {
	return &MockSocket{
		reads:   make(chan mockRead, frameBufferSize),
		closeCh: make(chan struct{}),
	}
}

// QueueRead scripts one successful inbound payload.
func (s *MockSocket) QueueRead(payload []byte) {
	s.reads <- mockRead{payload: payload}
}

// QueueReadError scripts one failing read, e.g. a transport drop.
func (s *MockSocket) QueueReadError(err error) {
	s.reads <- mockRead{err: err}
}

// ReadMessage implements Socket.ReadMessage, honoring the read deadline.
func (s *MockSocket) ReadMessage() (int, []byte, error) {
	s.mu.Lock()
	deadline := s.deadline
	s.mu.Unlock()

	var expired <-chan time.Time
	if !deadline.IsZero() {
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, nil, errReadTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-s.reads:
		return textMessage, r.payload, r.err
	case <-s.closeCh:
		return 0, nil, errSocketClosed
	case <-expired:
		return 0, nil, errReadTimeout
	}
}

// WriteMessage implements Socket.WriteMessage.
func (s *MockSocket) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.writes = append(s.writes, buf)
	return nil
}

// SetReadDeadline implements Socket.SetReadDeadline.
func (s *MockSocket) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = t
	return nil
}

// SetWriteDeadline implements Socket.SetWriteDeadline.
func (s *MockSocket) SetWriteDeadline(_ time.Time) error { return nil }

// Close implements Socket.Close.
func (s *MockSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.closeCh)
	}
	return nil
}

// Writes returns a copy of all payloads written to the socket.
func (s *MockSocket) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}
