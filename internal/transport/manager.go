package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Ensure Manager implements Conn.
var _ Conn = (*Manager)(nil)

const (
	// DefaultHandshakeTimeout bounds the connect handshake.
	DefaultHandshakeTimeout = 20 * time.Second
	// DefaultReconnectAttempts is the automatic recovery budget after an
	// unexpected transport loss.
	DefaultReconnectAttempts = 5
	// DefaultReconnectDelay is the fixed pause between recovery attempts.
	DefaultReconnectDelay = 1 * time.Second

	frameBufferSize = 256
	writeWait       = 10 * time.Second
)

// Options configures a Manager. Zero fields fall back to defaults.
type Options struct {
	// URL is the WebSocket endpoint, including the namespace path agreed
	// with the server.
	URL string

	// HandshakeTimeout bounds Connect from dial to server acknowledgement.
	HandshakeTimeout time.Duration

	// ReconnectAttempts is the number of automatic recovery attempts
	// before the manager gives up and enters StateFailed.
	ReconnectAttempts int

	// ReconnectDelay is the fixed delay between recovery attempts.
	ReconnectDelay time.Duration

	// Dialer opens the underlying socket. Defaults to a gorilla/websocket
	// dialer; tests inject a scripted one.
	Dialer Dialer

	// Logger receives transport diagnostics.
	Logger zerolog.Logger
}

// Manager owns the single persistent connection. It is safe for
// concurrent use; all socket writes are serialized through it.
type Manager struct {
	opts Options
	log  zerolog.Logger

	mu    sync.Mutex
	state ConnectionState
	sock  Socket
	token string
	// gen identifies the live connection. Every Connect, Disconnect and
	// successful recovery bumps it, which invalidates read loops and
	// pending recovery runs started under an older generation.
	gen    uint64
	closed bool

	subs    map[int]func(StateEvent)
	nextSub int

	writeMu sync.Mutex

	frames       chan Frame
	events       chan StateEvent
	dispatchDone chan struct{}
}

// NewManager creates a connection manager. The caller owns it explicitly
// and must Close it on teardown; there is no package-level instance.
func NewManager(opts Options) *Manager {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = DefaultReconnectAttempts
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = GorillaDialer
	}

	m := &Manager{
		opts:         opts,
		log:          opts.Logger.With().Str("component", "transport").Logger(),
		state:        StateDisconnected,
		subs:         make(map[int]func(StateEvent)),
		frames:       make(chan Frame, frameBufferSize),
		events:       make(chan StateEvent, frameBufferSize),
		dispatchDone: make(chan struct{}),
	}

	go m.dispatchStateEvents()

	return m
}

// Connect implements Conn.Connect.
func (m *Manager) Connect(ctx context.Context, token string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return nil
	case StateConnecting, StateReconnecting:
		m.mu.Unlock()
		return ErrConnectInProgress
	case StateDisconnected, StateFailed:
	}
	m.gen++
	gen := m.gen
	m.token = token
	m.setStateLocked(StateConnecting, nil)
	m.mu.Unlock()

	sock, err := m.dialAndHandshake(ctx, token)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.closed {
		if sock != nil {
			_ = sock.Close()
		}
		return ErrConnectAborted
	}
	if err != nil {
		m.setStateLocked(StateDisconnected, nil)
		return fmt.Errorf("connect failed: %w", err)
	}

	m.sock = sock
	m.setStateLocked(StateConnected, nil)
	go m.readLoop(gen, sock)

	return nil
}

// Disconnect implements Conn.Disconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
}

func (m *Manager) disconnectLocked() {
	// Bumping the generation cancels the read loop and any recovery run.
	m.gen++
	if m.sock != nil {
		_ = m.sock.Close()
		m.sock = nil
	}
	m.setStateLocked(StateDisconnected, nil)
}

// Reconnect implements Conn.Reconnect.
func (m *Manager) Reconnect(ctx context.Context, token string) error {
	m.Disconnect()
	return m.Connect(ctx, token)
}

// IsConnected implements Conn.IsConnected.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

// State implements Conn.State.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SubscribeState implements Conn.SubscribeState.
func (m *Manager) SubscribeState(fn func(StateEvent)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	current := m.state
	m.mu.Unlock()

	// Replay the current state so the subscriber never observes a gap
	// between subscribing and the first transition.
	fn(StateEvent{Old: current, New: current})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Emit implements Conn.Emit. Frames are dropped silently while not
// connected; the UI must never block on membership or typing traffic.
func (m *Manager) Emit(event string, data any) {
	m.mu.Lock()
	sock := m.sock
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || sock == nil {
		m.log.Debug().Str("event", event).Msg("dropping frame, not connected")
		return
	}

	frame, err := NewFrame(event, data)
	if err != nil {
		m.log.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		m.log.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = sock.SetWriteDeadline(time.Now().Add(writeWait))
	if err := sock.WriteMessage(textMessage, payload); err != nil {
		// The read loop observes the same failure and drives recovery.
		m.log.Debug().Err(err).Str("event", event).Msg("frame write failed")
	}
}

// Frames implements Conn.Frames.
func (m *Manager) Frames() <-chan Frame {
	return m.frames
}

// Close implements Conn.Close.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.disconnectLocked()
	m.mu.Unlock()

	close(m.events)
	<-m.dispatchDone
	close(m.frames)
}

// dialAndHandshake opens the socket and waits for the server's connect
// acknowledgement. The token travels in the upgrade request; it is not
// negotiated after the fact.
func (m *Manager) dialAndHandshake(ctx context.Context, token string) (Socket, error) {
	deadline := time.Now().Add(m.opts.HandshakeTimeout)
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	sock, err := m.opts.Dialer(dialCtx, m.opts.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	if err := sock.SetReadDeadline(deadline); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("failed to arm handshake deadline: %w", err)
	}

	for {
		_, payload, readErr := sock.ReadMessage()
		if readErr != nil {
			_ = sock.Close()
			if time.Now().After(deadline) {
				return nil, ErrHandshakeTimeout
			}
			return nil, fmt.Errorf("handshake read failed: %w", readErr)
		}

		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}

		switch frame.Event {
		case EventConnect:
			_ = sock.SetReadDeadline(time.Time{})
			return sock, nil
		case EventConnectError:
			_ = sock.Close()
			var reject ConnectErrorPayload
			_ = json.Unmarshal(frame.Data, &reject)
			return nil, &HandshakeError{Reason: reject.Reason}
		default:
			// Data frames before the ack are out of contract; skip.
		}
	}
}

// readLoop forwards inbound frames until the socket fails, then hands off
// to automatic recovery if this generation is still the live one.
func (m *Manager) readLoop(gen uint64, sock Socket) {
	for {
		_, payload, err := sock.ReadMessage()
		if err != nil {
			m.handleLoss(gen, err)
			return
		}

		var frame Frame
		if jsonErr := json.Unmarshal(payload, &frame); jsonErr != nil || frame.Event == "" {
			m.log.Debug().Msg("discarding malformed frame")
			continue
		}

		// The forward happens under m.mu so it cannot race Close, which
		// flips m.closed under the same lock before closing m.frames. A
		// generation mismatch means this loop was superseded; its frames
		// are stale and dropped with it.
		m.mu.Lock()
		if m.closed || m.gen != gen {
			m.mu.Unlock()
			return
		}
		select {
		case m.frames <- frame:
		default:
			m.log.Warn().Str("event", frame.Event).Msg("frame buffer full, dropping")
		}
		m.mu.Unlock()
	}
}

// handleLoss reacts to an unexpected transport failure. Deliberate
// disconnects bump the generation first, so they never reach recovery.
func (m *Manager) handleLoss(gen uint64, cause error) {
	m.mu.Lock()
	if m.gen != gen || m.closed {
		m.mu.Unlock()
		return
	}
	if m.sock != nil {
		_ = m.sock.Close()
		m.sock = nil
	}
	token := m.token
	m.setStateLocked(StateReconnecting, nil)
	m.mu.Unlock()

	m.log.Warn().Err(cause).Msg("connection lost, attempting recovery")
	m.recover(gen, token, cause)
}

// recover retries the handshake a bounded number of times with a fixed
// delay. Room membership does not survive this path; re-joining is the
// session layer's job, driven by the state transition back to connected.
func (m *Manager) recover(gen uint64, token string, cause error) {
	for attempt := 1; attempt <= m.opts.ReconnectAttempts; attempt++ {
		time.Sleep(m.opts.ReconnectDelay)

		m.mu.Lock()
		if m.gen != gen || m.closed {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		sock, err := m.dialAndHandshake(context.Background(), token)
		if err != nil {
			m.log.Debug().Err(err).Int("attempt", attempt).Msg("recovery attempt failed")
			continue
		}

		m.mu.Lock()
		if m.gen != gen || m.closed {
			m.mu.Unlock()
			_ = sock.Close()
			return
		}
		m.gen++
		newGen := m.gen
		m.sock = sock
		m.setStateLocked(StateConnected, nil)
		m.mu.Unlock()

		m.log.Info().Int("attempt", attempt).Msg("connection recovered")
		go m.readLoop(newGen, sock)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.closed {
		return
	}
	m.setStateLocked(StateFailed, fmt.Errorf("reconnect attempts exhausted: %w", cause))
}

// setStateLocked transitions the state and queues the event for ordered
// delivery. Callers hold m.mu.
func (m *Manager) setStateLocked(next ConnectionState, cause error) {
	if m.state == next {
		return
	}
	ev := StateEvent{Old: m.state, New: next, Err: cause}
	m.state = next

	select {
	case m.events <- ev:
	default:
		m.log.Warn().Str("state", next.String()).Msg("state event buffer full, dropping")
	}
}

// dispatchStateEvents delivers state transitions to subscribers in order,
// outside the manager's lock so subscribers may call back in.
func (m *Manager) dispatchStateEvents() {
	defer close(m.dispatchDone)

	for ev := range m.events {
		m.mu.Lock()
		fns := make([]func(StateEvent), 0, len(m.subs))
		for _, fn := range m.subs {
			fns = append(fns, fn)
		}
		m.mu.Unlock()

		for _, fn := range fns {
			fn(ev)
		}
	}
}
