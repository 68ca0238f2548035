package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/curalink/chatkit/internal/config"
	"github.com/curalink/chatkit/internal/history"
	"github.com/curalink/chatkit/internal/rooms"
	"github.com/curalink/chatkit/internal/timeline"
	"github.com/curalink/chatkit/internal/transport"
	"github.com/curalink/chatkit/internal/typing"
)

// Ensure Manager implements Session.
var _ Session = (*Manager)(nil)

// openConversation tracks one open conversation's kind and the cancel
// function covering its in-flight requests.
type openConversation struct {
	kind   rooms.Kind
	cancel context.CancelFunc
}

// Manager implements Session by composing the connection manager, room
// tracker, reconciliation engine and typing relay. It is constructed and
// owned explicitly, one instance per login and torn down with Stop, so
// nothing hides in package-level state and tests can run several
// independent instances.
type Manager struct {
	cfg  config.Config
	conn transport.Conn
	log  zerolog.Logger

	tracker *rooms.Tracker
	engine  *timeline.Engine
	relay   *typing.Relay

	mu    sync.Mutex
	open  map[string]openConversation
	token string

	stateUnsub   func()
	dispatchDone chan struct{}
	stopOnce     sync.Once
}

// Option customizes a Manager, mainly for tests.
type Option func(*Manager)

// WithConn injects a custom connection manager.
func WithConn(conn transport.Conn) Option {
	return func(m *Manager) {
		m.conn = conn
	}
}

// WithStore injects a custom history store.
func WithStore(store timeline.Store) Option {
	return func(m *Manager) {
		m.engine = timeline.NewEngine(store, m.cfg.SelfID, m.log)
	}
}

// NewManager creates a session for the given configuration.
func NewManager(cfg config.Config, logger zerolog.Logger, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	m := &Manager{
		cfg:          cfg,
		log:          logger.With().Str("component", "session").Logger(),
		open:         make(map[string]openConversation),
		dispatchDone: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.conn == nil {
		m.conn = transport.NewManager(transport.Options{
			URL:               cfg.SocketURL,
			HandshakeTimeout:  cfg.HandshakeTimeout,
			ReconnectAttempts: cfg.ReconnectAttempts,
			ReconnectDelay:    cfg.ReconnectDelay,
			Logger:            logger,
		})
	}

	if m.engine == nil {
		store := history.NewClient(history.Options{
			BaseURL:     cfg.RESTBaseURL,
			Token:       m.currentToken,
			SendTimeout: cfg.SendTimeout,
			Logger:      logger,
		})
		m.engine = timeline.NewEngine(store, cfg.SelfID, logger)
	}

	m.tracker = rooms.NewTracker(m.conn, logger)
	m.relay = typing.NewRelay(m.conn, logger)

	m.stateUnsub = m.conn.SubscribeState(m.onStateChange)
	go m.dispatchFrames()

	return m, nil
}

// Start implements Session.Start.
func (m *Manager) Start(ctx context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	if err := m.conn.Connect(ctx, token); err != nil {
		return fmt.Errorf("session start failed: %w", err)
	}
	return nil
}

// Stop implements Session.Stop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		for id, oc := range m.open {
			oc.cancel()
			delete(m.open, id)
		}
		m.mu.Unlock()

		if m.stateUnsub != nil {
			m.stateUnsub()
		}
		m.tracker.Close()
		m.conn.Close()
		<-m.dispatchDone
	})
}

// Reconnect implements Session.Reconnect.
func (m *Manager) Reconnect(ctx context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	if err := m.conn.Reconnect(ctx, token); err != nil {
		return fmt.Errorf("session reconnect failed: %w", err)
	}
	return nil
}

// ConnectionState implements Session.ConnectionState.
func (m *Manager) ConnectionState() transport.ConnectionState {
	return m.conn.State()
}

// OpenConversation implements Session.OpenConversation.
func (m *Manager) OpenConversation(ctx context.Context, conversationID string, kind rooms.Kind) error {
	if conversationID == "" {
		return fmt.Errorf("conversation ID cannot be empty")
	}

	m.mu.Lock()
	// One open conversation per kind, mirroring the one-room-per-kind
	// invariant below: the superseded conversation's state goes away
	// with its room.
	for id, oc := range m.open {
		if oc.kind == kind && id != conversationID {
			oc.cancel()
			delete(m.open, id)
			m.engine.Close(id)
		}
	}
	if oc, already := m.open[conversationID]; already {
		oc.cancel()
	}
	convCtx, cancel := context.WithCancel(ctx)
	m.open[conversationID] = openConversation{kind: kind, cancel: cancel}
	m.mu.Unlock()

	m.engine.Open(conversationID)
	m.tracker.Join(kind, conversationID)

	if err := m.engine.LoadHistory(convCtx, conversationID); err != nil {
		// Surfaced, not swallowed: the UI must distinguish a failed
		// fetch from an empty conversation.
		return err
	}
	return nil
}

// CloseConversation implements Session.CloseConversation.
func (m *Manager) CloseConversation(conversationID string, kind rooms.Kind) {
	m.mu.Lock()
	oc, open := m.open[conversationID]
	if open {
		oc.cancel()
		delete(m.open, conversationID)
	}
	m.mu.Unlock()

	if !open {
		return
	}
	m.tracker.Leave(kind, conversationID)
	m.engine.Close(conversationID)
}

// Send implements Session.Send.
func (m *Manager) Send(ctx context.Context, conversationID, body string) (timeline.Message, error) {
	return m.engine.Send(ctx, conversationID, body)
}

// SendTyping implements Session.SendTyping.
func (m *Manager) SendTyping(conversationID string, isTyping bool) {
	m.relay.SendTyping(conversationID, isTyping)
}

// SubscribeTimeline implements Session.SubscribeTimeline.
func (m *Manager) SubscribeTimeline(conversationID string, fn func([]timeline.Message)) func() {
	return m.engine.Subscribe(conversationID, fn)
}

// SubscribeTyping implements Session.SubscribeTyping.
func (m *Manager) SubscribeTyping(fn func(typing.Signal)) func() {
	return m.relay.Subscribe(fn)
}

// SubscribeConnectionState implements Session.SubscribeConnectionState.
func (m *Manager) SubscribeConnectionState(fn func(transport.StateEvent)) func() {
	return m.conn.SubscribeState(fn)
}

func (m *Manager) currentToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// onStateChange re-establishes session state around connection loss:
// typing state is forgotten on any drop, and rooms are re-joined after a
// recovery since membership never survives a reconnect.
func (m *Manager) onStateChange(ev transport.StateEvent) {
	if ev.Old == transport.StateConnected && ev.New != transport.StateConnected {
		m.relay.Reset()
	}
	if ev.New == transport.StateConnected && ev.Old != transport.StateConnected {
		m.rejoinOpenConversations()
	}
}

func (m *Manager) rejoinOpenConversations() {
	m.mu.Lock()
	type reopened struct {
		id   string
		kind rooms.Kind
	}
	items := make([]reopened, 0, len(m.open))
	for id, oc := range m.open {
		items = append(items, reopened{id: id, kind: oc.kind})
	}
	m.mu.Unlock()

	for _, it := range items {
		m.tracker.Join(it.kind, it.id)
		// Backfill whatever was pushed while we were gone; failure here
		// leaves the timeline as-is and gets logged, the conversation
		// stays usable.
		go func(id string) {
			if err := m.engine.LoadHistory(context.Background(), id); err != nil {
				m.log.Warn().Err(err).Str("conversation", id).
					Msg("history backfill after reconnect failed")
			}
		}(it.id)
	}
}

// dispatchFrames routes inbound transport frames to the reconciliation
// engine and the typing relay until the connection manager closes.
func (m *Manager) dispatchFrames() {
	defer close(m.dispatchDone)

	for frame := range m.conn.Frames() {
		switch frame.Event {
		case transport.EventNewDirectMessage, transport.EventNewGroupMessage:
			var msg timeline.Message
			if err := json.Unmarshal(frame.Data, &msg); err != nil {
				m.log.Debug().Err(err).Str("event", frame.Event).
					Msg("discarding malformed message frame")
				continue
			}
			m.engine.ApplyPushed(msg)

		case transport.EventTyping:
			var payload transport.TypingPayload
			if err := json.Unmarshal(frame.Data, &payload); err != nil {
				m.log.Debug().Err(err).Msg("discarding malformed typing frame")
				continue
			}
			m.relay.Apply(typing.Signal{
				ConversationID: payload.ConversationID,
				UserID:         payload.UserID,
				IsTyping:       payload.IsTyping,
			})

		case transport.EventError:
			m.log.Warn().RawJSON("data", frame.Data).Msg("server error event")

		default:
			m.log.Debug().Str("event", frame.Event).Msg("ignoring unknown event")
		}
	}
}
