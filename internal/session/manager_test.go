package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/curalink/chatkit/internal/config"
	"github.com/curalink/chatkit/internal/rooms"
	"github.com/curalink/chatkit/internal/timeline"
	"github.com/curalink/chatkit/internal/transport"
	"github.com/curalink/chatkit/internal/typing"
)

func testConfig() config.Config {
	return config.Config{
		SocketURL:   "wss://chat.example.test/ws",
		RESTBaseURL: "https://chat.example.test/api",
		SelfID:      "user-self",
	}
}

func newTestSession(t *testing.T) (*Manager, *transport.MockConn, *timeline.MockStore) {
	t.Helper()
	conn := transport.NewMockConn()
	store := timeline.NewMockStore()
	m, err := NewManager(testConfig(), zerolog.Nop(), WithConn(conn), WithStore(store))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(m.Stop)
	return m, conn, store
}

func startedSession(t *testing.T) (*Manager, *transport.MockConn, *timeline.MockStore) {
	t.Helper()
	m, conn, store := newTestSession(t)
	if err := m.Start(context.Background(), "tok"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return m, conn, store
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestManagerRejectsInvalidConfig(t *testing.T) {
	_, err := NewManager(config.Config{}, zerolog.Nop())
	if err == nil {
		t.Fatal("NewManager() accepted an empty config")
	}
}

func TestSessionOpenConversationJoinsAndLoadsHistory(t *testing.T) {
	m, conn, store := startedSession(t)

	store.HistoryFunc = func(_ context.Context, _ string) ([]timeline.Message, error) {
		return []timeline.Message{
			{ID: "m1", ConversationID: "conv-1", SenderID: "u2", Body: "hi"},
		}, nil
	}

	if err := m.OpenConversation(context.Background(), "conv-1", rooms.Direct); err != nil {
		t.Fatalf("OpenConversation() error = %v", err)
	}

	events := conn.EmittedEvents()
	if len(events) != 1 || events[0] != transport.EventJoinDirectRoom {
		t.Errorf("emitted %v, want a single join-direct-room", events)
	}

	var got []timeline.Message
	unsub := m.SubscribeTimeline("conv-1", func(msgs []timeline.Message) { got = msgs })
	defer unsub()
	if len(got) != 1 || got[0].Body != "hi" {
		t.Errorf("replayed timeline = %+v, want [hi]", got)
	}
}

func TestSessionHistoryFailureSurfaced(t *testing.T) {
	m, _, store := startedSession(t)

	store.HistoryFunc = func(_ context.Context, _ string) ([]timeline.Message, error) {
		return nil, errors.New("backend down")
	}

	err := m.OpenConversation(context.Background(), "conv-1", rooms.Direct)
	var histErr *timeline.HistoryError
	if !errors.As(err, &histErr) {
		t.Fatalf("OpenConversation() error = %v, want *timeline.HistoryError", err)
	}
}

func TestSessionSendAndPushRoundTrip(t *testing.T) {
	m, conn, store := startedSession(t)

	if err := m.OpenConversation(context.Background(), "conv-1", rooms.Direct); err != nil {
		t.Fatalf("OpenConversation() error = %v", err)
	}

	store.SendFunc = func(_ context.Context, conversationID, body string) (timeline.Message, error) {
		return timeline.Message{ID: "m2", ConversationID: conversationID, SenderID: "user-self", Body: body}, nil
	}
	if _, err := m.Send(context.Background(), "conv-1", "yo"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// A remote participant's message arrives over the socket.
	frame, err := transport.NewFrame(transport.EventNewDirectMessage, timeline.Message{
		ID: "m3", ConversationID: "conv-1", SenderID: "u2", Body: "reply",
	})
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	conn.SimulateFrame(frame)

	waitFor(t, func() bool {
		tl := m.engine.Timeline("conv-1")
		return len(tl) == 2 && tl[1].Body == "reply"
	}, "pushed message never reached the timeline")

	tl := m.engine.Timeline("conv-1")
	if tl[0].ID != "m2" || tl[0].Status != timeline.StatusConfirmed {
		t.Errorf("first entry = %+v, want confirmed m2", tl[0])
	}
}

func TestSessionTypingRoundTrip(t *testing.T) {
	m, conn, _ := startedSession(t)

	sigCh := make(chan typing.Signal, 1)
	unsub := m.SubscribeTyping(func(sig typing.Signal) { sigCh <- sig })
	defer unsub()

	m.SendTyping("conv-1", true)
	events := conn.EmittedEvents()
	if len(events) != 1 || events[0] != transport.EventTyping {
		t.Errorf("emitted %v, want a single typing frame", events)
	}

	frame, err := transport.NewFrame(transport.EventTyping, transport.TypingPayload{
		ConversationID: "conv-1", UserID: "u2", IsTyping: true,
	})
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	conn.SimulateFrame(frame)

	select {
	case sig := <-sigCh:
		if sig.UserID != "u2" || !sig.IsTyping {
			t.Errorf("signal = %+v, want u2 typing", sig)
		}
	case <-time.After(time.Second):
		t.Fatal("typing signal never delivered")
	}
}

func TestSessionOpenSameKindSupersedes(t *testing.T) {
	m, conn, _ := startedSession(t)

	if err := m.OpenConversation(context.Background(), "conv-A", rooms.Direct); err != nil {
		t.Fatalf("OpenConversation(A) error = %v", err)
	}
	if err := m.OpenConversation(context.Background(), "conv-B", rooms.Direct); err != nil {
		t.Fatalf("OpenConversation(B) error = %v", err)
	}

	want := []string{
		transport.EventJoinDirectRoom,
		transport.EventLeaveDirectRoom,
		transport.EventJoinDirectRoom,
	}
	got := conn.EmittedEvents()
	if len(got) != len(want) {
		t.Fatalf("emitted %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("emitted %v, want %v", got, want)
		}
	}

	if tl := m.engine.Timeline("conv-A"); tl != nil {
		t.Errorf("superseded conversation still has state: %v", tl)
	}
}

func TestSessionCloseConversationLeavesRoom(t *testing.T) {
	m, conn, _ := startedSession(t)

	if err := m.OpenConversation(context.Background(), "g1", rooms.Group); err != nil {
		t.Fatalf("OpenConversation() error = %v", err)
	}
	m.CloseConversation("g1", rooms.Group)

	events := conn.EmittedEvents()
	if len(events) != 2 || events[1] != transport.EventLeaveGroupRoom {
		t.Errorf("emitted %v, want join then leave", events)
	}

	// Closing again is a no-op.
	m.CloseConversation("g1", rooms.Group)
	if got := len(conn.EmittedEvents()); got != 2 {
		t.Errorf("emitted %d frames after double close, want 2", got)
	}
}

func TestSessionRejoinsRoomsAfterReconnect(t *testing.T) {
	m, conn, store := startedSession(t)

	if err := m.OpenConversation(context.Background(), "conv-1", rooms.Direct); err != nil {
		t.Fatalf("OpenConversation() error = %v", err)
	}

	store.HistoryFunc = func(_ context.Context, _ string) ([]timeline.Message, error) {
		return []timeline.Message{
			{ID: "m1", ConversationID: "conv-1", SenderID: "u2", Body: "missed while away"},
		}, nil
	}

	// Drop and recover.
	conn.SimulateState(transport.StateReconnecting, nil)
	conn.SimulateState(transport.StateConnected, nil)

	waitFor(t, func() bool {
		events := conn.EmittedEvents()
		return len(events) >= 2 && events[len(events)-1] == transport.EventJoinDirectRoom
	}, "room never re-joined after reconnect")

	waitFor(t, func() bool {
		tl := m.engine.Timeline("conv-1")
		return len(tl) == 1 && tl[0].Body == "missed while away"
	}, "history never backfilled after reconnect")
}

func TestSessionConnectionStateReplay(t *testing.T) {
	m, _, _ := startedSession(t)

	stateCh := make(chan transport.ConnectionState, 1)
	unsub := m.SubscribeConnectionState(func(ev transport.StateEvent) {
		select {
		case stateCh <- ev.New:
		default:
		}
	})
	defer unsub()

	select {
	case s := <-stateCh:
		if s != transport.StateConnected {
			t.Errorf("replayed state = %s, want %s", s, transport.StateConnected)
		}
	case <-time.After(time.Second):
		t.Fatal("state never replayed to subscriber")
	}
}
