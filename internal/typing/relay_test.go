package typing

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/curalink/chatkit/internal/transport"
)

func TestRelaySendTyping(t *testing.T) {
	conn := transport.NewMockConn()
	if err := conn.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("mock Connect() error = %v", err)
	}
	r := NewRelay(conn, zerolog.Nop())

	r.SendTyping("conv-1", true)
	r.SendTyping("conv-1", false)

	frames := conn.Emitted()
	if len(frames) != 2 {
		t.Fatalf("emitted %d frames, want 2", len(frames))
	}
	first := frames[0].Data.(transport.TypingPayload)
	if first.ConversationID != "conv-1" || !first.IsTyping {
		t.Errorf("first payload = %+v, want conv-1 typing", first)
	}
	if second := frames[1].Data.(transport.TypingPayload); second.IsTyping {
		t.Errorf("second payload = %+v, want not typing", second)
	}
}

func TestRelaySendTypingWhileDisconnected(t *testing.T) {
	conn := transport.NewMockConn()
	r := NewRelay(conn, zerolog.Nop())

	r.SendTyping("conv-1", true)

	if got := len(conn.Emitted()); got != 0 {
		t.Errorf("emitted %d frames while disconnected, want 0", got)
	}
}

func TestRelayApplyNotifiesSubscribers(t *testing.T) {
	r := NewRelay(transport.NewMockConn(), zerolog.Nop())

	var got []Signal
	unsub := r.Subscribe(func(sig Signal) {
		got = append(got, sig)
	})

	r.Apply(Signal{ConversationID: "conv-1", UserID: "u2", IsTyping: true})

	if len(got) != 1 || got[0].UserID != "u2" || !got[0].IsTyping {
		t.Fatalf("received %+v, want one typing signal from u2", got)
	}
	if !r.IsTyping("u2") {
		t.Error("IsTyping(u2) = false after typing signal")
	}

	r.Apply(Signal{ConversationID: "conv-1", UserID: "u2", IsTyping: false})
	if r.IsTyping("u2") {
		t.Error("IsTyping(u2) = true after stop signal")
	}

	unsub()
	before := len(got)
	r.Apply(Signal{ConversationID: "conv-1", UserID: "u2", IsTyping: true})
	if len(got) != before {
		t.Error("subscriber notified after unsubscribe")
	}
}

func TestRelayReset(t *testing.T) {
	r := NewRelay(transport.NewMockConn(), zerolog.Nop())

	r.Apply(Signal{ConversationID: "conv-1", UserID: "u2", IsTyping: true})
	r.Reset()

	if r.IsTyping("u2") {
		t.Error("IsTyping(u2) = true after Reset")
	}
}
