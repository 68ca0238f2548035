package devserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/curalink/chatkit/internal/transport"
)

// dialServerClient upgrades one websocket and hands back the server-side
// client, with its loops running the way handleSocket starts them.
func dialServerClient(t *testing.T) *client {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	clients := make(chan *client, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := newClient("u1", conn, newHub(), zerolog.Nop())
		go c.writeLoop()
		go c.readLoop()
		clients <- c
	}))
	t.Cleanup(ts.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = peer.Close() })

	return <-clients
}

func typingFrame(t *testing.T) transport.Frame {
	t.Helper()
	frame, err := transport.NewFrame(transport.EventTyping, transport.TypingPayload{
		ConversationID: "c1",
		UserID:         "u2",
		IsTyping:       true,
	})
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	return frame
}

func TestClientPushCloseConcurrent(t *testing.T) {
	// A broadcast racing the client's disconnect must not send on the
	// closed queue; late pushes are simply dropped.
	frame := typingFrame(t)

	for i := 0; i < 25; i++ {
		c := dialServerClient(t)

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 200; j++ {
					c.push(frame)
				}
			}()
		}
		c.close()
		wg.Wait()
	}
}

func TestClientCloseIdempotentAndPushAfterClose(t *testing.T) {
	frame := typingFrame(t)
	c := dialServerClient(t)

	c.close()
	c.close()
	c.push(frame) // dropped, not panicked on
}
