package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/curalink/chatkit/internal/timeline"
)

func writeEnvelope(w http.ResponseWriter, code int, status, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

func TestClientHistory(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/conversations/conv-1/messages" {
			t.Errorf("path = %s, want /conversations/conv-1/messages", r.URL.Path)
		}
		writeEnvelope(w, http.StatusOK, "ok", "", []timeline.Message{
			{ID: "m1", ConversationID: "conv-1", SenderID: "u2", Body: "hi"},
			{ID: "m2", ConversationID: "conv-1", SenderID: "u2", Body: "there"},
		})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Token: func() string { return "tok-1" }})

	msgs, err := c.History(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].Body != "there" {
		t.Errorf("History() = %+v, want the two served messages in order", msgs)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok-1")
	}
}

func TestClientHistoryAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusNotFound, "not_found", "no such conversation", nil)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})

	_, err := c.History(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("History() error = %v, want *APIError", err)
	}
	if apiErr.Status != "not_found" || apiErr.Code != http.StatusNotFound {
		t.Errorf("APIError = %+v, want status not_found http 404", apiErr)
	}
}

func TestClientSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		writeEnvelope(w, http.StatusCreated, "ok", "", timeline.Message{
			ID: "m7", ConversationID: "conv-1", SenderID: "u1", Body: req["body"],
		})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})

	msg, err := c.Send(context.Background(), "conv-1", "yo")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.ID != "m7" || msg.Body != "yo" {
		t.Errorf("Send() = %+v, want id m7 body yo", msg)
	}
}

func TestClientSendTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeEnvelope(w, http.StatusCreated, "ok", "", nil)
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Options{BaseURL: srv.URL, SendTimeout: 20 * time.Millisecond})

	_, err := c.Send(context.Background(), "conv-1", "slow")
	if !errors.Is(err, ErrSendTimeout) {
		t.Fatalf("Send() error = %v, want ErrSendTimeout", err)
	}
}

func TestClientSendCallerCancellation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		writeEnvelope(w, http.StatusCreated, "ok", "", nil)
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Options{BaseURL: srv.URL, SendTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := c.Send(ctx, "conv-1", "aborted")
	if errors.Is(err, ErrSendTimeout) {
		t.Fatalf("Send() error = %v, caller cancellation must not look like a timeout", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Send() error = %v, want context.Canceled in the chain", err)
	}
}
