// Package history is the REST client for the message history store: a
// one-shot history fetch and the send endpoint. Both speak the backend's
// status/message/data envelope.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/curalink/chatkit/internal/timeline"
)

// Ensure Client implements the engine's store contract.
var _ timeline.Store = (*Client)(nil)

// ErrSendTimeout marks a send that exceeded the configured client-side
// timeout, as opposed to a caller-initiated cancellation.
var ErrSendTimeout = errors.New("send timed out")

// APIError is a non-success envelope from the backend. Status is the
// machine-readable code, Message the human-readable one.
type APIError struct {
	Status  string
	Message string
	Code    int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s (http %d): %s", e.Status, e.Code, e.Message)
}

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Options configures a Client.
type Options struct {
	// BaseURL is the REST root, e.g. https://api.example.com/chat.
	BaseURL string

	// Token supplies the bearer token per request, so a refreshed token
	// is picked up without rebuilding the client.
	Token func() string

	// SendTimeout, when positive, bounds each send call client-side and
	// surfaces ErrSendTimeout on expiry. Zero leaves the bound to the
	// transport's own timeout.
	SendTimeout time.Duration

	// HTTPClient overrides the default http.Client.
	HTTPClient *http.Client

	// Logger receives request diagnostics.
	Logger zerolog.Logger
}

// Client talks to the history store over HTTP.
type Client struct {
	base        string
	token       func() string
	sendTimeout time.Duration
	http        *http.Client
	log         zerolog.Logger
}

// NewClient creates a history client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	token := opts.Token
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		base:        opts.BaseURL,
		token:       token,
		sendTimeout: opts.SendTimeout,
		http:        httpClient,
		log:         opts.Logger.With().Str("component", "history").Logger(),
	}
}

// History implements timeline.Store.History.
func (c *Client) History(ctx context.Context, conversationID string) ([]timeline.Message, error) {
	endpoint := c.messagesURL(conversationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build history request: %w", err)
	}

	var msgs []timeline.Message
	if err := c.do(req, &msgs); err != nil {
		return nil, fmt.Errorf("history fetch failed: %w", err)
	}
	return msgs, nil
}

// Send implements timeline.Store.Send.
func (c *Client) Send(ctx context.Context, conversationID, body string) (timeline.Message, error) {
	sendCtx := ctx
	if c.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, c.sendTimeout)
		defer cancel()
	}

	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return timeline.Message{}, fmt.Errorf("failed to encode send request: %w", err)
	}

	endpoint := c.messagesURL(conversationID)
	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return timeline.Message{}, fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var msg timeline.Message
	if err := c.do(req, &msg); err != nil {
		// Our own timeout, not the caller's cancellation.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return timeline.Message{}, fmt.Errorf("%w after %s", ErrSendTimeout, c.sendTimeout)
		}
		return timeline.Message{}, fmt.Errorf("send failed: %w", err)
	}
	return msg, nil
}

// do executes the request, unwraps the envelope and decodes data into out.
func (c *Client) do(req *http.Request, out any) error {
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response envelope: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{Status: env.Status, Message: env.Message, Code: resp.StatusCode}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

func (c *Client) messagesURL(conversationID string) string {
	return c.base + "/conversations/" + url.PathEscape(conversationID) + "/messages"
}
