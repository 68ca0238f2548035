// Package config holds the client configuration shared by the session
// layer and the binaries.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config describes how to reach the chat backend and how the connection
// should behave. Zero durations and counts fall back to the transport
// defaults; SendTimeout has no default on purpose, zero leaves send
// bounding to the HTTP layer.
type Config struct {
	// SocketURL is the WebSocket endpoint, including the namespace path.
	SocketURL string

	// RESTBaseURL is the root of the history/send REST API.
	RESTBaseURL string

	// SelfID identifies the local user; pushed copies of own messages
	// are reconciled against pending entries with it.
	SelfID string

	// HandshakeTimeout bounds the connect handshake.
	HandshakeTimeout time.Duration

	// ReconnectAttempts bounds automatic recovery after transport loss.
	ReconnectAttempts int

	// ReconnectDelay is the fixed pause between recovery attempts.
	ReconnectDelay time.Duration

	// SendTimeout, when positive, bounds each message send client-side.
	SendTimeout time.Duration
}

// Validate checks the configuration for use by a session.
func (c Config) Validate() error {
	if c.SocketURL == "" {
		return fmt.Errorf("socket URL is required")
	}
	u, err := url.Parse(c.SocketURL)
	if err != nil {
		return fmt.Errorf("invalid socket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("socket URL scheme must be ws or wss, got %q", u.Scheme)
	}

	if c.RESTBaseURL == "" {
		return fmt.Errorf("REST base URL is required")
	}
	r, err := url.Parse(c.RESTBaseURL)
	if err != nil {
		return fmt.Errorf("invalid REST base URL: %w", err)
	}
	if !strings.HasPrefix(r.Scheme, "http") {
		return fmt.Errorf("REST base URL scheme must be http or https, got %q", r.Scheme)
	}

	if c.SelfID == "" {
		return fmt.Errorf("self ID is required")
	}

	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake timeout cannot be negative")
	}
	if c.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect attempts cannot be negative")
	}
	if c.ReconnectDelay < 0 {
		return fmt.Errorf("reconnect delay cannot be negative")
	}
	if c.SendTimeout < 0 {
		return fmt.Errorf("send timeout cannot be negative")
	}

	return nil
}
