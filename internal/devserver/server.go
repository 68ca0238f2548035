// Package devserver is an in-memory chat backend implementing the wire
// contract the SDK speaks: the websocket event endpoint plus the REST
// history/send API. It exists so the client can be exercised end to end
// locally; it is a fixture, not a production server.
package devserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/curalink/chatkit/internal/transport"
)

// Server serves the chat wire contract backed by in-memory state.
type Server struct {
	secret []byte
	log    zerolog.Logger
	hub    *hub
	store  *memoryStore

	upgrader websocket.Upgrader
}

// New creates a dev server. secret signs and validates bearer tokens.
func New(secret []byte, logger zerolog.Logger) *Server {
	return &Server{
		secret: secret,
		log:    logger.With().Str("component", "devserver").Logger(),
		hub:    newHub(),
		store:  newMemoryStore(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler: /ws for the socket, /api for REST.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleSocket)
	r.Route("/api", func(r chi.Router) {
		r.Get("/conversations/{conversationID}/messages", s.handleHistory)
		r.Post("/conversations/{conversationID}/messages", s.handleSend)
	})
	return r
}

// handleSocket upgrades the connection and runs the handshake: the
// bearer token is validated from the upgrade request, then the client
// gets a connect ack or a connect_error with the reason.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	userID, authErr := userFromBearer(s.secret, r.Header.Get("Authorization"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	if authErr != nil {
		reject, frameErr := transport.NewFrame(transport.EventConnectError,
			transport.ConnectErrorPayload{Reason: "authentication failed"})
		if frameErr == nil {
			_ = conn.WriteJSON(reject)
		}
		_ = conn.Close()
		return
	}

	ack, err := transport.NewFrame(transport.EventConnect, nil)
	if err != nil {
		_ = conn.Close()
		return
	}
	if err := conn.WriteJSON(ack); err != nil {
		_ = conn.Close()
		return
	}

	c := newClient(userID, conn, s.hub, s.log)
	s.log.Info().Str("user", userID).Msg("client connected")
	go c.writeLoop()
	go c.readLoop()
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if _, err := userFromBearer(s.secret, r.Header.Get("Authorization")); err != nil {
		writeEnvelope(w, http.StatusUnauthorized, "unauthorized", "authentication failed", nil)
		return
	}

	conversationID := chi.URLParam(r, "conversationID")
	writeEnvelope(w, http.StatusOK, "ok", "", s.store.history(conversationID))
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromBearer(s.secret, r.Header.Get("Authorization"))
	if err != nil {
		writeEnvelope(w, http.StatusUnauthorized, "unauthorized", "authentication failed", nil)
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Body == "" {
		writeEnvelope(w, http.StatusBadRequest, "bad_request", "message body is required", nil)
		return
	}

	conversationID := chi.URLParam(r, "conversationID")
	msg := s.store.append(conversationID, userID, req.Body)

	// Push to everyone in the room, sender included: the sender's own
	// push racing its send acknowledgement is part of the contract the
	// client reconciles.
	kind := s.hub.kindOf(conversationID)
	frame, frameErr := transport.NewFrame(kind.messageEvent(), msg)
	if frameErr == nil {
		s.hub.broadcast(conversationID, frame, nil)
	}

	writeEnvelope(w, http.StatusCreated, "ok", "", msg)
}

func writeEnvelope(w http.ResponseWriter, code int, status, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"message": message,
		"data":    data,
	})
}
