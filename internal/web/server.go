// Package web implements the HTTP surface for steward: session
// lifecycle, turn processing, note browsing, and a per-session
// WebSocket stream of interim events.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yuin/goldmark"

	"github.com/steward-agent/steward/internal/notes"
	"github.com/steward-agent/steward/internal/session"
)

// Server is the HTTP API server.
type Server struct {
	addr    string
	logger  *slog.Logger
	manager *session.Manager
	store   *notes.Store
	server  *http.Server

	upgrader websocket.Upgrader
}

// NewServer creates an API server over the given session registry and
// note store.
func NewServer(addr string, logger *slog.Logger, manager *session.Manager, store *notes.Store) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		logger:  logger,
		manager: manager,
		store:   store,
		upgrader: websocket.Upgrader{
			// Local single-user tool; cross-origin browsers are fine.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routed handler. Split from Start so tests can
// mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sessions", s.handleSessionCreate)
	mux.HandleFunc("GET /api/sessions", s.handleSessionList)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleSessionDispose)
	mux.HandleFunc("POST /api/sessions/{id}/turns", s.handleTurn)
	mux.HandleFunc("GET /api/sessions/{id}/report", s.handleReport)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleEvents)

	mux.HandleFunc("GET /api/notes", s.handleNotes)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket streams are long-lived
	}
	s.logger.Info("starting web server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// writeJSON encodes v to w. Encoding errors usually mean the client
// disconnected mid-response; log and move on.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// sessionInfo is the wire form of a registered session.
type sessionInfo struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Create()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("create session: %v", err))
		return
	}
	s.writeJSON(w, http.StatusCreated, sessionInfo{SessionID: sess.ID, CreatedAt: sess.CreatedAt})
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	sessions := s.manager.List()
	out := make([]sessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionInfo{SessionID: sess.ID, CreatedAt: sess.CreatedAt})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleSessionDispose(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.manager.Get(id); !ok {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.manager.Dispose(id)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "disposed"})
}

// turnRequest is one user turn submitted over HTTP.
type turnRequest struct {
	Input string `json:"input"`
	Mode  string `json:"mode"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.Input == "" {
		s.writeError(w, http.StatusBadRequest, "input is required")
		return
	}

	response := sess.Orchestrator.HandleTurn(r.Context(), req.Input, req.Mode)
	s.writeJSON(w, http.StatusOK, map[string]string{"response": response})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Orchestrator.Report())
}

// handleEvents upgrades to a WebSocket and streams the session's
// retained events followed by live ones until the client disconnects or
// the session is disposed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := sess.Bus.Subscribe(64)
	defer sess.Bus.Unsubscribe(ch)

	for _, e := range sess.Bus.Recent() {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}

	// Drain client frames so close handshakes are noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e, open := <-ch:
			if !open {
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// noteView is the wire form of a note, optionally carrying rendered
// HTML for the content.
type noteView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	HTML      string    `json:"html,omitempty"`
	Type      string    `json:"type"`
	Tags      []string  `json:"tags,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleNotes lists or searches notes. Query parameters: q (search
// text), type (note type filter), limit, format=html to render note
// content from markdown.
func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	noteType := notes.Type(q.Get("type"))

	var (
		ns  []*notes.Note
		err error
	)
	if search := q.Get("q"); search != "" {
		ns, err = s.store.Search(search, noteType, limit)
	} else {
		ns, err = s.store.List(noteType, limit)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("load notes: %v", err))
		return
	}

	renderHTML := q.Get("format") == "html"
	out := make([]noteView, 0, len(ns))
	for _, n := range ns {
		v := noteView{
			ID:        n.ID,
			Title:     n.Title,
			Content:   n.Content,
			Type:      string(n.Type),
			Tags:      n.Tags,
			UpdatedAt: n.UpdatedAt,
		}
		if renderHTML {
			var buf bytes.Buffer
			if err := goldmark.Convert([]byte(n.Content), &buf); err != nil {
				s.logger.Warn("markdown render failed", "note", n.ID, "error", err)
			} else {
				v.HTML = buf.String()
			}
		}
		out = append(out, v)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"notes": out})
}
