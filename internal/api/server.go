// Package api serves the session API over HTTP/JSON and provides a client
// for it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"coauthor/internal/config"
	"coauthor/internal/event"
	"coauthor/internal/store"
)

const (
	maxBodyLen   = 8 << 20 // 8 MiB; a long session log is several MiB.
	maxJSONDepth = 100
)

// SessionEvent is a lightweight notification of session activity, for the
// banner and operator output.
type SessionEvent struct {
	Action     string // "start", "save" or "end"
	SessionID  string
	AccessCode string
	Events     int
	Timestamp  time.Time
}

// CatalogLoader returns the current access-code catalog. It is called on
// every start_session so config edits apply without a restart.
type CatalogLoader func() (*config.Catalog, error)

type active struct {
	session  store.Session
	lastSeen time.Time
}

// Server is the HTTP session API.
type Server struct {
	store   store.LogStore
	indexer store.Indexer // nil disables the search mirror
	catalog CatalogLoader
	logger  *slog.Logger
	mux     *http.ServeMux
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*active

	started   atomic.Int64
	saved     atomic.Int64
	ended     atomic.Int64
	errors    atomic.Int64
	lastEvent atomic.Value // stores time.Time
	onSession func(SessionEvent)
}

// New creates a Server wired to the given LogStore and catalog.
func New(s store.LogStore, catalog CatalogLoader) *Server {
	srv := &Server{
		store:    s,
		catalog:  catalog,
		logger:   slog.Default(),
		now:      time.Now,
		sessions: make(map[string]*active),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/start_session", srv.handleStart)
	mux.HandleFunc("/api/end_session", srv.handleEnd)
	mux.HandleFunc("/api/save_log", srv.handleSave)
	mux.HandleFunc("/api/get_log", srv.handleGetLog)
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/stats", srv.handleStats)
	srv.mux = mux
	return srv
}

// SetIndexer mirrors every saved log into idx. Index failures are logged
// and never fail the request.
func (s *Server) SetIndexer(idx store.Indexer) { s.indexer = idx }

// SetLogger replaces the diagnostic logger.
func (s *Server) SetLogger(l *slog.Logger) { s.logger = l }

// SetOnSession registers a callback invoked after each start, save and end.
// The callback must be non-blocking.
func (s *Server) SetOnSession(fn func(SessionEvent)) { s.onSession = fn }

// ErrCount returns the atomic error counter for direct reads.
func (s *Server) ErrCount() *atomic.Int64 { return &s.errors }

// Handler returns the HTTP handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.mux }

// ActiveSessions returns the number of sessions started since launch.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !s.decode(w, r, &req) {
		return
	}

	cat, err := s.catalog()
	if err != nil {
		s.errors.Add(1)
		s.logger.Error("load catalog", "err", err)
		jsonError(w, "configuration unavailable", http.StatusInternalServerError)
		return
	}

	cfg, ok := cat.AccessCodes[req.AccessCode]
	if !ok {
		code := req.AccessCode
		if code == "" {
			code = "(not provided)"
		}
		s.logger.Info("invalid access code", "access_code", code)
		writeJSON(w, http.StatusOK, StartResponse{
			Message: fmt.Sprintf("Invalid access code: %s. Please check your access code in URL.", code),
		})
		return
	}

	example, ok := cat.Examples[cfg.Example]
	if !ok {
		s.logger.Warn("unknown example", "access_code", cfg.Code, "example", cfg.Example)
	}
	prompt, ok := cat.Prompts[cfg.Prompt]
	if !ok {
		s.logger.Warn("unknown prompt", "access_code", cfg.Code, "prompt", cfg.Prompt)
	}

	id := uuid.NewString()
	sess := store.Session{
		ID:               id,
		AccessCode:       cfg.Code,
		VerificationCode: id,
		StartedAt:        s.now().UTC(),
		Config:           cfg,
	}
	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		s.errors.Add(1)
		s.logger.Error("create session", "session_id", id, "err", err)
		jsonError(w, "storage failed", http.StatusServiceUnavailable)
		return
	}

	s.mu.Lock()
	s.sessions[id] = &active{session: sess, lastSeen: sess.StartedAt}
	s.mu.Unlock()
	s.started.Add(1)
	s.notify(SessionEvent{Action: "start", SessionID: id, AccessCode: cfg.Code})

	writeJSON(w, http.StatusOK, StartResponse{
		Status:      true,
		SessionID:   id,
		ExampleText: example,
		PromptText:  prompt,
		AccessCode:  cfg,
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req LogRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		s.errors.Add(1)
		jsonError(w, "missing sessionId", http.StatusBadRequest)
		return
	}
	if err := s.saveLog(r.Context(), &req); err != nil {
		writeJSON(w, http.StatusOK, SaveResponse{Message: err.Error()})
		return
	}
	s.saved.Add(1)
	s.notify(SessionEvent{Action: "save", SessionID: req.SessionID, Events: len(req.Logs)})
	writeJSON(w, http.StatusOK, SaveResponse{Status: true, Events: len(req.Logs)})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req LogRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		s.errors.Add(1)
		jsonError(w, "missing sessionId", http.StatusBadRequest)
		return
	}

	var resp EndResponse
	if err := s.saveLog(r.Context(), &req); err != nil {
		resp.Message = err.Error()
	} else {
		resp.Status = true
	}
	resp.VerificationCode = s.verificationCode(r.Context(), req.SessionID)

	s.ended.Add(1)
	s.notify(SessionEvent{Action: "end", SessionID: req.SessionID, Events: len(req.Logs)})
	writeJSON(w, http.StatusOK, resp)
}

// verificationCode looks the session up in memory, then in the store.
// Sessions stay registered after ending because clients may end twice.
func (s *Server) verificationCode(ctx context.Context, id string) string {
	s.mu.Lock()
	a, ok := s.sessions[id]
	if ok {
		a.lastSeen = s.now()
	}
	s.mu.Unlock()
	if ok {
		return a.session.VerificationCode
	}

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		s.logger.Warn("end of unknown session", "session_id", id, "err", err)
		return ServerErrorCode
	}
	return sess.VerificationCode
}

func (s *Server) saveLog(ctx context.Context, req *LogRequest) error {
	// Client logs pass through the same rules as a live Log: no skip or
	// anonymous entries, timestamps non-decreasing.
	req.Logs = event.NewLogFrom(req.Logs, s.logger).Events()
	if err := s.store.SaveLog(ctx, req.SessionID, req.Logs); err != nil {
		s.errors.Add(1)
		s.logger.Error("save log", "session_id", req.SessionID, "err", err)
		return fmt.Errorf("save log: %w", err)
	}
	s.lastEvent.Store(s.now())

	s.mu.Lock()
	if a, ok := s.sessions[req.SessionID]; ok {
		a.lastSeen = s.now()
	}
	s.mu.Unlock()

	if s.indexer != nil {
		if err := s.indexer.IndexLog(ctx, req.SessionID, req.Logs); err != nil {
			s.logger.Warn("search index write failed", "session_id", req.SessionID, "err", err)
		}
	}
	return nil
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	var req GetLogRequest
	if !s.decode(w, r, &req) {
		return
	}

	events, err := s.store.GetLog(r.Context(), req.SessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.errors.Add(1)
			s.logger.Error("get log", "session_id", req.SessionID, "err", err)
		}
		writeJSON(w, http.StatusOK, GetLogResponse{Message: err.Error()})
		return
	}

	resp := GetLogResponse{
		Status: true,
		Logs:   events,
		Stats:  &Stats{EventCounter: event.Stats(events)},
	}
	last := event.LastText(events)
	resp.LastText = &last
	if sess, err := s.store.GetSession(r.Context(), req.SessionID); err == nil {
		resp.Config = &sess.Config
	} else {
		s.logger.Info("no metadata for log", "session_id", req.SessionID, "err", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]interface{}{
		"started":  s.started.Load(),
		"saved":    s.saved.Load(),
		"ended":    s.ended.Load(),
		"errors":   s.errors.Load(),
		"sessions": s.ActiveSessions(),
	}
	if last := s.lastEvent.Load(); last != nil {
		if t, ok := last.(time.Time); ok {
			resp["last_event"] = t.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) notify(e SessionEvent) {
	if s.onSession == nil {
		return
	}
	e.Timestamp = s.now()
	s.onSession(e)
}

// decode reads a POSTed JSON body into v, writing the error response and
// returning false when it cannot.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyLen+1))
	if err != nil {
		s.errors.Add(1)
		jsonError(w, "failed to read body", http.StatusBadRequest)
		return false
	}
	if len(body) > maxBodyLen {
		s.errors.Add(1)
		jsonError(w, "body too large", http.StatusRequestEntityTooLarge)
		return false
	}
	if len(body) == 0 {
		s.errors.Add(1)
		jsonError(w, "empty body", http.StatusBadRequest)
		return false
	}
	if err := checkJSONDepth(body, maxJSONDepth); err != nil {
		s.errors.Add(1)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.errors.Add(1)
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// jsonError writes a JSON error response with the correct Content-Type.
func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// checkJSONDepth scans raw JSON tokens to reject payloads that exceed maxDepth
// nesting levels.
func checkJSONDepth(data []byte, maxDepth int) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		t, err := dec.Token()
		if err != nil {
			return nil // io.EOF or parse error; Unmarshal reports it
		}
		switch t {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > maxDepth {
				return fmt.Errorf("JSON nesting exceeds maximum depth of %d", maxDepth)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
