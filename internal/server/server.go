// Package server exposes the HTTP API: chat, memory browsing/search, and a
// websocket event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hikaru/kioku/internal/observability"
	"github.com/hikaru/kioku/pkg/chat"
	"github.com/hikaru/kioku/pkg/memory"
	"github.com/rs/zerolog"
)

// Server is the Kioku HTTP server.
type Server struct {
	port        int
	authToken   string
	engine      *memory.Engine
	chatService *chat.Service
	chatStore   *chat.Store
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
	server      *http.Server
	logger      zerolog.Logger

	shutdownMu     sync.RWMutex
	isShuttingDown bool
}

// Config holds server configuration.
type Config struct {
	Port        int
	AuthToken   string
	Engine      *memory.Engine
	ChatService *chat.Service
	ChatStore   *chat.Store
	Logger      zerolog.Logger
}

// NewServer creates a new server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.AuthToken == "" {
		return nil, errors.New("auth token is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("memory engine is required")
	}
	if cfg.ChatService == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.ChatStore == nil {
		return nil, errors.New("chat store is required")
	}

	s := &Server{
		port:        cfg.Port,
		authToken:   cfg.AuthToken,
		engine:      cfg.Engine,
		chatService: cfg.ChatService,
		chatStore:   cfg.ChatStore,
		broadcaster: NewBroadcaster(cfg.Logger),
		logger:      cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // first-party clients only; auth happens in the handler
			},
		},
	}

	return s, nil
}

// Routes builds the request multiplexer. Exposed for handler tests.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.instrumented("chat", s.authenticated(s.handleChat)))
	mux.HandleFunc("GET /api/conversations", s.instrumented("conversations.list", s.authenticated(s.handleListConversations)))
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.instrumented("conversations.messages", s.authenticated(s.handleListMessages)))
	mux.HandleFunc("DELETE /api/conversations/{id}", s.instrumented("conversations.delete", s.authenticated(s.handleDeleteConversation)))

	mux.HandleFunc("GET /api/memories", s.instrumented("memories.list", s.authenticated(s.handleListMemories)))
	mux.HandleFunc("POST /api/memories/search", s.instrumented("memories.search", s.authenticated(s.handleSearchMemories)))
	mux.HandleFunc("DELETE /api/memories/{id}", s.instrumented("memories.delete", s.authenticated(s.handleDeleteMemory)))
	mux.HandleFunc("POST /api/memories/{id}/access", s.instrumented("memories.access", s.authenticated(s.handleRecordAccess)))

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return mux
}

// instrumented counts requests per route by status class. The websocket
// route is not wrapped: the recorder would hide the http.Hijacker the
// upgrade needs.
func (s *Server) instrumented(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		observability.RecordHTTPRequest(route, fmt.Sprintf("%dxx", sw.status/100))
	}
}

// statusWriter remembers the first status code written.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wrote {
		w.status = status
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(status)
}

// Start starts serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Int("port", s.port).Msg("HTTP server listening")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.broadcaster.CloseAll()

	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Broadcaster exposes the event broadcaster so composition code can feed it.
func (s *Server) Broadcaster() *Broadcaster {
	return s.broadcaster
}
