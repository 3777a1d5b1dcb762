// Package api exposes the engines over localhost HTTP: REST for
// session and settings control, WebSocket for stream and speech
// events. The server trusts only localhost origins.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/sidekickd/sidekick/internal/config"
	"github.com/sidekickd/sidekick/internal/markdown"
	"github.com/sidekickd/sidekick/internal/session"
	"github.com/sidekickd/sidekick/internal/storage"
)

// Server is the HTTP front for one daemon process.
type Server struct {
	settings    *config.Store
	manager     *session.Manager
	store       *storage.Store
	renderer    *markdown.Renderer
	connections *connectionManager
	upgrader    websocket.Upgrader
	logger      *log.Logger
	httpServer  *http.Server
}

// NewServer wires the API onto an existing session manager. The store
// may be nil when conversation browsing is disabled.
func NewServer(settings *config.Store, manager *session.Manager, store *storage.Store, logger *log.Logger) *Server {
	renderer, err := markdown.NewRenderer(settings.Get().Theme, 0)
	if err != nil {
		logger.Warn("terminal renderer unavailable", "error", err)
	}
	return &Server{
		settings:    settings,
		manager:     manager,
		store:       store,
		renderer:    renderer,
		connections: newConnectionManager(),
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return isLocalOrigin(r)
			},
		},
	}
}

// isLocalOrigin accepts requests with no Origin header or a localhost
// one. Browser extensions send extension origins, which also pass.
func isLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, prefix := range []string{
		"http://localhost:", "http://127.0.0.1:", "http://[::1]:",
		"chrome-extension://", "moz-extension://",
	} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// Start listens on the given port until Stop or a listener error.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	s.logger.Info("starting API server", "addr", addr)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.setupRoutes(),
	}
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Routes exposes the router for tests.
func (s *Server) Routes() *mux.Router {
	return s.setupRoutes()
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.corsMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Session lifecycle
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.handleCloseSession).Methods("DELETE")

	// Page context and transcripts
	api.HandleFunc("/sessions/{id}/page", s.handleUsePage).Methods("POST")
	api.HandleFunc("/sessions/{id}/page", s.handleDiscardPage).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/transcript", s.handleTranscript).Methods("POST")

	// Conversation state
	api.HandleFunc("/sessions/{id}/commands", s.handleCommandMatches).Methods("GET")
	api.HandleFunc("/sessions/{id}/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/sessions/{id}/history", s.handleClear).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/export", s.handleExport).Methods("GET")

	// Speech control; playback state arrives on the WebSocket
	api.HandleFunc("/sessions/{id}/speech", s.handleSpeak).Methods("POST")
	api.HandleFunc("/sessions/{id}/speech/pause", s.handleSpeechPause).Methods("POST")
	api.HandleFunc("/sessions/{id}/speech/resume", s.handleSpeechResume).Methods("POST")
	api.HandleFunc("/sessions/{id}/speech", s.handleSpeechStop).Methods("DELETE")
	api.HandleFunc("/speech/voices", s.handleVoices).Methods("GET")

	// WebSocket for streaming chat and playback events
	api.HandleFunc("/sessions/{id}/ws", s.handleSessionWebSocket)

	// Saved conversations
	api.HandleFunc("/conversations", s.handleListConversations).Methods("GET")
	api.HandleFunc("/conversations/{id}", s.handleGetConversation).Methods("GET")
	api.HandleFunc("/conversations/{id}", s.handleDeleteConversation).Methods("DELETE")

	// Settings
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handlePutSettings).Methods("PUT")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	return router
}

// corsMiddleware adds CORS headers for localhost and extension pages.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && isLocalOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sessionFrom resolves the {id} path variable, writing a 404 on miss.
func (s *Server) sessionFrom(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := s.manager.Get(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, "session not found", http.StatusNotFound)
	}
	return sess, ok
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":   "healthy",
		"sessions": s.manager.Len(),
	})
}
