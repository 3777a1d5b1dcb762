package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sidekickd/sidekick/internal/storage"
)

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "conversation storage disabled", http.StatusServiceUnavailable)
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	summaries, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"conversations": summaries})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "conversation storage disabled", http.StatusServiceUnavailable)
		return
	}
	conv, err := s.store.Conversation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, "conversation not found", http.StatusNotFound)
			return
		}
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "conversation storage disabled", http.StatusServiceUnavailable)
		return
	}
	if err := s.store.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"deleted": true})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.settings.Get())
}

// handlePutSettings applies a partial update: each key in the body is
// written through the settings store, which persists and notifies
// watchers.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	for key, value := range updates {
		if err := s.settings.Set(key, value); err != nil {
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	s.writeJSON(w, s.settings.Get())
}
