package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sidekickd/sidekick/internal/config"
	"github.com/sidekickd/sidekick/internal/transcript"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.manager.Create()
	s.writeJSON(w, map[string]any{
		"id":        sess.ID,
		"createdAt": sess.CreatedAt,
	})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.manager.Close(r.Context(), id) {
		s.writeError(w, "session not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]any{"closed": true})
}

type pageRequest struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
	// Mode "article" asks for markdown conversion of the main content
	// instead of flattened page text.
	Mode string `json:"mode,omitempty"`
}

func (s *Server) handleUsePage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	var req pageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pc, attached, err := sess.UsePage(r.Context(), transcript.Page{URL: req.URL, HTML: req.HTML}, req.Mode)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.writeJSON(w, map[string]any{
		"attached": attached,
		"context":  pc,
	})
}

func (s *Server) handleDiscardPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	sess.DiscardPage()
	s.writeJSON(w, map[string]any{"discarded": true})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	var req pageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, sess.Transcript(r.Context(), transcript.Page{URL: req.URL, HTML: req.HTML}))
}

// handleCommandMatches serves slash-command autocomplete: the matches
// for the partial the user has typed, or the full table for "/".
func (s *Server) handleCommandMatches(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	partial := r.URL.Query().Get("partial")
	if partial == "" {
		partial = "/"
	}
	matches := sess.Chat().Commands().Matches(partial)
	if matches == nil {
		matches = []config.Command{}
	}
	s.writeJSON(w, map[string]any{"commands": matches})
}

type historyTurn struct {
	Role   string `json:"role"`
	Text   string `json:"text"`
	Images int    `json:"images,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	history := sess.Chat().History()
	turns := make([]historyTurn, 0, len(history))
	for _, msg := range history {
		turns = append(turns, historyTurn{
			Role:   msg.Role,
			Text:   msg.TextContent(),
			Images: msg.ImageCount(),
		})
	}
	s.writeJSON(w, map[string]any{
		"turns":     turns,
		"streaming": sess.Chat().IsStreaming(),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Chat().Clear()
	s.writeJSON(w, map[string]any{"cleared": true})
}

// handleExport returns the conversation as markdown, or rendered for a
// terminal when render=terminal is passed.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	md := sess.ExportMarkdown()

	if r.URL.Query().Get("render") == "terminal" && s.renderer != nil {
		rendered, err := s.renderer.Render(md)
		if err == nil {
			md = rendered
		}
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(md))
}
