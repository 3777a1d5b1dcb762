package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sidekickd/sidekick/internal/speech"
)

type speakRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// handleSpeak starts playback of one message. State transitions are
// delivered over the session's WebSocket as speech_state events.
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := sess.Speak(req.ID, req.Text, s.speechCallback(sess.ID, req.ID))
	if err != nil {
		if errors.Is(err, speech.ErrUnsupported) {
			s.writeError(w, err.Error(), http.StatusConflict)
			return
		}
		s.writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.writeJSON(w, map[string]any{"playing": true, "id": req.ID})
}

func (s *Server) handleSpeechPause(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Speech().Pause()
	s.writeJSON(w, map[string]any{"paused": true})
}

func (s *Server) handleSpeechResume(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Speech().Resume()
	s.writeJSON(w, map[string]any{"resumed": true})
}

func (s *Server) handleSpeechStop(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Speech().Stop()
	s.writeJSON(w, map[string]any{"stopped": true})
}

// handleVoices lists local voices always, cloud voices when an API key
// is configured. A cloud listing failure degrades to local-only.
func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"local": s.manager.LocalVoices(),
	}
	if apiKey := s.settings.Get().Speech.CloudAPIKey; apiKey != "" {
		cloud, err := speech.NewCloudClient(apiKey, "").Voices(r.Context())
		if err != nil {
			s.logger.Warn("listing cloud voices failed", "error", err)
		} else {
			response["cloud"] = cloud
		}
	}
	s.writeJSON(w, response)
}
