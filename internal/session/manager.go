package session

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sidekickd/sidekick/internal/chat"
	"github.com/sidekickd/sidekick/internal/config"
	"github.com/sidekickd/sidekick/internal/pagecontext"
	"github.com/sidekickd/sidekick/internal/speech"
	"github.com/sidekickd/sidekick/internal/storage"
	"github.com/sidekickd/sidekick/internal/transcript"
)

// Deps are the process-wide collaborators shared by all sessions.
// Store and Exporter may be nil, in which case persistence and
// auto-save are disabled. Local, Player and Captions may be nil when
// the host has no speech or caption integration.
type Deps struct {
	Settings *config.Store
	Local    speech.LocalSynthesizer
	Player   speech.Player
	Captions transcript.CaptionController
	Store    *storage.Store
	Exporter *storage.Exporter
	Logger   *log.Logger
}

// Manager creates sessions and tracks the live set.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a manager. A nil Logger falls back to the default.
func NewManager(deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Manager{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Create builds a fresh session with its own chat and speech engines.
func (m *Manager) Create() *Session {
	d := m.deps
	transcripts := transcript.NewExtractor(d.Captions, d.Logger)
	s := &Session{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now(),
		settings:    d.Settings,
		chat:        chat.NewEngine(d.Settings, d.Logger),
		speech:      speech.NewEngine(d.Settings, d.Local, d.Player, d.Logger),
		pages:       pagecontext.NewExtractor(transcripts, d.Logger),
		transcripts: transcripts,
		store:       d.Store,
		exporter:    d.Exporter,
		logger:      d.Logger,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	d.Logger.Debug("session created", "session", s.ID)
	return s
}

// Get looks up a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close tears down one session, auto-saving its conversation.
func (m *Manager) Close(ctx context.Context, id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.Close(ctx)
	return true
}

// CloseAll tears down every live session, for process shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Close(ctx)
	}
}

// LocalVoices lists the local synthesizer's voices, if one is wired.
func (m *Manager) LocalVoices() []speech.Voice {
	if m.deps.Local == nil {
		return nil
	}
	return m.deps.Local.Voices()
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
