// Package session owns the per-tab engine wiring: one chat engine,
// one speech engine and extraction, constructed together and disposed
// together when the tab goes away.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sidekickd/sidekick/internal/chat"
	"github.com/sidekickd/sidekick/internal/config"
	"github.com/sidekickd/sidekick/internal/pagecontext"
	"github.com/sidekickd/sidekick/internal/speech"
	"github.com/sidekickd/sidekick/internal/storage"
	"github.com/sidekickd/sidekick/internal/transcript"
)

// Session is one client context. All engine state for a tab lives
// here; nothing is shared between sessions except the settings store
// and the conversation database.
type Session struct {
	ID        string
	CreatedAt time.Time

	settings    *config.Store
	chat        *chat.Engine
	speech      *speech.Engine
	pages       *pagecontext.Extractor
	transcripts *transcript.Extractor
	store       *storage.Store
	exporter    *storage.Exporter
	logger      *log.Logger

	mu        sync.Mutex
	pageTitle string
	pageURL   string
	audioIDs  []string
	persisted int
	closed    bool
}

// Chat exposes the session's chat engine.
func (s *Session) Chat() *chat.Engine { return s.chat }

// Speech exposes the session's speech engine.
func (s *Session) Speech() *speech.Engine { return s.speech }

// Submit is the two-state send control: while a response is streaming
// it stops the stream instead of sending, mirroring a send button that
// turns into a stop button. The returned flag reports whether a new
// stream started.
func (s *Session) Submit(ctx context.Context, text string, images []chat.ImageAttachment, cb chat.Callbacks) (bool, error) {
	if s.chat.IsStreaming() {
		s.chat.Stop()
		return false, nil
	}
	err := s.chat.Send(ctx, text, images, s.persisting(cb))
	if err != nil {
		return false, err
	}
	return true, nil
}

// Stop cancels the in-flight stream, if any.
func (s *Session) Stop() { s.chat.Stop() }

// persisting wraps stream callbacks so terminal events sync the
// transient conversation row. Persistence is best effort; a storage
// failure never disturbs the stream result.
func (s *Session) persisting(cb chat.Callbacks) chat.Callbacks {
	return chat.Callbacks{
		OnToken: cb.OnToken,
		OnDone: func(finalText string) {
			s.persistHistory()
			if cb.OnDone != nil {
				cb.OnDone(finalText)
			}
		},
		OnError: func(err error) {
			s.persistHistory()
			if cb.OnError != nil {
				cb.OnError(err)
			}
		},
	}
}

// persistHistory appends any turns not yet written to the store.
func (s *Session) persistHistory() {
	if s.store == nil {
		return
	}
	history := s.chat.History()

	s.mu.Lock()
	from := s.persisted
	if from >= len(history) {
		s.mu.Unlock()
		return
	}
	s.persisted = len(history)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// First persisted turn also creates the conversation row; pages
	// attached later refresh its title and URL.
	if from == 0 {
		s.mu.Lock()
		conv := &storage.Conversation{
			ID:        s.ID,
			Title:     s.pageTitle,
			PageURL:   s.pageURL,
			Model:     s.settings.Get().Model,
			CreatedAt: s.CreatedAt,
		}
		s.mu.Unlock()
		if err := s.store.UpsertConversation(ctx, conv); err != nil {
			s.logger.Warn("creating conversation failed", "session", s.ID, "error", err)
			s.mu.Lock()
			s.persisted = from
			s.mu.Unlock()
			return
		}
	}

	for _, msg := range history[from:] {
		turn := storage.Turn{Role: msg.Role, Text: msg.TextContent()}
		if err := s.store.AppendTurn(ctx, s.ID, turn); err != nil {
			s.logger.Warn("persisting turn failed", "session", s.ID, "error", err)
		}
	}
}

// UsePage extracts context from the page and attaches it to the chat
// engine. Mode "article" converts the page's main content to markdown
// instead of flattening it to text; any other mode is the default
// extraction, which routes video pages through the transcript tier.
// Only the first page per session sticks; later calls report false
// without replacing it.
func (s *Session) UsePage(ctx context.Context, page transcript.Page, mode string) (chat.PageContext, bool, error) {
	maxContext := s.settings.Get().MaxContext

	var extracted pagecontext.Context
	var err error
	if mode == "article" {
		extracted, err = s.pages.ExtractArticle(page, maxContext)
	} else {
		extracted, err = s.pages.Extract(ctx, page, maxContext)
	}
	if err != nil {
		return chat.PageContext{}, false, fmt.Errorf("extracting page context: %w", err)
	}

	pc := chat.PageContext{
		Title:   extracted.Title,
		URL:     extracted.URL,
		Content: extracted.Content,
		Kind:    extracted.Kind,
	}
	attached := s.chat.SetContext(pc)
	if attached {
		s.rememberPage(ctx, extracted.Title, extracted.URL)
	}
	return pc, attached, nil
}

// DiscardPage drops the attached page context.
func (s *Session) DiscardPage() { s.chat.DiscardContext() }

func (s *Session) rememberPage(ctx context.Context, title, url string) {
	s.mu.Lock()
	s.pageTitle = title
	s.pageURL = url
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	conv := &storage.Conversation{
		ID:      s.ID,
		Title:   title,
		PageURL: url,
		Model:   s.settings.Get().Model,
	}
	if err := s.store.UpsertConversation(ctx, conv); err != nil {
		s.logger.Warn("recording conversation failed", "session", s.ID, "error", err)
	}
}

// Transcript runs the two-tier extraction directly, for clients that
// want the raw transcript rather than chat context.
func (s *Session) Transcript(ctx context.Context, page transcript.Page) transcript.Result {
	return s.transcripts.Extract(ctx, page)
}

// Speak plays one message's text. The id keys the audio cache and the
// export ordering; first play wins the slot. Playback runs until it
// ends or the speech engine is stopped, not for the life of any
// request.
func (s *Session) Speak(id, text string, cb speech.StateCallback) error {
	s.mu.Lock()
	known := false
	for _, existing := range s.audioIDs {
		if existing == id {
			known = true
			break
		}
	}
	if !known {
		s.audioIDs = append(s.audioIDs, id)
	}
	s.mu.Unlock()

	return s.speech.Play(id, text, cb)
}

// ExportMarkdown renders the conversation with audio markers matching
// the file names Close writes.
func (s *Session) ExportMarkdown() string {
	s.mu.Lock()
	pageTitle, pageURL := s.pageTitle, s.pageURL
	audioNames := s.audioFileNames()
	s.mu.Unlock()

	return s.chat.ExportMarkdown(chat.ExportOptions{
		PageTitle:  pageTitle,
		PageURL:    pageURL,
		Date:       s.CreatedAt,
		AudioFiles: audioNames,
	})
}

// audioFileNames lists zero-padded names for the cached audio, in
// first-play order. Caller holds s.mu.
func (s *Session) audioFileNames() []string {
	var names []string
	n := 0
	for _, id := range s.audioIDs {
		if _, ok := s.speech.Cache().Get(id); !ok {
			continue
		}
		n++
		names = append(names, fmt.Sprintf("audio-%03d.mp3", n))
	}
	return names
}

// Close stops both engines and auto-saves the conversation: markdown
// plus cached audio written to durable files, then the transient row
// removed. Saving is best effort and Close is idempotent.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.chat.Stop()
	s.speech.Stop()

	if len(s.chat.History()) > 0 && s.exporter != nil {
		s.mu.Lock()
		title := s.pageTitle
		var audio [][]byte
		for _, id := range s.audioIDs {
			if data, ok := s.speech.Cache().Get(id); ok {
				audio = append(audio, data)
			}
		}
		s.mu.Unlock()

		export := storage.Export{
			Title:    title,
			Date:     s.CreatedAt,
			Markdown: s.ExportMarkdown(),
			Audio:    audio,
		}
		if dir, err := s.exporter.Write(export); err != nil {
			s.logger.Warn("auto-save failed", "session", s.ID, "error", err)
		} else {
			s.logger.Info("session auto-saved", "session", s.ID, "dir", dir)
		}
	}

	if s.store != nil {
		if err := s.store.Delete(ctx, s.ID); err != nil {
			s.logger.Warn("removing transient conversation failed", "session", s.ID, "error", err)
		}
	}
}
