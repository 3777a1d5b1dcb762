package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sidekickd/sidekick/internal/config"
	"github.com/sidekickd/sidekick/internal/llm"
	"github.com/sidekickd/sidekick/internal/llm/providers"
)

// ErrBusy is returned by Send while a response is already streaming. The
// orchestrator maps the caller's gesture to Stop instead.
var ErrBusy = errors.New("a response is already streaming")

const baseSystemPrompt = "You are a helpful assistant."

// ImageAttachment is an image captured by the caller. Immutable.
type ImageAttachment struct {
	Base64    string `json:"base64"`
	MediaType string `json:"mediaType"`
	Name      string `json:"name"`
}

// PageContext is the page the user was viewing when the session opened.
// Read-only to the engine; injected into every outbound request until
// discarded.
type PageContext struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Kind    string `json:"kind"` // "page" or "video"
}

// Callbacks receive stream lifecycle events. Exactly one of OnDone or
// OnError fires per accepted Send; OnToken carries incremental text only.
type Callbacks struct {
	OnToken func(delta string)
	OnDone  func(finalText string)
	OnError func(err error)
}

// normalized fills unset callbacks with no-ops so the stream loop can
// invoke them unconditionally.
func (cb Callbacks) normalized() Callbacks {
	if cb.OnToken == nil {
		cb.OnToken = func(string) {}
	}
	if cb.OnDone == nil {
		cb.OnDone = func(string) {}
	}
	if cb.OnError == nil {
		cb.OnError = func(error) {}
	}
	return cb
}

// HandlerFactory builds a provider handler from per-send options.
type HandlerFactory func(llm.ApiHandlerOptions) llm.ApiHandler

// streamSession is the single in-flight request: a cancellation handle plus
// the partial-text accumulator. Created on send, destroyed on terminal.
type streamSession struct {
	id        string
	cancel    context.CancelFunc
	buf       strings.Builder
	cancelled bool
}

// Engine owns one conversation: ordered history, optional page context and
// at most one active stream. Idle -> Streaming -> Idle on completion,
// cancellation or error; only Idle accepts a new Send.
type Engine struct {
	settings *config.Store
	commands *CommandTable
	factory  HandlerFactory
	logger   *log.Logger

	mu      sync.Mutex
	history []llm.Message
	page    *PageContext
	stream  *streamSession
}

// NewEngine creates a chat engine bound to a settings store. The command
// table refreshes live on settings changes.
func NewEngine(settings *config.Store, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{
		settings: settings,
		commands: NewCommandTable(settings.Get().Commands),
		factory: func(opts llm.ApiHandlerOptions) llm.ApiHandler {
			return providers.NewAnthropicHandler(opts)
		},
		logger: logger,
	}
	settings.Subscribe(func(s config.Settings) {
		e.commands.Replace(s.Commands)
	})
	return e
}

// SetHandlerFactory overrides provider construction. Used by tests and by
// callers pointing at a compatible endpoint.
func (e *Engine) SetHandlerFactory(f HandlerFactory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.factory = f
}

// SetContext installs the page context. Only the first call per session
// takes effect; returns false if a context was already set.
func (e *Engine) SetContext(page PageContext) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.page != nil {
		return false
	}
	e.page = &page
	return true
}

// DiscardContext drops the page context for subsequent requests.
func (e *Engine) DiscardContext() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.page = nil
}

// PageContext returns the current page context, or nil.
func (e *Engine) PageContext() *PageContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.page == nil {
		return nil
	}
	page := *e.page
	return &page
}

// Commands returns the engine's command table.
func (e *Engine) Commands() *CommandTable { return e.commands }

// IsStreaming reports whether a response is in flight.
func (e *Engine) IsStreaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream != nil
}

// History returns a snapshot of the conversation.
func (e *Engine) History() []llm.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]llm.Message, len(e.history))
	copy(out, e.history)
	return out
}

// Clear empties the conversation history.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}

// Send expands commands, commits the user turn and streams the response.
// It fails fast (no history mutation, no callbacks) with ErrUnconfigured
// when no credential is set and with ErrBusy while streaming; after a nil
// return, exactly one terminal callback fires.
func (e *Engine) Send(ctx context.Context, userText string, images []ImageAttachment, cb Callbacks) error {
	cb = cb.normalized()
	settings := e.settings.Get()
	if settings.APIKey == "" {
		return llm.ErrUnconfigured
	}

	e.mu.Lock()
	if e.stream != nil {
		e.mu.Unlock()
		return ErrBusy
	}

	expanded := e.commands.Expand(userText)
	userTurn := buildUserTurn(expanded, images)
	e.history = append(e.history, userTurn)

	ctx, cancel := context.WithCancel(ctx)
	session := &streamSession{id: uuid.NewString(), cancel: cancel}
	e.stream = session

	history := make([]llm.Message, len(e.history))
	copy(history, e.history)
	systemPrompt := e.buildSystemPrompt(settings.CustomSystemPrompt)
	e.mu.Unlock()

	handler := e.factory(llm.ApiHandlerOptions{
		APIKey:    settings.APIKey,
		ModelID:   settings.Model,
		MaxTokens: 4096,
	})

	go e.run(ctx, handler, session, systemPrompt, history, cb)
	return nil
}

// Stop cancels the in-flight stream, if any. Idempotent; the stream
// terminates through OnDone with whatever text accumulated.
func (e *Engine) Stop() {
	e.mu.Lock()
	session := e.stream
	if session != nil {
		session.cancelled = true
	}
	e.mu.Unlock()
	if session != nil {
		session.cancel()
	}
}

func (e *Engine) run(ctx context.Context, handler llm.ApiHandler, session *streamSession, systemPrompt string, history []llm.Message, cb Callbacks) {
	defer session.cancel()

	stream, err := handler.CreateMessage(ctx, systemPrompt, history)
	if err != nil {
		// Cancelled before the request went out: same contract as a
		// cancelled stream, not an error.
		if e.wasCancelled(session) {
			e.finishDone(session, cb)
			return
		}
		// Transport or HTTP failure before any token: roll back the
		// provisional user turn so a retry starts clean.
		e.rollbackUserTurn(session)
		e.logger.Debug("chat request failed", "err", err)
		cb.OnError(err)
		return
	}

	for chunk := range stream {
		switch c := chunk.(type) {
		case llm.ApiStreamTextChunk:
			if !e.accumulate(session, c.Text) {
				return // session superseded; event is void
			}
			cb.OnToken(c.Text)
		case llm.ApiStreamErrorChunk:
			// Our own abort surfaces as a read error; that is a stop,
			// not a failure.
			if e.wasCancelled(session) {
				e.finishDone(session, cb)
				return
			}
			// Mid-stream protocol error: streaming already started, so
			// the user turn and any partial output stay in history.
			e.finishError(session)
			cb.OnError(c.Err)
			return
		}
	}

	e.finishDone(session, cb)
}

// accumulate appends delta to the session buffer; returns false when the
// session is no longer current.
func (e *Engine) accumulate(session *streamSession, delta string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream != session {
		return false
	}
	session.buf.WriteString(delta)
	return true
}

func (e *Engine) wasCancelled(session *streamSession) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return session.cancelled
}

// rollbackUserTurn removes the provisional user turn committed by Send.
func (e *Engine) rollbackUserTurn(session *streamSession) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream == session {
		e.stream = nil
	}
	if len(e.history) > 0 {
		e.history = e.history[:len(e.history)-1]
	}
}

// finishDone handles both normal completion and user cancellation: the
// accumulated text, if any, becomes an assistant turn and OnDone fires.
func (e *Engine) finishDone(session *streamSession, cb Callbacks) {
	e.mu.Lock()
	if e.stream != session {
		e.mu.Unlock()
		return
	}
	e.stream = nil
	text := session.buf.String()
	if text != "" && e.endsWithUserTurn() {
		e.history = append(e.history, llm.Message{
			Role:    "assistant",
			Content: []llm.ContentBlock{llm.TextBlock{Text: text}},
		})
	}
	e.mu.Unlock()
	cb.OnDone(text)
}

// finishError clears the stream but keeps the user turn and any partial
// assistant output: the conversation context is still meaningful.
func (e *Engine) finishError(session *streamSession) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream != session {
		return
	}
	e.stream = nil
	if text := session.buf.String(); text != "" && e.endsWithUserTurn() {
		e.history = append(e.history, llm.Message{
			Role:    "assistant",
			Content: []llm.ContentBlock{llm.TextBlock{Text: text}},
		})
	}
}

// endsWithUserTurn reports whether history still carries the user turn
// the in-flight stream is answering. Clear during a stream removes it,
// and an assistant turn must never open a conversation. Caller holds e.mu.
func (e *Engine) endsWithUserTurn() bool {
	return len(e.history) > 0 && e.history[len(e.history)-1].Role == "user"
}

func buildUserTurn(text string, images []ImageAttachment) llm.Message {
	content := make([]llm.ContentBlock, 0, len(images)+1)
	for _, img := range images {
		content = append(content, llm.ImageBlock{
			Source: llm.ImageSource{
				Type:      "base64",
				MediaType: img.MediaType,
				Data:      img.Base64,
				Name:      img.Name,
			},
		})
	}
	content = append(content, llm.TextBlock{Text: text})
	return llm.Message{Role: "user", Content: content}
}

// buildSystemPrompt assembles base instruction, optional custom prompt and
// the page-context block. Caller holds e.mu.
func (e *Engine) buildSystemPrompt(customPrompt string) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	if customPrompt != "" {
		b.WriteString("\n\n")
		b.WriteString(customPrompt)
	}
	if e.page != nil && e.page.Content != "" {
		b.WriteString("\n\nThe user is viewing a webpage and wants to discuss it with you.")
		b.WriteString("\n\nPage title: ")
		b.WriteString(e.page.Title)
		b.WriteString("\nPage URL: ")
		b.WriteString(e.page.URL)
		b.WriteString("\n\n--- PAGE CONTENT ---\n")
		b.WriteString(e.page.Content)
		b.WriteString("\n--- END PAGE CONTENT ---\n\n")
		b.WriteString("Answer the user's questions based on the page content above. If the user asks something unrelated to the page, answer normally.")
	}
	return b.String()
}
