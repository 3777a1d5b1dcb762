package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidekickd/sidekick/internal/chat"
	"github.com/sidekickd/sidekick/internal/config"
	"github.com/sidekickd/sidekick/internal/llm"
	"github.com/sidekickd/sidekick/internal/speech"
	"github.com/sidekickd/sidekick/internal/storage"
	"github.com/sidekickd/sidekick/internal/transcript"
)

// scriptedHandler replays fixed chunks, optionally holding the stream
// open until cancelled.
type scriptedHandler struct {
	script     []llm.ApiStreamChunk
	waitCancel bool
}

func (s *scriptedHandler) Model() string { return "test-model" }

func (s *scriptedHandler) CreateMessage(ctx context.Context, systemPrompt string, messages []llm.Message) (llm.ApiStream, error) {
	ch := make(chan llm.ApiStreamChunk)
	go func() {
		defer close(ch)
		for _, chunk := range s.script {
			select {
			case ch <- chunk:
			case <-ctx.Done():
				ch <- llm.ApiStreamErrorChunk{Err: &llm.NetworkError{Err: ctx.Err()}}
				return
			}
		}
		if s.waitCancel {
			<-ctx.Done()
			ch <- llm.ApiStreamErrorChunk{Err: &llm.NetworkError{Err: ctx.Err()}}
		}
	}()
	return ch, nil
}

func textScript(parts ...string) []llm.ApiStreamChunk {
	var chunks []llm.ApiStreamChunk
	for _, p := range parts {
		chunks = append(chunks, llm.ApiStreamTextChunk{Text: p})
	}
	return chunks
}

type recorder struct {
	done chan string
	errs chan error
}

func newRecorder() *recorder {
	return &recorder{done: make(chan string, 1), errs: make(chan error, 1)}
}

func (r *recorder) callbacks() chat.Callbacks {
	return chat.Callbacks{
		OnDone:  func(text string) { r.done <- text },
		OnError: func(err error) { r.errs <- err },
	}
}

func (r *recorder) waitDone(t *testing.T) string {
	t.Helper()
	select {
	case text := <-r.done:
		return text
	case err := <-r.errs:
		t.Fatalf("OnError fired instead of OnDone: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal callback")
	}
	return ""
}

func (r *recorder) waitErr(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errs:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal callback")
	}
	return nil
}

func pageOf(html, url string) transcript.Page {
	return transcript.Page{URL: url, HTML: html}
}

func testStore(t *testing.T) *config.Store {
	t.Helper()
	store, err := config.Load(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	require.NoError(t, store.Set("api_key", "test-key"))
	return store
}

func testManager(t *testing.T) (*Manager, *storage.Store, string) {
	t.Helper()
	logger := log.New(os.Stderr)
	db, err := storage.Open(filepath.Join(t.TempDir(), "conversations.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	exportDir := t.TempDir()
	m := NewManager(Deps{
		Settings: testStore(t),
		Store:    db,
		Exporter: storage.NewExporter(exportDir, logger),
		Logger:   logger,
	})
	return m, db, exportDir
}

func script(s *Session, handler *scriptedHandler) {
	s.Chat().SetHandlerFactory(func(llm.ApiHandlerOptions) llm.ApiHandler {
		return handler
	})
}

func TestSubmitPersistsOnDone(t *testing.T) {
	m, db, _ := testManager(t)
	s := m.Create()
	script(s, &scriptedHandler{script: textScript("Hello ", "world")})

	rec := newRecorder()
	started, err := s.Submit(context.Background(), "hi", nil, rec.callbacks())
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, "Hello world", rec.waitDone(t))

	conv, err := db.Conversation(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, "user", conv.Turns[0].Role)
	assert.Equal(t, "hi", conv.Turns[0].Text)
	assert.Equal(t, "assistant", conv.Turns[1].Role)
	assert.Equal(t, "Hello world", conv.Turns[1].Text)
}

func TestSubmitWhileStreamingStops(t *testing.T) {
	m, _, _ := testManager(t)
	s := m.Create()
	script(s, &scriptedHandler{script: textScript("partial "), waitCancel: true})

	rec := newRecorder()
	started, err := s.Submit(context.Background(), "hi", nil, rec.callbacks())
	require.NoError(t, err)
	assert.True(t, started)

	require.Eventually(t, s.Chat().IsStreaming, 2*time.Second, 10*time.Millisecond)

	started, err = s.Submit(context.Background(), "ignored", nil, chat.Callbacks{})
	require.NoError(t, err)
	assert.False(t, started)

	rec.waitDone(t)
	assert.False(t, s.Chat().IsStreaming())
}

func TestSubmitPersistsOnError(t *testing.T) {
	m, db, _ := testManager(t)
	s := m.Create()
	script(s, &scriptedHandler{script: []llm.ApiStreamChunk{
		llm.ApiStreamTextChunk{Text: "partial"},
		llm.ApiStreamErrorChunk{Err: &llm.NetworkError{Err: context.DeadlineExceeded}},
	}})

	rec := newRecorder()
	_, err := s.Submit(context.Background(), "hi", nil, rec.callbacks())
	require.NoError(t, err)
	require.Error(t, rec.waitErr(t))

	// Partial text is kept in history and persisted with it.
	conv, err := db.Conversation(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, "partial", conv.Turns[1].Text)
}

func TestUsePageFirstWins(t *testing.T) {
	m, db, _ := testManager(t)
	s := m.Create()

	page := pageOf("<html><head><title>Docs</title></head><body><p>Useful text here.</p></body></html>", "https://example.com/docs")
	pc, attached, err := s.UsePage(context.Background(), page, "")
	require.NoError(t, err)
	assert.True(t, attached)
	assert.Equal(t, "Docs", pc.Title)
	assert.Contains(t, pc.Content, "Useful text")

	_, attached, err = s.UsePage(context.Background(), page, "")
	require.NoError(t, err)
	assert.False(t, attached)

	conv, err := db.Conversation(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Docs", conv.Title)
	assert.Equal(t, "https://example.com/docs", conv.PageURL)
}

func TestUsePageArticleMode(t *testing.T) {
	m, _, _ := testManager(t)
	s := m.Create()

	page := pageOf(`<html><head><title>Post</title></head><body>
		<nav>menu</nav>
		<article><h1>Heading</h1><p>Body <strong>text</strong>.</p></article>
	</body></html>`, "https://example.com/post")

	pc, attached, err := s.UsePage(context.Background(), page, "article")
	require.NoError(t, err)
	assert.True(t, attached)
	assert.Contains(t, pc.Content, "# Heading")
	assert.Contains(t, pc.Content, "**text**")
	assert.NotContains(t, pc.Content, "menu")
}

func TestCloseAutoSavesAndDeletes(t *testing.T) {
	m, db, exportDir := testManager(t)
	s := m.Create()
	script(s, &scriptedHandler{script: textScript("Answer")})

	page := pageOf("<html><head><title>Docs</title></head><body><p>Body.</p></body></html>", "https://example.com")
	_, _, err := s.UsePage(context.Background(), page, "")
	require.NoError(t, err)

	rec := newRecorder()
	_, err = s.Submit(context.Background(), "question", nil, rec.callbacks())
	require.NoError(t, err)
	rec.waitDone(t)

	assert.True(t, m.Close(context.Background(), s.ID))
	assert.Equal(t, 0, m.Len())

	// Transient row is gone.
	_, err = db.Conversation(context.Background(), s.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Export directory holds the markdown.
	entries, err := os.ReadDir(exportDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "Docs - "))

	files, err := os.ReadDir(filepath.Join(exportDir, entries[0].Name()))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(filepath.Join(exportDir, entries[0].Name(), files[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Answer")

	// Second Close is a no-op.
	assert.False(t, m.Close(context.Background(), s.ID))
}

func TestCloseEmptySessionSkipsExport(t *testing.T) {
	m, _, exportDir := testManager(t)
	s := m.Create()

	require.True(t, m.Close(context.Background(), s.ID))

	entries, err := os.ReadDir(exportDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSpeakRecordsExportOrder(t *testing.T) {
	m, _, _ := testManager(t)
	s := m.Create()

	s.Speech().Cache().Put("m2", []byte("audio-two"))
	s.Speech().Cache().Put("m1", []byte("audio-one"))

	// Play order, not cache order, decides numbering.
	s.mu.Lock()
	s.audioIDs = []string{"m1", "m2"}
	names := s.audioFileNames()
	s.mu.Unlock()

	assert.Equal(t, []string{"audio-001.mp3", "audio-002.mp3"}, names)
}

func TestSpeakUnavailableBackend(t *testing.T) {
	m, _, _ := testManager(t)
	s := m.Create()

	err := s.Speak("m1", "hello", func(speech.State, error) {})
	assert.ErrorIs(t, err, speech.ErrUnsupported)
}
