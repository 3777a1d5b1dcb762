package speech

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidekickd/sidekick/internal/config"
)

type fakeLocal struct {
	mu         sync.Mutex
	voices     []Voice
	events     func(UtteranceEvent, error)
	texts      []string
	voicesUsed []string
	cancels    int
}

func (f *fakeLocal) Voices() []Voice { return f.voices }

func (f *fakeLocal) Speak(text, voice string, events func(UtteranceEvent, error)) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.voicesUsed = append(f.voicesUsed, voice)
	f.events = events
	f.mu.Unlock()
	return nil
}

func (f *fakeLocal) Pause() error  { return nil }
func (f *fakeLocal) Resume() error { return nil }

func (f *fakeLocal) Cancel() {
	f.mu.Lock()
	events := f.events
	f.events = nil
	f.cancels++
	f.mu.Unlock()
	// The real backend reports the kill asynchronously; the engine
	// must have detached by then.
	if events != nil {
		events(UtteranceCancelled, nil)
	}
}

func (f *fakeLocal) emit(ev UtteranceEvent, err error) {
	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	if events != nil {
		events(ev, err)
	}
}

type fakePlayer struct {
	mu     sync.Mutex
	events func(PlayerEvent, error)
	played [][]byte
	stops  int
	playCh chan []byte
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{playCh: make(chan []byte, 4)}
}

func (f *fakePlayer) Play(audio []byte, events func(PlayerEvent, error)) error {
	f.mu.Lock()
	f.played = append(f.played, audio)
	f.events = events
	f.mu.Unlock()
	events(PlayerStarted, nil)
	f.playCh <- audio
	return nil
}

func (f *fakePlayer) Pause() error  { return nil }
func (f *fakePlayer) Resume() error { return nil }

func (f *fakePlayer) Stop() {
	f.mu.Lock()
	f.events = nil
	f.stops++
	f.mu.Unlock()
}

func (f *fakePlayer) finish(ev PlayerEvent, err error) {
	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	if events != nil {
		events(ev, err)
	}
}

func (f *fakePlayer) waitPlay(t *testing.T) []byte {
	t.Helper()
	select {
	case audio := <-f.playCh:
		return audio
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback to start")
		return nil
	}
}

type fakeRemote struct {
	mu     sync.Mutex
	calls  []string
	failAt int
	err    error
}

func (f *fakeRemote) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return nil, f.err
	}
	return []byte("<" + text[:min(8, len(text))] + ">"), nil
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type stateRecorder struct {
	mu       sync.Mutex
	states   []State
	errs     []error
	terminal chan State
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{terminal: make(chan State, 4)}
}

func (r *stateRecorder) cb(state State, err error) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	if state == StateEnded || state == StateError {
		r.terminal <- state
	}
}

func (r *stateRecorder) waitTerminal(t *testing.T) State {
	t.Helper()
	select {
	case s := <-r.terminal:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal state")
		return ""
	}
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.states))
	copy(out, r.states)
	return out
}

func (r *stateRecorder) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

func newSpeechStore(t *testing.T, keyvals ...any) *config.Store {
	t.Helper()
	store, err := config.Load(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	for i := 0; i+1 < len(keyvals); i += 2 {
		require.NoError(t, store.Set(keyvals[i].(string), keyvals[i+1]))
	}
	return store
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestEngine_EmptyTextEndsImmediately(t *testing.T) {
	local := &fakeLocal{}
	engine := NewEngine(newSpeechStore(t), local, nil, testLogger())
	rec := newStateRecorder()

	require.NoError(t, engine.Play("m1", "```\ncode only\n```", rec.cb))

	assert.Equal(t, StateEnded, rec.waitTerminal(t))
	assert.Empty(t, local.texts)
	_, _, ok := engine.Current()
	assert.False(t, ok)
}

func TestEngine_LocalLifecycle(t *testing.T) {
	local := &fakeLocal{}
	engine := NewEngine(newSpeechStore(t), local, nil, testLogger())
	rec := newStateRecorder()

	require.NoError(t, engine.Play("m1", "Hello **world**", rec.cb))
	require.Equal(t, []string{"Hello world"}, local.texts)

	local.emit(UtteranceStarted, nil)
	id, state, ok := engine.Current()
	require.True(t, ok)
	assert.Equal(t, "m1", id)
	assert.Equal(t, StatePlaying, state)

	local.emit(UtteranceEnded, nil)
	assert.Equal(t, StateEnded, rec.waitTerminal(t))
	assert.Equal(t, []State{StatePlaying, StateEnded}, rec.all())

	_, _, ok = engine.Current()
	assert.False(t, ok)
}

func TestEngine_LocalVoiceFallback(t *testing.T) {
	local := &fakeLocal{voices: []Voice{{ID: "alloy", Name: "Alloy"}}}
	store := newSpeechStore(t, "speech.local_voice", "Ghost")
	engine := NewEngine(store, local, nil, testLogger())

	rec := newStateRecorder()
	require.NoError(t, engine.Play("m1", "hi there", rec.cb))
	require.Len(t, local.voicesUsed, 1)
	assert.Equal(t, "", local.voicesUsed[0], "unknown voice falls back to default")
	local.emit(UtteranceEnded, nil)
	rec.waitTerminal(t)

	require.NoError(t, store.Set("speech.local_voice", "Alloy"))
	rec2 := newStateRecorder()
	require.NoError(t, engine.Play("m2", "hi again", rec2.cb))
	require.Len(t, local.voicesUsed, 2)
	assert.Equal(t, "Alloy", local.voicesUsed[1])
}

func TestEngine_LocalUnavailable(t *testing.T) {
	engine := NewEngine(newSpeechStore(t), nil, nil, testLogger())
	rec := newStateRecorder()

	err := engine.Play("m1", "hello", rec.cb)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Empty(t, rec.all())
}

func TestEngine_LocalFailureReportsError(t *testing.T) {
	local := &fakeLocal{}
	engine := NewEngine(newSpeechStore(t), local, nil, testLogger())
	rec := newStateRecorder()

	require.NoError(t, engine.Play("m1", "hello", rec.cb))
	local.emit(UtteranceStarted, nil)
	local.emit(UtteranceFailed, errors.New("device gone"))

	assert.Equal(t, StateError, rec.waitTerminal(t))
	var pbErr *PlaybackError
	require.ErrorAs(t, rec.lastErr(), &pbErr)
}

func TestEngine_StopDeliversSingleEnded(t *testing.T) {
	local := &fakeLocal{}
	engine := NewEngine(newSpeechStore(t), local, nil, testLogger())
	rec := newStateRecorder()

	require.NoError(t, engine.Play("m1", "hello", rec.cb))
	local.emit(UtteranceStarted, nil)

	engine.Stop()
	assert.Equal(t, StateEnded, rec.waitTerminal(t))
	assert.Equal(t, 1, local.cancels)

	// Idempotent, and the backend's cancel event was filtered out.
	engine.Stop()
	assert.Equal(t, []State{StatePlaying, StateEnded}, rec.all())
}

func TestEngine_PlayWhilePlayingEndsOldFirst(t *testing.T) {
	local := &fakeLocal{}
	engine := NewEngine(newSpeechStore(t), local, nil, testLogger())

	rec1 := newStateRecorder()
	require.NoError(t, engine.Play("m1", "first", rec1.cb))
	local.emit(UtteranceStarted, nil)

	rec2 := newStateRecorder()
	require.NoError(t, engine.Play("m2", "second", rec2.cb))

	// The first session finished, cleanly, before the second began.
	assert.Equal(t, StateEnded, rec1.waitTerminal(t))
	assert.Equal(t, []State{StatePlaying, StateEnded}, rec1.all())
	require.Equal(t, []string{"first", "second"}, local.texts)

	local.emit(UtteranceStarted, nil)
	local.emit(UtteranceEnded, nil)
	assert.Equal(t, StateEnded, rec2.waitTerminal(t))
}

func TestEngine_PauseResume(t *testing.T) {
	local := &fakeLocal{}
	engine := NewEngine(newSpeechStore(t), local, nil, testLogger())
	rec := newStateRecorder()

	require.NoError(t, engine.Play("m1", "hello", rec.cb))
	local.emit(UtteranceStarted, nil)

	engine.Pause()
	engine.Pause() // no-op while already paused
	engine.Resume()

	assert.Equal(t, []State{StatePlaying, StatePaused, StatePlaying}, rec.all())
}

func TestEngine_CloudSynthesizesAndCaches(t *testing.T) {
	player := newFakePlayer()
	remote := &fakeRemote{}
	store := newSpeechStore(t,
		"speech.backend", "cloud",
		"speech.cloud_api_key", "key",
		"speech.cloud_voice", "v1",
	)
	engine := NewEngine(store, nil, player, testLogger())
	engine.SetRemoteFactory(func(string) RemoteSynthesizer { return remote })

	rec := newStateRecorder()
	require.NoError(t, engine.Play("m1", "short text", rec.cb))

	audio := player.waitPlay(t)
	player.finish(PlayerEnded, nil)
	assert.Equal(t, StateEnded, rec.waitTerminal(t))
	assert.Equal(t, []State{StatePlaying, StateEnded}, rec.all())
	assert.Equal(t, 1, remote.callCount())

	// Replaying the same utterance hits the cache: no second
	// synthesis round trip, same bytes played.
	rec2 := newStateRecorder()
	require.NoError(t, engine.Play("m1", "short text", rec2.cb))
	assert.Equal(t, audio, player.waitPlay(t))
	assert.Equal(t, 1, remote.callCount())
	player.finish(PlayerEnded, nil)
	assert.Equal(t, StateEnded, rec2.waitTerminal(t))
}

// blockingRemote parks every Synthesize call until its context is
// cancelled, standing in for a slow synthesis round trip.
type blockingRemote struct {
	entered chan struct{}
}

func (b *blockingRemote) Synthesize(ctx context.Context, _, _ string) ([]byte, error) {
	b.entered <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEngine_CloudSynthesisOutlivesCallerAndStopUnwinds(t *testing.T) {
	player := newFakePlayer()
	remote := &blockingRemote{entered: make(chan struct{}, 1)}
	store := newSpeechStore(t,
		"speech.backend", "cloud",
		"speech.cloud_api_key", "key",
		"speech.cloud_voice", "v1",
	)
	engine := NewEngine(store, nil, player, testLogger())
	engine.SetRemoteFactory(func(string) RemoteSynthesizer { return remote })

	rec := newStateRecorder()
	require.NoError(t, engine.Play("m1", "hello", rec.cb))

	// Synthesis keeps going after Play has returned to its caller; the
	// engine still reports the session as live.
	select {
	case <-remote.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("synthesis never started")
	}
	id, state, ok := engine.Current()
	require.True(t, ok)
	assert.Equal(t, "m1", id)
	assert.Equal(t, StatePlaying, state)

	// Stop is the one cancellation path: it ends synthesis, delivers
	// the single Ended, and leaves no session behind.
	engine.Stop()
	assert.Equal(t, StateEnded, rec.waitTerminal(t))
	assert.Equal(t, []State{StatePlaying, StateEnded}, rec.all())
	_, _, ok = engine.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, engine.Cache().Len())
}

func TestEngine_CloudChunkFailureAborts(t *testing.T) {
	player := newFakePlayer()
	remote := &fakeRemote{failAt: 2, err: &RemoteRejectedError{StatusCode: 429, Message: "too many requests"}}
	store := newSpeechStore(t,
		"speech.backend", "cloud",
		"speech.cloud_api_key", "key",
		"speech.cloud_voice", "v1",
	)
	engine := NewEngine(store, nil, player, testLogger())
	engine.SetRemoteFactory(func(string) RemoteSynthesizer { return remote })

	// Long enough to need more than one chunk.
	text := strings.Repeat("A longer sentence for padding. ", 200)
	rec := newStateRecorder()
	require.NoError(t, engine.Play("m1", text, rec.cb))

	assert.Equal(t, StateError, rec.waitTerminal(t))
	var rejected *RemoteRejectedError
	require.ErrorAs(t, rec.lastErr(), &rejected)
	assert.Equal(t, 429, rejected.StatusCode)

	// Nothing partial leaks out.
	assert.Empty(t, player.played)
	assert.Equal(t, 0, engine.Cache().Len())
}

func TestEngine_CloudMissingConfig(t *testing.T) {
	player := newFakePlayer()
	store := newSpeechStore(t, "speech.backend", "cloud")
	engine := NewEngine(store, nil, player, testLogger())
	rec := newStateRecorder()

	err := engine.Play("m1", "hello", rec.cb)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Empty(t, rec.all())
}
