package speech

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/sidekickd/sidekick/internal/config"
)

// State is the externally visible phase of a playback session.
type State string

const (
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
	StateError   State = "error"
)

// StateCallback receives state transitions for one playback session.
// The err argument is non-nil only for StateError. Every session
// receives exactly one terminal callback, StateEnded or StateError.
type StateCallback func(state State, err error)

// RemoteSynthesizer is the cloud synthesis surface the engine needs.
type RemoteSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

type playbackSession struct {
	id       string
	cb       StateCallback
	state    State
	cancel   context.CancelFunc
	teardown func()
	pause    func() error
	resume   func() error
}

// Engine speaks one utterance at a time through either a local
// synthesizer or the cloud service, whichever the settings select.
// Starting a new utterance ends the current one first.
type Engine struct {
	settings *config.Store
	local    LocalSynthesizer
	player   Player
	cache    *AudioCache
	logger   *log.Logger

	newRemote func(apiKey string) RemoteSynthesizer

	mu      sync.Mutex
	session *playbackSession
}

// NewEngine wires a speech engine. Either backend dependency may be
// nil; playback through a nil backend reports ErrUnsupported.
func NewEngine(settings *config.Store, local LocalSynthesizer, player Player, logger *log.Logger) *Engine {
	return &Engine{
		settings: settings,
		local:    local,
		player:   player,
		cache:    NewAudioCache(),
		logger:   logger,
		newRemote: func(apiKey string) RemoteSynthesizer {
			return NewCloudClient(apiKey, "")
		},
	}
}

// SetRemoteFactory overrides how cloud clients are built, for tests.
func (e *Engine) SetRemoteFactory(f func(apiKey string) RemoteSynthesizer) {
	e.newRemote = f
}

// Cache exposes the synthesized-audio cache for conversation export.
func (e *Engine) Cache() *AudioCache { return e.cache }

// Play speaks the given markdown text, identified by id for caching
// and replay. Any playback already in progress is stopped first and
// its callback receives a final StateEnded. Playback has its own
// lifetime, independent of whatever request started it; Stop is the
// only way to end it early. Configuration problems that prevent the
// backend from starting at all are returned as an error with no
// callback fired for the new session.
func (e *Engine) Play(id, text string, cb StateCallback) error {
	e.Stop()

	plain := StripMarkdown(text)
	if plain == "" {
		cb(StateEnded, nil)
		return nil
	}

	cfg := e.settings.Get().Speech
	if cfg.Backend == "cloud" {
		return e.playCloud(id, plain, cfg, cb)
	}
	return e.playLocal(id, plain, cfg, cb)
}

func (e *Engine) playLocal(id, text string, cfg config.SpeechSettings, cb StateCallback) error {
	if e.local == nil {
		return ErrUnsupported
	}

	voice := cfg.LocalVoice
	if voice != "" && !hasVoice(e.local.Voices(), voice) {
		e.logger.Warn("configured voice not available, using default", "voice", voice)
		voice = ""
	}

	s := &playbackSession{
		id:       id,
		cb:       cb,
		teardown: e.local.Cancel,
		pause:    e.local.Pause,
		resume:   e.local.Resume,
	}
	e.mu.Lock()
	e.session = s
	e.mu.Unlock()

	err := e.local.Speak(text, voice, func(ev UtteranceEvent, err error) {
		switch ev {
		case UtteranceStarted:
			e.dispatch(s, StatePlaying, nil)
		case UtteranceEnded, UtteranceCancelled:
			e.dispatch(s, StateEnded, nil)
		case UtteranceFailed:
			e.dispatch(s, StateError, &PlaybackError{Err: err})
		}
	})
	if err != nil {
		e.drop(s)
		return &PlaybackError{Err: err}
	}
	return nil
}

func (e *Engine) playCloud(id, text string, cfg config.SpeechSettings, cb StateCallback) error {
	if e.player == nil || cfg.CloudAPIKey == "" || cfg.CloudVoice == "" {
		return ErrUnsupported
	}

	// Synthesis must survive the request that triggered it, so the
	// context is rooted here and cancelled only through Stop.
	ctx, cancel := context.WithCancel(context.Background())
	s := &playbackSession{
		id:       id,
		cb:       cb,
		cancel:   cancel,
		teardown: e.player.Stop,
		pause:    e.player.Pause,
		resume:   e.player.Resume,
	}
	e.mu.Lock()
	e.session = s
	e.mu.Unlock()

	// Signal progress before synthesis so the caller can show a
	// speaking indicator during the network round trips.
	e.dispatch(s, StatePlaying, nil)

	if audio, ok := e.cache.Get(id); ok {
		e.playAudio(s, audio)
		return nil
	}

	remote := e.newRemote(cfg.CloudAPIKey)
	go func() {
		chunks := ChunkText(text, MaxChunkLen)
		var buf bytes.Buffer
		for _, chunk := range chunks {
			audio, err := remote.Synthesize(ctx, chunk, cfg.CloudVoice)
			if err != nil {
				// Cancellation means Stop already detached the
				// callback and delivered its Ended; just make sure no
				// stale session reference survives.
				if errors.Is(err, context.Canceled) {
					e.drop(s)
					return
				}
				e.dispatch(s, StateError, err)
				return
			}
			buf.Write(audio)
		}
		audio := buf.Bytes()
		e.cache.Put(s.id, audio)
		e.playAudio(s, audio)
	}()
	return nil
}

func (e *Engine) playAudio(s *playbackSession, audio []byte) {
	e.mu.Lock()
	current := e.session == s
	e.mu.Unlock()
	if !current {
		return
	}

	err := e.player.Play(audio, func(ev PlayerEvent, err error) {
		switch ev {
		case PlayerStarted:
			e.dispatch(s, StatePlaying, nil)
		case PlayerEnded:
			e.dispatch(s, StateEnded, nil)
		case PlayerFailed:
			e.dispatch(s, StateError, &PlaybackError{Err: err})
		}
	})
	if err != nil {
		e.dispatch(s, StateError, &PlaybackError{Err: err})
	}
}

// Pause suspends the current playback. It is a no-op when nothing is
// playing.
func (e *Engine) Pause() {
	e.mu.Lock()
	s := e.session
	var pause func() error
	if s != nil && s.state == StatePlaying {
		pause = s.pause
	}
	e.mu.Unlock()
	if pause == nil {
		return
	}
	if err := pause(); err != nil {
		e.logger.Warn("pause failed", "error", err)
		return
	}
	e.dispatch(s, StatePaused, nil)
}

// Resume continues a paused playback.
func (e *Engine) Resume() {
	e.mu.Lock()
	s := e.session
	var resume func() error
	if s != nil && s.state == StatePaused {
		resume = s.resume
	}
	e.mu.Unlock()
	if resume == nil {
		return
	}
	if err := resume(); err != nil {
		e.logger.Warn("resume failed", "error", err)
		return
	}
	e.dispatch(s, StatePlaying, nil)
}

// Stop ends the current playback, if any. The session's callback is
// detached before the backend is torn down, so the only signal the
// caller sees is the single StateEnded Stop itself delivers. Calling
// Stop with nothing playing is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	s := e.session
	e.session = nil
	var cb StateCallback
	if s != nil {
		cb = s.cb
		s.cb = nil
	}
	e.mu.Unlock()
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.teardown != nil {
		s.teardown()
	}
	if cb != nil {
		cb(StateEnded, nil)
	}
}

// Current reports the utterance id and state of the active session.
func (e *Engine) Current() (id string, state State, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return "", "", false
	}
	return e.session.id, e.session.state, true
}

// CloudVoices lists the voices available to the configured cloud key.
func (e *Engine) CloudVoices(ctx context.Context) ([]Voice, error) {
	cfg := e.settings.Get().Speech
	if cfg.CloudAPIKey == "" {
		return nil, ErrUnsupported
	}
	return NewCloudClient(cfg.CloudAPIKey, "").Voices(ctx)
}

// LocalVoices lists the voices the local synthesizer offers.
func (e *Engine) LocalVoices() []Voice {
	if e.local == nil {
		return nil
	}
	return e.local.Voices()
}

// dispatch delivers a state transition to the session's callback,
// dropping events from superseded sessions and duplicate states. A
// terminal state clears the session and detaches the callback so
// nothing can fire after it.
func (e *Engine) dispatch(s *playbackSession, state State, err error) {
	e.mu.Lock()
	if e.session != s || s.cb == nil || state == s.state {
		e.mu.Unlock()
		return
	}
	cb := s.cb
	if state == StateEnded || state == StateError {
		s.cb = nil
		e.session = nil
	} else {
		s.state = state
	}
	e.mu.Unlock()
	cb(state, err)
}

// drop removes a session that never started, without callbacks.
func (e *Engine) drop(s *playbackSession) {
	e.mu.Lock()
	if e.session == s {
		e.session = nil
	}
	s.cb = nil
	e.mu.Unlock()
}

func hasVoice(voices []Voice, want string) bool {
	for _, v := range voices {
		if v.Name == want || v.ID == want {
			return true
		}
	}
	return false
}
