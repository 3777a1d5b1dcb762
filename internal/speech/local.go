package speech

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// UtteranceEvent is a state transition reported by a local synthesizer
// while it speaks one utterance.
type UtteranceEvent int

const (
	UtteranceStarted UtteranceEvent = iota
	UtteranceEnded
	UtteranceCancelled
	UtteranceFailed
)

// Voice describes a selectable synthesis voice.
type Voice struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
}

// LocalSynthesizer is an on-device speech engine. Starting a new
// utterance cancels any utterance still in progress. Events are
// delivered from a background goroutine.
type LocalSynthesizer interface {
	Voices() []Voice
	Speak(text, voice string, events func(UtteranceEvent, error)) error
	Pause() error
	Resume() error
	Cancel()
}

type utterance struct {
	cmd       *exec.Cmd
	cancelled bool
}

// ExecSynthesizer drives an external synthesis program such as piper
// or espeak-ng. The utterance text is written to the process stdin;
// pause and resume map to SIGSTOP and SIGCONT.
type ExecSynthesizer struct {
	argv   []string
	voices []Voice

	mu  sync.Mutex
	cur *utterance
}

// NewExecSynthesizer builds a synthesizer from an argv. The optional
// voices list is what Voices reports; the selected voice, if any, is
// appended as a final argument.
func NewExecSynthesizer(argv []string, voices []Voice) (*ExecSynthesizer, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("speech: empty synthesizer command")
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("speech: synthesizer not found: %w", err)
	}
	return &ExecSynthesizer{argv: append([]string{}, argv...), voices: voices}, nil
}

func (s *ExecSynthesizer) Voices() []Voice {
	out := make([]Voice, len(s.voices))
	copy(out, s.voices)
	return out
}

func (s *ExecSynthesizer) Speak(text, voice string, events func(UtteranceEvent, error)) error {
	argv := s.argv
	if voice != "" {
		argv = append(append([]string{}, argv...), voice)
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("speech: starting synthesizer: %w", err)
	}

	u := &utterance{cmd: cmd}
	s.mu.Lock()
	prev := s.cur
	if prev != nil {
		prev.cancelled = true
	}
	s.cur = u
	s.mu.Unlock()
	if prev != nil {
		killProcess(prev.cmd)
	}

	events(UtteranceStarted, nil)
	go func() {
		err := cmd.Wait()

		s.mu.Lock()
		cancelled := u.cancelled
		if s.cur == u {
			s.cur = nil
		}
		s.mu.Unlock()

		switch {
		case cancelled:
			events(UtteranceCancelled, nil)
		case err != nil:
			events(UtteranceFailed, err)
		default:
			events(UtteranceEnded, nil)
		}
	}()
	return nil
}

func (s *ExecSynthesizer) Pause() error {
	return s.signal(syscall.SIGSTOP)
}

func (s *ExecSynthesizer) Resume() error {
	return s.signal(syscall.SIGCONT)
}

func (s *ExecSynthesizer) Cancel() {
	s.mu.Lock()
	u := s.cur
	s.cur = nil
	if u != nil {
		u.cancelled = true
	}
	s.mu.Unlock()
	if u != nil {
		killProcess(u.cmd)
	}
}

func (s *ExecSynthesizer) signal(sig syscall.Signal) error {
	s.mu.Lock()
	u := s.cur
	s.mu.Unlock()
	if u == nil || u.cmd.Process == nil {
		return fmt.Errorf("speech: no utterance in progress")
	}
	return u.cmd.Process.Signal(sig)
}

// killProcess forcibly ends a synthesis or playback process. A stopped
// process ignores SIGKILL until it runs again, so wake it first.
func killProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGCONT)
	_ = cmd.Process.Kill()
}
