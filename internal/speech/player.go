package speech

import (
	"bytes"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
)

// PlayerEvent is a state transition reported by an audio player.
type PlayerEvent int

const (
	PlayerStarted PlayerEvent = iota
	PlayerEnded
	PlayerFailed
)

// Player renders one synthesized audio buffer. Stop tears playback
// down silently: no events fire after it returns.
type Player interface {
	Play(audio []byte, events func(PlayerEvent, error)) error
	Pause() error
	Resume() error
	Stop()
}

type playback struct {
	cmd     *exec.Cmd
	stopped bool
}

// ExecPlayer pipes audio into an external player process such as
// "mpv --no-terminal -" or "ffplay -nodisp -autoexit -". Pause and
// resume map to SIGSTOP and SIGCONT.
type ExecPlayer struct {
	argv []string

	mu  sync.Mutex
	cur *playback
}

func NewExecPlayer(argv []string) (*ExecPlayer, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("speech: empty player command")
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("speech: player not found: %w", err)
	}
	return &ExecPlayer{argv: append([]string{}, argv...)}, nil
}

func (p *ExecPlayer) Play(audio []byte, events func(PlayerEvent, error)) error {
	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	cmd.Stdin = bytes.NewReader(audio)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("speech: starting player: %w", err)
	}

	pb := &playback{cmd: cmd}
	p.mu.Lock()
	prev := p.cur
	if prev != nil {
		prev.stopped = true
	}
	p.cur = pb
	p.mu.Unlock()
	if prev != nil {
		killProcess(prev.cmd)
	}

	events(PlayerStarted, nil)
	go func() {
		err := cmd.Wait()

		p.mu.Lock()
		stopped := pb.stopped
		if p.cur == pb {
			p.cur = nil
		}
		p.mu.Unlock()

		if stopped {
			return
		}
		if err != nil {
			events(PlayerFailed, err)
			return
		}
		events(PlayerEnded, nil)
	}()
	return nil
}

func (p *ExecPlayer) Pause() error {
	return p.signal(syscall.SIGSTOP)
}

func (p *ExecPlayer) Resume() error {
	return p.signal(syscall.SIGCONT)
}

func (p *ExecPlayer) Stop() {
	p.mu.Lock()
	pb := p.cur
	p.cur = nil
	if pb != nil {
		pb.stopped = true
	}
	p.mu.Unlock()
	if pb != nil {
		killProcess(pb.cmd)
	}
}

func (p *ExecPlayer) signal(sig syscall.Signal) error {
	p.mu.Lock()
	pb := p.cur
	p.mu.Unlock()
	if pb == nil || pb.cmd.Process == nil {
		return fmt.Errorf("speech: nothing playing")
	}
	return pb.cmd.Process.Signal(sig)
}
