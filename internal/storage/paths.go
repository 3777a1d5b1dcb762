package storage

import (
	"os"
	"path/filepath"
)

// Paths resolves where sidekick keeps its data on this machine.
// Everything lives under one base directory, ~/.sidekick by default.
type Paths struct {
	base string
}

func NewPaths() *Paths {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Paths{base: filepath.Join(home, ".sidekick")}
}

// NewPathsAt pins the base directory, mainly for tests.
func NewPathsAt(base string) *Paths {
	return &Paths{base: base}
}

// Base returns the sidekick data directory, creating it if needed.
func (p *Paths) Base() (string, error) {
	if err := os.MkdirAll(p.base, 0o755); err != nil {
		return "", err
	}
	return p.base, nil
}

// Database returns the conversation database path.
func (p *Paths) Database() (string, error) {
	base, err := p.Base()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "conversations.db"), nil
}

// Settings returns the settings file path.
func (p *Paths) Settings() (string, error) {
	base, err := p.Base()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "settings.json"), nil
}

// Exports returns the default directory for saved conversations,
// creating it if needed.
func (p *Paths) Exports() (string, error) {
	base, err := p.Base()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "conversations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
