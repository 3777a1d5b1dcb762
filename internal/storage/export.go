package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Export is everything needed to persist one finished conversation:
// a rendered markdown document plus the session's synthesized audio,
// in the order it was produced.
type Export struct {
	Title    string
	Date     time.Time
	Markdown string
	Audio    [][]byte
}

// Exporter writes finished conversations to durable files, one
// directory per conversation.
type Exporter struct {
	baseDir string
	logger  *log.Logger
}

func NewExporter(baseDir string, logger *log.Logger) *Exporter {
	return &Exporter{baseDir: baseDir, logger: logger}
}

// Write saves the export under "<title> - <date>/" in the base
// directory: the markdown document plus each audio item as a
// zero-padded audio-NNN.mp3. Returns the created directory.
func (e *Exporter) Write(export Export) (string, error) {
	title := SanitizeFilename(export.Title)
	if title == "" {
		title = "Untitled"
	}
	date := export.Date
	if date.IsZero() {
		date = time.Now()
	}
	stamp := fileDate(date)
	name := fmt.Sprintf("%s - %s", title, stamp)

	dir := filepath.Join(e.baseDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	mdPath := filepath.Join(dir, name+".md")
	if err := os.WriteFile(mdPath, []byte(export.Markdown), 0o644); err != nil {
		return "", fmt.Errorf("writing markdown: %w", err)
	}

	for i, audio := range export.Audio {
		if len(audio) == 0 {
			continue
		}
		audioName := fmt.Sprintf("%s - audio-%03d.mp3", name, i+1)
		if err := os.WriteFile(filepath.Join(dir, audioName), audio, 0o644); err != nil {
			return "", fmt.Errorf("writing audio %d: %w", i+1, err)
		}
	}

	e.logger.Info("conversation saved", "dir", dir, "audio", len(export.Audio))
	return dir, nil
}

// SanitizeFilename strips characters that are unsafe in filenames,
// collapses whitespace, and caps the length.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if len(out) > 80 {
		out = out[:80]
	}
	return strings.TrimSpace(out)
}

// fileDate renders a timestamp as yyyy-mm-dd-hhmm for filenames.
func fileDate(t time.Time) string {
	return t.Format("2006-01-02-1504")
}
