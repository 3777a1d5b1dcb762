// Package markdown renders assistant output for terminal display.
package markdown

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Renderer wraps glamour with the styling the chat surface uses.
type Renderer struct {
	term  *glamour.TermRenderer
	width int
}

// NewRenderer builds a renderer for the given theme ("dark", "light"
// or "auto") and wrap width. Zero width gets a sensible default.
func NewRenderer(theme string, width int) (*Renderer, error) {
	if width <= 0 {
		width = 100
	}

	var style glamour.TermRendererOption
	switch theme {
	case "dark", "light":
		style = glamour.WithStandardStyle(theme)
	default:
		style = glamour.WithAutoStyle()
	}

	term, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("creating markdown renderer: %w", err)
	}
	return &Renderer{term: term, width: width}, nil
}

// Render renders one markdown document to styled output. Runs of
// blank lines are squeezed so chat bubbles stay compact.
func (r *Renderer) Render(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	rendered, err := r.term.Render(text)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return squeezeBlankLines(rendered), nil
}

// squeezeBlankLines collapses consecutive blank lines down to one.
func squeezeBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
