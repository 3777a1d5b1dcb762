package chat

import (
	"fmt"
	"strings"
	"time"
)

// ExportOptions controls the markdown export of a conversation.
type ExportOptions struct {
	Title     string
	PageTitle string
	PageURL   string
	Date      time.Time
	// AudioFiles are the saved audio file names, in synthesis order.
	// They attach to assistant turns in conversation order.
	AudioFiles []string
}

// ExportMarkdown renders the conversation as a markdown document: H1
// title, page link and date, then per-turn User/Assistant sections with
// an [Audio: ...] marker on assistant turns that have synthesized audio.
func (e *Engine) ExportMarkdown(opts ExportOptions) string {
	title := opts.Title
	if title == "" {
		title = "Sidekick Conversation"
	}
	date := opts.Date
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)
	if opts.PageTitle != "" || opts.PageURL != "" {
		fmt.Fprintf(&b, "**Page:** [%s](%s)\n", opts.PageTitle, opts.PageURL)
	}
	fmt.Fprintf(&b, "**Date:** %s\n\n---\n\n", date.Format("2006-01-02 15:04"))

	audioIndex := 0
	for _, msg := range e.History() {
		heading := "Assistant"
		if msg.Role == "user" {
			heading = "User"
		}

		text := msg.TextContent()
		if n := msg.ImageCount(); n > 0 {
			text = fmt.Sprintf("[%d image(s) attached]\n\n%s", n, text)
		}
		fmt.Fprintf(&b, "## %s\n%s\n", heading, text)

		if msg.Role == "assistant" && audioIndex < len(opts.AudioFiles) {
			fmt.Fprintf(&b, "\n[Audio: %s]\n", opts.AudioFiles[audioIndex])
			audioIndex++
		}
		b.WriteString("\n")
	}

	return b.String()
}
