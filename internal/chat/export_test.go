package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidekickd/sidekick/internal/llm"
)

func exportEngine(t *testing.T, turns ...llm.Message) *Engine {
	t.Helper()
	e := newTestEngine(t, "sk-test", &scriptedHandler{})
	e.mu.Lock()
	e.history = turns
	e.mu.Unlock()
	return e
}

func turn(role, text string) llm.Message {
	return llm.Message{Role: role, Content: []llm.ContentBlock{llm.TextBlock{Text: text}}}
}

func TestExportMarkdownLayout(t *testing.T) {
	e := exportEngine(t,
		turn("user", "what is this page about"),
		turn("assistant", "It covers topic X."),
		turn("user", "summarize"),
		turn("assistant", "Summary here."),
	)

	out := e.ExportMarkdown(ExportOptions{
		Title:      "Topic X",
		PageTitle:  "Topic X - Site",
		PageURL:    "https://example.com/x",
		Date:       time.Date(2026, 8, 28, 9, 5, 0, 0, time.UTC),
		AudioFiles: []string{"audio-001.mp3"},
	})

	assert.True(t, strings.HasPrefix(out, "# Topic X\n"))
	assert.Contains(t, out, "**Page:** [Topic X - Site](https://example.com/x)")
	assert.Contains(t, out, "**Date:** 2026-08-28 09:05")

	// Section order mirrors conversation order.
	userIdx := strings.Index(out, "## User\nwhat is this page about")
	firstAssistant := strings.Index(out, "## Assistant\nIt covers topic X.")
	secondAssistant := strings.Index(out, "## Assistant\nSummary here.")
	require.True(t, userIdx >= 0 && firstAssistant > userIdx && secondAssistant > firstAssistant)

	// One audio file attaches to the first assistant turn only.
	assert.Equal(t, 1, strings.Count(out, "[Audio:"))
	audioIdx := strings.Index(out, "[Audio: audio-001.mp3]")
	require.True(t, audioIdx > firstAssistant && audioIdx < secondAssistant)
}

func TestExportMarkdownDefaults(t *testing.T) {
	e := exportEngine(t, turn("user", "hi"))

	out := e.ExportMarkdown(ExportOptions{})
	assert.True(t, strings.HasPrefix(out, "# Sidekick Conversation\n"))
	assert.NotContains(t, out, "**Page:**")
	assert.NotContains(t, out, "[Audio:")
}
