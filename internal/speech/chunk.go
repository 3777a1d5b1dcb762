package speech

import (
	"strings"
	"unicode/utf8"
)

// MaxChunkLen is the largest text slice sent to the cloud synthesizer
// in a single request.
const MaxChunkLen = 4500

// ChunkText splits text into pieces no longer than maxLen. Boundaries
// prefer a sentence end within the window; a newline or plain space is
// used when no sentence end falls in the tail half, and a hard cut at
// maxLen is the final fallback.
func ChunkText(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = MaxChunkLen
	}
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	remaining := text
	for len(remaining) > maxLen {
		window := remaining[:maxLen]
		breakAt := strings.LastIndex(window, ". ")
		if breakAt < maxLen/2 {
			if i := strings.LastIndex(window, "\n"); i > breakAt {
				breakAt = i
			}
		}
		if breakAt < maxLen/2 {
			if i := strings.LastIndex(window, " "); i > breakAt {
				breakAt = i
			}
		}
		if breakAt < 1 {
			// Hard cut: back up so the split does not land inside a
			// multi-byte rune.
			breakAt = maxLen - 1
			for breakAt > 0 && !utf8.RuneStart(remaining[breakAt+1]) {
				breakAt--
			}
		}
		chunks = append(chunks, remaining[:breakAt+1])
		remaining = strings.TrimLeft(remaining[breakAt+1:], " \t\n")
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}
