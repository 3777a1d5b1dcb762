package transcript

import (
	"fmt"
	"strings"
)

// Segment is one timed caption cue.
type Segment struct {
	Text     string
	Start    float64 // seconds
	Duration float64 // seconds
}

// Chunk is a time-windowed group of caption text.
type Chunk struct {
	Timestamp string
	Text      string
}

// chunkWindow is the minimum duration of one transcript chunk.
const chunkWindow = 10.0

// chunkSegments groups consecutive segments into windows of at least
// chunkWindow seconds, labelled with the window's start timestamp.
// Segments with empty text are skipped but still advance the window.
func chunkSegments(segments []Segment) []Chunk {
	if len(segments) == 0 {
		return nil
	}
	var chunks []Chunk
	start := segments[0].Start
	var texts []string

	for _, seg := range segments {
		if seg.Start-start >= chunkWindow && len(texts) > 0 {
			chunks = append(chunks, Chunk{Timestamp: formatTimestamp(start), Text: strings.Join(texts, " ")})
			start = seg.Start
			texts = nil
		}
		if t := strings.TrimSpace(seg.Text); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) > 0 {
		chunks = append(chunks, Chunk{Timestamp: formatTimestamp(start), Text: strings.Join(texts, " ")})
	}
	return chunks
}

// formatTimestamp renders seconds as M:SS, or H:MM:SS past an hour.
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// renderChunks joins chunks into the final "[timestamp] text" form.
func renderChunks(chunks []Chunk) string {
	lines := make([]string, len(chunks))
	for i, c := range chunks {
		lines[i] = fmt.Sprintf("[%s] %s", c.Timestamp, c.Text)
	}
	return strings.Join(lines, "\n")
}
