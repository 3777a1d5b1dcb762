package speech

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_ShortPassthrough(t *testing.T) {
	chunks := ChunkText("hello world", 100)
	assert.Equal(t, []string{"hello world"}, chunks)
}

func TestChunkText_PrefersSentenceBoundary(t *testing.T) {
	first := strings.Repeat("a", 60) + ". "
	second := strings.Repeat("b", 50)
	chunks := ChunkText(first+second, 100)

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 60)+".", chunks[0])
	assert.Equal(t, second, chunks[1])
}

func TestChunkText_NewlineWhenSentenceTooEarly(t *testing.T) {
	// The only sentence end sits in the first half of the window, so
	// the later newline wins.
	text := strings.Repeat("a", 20) + ". " + strings.Repeat("b", 50) + "\n" + strings.Repeat("c", 60)
	chunks := ChunkText(text, 100)

	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0], "\n"))
	assert.Equal(t, strings.Repeat("c", 60), chunks[1])
}

func TestChunkText_HardCutWithoutBreakpoints(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := ChunkText(text, 100)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)
}

func TestChunkText_HardCutKeepsRunesIntact(t *testing.T) {
	// No sentence ends, newlines or spaces, so every split is a hard
	// cut; three-byte runes make a byte-offset cut land mid-rune.
	text := strings.Repeat("語", 100)
	chunks := ChunkText(text, 100)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c), "chunk split a rune: %q", c)
		assert.LessOrEqual(t, len(c), 100)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunkText_BoundsAndCoverage(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog. ")
	}
	text := strings.TrimSpace(b.String())

	chunks := ChunkText(text, MaxChunkLen)
	require.Greater(t, len(chunks), 1)

	var rejoined []string
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), MaxChunkLen)
		assert.NotEmpty(t, strings.TrimSpace(c))
		rejoined = append(rejoined, strings.TrimSpace(c))
	}
	assert.Equal(t, text, strings.Join(rejoined, " "))
}
