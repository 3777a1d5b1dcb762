package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_Render(t *testing.T) {
	r, err := NewRenderer("dark", 80)
	require.NoError(t, err)

	out, err := r.Render("# Title\n\nSome **bold** text.")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "bold")
}

func TestRenderer_EmptyInput(t *testing.T) {
	r, err := NewRenderer("auto", 0)
	require.NoError(t, err)

	out, err := r.Render("   \n  ")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestSqueezeBlankLines(t *testing.T) {
	in := "a\n\n\n\nb\n\nc"
	assert.Equal(t, "a\n\nb\n\nc", squeezeBlankLines(in))
}

func TestRenderer_NoBlankRuns(t *testing.T) {
	r, err := NewRenderer("dark", 80)
	require.NoError(t, err)

	out, err := r.Render("para one\n\n\n\n\npara two")
	require.NoError(t, err)

	blanks := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			blanks++
			assert.LessOrEqual(t, blanks, 1)
		} else {
			blanks = 0
		}
	}
}
