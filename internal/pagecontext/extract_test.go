package pagecontext

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidekickd/sidekick/internal/transcript"
)

func testExtractor() *Extractor {
	return NewExtractor(nil, log.New(io.Discard))
}

func TestExtract_StripsNonContent(t *testing.T) {
	page := transcript.Page{
		URL: "https://example.com/post",
		HTML: `<html><head><title>A Post</title><style>body{}</style></head><body>
			<nav>Home About</nav>
			<header>Site Header</header>
			<div class="sidebar">Related links</div>
			<div class="ad">Buy things</div>
			<article>The   actual
			content lives here.</article>
			<footer>Copyright</footer>
			<script>var tracking = 1;</script>
		</body></html>`,
	}

	got, err := testExtractor().Extract(context.Background(), page, 0)
	require.NoError(t, err)

	assert.Equal(t, "A Post", got.Title)
	assert.Equal(t, "https://example.com/post", got.URL)
	assert.Equal(t, KindPage, got.Kind)
	assert.Equal(t, "The actual content lives here.", got.Content)
}

func TestExtract_CapsLength(t *testing.T) {
	page := transcript.Page{
		URL:  "https://example.com",
		HTML: "<html><body><p>" + strings.Repeat("word ", 100) + "</p></body></html>",
	}

	got, err := testExtractor().Extract(context.Background(), page, 40)
	require.NoError(t, err)
	assert.Len(t, got.Content, 40)
}

func TestExtract_VideoPageFallsBackToText(t *testing.T) {
	// A watch URL with no usable bootstrap data and no caption control
	// degrades to generic extraction.
	e := NewExtractor(transcript.NewExtractor(nil, log.New(io.Discard)), log.New(io.Discard))
	page := transcript.Page{
		URL:  "https://www.youtube.com/watch?v=abc123",
		HTML: `<html><head><title>Clip - YouTube</title></head><body><p>Description text</p></body></html>`,
	}

	got, err := e.Extract(context.Background(), page, 0)
	require.NoError(t, err)
	assert.Equal(t, KindPage, got.Kind)
	assert.Contains(t, got.Content, "Description text")
}

func TestExtractArticle_ConvertsToMarkdown(t *testing.T) {
	page := transcript.Page{
		URL: "https://example.com/post",
		HTML: `<html><head><title>A Post</title></head><body>
			<nav>Nope</nav>
			<article><h1>Heading</h1><p>Body with <strong>bold</strong> text and
			<a href="https://example.com/more">a link</a>.</p></article>
		</body></html>`,
	}

	got, err := testExtractor().ExtractArticle(page, 0)
	require.NoError(t, err)

	assert.Equal(t, KindArticle, got.Kind)
	assert.Contains(t, got.Content, "# Heading")
	assert.Contains(t, got.Content, "**bold**")
	assert.Contains(t, got.Content, "[a link](https://example.com/more)")
	assert.NotContains(t, got.Content, "Nope")
}
