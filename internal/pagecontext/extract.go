// Package pagecontext turns a served page into a text block small
// enough to ride along in a chat request.
package pagecontext

import (
	"context"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"

	"github.com/sidekickd/sidekick/internal/transcript"
)

// Kind labels where a context block came from.
const (
	KindPage    = "page"
	KindArticle = "article"
	KindVideo   = "youtube"
)

// Context is an extracted page context block.
type Context struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Kind    string `json:"type"`
}

// Selectors stripped before text extraction: non-content machinery and
// the usual chrome around an article body.
var removeSelectors = []string{
	"script", "style", "noscript", "iframe", "svg",
	"nav", "footer", "header", "aside",
	`[role="navigation"]`, `[role="banner"]`, `[role="contentinfo"]`,
	".sidebar", ".menu", ".nav", ".footer", ".header", ".ad", ".advertisement",
}

// Extractor builds context blocks, routing video pages through the
// transcript extractor first.
type Extractor struct {
	transcripts *transcript.Extractor
	logger      *log.Logger
}

func NewExtractor(transcripts *transcript.Extractor, logger *log.Logger) *Extractor {
	return &Extractor{transcripts: transcripts, logger: logger}
}

// Extract produces a context block for the page, capped at maxLen. A
// video page is tried against the transcript extractor first and
// degrades to generic text extraction when that fails.
func (e *Extractor) Extract(ctx context.Context, page transcript.Page, maxLen int) (Context, error) {
	if maxLen <= 0 {
		maxLen = 10000
	}

	if e.transcripts != nil && transcript.IsVideoPage(page.URL) {
		result := e.transcripts.Extract(ctx, page)
		if result.Success {
			return Context{
				Title:   result.Title,
				URL:     page.URL,
				Content: truncate(result.Transcript, maxLen),
				Kind:    KindVideo,
			}, nil
		}
		e.logger.Debug("transcript extraction failed, falling back to page text", "error", result.Error)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return Context{}, fmt.Errorf("parsing page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	body := doc.Find("body")
	for _, sel := range removeSelectors {
		body.Find(sel).Remove()
	}

	text := strings.Join(strings.Fields(body.Text()), " ")
	return Context{
		Title:   title,
		URL:     page.URL,
		Content: truncate(text, maxLen),
		Kind:    KindPage,
	}, nil
}

// ExtractArticle converts the page's main content to markdown, for
// pages where structure matters more than raw text. Falls back to
// the whole body when no article-like container exists.
func (e *Extractor) ExtractArticle(page transcript.Page, maxLen int) (Context, error) {
	if maxLen <= 0 {
		maxLen = 10000
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return Context{}, fmt.Errorf("parsing page: %w", err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	for _, sel := range removeSelectors {
		root.Find(sel).Remove()
	}

	html, err := root.Html()
	if err != nil {
		return Context{}, fmt.Errorf("serializing article: %w", err)
	}

	converter := htmltomarkdown.NewConverter("", true, nil)
	md, err := converter.ConvertString(html)
	if err != nil {
		return Context{}, fmt.Errorf("converting article to markdown: %w", err)
	}
	return Context{
		Title:   title,
		URL:     page.URL,
		Content: truncate(strings.TrimSpace(md), maxLen),
		Kind:    KindArticle,
	}, nil
}

// truncate truncates s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
