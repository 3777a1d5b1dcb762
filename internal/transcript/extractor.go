package transcript

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
)

const (
	defaultInnertubeURL    = "https://www.youtube.com"
	defaultFallbackTimeout = 5 * time.Second
)

// Page is the raw material for one extraction: the video page's URL
// and served HTML.
type Page struct {
	URL  string
	HTML string
}

// Result is the outcome of one extraction attempt. Title and VideoID
// are populated even on failure so the caller can still label the
// page.
type Result struct {
	Success    bool   `json:"success"`
	Transcript string `json:"transcript,omitempty"`
	Title      string `json:"title"`
	VideoID    string `json:"videoId"`
	Method     string `json:"method,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Extractor pulls a timestamped transcript out of a video page. The
// primary tier reads the page's own bootstrap data and calls the
// transcript endpoint; if that throws, the fallback tier provokes a
// caption-data request through the caption control and intercepts it.
type Extractor struct {
	client          *http.Client
	captions        CaptionController
	logger          *log.Logger
	innertubeURL    string
	fallbackTimeout time.Duration
}

// NewExtractor builds an extractor. captions may be nil, in which case
// only the primary tier runs.
func NewExtractor(captions CaptionController, logger *log.Logger) *Extractor {
	return &Extractor{
		client:          &http.Client{Timeout: 30 * time.Second},
		captions:        captions,
		logger:          logger,
		innertubeURL:    defaultInnertubeURL,
		fallbackTimeout: defaultFallbackTimeout,
	}
}

// Extract runs the two-tier strategy and always returns a Result; a
// failed extraction carries the combined error from both tiers.
func (e *Extractor) Extract(ctx context.Context, page Page) Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("could not extract transcript: %v", err)}
	}
	title, videoID := videoMeta(doc, page.URL)

	chunks, primaryErr := e.extractPrimary(ctx, doc)
	if primaryErr == nil {
		return Result{
			Success:    true,
			Transcript: renderChunks(chunks),
			Title:      title,
			VideoID:    videoID,
			Method:     "primary",
		}
	}
	e.logger.Debug("primary transcript method failed, trying fallback", "error", primaryErr)

	chunks, fallbackErr := e.extractFallback(ctx)
	if fallbackErr == nil {
		return Result{
			Success:    true,
			Transcript: renderChunks(chunks),
			Title:      title,
			VideoID:    videoID,
			Method:     "fallback",
		}
	}
	e.logger.Debug("fallback transcript method failed", "error", fallbackErr)

	return Result{
		Success: false,
		Title:   title,
		VideoID: videoID,
		Error:   fmt.Sprintf("could not extract transcript: %v / %v", primaryErr, fallbackErr),
	}
}

// videoMeta reads the video title and id from the page.
func videoMeta(doc *goquery.Document, pageURL string) (title, videoID string) {
	title, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
	if title == "" {
		title = strings.TrimSuffix(doc.Find("title").First().Text(), " - YouTube")
	}
	title = strings.TrimSpace(title)

	if u, err := url.Parse(pageURL); err == nil {
		videoID = u.Query().Get("v")
		if videoID == "" && strings.TrimPrefix(u.Hostname(), "www.") == "youtu.be" {
			videoID = strings.TrimPrefix(u.Path, "/")
		}
	}
	return title, videoID
}

// IsVideoPage reports whether a URL points at a watch page the
// extractor understands.
func IsVideoPage(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	switch {
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		return u.Path == "/watch" && u.Query().Get("v") != ""
	case host == "youtu.be":
		return len(u.Path) > 1
	}
	return false
}
