package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CaptionController drives the video page's caption control and
// reports the caption resource URLs the page requests. The page client
// implements this over its live connection; without one the fallback
// tier is unavailable.
type CaptionController interface {
	// Enabled reports whether captions are currently shown.
	Enabled(ctx context.Context) (bool, error)
	// Toggle flips the caption control once.
	Toggle(ctx context.Context) error
	// Resources streams the URLs of caption-data requests the page
	// issues, until ctx is cancelled.
	Resources(ctx context.Context) (<-chan string, error)
}

const captionRetoggleDelay = 200 * time.Millisecond

// extractFallback forces a fresh caption-data request by toggling the
// caption control, watches the page's resource stream for a timedtext
// URL, and fetches it directly. The toggle is restored to its original
// state on every exit path.
func (e *Extractor) extractFallback(ctx context.Context) ([]Chunk, error) {
	if e.captions == nil {
		return nil, fmt.Errorf("no caption control available")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	urls, err := e.captions.Resources(ctx)
	if err != nil {
		return nil, fmt.Errorf("observing caption requests: %w", err)
	}

	wasEnabled, err := e.captions.Enabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading caption state: %w", err)
	}
	if !wasEnabled {
		if err := e.captions.Toggle(ctx); err != nil {
			return nil, fmt.Errorf("enabling captions: %w", err)
		}
	} else {
		// Already on: off and back on to force a fresh request.
		if err := e.captions.Toggle(ctx); err != nil {
			return nil, fmt.Errorf("retoggling captions: %w", err)
		}
		select {
		case <-time.After(captionRetoggleDelay):
		case <-ctx.Done():
			e.restoreCaptions(wasEnabled)
			return nil, ctx.Err()
		}
		if err := e.captions.Toggle(ctx); err != nil {
			e.restoreCaptions(wasEnabled)
			return nil, fmt.Errorf("retoggling captions: %w", err)
		}
	}
	defer e.restoreCaptions(wasEnabled)

	timeout := time.NewTimer(e.fallbackTimeout)
	defer timeout.Stop()

	for {
		select {
		case url, ok := <-urls:
			if !ok {
				return nil, fmt.Errorf("caption request stream closed")
			}
			if !strings.Contains(url, "timedtext") {
				continue
			}
			return e.fetchTimedtext(ctx, url)
		case <-timeout.C:
			return nil, fmt.Errorf("timeout waiting for caption data")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// restoreCaptions puts the caption toggle back to its pre-extraction
// state, best effort. A fresh context: the extraction's own may
// already be cancelled.
func (e *Extractor) restoreCaptions(wasEnabled bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	enabled, err := e.captions.Enabled(ctx)
	if err != nil {
		return
	}
	if enabled != wasEnabled {
		_ = e.captions.Toggle(ctx)
	}
}

type timedtextResponse struct {
	Events []struct {
		TStartMs    float64 `json:"tStartMs"`
		DDurationMs float64 `json:"dDurationMs"`
		Segs        []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

func (e *Extractor) fetchTimedtext(ctx context.Context, url string) ([]Chunk, error) {
	if !strings.Contains(url, "fmt=json3") {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "fmt=json3"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating caption request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching caption data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("caption data request returned %d", resp.StatusCode)
	}

	var data timedtextResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("invalid timedtext response: %w", err)
	}
	if len(data.Events) == 0 {
		return nil, fmt.Errorf("invalid timedtext response: no events")
	}

	var segments []Segment
	for _, ev := range data.Events {
		if len(ev.Segs) == 0 {
			continue
		}
		var b strings.Builder
		for _, s := range ev.Segs {
			b.WriteString(s.UTF8)
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Text:     text,
			Start:    ev.TStartMs / 1000,
			Duration: ev.DDurationMs / 1000,
		})
	}
	return chunkSegments(segments), nil
}
