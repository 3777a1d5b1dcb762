package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const innertubeClientVersion = "2.20250926.00.00"

var (
	initialDataRe    = regexp.MustCompile(`(?s)ytInitialData\s*=\s*(\{.+?\});`)
	playerResponseRe = regexp.MustCompile(`(?s)ytInitialPlayerResponse\s*=\s*(\{.+?\});`)
)

// extractPrimary parses the page's bootstrap data for a transcript
// endpoint token and calls the structured transcript endpoint once.
func (e *Extractor) extractPrimary(ctx context.Context, doc *goquery.Document) ([]Chunk, error) {
	params := ""
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		for _, re := range []*regexp.Regexp{initialDataRe, playerResponseRe} {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			var root any
			if err := json.Unmarshal([]byte(m[1]), &root); err != nil {
				continue
			}
			if p := findTranscriptParams(root); p != "" {
				params = p
				return false
			}
		}
		return true
	})
	if params == "" {
		return nil, fmt.Errorf("no transcript endpoint found in page data")
	}

	data, err := e.fetchTranscript(ctx, params)
	if err != nil {
		return nil, err
	}

	groups := findCueGroups(data)
	if len(groups) == 0 {
		return nil, fmt.Errorf("no transcript cue groups found in response")
	}

	segments := parseCueGroups(groups)
	if len(segments) == 0 {
		return nil, fmt.Errorf("parsed zero segments from transcript response")
	}
	return chunkSegments(segments), nil
}

type transcriptRequest struct {
	Context struct {
		Client struct {
			ClientName    string `json:"clientName"`
			ClientVersion string `json:"clientVersion"`
		} `json:"client"`
	} `json:"context"`
	Params string `json:"params"`
}

func (e *Extractor) fetchTranscript(ctx context.Context, params string) (any, error) {
	var reqBody transcriptRequest
	reqBody.Context.Client.ClientName = "WEB"
	reqBody.Context.Client.ClientVersion = innertubeClientVersion
	reqBody.Params = params

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling transcript request: %w", err)
	}

	url := e.innertubeURL + "/youtubei/v1/get_transcript?prettyPrint=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating transcript request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcript request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcript API returned %d", resp.StatusCode)
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding transcript response: %w", err)
	}
	return data, nil
}

// parseCueGroups turns raw cue group nodes into timed segments. Both
// the transcriptCueGroupRenderer wrapping and bare section headers
// appear in the wild; nodes matching neither are skipped.
func parseCueGroups(groups []any) []Segment {
	var segments []Segment
	for _, g := range groups {
		group, ok := g.(map[string]any)
		if !ok {
			continue
		}
		cue := cueFromGroup(group)
		if cue == nil {
			continue
		}

		startMs := msField(cue, "startOffsetMs")
		durationMs := msField(cue, "durationMs")
		text := cueText(cue)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Text:     text,
			Start:    startMs / 1000,
			Duration: durationMs / 1000,
		})
	}
	return segments
}

func cueFromGroup(group map[string]any) map[string]any {
	if wrapper, ok := group["transcriptCueGroupRenderer"].(map[string]any); ok {
		if cues, ok := wrapper["cues"].([]any); ok && len(cues) > 0 {
			if first, ok := cues[0].(map[string]any); ok {
				if cue, ok := first["transcriptCueRenderer"].(map[string]any); ok {
					return cue
				}
			}
		}
	}
	if header, ok := group["transcriptSectionHeaderRenderer"].(map[string]any); ok {
		return header
	}
	return nil
}

func cueText(cue map[string]any) string {
	inner, ok := cue["cue"].(map[string]any)
	if !ok {
		return ""
	}
	if simple, ok := inner["simpleText"].(string); ok {
		return strings.TrimSpace(simple)
	}
	if runs, ok := inner["runs"].([]any); ok {
		var b strings.Builder
		for _, r := range runs {
			if run, ok := r.(map[string]any); ok {
				if t, ok := run["text"].(string); ok {
					b.WriteString(t)
				}
			}
		}
		return strings.TrimSpace(b.String())
	}
	return ""
}

// msField reads a millisecond value that arrives as a string.
func msField(cue map[string]any, key string) float64 {
	s, ok := cue[key].(string)
	if !ok {
		return 0
	}
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return ms
}
