package llm

import (
	"bufio"
	"io"
	"strings"
)

// SSEEvent represents one server-sent event.
type SSEEvent struct {
	Name string
	Data string
}

// SSEScanner scans server-sent events from a reader. Lines are read through
// a bufio.Reader, so a token split across network reads stays buffered until
// its terminating newline arrives.
type SSEScanner struct {
	r       *bufio.Reader
	current SSEEvent
	err     error
}

// NewSSEScanner creates a scanner over an SSE response body.
func NewSSEScanner(r io.Reader) *SSEScanner {
	return &SSEScanner{r: bufio.NewReader(r)}
}

// Scan advances to the next event. It returns false at end of stream or on
// a read error; a partially accumulated final event is still delivered.
func (s *SSEScanner) Scan() bool {
	var ev SSEEvent
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				s.err = err
			}
			// Flush whatever accumulated before the stream ended.
			if ev.Name != "" || ev.Data != "" {
				s.current = ev
				return true
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			// Blank line terminates an event.
			if ev.Name != "" || ev.Data != "" {
				s.current = ev
				return true
			}
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(line[len("data:"):])
			if ev.Data != "" {
				ev.Data += "\n"
			}
			ev.Data += data
		}
		// Comment lines and unknown fields are ignored.
	}
}

// Event returns the current SSE event.
func (s *SSEScanner) Event() SSEEvent { return s.current }

// Err returns the first non-EOF read error, if any.
func (s *SSEScanner) Err() error { return s.err }
