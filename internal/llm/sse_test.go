package llm

import (
	"io"
	"strings"
	"testing"
)

// chunkedReader returns data in fixed-size reads to simulate network
// boundaries landing mid-line.
type chunkedReader struct {
	data []byte
	pos  int
	size int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	end := c.pos + c.size
	if end > len(c.data) {
		end = len(c.data)
	}
	n := copy(p, c.data[c.pos:end])
	c.pos += n
	return n, nil
}

func TestSSEScanner_Basic(t *testing.T) {
	input := "event: content_block_delta\ndata: {\"text\":\"hi\"}\n\nevent: message_stop\ndata: {}\n\n"
	s := NewSSEScanner(strings.NewReader(input))

	if !s.Scan() {
		t.Fatal("expected first event")
	}
	ev := s.Event()
	if ev.Name != "content_block_delta" || ev.Data != `{"text":"hi"}` {
		t.Errorf("unexpected event: %+v", ev)
	}

	if !s.Scan() {
		t.Fatal("expected second event")
	}
	if s.Event().Name != "message_stop" {
		t.Errorf("expected message_stop, got %q", s.Event().Name)
	}

	if s.Scan() {
		t.Error("expected end of stream")
	}
}

func TestSSEScanner_SplitAcrossReads(t *testing.T) {
	input := "data: {\"delta\":{\"text\":\"a long token that will be split\"}}\n\n"
	for _, size := range []int{1, 3, 7, 16} {
		s := NewSSEScanner(&chunkedReader{data: []byte(input), size: size})
		if !s.Scan() {
			t.Fatalf("size %d: expected an event", size)
		}
		want := `{"delta":{"text":"a long token that will be split"}}`
		if got := s.Event().Data; got != want {
			t.Errorf("size %d: got %q, want %q", size, got, want)
		}
	}
}

func TestSSEScanner_TrailingEventWithoutBlankLine(t *testing.T) {
	s := NewSSEScanner(strings.NewReader("data: tail"))
	if !s.Scan() {
		t.Fatal("expected trailing event to be flushed")
	}
	if s.Event().Data != "tail" {
		t.Errorf("got %q", s.Event().Data)
	}
	if s.Scan() {
		t.Error("expected end of stream")
	}
}

func TestSSEScanner_MultiLineData(t *testing.T) {
	s := NewSSEScanner(strings.NewReader("data: one\ndata: two\n\n"))
	if !s.Scan() {
		t.Fatal("expected event")
	}
	if s.Event().Data != "one\ntwo" {
		t.Errorf("got %q", s.Event().Data)
	}
}
