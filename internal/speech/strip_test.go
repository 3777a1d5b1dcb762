package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "inline formatting and links",
			in:   "Hello **world**, see [docs](http://x) now.",
			want: "Hello world, see docs now.",
		},
		{
			name: "code fence dropped",
			in:   "Before.\n```go\nfmt.Println(\"hi\")\n```\nAfter.",
			want: "Before.\n\nAfter.",
		},
		{
			name: "inline code unwrapped",
			in:   "Run `go test` locally.",
			want: "Run go test locally.",
		},
		{
			name: "headings and rules",
			in:   "# Title\n\nBody text.\n\n---\n\nMore.",
			want: "Title\n\nBody text.\n\nMore.",
		},
		{
			name: "list markers",
			in:   "- first\n- second\n1. third",
			want: "first\nsecond\nthird",
		},
		{
			name: "blockquote",
			in:   "> quoted line",
			want: "quoted line",
		},
		{
			name: "italics and underscores",
			in:   "*soft* and __loud__ and _quiet_",
			want: "soft and loud and quiet",
		},
		{
			name: "whitespace only",
			in:   "  \n\n  ",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkdown(tt.in))
		})
	}
}
