package speech

import (
	"regexp"
	"strings"
)

var (
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`([^`]*)`")
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	boldRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe     = regexp.MustCompile(`\*(.+?)\*`)
	underBoldRe  = regexp.MustCompile(`__(.+?)__`)
	underItalRe  = regexp.MustCompile(`_(.+?)_`)
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	hrRe         = regexp.MustCompile(`(?m)^-{3,}\s*$`)
	bulletRe     = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	orderedRe    = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	quoteRe      = regexp.MustCompile(`(?m)^>\s?`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// StripMarkdown reduces rendered markdown to plain prose suitable for
// synthesis. Code fences are dropped entirely; inline formatting is
// unwrapped; links keep their label text only.
func StripMarkdown(text string) string {
	out := codeBlockRe.ReplaceAllString(text, "")
	out = inlineCodeRe.ReplaceAllString(out, "$1")
	out = headingRe.ReplaceAllString(out, "")
	out = boldRe.ReplaceAllString(out, "$1")
	out = italicRe.ReplaceAllString(out, "$1")
	out = underBoldRe.ReplaceAllString(out, "$1")
	out = underItalRe.ReplaceAllString(out, "$1")
	out = linkRe.ReplaceAllString(out, "$1")
	out = hrRe.ReplaceAllString(out, "")
	out = bulletRe.ReplaceAllString(out, "")
	out = orderedRe.ReplaceAllString(out, "")
	out = quoteRe.ReplaceAllString(out, "")
	out = blankRunRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
