package chat

import (
	"strings"
	"sync"

	"github.com/sidekickd/sidekick/internal/config"
)

// CommandTable maps short slash-command names to expansion text. It is
// externally mutable: Replace is wired to settings change notifications.
type CommandTable struct {
	mu      sync.RWMutex
	entries []config.Command
}

// NewCommandTable creates a table with the given entries.
func NewCommandTable(entries []config.Command) *CommandTable {
	t := &CommandTable{}
	t.Replace(entries)
	return t
}

// Replace swaps the whole table.
func (t *CommandTable) Replace(entries []config.Command) {
	copied := make([]config.Command, len(entries))
	copy(copied, entries)
	t.mu.Lock()
	t.entries = copied
	t.mu.Unlock()
}

// Entries returns a snapshot of the table in order.
func (t *CommandTable) Entries() []config.Command {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]config.Command, len(t.entries))
	copy(out, t.entries)
	return out
}

// Expand replaces a leading slash command with its prompt. The first
// whitespace-delimited token after the slash is matched case-insensitively
// and exactly against command names; the remainder is space-joined after
// the expansion. Unmatched input passes through unchanged.
func (t *CommandTable) Expand(text string) string {
	if !strings.HasPrefix(text, "/") {
		return text
	}
	rest0 := text[1:]
	// The command token must immediately follow the slash.
	if rest0 == "" || rest0[0] == ' ' || rest0[0] == '\t' {
		return text
	}
	parts := strings.Fields(rest0)
	name := strings.ToLower(parts[0])
	rest := strings.Join(parts[1:], " ")

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, cmd := range t.entries {
		if strings.ToLower(cmd.Name) == name {
			if rest == "" {
				return cmd.Prompt
			}
			return cmd.Prompt + " " + rest
		}
	}
	return text
}

// Matches returns commands whose name starts with the typed partial, for
// autocomplete. "/" alone matches everything.
func (t *CommandTable) Matches(partial string) []config.Command {
	if !strings.HasPrefix(partial, "/") {
		return nil
	}
	query := strings.ToLower(strings.TrimPrefix(partial, "/"))

	t.mu.RLock()
	defer t.mu.RUnlock()
	if query == "" {
		out := make([]config.Command, len(t.entries))
		copy(out, t.entries)
		return out
	}
	var out []config.Command
	for _, cmd := range t.entries {
		if strings.HasPrefix(strings.ToLower(cmd.Name), query) {
			out = append(out, cmd)
		}
	}
	return out
}
