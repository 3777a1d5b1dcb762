package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"
)

// ErrNotFound is returned when a conversation id has no row.
var ErrNotFound = errors.New("storage: conversation not found")

// Store persists live conversations in a local libsql database.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens (or creates) the conversation database at path.
func Open(path string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	logger.Debug("conversation store opened", "path", path)
	return s, nil
}

// UpsertConversation creates or refreshes a conversation row. Turns
// are managed separately through AppendTurn.
func (s *Store) UpsertConversation(ctx context.Context, c *Conversation) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, page_url, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			page_url = excluded.page_url,
			model = excluded.model,
			updated_at = excluded.updated_at`,
		c.ID, c.Title, c.PageURL, c.Model, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}
	return nil
}

// AppendTurn adds a turn at the end of a conversation. A missing turn
// id is filled in.
func (s *Store) AppendTurn(ctx context.Context, conversationID string, t Turn) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, conversation_id, role, content, seq, created_at)
		VALUES (?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), -1) + 1 FROM turns WHERE conversation_id = ?),
			?)`,
		t.ID, conversationID, t.Role, t.Text, conversationID, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now().UTC(), conversationID)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}

// Conversation loads a conversation and its turns in order.
func (s *Store) Conversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, page_url, model, created_at, updated_at
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Title, &c.PageURL, &c.Model, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, seq, created_at
		FROM turns WHERE conversation_id = ?
		ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("loading turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.Role, &t.Text, &t.Seq, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		c.Turns = append(c.Turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}
	return &c, nil
}

// List returns conversation summaries, most recently updated first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.page_url, c.updated_at,
		       (SELECT COUNT(*) FROM turns t WHERE t.conversation_id = c.id)
		FROM conversations c
		ORDER BY c.updated_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.PageURL, &sum.UpdatedAt, &sum.TurnCount); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a conversation and its turns. Turns are deleted
// explicitly; the cascade clause only fires when foreign keys are
// enabled on the connection.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting turns: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    page_url TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    seq INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_turns_conversation_seq ON turns(conversation_id, seq);
`
