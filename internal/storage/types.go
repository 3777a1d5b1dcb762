package storage

import "time"

// Conversation is one tab's chat, persisted transiently while the
// session is live and exported to durable files on session end.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	PageURL   string    `json:"pageUrl"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Turns     []Turn    `json:"turns,omitempty"`
}

// Turn is one message in a conversation, ordered by Seq.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Seq       int       `json:"seq"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary is the listing view of a conversation.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	PageURL   string    `json:"pageUrl"`
	UpdatedAt time.Time `json:"updatedAt"`
	TurnCount int       `json:"turnCount"`
}
