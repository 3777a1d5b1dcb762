package llm

import (
	"context"
)

// Message represents a conversation turn.
// Content is ordered; for multi-part turns images precede the text part,
// and the whole history is replayed in order on every request.
type Message struct {
	Role    string         `json:"role"` // "user" or "assistant"
	Content []ContentBlock `json:"content"`
}

// ContentBlock represents different types of content in a message
type ContentBlock interface {
	Type() string
}

// TextBlock represents text content
type TextBlock struct {
	Text string `json:"text"`
}

func (t TextBlock) Type() string { return "text" }

// ImageBlock represents an attached image
type ImageBlock struct {
	Source ImageSource `json:"source"`
}

func (i ImageBlock) Type() string { return "image" }

// ImageSource represents image data. Immutable once captured.
type ImageSource struct {
	Type      string `json:"type"`       // "base64"
	MediaType string `json:"media_type"` // "image/jpeg", "image/png", etc.
	Data      string `json:"data"`
	Name      string `json:"name,omitempty"`
}

// TextContent extracts the concatenated text parts of a message.
func (m Message) TextContent() string {
	var out string
	for _, block := range m.Content {
		if tb, ok := block.(TextBlock); ok {
			if out != "" {
				out += "\n"
			}
			out += tb.Text
		}
	}
	return out
}

// ImageCount returns the number of image parts in a message.
func (m Message) ImageCount() int {
	n := 0
	for _, block := range m.Content {
		if _, ok := block.(ImageBlock); ok {
			n++
		}
	}
	return n
}

// ApiHandler is the contract for a streaming LLM provider.
type ApiHandler interface {
	// CreateMessage sends the full ordered history and returns a streaming
	// response. The returned channel is closed when the stream ends;
	// cancelling ctx aborts the in-flight request.
	CreateMessage(ctx context.Context, systemPrompt string, messages []Message) (ApiStream, error)

	// Model returns the model identifier the handler is configured for.
	Model() string
}

// ApiHandlerOptions represents configuration options for API handlers
type ApiHandlerOptions struct {
	APIKey    string `json:"apiKey"`
	ModelID   string `json:"modelId"`
	BaseURL   string `json:"baseUrl,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}
