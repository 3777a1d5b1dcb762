package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sidekickd/sidekick/internal/llm"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	defaultMaxTokens        = 4096
)

// AnthropicHandler implements llm.ApiHandler against the Anthropic
// streaming messages API.
type AnthropicHandler struct {
	options llm.ApiHandlerOptions
	client  *http.Client
	baseURL string
}

// AnthropicMessage represents an Anthropic API message
type AnthropicMessage struct {
	Role    string                  `json:"role"`
	Content []AnthropicContentBlock `json:"content"`
}

// AnthropicContentBlock represents content in Anthropic format
type AnthropicContentBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *AnthropicImageSource `json:"source,omitempty"`
}

// AnthropicImageSource represents image data in Anthropic format
type AnthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// AnthropicRequest represents the request to the Anthropic API
type AnthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []AnthropicMessage `json:"messages"`
	Stream    bool               `json:"stream"`
}

// AnthropicStreamEvent represents a streaming event from Anthropic
type AnthropicStreamEvent struct {
	Type  string          `json:"type"`
	Delta *AnthropicDelta `json:"delta,omitempty"`
	Error *AnthropicError `json:"error,omitempty"`
	Usage *AnthropicUsage `json:"usage,omitempty"`
}

// AnthropicDelta represents delta content
type AnthropicDelta struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AnthropicError represents an error payload
type AnthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicUsage represents token usage
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// anthropicErrorBody is the non-2xx response shape.
type anthropicErrorBody struct {
	Error *AnthropicError `json:"error"`
}

// NewAnthropicHandler creates a new Anthropic handler
func NewAnthropicHandler(options llm.ApiHandlerOptions) *AnthropicHandler {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicHandler{
		options: options,
		// No client timeout: stream lifetime is governed by ctx.
		client:  &http.Client{},
		baseURL: baseURL,
	}
}

// Model implements the llm.ApiHandler interface
func (h *AnthropicHandler) Model() string { return h.options.ModelID }

// CreateMessage implements the llm.ApiHandler interface
func (h *AnthropicHandler) CreateMessage(ctx context.Context, systemPrompt string, messages []llm.Message) (llm.ApiStream, error) {
	if h.options.APIKey == "" {
		return nil, llm.ErrUnconfigured
	}

	maxTokens := h.options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	request := AnthropicRequest{
		Model:     h.options.ModelID,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages:  convertMessages(messages),
		Stream:    true,
	}

	return h.streamRequest(ctx, request)
}

// convertMessages converts history to Anthropic wire format, preserving
// part order within each turn.
func convertMessages(messages []llm.Message) []AnthropicMessage {
	out := make([]AnthropicMessage, 0, len(messages))
	for _, msg := range messages {
		var content []AnthropicContentBlock
		for _, block := range msg.Content {
			switch b := block.(type) {
			case llm.TextBlock:
				content = append(content, AnthropicContentBlock{
					Type: "text",
					Text: b.Text,
				})
			case llm.ImageBlock:
				content = append(content, AnthropicContentBlock{
					Type: "image",
					Source: &AnthropicImageSource{
						Type:      b.Source.Type,
						MediaType: b.Source.MediaType,
						Data:      b.Source.Data,
					},
				})
			}
		}
		out = append(out, AnthropicMessage{Role: msg.Role, Content: content})
	}
	return out
}

// streamRequest makes a streaming request to the Anthropic API
func (h *AnthropicHandler) streamRequest(ctx context.Context, request AnthropicRequest) (llm.ApiStream, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/messages", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", h.options.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &llm.NetworkError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		rejected := &llm.RemoteRejectedError{StatusCode: resp.StatusCode}
		var errBody anthropicErrorBody
		if json.Unmarshal(body, &errBody) == nil && errBody.Error != nil {
			rejected.Message = errBody.Error.Message
		}
		return nil, rejected
	}

	streamChan := make(chan llm.ApiStreamChunk, 64)
	go func() {
		defer close(streamChan)
		defer resp.Body.Close()
		h.processStream(resp.Body, streamChan)
	}()

	return streamChan, nil
}

// processStream decodes the SSE response. Malformed event payloads are
// skipped; the stream continues.
func (h *AnthropicHandler) processStream(reader io.Reader, streamChan chan<- llm.ApiStreamChunk) {
	scanner := llm.NewSSEScanner(reader)

	for scanner.Scan() {
		ev := scanner.Event()
		if ev.Data == "" || ev.Data == "[DONE]" {
			continue
		}

		var event AnthropicStreamEvent
		if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta != nil && event.Delta.Text != "" {
				streamChan <- llm.ApiStreamTextChunk{Text: event.Delta.Text}
			}
		case "message_delta":
			if event.Usage != nil {
				streamChan <- llm.ApiStreamUsageChunk{
					InputTokens:  event.Usage.InputTokens,
					OutputTokens: event.Usage.OutputTokens,
				}
			}
		case "message_stop":
			return
		case "error":
			msg := "stream error"
			if event.Error != nil && event.Error.Message != "" {
				msg = event.Error.Message
			}
			streamChan <- llm.ApiStreamErrorChunk{Err: errors.New(msg)}
			return
		}
	}

	// A read error mid-stream (including cancellation) surfaces in-band;
	// the consumer decides whether it was its own abort.
	if err := scanner.Err(); err != nil {
		streamChan <- llm.ApiStreamErrorChunk{Err: &llm.NetworkError{Err: err}}
	}
}
