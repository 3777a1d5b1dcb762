package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultCloudBaseURL = "https://api.elevenlabs.io"
	cloudModelID        = "eleven_multilingual_v2"
)

// CloudClient talks to the ElevenLabs synthesis API.
type CloudClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewCloudClient(apiKey, baseURL string) *CloudClient {
	if baseURL == "" {
		baseURL = defaultCloudBaseURL
	}
	return &CloudClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize converts one text chunk into audio bytes.
func (c *CloudClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, ModelID: cloudModelID})
	if err != nil {
		return nil, fmt.Errorf("marshaling synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, remoteError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	return audio, nil
}

type voicesResponse struct {
	Voices []struct {
		VoiceID string            `json:"voice_id"`
		Name    string            `json:"name"`
		Labels  map[string]string `json:"labels"`
	} `json:"voices"`
}

// Voices lists the voices available to the configured API key.
func (c *CloudClient) Voices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("creating voices request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, remoteError(resp)
	}

	var parsed voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding voices response: %w", err)
	}
	voices := make([]Voice, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		voices = append(voices, Voice{ID: v.VoiceID, Name: v.Name, Labels: v.Labels})
	}
	return voices, nil
}

func remoteError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed struct {
		Detail struct {
			Message string `json:"message"`
		} `json:"detail"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &parsed); err == nil {
		msg = parsed.Detail.Message
	}
	return &RemoteRejectedError{StatusCode: resp.StatusCode, Message: msg}
}
