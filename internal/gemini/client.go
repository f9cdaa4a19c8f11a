package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBodySize = 4096

var (
	ErrNoCandidates  = errors.New("no candidates in response")
	ErrNoAudio       = errors.New("no audio in response")
	ErrNotConfigured = errors.New("gemini API key not configured")
)

// APIError is a non-200 answer from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini error (status %d): %s", e.StatusCode, e.Body)
}

type Config struct {
	APIKey      string
	Endpoint    string
	TextModel   string
	SpeechModel string
	Voice       string
	Timeout     time.Duration
}

// Client talks to the generateContent REST endpoint.
type Client struct {
	config Config
	http   *http.Client
}

func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	config.Endpoint = strings.TrimRight(config.Endpoint, "/")
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
	}
}

// GenerateText asks the text model for the next turn of the conversation.
func (c *Client) GenerateText(ctx context.Context, system string, contents []Content) (string, error) {
	req := generateRequest{Contents: contents}
	if system != "" {
		req.SystemInstruction = &Content{Parts: []Part{TextPart(system)}}
	}

	resp, err := c.generate(ctx, c.config.TextModel, req)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", fmt.Errorf("empty reply (finish reason %q): %w", resp.Candidates[0].FinishReason, ErrNoCandidates)
	}
	return text.String(), nil
}

// Synthesize reads text aloud and returns raw 16-bit PCM.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	req := generateRequest{
		Contents: []Content{{Parts: []Part{TextPart(text)}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: c.config.Voice},
				},
			},
		},
	}

	resp, err := c.generate(ctx, c.config.SpeechModel, req)
	if err != nil {
		return nil, err
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, nil
		}
	}
	return nil, ErrNoAudio
}

func (c *Client) generate(ctx context.Context, model string, req generateRequest) (*generateResponse, error) {
	if c.config.APIKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.config.Endpoint, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// The key goes in a header so it never ends up in logged URLs.
	httpReq.Header.Set("x-goog-api-key", c.config.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(out.Candidates) == 0 {
		if out.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("blocked (%s): %w", out.PromptFeedback.BlockReason, ErrNoCandidates)
		}
		return nil, ErrNoCandidates
	}

	return &out, nil
}
