// Package llm implements the structured-extraction client: one vision chat
// request per catalog page against an OpenRouter-compatible endpoint, with
// response validation and retry.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/lucerna/catalog-engine/internal/config"
	"github.com/lucerna/catalog-engine/internal/domain"
	"github.com/lucerna/catalog-engine/internal/observability"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel   = "x-ai/grok-4.1-fast:free"

	maxResponseTokens = 2048
)

// Client handles communication with the extraction model.
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	logger     *observability.Logger
	schema     map[string]any
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice
type Choice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatMessage is the non-streaming message payload of a choice.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewClient creates a new extraction client.
func NewClient(cfg config.LLMConfig, logger *observability.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, domain.ConfigError("extraction API key is required", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}
	if logger == nil {
		logger = observability.Nop()
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger.WithComponent("llm"),
		schema:     BuildCandidateSchema(),
	}, nil
}

// ExtractProducts sends one page (raster plus extracted text) to the model
// and returns the validated candidate records. Transport errors, retryable
// HTTP statuses, timeouts, and malformed or schema-invalid payloads each
// consume one attempt; after the attempt budget is exhausted the page fails
// with an ExtractionError and the job moves on.
func (c *Client) ExtractProducts(ctx context.Context, page domain.PageUnit) ([]domain.CandidateRecord, error) {
	body, err := c.buildRequest(buildExtractionPrompt(page.Text), page.Image)
	if err != nil {
		return nil, domain.ExtractionError(fmt.Sprintf("page %d: failed to build request", page.Number), err)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt-1, c.cfg.InitialBackoff, c.cfg.MaxBackoff)
			c.logger.Warn().
				Int("page", page.Number).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying page extraction")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		content, err := c.complete(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		records, err := c.parseAndValidate(content, page.Number)
		if err != nil {
			lastErr = err
			continue
		}
		return records, nil
	}

	return nil, domain.ExtractionError(
		fmt.Sprintf("page %d failed after %d attempts", page.Number, c.cfg.MaxAttempts), lastErr)
}

// Describe returns a one-line caption for a product image. Captions are
// best-effort; callers tolerate an error by storing the image without one.
func (c *Client) Describe(ctx context.Context, img image.Image) (string, error) {
	body, err := c.buildRequest(buildCaptionPrompt(), img)
	if err != nil {
		return "", domain.APIError("failed to build caption request", err)
	}

	content, err := c.complete(ctx, body)
	if err != nil {
		return "", err
	}
	return content, nil
}

// buildRequest constructs the API request body with the prompt and image.
func (c *Client) buildRequest(prompt string, img image.Image) ([]byte, error) {
	dataURL, err := encodeImageDataURL(img)
	if err != nil {
		return nil, err
	}

	msg := Message{
		Role: "user",
		Content: []ContentPart{
			{
				Type:     "image_url",
				ImageURL: &ImageURL{URL: dataURL},
			},
			{
				Type: "text",
				Text: prompt,
			},
		},
	}

	req := &Request{
		Model:       c.cfg.Model,
		Messages:    []Message{msg},
		MaxTokens:   maxResponseTokens,
		Temperature: 0.1,
		Stream:      false,
	}

	return json.Marshal(req)
}

// complete performs one HTTP round trip and returns the first choice's
// content. Every failure is returned as an APIError; the caller decides how
// many attempts a page is worth.
func (c *Client) complete(ctx context.Context, body []byte) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", domain.APIError("failed to build HTTP request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.APIError("failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", domain.APIError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, string(b)), nil)
	}

	var apiResp Response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", domain.APIError("failed to decode API response", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", domain.APIError("no choices in API response", nil)
	}

	return apiResp.Choices[0].Message.Content, nil
}

// parseAndValidate turns raw model output into candidate records. The array
// must satisfy the candidate schema before any entry is accepted.
func (c *Client) parseAndValidate(content string, pageNumber int) ([]domain.CandidateRecord, error) {
	raw, err := ParseCandidateArray(content)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, domain.ValidationError("failed to re-encode candidate array", err)
	}
	if err := ValidateAgainstSchema(c.schema, encoded); err != nil {
		return nil, domain.ValidationError("candidate array failed schema validation", err)
	}

	return decodeCandidates(raw, pageNumber), nil
}
