package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lorekeep/lorekeep/internal/config"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	// The embeddings endpoint caps batch size; larger inputs are
	// split into sub-batches and reassembled in order.
	maxEmbeddingBatch = 100

	maxAttempts = 3
	retryDelay  = 500 * time.Millisecond
)

// ErrNotConfigured is returned when no API key is set. Callers fail
// fast instead of issuing requests that cannot succeed.
var ErrNotConfigured = errors.New("provider_not_configured")

// ProviderError describes a failed upstream call.
type ProviderError struct {
	Provider string
	Model    string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s request failed: model=%s status=%d %s", e.Provider, e.Model, e.Status, e.Message)
}

// Message is a single turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption of a completion call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the generated answer plus its token usage.
type Completion struct {
	Content string
	Model   string
	Usage   Usage
}

// EmbeddingClient produces embedding vectors for text.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	Model() string
}

// ChatClient generates answers from a message history.
type ChatClient interface {
	Complete(ctx context.Context, messages []Message) (Completion, error)
	ChatModel() string
}

// Client talks to an OpenAI-compatible HTTP API. A single client backs
// both the embeddings and the chat completions endpoints.
type Client struct {
	baseURL        string
	apiKey         string
	embeddingModel string
	chatModel      string
	temperature    float64
	maxTokens      int
	http           *http.Client
	log            *zap.Logger
}

func NewClient(cfg config.OpenAIConfig, log *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:        baseURL,
		apiKey:         cfg.APIKey,
		embeddingModel: cfg.EmbeddingModel,
		chatModel:      cfg.ChatModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		http:           &http.Client{Timeout: timeout},
		log:            log.Named("providers.openai"),
	}
}

func (c *Client) Model() string { return c.embeddingModel }

// ChatModel returns the configured completion model.
func (c *Client) ChatModel() string { return c.chatModel }

func (c *Client) configured() bool { return c.apiKey != "" }

func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts preserving input order. Inputs beyond the
// endpoint batch cap are split into sequential sub-batches.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbeddingBatch {
		end := start + maxEmbeddingBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	payload := map[string]any{
		"input": texts,
		"model": c.embeddingModel,
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/embeddings", c.embeddingModel, payload, &out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, &ProviderError{
			Provider: "openai",
			Model:    c.embeddingModel,
			Message:  fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(out.Data)),
		}
	}

	vectors := make([][]float64, len(texts))
	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, &ProviderError{
				Provider: "openai",
				Model:    c.embeddingModel,
				Message:  fmt.Sprintf("embedding index %d out of range", item.Index),
			}
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func (c *Client) Complete(ctx context.Context, messages []Message) (Completion, error) {
	if !c.configured() {
		return Completion{}, ErrNotConfigured
	}

	payload := map[string]any{
		"model":       c.chatModel,
		"messages":    messages,
		"temperature": c.temperature,
	}
	if c.maxTokens > 0 {
		payload["max_tokens"] = c.maxTokens
	}

	var out struct {
		Model   string `json:"model"`
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := c.post(ctx, "/chat/completions", c.chatModel, payload, &out); err != nil {
		return Completion{}, err
	}
	if len(out.Choices) == 0 {
		return Completion{}, &ProviderError{
			Provider: "openai",
			Model:    c.chatModel,
			Message:  "no choices returned",
		}
	}

	model := out.Model
	if model == "" {
		model = c.chatModel
	}
	return Completion{
		Content: out.Choices[0].Message.Content,
		Model:   model,
		Usage:   out.Usage,
	}, nil
}

// post sends a JSON request and decodes the response, retrying
// rate-limit and server errors with a short backoff.
func (c *Client) post(ctx context.Context, path, model string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay * time.Duration(attempt-1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warn("request failed", zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		if resp.StatusCode >= 300 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = &ProviderError{
				Provider: "openai",
				Model:    model,
				Status:   resp.StatusCode,
				Message:  string(data),
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				c.log.Warn("retryable upstream status",
					zap.String("path", path),
					zap.Int("status", resp.StatusCode),
					zap.Int("attempt", attempt),
				)
				continue
			}
			return lastErr
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		return err
	}
	return lastErr
}
