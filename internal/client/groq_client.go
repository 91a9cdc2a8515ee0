package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/episodeline/pipeline/internal/config"
)

// ErrAIUnavailable is returned when the breaker is open or the client has
// no credentials.
var ErrAIUnavailable = errors.New("ai service unavailable")

// AIClient produces a text completion for a system and user prompt.
type AIClient interface {
	ChatCompletion(ctx context.Context, system, user string) (string, error)
	IsConfigured() bool
}

// GroqClient handles communication with Groq's OpenAI-compatible API
type GroqClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	breaker    *gobreaker.CircuitBreaker
}

// ChatMessage represents a message in the chat completion request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest represents the request body for chat completion
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse represents the response from chat completion
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func NewGroqClient(cfg *config.GroqConfig) *GroqClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &GroqClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "groq",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}),
	}
}

// ChatCompletion sends a chat completion request through the circuit breaker
func (c *GroqClient) ChatCompletion(ctx context.Context, system, user string) (string, error) {
	if !c.IsConfigured() {
		return "", ErrAIUnavailable
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.complete(ctx, system, user)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrAIUnavailable, err)
		}
		return "", err
	}
	return result.(string), nil
}

func (c *GroqClient) complete(ctx context.Context, system, user string) (string, error) {
	reqBody := ChatCompletionRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.3,
		MaxTokens:   2000,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("groq API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GroqClient) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}
