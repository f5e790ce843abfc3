package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/agentdispatch/internal/reliability"
)

type OpenAIBrainConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIBrain calls an OpenAI-compatible chat completions endpoint.
type OpenAIBrain struct {
	cfg    OpenAIBrainConfig
	client *http.Client
}

const brainMaxAttempts = 3

func NewOpenAIBrain(cfg OpenAIBrainConfig) *OpenAIBrain {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &OpenAIBrain{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (b *OpenAIBrain) Reply(ctx context.Context, history []Message, userText string) (string, error) {
	messages := append(append([]Message{}, history...), Message{Role: "user", Content: userText})
	body, err := json.Marshal(chatRequest{Model: b.cfg.Model, Messages: messages})
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < brainMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt, 250*time.Millisecond, 2*time.Second)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, retryable, err := b.attempt(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", fmt.Errorf("chat completion failed after %d attempts: %w", brainMaxAttempts, lastErr)
}

func (b *OpenAIBrain) attempt(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(b.cfg.BaseURL, "/")+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := b.client.Do(req)
	if err != nil {
		return "", true, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", true, err
	}
	if res.StatusCode != http.StatusOK {
		return "", reliability.IsRetryableHTTPStatus(res.StatusCode),
			fmt.Errorf("chat completion status %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, fmt.Errorf("decode chat completion: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("chat completion error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), false, nil
}
