package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ChatBackend is an OpenAI-compatible chat-completion HTTP backend that can
// serve as the reasoning backend for privilege Stage 2 escalation. The
// ediscoveryctl command does not construct one; it wires GenAIBackend.
type ChatBackend struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewChatBackend creates a ChatBackend for an OpenAI-compatible endpoint.
// apiKey is held only for the lifetime of the backend and never logged.
func NewChatBackend(apiKey, baseURL, model string) *ChatBackend {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &ChatBackend{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends one chat-completion request and returns the model's raw
// text response. Retryable failures (429/503) are retried by the caller's
// backoff policy; this method itself makes exactly one HTTP round trip.
func (c *ChatBackend) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model:       c.model,
		MaxTokens:   4096,
		Temperature: 0.2,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("modelclient.Generate: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("modelclient.Generate: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("modelclient.Generate: do: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("modelclient.Generate: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return "", &retryableError{err: fmt.Errorf("modelclient.Generate: status %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return "", &retryableError{err: fmt.Errorf("modelclient.Generate: server error %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("modelclient.Generate: unexpected status %d: %s", resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("modelclient.Generate: decode: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("modelclient.Generate: API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("modelclient.Generate: empty response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// retryableError marks an error as eligible for the backoff policy.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// withBackoff retries fn per cenkalti/backoff/v4's exponential policy,
// but only while fn returns a *retryableError; any other error aborts
// immediately (backoff.Permanent semantics).
func withBackoff[T any](ctx context.Context, maxElapsed time.Duration, fn func() (T, error)) (T, error) {
	var result T
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 4 * time.Second
	bo.MaxElapsedTime = maxElapsed

	err := backoff.Retry(func() error {
		r, err := fn()
		result = r
		if err == nil {
			return nil
		}
		var re *retryableError
		if ok := isRetryable(err, &re); !ok {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))

	return result, err
}

func isRetryable(err error, target **retryableError) bool {
	type unwrapper interface{ Unwrap() error }
	for e := err; e != nil; {
		if re, ok := e.(*retryableError); ok {
			*target = re
			return true
		}
		u, ok := e.(unwrapper)
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}
