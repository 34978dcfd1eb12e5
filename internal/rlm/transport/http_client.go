package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient is a minimal reference Client grounded on
// itsmostafa-goralph's internal/rlm/runner.go callLLM, generalized from
// a single hardcoded vendor to a configurable endpoint/auth so it can
// point at any OpenAI/Anthropic-compatible chat completions API. It
// exists so the agent loop has something concrete to call end to end;
// spec §1 places the transport's real vendor integration out of scope.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	AuthHeader string // default "Authorization"; set to "x-api-key" for Anthropic-style auth
	HTTPClient *http.Client
}

// NewHTTPClient builds a reference client with sane defaults.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		APIKey:     apiKey,
		AuthHeader: "Authorization",
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
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
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements Client against an OpenAI-compatible
// /v1/chat/completions endpoint.
func (c *HTTPClient) Complete(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (string, error) {
	req := chatRequest{Model: model, MaxTokens: maxTokens, Temperature: temperature}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	authHeader := c.AuthHeader
	if authHeader == "" {
		authHeader = "Authorization"
	}
	authVal := c.APIKey
	if authHeader == "Authorization" {
		authVal = "Bearer " + c.APIKey
	}
	httpReq.Header.Set(authHeader, authVal)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("llm api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
