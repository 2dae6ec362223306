package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultClaudeBaseURL = "https://api.anthropic.com/v1/messages"

// Claude talks to the Anthropic messages API.
type Claude struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

func NewClaude(client *http.Client, apiKey, model, baseURL string) *Claude {
	if baseURL == "" {
		baseURL = defaultClaudeBaseURL
	}
	return &Claude{client: client, apiKey: apiKey, model: model, baseURL: baseURL}
}

func (c *Claude) Name() string { return "claude" }

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	Messages  []claudeMessage `json:"messages"`
	System    string          `json:"system,omitempty"`
	MaxTokens int             `json:"max_tokens"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Claude) Complete(ctx context.Context, system, user string) (string, error) {
	reqBody := claudeRequest{
		Model:     c.model,
		Messages:  []claudeMessage{{Role: "user", Content: user}},
		System:    system,
		MaxTokens: 1024, // Claude requires max_tokens
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ProviderError{Provider: c.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", &ProviderError{Provider: c.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: c.Name(), Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Provider: c.Name(), Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{
			Provider: c.Name(),
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("api error: %s", string(body)),
		}
	}

	var msgResp claudeResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return "", &ProviderError{Provider: c.Name(), Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if msgResp.Error != nil {
		return "", &ProviderError{Provider: c.Name(), Err: fmt.Errorf("%s: %s", msgResp.Error.Type, msgResp.Error.Message)}
	}
	for _, part := range msgResp.Content {
		if part.Type == "text" {
			return part.Text, nil
		}
	}
	return "", &ProviderError{Provider: c.Name(), Err: fmt.Errorf("no text content")}
}
