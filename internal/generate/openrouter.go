package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const openRouterEndpoint = "https://openrouter.ai/api/v1/chat/completions"

type OpenRouterRunner struct {
	apiKey   string
	siteURL  string
	endpoint string
	client   *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (o *OpenRouterRunner) Generate(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	siteURL := o.siteURL
	if siteURL == "" {
		siteURL = "http://localhost:8080"
	}
	req.Header.Set("HTTP-Referer", siteURL)
	req.Header.Set("X-Title", "qbank")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: openrouter: %v", ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: openrouter read: %v", ErrProviderFailed, err)
	}

	var out chatResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("%w: openrouter status %d: %s", ErrProviderFailed, resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("%w: openrouter status %d", ErrProviderFailed, resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: openrouter decode: %v", ErrProviderFailed, decodeErr)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty openrouter response", ErrProviderFailed)
	}
	return out.Choices[0].Message.Content, nil
}
