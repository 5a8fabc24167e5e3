package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"qbank/internal/question"
)

// Client saves batches through a remote qbank server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

type batchRequest struct {
	Questions []question.ApprovedQuestion `json:"questions"`
}

type envelope struct {
	OK    bool `json:"ok"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// SaveBatch posts the whole batch in a single request.
func (c *Client) SaveBatch(ctx context.Context, poolID int64, items []question.ApprovedQuestion) error {
	body, err := json.Marshal(batchRequest{Questions: items})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/pools/%d/questions/batch", c.baseURL, poolID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post batch: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := http.StatusText(resp.StatusCode)
	var env envelope
	if json.Unmarshal(raw, &env) == nil && env.Error != nil && env.Error.Message != "" {
		msg = env.Error.Message
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrPoolNotFound, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
	default:
		return fmt.Errorf("server status %d: %s", resp.StatusCode, msg)
	}
}
