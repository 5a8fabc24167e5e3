package generate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	ErrProviderUnavailable = errors.New("model provider not configured")
	ErrProviderFailed      = errors.New("model provider request failed")
)

// Runner turns a prompt into raw model text.
type Runner interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

type RouterConfig struct {
	GeminiAPIKey     string
	OpenRouterAPIKey string
	SiteURL          string
	Timeout          time.Duration
	HTTPClient       *http.Client
}

// Router sends gemini models to Google and everything else to OpenRouter.
type Router struct {
	gemini     Runner
	openRouter Runner
}

func NewRouter(cfg RouterConfig) *Router {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	r := &Router{}
	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		r.gemini = &GeminiRunner{apiKey: key, client: client, baseURL: geminiBaseURL}
	}
	if key := strings.TrimSpace(cfg.OpenRouterAPIKey); key != "" {
		r.openRouter = &OpenRouterRunner{apiKey: key, siteURL: cfg.SiteURL, client: client, endpoint: openRouterEndpoint}
	}
	return r
}

func (r *Router) Generate(ctx context.Context, model, prompt string) (string, error) {
	target := r.openRouter
	if isGeminiModel(model) {
		target = r.gemini
	}
	if target == nil {
		return "", ErrProviderUnavailable
	}
	return target.Generate(ctx, model, prompt)
}

func isGeminiModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "gemini")
}
