// Package decorator calls an optional prompt-rewriting service before a
// message reaches the agent.
package decorator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tsantana84/codex-http/internal/config"
)

// Decorator rewrites prompts through a remote service. A Decorator with no
// URL returns every prompt unchanged.
type Decorator struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a decorator for url. The timeout bounds the whole call.
func New(url string, timeout time.Duration, logger *slog.Logger) *Decorator {
	if timeout <= 0 {
		timeout = config.DefaultDecoratorTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decorator{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Enabled reports whether a decorator URL is configured
func (d *Decorator) Enabled() bool {
	return d.url != ""
}

// Decorate returns the service's rewrite of text, or text itself when the
// decorator is disabled, the call fails, or the reply has no usable prompt.
// It never retries.
func (d *Decorator) Decorate(ctx context.Context, text string) string {
	if d.url == "" {
		return text
	}
	decorated, err := d.call(ctx, text)
	if err != nil {
		d.logger.Warn("prompt decoration failed, using original prompt", "error", err)
		return text
	}
	return decorated
}

func (d *Decorator) call(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("decorator returned %s", resp.Status)
	}

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("invalid decorator response: %w", err)
	}

	// "prompt" wins whenever it is present and non-null
	candidate, ok := data["prompt"]
	if !ok || candidate == nil {
		candidate = data["decorated"]
	}
	decorated, ok := candidate.(string)
	if !ok || decorated == "" {
		return "", fmt.Errorf("decorator response has no prompt")
	}
	return decorated, nil
}
