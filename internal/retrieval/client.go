// Package retrieval queries a knowledge-base search service and formats the
// matching documents as context for a user message.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tsantana84/codex-http/internal/cache"
	"github.com/tsantana84/codex-http/internal/config"
	"github.com/tsantana84/codex-http/internal/retry"
)

// ErrInvalidResponse is returned when the search service replies with a body
// missing documents, query, or total_results
var ErrInvalidResponse = errors.New("invalid retrieval response format")

// Document is a retrieved knowledge-base document
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// SearchResponse is the search service reply. Documents holds only the
// documents at or above the threshold; TotalResults is reported unchanged.
type SearchResponse struct {
	Documents    []Document `json:"documents"`
	Query        string     `json:"query"`
	TotalResults int        `json:"total_results"`
}

// SearchOptions overrides the configured topK and threshold for one search
type SearchOptions struct {
	TopK      int
	Threshold float64
}

type searchRequest struct {
	Query     string  `json:"query"`
	TopK      int     `json:"top_k"`
	Threshold float64 `json:"threshold"`
}

// Client talks to the search service
type Client struct {
	cfg        config.RetrievalConfig
	policy     retry.Policy
	httpClient *http.Client
	cache      *cache.TTLCache[*SearchResponse]
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithLogger sets the client logger
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// New creates a client. Zero-valued settings fall back to the defaults in
// internal/config. A positive CacheTTL enables result caching.
func New(cfg config.RetrievalConfig, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TopK <= 0 {
		cfg.TopK = config.DefaultRetrievalTopK
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = config.DefaultRetrievalThreshold
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.Duration(config.DefaultRetrievalTimeout)
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = config.Duration(config.DefaultRetrievalHealthTimeout)
	}

	c := &Client{
		cfg:        cfg,
		policy:     cfg.RetryPolicy(),
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.CacheTTL > 0 {
		c.cache = cache.New[*SearchResponse](cfg.CacheTTL.Std())
	}
	return c
}

// Config returns the effective configuration
func (c *Client) Config() config.RetrievalConfig {
	return c.cfg
}

// Enabled reports whether searches are performed
func (c *Client) Enabled() bool {
	return c.cfg.Enabled
}

// Close releases the result cache
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

// Search posts query to the search service, retrying failed attempts with a
// fixed delay. It returns (nil, nil) when retrieval is disabled and an error
// once every attempt has failed; callers treat both as "no context".
func (c *Client) Search(ctx context.Context, query string, opts *SearchOptions) (*SearchResponse, error) {
	if !c.cfg.Enabled {
		c.logger.Debug("retrieval disabled, skipping search")
		return nil, nil
	}

	req := searchRequest{Query: query, TopK: c.cfg.TopK, Threshold: c.cfg.Threshold}
	if opts != nil {
		if opts.TopK > 0 {
			req.TopK = opts.TopK
		}
		if opts.Threshold > 0 {
			req.Threshold = opts.Threshold
		}
	}

	key := fmt.Sprintf("%s|%d|%g", req.Query, req.TopK, req.Threshold)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			return cached, nil
		}
	}

	var result *SearchResponse
	err := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) error {
		resp, err := c.searchOnce(ctx, req)
		if err != nil {
			return err
		}
		result = resp
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("retrieval search attempt failed, retrying",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)
	})
	if err != nil {
		c.logger.Warn("retrieval search failed",
			"attempts", c.policy.Attempts(),
			"error", err)
		return nil, fmt.Errorf("retrieval search failed after %d attempts: %w", c.policy.Attempts(), err)
	}

	if c.cache != nil {
		_ = c.cache.Store(key, result)
	}
	return result, nil
}

func (c *Client) searchOnce(ctx context.Context, req searchRequest) (*SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout.Std())
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("retrieval API error: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read retrieval response: %w", err)
	}
	if err := validateResponse(data); err != nil {
		return nil, err
	}

	var parsed SearchResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	kept := make([]Document, 0, len(parsed.Documents))
	for _, doc := range parsed.Documents {
		if doc.Score >= req.Threshold {
			kept = append(kept, doc)
		}
	}
	c.logger.Debug("retrieval search successful",
		"kept", len(kept),
		"returned", len(parsed.Documents))
	parsed.Documents = kept
	return &parsed, nil
}

// validateResponse checks field presence and JSON types before decoding
func validateResponse(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if _, ok := raw["documents"].([]any); !ok {
		return ErrInvalidResponse
	}
	if _, ok := raw["query"].(string); !ok {
		return ErrInvalidResponse
	}
	if _, ok := raw["total_results"].(float64); !ok {
		return ErrInvalidResponse
	}
	return nil
}

// HealthCheck reports whether GET /health answers with a 2xx status
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout.Std())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("retrieval health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// EnhanceMessage prepends retrieved context to message. The message is
// returned unchanged when retrieval is disabled, fails, or finds nothing.
func (c *Client) EnhanceMessage(ctx context.Context, message string) string {
	results, err := c.Search(ctx, message, nil)
	if err != nil || results == nil || len(results.Documents) == 0 {
		return message
	}
	return FormatDocuments(results.Documents) + "\n---\n\n# User Query\n" + message
}
