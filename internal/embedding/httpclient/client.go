// Package httpclient talks to the embedding and similarity search services
// over JSON HTTP.
package httpclient

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

	"github.com/DukeRupert/regdesk/internal/embedding"
	"github.com/DukeRupert/regdesk/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	embedPath  = "/v1/embeddings"
	searchPath = "/v1/search"

	// maxResponseSize caps how much of a response body is read (8MB).
	maxResponseSize = 8 << 20
)

// Config contains configuration for the HTTP client.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	ProviderConfig embedding.ProviderConfig
}

// Client implements embedding.Embedder and embedding.Searcher.
type Client struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a new HTTP client for the embedding and search services.
func New(config Config, logger *slog.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("embedding service URL is required")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	// Set defaults
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 200 * time.Millisecond
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.ProviderConfig.RequestsPerSec > 0 {
		burst := config.ProviderConfig.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.ProviderConfig.RequestsPerSec), burst)
	}

	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		limiter: limiter,
		logger:  logger,
	}, nil
}

type embedRequest struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

type embedResponse struct {
	Embedding embedding.Vector `json:"embedding"`
}

// Embed returns the embedding for text.
func (c *Client) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	start := time.Now()

	body, err := c.execute(ctx, "embed", embedPath, embedRequest{Input: text, Model: c.config.Model})
	if err != nil {
		metrics.UpstreamCall("embed", "error", time.Since(start))
		return nil, embedding.WrapError("embed", err)
	}

	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.UpstreamCall("embed", "error", time.Since(start))
		return nil, embedding.WrapError("embed", fmt.Errorf("unmarshal response: %w", err))
	}
	if len(resp.Embedding) == 0 {
		metrics.UpstreamCall("embed", "error", time.Since(start))
		return nil, embedding.WrapError("embed", errors.New("empty embedding"))
	}

	metrics.UpstreamCall("embed", "success", time.Since(start))
	return resp.Embedding, nil
}

type searchRequest struct {
	Vector  embedding.Vector `json:"vector"`
	Filters map[string]any   `json:"filters,omitempty"`
	Limit   int              `json:"limit"`
}

type searchResponse struct {
	Results json.RawMessage `json:"results"`
}

// SimilaritySearch runs a vector search and returns the results array.
func (c *Client) SimilaritySearch(ctx context.Context, params embedding.SearchParams) (json.RawMessage, error) {
	start := time.Now()

	body, err := c.execute(ctx, "search", searchPath, searchRequest{
		Vector:  params.Vector,
		Filters: params.Filters,
		Limit:   params.Limit,
	})
	if err != nil {
		metrics.UpstreamCall("search", "error", time.Since(start))
		return nil, embedding.WrapError("search", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.UpstreamCall("search", "error", time.Since(start))
		return nil, embedding.WrapError("search", fmt.Errorf("unmarshal response: %w", err))
	}
	if len(resp.Results) == 0 || string(resp.Results) == "null" {
		resp.Results = json.RawMessage(`[]`)
	}

	metrics.UpstreamCall("search", "success", time.Since(start))
	return resp.Results, nil
}

// execute sends payload to path, retrying transient failures with
// exponential backoff.
func (c *Client) execute(ctx context.Context, operation, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error

	for attempt := 1; attempt <= c.config.ProviderConfig.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", embedding.ErrTimeout, err)
		}

		body, err := c.executeRequest(ctx, path, reqBody)
		if err == nil {
			return body, nil
		}

		lastErr = err

		// Only retry on retryable errors
		if !embedding.IsRetryable(err) {
			return nil, err
		}

		// Don't retry if we've exhausted attempts
		if attempt >= c.config.ProviderConfig.MaxRetries {
			break
		}

		// Exponential: base * 2^(attempt-1)
		delay := c.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		c.logger.Info("Retrying upstream request", "operation", operation, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", embedding.ErrTimeout, ctx.Err())
		}
	}

	return nil, lastErr
}

// executeRequest executes a single HTTP request
func (c *Client) executeRequest(ctx context.Context, path string, reqBody []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", embedding.ErrTimeout, err)
		}
		// Network errors are typically retryable
		return nil, fmt.Errorf("%w: %v", embedding.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", embedding.ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, body)
	}

	return body, nil
}

// mapHTTPError maps HTTP status codes to upstream errors
func mapHTTPError(statusCode int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200]
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return embedding.ErrUnauthorized
	case statusCode == http.StatusTooManyRequests:
		return embedding.ErrRateLimit
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return embedding.ErrTimeout
	case statusCode >= 500:
		return fmt.Errorf("%w: status %d", embedding.ErrUnavailable, statusCode)
	default:
		return fmt.Errorf("%w: status %d: %s", embedding.ErrBadRequest, statusCode, detail)
	}
}
