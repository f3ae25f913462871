// Package embedding defines the clients for the external embedding and
// similarity search services.
package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/regdesk/internal/domain"
)

// Embedder turns a query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
}

// Searcher runs a similarity search over the regulatory corpus.
type Searcher interface {
	// SimilaritySearch returns the search service's result payload as-is.
	SimilaritySearch(ctx context.Context, params SearchParams) (json.RawMessage, error)
}

// Vector is an embedding.
type Vector []float32

// SearchParams contains parameters for a similarity search.
type SearchParams struct {
	Vector  Vector
	Filters domain.SearchFilters
	Limit   int
}

// ProviderConfig contains common configuration for upstream clients.
type ProviderConfig struct {
	MaxRetries     int           // Maximum attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
	RequestsPerSec float64       // Outbound request rate; 0 disables throttling
	Burst          int           // Outbound burst size
}

// Error codes for upstream operations
var (
	// ErrRateLimit indicates the upstream rate limit has been exceeded
	ErrRateLimit = errors.New("embedding service rate limit exceeded")

	// ErrTimeout indicates the request timed out
	ErrTimeout = errors.New("embedding request timed out")

	// ErrUnavailable indicates the service is temporarily unavailable
	ErrUnavailable = errors.New("embedding service temporarily unavailable")

	// ErrUnauthorized indicates invalid API credentials
	ErrUnauthorized = errors.New("embedding service authentication failed")

	// ErrBadRequest indicates the service rejected the request
	ErrBadRequest = errors.New("embedding service rejected request")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUnavailable)
}

// WrapError wraps an error with context about the upstream operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("embedding %s: %w", operation, err)
}
