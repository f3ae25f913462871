// Package search answers similarity search queries through the result
// cache.
package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/DukeRupert/regdesk/internal/cache"
	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/DukeRupert/regdesk/internal/embedding"
	"golang.org/x/sync/singleflight"
)

// MaxQueryLength is the longest accepted query, in characters.
const MaxQueryLength = 1000

// DefaultFetchTimeout bounds one shared upstream fetch.
const DefaultFetchTimeout = 30 * time.Second

// ResultCache is the subset of cache.ResultCache used by the service.
type ResultCache interface {
	Get(ctx context.Context, query string, filters domain.SearchFilters) (*domain.CacheEntry, error)
	Set(ctx context.Context, query string, results json.RawMessage, filters domain.SearchFilters, ttl time.Duration) error
}

// Params contains the parameters for a search.
type Params struct {
	Query   string
	Filters domain.SearchFilters
	Limit   int
	Tier    domain.Tier
}

// Response is a search answer.
type Response struct {
	Query   string          `json:"query"`
	Results json.RawMessage `json:"results"`
	Limit   int             `json:"limit"`
	Cached  bool            `json:"cached"`
}

// Service runs searches.
type Service struct {
	cache    ResultCache
	embedder embedding.Embedder
	searcher embedding.Searcher
	logger   *slog.Logger
	group    singleflight.Group
	timeout  time.Duration
}

// NewService creates a search Service.
func NewService(cache ResultCache, embedder embedding.Embedder, searcher embedding.Searcher, logger *slog.Logger) *Service {
	return &Service{
		cache:    cache,
		embedder: embedder,
		searcher: searcher,
		logger:   logger,
		timeout:  DefaultFetchTimeout,
	}
}

// WithFetchTimeout sets the deadline of a shared upstream fetch. A
// non-positive timeout keeps the current one.
func (s *Service) WithFetchTimeout(timeout time.Duration) *Service {
	if timeout > 0 {
		s.timeout = timeout
	}
	return s
}

// fetchLimit is requested from the search service on every miss so that one
// cached entry can serve every tier.
var fetchLimit = domain.GetPolicy(domain.TierEnterprise).ResultsPerSearch

// Search answers params from the cache, or from the embedding and search
// services on a miss. Cache failures are logged and bypassed. The limit is
// clamped to the tier's results per search.
func (s *Service) Search(ctx context.Context, params Params) (*Response, error) {
	const op = "search.search"

	if cache.NormalizeQuery(params.Query) == "" {
		return nil, domain.Invalid(op, "query is required")
	}
	if utf8.RuneCountInString(params.Query) > MaxQueryLength {
		return nil, domain.Errorf(domain.EINVALID, op, "query must be at most %d characters", MaxQueryLength)
	}

	limit := clampLimit(params.Limit, domain.GetPolicy(params.Tier).ResultsPerSearch)

	entry, err := s.cache.Get(ctx, params.Query, params.Filters)
	if err != nil {
		s.logger.Warn("Cache lookup failed, searching upstream", "error", err)
	}
	if entry != nil {
		return s.respond(params.Query, entry.Results, limit, true)
	}

	key, err := cache.Key(params.Query, params.Filters)
	if err != nil {
		return nil, err
	}

	// The fetch is shared by every caller waiting on key and outlives any
	// one of them.
	ch := s.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.fetch(fetchCtx, params)
	})

	select {
	case <-ctx.Done():
		return nil, domain.Unavailable(ctx.Err(), op, "search cancelled")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return s.respond(params.Query, res.Val.(json.RawMessage), limit, false)
	}
}

// fetch embeds the query, runs the similarity search and caches the result.
func (s *Service) fetch(ctx context.Context, params Params) (json.RawMessage, error) {
	const op = "search.fetch"

	vector, err := s.embedder.Embed(ctx, params.Query)
	if err != nil {
		return nil, domain.Unavailable(err, op, "embedding service unavailable")
	}

	results, err := s.searcher.SimilaritySearch(ctx, embedding.SearchParams{
		Vector:  vector,
		Filters: params.Filters,
		Limit:   fetchLimit,
	})
	if err != nil {
		return nil, domain.Unavailable(err, op, "search service unavailable")
	}

	if err := s.cache.Set(ctx, params.Query, results, params.Filters, 0); err != nil {
		s.logger.Warn("Failed to cache search results", "error", err)
	}

	return results, nil
}

func (s *Service) respond(query string, results json.RawMessage, limit int, cached bool) (*Response, error) {
	return &Response{
		Query:   query,
		Results: truncate(results, limit),
		Limit:   limit,
		Cached:  cached,
	}, nil
}

func clampLimit(requested, max int) int {
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}

// truncate keeps the first limit elements of a JSON array. Any other
// payload is returned unchanged.
func truncate(results json.RawMessage, limit int) json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(results, &items); err != nil || len(items) <= limit {
		return results
	}

	b, err := json.Marshal(items[:limit])
	if err != nil {
		return results
	}
	return b
}
