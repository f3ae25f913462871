// Package mock provides an in-process embedder and searcher for
// development and tests.
package mock

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/DukeRupert/regdesk/internal/embedding"
)

// Dimensions is the length of vectors returned by Embed.
const Dimensions = 8

// Provider is a mock embedding and search provider for testing and
// development.
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	EmbedError    error
	SearchResults json.RawMessage
	SearchError   error

	// Call tracking for testing
	EmbedCalls  int
	SearchCalls int
	LastSearch  embedding.SearchParams
}

// New creates a new mock provider.
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Embed returns a deterministic vector derived from the text.
func (p *Provider) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.EmbedCalls++
	if p.EmbedError != nil {
		return nil, p.EmbedError
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	v := make(embedding.Vector, Dimensions)
	for i := range v {
		v[i] = float32((seed>>(i*8))&0xff) / 255
	}
	return v, nil
}

// SimilaritySearch returns SearchResults, or a canned list of citations
// trimmed to the requested limit.
func (p *Provider) SimilaritySearch(ctx context.Context, params embedding.SearchParams) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.SearchCalls++
	p.LastSearch = params
	if p.SearchError != nil {
		return nil, p.SearchError
	}
	if p.SearchResults != nil {
		return p.SearchResults, nil
	}

	results := cannedResults
	if params.Limit > 0 && params.Limit < len(results) {
		results = results[:params.Limit]
	}
	return json.Marshal(results)
}

// Calls returns the embed and search call counts.
func (p *Provider) Calls() (embed, search int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.EmbedCalls, p.SearchCalls
}

type result struct {
	DocumentID string  `json:"documentId"`
	Citation   string  `json:"citation"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
}

var cannedResults = []result{
	{DocumentID: "osha-1926-501", Citation: "29 CFR 1926.501(b)(1)", Title: "Duty to have fall protection: unprotected sides and edges", Score: 0.93},
	{DocumentID: "osha-1926-502", Citation: "29 CFR 1926.502(d)", Title: "Personal fall arrest systems", Score: 0.88},
	{DocumentID: "osha-1926-451", Citation: "29 CFR 1926.451(g)(1)", Title: "Scaffolds: fall protection", Score: 0.81},
	{DocumentID: "osha-1926-1053", Citation: "29 CFR 1926.1053(b)(1)", Title: "Ladders: side rail extension", Score: 0.74},
	{DocumentID: "osha-1910-28", Citation: "29 CFR 1910.28(b)(1)", Title: "Walking-working surfaces: duty to have fall protection", Score: 0.69},
}
