package domain

import (
	"encoding/json"
	"time"
)

// SearchFilters is the filter set attached to a search. Key order carries
// no meaning.
type SearchFilters map[string]any

// CacheEntry is a stored search result keyed by the hash of its normalized
// query and filters. Entries are global, not user scoped.
type CacheEntry struct {
	QueryHash string          `json:"queryHash"`
	Query     string          `json:"query"`
	Filters   SearchFilters   `json:"filters,omitempty"`
	Results   json.RawMessage `json:"results"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
	HitCount  int64           `json:"hitCount"`
}

// IsExpired returns true once now has reached the expiry time.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// CacheStats summarizes the cache contents.
type CacheStats struct {
	Entries   int64 `json:"entries"`
	Expired   int64 `json:"expired"`
	TotalHits int64 `json:"totalHits"`
}
