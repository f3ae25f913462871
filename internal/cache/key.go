package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/DukeRupert/regdesk/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeQuery maps equivalent spellings of a query to one form:
// Unicode NFKC, case folded, whitespace collapsed and trimmed.
func NormalizeQuery(query string) string {
	s := norm.NFKC.String(query)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// canonicalKey is hashed to form the cache key. encoding/json writes map
// keys in sorted order at every depth, so filter order never matters.
type canonicalKey struct {
	Query   string               `json:"q"`
	Filters domain.SearchFilters `json:"f"`
}

// Key returns the hex SHA-256 of the normalized query and filters. Nil and
// empty filters produce the same key.
func Key(query string, filters domain.SearchFilters) (string, error) {
	if filters == nil {
		filters = domain.SearchFilters{}
	}

	b, err := json.Marshal(canonicalKey{Query: NormalizeQuery(query), Filters: filters})
	if err != nil {
		return "", domain.Invalid("cache.key", "filters are not JSON encodable")
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
