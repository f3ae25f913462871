package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/DukeRupert/regdesk/internal/auth"
	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/DukeRupert/regdesk/internal/search"
)

type mockSearcher struct {
	SearchFunc func(ctx context.Context, params search.Params) (*search.Response, error)
	calls      []search.Params
}

func (m *mockSearcher) Search(ctx context.Context, params search.Params) (*search.Response, error) {
	m.calls = append(m.calls, params)
	return m.SearchFunc(ctx, params)
}

func newSearchMux(s Searcher) *http.ServeMux {
	mux := http.NewServeMux()
	NewSearchHandler(s, testLogger()).RegisterRoutes(mux, passthrough, passthrough)
	return mux
}

func TestSearch_PassesTierAndReturnsUsage(t *testing.T) {
	mock := &mockSearcher{
		SearchFunc: func(ctx context.Context, params search.Params) (*search.Response, error) {
			return &search.Response{
				Query:   params.Query,
				Results: json.RawMessage(`[{"id":"cfr-21-11"}]`),
				Limit:   10,
			}, nil
		},
	}

	user := testUser(domain.TierPro)
	req := newRequest(t, http.MethodPost, "/api/search", SearchRequest{
		Query:   "electronic records",
		Filters: domain.SearchFilters{"agency": "FDA"},
		Limit:   25,
	}, user)
	usage := domain.NewUsageCounter(user.ID, domain.QuotaTypeSearch, 3, 200, domain.PeriodStart(testNow))
	req = req.WithContext(auth.SetQuotaResult(req.Context(), &domain.QuotaCheckResult{Allowed: true, Usage: usage}))

	rec := serve(newSearchMux(mock), req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(mock.calls) != 1 {
		t.Fatalf("search calls = %d, want 1", len(mock.calls))
	}
	got := mock.calls[0]
	if got.Tier != domain.TierPro {
		t.Errorf("tier = %q, want pro", got.Tier)
	}
	if got.Limit != 25 || got.Filters["agency"] != "FDA" {
		t.Errorf("params = %+v", got)
	}

	var body struct {
		Query   string               `json:"query"`
		Results json.RawMessage      `json:"results"`
		Usage   *domain.UsageCounter `json:"usage"`
	}
	decodeBody(t, rec, &body)
	if body.Query != "electronic records" {
		t.Errorf("query = %q", body.Query)
	}
	if body.Usage == nil || body.Usage.Remaining != 197 {
		t.Errorf("usage = %+v, want remaining 197", body.Usage)
	}
}

func TestSearch_FreeTierWhenTierMissing(t *testing.T) {
	mock := &mockSearcher{
		SearchFunc: func(ctx context.Context, params search.Params) (*search.Response, error) {
			return &search.Response{Query: params.Query, Results: json.RawMessage(`[]`)}, nil
		},
	}
	user := testUser("")

	rec := serve(newSearchMux(mock), newRequest(t, http.MethodPost, "/api/search", SearchRequest{Query: "gmp"}, user))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if mock.calls[0].Tier != domain.TierFree {
		t.Errorf("tier = %q, want free", mock.calls[0].Tier)
	}
}

func TestSearch_RejectsBadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"malformed", `{"query":`},
		{"unknown field", `{"query":"gmp","page":2}`},
		{"trailing object", `{"query":"gmp"}{"query":"glp"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSearcher{}
			req := newRequest(t, http.MethodPost, "/api/search", tt.body, testUser(domain.TierFree))

			rec := serve(newSearchMux(mock), req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if len(mock.calls) != 0 {
				t.Error("searcher should not be called")
			}
		})
	}
}

func TestSearch_ServiceErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.Invalid("search.search", "query must not be empty"), http.StatusBadRequest},
		{"upstream", domain.Unavailable(nil, "search.search", "embedding failed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSearcher{
				SearchFunc: func(ctx context.Context, params search.Params) (*search.Response, error) {
					return nil, tt.err
				},
			}
			req := newRequest(t, http.MethodPost, "/api/search", SearchRequest{Query: " "}, testUser(domain.TierFree))

			rec := serve(newSearchMux(mock), req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSearch_NoUser(t *testing.T) {
	mock := &mockSearcher{}
	rec := serve(newSearchMux(mock), newRequest(t, http.MethodPost, "/api/search", SearchRequest{Query: "gmp"}, nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestPreflight_ReturnsQuotaResult(t *testing.T) {
	user := testUser(domain.TierFree)
	usage := domain.NewUsageCounter(user.ID, domain.QuotaTypeSearch, 20, 20, domain.PeriodStart(testNow))
	req := newRequest(t, http.MethodGet, "/api/search/preflight", nil, user)
	req = req.WithContext(auth.SetQuotaResult(req.Context(), &domain.QuotaCheckResult{
		Allowed:       false,
		QuotaExceeded: true,
		Usage:         usage,
	}))

	rec := serve(newSearchMux(&mockSearcher{}), req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body domain.QuotaCheckResult
	decodeBody(t, rec, &body)
	if body.Allowed || !body.QuotaExceeded {
		t.Errorf("result = %+v, want blocked", body)
	}
	if body.Usage.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", body.Usage.Remaining)
	}
}

func TestPreflight_FailOpenReportsUnknown(t *testing.T) {
	// The quota middleware passes through without a result when the store is
	// down and enforcement fails open.
	req := newRequest(t, http.MethodGet, "/api/search/preflight", nil, testUser(domain.TierFree))

	rec := serve(newSearchMux(&mockSearcher{}), req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body QuotaUnknown
	decodeBody(t, rec, &body)
	if !body.Allowed || !body.Unknown {
		t.Errorf("body = %+v, want allowed and unknown", body)
	}
}
