package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/google/uuid"
)

type mockQuotaReader struct {
	CheckQuotaFunc         func(ctx context.Context, userID uuid.UUID, tier domain.Tier, quotaType domain.QuotaType) (*domain.QuotaCheckResult, error)
	GetUsageStatisticsFunc func(ctx context.Context, userID uuid.UUID, windowDays int) ([]domain.UsageStatistics, error)
}

func (m *mockQuotaReader) CheckQuota(ctx context.Context, userID uuid.UUID, tier domain.Tier, quotaType domain.QuotaType) (*domain.QuotaCheckResult, error) {
	return m.CheckQuotaFunc(ctx, userID, tier, quotaType)
}

func (m *mockQuotaReader) GetUsageStatistics(ctx context.Context, userID uuid.UUID, windowDays int) ([]domain.UsageStatistics, error) {
	return m.GetUsageStatisticsFunc(ctx, userID, windowDays)
}

func newQuotaMux(q QuotaReader) *http.ServeMux {
	mux := http.NewServeMux()
	NewQuotaHandler(q, testLogger()).RegisterRoutes(mux, passthrough)
	return mux
}

// checkFromPolicy answers checks from the tier policy with a fixed usage.
func checkFromPolicy(used int64) func(ctx context.Context, userID uuid.UUID, tier domain.Tier, qt domain.QuotaType) (*domain.QuotaCheckResult, error) {
	return func(ctx context.Context, userID uuid.UUID, tier domain.Tier, qt domain.QuotaType) (*domain.QuotaCheckResult, error) {
		limit, err := domain.GetPolicy(tier).LimitFor(qt)
		if err != nil {
			return nil, err
		}
		usage := domain.NewUsageCounter(userID, qt, used, limit, domain.PeriodStart(testNow))
		return &domain.QuotaCheckResult{Allowed: !usage.AtLimit(), Usage: usage, QuotaExceeded: usage.AtLimit(), Tier: tier}, nil
	}
}

func TestQuotaSummary_AllTypes(t *testing.T) {
	mock := &mockQuotaReader{CheckQuotaFunc: checkFromPolicy(5)}

	rec := serve(newQuotaMux(mock), newRequest(t, http.MethodGet, "/api/quota", nil, testUser(domain.TierPro)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body QuotaSummary
	decodeBody(t, rec, &body)

	if body.Tier != domain.TierPro {
		t.Errorf("tier = %q, want pro", body.Tier)
	}
	if body.Policy.SearchesPerDay != 200 {
		t.Errorf("searchesPerDay = %d, want 200", body.Policy.SearchesPerDay)
	}
	if len(body.Usage) != len(domain.QuotaTypes) {
		t.Fatalf("usage entries = %d, want %d", len(body.Usage), len(domain.QuotaTypes))
	}
	for i, qt := range domain.QuotaTypes {
		if body.Usage[i].QuotaType != qt {
			t.Errorf("usage[%d] = %q, want %q", i, body.Usage[i].QuotaType, qt)
		}
	}
}

func TestQuotaSummary_StoreDownIs500(t *testing.T) {
	mock := &mockQuotaReader{
		CheckQuotaFunc: func(ctx context.Context, userID uuid.UUID, tier domain.Tier, qt domain.QuotaType) (*domain.QuotaCheckResult, error) {
			return nil, domain.Unavailable(nil, "quota.check", "store unreachable")
		},
	}

	rec := serve(newQuotaMux(mock), newRequest(t, http.MethodGet, "/api/quota", nil, testUser(domain.TierFree)))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestQuotaStatus_BlockedIsStill200(t *testing.T) {
	mock := &mockQuotaReader{CheckQuotaFunc: checkFromPolicy(20)}

	rec := serve(newQuotaMux(mock), newRequest(t, http.MethodGet, "/api/quota/search", nil, testUser(domain.TierFree)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body domain.QuotaCheckResult
	decodeBody(t, rec, &body)
	if body.Allowed {
		t.Error("allowed = true, want false at limit")
	}
	if body.Usage.LimitValue != 20 || body.Usage.Remaining != 0 {
		t.Errorf("usage = %+v", body.Usage)
	}
}

func TestQuotaStatus_UnknownTypeIs400(t *testing.T) {
	mock := &mockQuotaReader{CheckQuotaFunc: checkFromPolicy(0)}

	rec := serve(newQuotaMux(mock), newRequest(t, http.MethodGet, "/api/quota/uploads", nil, testUser(domain.TierFree)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != domain.EINVALID {
		t.Errorf("code = %q, want %q", code, domain.EINVALID)
	}
}

func TestQuotaStatus_NoUser(t *testing.T) {
	rec := serve(newQuotaMux(&mockQuotaReader{}), newRequest(t, http.MethodGet, "/api/quota/search", nil, nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestQuotaStats_Window(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantDays   int
	}{
		{"default", "/api/quota/stats", http.StatusOK, DefaultStatsWindow},
		{"explicit", "/api/quota/stats?days=7", http.StatusOK, 7},
		{"not a number", "/api/quota/stats?days=week", http.StatusBadRequest, 0},
		{"out of range", "/api/quota/stats?days=365", http.StatusBadRequest, 365},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotDays int
			mock := &mockQuotaReader{
				GetUsageStatisticsFunc: func(ctx context.Context, userID uuid.UUID, windowDays int) ([]domain.UsageStatistics, error) {
					gotDays = windowDays
					if windowDays > 90 {
						return nil, domain.Invalid("quota.statistics", "window must be between 1 and 90 days")
					}
					return []domain.UsageStatistics{{QuotaType: domain.QuotaTypeSearch, WindowDays: windowDays, TotalUsage: 14}}, nil
				},
			}

			rec := serve(newQuotaMux(mock), newRequest(t, http.MethodGet, tt.target, nil, testUser(domain.TierFree)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotDays != tt.wantDays {
				t.Errorf("window = %d, want %d", gotDays, tt.wantDays)
			}
			if tt.wantStatus == http.StatusOK {
				var body StatsResponse
				decodeBody(t, rec, &body)
				if body.WindowDays != tt.wantDays || len(body.Stats) != 1 {
					t.Errorf("body = %+v", body)
				}
			}
		})
	}
}
