package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPolicy(t *testing.T) {
	tests := []struct {
		name     string
		tier     Tier
		wantTier Tier
		searches int64
	}{
		{"free", TierFree, TierFree, 20},
		{"pro", TierPro, TierPro, 200},
		{"enterprise", TierEnterprise, TierEnterprise, Unlimited},
		{"empty falls back to free", Tier(""), TierFree, 20},
		{"unknown falls back to free", Tier("platinum"), TierFree, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := GetPolicy(tt.tier)
			assert.Equal(t, tt.wantTier, policy.Tier)
			assert.Equal(t, tt.searches, policy.SearchesPerDay)
		})
	}
}

func TestSuggestedTier(t *testing.T) {
	tests := []struct {
		tier Tier
		want Tier
	}{
		{TierFree, TierPro},
		{TierPro, TierEnterprise},
		{TierEnterprise, TierEnterprise},
		{Tier("unknown"), TierPro},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestedTier(tt.tier))
		})
	}
}

func TestCanUpgrade(t *testing.T) {
	assert.True(t, CanUpgrade(TierFree))
	assert.True(t, CanUpgrade(TierPro))
	assert.False(t, CanUpgrade(TierEnterprise))
}

func TestTierPolicy_LimitFor(t *testing.T) {
	policy := GetPolicy(TierPro)

	limit, err := policy.LimitFor(QuotaTypeSearch)
	require.NoError(t, err)
	assert.Equal(t, int64(200), limit)

	limit, err = policy.LimitFor(QuotaTypeExport)
	require.NoError(t, err)
	assert.Equal(t, int64(50), limit)

	limit, err = policy.LimitFor(QuotaTypeAPICall)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), limit)

	_, err = policy.LimitFor(QuotaType("download"))
	require.Error(t, err)
	assert.Equal(t, EINVALID, ErrorCode(err))
}
