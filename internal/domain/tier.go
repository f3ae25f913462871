// Package domain contains core business types and interfaces.
//
// This file defines subscription tiers and the static policy table that
// maps each tier to its daily limits and feature flags.
package domain

// Tier represents the subscription level of a user.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Unlimited is the sentinel limit value for quotas without a cap.
const Unlimited int64 = -1

// Valid returns true if the tier is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	default:
		return false
	}
}

// TierPolicy defines the limits and features granted by a tier.
// Policies are read-only at runtime.
type TierPolicy struct {
	Tier               Tier  `json:"tier"`
	SearchesPerDay     int64 `json:"searchesPerDay"`
	ResultsPerSearch   int   `json:"resultsPerSearch"`
	ExportsPerDay      int64 `json:"exportsPerDay"`
	APICallsPerDay     int64 `json:"apiCallsPerDay"`
	AdvancedFilters    bool  `json:"advancedFilters"`
	SavedSearches      bool  `json:"savedSearches"`
	ExportEnabled      bool  `json:"exportEnabled"`
	APIAccess          bool  `json:"apiAccess"`
	PrioritySupport    bool  `json:"prioritySupport"`
	CustomIntegrations bool  `json:"customIntegrations"`
}

// tierPolicies is the seeded policy table, one entry per tier.
var tierPolicies = map[Tier]TierPolicy{
	TierFree: {
		Tier:             TierFree,
		SearchesPerDay:   20,
		ResultsPerSearch: 10,
		ExportsPerDay:    0,
		APICallsPerDay:   0,
	},
	TierPro: {
		Tier:             TierPro,
		SearchesPerDay:   200,
		ResultsPerSearch: 50,
		ExportsPerDay:    50,
		APICallsPerDay:   1000,
		AdvancedFilters:  true,
		SavedSearches:    true,
		ExportEnabled:    true,
		APIAccess:        true,
		PrioritySupport:  true,
	},
	TierEnterprise: {
		Tier:               TierEnterprise,
		SearchesPerDay:     Unlimited,
		ResultsPerSearch:   100,
		ExportsPerDay:      Unlimited,
		APICallsPerDay:     Unlimited,
		AdvancedFilters:    true,
		SavedSearches:      true,
		ExportEnabled:      true,
		APIAccess:          true,
		PrioritySupport:    true,
		CustomIntegrations: true,
	},
}

// GetPolicy returns the policy for a tier, defaulting to the free tier for
// unknown or empty tiers.
func GetPolicy(tier Tier) TierPolicy {
	if policy, ok := tierPolicies[tier]; ok {
		return policy
	}
	return tierPolicies[TierFree]
}

// LimitFor returns the daily limit for a quota type.
func (p TierPolicy) LimitFor(quotaType QuotaType) (int64, error) {
	switch quotaType {
	case QuotaTypeSearch:
		return p.SearchesPerDay, nil
	case QuotaTypeExport:
		return p.ExportsPerDay, nil
	case QuotaTypeAPICall:
		return p.APICallsPerDay, nil
	default:
		return 0, Invalid("tier.limit", "unknown quota type: "+string(quotaType))
	}
}

// SuggestedTier returns the tier a user should upgrade to.
// Enterprise is terminal and suggests itself.
func SuggestedTier(tier Tier) Tier {
	switch tier {
	case TierPro, TierEnterprise:
		return TierEnterprise
	default:
		return TierPro
	}
}

// CanUpgrade reports whether a higher tier exists.
func CanUpgrade(tier Tier) bool {
	return tier != TierEnterprise
}
