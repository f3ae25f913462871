// Package domain contains core business types and interfaces.
//
// This file defines the User type yielded by the identity provider.
// Accounts, sessions and passwords live with the hosted auth provider;
// this service only needs the caller's ID and subscription tier.
package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated caller.
type User struct {
	ID    uuid.UUID
	Email string
	Tier  Tier
}

// EffectiveTier returns the user's tier, treating a missing or unknown
// tier as free.
func (u *User) EffectiveTier() Tier {
	if u == nil || !u.Tier.Valid() {
		return TierFree
	}
	return u.Tier
}

// =============================================================================
// Conversion helpers from repository types
// =============================================================================

// NullStringValue safely extracts a string from sql.NullString.
func NullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// NullTimeValue safely extracts a time pointer from sql.NullTime.
func NullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time.UTC()
		return &t
	}
	return nil
}
