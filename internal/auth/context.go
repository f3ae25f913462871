// Package auth verifies bearer tokens and carries the authenticated caller
// through the request context.
//
// This package is imported by both middleware and handler packages without
// causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/regdesk/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	userContextKey  contextKey = "user"
	quotaContextKey contextKey = "quota"
)

// GetUser retrieves the authenticated user from the context.
//
// Returns nil if no user is authenticated.
//
// Usage:
//
//	user := auth.GetUser(r.Context())
//	if user == nil {
//	    // Handle unauthenticated request
//	}
func GetUser(ctx context.Context) *domain.User {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}

// GetUserFromRequest is a convenience wrapper around GetUser.
func GetUserFromRequest(r *http.Request) *domain.User {
	return GetUser(r.Context())
}

// SetUser stores a user in the context.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetQuotaResult returns the quota decision recorded by the quota
// middleware for this request, or nil.
func GetQuotaResult(ctx context.Context) *domain.QuotaCheckResult {
	result, ok := ctx.Value(quotaContextKey).(*domain.QuotaCheckResult)
	if !ok {
		return nil
	}
	return result
}

// SetQuotaResult stores a quota decision in the context.
func SetQuotaResult(ctx context.Context, result *domain.QuotaCheckResult) context.Context {
	return context.WithValue(ctx, quotaContextKey, result)
}
