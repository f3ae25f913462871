package auth

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/DukeRupert/regdesk/internal/domain"
)

// TierLookup resolves a stored subscription tier. *repository.Queries
// satisfies it.
type TierLookup interface {
	GetUserTier(ctx context.Context, userID uuid.UUID) (string, error)
}

// Claims are the access token claims issued by the hosted identity
// provider.
type Claims struct {
	jwt.RegisteredClaims
	Email       string      `json:"email,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
}

// AppMetadata holds provider-managed attributes of the user.
type AppMetadata struct {
	Tier string `json:"tier,omitempty"`
}

// VerifierConfig configures token verification.
type VerifierConfig struct {
	Secret   []byte
	Issuer   string // optional
	Audience string // optional
}

// TokenVerifier validates HS256 access tokens and resolves the caller's tier.
type TokenVerifier struct {
	config VerifierConfig
	tiers  TierLookup
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenVerifier creates a verifier. tiers may be nil, in which case
// tokens without a tier claim resolve to the free tier.
func NewTokenVerifier(config VerifierConfig, tiers TierLookup, logger *slog.Logger) (*TokenVerifier, error) {
	if len(config.Secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	return &TokenVerifier{
		config: config,
		tiers:  tiers,
		logger: logger,
		now:    time.Now,
	}, nil
}

// WithClock overrides the time source used for expiry checks.
func (v *TokenVerifier) WithClock(now func() time.Time) *TokenVerifier {
	v.now = now
	return v
}

// Verify parses and validates a raw token and returns the caller.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (*domain.User, error) {
	const op = "auth.verify"

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.config.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.Unauthorized(op, "Token has expired")
		}
		return nil, domain.Unauthorized(op, "Invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.Unauthorized(op, "Invalid token subject")
	}

	tier, err := v.resolveTier(ctx, userID, claims.AppMetadata.Tier)
	if err != nil {
		return nil, err
	}

	return &domain.User{
		ID:    userID,
		Email: claims.Email,
		Tier:  tier,
	}, nil
}

// resolveTier prefers the token claim, then the stored tier, then free.
// Only a missing row falls back to free. A failed lookup is unavailable.
func (v *TokenVerifier) resolveTier(ctx context.Context, userID uuid.UUID, claimed string) (domain.Tier, error) {
	const op = "auth.resolve_tier"

	if tier := domain.Tier(claimed); tier.Valid() {
		return tier, nil
	}
	if v.tiers == nil {
		return domain.TierFree, nil
	}

	stored, err := v.tiers.GetUserTier(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TierFree, nil
	}
	if err != nil {
		v.logger.Error("tier lookup failed", "user_id", userID, "error", err)
		return "", domain.Unavailable(err, op, "subscription tier unavailable")
	}
	if tier := domain.Tier(stored); tier.Valid() {
		return tier, nil
	}
	return domain.TierFree, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
