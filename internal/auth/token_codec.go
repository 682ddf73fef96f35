// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token lifetimes used when TokenCodecConfig leaves them unset.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultRefreshLead     = 2 * time.Minute
	MinSigningKeyBytes     = 32
)

const (
	audienceAccess  = "access"
	audienceRefresh = "refresh"
)

// TokenCodecConfig configures a TokenCodec.
type TokenCodecConfig struct {
	SigningKey  []byte
	Issuer      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	RefreshLead time.Duration

	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// TokenCodec signs and verifies HS256 access and refresh tokens.
type TokenCodec struct {
	key         []byte
	issuer      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	refreshLead time.Duration
	now         func() time.Time
}

// AccessClaims identify the caller of a single request.
type AccessClaims struct {
	UserID    ulid.ULID
	Role      Role
	Tier      Tier
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshClaims identify one issued refresh token.
type RefreshClaims struct {
	UserID    ulid.ULID
	Version   int64
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssuedToken is a signed token with its validity window.
type IssuedToken struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessJWT struct {
	Role string `json:"role"`
	Tier string `json:"tier"`
	jwt.RegisteredClaims
}

type refreshJWT struct {
	Version int64 `json:"ver"`
	jwt.RegisteredClaims
}

// NewTokenCodec validates cfg and returns a TokenCodec.
func NewTokenCodec(cfg TokenCodecConfig) (*TokenCodec, error) {
	if len(cfg.SigningKey) < MinSigningKeyBytes {
		return nil, oops.Code("TOKEN_CODEC_CONFIG_INVALID").
			With("min_bytes", MinSigningKeyBytes).
			Errorf("signing key must be at least %d bytes", MinSigningKeyBytes)
	}
	c := &TokenCodec{
		key:         append([]byte(nil), cfg.SigningKey...),
		issuer:      cfg.Issuer,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		refreshLead: cfg.RefreshLead,
		now:         cfg.Now,
	}
	if c.issuer == "" {
		c.issuer = "tasklane"
	}
	if c.accessTTL <= 0 {
		c.accessTTL = DefaultAccessTokenTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = DefaultRefreshTokenTTL
	}
	if c.refreshLead <= 0 {
		c.refreshLead = DefaultRefreshLead
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// IssueAccess signs a short-lived access token for the identity.
func (c *TokenCodec) IssueAccess(userID ulid.ULID, role Role, tier Tier) (IssuedToken, error) {
	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(c.accessTTL)
	claims := accessJWT{
		Role: role.String(),
		Tier: string(tier),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   userID.String(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{audienceAccess},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return IssuedToken{}, oops.Code("TOKEN_SIGN_FAILED").With("kind", audienceAccess).Wrap(err)
	}
	return IssuedToken{Token: signed, IssuedAt: now, ExpiresAt: exp}, nil
}

// IssueRefresh signs a refresh token carrying the rotation version.
func (c *TokenCodec) IssueRefresh(userID ulid.ULID, version int64) (IssuedToken, error) {
	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(c.refreshTTL)
	claims := refreshJWT{
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   userID.String(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{audienceRefresh},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return IssuedToken{}, oops.Code("TOKEN_SIGN_FAILED").With("kind", audienceRefresh).Wrap(err)
	}
	return IssuedToken{Token: signed, IssuedAt: now, ExpiresAt: exp}, nil
}

// VerifyAccess parses and validates an access token.
func (c *TokenCodec) VerifyAccess(token string) (*AccessClaims, error) {
	var claims accessJWT
	if err := c.parse(token, &claims, audienceAccess); err != nil {
		return nil, err
	}
	userID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "subject").Wrap(err)
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "role").Wrap(err)
	}
	return &AccessClaims{
		UserID:    userID,
		Role:      role,
		Tier:      Tier(claims.Tier),
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// VerifyRefresh parses and validates a refresh token.
func (c *TokenCodec) VerifyRefresh(token string) (*RefreshClaims, error) {
	var claims refreshJWT
	if err := c.parse(token, &claims, audienceRefresh); err != nil {
		return nil, err
	}
	userID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "subject").Wrap(err)
	}
	if claims.Version < 1 {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "version").Errorf("refresh token version must be positive")
	}
	return &RefreshClaims{
		UserID:    userID,
		Version:   claims.Version,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ShouldRefreshAt returns the instant clients should refresh an access token
// that expires at exp. It is always strictly before exp.
func (c *TokenCodec) ShouldRefreshAt(exp time.Time) time.Time {
	lead := c.refreshLead
	if lead >= c.accessTTL {
		lead = c.accessTTL / 5
	}
	if lead < time.Second {
		lead = time.Second
	}
	return exp.Add(-lead)
}

// RefreshTTL returns the lifetime of refresh tokens.
func (c *TokenCodec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

func (c *TokenCodec) parse(token string, claims jwt.Claims, audience string) error {
	if token == "" {
		return oops.Code("TOKEN_INVALID").With("reason", "empty").Errorf("token is empty")
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(c.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return oops.Code("TOKEN_EXPIRED").With("kind", audience).Wrap(err)
	}
	return oops.Code("TOKEN_INVALID").With("kind", audience).Wrap(err)
}
