// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshToken is the stored form of one issued refresh token.
type RefreshToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	Version   int64
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsValid reports whether the row may still be exchanged at now.
func (t *RefreshToken) IsValid(now time.Time) bool {
	return !t.IsRevoked && now.Before(t.ExpiresAt)
}

// NewRefreshToken builds the stored row for an issued refresh token.
func NewRefreshToken(userID ulid.ULID, token IssuedToken, version int64) (*RefreshToken, error) {
	if userID.IsZero() {
		return nil, oops.Code("REFRESH_TOKEN_INVALID").Errorf("user ID cannot be zero")
	}
	if token.Token == "" {
		return nil, oops.Code("REFRESH_TOKEN_INVALID").Errorf("token cannot be empty")
	}
	if version < 1 {
		return nil, oops.Code("REFRESH_TOKEN_INVALID").With("version", version).Errorf("version must be positive")
	}
	now := time.Now().UTC()
	return &RefreshToken{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: HashToken(token.Token),
		Version:   version,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// RefreshTokenStore persists refresh token hashes.
type RefreshTokenStore interface {
	// Create stores a new refresh token row.
	Create(ctx context.Context, token *RefreshToken) error

	// GetValidByHash returns the row for tokenHash if it is neither revoked nor
	// expired at now. Returns ErrNotFound otherwise.
	GetValidByHash(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)

	// Revoke revokes the row for tokenHash. Returns false when no non-revoked
	// row matched.
	Revoke(ctx context.Context, tokenHash string) (bool, error)

	// RevokeAllForUser revokes every non-revoked row of the user and returns
	// how many rows changed.
	RevokeAllForUser(ctx context.Context, userID ulid.ULID) (int64, error)

	// Rotate revokes the row for oldHash and inserts next as one atomic unit.
	// The revoke is conditional on the old row still being valid at now; when
	// it is not, nothing is inserted and an error wrapping ErrNotFound is
	// returned.
	Rotate(ctx context.Context, oldHash string, next *RefreshToken, now time.Time) error

	// DeleteByUser removes every row of the user.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteStale removes rows that expired or were revoked before cutoff.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}
