// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tasklane/tasklane/internal/auth"
)

// RefreshTokenRepository implements auth.RefreshTokenStore using PostgreSQL.
type RefreshTokenRepository struct {
	db DB
}

var _ auth.RefreshTokenStore = (*RefreshTokenRepository)(nil)

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const insertRefreshToken = `
	INSERT INTO refresh_tokens (id, user_id, token_hash, version, expires_at, is_revoked, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

func insertRefresh(ctx context.Context, q DB, token *auth.RefreshToken) error {
	_, err := q.Exec(ctx, insertRefreshToken,
		token.ID.String(),
		token.UserID.String(),
		token.TokenHash,
		token.Version,
		token.ExpiresAt,
		token.IsRevoked,
		token.CreatedAt,
		token.UpdatedAt,
	)
	if err != nil {
		return oops.Code("REFRESH_TOKEN_CREATE_FAILED").
			With("operation", "insert refresh_token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// Create stores a new refresh token row.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	return insertRefresh(ctx, conn(ctx, r.db), token)
}

// GetValidByHash returns the non-revoked, unexpired row for tokenHash.
func (r *RefreshTokenRepository) GetValidByHash(ctx context.Context, tokenHash string, now time.Time) (*auth.RefreshToken, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT id, user_id, token_hash, version, expires_at, is_revoked, created_at, updated_at
		FROM refresh_tokens
		WHERE token_hash = $1 AND NOT is_revoked AND expires_at > $2
	`, tokenHash, now)

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_GET_FAILED").
			With("operation", "get refresh token by hash").
			Wrap(err)
	}
	return token, nil
}

// Revoke revokes the row for tokenHash.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) (bool, error) {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE refresh_tokens SET is_revoked = true, updated_at = now()
		WHERE token_hash = $1 AND NOT is_revoked
	`, tokenHash)
	if err != nil {
		return false, oops.Code("REFRESH_TOKEN_REVOKE_FAILED").
			With("operation", "revoke refresh token").
			Wrap(err)
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeAllForUser revokes every non-revoked row of the user.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE refresh_tokens SET is_revoked = true, updated_at = now()
		WHERE user_id = $1 AND NOT is_revoked
	`, userID.String())
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_REVOKE_ALL_FAILED").
			With("operation", "revoke refresh tokens for user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// Rotate revokes the row for oldHash and inserts next in one transaction.
// The conditional UPDATE takes the row lock, so of two concurrent rotations
// of the same token exactly one sees a changed row.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldHash string, next *auth.RefreshToken, now time.Time) error {
	return atomically(ctx, r.db, func(q DB) error {
		tag, err := q.Exec(ctx, `
			UPDATE refresh_tokens SET is_revoked = true, updated_at = $3
			WHERE token_hash = $1 AND NOT is_revoked AND expires_at > $2
		`, oldHash, now, now)
		if err != nil {
			return oops.Code("REFRESH_TOKEN_ROTATE_FAILED").
				With("operation", "revoke rotated refresh token").
				With("user_id", next.UserID.String()).
				Wrap(err)
		}
		if tag.RowsAffected() == 0 {
			return oops.Code("REFRESH_TOKEN_ROTATE_LOST").
				With("user_id", next.UserID.String()).
				Wrap(auth.ErrNotFound)
		}
		return insertRefresh(ctx, q, next)
	})
}

// DeleteByUser removes every row of the user.
func (r *RefreshTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	_, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID.String())
	if err != nil {
		return oops.Code("REFRESH_TOKEN_DELETE_FAILED").
			With("operation", "delete refresh tokens for user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteStale removes rows that expired, or were revoked, before cutoff.
func (r *RefreshTokenRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1 OR (is_revoked AND updated_at < $1)
	`, cutoff)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_PRUNE_FAILED").
			With("operation", "delete stale refresh tokens").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanRefreshToken(row pgx.Row) (*auth.RefreshToken, error) {
	var (
		idStr, userIDStr string
		token            auth.RefreshToken
	)
	err := row.Scan(
		&idStr,
		&userIDStr,
		&token.TokenHash,
		&token.Version,
		&token.ExpiresAt,
		&token.IsRevoked,
		&token.CreatedAt,
		&token.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers check for pgx.ErrNoRows
	}
	if token.ID, err = parseULID(idStr); err != nil {
		return nil, err
	}
	if token.UserID, err = parseULID(userIDStr); err != nil {
		return nil, err
	}
	return &token, nil
}
