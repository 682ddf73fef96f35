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

// Table names of the one-time token stores.
const (
	ResetTokensTable        = "password_reset_tokens"
	VerificationTokensTable = "email_verification_tokens"
)

// OneTimeTokenRepository implements auth.OneTimeTokenStore on one of the
// one-time token tables. Both tables share a schema.
type OneTimeTokenRepository struct {
	db    DB
	table string
}

var _ auth.OneTimeTokenStore = (*OneTimeTokenRepository)(nil)

// NewResetTokenRepository creates the store for password reset tokens.
func NewResetTokenRepository(db DB) *OneTimeTokenRepository {
	return &OneTimeTokenRepository{db: db, table: ResetTokensTable}
}

// NewVerificationTokenRepository creates the store for email verification tokens.
func NewVerificationTokenRepository(db DB) *OneTimeTokenRepository {
	return &OneTimeTokenRepository{db: db, table: VerificationTokensTable}
}

func (r *OneTimeTokenRepository) fail(code, operation string) oops.OopsErrorBuilder {
	return oops.Code(code).With("operation", operation).With("table", r.table)
}

// Issue supersedes the user's outstanding tokens and stores token.
func (r *OneTimeTokenRepository) Issue(ctx context.Context, token *auth.OneTimeToken) error {
	return atomically(ctx, r.db, func(q DB) error {
		_, err := q.Exec(ctx, `
			UPDATE `+r.table+` SET superseded_at = $2
			WHERE user_id = $1 AND NOT is_used AND superseded_at IS NULL
		`, token.UserID.String(), token.CreatedAt)
		if err != nil {
			return r.fail("ONE_TIME_TOKEN_ISSUE_FAILED", "supersede outstanding tokens").
				With("user_id", token.UserID.String()).
				Wrap(err)
		}
		_, err = q.Exec(ctx, `
			INSERT INTO `+r.table+` (id, user_id, token_hash, expires_at, is_used, created_at)
			VALUES ($1, $2, $3, $4, false, $5)
		`,
			token.ID.String(),
			token.UserID.String(),
			token.TokenHash,
			token.ExpiresAt,
			token.CreatedAt,
		)
		if err != nil {
			return r.fail("ONE_TIME_TOKEN_ISSUE_FAILED", "insert token").
				With("user_id", token.UserID.String()).
				Wrap(err)
		}
		return nil
	})
}

// Consume marks the token used with a single conditional UPDATE. When no
// row changes, the stored row is read back to report why.
func (r *OneTimeTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (ulid.ULID, error) {
	q := conn(ctx, r.db)
	var userIDStr string
	err := q.QueryRow(ctx, `
		UPDATE `+r.table+` SET is_used = true, used_at = $2
		WHERE token_hash = $1 AND NOT is_used AND superseded_at IS NULL AND expires_at > $2
		RETURNING user_id
	`, tokenHash, now).Scan(&userIDStr)
	if err == nil {
		return parseULID(userIDStr)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ulid.ULID{}, r.fail("ONE_TIME_TOKEN_CONSUME_FAILED", "consume token").Wrap(err)
	}

	token, err := r.inspect(ctx, q, tokenHash)
	if err != nil {
		return ulid.ULID{}, err
	}
	reason := token.State(now).Err()
	if reason == nil {
		// A concurrent consumer won between the two statements.
		reason = auth.ErrTokenUsed
	}
	return ulid.ULID{}, oops.Code("ONE_TIME_TOKEN_UNAVAILABLE").With("table", r.table).Wrap(reason)
}

// Lookup implements auth.OneTimeTokenStore.
func (r *OneTimeTokenRepository) Lookup(ctx context.Context, tokenHash string, now time.Time) (ulid.ULID, error) {
	token, err := r.inspect(ctx, conn(ctx, r.db), tokenHash)
	if err != nil {
		return ulid.ULID{}, err
	}
	if reason := token.State(now).Err(); reason != nil {
		return ulid.ULID{}, oops.Code("ONE_TIME_TOKEN_UNAVAILABLE").With("table", r.table).Wrap(reason)
	}
	return token.UserID, nil
}

func (r *OneTimeTokenRepository) inspect(ctx context.Context, q DB, tokenHash string) (*auth.OneTimeToken, error) {
	var (
		token     auth.OneTimeToken
		userIDStr string
	)
	err := q.QueryRow(ctx, `
		SELECT user_id, is_used, superseded_at, expires_at FROM `+r.table+` WHERE token_hash = $1
	`, tokenHash).Scan(&userIDStr, &token.IsUsed, &token.SupersededAt, &token.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ONE_TIME_TOKEN_NOT_FOUND").With("table", r.table).Wrap(auth.ErrTokenNotFound)
	}
	if err != nil {
		return nil, r.fail("ONE_TIME_TOKEN_LOOKUP_FAILED", "inspect token").Wrap(err)
	}
	if token.UserID, err = parseULID(userIDStr); err != nil {
		return nil, err
	}
	return &token, nil
}

// CountIssuedSince counts tokens created for the user at or after since.
func (r *OneTimeTokenRepository) CountIssuedSince(ctx context.Context, userID ulid.ULID, since time.Time) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRow(ctx, `
		SELECT count(*) FROM `+r.table+` WHERE user_id = $1 AND created_at >= $2
	`, userID.String(), since).Scan(&n)
	if err != nil {
		return 0, r.fail("ONE_TIME_TOKEN_COUNT_FAILED", "count issued tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return n, nil
}

// DeleteByUser removes every token of the user.
func (r *OneTimeTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	_, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM `+r.table+` WHERE user_id = $1`, userID.String())
	if err != nil {
		return r.fail("ONE_TIME_TOKEN_DELETE_FAILED", "delete tokens for user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteStale removes tokens that expired, or were used or superseded, before cutoff.
func (r *OneTimeTokenRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		DELETE FROM `+r.table+`
		WHERE expires_at < $1 OR used_at < $1 OR superseded_at < $1
	`, cutoff)
	if err != nil {
		return 0, r.fail("ONE_TIME_TOKEN_PRUNE_FAILED", "delete stale tokens").Wrap(err)
	}
	return tag.RowsAffected(), nil
}
