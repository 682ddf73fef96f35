// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/pkg/errutil"
)

var errConnRefused = errors.New("connection refused")

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

func userRows(u *auth.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "email", "username", "password_hash", "is_active", "email_verified",
		"role", "tier", "last_login_at", "created_at", "updated_at",
	}).AddRow(
		u.ID.String(), u.Email, u.Username, u.PasswordHash, u.IsActive, u.EmailVerified,
		u.Role.String(), string(u.Tier), u.LastLoginAt, u.CreatedAt, u.UpdatedAt,
	)
}

func testUser(t *testing.T) *auth.User {
	t.Helper()
	u, err := auth.NewUser("u@e.com", "u1", "$argon2id$hash", auth.RoleMember, auth.TierFree)
	require.NoError(t, err)
	return u
}

func TestUserRepository_Create(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		wantCode  string
	}{
		{
			name: "inserts the row",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "unique violation is a conflict",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr:  auth.ErrConflict,
			wantCode: "USER_CREATE_FAILED",
		},
		{
			name: "other errors are wrapped",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).WillReturnError(errConnRefused)
			},
			wantErr:  errConnRefused,
			wantCode: "USER_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setupMock(mock)

			err := NewUserRepository(mock).Create(context.Background(), testUser(t))
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestUserRepository_GetByEmail(t *testing.T) {
	want := testUser(t)

	t.Run("found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users WHERE lower\(email\) = lower\(\$1\)`).
			WithArgs("U@E.com").
			WillReturnRows(userRows(want))

		got, err := NewUserRepository(mock).GetByEmail(context.Background(), "U@E.com")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, auth.RoleMember, got.Role)
		assert.Equal(t, auth.TierFree, got.Tier)
		assert.Nil(t, got.LastLoginAt)
	})

	t.Run("missing", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users WHERE lower\(email\)`).
			WillReturnRows(pgxmock.NewRows([]string{"id"}))

		_, err := NewUserRepository(mock).GetByEmail(context.Background(), "nobody@e.com")
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
	})

	t.Run("unknown role in row", func(t *testing.T) {
		bad := *want
		bad.Role = 0
		mock := newMock(t)
		mock.ExpectQuery(`FROM users WHERE lower\(email\)`).WillReturnRows(userRows(&bad))

		_, err := NewUserRepository(mock).GetByEmail(context.Background(), want.Email)
		errutil.AssertErrorCode(t, err, "AUTH_UNKNOWN_ROLE")
		errutil.AssertErrorContext(t, err, "operation", "get user by email")
	})
}

func TestUserRepository_MarkEmailVerified(t *testing.T) {
	id := ulid.Make()

	t.Run("changes the flag", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET email_verified = true`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		changed, err := NewUserRepository(mock).MarkEmailVerified(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, changed)
	})

	t.Run("already verified", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET email_verified = true`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		changed, err := NewUserRepository(mock).MarkEmailVerified(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("user gone", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET email_verified = true`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := NewUserRepository(mock).MarkEmailVerified(context.Background(), id)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_DefaultRole(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT name FROM roles WHERE is_default`).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("member"))

	role, err := NewUserRepository(mock).DefaultRole(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.RoleMember, role)
}

func TestUserRepository_DeleteMissing(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`DELETE FROM users`).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := NewUserRepository(mock).Delete(context.Background(), ulid.Make())
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func nextRefresh(t *testing.T, userID ulid.ULID) *auth.RefreshToken {
	t.Helper()
	next, err := auth.NewRefreshToken(userID, auth.IssuedToken{Token: "next", ExpiresAt: time.Now().Add(time.Hour)}, 2)
	require.NoError(t, err)
	return next
}

func TestRefreshTokenRepository_Rotate(t *testing.T) {
	userID := ulid.Make()
	now := time.Now().UTC()

	t.Run("revokes and inserts in one transaction", func(t *testing.T) {
		mock := newMock(t)
		next := nextRefresh(t, userID)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE refresh_tokens SET is_revoked = true`).
			WithArgs("old", now, now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`INSERT INTO refresh_tokens`).
			WithArgs(next.ID.String(), userID.String(), next.TokenHash, int64(2),
				pgxmock.AnyArg(), false, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		require.NoError(t, NewRefreshTokenRepository(mock).Rotate(context.Background(), "old", next, now))
	})

	t.Run("lost race rolls back without insert", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE refresh_tokens SET is_revoked = true`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		err := NewRefreshTokenRepository(mock).Rotate(context.Background(), "old", nextRefresh(t, userID), now)
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "REFRESH_TOKEN_ROTATE_LOST")
	})

	t.Run("joins the ambient transaction", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE refresh_tokens SET is_revoked = true`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`INSERT INTO refresh_tokens`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		repo := NewRefreshTokenRepository(mock)
		err := NewTransactor(mock).InTransaction(context.Background(), func(ctx context.Context) error {
			return repo.Rotate(ctx, "old", nextRefresh(t, userID), now)
		})
		require.NoError(t, err)
	})
}

func TestRefreshTokenRepository_Revoke(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`UPDATE refresh_tokens SET is_revoked = true`).
		WithArgs("h").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE refresh_tokens SET is_revoked = true`).
		WithArgs("h").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewRefreshTokenRepository(mock)
	revoked, err := repo.Revoke(context.Background(), "h")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = repo.Revoke(context.Background(), "h")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestOneTimeTokenRepository_Issue(t *testing.T) {
	mock := newMock(t)
	token, _, err := auth.NewOneTimeToken(ulid.Make(), auth.PurposePasswordReset, time.Hour)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_tokens SET superseded_at`).
		WithArgs(token.UserID.String(), token.CreatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`INSERT INTO password_reset_tokens`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, NewResetTokenRepository(mock).Issue(context.Background(), token))
}

func TestOneTimeTokenRepository_Consume(t *testing.T) {
	userID := ulid.Make()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "consumes a valid token",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE email_verification_tokens SET is_used = true`).
					WithArgs("h", now).
					WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(userID.String()))
			},
		},
		{
			name: "unknown token",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE email_verification_tokens`).WillReturnRows(pgxmock.NewRows([]string{"user_id"}))
				mock.ExpectQuery(`SELECT user_id, is_used, superseded_at, expires_at`).
					WillReturnRows(pgxmock.NewRows([]string{"user_id", "is_used", "superseded_at", "expires_at"}))
			},
			wantErr: auth.ErrTokenNotFound,
		},
		{
			name: "used token",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE email_verification_tokens`).WillReturnRows(pgxmock.NewRows([]string{"user_id"}))
				mock.ExpectQuery(`SELECT user_id, is_used, superseded_at, expires_at`).
					WillReturnRows(pgxmock.NewRows([]string{"user_id", "is_used", "superseded_at", "expires_at"}).
						AddRow(userID.String(), true, (*time.Time)(nil), now.Add(time.Hour)))
			},
			wantErr: auth.ErrTokenUsed,
		},
		{
			name: "superseded token",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE email_verification_tokens`).WillReturnRows(pgxmock.NewRows([]string{"user_id"}))
				mock.ExpectQuery(`SELECT user_id, is_used, superseded_at, expires_at`).
					WillReturnRows(pgxmock.NewRows([]string{"user_id", "is_used", "superseded_at", "expires_at"}).
						AddRow(userID.String(), false, &past, now.Add(time.Hour)))
			},
			wantErr: auth.ErrTokenSuperseded,
		},
		{
			name: "expired token",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE email_verification_tokens`).WillReturnRows(pgxmock.NewRows([]string{"user_id"}))
				mock.ExpectQuery(`SELECT user_id, is_used, superseded_at, expires_at`).
					WillReturnRows(pgxmock.NewRows([]string{"user_id", "is_used", "superseded_at", "expires_at"}).
						AddRow(userID.String(), false, (*time.Time)(nil), past))
			},
			wantErr: auth.ErrTokenExpired,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE email_verification_tokens`).WillReturnError(errConnRefused)
			},
			wantErr: errConnRefused,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setupMock(mock)

			got, err := NewVerificationTokenRepository(mock).Consume(context.Background(), "h", now)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, userID, got)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOneTimeTokenRepository_Lookup(t *testing.T) {
	userID := ulid.Make()
	now := time.Now().UTC()
	cols := []string{"user_id", "is_used", "superseded_at", "expires_at"}

	t.Run("valid token is not consumed", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT user_id, is_used, superseded_at, expires_at FROM password_reset_tokens`).
			WithArgs("h").
			WillReturnRows(pgxmock.NewRows(cols).AddRow(userID.String(), false, (*time.Time)(nil), now.Add(time.Hour)))

		got, err := NewResetTokenRepository(mock).Lookup(context.Background(), "h", now)
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("used token", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT user_id, is_used`).
			WillReturnRows(pgxmock.NewRows(cols).AddRow(userID.String(), true, (*time.Time)(nil), now.Add(time.Hour)))

		_, err := NewResetTokenRepository(mock).Lookup(context.Background(), "h", now)
		require.ErrorIs(t, err, auth.ErrTokenUsed)
	})

	t.Run("unknown token", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT user_id, is_used`).WillReturnRows(pgxmock.NewRows(cols))

		_, err := NewResetTokenRepository(mock).Lookup(context.Background(), "h", now)
		require.ErrorIs(t, err, auth.ErrTokenNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT user_id, is_used`).WillReturnError(errConnRefused)

		_, err := NewResetTokenRepository(mock).Lookup(context.Background(), "h", now)
		require.ErrorIs(t, err, errConnRefused)
		errutil.AssertErrorCode(t, err, "ONE_TIME_TOKEN_LOOKUP_FAILED")
	})
}

func TestLedgerRepository(t *testing.T) {
	userID := ulid.Make()

	t.Run("records activity details as JSON", func(t *testing.T) {
		mock := newMock(t)
		entry := &auth.ActivityEntry{
			ID:           ulid.Make(),
			UserID:       &userID,
			Action:       auth.ActionSignoutAll,
			ResourceType: "user",
			Details:      map[string]any{"revoked": 3},
			CreatedAt:    time.Now().UTC(),
		}
		mock.ExpectExec(`INSERT INTO activity_log`).
			WithArgs(entry.ID.String(), pgxmock.AnyArg(), auth.ActionSignoutAll, "user",
				[]byte(`{"revoked":3}`), (*string)(nil), entry.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, NewLedgerRepository(mock).RecordActivity(context.Background(), entry))
	})

	t.Run("counts failed attempts case-insensitively", func(t *testing.T) {
		mock := newMock(t)
		since := time.Now().Add(-15 * time.Minute)
		mock.ExpectQuery(`SELECT count\(\*\) FROM login_attempts`).
			WithArgs("u@e.com", since).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

		n, err := NewLedgerRepository(mock).CountFailedAttempts(context.Background(), "U@E.com", since)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("count failure is coded", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT count\(\*\) FROM login_attempts`).WillReturnError(errConnRefused)

		_, err := NewLedgerRepository(mock).CountFailedAttempts(context.Background(), "u1", time.Now())
		errutil.AssertErrorCode(t, err, "LOGIN_ATTEMPT_COUNT_FAILED")
	})
}

func TestTransactor(t *testing.T) {
	t.Run("rolls back when fn fails", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := NewTransactor(mock).InTransaction(context.Background(), func(context.Context) error { return boom })
		require.ErrorIs(t, err, boom)
	})

	t.Run("begin failure is coded", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin().WillReturnError(errConnRefused)

		err := NewTransactor(mock).InTransaction(context.Background(), func(context.Context) error { return nil })
		errutil.AssertErrorCode(t, err, "TX_BEGIN_FAILED")
	})

	t.Run("nested calls share one transaction", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM refresh_tokens`).WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		tx := NewTransactor(mock)
		repo := NewRefreshTokenRepository(mock)
		err := tx.InTransaction(context.Background(), func(ctx context.Context) error {
			return tx.InTransaction(ctx, func(ctx context.Context) error {
				return repo.DeleteByUser(ctx, ulid.Make())
			})
		})
		require.NoError(t, err)
	})
}
