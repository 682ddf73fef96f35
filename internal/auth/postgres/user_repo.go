// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tasklane/tasklane/internal/auth"
)

const userColumns = `id, email, username, password_hash, is_active, email_verified, role, tier, last_login_at, created_at, updated_at`

// UserRepository implements auth.CredentialStore using PostgreSQL.
type UserRepository struct {
	db DB
}

var _ auth.CredentialStore = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		user.ID.String(),
		user.Email,
		user.Username,
		user.PasswordHash,
		user.IsActive,
		user.EmailVerified,
		user.Role.String(),
		string(user.Tier),
		user.LastLoginAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("USER_CREATE_FAILED").
			With("user_id", user.ID.String()).
			Wrap(auth.ErrConflict)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*auth.User, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	return scanUser(row)
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	user, err := r.getOne(ctx, `id = $1`, id.String())
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by id").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	user, err := r.getOne(ctx, `lower(email) = lower($1)`, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username, case-insensitively.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	user, err := r.getOne(ctx, `lower(username) = lower($1)`, username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// ExistsByEmailOrUsername reports whether either identifier is taken.
func (r *UserRepository) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	var exists bool
	err := conn(ctx, r.db).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users WHERE lower(email) = lower($1) OR lower(username) = lower($2)
		)
	`, email, username).Scan(&exists)
	if err != nil {
		return false, oops.Code("USER_EXISTS_CHECK_FAILED").
			With("operation", "check user exists").
			Wrap(err)
	}
	return exists, nil
}

// DefaultRole returns the role flagged is_default in the roles table.
func (r *UserRepository) DefaultRole(ctx context.Context) (auth.Role, error) {
	var name string
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT name FROM roles WHERE is_default LIMIT 1`).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("DEFAULT_ROLE_MISSING").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("DEFAULT_ROLE_LOOKUP_FAILED").
			With("operation", "select default role").
			Wrap(err)
	}
	role, err := auth.ParseRole(name)
	if err != nil {
		return 0, oops.Code("DEFAULT_ROLE_LOOKUP_FAILED").Wrap(err)
	}
	return role, nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, id.String(), passwordHash)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password hash").
			With("user_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// MarkEmailVerified sets email_verified. Returns false if it was already set.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id ulid.ULID) (bool, error) {
	q := conn(ctx, r.db)
	tag, err := q.Exec(ctx, `
		UPDATE users SET email_verified = true, updated_at = now()
		WHERE id = $1 AND NOT email_verified
	`, id.String())
	if err != nil {
		return false, oops.Code("USER_VERIFY_EMAIL_FAILED").
			With("operation", "mark email verified").
			With("user_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id.String()).Scan(&exists); err != nil {
		return false, oops.Code("USER_VERIFY_EMAIL_FAILED").
			With("operation", "check user exists").
			With("user_id", id.String()).
			Wrap(err)
	}
	if !exists {
		return false, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return false, nil
}

// UpdateLastLogin records the time of the latest successful signin.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE users SET last_login_at = $2, updated_at = now() WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return oops.Code("USER_UPDATE_LAST_LOGIN_FAILED").
			With("operation", "update last login").
			With("user_id", id.String()).
			Wrap(err)
	}
	return nil
}

// Delete removes the user. Dependent token rows cascade.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("user_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetActive activates or deactivates the account. Deactivation is an
// operator action and is not reachable through the coordinator.
func (r *UserRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1
	`, id.String(), active)
	if err != nil {
		return oops.Code("USER_SET_ACTIVE_FAILED").
			With("operation", "set active").
			With("user_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a user row. Returns pgx.ErrNoRows unchanged so callers can
// map it to ErrNotFound.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr    string
		roleName string
		tier     string
		user     auth.User
	)
	err := row.Scan(
		&idStr,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.IsActive,
		&user.EmailVerified,
		&roleName,
		&tier,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers check for pgx.ErrNoRows
	}
	if user.ID, err = parseULID(idStr); err != nil {
		return nil, err
	}
	if user.Role, err = auth.ParseRole(roleName); err != nil {
		return nil, err //nolint:wrapcheck // already an oops error
	}
	user.Tier = auth.Tier(tier)
	return &user, nil
}
