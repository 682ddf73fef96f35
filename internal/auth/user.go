// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 2
	MaxUsernameLength = 30
	MaxEmailLength    = 254
)

// usernameRegex matches usernames that start with a letter and contain only
// letters, numbers, underscores, dots and hyphens.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

// User is a Tasklane account.
type User struct {
	ID            ulid.ULID
	Email         string
	Username      string
	PasswordHash  string
	IsActive      bool
	EmailVerified bool
	Role          Role
	Tier          Tier
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CanAuthenticate reports whether the account may sign in or refresh tokens.
func (u *User) CanAuthenticate() bool {
	return u.IsActive
}

// NewUser creates an active, unverified User with a fresh ID.
func NewUser(email, username, passwordHash string, role Role, tier Tier) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_USER").Errorf("password hash cannot be empty")
	}
	if !role.Valid() {
		return nil, oops.Code("AUTH_UNKNOWN_ROLE").Errorf("role is required")
	}
	if tier == "" {
		tier = TierFree
	}
	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Email:        NormalizeEmail(email),
		Username:     username,
		PasswordHash: passwordHash,
		IsActive:     true,
		Role:         role,
		Tier:         tier,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername validates a username against the naming rules.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username must start with a letter and contain only letters, numbers, '_', '.' and '-'")
	}
	return nil
}

// CredentialStore manages user persistence. It holds no business logic.
type CredentialStore interface {
	// Create stores a new user. Returns an error wrapping ErrConflict when the
	// email or username is already taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByUsername retrieves a user by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*User, error)

	// ExistsByEmailOrUsername reports whether either identifier is taken.
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error)

	// DefaultRole returns the role assigned to new signups.
	DefaultRole(ctx context.Context) (Role, error)

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error

	// MarkEmailVerified sets email_verified. Returns false if it was already set.
	MarkEmailVerified(ctx context.Context, id ulid.ULID) (bool, error)

	// UpdateLastLogin records the time of the latest successful signin.
	UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// Delete removes the user row. Returns ErrNotFound if it no longer exists.
	Delete(ctx context.Context, id ulid.ULID) error
}
