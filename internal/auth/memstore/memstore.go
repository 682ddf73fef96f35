// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

// Package memstore provides in-memory implementations of the auth stores for
// tests and local development. Transactions serialize callers but do not
// roll back.
package memstore

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tasklane/tasklane/internal/auth"
)

// Store bundles every in-memory store.
type Store struct {
	Users              *Users
	RefreshTokens      *RefreshTokens
	ResetTokens        *OneTimeTokens
	VerificationTokens *OneTimeTokens
	Ledger             *Ledger
	Transactor         *Transactor
}

// New creates an empty Store whose default role is member.
func New() *Store {
	return &Store{
		Users:              NewUsers(auth.RoleMember),
		RefreshTokens:      NewRefreshTokens(),
		ResetTokens:        NewOneTimeTokens(),
		VerificationTokens: NewOneTimeTokens(),
		Ledger:             NewLedger(),
		Transactor:         &Transactor{},
	}
}

// Transactor serializes transactional callers. It has no rollback: writes
// made by fn before it fails are kept, so a failed password reset still
// leaves its token consumed. Use the postgres driver where that matters.
type Transactor struct {
	mu sync.Mutex
}

// InTransaction runs fn while holding the transaction lock.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}

// Users is an in-memory auth.CredentialStore.
type Users struct {
	mu          sync.RWMutex
	byID        map[ulid.ULID]*auth.User
	defaultRole auth.Role
}

// NewUsers creates an empty Users store.
func NewUsers(defaultRole auth.Role) *Users {
	return &Users{byID: make(map[ulid.ULID]*auth.User), defaultRole: defaultRole}
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

// Create stores user.
func (s *Users) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if strings.EqualFold(u.Email, user.Email) || strings.EqualFold(u.Username, user.Username) {
			return oops.Code("USER_CREATE_FAILED").With("user_id", user.ID.String()).Wrap(auth.ErrConflict)
		}
	}
	s.byID[user.ID] = copyUser(user)
	return nil
}

// GetByID returns the user with id.
func (s *Users) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return copyUser(u), nil
}

func (s *Users) find(match func(*auth.User) bool) *auth.User {
	for _, u := range s.byID {
		if match(u) {
			return u
		}
	}
	return nil
}

// GetByEmail returns the user with email, case-insensitively.
func (s *Users) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u := s.find(func(u *auth.User) bool { return strings.EqualFold(u.Email, email) })
	if u == nil {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return copyUser(u), nil
}

// GetByUsername returns the user with username, case-insensitively.
func (s *Users) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u := s.find(func(u *auth.User) bool { return strings.EqualFold(u.Username, username) })
	if u == nil {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	return copyUser(u), nil
}

// ExistsByEmailOrUsername reports whether either identifier is taken.
func (s *Users) ExistsByEmailOrUsername(_ context.Context, email, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u := s.find(func(u *auth.User) bool {
		return strings.EqualFold(u.Email, email) || strings.EqualFold(u.Username, username)
	})
	return u != nil, nil
}

// DefaultRole returns the configured default role.
func (s *Users) DefaultRole(_ context.Context) (auth.Role, error) {
	return s.defaultRole, nil
}

func (s *Users) update(id ulid.ULID, fn func(*auth.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdatePasswordHash replaces the stored hash.
func (s *Users) UpdatePasswordHash(_ context.Context, id ulid.ULID, passwordHash string) error {
	return s.update(id, func(u *auth.User) { u.PasswordHash = passwordHash })
}

// MarkEmailVerified sets email_verified and reports whether it changed.
func (s *Users) MarkEmailVerified(_ context.Context, id ulid.ULID) (bool, error) {
	var changed bool
	err := s.update(id, func(u *auth.User) {
		changed = !u.EmailVerified
		u.EmailVerified = true
	})
	return changed, err
}

// UpdateLastLogin records at as the latest signin.
func (s *Users) UpdateLastLogin(_ context.Context, id ulid.ULID, at time.Time) error {
	return s.update(id, func(u *auth.User) { u.LastLoginAt = &at })
}

// SetActive toggles is_active.
func (s *Users) SetActive(_ context.Context, id ulid.ULID, active bool) error {
	return s.update(id, func(u *auth.User) { u.IsActive = active })
}

// Delete removes the user.
func (s *Users) Delete(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	delete(s.byID, id)
	return nil
}

// RefreshTokens is an in-memory auth.RefreshTokenStore.
type RefreshTokens struct {
	mu     sync.Mutex
	byHash map[string]*auth.RefreshToken
}

// NewRefreshTokens creates an empty RefreshTokens store.
func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{byHash: make(map[string]*auth.RefreshToken)}
}

// Create stores token.
func (s *RefreshTokens) Create(_ context.Context, token *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[token.TokenHash]; ok {
		return oops.Code("REFRESH_TOKEN_CREATE_FAILED").Wrap(auth.ErrConflict)
	}
	c := *token
	s.byHash[token.TokenHash] = &c
	return nil
}

// GetValidByHash returns the row for tokenHash when it is valid at now.
func (s *RefreshTokens) GetValidByHash(_ context.Context, tokenHash string, now time.Time) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[tokenHash]
	if !ok || !t.IsValid(now) {
		return nil, oops.Code("REFRESH_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	c := *t
	return &c, nil
}

// Revoke revokes the row for tokenHash.
func (s *RefreshTokens) Revoke(_ context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[tokenHash]
	if !ok || t.IsRevoked {
		return false, nil
	}
	t.IsRevoked = true
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

// RevokeAllForUser revokes every non-revoked row of the user.
func (s *RefreshTokens) RevokeAllForUser(_ context.Context, userID ulid.ULID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.byHash {
		if t.UserID == userID && !t.IsRevoked {
			t.IsRevoked = true
			t.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// Rotate revokes oldHash and stores next under one lock.
func (s *RefreshTokens) Rotate(_ context.Context, oldHash string, next *auth.RefreshToken, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byHash[oldHash]
	if !ok || !old.IsValid(now) {
		return oops.Code("REFRESH_TOKEN_ROTATE_LOST").Wrap(auth.ErrNotFound)
	}
	if _, dup := s.byHash[next.TokenHash]; dup {
		return oops.Code("REFRESH_TOKEN_CREATE_FAILED").Wrap(auth.ErrConflict)
	}
	old.IsRevoked = true
	old.UpdatedAt = now
	c := *next
	s.byHash[next.TokenHash] = &c
	return nil
}

// DeleteByUser removes every row of the user.
func (s *RefreshTokens) DeleteByUser(_ context.Context, userID ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.DeleteFunc(s.byHash, func(_ string, t *auth.RefreshToken) bool { return t.UserID == userID })
	return nil
}

// DeleteStale removes rows expired or revoked before cutoff.
func (s *RefreshTokens) DeleteStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	maps.DeleteFunc(s.byHash, func(_ string, t *auth.RefreshToken) bool {
		stale := t.ExpiresAt.Before(cutoff) || (t.IsRevoked && t.UpdatedAt.Before(cutoff))
		if stale {
			n++
		}
		return stale
	})
	return n, nil
}

// Count returns the number of stored rows for the user. Test helper.
func (s *RefreshTokens) Count(userID ulid.ULID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.byHash {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

// OneTimeTokens is an in-memory auth.OneTimeTokenStore.
type OneTimeTokens struct {
	mu     sync.Mutex
	tokens []*auth.OneTimeToken
}

// NewOneTimeTokens creates an empty OneTimeTokens store.
func NewOneTimeTokens() *OneTimeTokens {
	return &OneTimeTokens{}
}

// Issue supersedes the user's outstanding tokens and stores token.
func (s *OneTimeTokens) Issue(_ context.Context, token *auth.OneTimeToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range s.tokens {
		if t.UserID == token.UserID && !t.IsUsed && t.SupersededAt == nil {
			at := now
			t.SupersededAt = &at
		}
	}
	c := *token
	s.tokens = append(s.tokens, &c)
	return nil
}

// Consume marks the token used and returns its owner.
func (s *OneTimeTokens) Consume(_ context.Context, tokenHash string, now time.Time) (ulid.ULID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.TokenHash != tokenHash {
			continue
		}
		if err := t.State(now).Err(); err != nil {
			return ulid.ULID{}, oops.Code("ONE_TIME_TOKEN_UNUSABLE").With("purpose", string(t.Purpose)).Wrap(err)
		}
		at := now
		t.IsUsed = true
		t.UsedAt = &at
		return t.UserID, nil
	}
	return ulid.ULID{}, oops.Code("ONE_TIME_TOKEN_UNUSABLE").Wrap(auth.ErrTokenNotFound)
}

// Lookup implements auth.OneTimeTokenStore.
func (s *OneTimeTokens) Lookup(_ context.Context, tokenHash string, now time.Time) (ulid.ULID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.TokenHash != tokenHash {
			continue
		}
		if err := t.State(now).Err(); err != nil {
			return ulid.ULID{}, oops.Code("ONE_TIME_TOKEN_UNUSABLE").With("purpose", string(t.Purpose)).Wrap(err)
		}
		return t.UserID, nil
	}
	return ulid.ULID{}, oops.Code("ONE_TIME_TOKEN_UNUSABLE").Wrap(auth.ErrTokenNotFound)
}

// CountIssuedSince counts the user's tokens created at or after since.
func (s *OneTimeTokens) CountIssuedSince(_ context.Context, userID ulid.ULID, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// DeleteByUser removes every token of the user.
func (s *OneTimeTokens) DeleteByUser(_ context.Context, userID ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tokens[:0]
	for _, t := range s.tokens {
		if t.UserID != userID {
			kept = append(kept, t)
		}
	}
	s.tokens = kept
	return nil
}

// DeleteStale removes tokens that stopped being usable before cutoff.
func (s *OneTimeTokens) DeleteStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.tokens[:0]
	for _, t := range s.tokens {
		stale := t.ExpiresAt.Before(cutoff) ||
			(t.UsedAt != nil && t.UsedAt.Before(cutoff)) ||
			(t.SupersededAt != nil && t.SupersededAt.Before(cutoff))
		if stale {
			n++
			continue
		}
		kept = append(kept, t)
	}
	s.tokens = kept
	return n, nil
}

// Tokens returns copies of the user's tokens. Test helper.
func (s *OneTimeTokens) Tokens(userID ulid.ULID) []auth.OneTimeToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.OneTimeToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out
}

// Ledger is an in-memory auth.AttemptLedger.
type Ledger struct {
	mu       sync.RWMutex
	attempts []auth.LoginAttempt
	activity []auth.ActivityEntry
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// RecordLoginAttempt appends attempt.
func (l *Ledger) RecordLoginAttempt(_ context.Context, attempt *auth.LoginAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, *attempt)
	return nil
}

// RecordActivity appends entry.
func (l *Ledger) RecordActivity(_ context.Context, entry *auth.ActivityEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := *entry
	c.Details = maps.Clone(entry.Details)
	l.activity = append(l.activity, c)
	return nil
}

// CountFailedAttempts counts failures for identifier at or after since.
func (l *Ledger) CountFailedAttempts(_ context.Context, identifier string, since time.Time) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, a := range l.attempts {
		if !a.Success && strings.EqualFold(a.Identifier, identifier) && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// Attempts returns a copy of the recorded attempts. Test helper.
func (l *Ledger) Attempts() []auth.LoginAttempt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]auth.LoginAttempt(nil), l.attempts...)
}

// Activity returns a copy of the recorded activity. Test helper.
func (l *Ledger) Activity() []auth.ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]auth.ActivityEntry(nil), l.activity...)
}

// Outbox is an auth.NotificationPort that keeps every notification.
type Outbox struct {
	mu   sync.Mutex
	sent []auth.Notification
}

// Notify records n.
func (o *Outbox) Notify(_ context.Context, n auth.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, n)
	return nil
}

// Sent returns the notifications of kind sent to email, oldest first.
func (o *Outbox) Sent(kind auth.NotificationKind, email string) []auth.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []auth.Notification
	for _, n := range o.sent {
		if n.Kind == kind && strings.EqualFold(n.Email, email) {
			out = append(out, n)
		}
	}
	return out
}

// Last returns the most recent notification of kind sent to email.
func (o *Outbox) Last(kind auth.NotificationKind, email string) (auth.Notification, bool) {
	sent := o.Sent(kind, email)
	if len(sent) == 0 {
		return auth.Notification{}, false
	}
	return sent[len(sent)-1], true
}
