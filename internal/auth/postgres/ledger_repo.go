// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/tasklane/tasklane/internal/auth"
)

// LedgerRepository implements auth.AttemptLedger on the login_attempts and
// activity_log tables.
type LedgerRepository struct {
	db DB
}

var _ auth.AttemptLedger = (*LedgerRepository)(nil)

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RecordLoginAttempt appends a login attempt.
func (r *LedgerRepository) RecordLoginAttempt(ctx context.Context, attempt *auth.LoginAttempt) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO login_attempts (id, identifier, user_id, success, failure_reason, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		attempt.ID.String(),
		attempt.Identifier,
		ulidPtrToStringPtr(attempt.UserID),
		attempt.Success,
		nullable(attempt.FailureReason),
		nullable(attempt.IPAddress),
		nullable(attempt.UserAgent),
		attempt.CreatedAt,
	)
	if err != nil {
		return oops.Code("LOGIN_ATTEMPT_RECORD_FAILED").
			With("operation", "insert login_attempt").
			Wrap(err)
	}
	return nil
}

// RecordActivity appends an activity log entry. Details are stored as JSONB.
func (r *LedgerRepository) RecordActivity(ctx context.Context, entry *auth.ActivityEntry) error {
	details := []byte("{}")
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return oops.Code("ACTIVITY_RECORD_FAILED").
				With("action", entry.Action).
				Wrapf(err, "encode details")
		}
		details = b
	}
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO activity_log (id, user_id, action, resource_type, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		entry.ID.String(),
		ulidPtrToStringPtr(entry.UserID),
		entry.Action,
		entry.ResourceType,
		details,
		nullable(entry.IPAddress),
		entry.CreatedAt,
	)
	if err != nil {
		return oops.Code("ACTIVITY_RECORD_FAILED").
			With("operation", "insert activity_log").
			With("action", entry.Action).
			Wrap(err)
	}
	return nil
}

// CountFailedAttempts counts failed attempts for identifier at or after since.
func (r *LedgerRepository) CountFailedAttempts(ctx context.Context, identifier string, since time.Time) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRow(ctx, `
		SELECT count(*) FROM login_attempts
		WHERE lower(identifier) = $1 AND NOT success AND created_at >= $2
	`, strings.ToLower(identifier), since).Scan(&n)
	if err != nil {
		return 0, oops.Code("LOGIN_ATTEMPT_COUNT_FAILED").
			With("operation", "count failed attempts").
			Wrap(err)
	}
	return n, nil
}
