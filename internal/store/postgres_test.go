// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/tasklane/pkg/errutil"
)

func TestParsePoolConfig(t *testing.T) {
	pc, err := parsePoolConfig(PoolConfig{
		URL:             "postgres://tasklane:secret@db:5432/tasklane?sslmode=disable",
		MaxConns:        12,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		ConnectTimeout:  3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(12), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, 3*time.Second, pc.ConnConfig.ConnectTimeout)
	assert.Equal(t, "tasklane", pc.ConnConfig.Database)
}

func TestParsePoolConfig_Errors(t *testing.T) {
	_, err := parsePoolConfig(PoolConfig{})
	errutil.AssertErrorCode(t, err, "DATABASE_URL_MISSING")

	_, err = parsePoolConfig(PoolConfig{URL: "postgres://db:notaport/x"})
	errutil.AssertErrorCode(t, err, "DATABASE_URL_INVALID")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadinessCheck(t *testing.T) {
	ok := ReadinessCheck(pingFunc(func(context.Context) error { return nil }), time.Second)
	require.NoError(t, ok(context.Background()))

	failing := ReadinessCheck(pingFunc(func(context.Context) error { return errors.New("refused") }), time.Second)
	errutil.AssertErrorCode(t, failing(context.Background()), "DATABASE_UNREACHABLE")

	var deadline bool
	bounded := ReadinessCheck(pingFunc(func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return nil
	}), time.Second)
	require.NoError(t, bounded(context.Background()))
	assert.True(t, deadline)
}
