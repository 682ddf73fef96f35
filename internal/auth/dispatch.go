// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"

	"github.com/tasklane/tasklane/pkg/errutil"
)

var (
	dispatchDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasklane_dispatch_dropped_total",
		Help: "Total number of post-commit actions dropped because the queue was full",
	})

	dispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasklane_dispatch_failures_total",
		Help: "Total number of failed post-commit actions",
	}, []string{"action"})
)

// Action is a best-effort side effect run after a flow's store mutation has
// committed. Its error is logged, never returned to the caller.
type Action func(ctx context.Context) error

// Dispatcher runs post-commit actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, action Action)
}

// InlineDispatcher runs actions on the calling goroutine before Dispatch
// returns.
type InlineDispatcher struct {
	logger *slog.Logger
}

// NewInlineDispatcher creates an InlineDispatcher. A nil logger uses slog.Default.
func NewInlineDispatcher(logger *slog.Logger) *InlineDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlineDispatcher{logger: logger}
}

// Dispatch runs action and logs its error.
func (d *InlineDispatcher) Dispatch(ctx context.Context, name string, action Action) {
	if err := action(ctx); err != nil {
		dispatchFailures.WithLabelValues(name).Inc()
		errutil.LogError(d.logger, "post-commit action failed", oops.With("action", name).Wrap(err))
	}
}

// submitter is the subset of *workerpool.Pool used by AsyncDispatcher.
type submitter interface {
	TryGo(fn func()) bool
}

// AsyncDispatcher queues actions on a worker pool. Actions run with the
// caller's context values but not its cancellation, bounded by timeout.
// When the queue is full the action is dropped and counted.
type AsyncDispatcher struct {
	pool    submitter
	timeout time.Duration
	logger  *slog.Logger
}

// NewAsyncDispatcher creates an AsyncDispatcher on pool.
func NewAsyncDispatcher(pool submitter, timeout time.Duration, logger *slog.Logger) (*AsyncDispatcher, error) {
	if pool == nil {
		return nil, oops.Code("DISPATCHER_CONFIG_INVALID").Errorf("worker pool is required")
	}
	if logger == nil {
		return nil, oops.Code("DISPATCHER_CONFIG_INVALID").Errorf("logger is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AsyncDispatcher{pool: pool, timeout: timeout, logger: logger}, nil
}

// Dispatch queues action without blocking.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, name string, action Action) {
	detached := context.WithoutCancel(ctx)
	queued := d.pool.TryGo(func() {
		runCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()
		if err := action(runCtx); err != nil {
			dispatchFailures.WithLabelValues(name).Inc()
			errutil.LogError(d.logger, "post-commit action failed", oops.With("action", name).Wrap(err))
		}
	})
	if !queued {
		dispatchDropped.Inc()
		d.logger.Warn("post-commit action dropped", "action", name)
	}
}
