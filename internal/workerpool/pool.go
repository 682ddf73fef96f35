// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

// Package workerpool runs functions on a fixed set of goroutines so that
// CPU-heavy work cannot starve the rest of the process.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"
)

var (
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tasklane_workerpool_queue_depth",
		Help: "Number of jobs waiting in a worker pool queue",
	}, []string{"pool"})

	jobsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasklane_workerpool_rejected_total",
		Help: "Total number of jobs rejected because the pool was full or closed",
	}, []string{"pool"})

	jobsPanicked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasklane_workerpool_panics_total",
		Help: "Total number of jobs that panicked",
	}, []string{"pool"})
)

// ErrClosed is returned when submitting to a closed pool.
var ErrClosed = errors.New("worker pool is closed")

// ErrPanicked is returned by Do when fn panicked. The worker survives.
var ErrPanicked = errors.New("worker pool job panicked")

type job struct {
	fn   func()
	done chan struct{}
	err  error
}

// Pool is a bounded worker pool.
type Pool struct {
	name  string
	jobs  chan *job
	wg    sync.WaitGroup
	mu    sync.RWMutex
	once  sync.Once
	shut  bool
	depth prometheus.Gauge
}

// New starts a pool with the given number of workers and queue capacity.
// workers <= 0 uses GOMAXPROCS; queueSize < 0 is treated as 0.
func New(name string, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		name:  name,
		jobs:  make(chan *job, queueSize),
		depth: queueDepth.WithLabelValues(name),
	}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

// Do runs fn on a worker and waits for it to finish. If ctx ends first, Do
// returns ctx.Err(); fn may still run afterwards and must not rely on the
// caller still waiting.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	j := &job{fn: fn, done: make(chan struct{})}

	p.mu.RLock()
	if p.shut {
		p.mu.RUnlock()
		jobsRejected.WithLabelValues(p.name).Inc()
		return ErrClosed
	}
	select {
	case p.jobs <- j:
		p.depth.Inc()
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return oops.With("pool", p.name).Wrap(ctx.Err())
	}

	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return oops.With("pool", p.name).Wrap(ctx.Err())
	}
}

// TryGo queues fn without waiting. It returns false when the queue is full
// or the pool is closed.
func (p *Pool) TryGo(fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.shut {
		jobsRejected.WithLabelValues(p.name).Inc()
		return false
	}
	select {
	case p.jobs <- &job{fn: fn}:
		p.depth.Inc()
		return true
	default:
		jobsRejected.WithLabelValues(p.name).Inc()
		return false
	}
}

// Close stops accepting work, runs every queued job and waits for the
// workers to exit. It is safe to call more than once.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.shut = true
		close(p.jobs)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

// Name returns the pool name used in metrics.
func (p *Pool) Name() string {
	return p.name
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.depth.Dec()
		p.run(j)
	}
}

func (p *Pool) run(j *job) {
	defer func() {
		if r := recover(); r != nil {
			jobsPanicked.WithLabelValues(p.name).Inc()
			j.err = oops.With("pool", p.name).Wrap(fmt.Errorf("%w: %v", ErrPanicked, r))
			slog.Error("worker pool job panicked",
				"pool", p.name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
		if j.done != nil {
			close(j.done)
		}
	}()
	j.fn()
}
