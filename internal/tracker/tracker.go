// Package tracker owns externally sourced state that is refreshed by
// asynchronous HTTP fetches and published as immutable snapshots.
//
// Fetches run on their own goroutines. Every state mutation goes through the
// tracker's Dispatcher, so observers see updates on a single context. Failed
// fetches are logged and recorded in LastError; published state is never
// touched on failure.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"suntrack/internal/metrics"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
)

type base struct {
	name       string
	logger     *slog.Logger
	dispatcher Dispatcher
	timeout    time.Duration

	mu       sync.Mutex
	idle     *sync.Cond
	inflight int
	errs     map[string]error
}

func (b *base) init(name string, logger *slog.Logger, dispatcher Dispatcher, timeout time.Duration) {
	if logger == nil {
		logger = slog.Default()
	}
	if dispatcher == nil {
		dispatcher = Immediate
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	b.name = name
	b.logger = logger.With("tracker", name)
	b.dispatcher = dispatcher
	b.timeout = timeout
	b.idle = sync.NewCond(&b.mu)
	b.errs = make(map[string]error)
}

func (b *base) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight > 0 {
		return PhaseFetching
	}
	return PhaseIdle
}

// LastError reports the failures still outstanding, one per operation, in
// operation name order. An operation's error is cleared by its next success.
func (b *base) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.errs) == 0 {
		return nil
	}
	errs := make([]error, 0, len(b.errs))
	for _, op := range slices.Sorted(maps.Keys(b.errs)) {
		errs = append(errs, b.errs[op])
	}
	return errors.Join(errs...)
}

// Wait blocks until no fetch is in flight. It may be called while other
// goroutines keep starting fetches. With a Loop dispatcher the resulting
// updates may still be queued.
func (b *base) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.inflight > 0 {
		b.idle.Wait()
	}
}

// run starts fn on its own goroutine with a fresh deadline. Requests are never
// canceled once issued.
func (b *base) run(fn func(ctx context.Context)) {
	b.mu.Lock()
	b.inflight++
	b.mu.Unlock()

	go func() {
		defer b.done()

		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (b *base) done() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight--
	if b.inflight == 0 {
		b.idle.Broadcast()
	}
}

func (b *base) fail(op string, err error) {
	b.logger.Warn("fetch failed, keeping previous state", "op", op, "error", err)
	b.mu.Lock()
	b.errs[op] = err
	b.mu.Unlock()
}

func (b *base) succeed(op string) {
	b.mu.Lock()
	delete(b.errs, op)
	b.mu.Unlock()
}

func publish[T any](b *base, s *Store[T], mutate func(*T)) {
	b.dispatcher.Dispatch(func() {
		s.update(mutate)
		metrics.TrackerUpdatesTotal.WithLabelValues(b.name).Inc()
	})
}
