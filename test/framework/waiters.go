package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/fenwick-quant/soakctl/pkg/artifacts"
)

// Waiter provides utilities for waiting on conditions with timeouts.
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a new Waiter with the given timeout and polling interval.
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{
		timeout:  timeout,
		interval: interval,
	}
}

// DefaultWaiter returns a waiter with sensible defaults (30s timeout, 100ms
// interval) — soak integration tests run in-process, so polling can be much
// tighter than a process-spawning cluster test's.
func DefaultWaiter() *Waiter {
	return NewWaiter(30*time.Second, 100*time.Millisecond)
}

// WaitFor waits for a condition to become true.
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if condition() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForIterationCount waits until store has written at least n iteration
// summaries.
func (w *Waiter) WaitForIterationCount(ctx context.Context, store *artifacts.Store, n int) error {
	return w.WaitFor(ctx, func() bool {
		summaries, err := store.ListIterationSummaries()
		return err == nil && len(summaries) >= n
	}, fmt.Sprintf("%d iteration summaries", n))
}

// WaitForSnapshot waits until store has a POST_SOAK_SNAPSHOT.json.
func (w *Waiter) WaitForSnapshot(ctx context.Context, store *artifacts.Store) error {
	return w.WaitFor(ctx, func() bool {
		_, err := store.ReadSnapshot()
		return err == nil
	}, "post-soak snapshot")
}
