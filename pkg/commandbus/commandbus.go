// Package commandbus coalesces per-tick place/cancel intents into batched
// exchange calls, throttled by a token-bucket rate limiter, with a legacy
// one-by-one dispatch mode for rollback parity.
package commandbus

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/fenwick-quant/soakctl/pkg/connector"
	"github.com/fenwick-quant/soakctl/pkg/errs"
	"github.com/fenwick-quant/soakctl/pkg/log"
	"github.com/fenwick-quant/soakctl/pkg/metrics"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

// MaxBatchSize mirrors connector.MaxBatchSize: at most 20 ids/orders per
// batched call.
const MaxBatchSize = connector.MaxBatchSize

// Config controls coalescing and throttling behavior.
type Config struct {
	// Enabled turns coalescing on. When false, every intent is dispatched
	// one-by-one (legacy mode) for rollback parity.
	Enabled bool
	// RateLimitPerSecond bounds batch dispatch via a token bucket.
	RateLimitPerSecond float64
	// RateLimitBurst is the bucket's burst size.
	RateLimitBurst int
}

// DefaultConfig returns the production defaults: coalescing on, a generous
// token bucket that in practice only throttles pathological symbol counts.
var DefaultConfig = Config{Enabled: true, RateLimitPerSecond: 50, RateLimitBurst: 50}

// Bus dispatches coalesced command batches against a Connector, subject to
// a rate limiter shared across all symbols in the process.
type Bus struct {
	conn    connector.Connector
	limiter *rate.Limiter
	cfg     Config
	logger  zerolog.Logger
}

// New constructs a Bus bound to conn.
func New(conn connector.Connector, cfg Config) *Bus {
	return &Bus{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst),
		cfg:     cfg,
		logger:  log.WithComponent("commandbus"),
	}
}

// ThrottleFromRetryAfter shrinks the limiter's rate for the duration
// retryAfter in response to a RateLimit signal surfaced by a Live
// connector, then restores it. It is safe to call concurrently from
// multiple symbol workers.
func (b *Bus) ThrottleFromRetryAfter(retryAfter time.Duration) {
	b.limiter.SetLimit(0)
	go func() {
		time.Sleep(retryAfter)
		b.limiter.SetLimit(rate.Limit(b.cfg.RateLimitPerSecond))
	}()
}

// coalesceCancels collapses cancel intents into batches of at most
// MaxBatchSize, preserving input order. There is at most one batch-cancel
// per symbol per tick; callers that accumulate more than MaxBatchSize
// cancels in a tick get the overflow split into additional batches rather
// than dropped.
func coalesceCancels(intents []types.CancelIntent) [][]string {
	if len(intents) == 0 {
		return nil
	}
	var batches [][]string
	var cur []string
	for _, c := range intents {
		cur = append(cur, c.ClientID)
		if len(cur) == MaxBatchSize {
			batches = append(batches, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// coalescePlaces collapses place intents into ⌈count/MaxBatchSize⌉
// batches, preserving input order.
func coalescePlaces(intents []types.PlaceIntent) [][]types.PlaceIntent {
	if len(intents) == 0 {
		return nil
	}
	var batches [][]types.PlaceIntent
	var cur []types.PlaceIntent
	for _, p := range intents {
		cur = append(cur, p)
		if len(cur) == MaxBatchSize {
			batches = append(batches, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// Dispatch sends cancels before places for symbol, within one symbol's
// tick. In coalesced mode, batches are built by
// coalesceCancels/coalescePlaces; in legacy mode each intent is dispatched
// as its own single-element batch. Returns the place results (callers use
// them to transition newly-placed orders), the cancel results, and any
// non-element-level error.
func (b *Bus) Dispatch(ctx context.Context, symbol string, cancels []types.CancelIntent, places []types.PlaceIntent) ([]types.PlaceResult, []types.CancelResult, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, nil, errs.DeadlineExceeded("rate limiter wait", err)
	}

	var cancelResults []types.CancelResult
	var placeResults []types.PlaceResult

	if b.cfg.Enabled {
		for _, ids := range coalesceCancels(cancels) {
			results, err := b.conn.CancelBatch(ctx, symbol, ids)
			if err != nil {
				return placeResults, cancelResults, errs.TransientIO("cancel_batch", err)
			}
			cancelResults = append(cancelResults, results...)
			metrics.CoalescedCommandsTotal.WithLabelValues("cancel").Inc()
		}
		for _, batch := range coalescePlaces(places) {
			results, err := b.conn.PlaceBatch(ctx, symbol, batch)
			if err != nil {
				return placeResults, cancelResults, errs.TransientIO("place_batch", err)
			}
			placeResults = append(placeResults, results...)
			metrics.CoalescedCommandsTotal.WithLabelValues("place").Inc()
		}
		return placeResults, cancelResults, nil
	}

	// Legacy one-by-one mode: issue each cancel and place as its own batch.
	for _, c := range cancels {
		results, err := b.conn.CancelBatch(ctx, symbol, []string{c.ClientID})
		if err != nil {
			return placeResults, cancelResults, errs.TransientIO("cancel (legacy)", err)
		}
		cancelResults = append(cancelResults, results...)
		metrics.CoalescedCommandsTotal.WithLabelValues("cancel").Inc()
	}
	for _, p := range places {
		results, err := b.conn.PlaceBatch(ctx, symbol, []types.PlaceIntent{p})
		if err != nil {
			return placeResults, cancelResults, errs.TransientIO("place (legacy)", err)
		}
		placeResults = append(placeResults, results...)
		metrics.CoalescedCommandsTotal.WithLabelValues("place").Inc()
	}
	return placeResults, cancelResults, nil
}
