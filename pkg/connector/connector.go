// Package connector defines the Exchange Connector contract consumed by the
// Tick Orchestrator, plus a deterministic fake backend for tests and a
// circuit-breaker-wrapped live backend for real exchanges.
package connector

import (
	"context"

	"github.com/fenwick-quant/soakctl/pkg/types"
)

// Connector is the capability set required from any exchange backend. All
// batched calls are atomic per symbol from the caller's perspective: partial
// results are reported element-wise via the returned slices, never as a
// whole-call error unless the transport itself failed.
type Connector interface {
	// StreamOrderBook returns a channel of snapshots for the given symbols.
	// The channel is closed when ctx is cancelled.
	StreamOrderBook(ctx context.Context, symbols []string) (<-chan types.OrderBookSnapshot, error)

	// PlaceBatch submits up to 20 orders for one symbol and returns one
	// result per input order, in input order.
	PlaceBatch(ctx context.Context, symbol string, orders []types.PlaceIntent) ([]types.PlaceResult, error)

	// CancelBatch cancels up to 20 client ids for one symbol and returns one
	// result per input id, in input order.
	CancelBatch(ctx context.Context, symbol string, clientIDs []string) ([]types.CancelResult, error)

	// StreamFills returns a channel of fill events across all symbols. The
	// channel is closed when ctx is cancelled.
	StreamFills(ctx context.Context) (<-chan types.FillEvent, error)
}

// MaxBatchSize is the largest batch any Connector implementation accepts in
// a single PlaceBatch/CancelBatch call; callers split larger intents sets
// before invoking it.
const MaxBatchSize = 20
