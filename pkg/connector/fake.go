package connector

import (
	"context"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fenwick-quant/soakctl/pkg/types"
)

// FakeOption configures a FakeDeterministic backend.
type FakeOption func(*FakeDeterministic)

// WithSeed fixes the RNG seed driving fill and reject probability.
func WithSeed(seed int64) FakeOption {
	return func(f *FakeDeterministic) { f.rng = rand.New(rand.NewSource(seed)) }
}

// WithFillProbability sets the per-order probability that a placed order
// fills on the next StreamFills tick.
func WithFillProbability(p float64) FakeOption {
	return func(f *FakeDeterministic) { f.fillProbability = p }
}

// WithRejectProbability sets the per-order probability that PlaceBatch
// rejects an individual order.
func WithRejectProbability(p float64) FakeOption {
	return func(f *FakeDeterministic) { f.rejectProbability = p }
}

// WithMidPrice seeds the starting mid price for every symbol's snapshot.
func WithMidPrice(mid decimal.Decimal) FakeOption {
	return func(f *FakeDeterministic) { f.mid = mid }
}

// FakeDeterministic is an in-memory Connector backend for soak tests. Its
// RNG is seeded so runs are reproducible, and its clock defers to
// MM_FREEZE_UTC_ISO when set so artifacts produced against it are
// byte-comparable across runs.
type FakeDeterministic struct {
	mu                 sync.Mutex
	rng                *rand.Rand
	fillProbability    float64
	rejectProbability  float64
	mid                decimal.Decimal
	resting            map[string]types.PlaceIntent // clientID -> intent
	fills              chan types.FillEvent
}

// NewFakeDeterministic returns a ready-to-use fake backend. Defaults: seed
// 1, fill probability 0.35, reject probability 0.02, mid price 100.
func NewFakeDeterministic(opts ...FakeOption) *FakeDeterministic {
	f := &FakeDeterministic{
		rng:               rand.New(rand.NewSource(1)),
		fillProbability:   0.35,
		rejectProbability: 0.02,
		mid:               decimal.NewFromInt(100),
		resting:           make(map[string]types.PlaceIntent),
		fills:             make(chan types.FillEvent, 256),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// now returns the frozen clock from MM_FREEZE_UTC_ISO if set, else time.Now.
func now() time.Time {
	if iso := os.Getenv("MM_FREEZE_UTC_ISO"); iso != "" {
		if t, err := time.Parse(time.RFC3339, iso); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// StreamOrderBook emits one synthetic snapshot per symbol every 50ms until
// ctx is cancelled. The mid price randomwalks by a small seeded increment
// each tick so KPI computation has non-degenerate inputs.
func (f *FakeDeterministic) StreamOrderBook(ctx context.Context, symbols []string) (<-chan types.OrderBookSnapshot, error) {
	out := make(chan types.OrderBookSnapshot, len(symbols))
	go func() {
		defer close(out)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.mu.Lock()
				walk := decimal.NewFromFloat(f.rng.Float64()*0.2 - 0.1)
				f.mid = f.mid.Add(walk)
				mid := f.mid
				f.mu.Unlock()
				spread := decimal.NewFromFloat(0.05)
				for _, sym := range symbols {
					snap := types.OrderBookSnapshot{
						Symbol:    sym,
						BestBid:   mid.Sub(spread),
						BestAsk:   mid.Add(spread),
						LastTrade: mid,
						Timestamp: now(),
					}
					select {
					case out <- snap:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// PlaceBatch accepts up to MaxBatchSize orders, rejecting each independently
// with rejectProbability; accepted orders are tracked as resting and become
// eligible for a later synthetic fill.
func (f *FakeDeterministic) PlaceBatch(ctx context.Context, symbol string, orders []types.PlaceIntent) ([]types.PlaceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	results := make([]types.PlaceResult, len(orders))
	for i, o := range orders {
		if f.rng.Float64() < f.rejectProbability {
			results[i] = types.PlaceResult{ClientID: o.ClientID, Err: &RejectedError{ClientID: o.ClientID}}
			continue
		}
		f.resting[o.ClientID] = o
		results[i] = types.PlaceResult{ClientID: o.ClientID, ExchangeID: "fake-" + o.ClientID}
	}
	return results, nil
}

// CancelBatch removes resting orders by client id; cancelling an id that is
// not resting (already filled or never placed) is reported as an error for
// that element, not a transport failure.
func (f *FakeDeterministic) CancelBatch(ctx context.Context, symbol string, clientIDs []string) ([]types.CancelResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	results := make([]types.CancelResult, len(clientIDs))
	for i, id := range clientIDs {
		if _, ok := f.resting[id]; !ok {
			results[i] = types.CancelResult{ClientID: id, Err: &NotRestingError{ClientID: id}}
			continue
		}
		delete(f.resting, id)
		results[i] = types.CancelResult{ClientID: id}
	}
	return results, nil
}

// StreamFills periodically rolls each resting order for a fill at
// fillProbability until ctx is cancelled.
func (f *FakeDeterministic) StreamFills(ctx context.Context) (<-chan types.FillEvent, error) {
	go func() {
		ticker := time.NewTicker(75 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(f.fills)
				return
			case <-ticker.C:
				f.mu.Lock()
				var filled []string
				for id, o := range f.resting {
					if f.rng.Float64() < f.fillProbability {
						filled = append(filled, id)
						isMaker := f.rng.Float64() < 0.7
						event := types.FillEvent{
							ClientID:  id,
							Symbol:    o.Symbol,
							Side:      o.Side,
							Price:     o.Price,
							Size:      o.Size,
							FeeBps:    decimal.NewFromFloat(2.5),
							IsMaker:   isMaker,
							Timestamp: now(),
						}
						select {
						case f.fills <- event:
						default:
						}
					}
				}
				for _, id := range filled {
					delete(f.resting, id)
				}
				f.mu.Unlock()
			}
		}
	}()
	return f.fills, nil
}

// RejectedError indicates PlaceBatch rejected one order in a batch.
type RejectedError struct{ ClientID string }

func (e *RejectedError) Error() string { return "fake connector: order " + e.ClientID + " rejected" }

// NotRestingError indicates CancelBatch was asked to cancel an order that
// is not currently resting.
type NotRestingError struct{ ClientID string }

func (e *NotRestingError) Error() string { return "fake connector: order " + e.ClientID + " not resting" }
