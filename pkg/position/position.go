// Package position implements the PositionTracker: the single subscriber
// of the fill-event stream and sole owner of per-symbol position state, so
// that no other subsystem holds a back-reference from an Order to a
// Position — they query a read-only snapshot instead.
package position

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fenwick-quant/soakctl/pkg/events"
	"github.com/fenwick-quant/soakctl/pkg/log"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

// Tracker owns every symbol's Position, mutated only as fills arrive on
// its subscribed channel.
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]types.Position

	broker *events.FillBroker
	sub    events.FillSubscriber
	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Tracker subscribed to broker. Call Start to begin
// consuming fills and Stop to unsubscribe and drain.
func New(broker *events.FillBroker) *Tracker {
	return &Tracker{
		positions: make(map[string]types.Position),
		broker:    broker,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start subscribes to the fill stream and begins applying fills in a
// background goroutine.
func (t *Tracker) Start() {
	t.sub = t.broker.Subscribe()
	go t.run()
}

// Stop unsubscribes from the fill stream and waits for the consumer
// goroutine to drain.
func (t *Tracker) Stop() {
	close(t.stopCh)
	t.broker.Unsubscribe(t.sub)
	<-t.doneCh
}

func (t *Tracker) run() {
	defer close(t.doneCh)
	for {
		select {
		case fill, ok := <-t.sub:
			if !ok {
				return
			}
			t.apply(fill)
		case <-t.stopCh:
			// drain any fills already queued before this Tracker stops
			// owning them, so a fill immediately preceding shutdown is
			// never silently lost.
			for {
				select {
				case fill, ok := <-t.sub:
					if !ok {
						return
					}
					t.apply(fill)
				default:
					return
				}
			}
		}
	}
}

func (t *Tracker) apply(fill types.FillEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos := t.positions[fill.Symbol]
	pos.Symbol = fill.Symbol
	notional := fill.Price.Mul(fill.Size)
	signedSize := fill.Size
	if fill.Side == types.SideSell {
		signedSize = signedSize.Neg()
	}
	pos.BaseAmount = pos.BaseAmount.Add(signedSize)
	pos.CumulativeNotion = pos.CumulativeNotion.Add(notional)
	pos.UpdatedAt = fill.Timestamp
	t.positions[fill.Symbol] = pos

	log.WithComponent("position").Debug().
		Str("symbol", fill.Symbol).
		Str("base_amount", pos.BaseAmount.String()).
		Msg("position updated")
}

// Snapshot returns a read-only copy of symbol's current position. A
// symbol with no fills yet reports a zero-valued Position.
func (t *Tracker) Snapshot(symbol string) types.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pos, ok := t.positions[symbol]
	if !ok {
		return types.Position{Symbol: symbol, BaseAmount: decimal.Zero, CumulativeNotion: decimal.Zero}
	}
	return pos
}

// All returns a read-only copy of every tracked position.
func (t *Tracker) All() map[string]types.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]types.Position, len(t.positions))
	for k, v := range t.positions {
		out[k] = v
	}
	return out
}
