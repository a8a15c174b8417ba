package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenwick-quant/soakctl/pkg/commandbus"
	"github.com/fenwick-quant/soakctl/pkg/connector"
	"github.com/fenwick-quant/soakctl/pkg/errs"
	"github.com/fenwick-quant/soakctl/pkg/log"
	"github.com/fenwick-quant/soakctl/pkg/metrics"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

// Strategy decides the desired resting quotes for one symbol given the
// latest order book snapshot, the current position and the open orders
// already resting. It is the one pluggable decision point the orchestrator
// does not own; soakctl ships a naive reference strategy for soak testing.
type Strategy interface {
	DesiredQuotes(symbol string, snapshot types.OrderBookSnapshot, position types.Position, open []types.Order) []types.PlaceIntent
}

// OrderStore is the subset of the Order Store the orchestrator needs: the
// open orders for a symbol, and a way to record newly placed or cancelled
// orders. Implemented by pkg/storage.
type OrderStore interface {
	OpenOrders(symbol string) ([]types.Order, error)
	RecordPlaced(order types.Order) error
	RecordCancelRequested(clientID string) error
}

// Config controls the orchestrator's per-tick scheduling model: worker
// pool sizing, the per-tick deadline, and the market-data cache.
type Config struct {
	// WorkerPoolSize bounds concurrent per-symbol workers. Zero means
	// min(len(symbols), 10).
	WorkerPoolSize int
	// TickDeadline is the per-tick wall-clock budget; workers exceeding it
	// are cancelled cooperatively and counted as a deadline miss.
	TickDeadline time.Duration
	// MDCacheEnabled and MDCacheTTL implement the market-data cache
	// supplement: any worker fetch reuses the last snapshot for its symbol
	// if it is still within TTL rather than forcing a refetch.
	MDCacheEnabled bool
	MDCacheTTL     time.Duration
}

// DefaultConfig returns the production tick-orchestration defaults.
var DefaultConfig = Config{
	WorkerPoolSize: 10,
	TickDeadline:   200 * time.Millisecond,
	MDCacheEnabled: true,
	MDCacheTTL:     500 * time.Millisecond,
}

// cachedSnapshot is one entry in the market-data cache.
type cachedSnapshot struct {
	snapshot  types.OrderBookSnapshot
	fetchedAt time.Time
}

// Orchestrator drives one iteration's worth of ticks: per tick, it fans out
// one worker per symbol (bounded pool), asks the Strategy for desired
// quotes, diffs against open orders, and dispatches the resulting
// cancel/place intents through the Command Bus.
type Orchestrator struct {
	symbols  []string
	conn     connector.Connector
	bus      *commandbus.Bus
	store    OrderStore
	strategy Strategy
	cfg      Config
	logger   zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedSnapshot
}

// New constructs an Orchestrator for the given symbols.
func New(symbols []string, conn connector.Connector, bus *commandbus.Bus, store OrderStore, strategy Strategy, cfg Config) *Orchestrator {
	if cfg.WorkerPoolSize == 0 {
		cfg.WorkerPoolSize = len(symbols)
		if cfg.WorkerPoolSize > 10 {
			cfg.WorkerPoolSize = 10
		}
	}
	return &Orchestrator{
		symbols:  symbols,
		conn:     conn,
		bus:      bus,
		store:    store,
		strategy: strategy,
		cfg:      cfg,
		logger:   log.WithComponent("scheduler"),
		cache:    make(map[string]cachedSnapshot),
	}
}

// TickResult summarizes the outcome of one RunTick call.
type TickResult struct {
	DeadlineMisses []string
	Errors         map[string]error
}

// RunTick runs one tick: a bounded pool of workers, one per symbol,
// fetch-quote-diff-dispatch end to end, governed by a single per-tick
// deadline. Within one symbol, cancels are dispatched before places;
// across symbols there is no ordering guarantee.
func (o *Orchestrator) RunTick(ctx context.Context) TickResult {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TickTotal)

	tickCtx, cancel := context.WithTimeout(ctx, o.cfg.TickDeadline)
	defer cancel()

	sem := make(chan struct{}, o.cfg.WorkerPoolSize)
	var wg sync.WaitGroup
	var mu sync.Mutex
	result := TickResult{Errors: make(map[string]error)}

	for _, symbol := range o.symbols {
		symbol := symbol
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := o.runSymbol(tickCtx, symbol); err != nil {
				mu.Lock()
				defer mu.Unlock()
				if tickCtx.Err() != nil {
					result.DeadlineMisses = append(result.DeadlineMisses, symbol)
					metrics.TickDeadlineMissTotal.Inc()
				} else {
					result.Errors[symbol] = err
				}
			}
		}()
	}
	wg.Wait()
	return result
}

// runSymbol handles one symbol end-to-end for the current tick: fetch
// (subject to the market-data cache), ask the strategy, diff against open
// orders, coalesce and dispatch.
func (o *Orchestrator) runSymbol(ctx context.Context, symbol string) error {
	snapshot, err := o.fetchSnapshot(ctx, symbol)
	if err != nil {
		return err
	}

	open, err := o.store.OpenOrders(symbol)
	if err != nil {
		return errs.InvariantViolation("open orders lookup", err)
	}

	desired := o.strategy.DesiredQuotes(symbol, snapshot, types.Position{Symbol: symbol}, open)

	cancels, places := diffAgainstOpen(open, desired)

	guardsTimer := metrics.NewTimer()
	guardsTimer.ObserveDuration(metrics.GuardsDuration)

	emitTimer := metrics.NewTimer()
	placeResults, _, err := o.bus.Dispatch(ctx, symbol, cancels, places)
	emitTimer.ObserveDuration(metrics.EmitDuration)
	if err != nil {
		return err
	}

	for _, pr := range placeResults {
		if pr.Err != nil {
			continue
		}
		for _, p := range places {
			if p.ClientID == pr.ClientID {
				order := types.Order{
					ClientID:   pr.ClientID,
					ExchangeID: pr.ExchangeID,
					Symbol:     p.Symbol,
					Side:       p.Side,
					Price:      p.Price,
					Size:       p.Size,
					State:      types.OrderStateOpen,
					CreatedAt:  time.Now(),
					UpdatedAt:  time.Now(),
				}
				if err := o.store.RecordPlaced(order); err != nil {
					o.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to record placed order")
				}
			}
		}
	}
	for _, c := range cancels {
		if err := o.store.RecordCancelRequested(c.ClientID); err != nil {
			o.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to record cancel request")
		}
	}

	return nil
}

// fetchSnapshot returns a fresh order book snapshot, or a cached one if the
// market-data cache is enabled and the cached entry is within TTL.
func (o *Orchestrator) fetchSnapshot(ctx context.Context, symbol string) (types.OrderBookSnapshot, error) {
	if o.cfg.MDCacheEnabled {
		o.mu.Lock()
		entry, ok := o.cache[symbol]
		o.mu.Unlock()
		if ok && time.Since(entry.fetchedAt) < o.cfg.MDCacheTTL {
			return entry.snapshot, nil
		}
	}

	fetchTimer := metrics.NewTimer()
	snapshots, err := o.conn.StreamOrderBook(ctx, []string{symbol})
	if err != nil {
		return types.OrderBookSnapshot{}, errs.TransientIO("stream_orderbook", err)
	}

	select {
	case snap, ok := <-snapshots:
		fetchTimer.ObserveDuration(metrics.FetchMD)
		if !ok {
			return types.OrderBookSnapshot{}, errs.TransientIO("stream_orderbook closed before a snapshot arrived", nil)
		}
		if o.cfg.MDCacheEnabled {
			o.mu.Lock()
			o.cache[symbol] = cachedSnapshot{snapshot: snap, fetchedAt: time.Now()}
			o.mu.Unlock()
		}
		return snap, nil
	case <-ctx.Done():
		return types.OrderBookSnapshot{}, errs.DeadlineExceeded("stream_orderbook", ctx.Err())
	}
}

// diffAgainstOpen turns desired quotes and currently open orders into
// intents: every non-terminal open order is cancelled, whatever its side,
// and every desired quote is placed. Quotes are replaced fresh each tick
// rather than amended in place.
func diffAgainstOpen(open []types.Order, desired []types.PlaceIntent) ([]types.CancelIntent, []types.PlaceIntent) {
	var cancels []types.CancelIntent
	for _, o := range open {
		if o.State.IsTerminal() {
			continue
		}
		cancels = append(cancels, types.CancelIntent{ClientID: o.ClientID, Symbol: o.Symbol})
	}
	return cancels, desired
}
