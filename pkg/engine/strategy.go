package engine

import (
	"sync"
	"time"

	"github.com/fenwick-quant/soakctl/pkg/risk"
	"github.com/fenwick-quant/soakctl/pkg/scheduler"
	"github.com/fenwick-quant/soakctl/pkg/storage"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

// riskAwareStrategy wraps a scheduler.Strategy so every quote it proposes
// passes the Runtime Risk Monitor's pre-trade check before the scheduler
// ever dispatches it. It also enforces min_interval_ms per symbol+side, the
// one whitelisted tuning parameter with no other enforcement point in the
// pipeline. Wrapping the Strategy interface (rather than touching
// scheduler.Orchestrator) keeps the risk gate at the one pluggable
// extension point the orchestrator already exposes.
type riskAwareStrategy struct {
	inner   scheduler.Strategy
	monitor *risk.Monitor
	overrides func() types.RuntimeOverrides

	mu           sync.Mutex
	lastPlacedAt map[string]time.Time

	attempted       int
	riskBlocked     int
	intervalBlocked int
}

func newRiskAwareStrategy(inner scheduler.Strategy, monitor *risk.Monitor, overrides func() types.RuntimeOverrides) *riskAwareStrategy {
	return &riskAwareStrategy{
		inner:        inner,
		monitor:      monitor,
		overrides:    overrides,
		lastPlacedAt: make(map[string]time.Time),
	}
}

// DesiredQuotes delegates to inner, then filters each candidate quote
// through the risk monitor's pre-trade check and a per-symbol+side
// min_interval_ms guard.
func (s *riskAwareStrategy) DesiredQuotes(symbol string, snapshot types.OrderBookSnapshot, position types.Position, open []types.Order) []types.PlaceIntent {
	candidates := s.inner.DesiredQuotes(symbol, snapshot, position, open)
	minIntervalMs := s.overrides()["min_interval_ms"]

	s.mu.Lock()
	defer s.mu.Unlock()

	var allowed []types.PlaceIntent
	now := time.Now()
	for _, c := range candidates {
		s.attempted++

		key := symbol + "|" + string(c.Side)
		if minIntervalMs > 0 {
			if last, ok := s.lastPlacedAt[key]; ok && now.Sub(last) < time.Duration(minIntervalMs)*time.Millisecond {
				s.intervalBlocked++
				continue
			}
		}

		notional := c.Price.Mul(c.Size)
		if ok, _ := s.monitor.CheckBeforeOrder(symbol, c.Side, notional); !ok {
			s.riskBlocked++
			continue
		}

		s.lastPlacedAt[key] = now
		allowed = append(allowed, c)
	}
	return allowed
}

// drain returns the attempted/risk-blocked/interval-blocked counters
// accumulated since the last call and resets them for the next iteration.
func (s *riskAwareStrategy) drain() (attempted, riskBlocked, intervalBlocked int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempted, riskBlocked, intervalBlocked = s.attempted, s.riskBlocked, s.intervalBlocked
	s.attempted, s.riskBlocked, s.intervalBlocked = 0, 0, 0
	return
}

// observingStore wraps a storage.Store to count cancel requests for the
// iteration window's cancel_ratio input, without requiring pkg/storage
// itself to know about per-iteration accounting.
type observingStore struct {
	storage.Store

	mu          sync.Mutex
	cancelCount int
}

func newObservingStore(inner storage.Store) *observingStore {
	return &observingStore{Store: inner}
}

func (s *observingStore) RecordCancelRequested(clientID string) error {
	s.mu.Lock()
	s.cancelCount++
	s.mu.Unlock()
	return s.Store.RecordCancelRequested(clientID)
}

func (s *observingStore) drainCancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.cancelCount
	s.cancelCount = 0
	return n
}
