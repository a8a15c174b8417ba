// Package risk implements the Runtime Risk Monitor: the pre-trade gate
// that blocks orders breaching per-symbol inventory or total notional
// limits, and the freeze mechanism that halts trading on edge
// degradation.
package risk

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fenwick-quant/soakctl/pkg/log"
	"github.com/fenwick-quant/soakctl/pkg/metrics"
	"github.com/fenwick-quant/soakctl/pkg/position"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

// BlockReason names why check_before_order refused an order.
type BlockReason string

const (
	BlockFrozen       BlockReason = "frozen"
	BlockInventoryCap BlockReason = "inventory_cap"
	BlockNotionalCap  BlockReason = "notional_cap"
)

// Limits carries the Monitor's three thresholds.
type Limits struct {
	MaxInventory           map[string]decimal.Decimal // symbol -> absolute base cap
	MaxNotionalTotal       decimal.Decimal
	EdgeFreezeThresholdBps float64
}

// Monitor is the pre-trade gate. It reads position state read-only from a
// position.Tracker and never mutates it, per the "avoid back-references
// from Order to Position" design note.
type Monitor struct {
	mu        sync.Mutex
	limits    Limits
	positions *position.Tracker
	logger    zerolog.Logger

	totalNotional decimal.Decimal
	frozen        bool
	freezeReason  string
	freezeSymbol  string
}

// New constructs a Monitor bound to positions for inventory lookups.
func New(limits Limits, positions *position.Tracker) *Monitor {
	return &Monitor{
		limits:    limits,
		positions: positions,
		logger:    log.WithComponent("risk"),
	}
}

// CheckBeforeOrder evaluates a prospective order before it reaches the
// Command Bus. A frozen Monitor blocks everything; otherwise an order
// that would widen an already-at-cap position, or push total notional
// over the cap, is blocked.
func (m *Monitor) CheckBeforeOrder(symbol string, side types.Side, notional decimal.Decimal) (bool, BlockReason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		metrics.RiskBlocksTotal.Inc()
		return false, BlockFrozen
	}

	if cap, ok := m.limits.MaxInventory[symbol]; ok {
		pos := m.positions.Snapshot(symbol)
		current := pos.BaseAmount
		widening := (side == types.SideBuy && current.GreaterThanOrEqual(decimal.Zero)) ||
			(side == types.SideSell && current.LessThanOrEqual(decimal.Zero))
		if widening && current.Abs().GreaterThanOrEqual(cap) {
			metrics.RiskBlocksTotal.Inc()
			return false, BlockInventoryCap
		}
	}

	if !m.limits.MaxNotionalTotal.IsZero() {
		if m.totalNotional.Add(notional).GreaterThan(m.limits.MaxNotionalTotal) {
			metrics.RiskBlocksTotal.Inc()
			return false, BlockNotionalCap
		}
	}

	return true, ""
}

// OnFill updates the Monitor's running total notional. Per-symbol
// inventory is read live from the PositionTracker, not duplicated here.
func (m *Monitor) OnFill(fill types.FillEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalNotional = m.totalNotional.Add(fill.Price.Mul(fill.Size))
}

// OnEdgeUpdate arms the freeze when symbol's observed edge drops below the
// configured threshold. Freeze entry is one-way: release requires an
// explicit Unfreeze call, since an edge reading recovering for one tick
// is not sufficient evidence trading is safe to resume.
func (m *Monitor) OnEdgeUpdate(symbol string, edgeBps float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if edgeBps >= m.limits.EdgeFreezeThresholdBps {
		return
	}
	if !m.frozen {
		metrics.RiskFreezesTotal.Inc()
		m.logger.Warn().Str("symbol", symbol).Float64("edge_bps", edgeBps).Msg("risk freeze armed")
	}
	m.frozen = true
	m.freezeReason = "edge_degradation"
	m.freezeSymbol = symbol
}

// Freeze arms the freeze state for an externally requested reason (e.g.
// the multi-fail guard or an operator override).
func (m *Monitor) Freeze(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.frozen {
		metrics.RiskFreezesTotal.Inc()
	}
	m.frozen = true
	m.freezeReason = reason
	m.freezeSymbol = ""
}

// Unfreeze releases the freeze state, allowing CheckBeforeOrder to pass
// again.
func (m *Monitor) Unfreeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = false
}

// CancelAllIfFrozen returns the client ids of every order in openOrders
// when the Monitor is frozen, or nil otherwise. It does not itself issue
// cancels; the caller dispatches them through the Command Bus.
func (m *Monitor) CancelAllIfFrozen(openOrders []types.Order) []string {
	m.mu.Lock()
	frozen := m.frozen
	m.mu.Unlock()
	if !frozen {
		return nil
	}
	ids := make([]string, len(openOrders))
	for i, o := range openOrders {
		ids[i] = o.ClientID
	}
	return ids
}

// Status reports the Monitor's current freeze state and last freeze
// reason/symbol for the iteration summary.
func (m *Monitor) Status() (frozen bool, reason, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frozen, m.freezeReason, m.freezeSymbol
}
