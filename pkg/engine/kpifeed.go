package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fenwick-quant/soakctl/pkg/types"
	"github.com/fenwick-quant/soakctl/pkg/watcher"
)

// costBps returns the signed execution cost, in bps of mid, of filling at
// fill.Price against a reference mid: positive means the fill crossed
// against the maker (paid more than mid on a buy, received less than mid on
// a sell); negative means favorable execution. It is the one cost signal
// kpiFeed derives every per-fill KPI from: slippage and adverse selection
// are the same underlying number viewed from opposite signs, and gross
// edge is its maker-only mean, since nothing in this harness observes an
// independent post-trade price path.
func costBps(fill types.FillEvent, mid decimal.Decimal) float64 {
	if mid.IsZero() {
		return 0
	}
	sideSign := decimal.NewFromInt(1)
	if fill.Side == types.SideSell {
		sideSign = decimal.NewFromInt(-1)
	}
	cost := sideSign.Mul(fill.Price.Sub(mid))
	bps, _ := cost.Div(mid).Mul(decimal.NewFromInt(10000)).Float64()
	return bps
}

type resolvedFill struct {
	fill    types.FillEvent
	costBps float64
	hasMid  bool
}

// kpiFeed approximates the per-tick telemetry the Iteration Watcher needs
// (latency, ws lag, slippage, adverse selection) from the connector's order
// book and fill streams, since soakctl's fake and live connectors expose no
// independent KPI oracle of their own.
type kpiFeed struct {
	mu             sync.Mutex
	mids           map[string]decimal.Decimal
	midAt          map[string]time.Time
	fills          []types.FillEvent
	resolved       []resolvedFill
	tickFillOffset int
}

func newKPIFeed() *kpiFeed {
	return &kpiFeed{
		mids:  make(map[string]decimal.Decimal),
		midAt: make(map[string]time.Time),
	}
}

func (f *kpiFeed) onSnapshot(snap types.OrderBookSnapshot) {
	mid := snap.BestBid.Add(snap.BestAsk).Div(decimal.NewFromInt(2))
	f.mu.Lock()
	f.mids[snap.Symbol] = mid
	f.midAt[snap.Symbol] = snap.Timestamp
	f.mu.Unlock()
}

func (f *kpiFeed) onFill(fill types.FillEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mid, ok := f.mids[fill.Symbol]
	rf := resolvedFill{fill: fill, hasMid: ok}
	if ok {
		rf.costBps = costBps(fill, mid)
	}
	f.fills = append(f.fills, fill)
	f.resolved = append(f.resolved, rf)
}

func (f *kpiFeed) midFor(symbol string) (decimal.Decimal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mid, ok := f.mids[symbol]
	return mid, ok
}

// resetIteration clears the fill/resolved history an iteration has fully
// consumed. Mid prices and their timestamps are left in place: ws lag is
// measured against the most recent snapshot regardless of iteration
// boundary.
func (f *kpiFeed) resetIteration() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fills = nil
	f.resolved = nil
	f.tickFillOffset = 0
}

// drainFills returns every fill recorded so far this iteration.
func (f *kpiFeed) drainFills() []types.FillEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.FillEvent{}, f.fills...)
}

// tickSample folds the elapsed tick latency and whichever fills resolved
// since the previous call into one watcher.TickSample. OrderAgeMs is left
// zero; the engine fills it in separately from the Order Store, which
// kpiFeed has no access to.
func (f *kpiFeed) tickSample(latency time.Duration, symbols []string) watcher.TickSample {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	var lagSum float64
	var lagCount int
	for _, s := range symbols {
		if at, ok := f.midAt[s]; ok {
			lagSum += float64(now.Sub(at).Milliseconds())
			lagCount++
		}
	}
	var wsLag float64
	if lagCount > 0 {
		wsLag = lagSum / float64(lagCount)
	}

	newlyResolved := f.resolved[f.tickFillOffset:]
	f.tickFillOffset = len(f.resolved)

	var slipSum, advSum float64
	var n int
	for _, rf := range newlyResolved {
		if !rf.hasMid {
			continue
		}
		slipSum += -rf.costBps
		advSum += rf.costBps
		n++
	}
	var slip, adv float64
	if n > 0 {
		slip = slipSum / float64(n)
		adv = advSum / float64(n)
	}

	return watcher.TickSample{
		LatencyMs:   float64(latency.Milliseconds()),
		WSLagMs:     wsLag,
		AdverseBps:  adv,
		SlippageBps: slip,
	}
}

// makerMeanCostBps returns the mean costBps across recorded fills (or just
// maker fills when onlyMaker is true) and how many contributed, so the
// caller can distinguish "no fills" from "zero cost".
func (f *kpiFeed) makerMeanCostBps(onlyMaker bool) (float64, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum float64
	var n int
	for _, rf := range f.resolved {
		if !rf.hasMid {
			continue
		}
		if onlyMaker && !rf.fill.IsMaker {
			continue
		}
		sum += rf.costBps
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
