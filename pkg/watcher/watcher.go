// Package watcher is the Iteration Watcher: it turns one iteration's raw
// tick samples and fills into a canonical KPISummary, detects the
// dominant negative-edge drivers, and emits a Proposal of bounded
// parameter deltas for the Guards Coordinator to narrow.
package watcher

import (
	"sort"

	"github.com/fenwick-quant/soakctl/pkg/types"
)

// TickSample is one tick's worth of per-order observations folded into
// the iteration window's percentile inputs.
type TickSample struct {
	LatencyMs   float64
	OrderAgeMs  float64
	WSLagMs     float64
	AdverseBps  float64
	SlippageBps float64
}

// IterationWindow is every raw observation the Watcher needs to compute
// one iteration's KPISummary.
type IterationWindow struct {
	Ticks              []TickSample
	Fills              []types.FillEvent
	OrdersAttempted    int
	OrdersRiskBlocked  int
	OrdersIntervalBlocked int
	CancelCount        int
	GrossBps           float64
	FeesEffBps         float64 // forced negative at ingest: fees always cost edge
	InventoryBps       float64
	MakerTakerRollup   *float64 // externally supplied weekly (1 - taker_share), nil if unavailable
}

// Config carries the Watcher's driver-detection thresholds and the
// taker-cap ceiling. Thresholds without an obvious canonical value are
// recorded as resolved in DESIGN.md.
type Config struct {
	RiskHighThreshold      float64
	RiskModerateThreshold  float64
	SlippageP95Threshold   float64
	AdverseP95Threshold    float64
	OrderAgeP95Threshold   float64
	WSLagP95Threshold      float64
	IntervalBlockThreshold float64
	AgeReliefAdverseMax    float64
	AgeReliefSlippageMax   float64
	MakerBiasRatioMax      float64
	MakerBiasRiskMax       float64
	MakerBiasNetBpsMin     float64
	TakerCapMaxTakerShare  float64
	MockMakerTakerRatio    float64
}

// DefaultConfig returns the production driver-detection thresholds,
// including the chosen ws_lag and min_interval_blocks cutoffs.
func DefaultConfig() Config {
	return Config{
		RiskHighThreshold:      0.60,
		RiskModerateThreshold:  0.40,
		SlippageP95Threshold:   2.5,
		AdverseP95Threshold:    4.0,
		OrderAgeP95Threshold:   330,
		WSLagP95Threshold:      250,
		IntervalBlockThreshold: 0.40,
		AgeReliefAdverseMax:    4.0,
		AgeReliefSlippageMax:   3.0,
		MakerBiasRatioMax:      0.85,
		MakerBiasRiskMax:       0.40,
		MakerBiasNetBpsMin:     2.7,
		TakerCapMaxTakerShare:  0.25,
		MockMakerTakerRatio:    0.80,
	}
}

// Result is everything one Evaluate call produces for an iteration.
type Result struct {
	Summary          types.KPISummary
	Verdict          types.KPIVerdict
	Drivers          []types.DriverTag
	Proposal         types.Proposal
	MakerTakerSource types.MakerTakerSource
	TakerCapBreach   bool
}

// Watcher computes KPIs and proposals from iteration windows.
type Watcher struct {
	cfg Config
}

// New constructs a Watcher with cfg.
func New(cfg Config) *Watcher {
	return &Watcher{cfg: cfg}
}

// Evaluate runs the full KPI -> driver -> proposal pipeline for one
// iteration window. current is the live RuntimeOverrides snapshot the
// proposal's absolute-set and scaling operations (tail_age_ms,
// replace_rate_per_min) resolve against; a nil/empty map uses each
// parameter's declared lower bound as the implicit baseline.
func (w *Watcher) Evaluate(window IterationWindow, current types.RuntimeOverrides) Result {
	summary, source := w.computeKPIs(window)
	takerCapBreach := (1 - summary.MakerTakerRatio) > w.cfg.TakerCapMaxTakerShare

	var intervalBlockRatio float64
	if window.OrdersAttempted > 0 {
		intervalBlockRatio = float64(window.OrdersIntervalBlocked) / float64(window.OrdersAttempted)
	}
	drivers, ageRelief, makerBias := w.detectDrivers(summary, intervalBlockRatio)
	proposal := w.buildProposal(summary, current, drivers, ageRelief, makerBias)
	verdict := w.classify(summary, drivers)

	return Result{
		Summary:          summary,
		Verdict:          verdict,
		Drivers:          drivers,
		Proposal:         proposal,
		MakerTakerSource: source,
		TakerCapBreach:   takerCapBreach,
	}
}

func (w *Watcher) computeKPIs(window IterationWindow) (types.KPISummary, types.MakerTakerSource) {
	var latencies, ages, lags, adverses, slippages []float64
	for _, t := range window.Ticks {
		latencies = append(latencies, t.LatencyMs)
		ages = append(ages, t.OrderAgeMs)
		lags = append(lags, t.WSLagMs)
		adverses = append(adverses, t.AdverseBps)
		slippages = append(slippages, t.SlippageBps)
	}

	slippageMean := mean(slippages)
	adverseMean := mean(adverses)

	netBps := window.GrossBps + window.FeesEffBps + slippageMean - absFloat(window.InventoryBps)

	ratio, source := makerTakerRatio(window, w.cfg.MockMakerTakerRatio)

	var riskRatio float64
	if window.OrdersAttempted > 0 {
		riskRatio = float64(window.OrdersRiskBlocked) / float64(window.OrdersAttempted)
	}

	var cancelRatio float64
	if denom := window.CancelCount + len(window.Fills); denom > 0 {
		cancelRatio = float64(window.CancelCount) / float64(denom)
	}

	summary := types.KPISummary{
		NetBps:          netBps,
		GrossBps:        window.GrossBps,
		FeesEffBps:      window.FeesEffBps,
		SlippageBps:     slippageMean,
		InventoryBps:    window.InventoryBps,
		AdverseBps:      adverseMean,
		MakerTakerRatio: ratio,
		P95LatencyMs:    percentile(latencies, 0.95),
		OrderAgeP95Ms:   percentile(ages, 0.95),
		WSLagP95Ms:      percentile(lags, 0.95),
		AdverseBpsP95:   percentile(adverses, 0.95),
		SlippageBpsP95:  percentile(slippages, 0.95),
		RiskRatio:       riskRatio,
		CancelRatio:     cancelRatio,
	}
	return summary, source
}

// makerTakerRatio applies the four-source priority: fill-volume maker
// share, then fill-count maker share, then the externally supplied weekly
// rollup, then a fixed mock constant.
func makerTakerRatio(window IterationWindow, mockConstant float64) (float64, types.MakerTakerSource) {
	if len(window.Fills) > 0 {
		var makerSize, totalSize float64
		for _, f := range window.Fills {
			size, _ := f.Size.Float64()
			totalSize += size
			if f.IsMaker {
				makerSize += size
			}
		}
		if totalSize > 0 {
			return makerSize / totalSize, types.MakerTakerFillsVolume
		}

		var makerCount int
		for _, f := range window.Fills {
			if f.IsMaker {
				makerCount++
			}
		}
		return float64(makerCount) / float64(len(window.Fills)), types.MakerTakerFillsCount
	}

	if window.MakerTakerRollup != nil {
		return *window.MakerTakerRollup, types.MakerTakerRollup
	}

	return mockConstant, types.MakerTakerMock
}

// detectDrivers applies the fixed priority order (risk, slippage,
// adverse, age, lag, min_interval_blocks) and reports whether the age
// driver qualifies for Age-Relief or the Maker-Bias rule applies. A
// qualifying Age-Relief occurrence is excluded from the returned driver
// list: it does not count as a failure or toward the multi-fail guard.
func (w *Watcher) detectDrivers(s types.KPISummary, intervalBlockRatio float64) (drivers []types.DriverTag, ageRelief, makerBias bool) {
	if s.RiskRatio >= w.cfg.RiskModerateThreshold {
		drivers = append(drivers, types.DriverRiskBlocks)
	}
	if s.SlippageBpsP95 > w.cfg.SlippageP95Threshold {
		drivers = append(drivers, types.DriverSlippageBps)
	}
	if s.AdverseBpsP95 > w.cfg.AdverseP95Threshold {
		drivers = append(drivers, types.DriverAdverseBps)
	}

	ageFires := s.OrderAgeP95Ms > w.cfg.OrderAgeP95Threshold
	ageRelief = ageFires && s.AdverseBpsP95 <= w.cfg.AgeReliefAdverseMax && s.SlippageBpsP95 <= w.cfg.AgeReliefSlippageMax
	if ageFires && !ageRelief {
		drivers = append(drivers, types.DriverOrderAge)
	}

	if s.WSLagP95Ms > w.cfg.WSLagP95Threshold {
		drivers = append(drivers, types.DriverWSLag)
	}
	if intervalBlockRatio >= w.cfg.IntervalBlockThreshold {
		drivers = append(drivers, types.DriverMinIntervalBlock)
	}

	makerBias = s.MakerTakerRatio < w.cfg.MakerBiasRatioMax &&
		s.RiskRatio <= w.cfg.MakerBiasRiskMax &&
		s.NetBps >= w.cfg.MakerBiasNetBpsMin

	return drivers, ageRelief, makerBias
}

// buildProposal turns active drivers into parameter deltas. The
// driver -> delta table mixes three kinds of operations (additive,
// absolute-set "tail_age_ms := max(tail, 680)", and scaling
// "replace_rate_per_min ×= 0.85"), so a working target map is built up
// from current and only converted to additive deltas once every rule has
// run; clamping to [lo, hi] happens at the Delta Pipeline, not here.
func (w *Watcher) buildProposal(s types.KPISummary, current types.RuntimeOverrides, drivers []types.DriverTag, ageRelief, makerBias bool) types.Proposal {
	baseline := func(key string) float64 {
		if v, ok := current[key]; ok {
			return v
		}
		return types.Clamp(key, 0)
	}

	target := map[string]float64{}
	ensure := func(key string) {
		if _, ok := target[key]; !ok {
			target[key] = baseline(key)
		}
	}
	add := func(key string, amount float64) {
		ensure(key)
		target[key] += amount
	}
	atLeast := func(key string, floor float64) {
		ensure(key)
		if target[key] < floor {
			target[key] = floor
		}
	}
	scale := func(key string, factor float64) {
		ensure(key)
		target[key] *= factor
	}

	rationale := append([]types.DriverTag{}, drivers...)

	for _, d := range drivers {
		switch d {
		case types.DriverRiskBlocks:
			if s.RiskRatio >= w.cfg.RiskHighThreshold {
				add("min_interval_ms", 5)
				add("base_spread_bps_delta", 0.02)
				add("impact_cap_ratio", -0.01)
				atLeast("tail_age_ms", 680)
			} else {
				add("min_interval_ms", 5)
				add("impact_cap_ratio", -0.01)
			}
		case types.DriverSlippageBps:
			add("base_spread_bps_delta", 0.02)
			add("tail_age_ms", 30)
		case types.DriverAdverseBps:
			add("impact_cap_ratio", -0.01)
			add("max_delta_ratio", -0.01)
		}
	}

	if ageRelief {
		add("min_interval_ms", -10)
		add("replace_rate_per_min", 30)
	}

	if makerBias {
		add("base_spread_bps_delta", 0.015)
		scale("replace_rate_per_min", 0.85)
		add("min_interval_ms", 25)
	}

	deltas := make(map[string]float64, len(target))
	for key, val := range target {
		deltas[key] = val - baseline(key)
	}

	return types.Proposal{Deltas: deltas, Rationale: rationale}
}

// classify assigns a PASS/WARN/FAIL verdict. Iterations with no active
// drivers pass outright; a hard-threshold driver (risk high, slippage,
// adverse) fails; any other active driver warns. Warm-up/Ramp-down
// softening of FAIL to WARN is the Guards Coordinator's responsibility,
// not the Watcher's.
func (w *Watcher) classify(s types.KPISummary, drivers []types.DriverTag) types.KPIVerdict {
	if len(drivers) == 0 {
		return types.VerdictPass
	}
	for _, d := range drivers {
		switch d {
		case types.DriverRiskBlocks:
			if s.RiskRatio >= w.cfg.RiskHighThreshold {
				return types.VerdictFail
			}
		case types.DriverSlippageBps, types.DriverAdverseBps:
			return types.VerdictFail
		}
	}
	return types.VerdictWarn
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile computes the nearest-rank p-th percentile (p in [0, 1]) of
// values.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	// nearest rank: the ceil(p*n)-th smallest value, 1-based
	rank := p * float64(len(sorted))
	idx := int(rank)
	if float64(idx) < rank {
		idx++
	}
	idx--
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
