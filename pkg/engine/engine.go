package engine

import (
	"context"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenwick-quant/soakctl/pkg/artifacts"
	"github.com/fenwick-quant/soakctl/pkg/commandbus"
	"github.com/fenwick-quant/soakctl/pkg/connector"
	"github.com/fenwick-quant/soakctl/pkg/events"
	"github.com/fenwick-quant/soakctl/pkg/kpigate"
	"github.com/fenwick-quant/soakctl/pkg/log"
	"github.com/fenwick-quant/soakctl/pkg/metrics"
	"github.com/fenwick-quant/soakctl/pkg/position"
	"github.com/fenwick-quant/soakctl/pkg/reconciler"
	"github.com/fenwick-quant/soakctl/pkg/risk"
	"github.com/fenwick-quant/soakctl/pkg/scheduler"
	"github.com/fenwick-quant/soakctl/pkg/storage"
	"github.com/fenwick-quant/soakctl/pkg/tuning"
	"github.com/fenwick-quant/soakctl/pkg/types"
	"github.com/fenwick-quant/soakctl/pkg/watcher"
)

// Engine is the Iteration Engine: the wiring point for every soakctl
// subsystem, and the sole owner of the per-iteration loop.
type Engine struct {
	cfg    Config
	logger zerolog.Logger

	conn connector.Connector
	store *observingStore

	fillBroker *events.FillBroker
	bookBroker *events.OrderBookBroker

	positions   *position.Tracker
	riskMonitor *risk.Monitor
	bus         *commandbus.Bus
	sched       *scheduler.Orchestrator
	strategy    *riskAwareStrategy
	guards      *reconciler.Coordinator
	pipeline    *tuning.Pipeline
	watcher     *watcher.Watcher
	artifacts   *artifacts.Store
	kpiGate     *kpigate.Gate
	kpiFeed     *kpiFeed

	state    *types.TuningState
	traceRNG *rand.Rand
}

// New constructs an Engine from cfg. It validates cfg, narrows
// types.ParamBounds per cfg.ParamBoundOverrides, opens the artifact tree and
// order store, and wires every subsystem together. It does not start any
// background work; call Run for that.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for key, bound := range cfg.ParamBoundOverrides {
		types.ParamBounds[key] = bound
	}

	cfg.ReconcilerConfig.FreezeHysteresisIterations = cfg.Freeze.HysteresisIterations
	cfg.WatcherConfig.TakerCapMaxTakerShare = cfg.TakerCap.MaxTakerSharePct

	conn := cfg.Connector
	if conn == nil {
		conn = connector.NewFakeDeterministic(
			connector.WithSeed(cfg.FakeSeed),
			connector.WithFillProbability(cfg.FakeFillProbability),
			connector.WithRejectProbability(effectiveRejectProbability(cfg)),
		)
	}
	metrics.RegisterComponent("connector", true, "")

	var baseStore storage.Store
	if cfg.Store != nil {
		baseStore = cfg.Store
	} else {
		bolt, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		baseStore = bolt
	}
	store := newObservingStore(baseStore)

	artifactStore, err := artifacts.New(cfg.ArtifactsDir)
	if err != nil {
		return nil, err
	}
	metrics.RegisterComponent("artifacts", true, "")

	fillBroker := events.NewFillBroker()
	bookBroker := events.NewOrderBookBroker()

	positions := position.New(fillBroker)
	riskMonitor := risk.New(cfg.RiskLimits, positions)

	bus := commandbus.New(conn, commandbus.Config{
		Enabled:            cfg.AsyncBatch.Enabled,
		RateLimitPerSecond: cfg.AsyncBatch.RateLimitPerSecond,
		RateLimitBurst:     cfg.AsyncBatch.RateLimitBurst,
	})

	state := types.NewTuningState()

	inner := cfg.Strategy
	if inner == nil {
		inner = scheduler.NewNaiveStrategy()
	}
	strategy := newRiskAwareStrategy(inner, riskMonitor, func() types.RuntimeOverrides { return state.Overrides })

	schedulerCfg := scheduler.Config{
		WorkerPoolSize: cfg.AsyncBatch.MaxParallelSymbols,
		TickDeadline:   cfg.AsyncBatch.TickDeadline,
		MDCacheEnabled: cfg.MDCache.Enabled,
		MDCacheTTL:     cfg.MDCache.TTL,
	}
	sched := scheduler.New(cfg.Symbols, conn, bus, store, strategy, schedulerCfg)
	metrics.RegisterComponent("orchestrator", true, "")

	seed := cfg.FakeSeed
	if seed == 0 {
		seed = 1
	}

	return &Engine{
		cfg:    cfg,
		logger: log.WithComponent("engine"),

		conn:  conn,
		store: store,

		fillBroker: fillBroker,
		bookBroker: bookBroker,

		positions:   positions,
		riskMonitor: riskMonitor,
		bus:         bus,
		sched:       sched,
		strategy:    strategy,
		guards:      reconciler.New(cfg.ReconcilerConfig),
		pipeline:    tuning.New(cfg.ArtifactsDir, cfg.TuningConfig),
		watcher:     watcher.New(cfg.WatcherConfig),
		artifacts:   artifactStore,
		kpiGate:     kpigate.New(cfg.KPIGateConfig),
		kpiFeed:     newKPIFeed(),

		state:    state,
		traceRNG: rand.New(rand.NewSource(seed)),
	}, nil
}

// effectiveRejectProbability folds the reject_spike chaos scenario into the
// fake connector's base reject probability. It has no effect when a live
// connector is injected: fault injection against a real exchange happens at
// the transport, not here.
func effectiveRejectProbability(cfg Config) float64 {
	p := cfg.FakeRejectProbability
	if !cfg.Chaos.Enabled {
		return p
	}
	if intensity, ok := cfg.Chaos.ScenarioIntensity[ChaosScenarioRejectSpike]; ok && intensity > 0 {
		p = p + intensity*(1-p)
	}
	return p
}

// Run drives the full soak: cfg.IterationCount iterations, each a tick loop
// for cfg.IterationDuration followed by watcher -> guards -> tuning ->
// artifact-store, then the configured between-iteration pause. A cancelled
// ctx lets the in-flight iteration flush its partial window before Run
// returns; it never discards an iteration's summary mid-write.
func (e *Engine) Run(ctx context.Context) error {
	defer e.store.Close()

	streamCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	go e.pumpFills(streamCtx)
	go e.pumpOrderBook(streamCtx)

	e.positions.Start()
	defer e.positions.Stop()

	var summaries []types.IterationSummary

	for iteration := 1; iteration <= e.cfg.IterationCount; iteration++ {
		if ctx.Err() != nil {
			e.logger.Warn().Msg("run cancelled before next iteration started")
			break
		}

		summary := e.runOneIteration(ctx, iteration)
		summaries = append(summaries, summary)

		if err := e.artifacts.WriteIterationSummary(summary); err != nil {
			e.logger.Error().Err(err).Int("iteration", iteration).Msg("failed to write iteration summary")
			e.artifacts.AppendFailure(iteration, err.Error())
		}
		if err := e.artifacts.AppendTuningReport(summary); err != nil {
			e.logger.Error().Err(err).Int("iteration", iteration).Msg("failed to append tuning report")
			e.artifacts.AppendFailure(iteration, err.Error())
		}

		if ctx.Err() != nil {
			break
		}
		if e.cfg.BetweenIterationPause > 0 {
			select {
			case <-time.After(e.cfg.BetweenIterationPause):
			case <-ctx.Done():
			}
		}
	}

	snapshot := e.kpiGate.Evaluate(summaries, nowUTC())
	if err := e.artifacts.WriteSnapshot(snapshot); err != nil {
		e.logger.Error().Err(err).Msg("failed to write post-soak snapshot")
	}
	return nil
}

// runOneIteration runs one iteration's tick loop and the
// watcher/guards/tuning chain that follows it.
func (e *Engine) runOneIteration(ctx context.Context, iteration int) types.IterationSummary {
	iterLogger := log.WithIteration(iteration)
	e.kpiFeed.resetIteration()

	window := e.runTicks(ctx, iteration, iterLogger)

	result := e.watcher.Evaluate(window, e.state.Overrides)
	decision := e.guards.Evaluate(iteration, result.Proposal, e.state, result.Drivers, result.Verdict)

	verdict := result.Verdict
	if containsTag(decision.Tags, types.SkipWarmupSoftened) && verdict == types.VerdictFail {
		verdict = types.VerdictWarn
	}
	if containsTag(decision.Tags, types.SkipMultiFailSuppress) {
		e.riskMonitor.Freeze("multi_fail")
	}

	record, err := e.pipeline.Apply(iteration, e.state, decision)
	if err != nil {
		iterLogger.Error().Err(err).Msg("delta pipeline apply failed")
		e.artifacts.AppendFailure(iteration, err.Error())
	}

	e.riskMonitor.OnEdgeUpdate(strings.Join(e.cfg.Symbols, ","), result.Summary.NetBps)

	if e.cfg.Trace.Enabled && e.traceRNG.Float64() < e.cfg.Trace.SampleRate {
		frozen, reason, symbol := e.riskMonitor.Status()
		iterLogger.Debug().
			Int("ticks", len(window.Ticks)).
			Int("fills", len(window.Fills)).
			Bool("risk_frozen", frozen).
			Str("freeze_reason", reason).
			Str("freeze_symbol", symbol).
			Msg("iteration trace")
	}

	return types.IterationSummary{
		Iteration:        iteration,
		RuntimeUTC:       nowUTC(),
		NetBps:           result.Summary.NetBps,
		KPIVerdict:       verdict,
		NegEdgeDrivers:   result.Drivers,
		ProposedDeltas:   result.Proposal.Deltas,
		Tuning:           record,
		MakerTakerSource: result.MakerTakerSource,
		TakerCapBreach:   result.TakerCapBreach,
		Summary:          result.Summary,
		FreezeReady:      decision.FreezeOn,
	}
}

// runTicks runs ticks on e.cfg.TickInterval until the iteration's wall-clock
// budget elapses or ctx is cancelled, folding each tick's latency and KPI
// telemetry into the returned IterationWindow.
func (e *Engine) runTicks(ctx context.Context, iteration int, iterLogger zerolog.Logger) watcher.IterationWindow {
	deadline := time.Now().Add(e.cfg.IterationDuration)
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	var ticks []watcher.TickSample

	for {
		if time.Until(deadline) <= 0 {
			break
		}
		select {
		case <-ctx.Done():
			iterLogger.Warn().Int("iteration", iteration).Msg("context cancelled mid-iteration, flushing partial window")
			return e.buildWindow(ticks)
		case <-ticker.C:
			e.applyChaosLatency(iterLogger)

			start := time.Now()
			e.sched.RunTick(ctx)
			latency := time.Since(start)

			e.cancelAllIfFrozen(ctx)

			sample := e.kpiFeed.tickSample(latency, e.cfg.Symbols)
			sample.OrderAgeMs = e.averageOpenOrderAgeMs()
			ticks = append(ticks, sample)
		}
	}
	return e.buildWindow(ticks)
}

// buildWindow assembles one iteration's watcher.IterationWindow from the
// tick samples plus the counters and fills accumulated since the previous
// call.
func (e *Engine) buildWindow(ticks []watcher.TickSample) watcher.IterationWindow {
	attempted, riskBlocked, intervalBlocked := e.strategy.drain()
	cancelCount := e.store.drainCancelCount()
	fills := e.kpiFeed.drainFills()
	gross, fees, inventory := e.computeAggregateKPIs(fills)

	return watcher.IterationWindow{
		Ticks:                 ticks,
		Fills:                 fills,
		OrdersAttempted:       attempted,
		OrdersRiskBlocked:     riskBlocked,
		OrdersIntervalBlocked: intervalBlocked,
		CancelCount:           cancelCount,
		GrossBps:              gross,
		FeesEffBps:            fees,
		InventoryBps:          inventory,
	}
}

// computeAggregateKPIs derives the iteration's gross edge, effective fees
// and inventory exposure from the fills observed and the live position
// snapshot. gross_bps is the maker-only mean of costBps (favorable sign);
// fees_eff_bps is forced negative per spec; inventory_bps normalizes signed
// notional exposure against cfg.ReferenceNotional.
func (e *Engine) computeAggregateKPIs(fills []types.FillEvent) (gross, fees, inventory float64) {
	if makerCost, n := e.kpiFeed.makerMeanCostBps(true); n > 0 {
		gross = -makerCost
	}

	if len(fills) > 0 {
		var feeSum float64
		for _, f := range fills {
			bps, _ := f.FeeBps.Float64()
			feeSum += bps
		}
		fees = -(feeSum / float64(len(fills)))
	}

	var notional float64
	for _, symbol := range e.cfg.Symbols {
		pos := e.positions.Snapshot(symbol)
		mid, ok := e.kpiFeed.midFor(symbol)
		if !ok {
			continue
		}
		n, _ := pos.BaseAmount.Mul(mid).Float64()
		notional += n
	}
	if ref, _ := e.cfg.ReferenceNotional.Float64(); ref != 0 {
		inventory = notional / ref * 10000
	}
	return
}

// averageOpenOrderAgeMs is the mean age, in milliseconds, of every
// currently-open order across every traded symbol.
func (e *Engine) averageOpenOrderAgeMs() float64 {
	now := time.Now()
	var sum float64
	var n int
	for _, symbol := range e.cfg.Symbols {
		open, err := e.store.OpenOrders(symbol)
		if err != nil {
			continue
		}
		for _, o := range open {
			sum += float64(now.Sub(o.CreatedAt).Milliseconds())
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// cancelAllIfFrozen dispatches a cancel for every open order on every
// symbol once the risk monitor has entered a freeze, so resting orders
// placed before the freeze armed don't keep working.
func (e *Engine) cancelAllIfFrozen(ctx context.Context) {
	for _, symbol := range e.cfg.Symbols {
		open, err := e.store.OpenOrders(symbol)
		if err != nil || len(open) == 0 {
			continue
		}
		ids := e.riskMonitor.CancelAllIfFrozen(open)
		if len(ids) == 0 {
			continue
		}

		cancels := make([]types.CancelIntent, len(ids))
		for i, id := range ids {
			cancels[i] = types.CancelIntent{ClientID: id, Symbol: symbol}
		}
		if _, _, err := e.bus.Dispatch(ctx, symbol, cancels, nil); err != nil {
			e.logger.Error().Err(err).Str("symbol", symbol).Msg("freeze cancel-all dispatch failed")
			continue
		}
		for _, id := range ids {
			if err := e.store.RecordCancelRequested(id); err != nil {
				e.logger.Error().Err(err).Msg("failed to record freeze cancel")
			}
		}
	}
}

// applyChaosLatency sleeps (or logs what it would sleep, in dry-run mode)
// before a tick when the latency_spike chaos scenario is configured.
func (e *Engine) applyChaosLatency(logger zerolog.Logger) {
	if !e.cfg.Chaos.Enabled {
		return
	}
	intensity, ok := e.cfg.Chaos.ScenarioIntensity[ChaosScenarioLatencySpike]
	if !ok || intensity <= 0 {
		return
	}
	delay := time.Duration(intensity * float64(50*time.Millisecond))
	if e.cfg.Chaos.DryRun {
		logger.Debug().Dur("would_sleep", delay).Msg("chaos latency_spike dry-run")
		return
	}
	time.Sleep(delay)
}

// pumpFills subscribes to the connector's fill stream for the lifetime of
// streamCtx, publishing every fill to the broker (PositionTracker's
// subscription applies it) and feeding the risk monitor and kpiFeed.
func (e *Engine) pumpFills(streamCtx context.Context) {
	fillCh, err := e.conn.StreamFills(streamCtx)
	if err != nil {
		e.logger.Error().Err(err).Msg("stream_fills failed to start")
		return
	}
	for fill := range fillCh {
		e.fillBroker.Publish(fill)
		e.kpiFeed.onFill(fill)
		e.riskMonitor.OnFill(fill)
		if err := e.store.ApplyFill(fill.ClientID, fill); err != nil {
			e.logger.Error().Err(err).Str("client_id", fill.ClientID).Msg("failed to apply fill to order store")
		}
	}
}

// pumpOrderBook subscribes to the connector's order book stream across
// every traded symbol for the lifetime of streamCtx, publishing snapshots
// to the broker and feeding kpiFeed's mid-price tracking. This is
// independent of the scheduler's own per-symbol, per-tick snapshot fetches:
// those drive quoting decisions, this drives KPI telemetry.
func (e *Engine) pumpOrderBook(streamCtx context.Context) {
	snapCh, err := e.conn.StreamOrderBook(streamCtx, e.cfg.Symbols)
	if err != nil {
		e.logger.Error().Err(err).Msg("stream_orderbook failed to start")
		return
	}
	for snap := range snapCh {
		e.bookBroker.Publish(snap)
		e.kpiFeed.onSnapshot(snap)
	}
}

// nowUTC returns MM_FREEZE_UTC_ISO when set and parseable, else the wall
// clock, matching the connector's own frozen-clock convention so artifacts
// produced against the fake connector stay byte-comparable across runs.
func nowUTC() string {
	if iso := os.Getenv("MM_FREEZE_UTC_ISO"); iso != "" {
		if _, err := time.Parse(time.RFC3339, iso); err == nil {
			return iso
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func containsTag(tags []types.SkipReason, target types.SkipReason) bool {
	for _, t := range tags {
		if t == target {
			return true
		}
	}
	return false
}
