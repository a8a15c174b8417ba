package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fenwick-quant/soakctl/pkg/commandbus"
	"github.com/fenwick-quant/soakctl/pkg/connector"
	"github.com/fenwick-quant/soakctl/pkg/errs"
	"github.com/fenwick-quant/soakctl/pkg/kpigate"
	"github.com/fenwick-quant/soakctl/pkg/reconciler"
	"github.com/fenwick-quant/soakctl/pkg/risk"
	"github.com/fenwick-quant/soakctl/pkg/scheduler"
	"github.com/fenwick-quant/soakctl/pkg/storage"
	"github.com/fenwick-quant/soakctl/pkg/tuning"
	"github.com/fenwick-quant/soakctl/pkg/types"
	"github.com/fenwick-quant/soakctl/pkg/watcher"
)

// AsyncBatchConfig surfaces the Command Bus's and Tick Orchestrator's
// concurrency knobs as one named block.
type AsyncBatchConfig struct {
	Enabled            bool
	MaxParallelSymbols int
	TickDeadline       time.Duration
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// ChaosScenarioRejectSpike raises the fake connector's place-reject
// probability for the whole run. ChaosScenarioLatencySpike sleeps before
// each tick. Both are only meaningful against a FakeDeterministic
// connector; chaos has no effect when Config.Connector is set (a live run
// injects faults at the transport, not here).
const (
	ChaosScenarioRejectSpike  = "reject_spike"
	ChaosScenarioLatencySpike = "latency_spike"
)

// ChaosConfig names, per scenario, an intensity in [0, 1]. DryRun logs what
// a scenario would have done instead of actually doing it.
type ChaosConfig struct {
	Enabled           bool
	DryRun            bool
	ScenarioIntensity map[string]float64
}

// MDCacheConfig passes through to scheduler.Config's market-data cache
// supplement.
type MDCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// TakerCapConfig passes through to watcher.Config's supplemented taker-cap
// ceiling.
type TakerCapConfig struct {
	MaxTakerSharePct float64
}

// TraceConfig turns on a per-iteration detailed debug log line, sampled at
// SampleRate (fraction of iterations traced).
type TraceConfig struct {
	Enabled    bool
	SampleRate float64
}

// FreezeConfig passes through to reconciler.Config's freeze re-arming
// hysteresis knob.
type FreezeConfig struct {
	HysteresisIterations int
}

// Config is the Iteration Engine's complete configuration surface: run
// shape, every subsystem's tunables, and the config-surface groups
// (AsyncBatch, Chaos, MDCache, TakerCap, Trace, Freeze) a operator-facing
// CLI maps flags onto.
type Config struct {
	Symbols               []string
	IterationCount        int
	IterationDuration     time.Duration
	TickInterval          time.Duration
	BetweenIterationPause time.Duration
	ArtifactsDir          string
	DataDir               string

	AsyncBatch AsyncBatchConfig
	Chaos      ChaosConfig
	MDCache    MDCacheConfig
	TakerCap   TakerCapConfig
	Trace      TraceConfig
	Freeze     FreezeConfig

	// ParamBoundOverrides narrows (never widens) a whitelisted parameter's
	// bound at startup. A widening override is rejected as a Fatal error.
	ParamBoundOverrides map[string]types.ParamBound

	RiskLimits       risk.Limits
	ReconcilerConfig reconciler.Config
	TuningConfig     tuning.Config
	WatcherConfig    watcher.Config
	KPIGateConfig    kpigate.Config

	// Strategy overrides the reference NaiveStrategy. Nil uses the default.
	Strategy scheduler.Strategy

	// Connector overrides the engine's own FakeDeterministic construction,
	// e.g. to inject a connector.Live for `soakctl run --live`. Nil builds a
	// FakeDeterministic from the Fake* fields below.
	Connector             connector.Connector
	FakeSeed              int64
	FakeFillProbability   float64
	FakeRejectProbability float64

	// Store overrides the engine's own BoltStore construction, e.g. to
	// inject a storage.MemStore for tests. Nil opens a BoltStore under
	// DataDir.
	Store storage.Store

	// ReferenceNotional normalizes inventory_bps: notional / ReferenceNotional
	// * 10000. Zero disables the inventory term (reports 0).
	ReferenceNotional decimal.Decimal
}

// DefaultConfig returns a ready-to-run Config for symbols: every subsystem
// at its package default, async batching and the market-data cache on,
// chaos off, trace off. Callers copy and override.
func DefaultConfig(symbols []string) Config {
	return Config{
		Symbols:               symbols,
		IterationCount:        10,
		IterationDuration:     5 * time.Minute,
		TickInterval:          200 * time.Millisecond,
		BetweenIterationPause: 0,
		ArtifactsDir:          "./soak-artifacts",
		DataDir:               "./soak-data",

		AsyncBatch: AsyncBatchConfig{
			Enabled:            commandbus.DefaultConfig.Enabled,
			MaxParallelSymbols: scheduler.DefaultConfig.WorkerPoolSize,
			TickDeadline:       scheduler.DefaultConfig.TickDeadline,
			RateLimitPerSecond: commandbus.DefaultConfig.RateLimitPerSecond,
			RateLimitBurst:     commandbus.DefaultConfig.RateLimitBurst,
		},
		Chaos: ChaosConfig{},
		MDCache: MDCacheConfig{
			Enabled: scheduler.DefaultConfig.MDCacheEnabled,
			TTL:     scheduler.DefaultConfig.MDCacheTTL,
		},
		TakerCap: TakerCapConfig{MaxTakerSharePct: watcher.DefaultConfig().TakerCapMaxTakerShare},
		Trace:    TraceConfig{},
		Freeze:   FreezeConfig{},

		RiskLimits:       risk.Limits{},
		ReconcilerConfig: reconciler.DefaultConfig(),
		TuningConfig:     tuning.DefaultConfig(),
		WatcherConfig:    watcher.DefaultConfig(),
		KPIGateConfig:    kpigate.DefaultConfig(),

		FakeSeed:              1,
		FakeFillProbability:   0.35,
		FakeRejectProbability: 0.02,
		ReferenceNotional:     decimal.NewFromInt(100000),
	}
}

// Validate rejects a Config that cannot safely start a run. Every failure
// is an errs.Fatal: a bad config should abort before any iteration, not
// surface as a mid-run invariant violation.
func (c Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errs.Fatal("at least one symbol is required", nil)
	}
	if c.IterationCount <= 0 {
		return errs.Fatal("iteration_count must be positive", nil)
	}
	if c.IterationDuration <= 0 {
		return errs.Fatal("iteration_duration must be positive", nil)
	}
	if c.TickInterval <= 0 {
		return errs.Fatal("tick_interval must be positive", nil)
	}
	if c.ArtifactsDir == "" {
		return errs.Fatal("artifacts_dir is required", nil)
	}
	if c.DataDir == "" && c.Store == nil {
		return errs.Fatal("data_dir is required unless a Store is injected", nil)
	}
	if c.AsyncBatch.MaxParallelSymbols < 0 {
		return errs.Fatal("async_batch.max_parallel_symbols must be >= 0", nil)
	}

	if c.Chaos.Enabled && len(c.Chaos.ScenarioIntensity) == 0 {
		return errs.Fatal("chaos.enabled is true but no scenarios are configured", nil)
	}
	for scenario, intensity := range c.Chaos.ScenarioIntensity {
		if scenario != ChaosScenarioRejectSpike && scenario != ChaosScenarioLatencySpike {
			return errs.Fatal("unknown chaos scenario "+scenario, nil)
		}
		if intensity < 0 || intensity > 1 {
			return errs.Fatal("chaos scenario "+scenario+" intensity must be in [0, 1]", nil)
		}
	}

	for key, bound := range c.ParamBoundOverrides {
		base, ok := types.ParamBounds[key]
		if !ok {
			return errs.Fatal("param_bound_overrides names unknown key "+key, nil)
		}
		if bound.Lo < base.Lo || bound.Hi > base.Hi || bound.Lo > bound.Hi {
			return errs.Fatal("param_bound_overrides for "+key+" must narrow the declared bound", nil)
		}
	}

	return nil
}
