// Package types holds the plain data model shared across soakctl's
// subsystems: orders, positions, order book snapshots and the
// per-iteration/tuning records that flow from the orchestrator through the
// watcher, guards and delta pipeline into the artifact store.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderState is the lifecycle state of an Order. Transitions are monotone;
// Filled, Cancelled and Rejected are absorbing.
type OrderState string

const (
	OrderStatePending   OrderState = "pending"
	OrderStateOpen      OrderState = "open"
	OrderStateFilled    OrderState = "filled"
	OrderStateCancelled OrderState = "cancelled"
	OrderStateRejected  OrderState = "rejected"
)

// terminalOrderStates is the set of OrderState values from which no further
// transition is permitted.
var terminalOrderStates = map[OrderState]bool{
	OrderStateFilled:    true,
	OrderStateCancelled: true,
	OrderStateRejected:  true,
}

// IsTerminal reports whether s is an absorbing state.
func (s OrderState) IsTerminal() bool {
	return terminalOrderStates[s]
}

// validOrderTransitions enumerates the monotone state graph.
var validOrderTransitions = map[OrderState]map[OrderState]bool{
	OrderStatePending: {OrderStateOpen: true, OrderStateRejected: true, OrderStateCancelled: true},
	OrderStateOpen:    {OrderStateFilled: true, OrderStateCancelled: true, OrderStateRejected: true},
}

// CanTransition reports whether moving from `from` to `to` is a legal,
// monotone order-state transition.
func CanTransition(from, to OrderState) bool {
	if from.IsTerminal() {
		return false
	}
	return validOrderTransitions[from][to]
}

// Order is a single resting or terminal order known to the engine. ClientID
// is the monotonic identity assigned at creation time; ExchangeID is filled
// in once the connector acknowledges placement.
type Order struct {
	ClientID   string
	ExchangeID string
	Symbol     string
	Side       Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	State      OrderState
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Position is the per-symbol signed base amount and cumulative notional
// mutated only by fill events or explicit reconciliation.
type Position struct {
	Symbol           string
	BaseAmount       decimal.Decimal // signed: positive = long
	CumulativeNotion decimal.Decimal
	UpdatedAt        time.Time
}

// OrderBookSnapshot is a read-only view of one symbol's market state,
// produced by the connector each tick.
type OrderBookSnapshot struct {
	Symbol    string
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	LastTrade decimal.Decimal
	Depth     []DepthLevel
	Timestamp time.Time
}

// DepthLevel is one level of an optional order book depth snapshot.
type DepthLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
	Side  Side
}

// FillEvent is emitted by the connector's fill stream when an order (or
// part of one) executes.
type FillEvent struct {
	ClientID  string
	Symbol    string
	Side      Side
	Price     decimal.Decimal
	Size      decimal.Decimal
	FeeBps    decimal.Decimal // always recorded positive; callers negate for net_bps
	IsMaker   bool
	Timestamp time.Time
}

// PlaceResult is one element of a place_batch response: either an
// exchange id, or an error that moves the corresponding order to Rejected.
type PlaceResult struct {
	ClientID   string
	ExchangeID string
	Err        error
}

// CancelResult is one element of a cancel_batch response.
type CancelResult struct {
	ClientID string
	Err      error
}

// KPIVerdict is the per-iteration pass/warn/fail classification.
type KPIVerdict string

const (
	VerdictPass KPIVerdict = "PASS"
	VerdictWarn KPIVerdict = "WARN"
	VerdictFail KPIVerdict = "FAIL"
)

// MakerTakerSource records which of the four priority sources produced
// maker_taker_ratio for a given iteration.
type MakerTakerSource string

const (
	MakerTakerFillsVolume MakerTakerSource = "fills_volume"
	MakerTakerFillsCount  MakerTakerSource = "fills_count"
	MakerTakerRollup      MakerTakerSource = "rollup"
	MakerTakerMock        MakerTakerSource = "mock"
)

// DriverTag names a reason a KPI moved negative.
type DriverTag string

const (
	DriverAdverseBps       DriverTag = "adverse_bps"
	DriverSlippageBps      DriverTag = "slippage_bps"
	DriverOrderAge         DriverTag = "order_age"
	DriverWSLag            DriverTag = "ws_lag"
	DriverRiskBlocks       DriverTag = "risk_blocks"
	DriverMinIntervalBlock DriverTag = "min_interval_blocks"
)

// SkipReason is a member of the closed skip-reason taxonomy the Delta
// Application Pipeline and Guards Coordinator record alongside a proposal.
type SkipReason string

const (
	SkipNoEffectiveChange  SkipReason = "no_effective_change"
	SkipVelocityExceeded   SkipReason = "velocity_cap_exceeded"
	SkipCooldownActive     SkipReason = "cooldown_active"
	SkipOscillation        SkipReason = "oscillation_detected"
	SkipFreezeTriggered    SkipReason = "freeze_triggered"
	SkipWarmupSoftened     SkipReason = "warmup_softened"
	SkipMultiFailSuppress  SkipReason = "multi_fail_suppress"
	SkipWriteFailed        SkipReason = "write_failed"
)

// GuardOutcome is the result the Guards Coordinator attaches to a proposal.
type GuardOutcome string

const (
	GuardApply   GuardOutcome = "apply"
	GuardPartial GuardOutcome = "partial"
	GuardSkip    GuardOutcome = "skip"
)

// Proposal is a per-iteration delta candidate produced by the Watcher. It
// is ephemeral: only its merged/applied form survives into artifacts.
type Proposal struct {
	Deltas    map[string]float64
	Rationale []DriverTag
}

// Clone returns a deep copy so guards may mutate their working copy without
// aliasing the Watcher's original.
func (p Proposal) Clone() Proposal {
	d := make(map[string]float64, len(p.Deltas))
	for k, v := range p.Deltas {
		d[k] = v
	}
	r := make([]DriverTag, len(p.Rationale))
	copy(r, p.Rationale)
	return Proposal{Deltas: d, Rationale: r}
}

// GuardDecision is the Guards Coordinator's verdict on a Proposal.
type GuardDecision struct {
	Outcome   GuardOutcome
	Tags      []SkipReason
	Proposal  Proposal
	FreezeOn  bool
}

// SignaturePair records the before/after state hash around a delta apply.
type SignaturePair struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// TuningRecord is the `tuning` sub-object embedded in an IterationSummary
// and appended (in full) to TUNING_REPORT.json.
type TuningRecord struct {
	Applied     bool              `json:"applied"`
	SkipReason  []SkipReason      `json:"skip_reason"`
	ChangedKeys []string          `json:"changed_keys"`
	Signature   SignaturePair     `json:"signature"`
	Deltas      map[string]float64 `json:"deltas"`
	Rationale   []DriverTag       `json:"rationale"`
}

// KPISummary is the aggregated-KPI sub-object of an IterationSummary.
type KPISummary struct {
	NetBps          float64 `json:"net_bps"`
	GrossBps        float64 `json:"gross_bps"`
	FeesEffBps      float64 `json:"fees_eff_bps"`
	SlippageBps     float64 `json:"slippage_bps"`
	InventoryBps    float64 `json:"inventory_bps"`
	AdverseBps      float64 `json:"adverse_bps"`
	MakerTakerRatio float64 `json:"maker_taker_ratio"`
	P95LatencyMs    float64 `json:"p95_latency_ms"`
	OrderAgeP95Ms   float64 `json:"order_age_p95_ms"`
	WSLagP95Ms      float64 `json:"ws_lag_p95_ms"`
	AdverseBpsP95   float64 `json:"adverse_bps_p95"`
	SlippageBpsP95  float64 `json:"slippage_bps_p95"`
	RiskRatio       float64 `json:"risk_ratio"`
	CancelRatio     float64 `json:"cancel_ratio"`
}

// IterationSummary is the immutable record of a single iteration, written
// exactly once to ITER_SUMMARY_<N>.json.
type IterationSummary struct {
	Iteration        int                `json:"iteration"`
	RuntimeUTC       string             `json:"runtime_utc"`
	NetBps           float64            `json:"net_bps"`
	KPIVerdict       KPIVerdict         `json:"kpi_verdict"`
	NegEdgeDrivers   []DriverTag        `json:"neg_edge_drivers"`
	ProposedDeltas   map[string]float64 `json:"proposed_deltas"`
	Tuning           TuningRecord       `json:"tuning"`
	MakerTakerSource MakerTakerSource   `json:"maker_taker_source"`
	TakerCapBreach   bool               `json:"taker_cap_breach"`
	Summary          KPISummary         `json:"summary"`
	FreezeReady      bool               `json:"freeze_ready"`
}

// KPIAggregate is the mean/median/min/max rollup of one KPI across the
// last-N iteration summaries the KPI Gate consumes.
type KPIAggregate struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// PostSoakSnapshot is the KPI Gate's once-per-run output, consumed by the
// Readiness Gate CLI.
type PostSoakSnapshot struct {
	IterationsConsidered int                     `json:"iterations_considered"`
	Aggregates           map[string]KPIAggregate `json:"aggregates"`
	Verdict              KPIVerdict              `json:"verdict"`
	Overridden           bool                    `json:"overridden"`
	GeneratedUTC         string                  `json:"generated_utc"`
}

// RuntimeOverrides is the parameter-name -> numeric-value map persisted to
// runtime_overrides.json. Every key must appear in ParamBounds.
type RuntimeOverrides map[string]float64

// Clone returns a copy safe for independent mutation.
func (r RuntimeOverrides) Clone() RuntimeOverrides {
	out := make(RuntimeOverrides, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ParamBound declares the closed interval a whitelisted parameter must lie
// in after clamping.
type ParamBound struct {
	Lo, Hi float64
}

// ParamBounds is the authoritative whitelist + bounds table: the union of
// every tunable parameter's closed interval, used by the Delta Pipeline to
// clamp and to reject unknown keys. Bounds only ever narrow across
// releases; widening one is a deployment error, not a runtime override.
var ParamBounds = map[string]ParamBound{
	"min_interval_ms":         {Lo: 50, Hi: 90},
	"base_spread_bps_delta":   {Lo: 0, Hi: 0.20},
	"impact_cap_ratio":        {Lo: 0.08, Hi: 1.0},
	"tail_age_ms":             {Lo: 0, Hi: 680},
	"max_delta_ratio":         {Lo: 0, Hi: 1.0},
	"replace_rate_per_min":    {Lo: 0, Hi: 330},
}

// IsWhitelisted reports whether key is a known, tunable parameter.
func IsWhitelisted(key string) bool {
	_, ok := ParamBounds[key]
	return ok
}

// Clamp restricts v to key's declared bound. It is a no-op (returns v
// unchanged) for unknown keys; callers must check IsWhitelisted separately
// to reject those.
func Clamp(key string, v float64) float64 {
	b, ok := ParamBounds[key]
	if !ok {
		return v
	}
	if v < b.Lo {
		return b.Lo
	}
	if v > b.Hi {
		return b.Hi
	}
	return v
}

// TuningState is the process-global state persisted between iterations:
// current overrides, last-applied signature, rolling delta history (for
// oscillation detection), per-parameter cooldown counters, per-parameter
// velocity accounting, consecutive-pass counter (freeze arming) and freeze
// state.
type TuningState struct {
	Overrides            RuntimeOverrides
	LastSignature        string
	History              []AppliedDelta
	CooldownUntil        map[string]int // param -> iteration index after which changes are allowed again
	VelocityWindow       map[string][]VelocitySample
	ConsecutivePasses    int
	ConsecutiveFailures  int
	Frozen               bool
	OscillationFrozenTil map[string]int
}

// AppliedDelta is one entry in TuningState.History: the signed delta
// actually applied to a parameter in a given iteration.
type AppliedDelta struct {
	Iteration int
	Param     string
	Delta     float64
}

// VelocitySample is one |Δ| contribution to the trailing velocity window
// for a parameter.
type VelocitySample struct {
	Iteration int
	AbsDelta  float64
}

// NewTuningState returns a zero-valued, ready-to-use TuningState.
func NewTuningState() *TuningState {
	return &TuningState{
		Overrides:            RuntimeOverrides{},
		CooldownUntil:        map[string]int{},
		VelocityWindow:       map[string][]VelocitySample{},
		OscillationFrozenTil: map[string]int{},
	}
}

// CommandOp is the kind of intent collapsed by the Command Bus.
type CommandOp string

const (
	CommandOpPlace  CommandOp = "place"
	CommandOpCancel CommandOp = "cancel"
)

// PlaceIntent is a desired new order awaiting coalescing into a batch.
type PlaceIntent struct {
	ClientID string
	Symbol   string
	Side     Side
	Price    decimal.Decimal
	Size     decimal.Decimal
}

// CancelIntent is a desired cancellation awaiting coalescing into a batch.
type CancelIntent struct {
	ClientID string
	Symbol   string
}

// CommandBatch is the coalesced set of cancels/places for one symbol in one
// tick, already clamped to the connector's max batch size.
type CommandBatch struct {
	Symbol  string
	Cancels []CancelIntent
	Places  []PlaceIntent
}
