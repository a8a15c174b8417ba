/*
Package types defines the core data structures shared across soakctl.

This package contains the domain model consumed by every other package:
orders, positions, order book snapshots, fill events, iteration summaries,
tuning state and the runtime-overrides map. These types carry no behavior
beyond small invariant helpers (state-transition checks, bound clamping);
orchestration lives in pkg/scheduler, pkg/watcher, pkg/reconciler and
pkg/tuning.

# Core Types

Market data and orders:
  - Order: client-identified order with a monotone state machine
  - OrderState: pending -> open -> {filled, cancelled, rejected}
  - Position: signed per-symbol base amount and cumulative notional
  - OrderBookSnapshot: best bid/ask/last-trade plus optional depth
  - FillEvent: one fill, maker/taker tagged

Tuning:
  - Proposal: per-iteration delta candidate with rationale tags
  - GuardDecision: the Guards Coordinator's verdict on a Proposal
  - TuningState: process-global state persisted between iterations
  - RuntimeOverrides: the parameter -> value map written to disk
  - ParamBounds: the whitelist + closed-interval bound per parameter

Artifacts:
  - IterationSummary: the immutable per-iteration record
  - TuningRecord: the `tuning` sub-object embedded in a summary
  - KPISummary: the aggregated-KPI sub-object

# State Machine

Orders follow a strictly monotone state machine:

	pending -> open -> filled
	        \        \
	         cancelled rejected/cancelled

Terminal states (filled, cancelled, rejected) are absorbing: CanTransition
rejects any transition out of them.

# Thread Safety

Types in this package carry no synchronization of their own. Callers
(pkg/storage for Order persistence, pkg/tuning for TuningState) own the
locking; a types.Proposal's Clone method exists specifically so guards can
mutate a working copy without aliasing the Watcher's original.
*/
package types
