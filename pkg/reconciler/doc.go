/*
Package reconciler is the Guards Coordinator. It sits between the Watcher
(which proposes deltas from KPI drivers) and the Delta Pipeline (which
applies them), narrowing or clearing a Proposal through six guards
evaluated in a fixed order every iteration:

	1. Warm-up / Ramp-down — early iterations soften FAIL to WARN
	2. Cooldown            — params touched recently are held
	3. Velocity            — per-param trailing |Δ| is capped
	4. Oscillation         — an A→B→A sign pattern freezes the param
	5. Freeze              — N consecutive clean passes arm it,
	                          an iteration that is not a clean pass
	                          disarms it (with hysteresis set, that
	                          many such iterations in a row)
	6. Multi-fail          — ≥3 distinct driver tags blanks the proposal

Each guard that narrows the proposal appends a SkipReason tag; the
Coordinator returns a GuardDecision carrying the survivor deltas, the
accumulated tags, and whether the freeze is active.
*/
package reconciler
