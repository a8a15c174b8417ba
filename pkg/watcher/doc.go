/*
Package watcher is the Iteration Watcher. Evaluate turns one iteration's
IterationWindow (tick samples plus the fill stream) into a KPISummary, a
PASS/WARN/FAIL verdict, the ordered set of negative-edge drivers that
fired, and a Proposal of bounded parameter deltas.

Driver detection follows a fixed tie-break priority: risk, slippage,
adverse, order age, ws lag, then min_interval_blocks. Age-Relief is the
one exception to "driver fired -> counts against the verdict": an order
age driver that fires while adverse and slippage are both still within
bounds is excluded from the returned driver list and only contributes its
own relief deltas.

adverse_bps is recorded on every KPISummary for driver detection but is
never subtracted from net_bps: it measures adverse selection, not a direct
cost line, and net_bps already nets gross, fees, slippage and inventory.
*/
package watcher
