/*
Package scheduler is the Tick Orchestrator: it drives one soak iteration by
repeating ticks until the iteration's wall-clock budget elapses.

# Per-tick flow

	┌──────────────────────── RunTick ─────────────────────────┐
	│  bounded worker pool, one goroutine per symbol           │
	│  (default min(symbols, 10))                              │
	└────────────────────┬──────────────────────────────────────┘
	                     │  per symbol, end to end:
	                     ▼
	   fetch snapshot (md cache-aware) → ask Strategy for quotes
	   → diff against open orders → dispatch cancels then places
	   via the Command Bus

Workers exceeding the per-tick deadline (default 200ms) are cancelled
cooperatively and counted as a deadline miss rather than retried within the
same tick. Across symbols there is no ordering guarantee; within one
symbol, cancels are always dispatched before places.

# Market-data cache

When MDCacheEnabled, a worker that would otherwise force a fresh
StreamOrderBook call reuses the last snapshot if it is still within
MDCacheTTL — this absorbs a worker waking up slightly early without
punishing the exchange connector with redundant fetches.
*/
package scheduler
