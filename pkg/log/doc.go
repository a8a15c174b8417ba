/*
Package log provides structured logging for soakctl using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable levels, and helper
functions for the contexts this engine logs in most: component, iteration,
symbol and tick.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│  Global Logger (zerolog.Logger, set by log.Init)          │
	│       │                                                    │
	│       ▼                                                    │
	│  Config{Level, JSONOutput, Output}                         │
	│       │                                                    │
	│       ▼                                                    │
	│  Context loggers                                           │
	│    WithComponent("orchestrator"|"watcher"|"guards"|...)     │
	│    WithIteration(n)                                         │
	│    WithSymbol(sym)                                          │
	│    WithTick(n)                                              │
	└────────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	watcherLog := log.WithComponent("watcher")
	watcherLog.Info().Int("iteration", 12).Msg("proposal computed")

	symLog := log.WithComponent("orchestrator").With().Str("symbol", "BTC-USD").Logger()
	symLog.Warn().Msg("tick deadline missed")

# Design Patterns

Global logger pattern: one package-level Logger, initialized once via
Init, accessible from every package without threading a logger through
every constructor. Context logger pattern: child loggers via With* carry a
fixed field set so call sites never repeat Str("component", ...).

Never log an applied delta or proposed delta as a free-form string — use
.Interface("deltas", deltas) so the structured fields remain queryable by
parameter name.
*/
package log
