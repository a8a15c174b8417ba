/*
Package metrics provides Prometheus metrics collection and exposition for
soakctl, plus the process-liveness endpoints served alongside them.

Metrics fall into four groups, all defined and registered in metrics.go:

	Tick stage histograms     soak_tick_total_seconds, soak_fetch_md_seconds,
	                          soak_guards_seconds, soak_emit_seconds
	Command Bus               soak_coalesced_commands_total{op},
	                          soak_exchange_request_latency_seconds{verb,endpoint},
	                          soak_tick_deadline_miss_total
	Guards / Delta Pipeline    soak_guard_trips_total{reason},
	                          soak_writes_failed_total, soak_deltas_applied_total
	Risk / Iteration           soak_risk_blocks_total, soak_risk_freezes_total,
	                          soak_iteration_net_bps, soak_iteration_duration_seconds

# HTTP endpoints

	/metrics    promhttp.Handler(), scraped by Prometheus
	/healthz    HealthHandler — aggregate subsystem health
	/startupz   StartupHandler — orchestrator/artifacts/connector init gate
	/livez      LivenessHandler — process is running, no subsystem dependency

# Timer

Timer wraps a start time and observes elapsed duration into a histogram or
histogram vec; every stage of the tick loop opens one with NewTimer() and
calls ObserveDuration/ObserveDurationVec when the stage completes.

# Test teardown

Reset() unregisters and re-registers every soak_* collector. Tests that
construct more than one Engine in the same process call it between runs to
avoid "duplicate metrics collector registration" panics; production code
never calls it.
*/
package metrics
