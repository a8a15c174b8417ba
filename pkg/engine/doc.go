// Package engine is the Iteration Engine: the top-level driver that wires
// the connector, command bus, tick orchestrator, order store, watcher,
// guards coordinator, delta pipeline, risk monitor and artifact store
// together for one soak run. For i := 1..N it runs one iteration (a tick
// loop for the iteration's wall-clock budget, then watcher -> guards ->
// tuning -> artifact store), sleeps the configured between-iteration pause,
// and repeats. The iteration loop is the single writer at the
// artifact-write boundary: every tick within an iteration already
// synchronizes on the tick orchestrator's WaitGroup before control returns
// here, so no iteration's summary or TuningState mutation can interleave
// with another's.
package engine
