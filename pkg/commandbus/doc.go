// Package commandbus turns per-tick place/cancel intents into batched
// exchange calls: cancels collapse into one batch-cancel per symbol per
// tick (split into batches of 20 only when there are more than 20 ids),
// places collapse into ⌈count/20⌉ batch-places, and a
// golang.org/x/time/rate token bucket throttles dispatch. Disabling
// coalescing falls back to one-by-one legacy dispatch for rollback parity.
package commandbus
