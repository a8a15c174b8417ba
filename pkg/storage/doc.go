/*
Package storage is the Order Store: the sole source of truth for order
state, backed by go.etcd.io/bbolt in production (BoltStore) and an
in-memory map in tests (MemStore). Both satisfy the same Store interface.

Orders move through a monotone state machine (types.CanTransition);
Store's mutation methods silently no-op on an illegal transition rather
than erroring, since a stale cancel racing a fill is an expected outcome
of concurrent tick processing, not a bug.

Prune evicts terminal orders (Filled/Cancelled/Rejected) whose UpdatedAt
predates a configurable retention window, keeping a long soak run's
on-disk footprint bounded.
*/
package storage
