// Package storage is the Order Store: the single bbolt-backed source of
// truth for order state, queried by the Tick Orchestrator each tick and
// updated by the Command Bus's place/cancel results and the fill stream.
package storage

import (
	"time"

	"github.com/fenwick-quant/soakctl/pkg/types"
)

// Store is the persistence contract for orders. Terminal orders
// (Filled/Cancelled/Rejected) are retained until Prune evicts those whose
// UpdatedAt is older than the retention duration it is given, so the
// on-disk store need not grow unbounded across a long soak run.
type Store interface {
	// OpenOrders returns every non-terminal order for symbol.
	OpenOrders(symbol string) ([]types.Order, error)

	// RecordPlaced upserts order, which must be in a non-terminal state.
	RecordPlaced(order types.Order) error

	// RecordCancelRequested marks clientID's order cancelled. It is not an
	// error to cancel an id that does not exist or is already terminal —
	// that is reported to the caller via CancelResult, not via Store.
	RecordCancelRequested(clientID string) error

	// ApplyFill transitions clientID to Filled and sets UpdatedAt to the
	// fill's timestamp; the order's size and price are left as placed.
	// Unknown client ids are ignored: a fill
	// for an order this process never placed (e.g. after a restart) is not
	// an invariant violation.
	ApplyFill(clientID string, fill types.FillEvent) error

	// ApplyRejection transitions clientID to Rejected.
	ApplyRejection(clientID string, cause error) error

	// Get returns a single order by client id.
	Get(clientID string) (types.Order, bool, error)

	// Prune evicts terminal orders whose UpdatedAt is older than retention.
	Prune(retention time.Duration) (evicted int, err error)

	// Close releases the underlying database handle.
	Close() error
}
