package storage

import (
	"sync"
	"time"

	"github.com/fenwick-quant/soakctl/pkg/types"
)

// MemStore is an in-process Store implementation used by unit and
// integration tests that don't need bbolt's durability guarantees.
type MemStore struct {
	mu     sync.RWMutex
	orders map[string]types.Order
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{orders: make(map[string]types.Order)}
}

// OpenOrders returns every non-terminal order for symbol.
func (m *MemStore) OpenOrders(symbol string) ([]types.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var open []types.Order
	for _, o := range m.orders {
		if o.Symbol == symbol && !o.State.IsTerminal() {
			open = append(open, o)
		}
	}
	return open, nil
}

// RecordPlaced upserts order.
func (m *MemStore) RecordPlaced(order types.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ClientID] = order
	return nil
}

// RecordCancelRequested marks clientID's order cancelled if the transition
// is legal.
func (m *MemStore) RecordCancelRequested(clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[clientID]
	if !ok || !types.CanTransition(order.State, types.OrderStateCancelled) {
		return nil
	}
	order.State = types.OrderStateCancelled
	order.UpdatedAt = time.Now()
	m.orders[clientID] = order
	return nil
}

// ApplyFill transitions clientID to Filled.
func (m *MemStore) ApplyFill(clientID string, fill types.FillEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[clientID]
	if !ok || !types.CanTransition(order.State, types.OrderStateFilled) {
		return nil
	}
	order.State = types.OrderStateFilled
	order.UpdatedAt = fill.Timestamp
	m.orders[clientID] = order
	return nil
}

// ApplyRejection transitions clientID to Rejected.
func (m *MemStore) ApplyRejection(clientID string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[clientID]
	if !ok || !types.CanTransition(order.State, types.OrderStateRejected) {
		return nil
	}
	order.State = types.OrderStateRejected
	order.UpdatedAt = time.Now()
	m.orders[clientID] = order
	return nil
}

// Get returns a single order by client id.
func (m *MemStore) Get(clientID string) (types.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[clientID]
	return order, ok, nil
}

// Prune evicts terminal orders whose UpdatedAt is older than retention.
func (m *MemStore) Prune(retention time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-retention)
	evicted := 0
	for id, o := range m.orders {
		if o.State.IsTerminal() && o.UpdatedAt.Before(cutoff) {
			delete(m.orders, id)
			evicted++
		}
	}
	return evicted, nil
}

// Close is a no-op for MemStore.
func (m *MemStore) Close() error { return nil }
