// Package events provides lazy, infinite, resubscription-safe broadcast
// streams for the two event kinds that cross subsystem boundaries: fills
// (connector -> PositionTracker, Risk Monitor) and order book snapshots
// (published by the engine; no package in soakctl subscribes to them).
package events

import (
	"sync"

	"github.com/fenwick-quant/soakctl/pkg/types"
)

// FillSubscriber is a channel that receives fill events.
type FillSubscriber chan types.FillEvent

// FillBroker fans a single upstream fill stream out to many subscribers.
// A slow subscriber drops events rather than blocking the broker or the
// connector feeding it.
type FillBroker struct {
	mu          sync.RWMutex
	subscribers map[FillSubscriber]bool
}

// NewFillBroker constructs an empty broker.
func NewFillBroker() *FillBroker {
	return &FillBroker{subscribers: make(map[FillSubscriber]bool)}
}

// Subscribe returns a new channel that receives every fill published after
// this call. Subscribing never replays history.
func (b *FillBroker) Subscribe() FillSubscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(FillSubscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub. Safe to call more than once.
func (b *FillBroker) Unsubscribe(sub FillSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish broadcasts fill to every current subscriber without blocking.
func (b *FillBroker) Publish(fill types.FillEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- fill:
		default:
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (b *FillBroker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// OrderBookSubscriber is a channel that receives order book snapshots.
type OrderBookSubscriber chan types.OrderBookSnapshot

// OrderBookBroker fans connector snapshots out to subscribers. The engine
// publishes to it; the scheduler's market-data cache does not subscribe and
// keeps its own snapshots.
type OrderBookBroker struct {
	mu          sync.RWMutex
	subscribers map[OrderBookSubscriber]bool
}

// NewOrderBookBroker constructs an empty broker.
func NewOrderBookBroker() *OrderBookBroker {
	return &OrderBookBroker{subscribers: make(map[OrderBookSubscriber]bool)}
}

// Subscribe returns a new channel receiving snapshots published from now on.
func (b *OrderBookBroker) Subscribe() OrderBookSubscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(OrderBookSubscriber, 16)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub. Safe to call more than once.
func (b *OrderBookBroker) Unsubscribe(sub OrderBookSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish broadcasts snapshot to every current subscriber without blocking.
func (b *OrderBookBroker) Publish(snapshot types.OrderBookSnapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- snapshot:
		default:
		}
	}
}
