package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-quant/soakctl/pkg/types"
)

func TestFillBroker_PublishDeliversToAllSubscribers(t *testing.T) {
	b := NewFillBroker()
	a := b.Subscribe()
	c := b.Subscribe()
	defer b.Unsubscribe(a)
	defer b.Unsubscribe(c)

	b.Publish(types.FillEvent{ClientID: "x1"})

	select {
	case got := <-a:
		assert.Equal(t, "x1", got.ClientID)
	case <-time.After(time.Second):
		t.Fatal("subscriber a never received fill")
	}
	select {
	case got := <-c:
		assert.Equal(t, "x1", got.ClientID)
	case <-time.After(time.Second):
		t.Fatal("subscriber c never received fill")
	}
}

func TestFillBroker_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewFillBroker()
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	b.Publish(types.FillEvent{ClientID: "x1"})

	_, open := <-sub
	assert.False(t, open)
}

func TestFillBroker_UnsubscribeIsIdempotent(t *testing.T) {
	b := NewFillBroker()
	sub := b.Subscribe()
	require.NotPanics(t, func() {
		b.Unsubscribe(sub)
		b.Unsubscribe(sub)
	})
}

func TestFillBroker_SlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := NewFillBroker()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(types.FillEvent{ClientID: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
}

func TestFillBroker_SubscriberCountTracksLifecycle(t *testing.T) {
	b := NewFillBroker()
	assert.Equal(t, 0, b.SubscriberCount())
	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestOrderBookBroker_PublishDeliversSnapshot(t *testing.T) {
	b := NewOrderBookBroker()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(types.OrderBookSnapshot{Symbol: "BTC-USD"})

	select {
	case got := <-sub:
		assert.Equal(t, "BTC-USD", got.Symbol)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received snapshot")
	}
}

func TestOrderBookBroker_LateSubscriberMissesEarlierPublish(t *testing.T) {
	b := NewOrderBookBroker()
	b.Publish(types.OrderBookSnapshot{Symbol: "BTC-USD"})

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	select {
	case <-sub:
		t.Fatal("late subscriber should not receive events published before it subscribed")
	case <-time.After(50 * time.Millisecond):
	}
}
