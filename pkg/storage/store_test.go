package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-quant/soakctl/pkg/types"
)

func newStores(t *testing.T) []Store {
	t.Helper()
	bolt, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })
	return []Store{bolt, NewMemStore()}
}

func TestStore_RecordPlacedThenOpenOrders(t *testing.T) {
	for _, s := range newStores(t) {
		order := types.Order{ClientID: "c1", Symbol: "BTC-USD", State: types.OrderStateOpen}
		require.NoError(t, s.RecordPlaced(order))

		open, err := s.OpenOrders("BTC-USD")
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, "c1", open[0].ClientID)

		other, err := s.OpenOrders("ETH-USD")
		require.NoError(t, err)
		assert.Empty(t, other)
	}
}

func TestStore_CancelRemovesFromOpenOrders(t *testing.T) {
	for _, s := range newStores(t) {
		require.NoError(t, s.RecordPlaced(types.Order{ClientID: "c1", Symbol: "BTC-USD", State: types.OrderStateOpen}))
		require.NoError(t, s.RecordCancelRequested("c1"))

		open, err := s.OpenOrders("BTC-USD")
		require.NoError(t, err)
		assert.Empty(t, open)

		order, found, err := s.Get("c1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, types.OrderStateCancelled, order.State)
	}
}

func TestStore_FillIsTerminalAndIgnoresLaterCancel(t *testing.T) {
	for _, s := range newStores(t) {
		require.NoError(t, s.RecordPlaced(types.Order{ClientID: "c1", Symbol: "BTC-USD", State: types.OrderStateOpen}))
		require.NoError(t, s.ApplyFill("c1", types.FillEvent{ClientID: "c1", Timestamp: time.Now()}))

		// a cancel racing the fill must not resurrect or overwrite the fill
		require.NoError(t, s.RecordCancelRequested("c1"))

		order, found, err := s.Get("c1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, types.OrderStateFilled, order.State)
	}
}

func TestStore_CancelUnknownIDIsNoop(t *testing.T) {
	for _, s := range newStores(t) {
		assert.NoError(t, s.RecordCancelRequested("ghost"))
	}
}

func TestStore_PruneEvictsOldTerminalOrders(t *testing.T) {
	for _, s := range newStores(t) {
		order := types.Order{
			ClientID:  "c1",
			Symbol:    "BTC-USD",
			State:     types.OrderStateCancelled,
			UpdatedAt: time.Now().Add(-time.Hour),
		}
		require.NoError(t, s.RecordPlaced(order))

		evicted, err := s.Prune(time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, evicted)

		_, found, err := s.Get("c1")
		require.NoError(t, err)
		assert.False(t, found)
	}
}

func TestStore_PruneKeepsRecentAndOpenOrders(t *testing.T) {
	for _, s := range newStores(t) {
		require.NoError(t, s.RecordPlaced(types.Order{ClientID: "open1", Symbol: "BTC-USD", State: types.OrderStateOpen}))
		require.NoError(t, s.RecordPlaced(types.Order{ClientID: "recent", Symbol: "BTC-USD", State: types.OrderStateFilled, UpdatedAt: time.Now()}))

		evicted, err := s.Prune(time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 0, evicted)
	}
}
