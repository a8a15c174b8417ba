package commandbus

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-quant/soakctl/pkg/connector"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

func cancelIntents(n int) []types.CancelIntent {
	out := make([]types.CancelIntent, n)
	for i := range out {
		out[i] = types.CancelIntent{ClientID: string(rune('a' + i))}
	}
	return out
}

func placeIntents(n int) []types.PlaceIntent {
	out := make([]types.PlaceIntent, n)
	for i := range out {
		out[i] = types.PlaceIntent{ClientID: string(rune('a' + i))}
	}
	return out
}

func TestCoalesceCancels_SingleBatchUnderLimit(t *testing.T) {
	batches := coalesceCancels(cancelIntents(5))
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 5)
}

func TestCoalesceCancels_NoSplitAtExactlyMaxBatchSize(t *testing.T) {
	batches := coalesceCancels(cancelIntents(MaxBatchSize))
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], MaxBatchSize)
}

func TestCoalesceCancels_SplitsOverflow(t *testing.T) {
	batches := coalesceCancels(cancelIntents(MaxBatchSize + 1))
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], MaxBatchSize)
	assert.Len(t, batches[1], 1)
}

func TestCoalescePlaces_CeilDivision(t *testing.T) {
	batches := coalescePlaces(placeIntents(41))
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], MaxBatchSize)
	assert.Len(t, batches[1], MaxBatchSize)
	assert.Len(t, batches[2], 1)
}

func TestCoalesceCancels_Empty(t *testing.T) {
	assert.Nil(t, coalesceCancels(nil))
	assert.Nil(t, coalescePlaces(nil))
}

func TestDispatch_PlaceThenCancelSameSymbol(t *testing.T) {
	fake := connector.NewFakeDeterministic(connector.WithRejectProbability(0))
	bus := New(fake, DefaultConfig)
	ctx := context.Background()

	place, _, err := bus.Dispatch(ctx, "BTC-USD", nil, []types.PlaceIntent{
		{ClientID: "c1", Symbol: "BTC-USD", Side: types.SideBuy, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)},
	})
	require.NoError(t, err)
	require.Len(t, place, 1)
	assert.NotEmpty(t, place[0].ExchangeID)

	_, cancel, err := bus.Dispatch(ctx, "BTC-USD", []types.CancelIntent{{ClientID: "c1", Symbol: "BTC-USD"}}, nil)
	require.NoError(t, err)
	require.Len(t, cancel, 1)
	assert.NoError(t, cancel[0].Err)
}

func TestDispatch_LegacyModeIssuesOneByOne(t *testing.T) {
	fake := connector.NewFakeDeterministic(connector.WithRejectProbability(0))
	bus := New(fake, Config{Enabled: false, RateLimitPerSecond: 100, RateLimitBurst: 100})
	ctx := context.Background()

	place, _, err := bus.Dispatch(ctx, "BTC-USD", nil, placeIntents(3))
	require.NoError(t, err)
	assert.Len(t, place, 3)
}
