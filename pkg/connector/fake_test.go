package connector

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-quant/soakctl/pkg/types"
)

func TestFakeDeterministic_PlaceThenCancel(t *testing.T) {
	f := NewFakeDeterministic(WithSeed(7), WithRejectProbability(0))
	ctx := context.Background()

	results, err := f.PlaceBatch(ctx, "BTC-USD", []types.PlaceIntent{
		{ClientID: "c1", Symbol: "BTC-USD", Side: types.SideBuy, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Err)
	assert.NotEmpty(t, results[0].ExchangeID)

	cancels, err := f.CancelBatch(ctx, "BTC-USD", []string{"c1"})
	require.NoError(t, err)
	require.Len(t, cancels, 1)
	assert.NoError(t, cancels[0].Err)
}

func TestFakeDeterministic_CancelUnknownReportsElementError(t *testing.T) {
	f := NewFakeDeterministic()
	results, err := f.CancelBatch(context.Background(), "BTC-USD", []string{"ghost"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestFakeDeterministic_RejectProbabilityOneRejectsAll(t *testing.T) {
	f := NewFakeDeterministic(WithRejectProbability(1))
	results, err := f.PlaceBatch(context.Background(), "BTC-USD", []types.PlaceIntent{
		{ClientID: "c1"}, {ClientID: "c2"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.Error(t, results[1].Err)
}

func TestFakeDeterministic_FreezeClockDrivesSnapshotTimestamps(t *testing.T) {
	t.Setenv("MM_FREEZE_UTC_ISO", "2026-01-15T00:00:00Z")

	f := NewFakeDeterministic(WithSeed(1))
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	snaps, err := f.StreamOrderBook(ctx, []string{"BTC-USD"})
	require.NoError(t, err)

	snap := <-snaps
	assert.Equal(t, "2026-01-15T00:00:00Z", snap.Timestamp.Format(time.RFC3339))
}

func TestFakeDeterministic_StreamFillsEventuallyFillsRestingOrder(t *testing.T) {
	f := NewFakeDeterministic(WithSeed(42), WithFillProbability(1), WithRejectProbability(0))
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := f.PlaceBatch(ctx, "BTC-USD", []types.PlaceIntent{
		{ClientID: "c1", Symbol: "BTC-USD", Side: types.SideBuy, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)},
	})
	require.NoError(t, err)

	fills, err := f.StreamFills(ctx)
	require.NoError(t, err)

	select {
	case fill := <-fills:
		assert.Equal(t, "c1", fill.ClientID)
	case <-ctx.Done():
		t.Fatal("expected a fill before context deadline")
	}
}
