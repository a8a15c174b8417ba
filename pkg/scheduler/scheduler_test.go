package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-quant/soakctl/pkg/commandbus"
	"github.com/fenwick-quant/soakctl/pkg/connector"
	"github.com/fenwick-quant/soakctl/pkg/storage"
)

func TestRunTick_PlacesQuotesForEverySymbol(t *testing.T) {
	fake := connector.NewFakeDeterministic(connector.WithRejectProbability(0))
	bus := commandbus.New(fake, commandbus.DefaultConfig)
	store := storage.NewMemStore()
	strategy := NewNaiveStrategy()

	cfg := DefaultConfig
	cfg.TickDeadline = 2 * time.Second
	orch := New([]string{"BTC-USD", "ETH-USD"}, fake, bus, store, strategy, cfg)

	result := orch.RunTick(context.Background())
	assert.Empty(t, result.DeadlineMisses)
	assert.Empty(t, result.Errors)

	btc, err := store.OpenOrders("BTC-USD")
	require.NoError(t, err)
	assert.Len(t, btc, 2) // one buy, one sell

	eth, err := store.OpenOrders("ETH-USD")
	require.NoError(t, err)
	assert.Len(t, eth, 2)
}

func TestRunTick_SecondTickCancelsFirstTicksQuotes(t *testing.T) {
	fake := connector.NewFakeDeterministic(connector.WithRejectProbability(0))
	bus := commandbus.New(fake, commandbus.DefaultConfig)
	store := storage.NewMemStore()
	strategy := NewNaiveStrategy()

	cfg := DefaultConfig
	cfg.TickDeadline = 2 * time.Second
	orch := New([]string{"BTC-USD"}, fake, bus, store, strategy, cfg)

	orch.RunTick(context.Background())
	first, err := store.OpenOrders("BTC-USD")
	require.NoError(t, err)
	require.Len(t, first, 2)

	orch.RunTick(context.Background())
	second, err := store.OpenOrders("BTC-USD")
	require.NoError(t, err)
	require.Len(t, second, 2)

	for _, f := range first {
		for _, s := range second {
			assert.NotEqual(t, f.ClientID, s.ClientID)
		}
	}
}

func TestRunTick_DeadlineMissIsCountedNotRetried(t *testing.T) {
	fake := connector.NewFakeDeterministic()
	bus := commandbus.New(fake, commandbus.DefaultConfig)
	store := storage.NewMemStore()
	strategy := NewNaiveStrategy()

	cfg := DefaultConfig
	cfg.TickDeadline = 1 * time.Nanosecond
	orch := New([]string{"BTC-USD"}, fake, bus, store, strategy, cfg)

	result := orch.RunTick(context.Background())
	assert.Len(t, result.DeadlineMisses, 1)
}
