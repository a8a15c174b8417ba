package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-quant/soakctl/pkg/events"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

func waitForPosition(t *testing.T, tr *Tracker, symbol string, want decimal.Decimal) types.Position {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		pos := tr.Snapshot(symbol)
		if pos.BaseAmount.Equal(want) {
			return pos
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "position never converged", "want %s got %s", want, tr.Snapshot(symbol).BaseAmount)
	return types.Position{}
}

func TestTracker_BuyFillIncreasesBaseAmount(t *testing.T) {
	broker := events.NewFillBroker()
	tr := New(broker)
	tr.Start()
	defer tr.Stop()

	broker.Publish(types.FillEvent{
		Symbol: "BTC-USD", Side: types.SideBuy,
		Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(2),
		Timestamp: time.Now(),
	})

	pos := waitForPosition(t, tr, "BTC-USD", decimal.NewFromInt(2))
	assert.True(t, pos.CumulativeNotion.Equal(decimal.NewFromInt(200)))
}

func TestTracker_SellFillDecreasesBaseAmount(t *testing.T) {
	broker := events.NewFillBroker()
	tr := New(broker)
	tr.Start()
	defer tr.Stop()

	broker.Publish(types.FillEvent{
		Symbol: "BTC-USD", Side: types.SideBuy,
		Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(3),
		Timestamp: time.Now(),
	})
	waitForPosition(t, tr, "BTC-USD", decimal.NewFromInt(3))

	broker.Publish(types.FillEvent{
		Symbol: "BTC-USD", Side: types.SideSell,
		Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1),
		Timestamp: time.Now(),
	})
	pos := waitForPosition(t, tr, "BTC-USD", decimal.NewFromInt(2))
	assert.True(t, pos.CumulativeNotion.Equal(decimal.NewFromInt(400)))
}

func TestTracker_SnapshotOfUntouchedSymbolIsZero(t *testing.T) {
	tr := New(events.NewFillBroker())
	pos := tr.Snapshot("ETH-USD")
	assert.True(t, pos.BaseAmount.IsZero())
	assert.Equal(t, "ETH-USD", pos.Symbol)
}

func TestTracker_AllReturnsIndependentCopy(t *testing.T) {
	broker := events.NewFillBroker()
	tr := New(broker)
	tr.Start()
	defer tr.Stop()

	broker.Publish(types.FillEvent{
		Symbol: "BTC-USD", Side: types.SideBuy,
		Price: decimal.NewFromInt(50), Size: decimal.NewFromInt(1),
		Timestamp: time.Now(),
	})
	waitForPosition(t, tr, "BTC-USD", decimal.NewFromInt(1))

	all := tr.All()
	require.Contains(t, all, "BTC-USD")
	modified := all["BTC-USD"]
	modified.BaseAmount = decimal.NewFromInt(999)
	all["BTC-USD"] = modified

	assert.True(t, tr.Snapshot("BTC-USD").BaseAmount.Equal(decimal.NewFromInt(1)))
}
