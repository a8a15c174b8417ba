package scheduler

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fenwick-quant/soakctl/pkg/types"
)

// NaiveStrategy quotes a fixed spread around the snapshot mid price with a
// fixed size, ignoring inventory skew. It exists as the reference strategy
// for soak tests and `soakctl run --fake`; production strategies implement
// their own edge logic behind the same Strategy interface.
type NaiveStrategy struct {
	SpreadBps decimal.Decimal
	Size      decimal.Decimal
}

// NewNaiveStrategy returns a NaiveStrategy with a 10bps half-spread and
// unit size.
func NewNaiveStrategy() *NaiveStrategy {
	return &NaiveStrategy{
		SpreadBps: decimal.NewFromFloat(0.0010),
		Size:      decimal.NewFromInt(1),
	}
}

// DesiredQuotes returns one buy and one sell quote straddling the snapshot
// mid by SpreadBps.
func (s *NaiveStrategy) DesiredQuotes(symbol string, snapshot types.OrderBookSnapshot, position types.Position, open []types.Order) []types.PlaceIntent {
	mid := snapshot.BestBid.Add(snapshot.BestAsk).Div(decimal.NewFromInt(2))
	offset := mid.Mul(s.SpreadBps)

	return []types.PlaceIntent{
		{ClientID: uuid.New().String(), Symbol: symbol, Side: types.SideBuy, Price: mid.Sub(offset), Size: s.Size},
		{ClientID: uuid.New().String(), Symbol: symbol, Side: types.SideSell, Price: mid.Add(offset), Size: s.Size},
	}
}
