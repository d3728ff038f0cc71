package types

import (
	"github.com/shopspring/decimal"
)

// Ticker is a 24h summary of a symbol's trading activity.
// Numeric fields serialize as decimal strings.
type Ticker struct {
	Symbol             string          `json:"symbol"`
	LastPrice          decimal.Decimal `json:"lastPrice"`
	PriceChange        decimal.Decimal `json:"priceChange"`
	PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
	Volume             decimal.Decimal `json:"volume"`
	QuoteVolume        decimal.Decimal `json:"quoteVolume"`
	OpenPrice          decimal.Decimal `json:"openPrice"`
	HighPrice          decimal.Decimal `json:"highPrice"`
	LowPrice           decimal.Decimal `json:"lowPrice"`
	// Count is the number of trades in the window.
	Count int64 `json:"count"`
	// WeightedAvgPrice is null when the source does not report it.
	WeightedAvgPrice decimal.NullDecimal `json:"weightedAvgPrice"`
}

// percentPlaces matches the precision exchanges report priceChangePercent with.
const percentPlaces = 3

// WithLastPrice returns a copy of the ticker moved to price. PriceChange and
// PriceChangePercent are recomputed against OpenPrice; volume, high and low
// are left as they were.
func (t Ticker) WithLastPrice(price decimal.Decimal) Ticker {
	next := t
	next.LastPrice = price
	next.PriceChange = price.Sub(t.OpenPrice)

	if t.OpenPrice.IsZero() {
		next.PriceChangePercent = decimal.Zero
	} else {
		next.PriceChangePercent = next.PriceChange.
			Div(t.OpenPrice).
			Mul(decimal.NewFromInt(100)).
			Round(percentPlaces)
	}

	return next
}

// InRange reports whether high >= last >= low holds.
// Upstream data may violate it transiently, so nothing enforces it.
func (t Ticker) InRange() bool {
	return t.HighPrice.GreaterThanOrEqual(t.LastPrice) && t.LastPrice.GreaterThanOrEqual(t.LowPrice)
}

// IsZero reports whether the ticker was never populated.
func (t Ticker) IsZero() bool {
	return t.Symbol == "" && t.LastPrice.IsZero()
}
