package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the aggressor side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is a single public trade. Lists of trades are ordered newest first.
type Trade struct {
	ID       int64           `json:"id"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"qty"`
	// Time is the execution time in epoch milliseconds.
	Time int64 `json:"time"`
	// IsBuyerMaker is true when the resting order was the buy, which makes
	// the aggressor a seller.
	IsBuyerMaker bool `json:"isBuyerMaker"`
}

// Side returns the aggressor side used to colour the trade.
func (t Trade) Side() Side {
	if t.IsBuyerMaker {
		return SideSell
	}

	return SideBuy
}

// ExecutedAt returns Time as a time.Time.
func (t Trade) ExecutedAt() time.Time {
	return time.UnixMilli(t.Time)
}

// Notional is price times quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}
