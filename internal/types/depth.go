package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// PriceLevel is a raw (price, quantity) pair from an order book side.
// On the wire it is a two element array: ["100.50", "2.5"].
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// NewPriceLevel builds a level from float values. Intended for tests and generators.
func NewPriceLevel(price, quantity float64) PriceLevel {
	return PriceLevel{
		Price:    decimal.NewFromFloat(price),
		Quantity: decimal.NewFromFloat(quantity),
	}
}

// MarshalJSON implements json.Marshaler.
func (p PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Price.String(), p.Quantity.String()})
}

// UnmarshalJSON accepts both quoted and bare numbers.
func (p *PriceLevel) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("price level: %w", err)
	}

	if len(raw) != 2 {
		return fmt.Errorf("price level: expected 2 elements, got %d", len(raw))
	}

	if err := p.Price.UnmarshalJSON(raw[0]); err != nil {
		return fmt.Errorf("price level price: %w", err)
	}

	if err := p.Quantity.UnmarshalJSON(raw[1]); err != nil {
		return fmt.Errorf("price level quantity: %w", err)
	}

	return nil
}

// DepthSnapshot is one capture of an order book.
// Bids are ordered by descending price, asks by ascending price.
type DepthSnapshot struct {
	Symbol       string       `json:"symbol"`
	LastUpdateID int64        `json:"lastUpdateId"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	// Timestamp is the capture time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// CapturedAt returns Timestamp as a time.Time.
func (d DepthSnapshot) CapturedAt() time.Time {
	return time.UnixMilli(d.Timestamp)
}

// BestBid returns the highest bid, if any.
func (d DepthSnapshot) BestBid() optional.Option[PriceLevel] {
	if len(d.Bids) == 0 {
		return optional.None[PriceLevel]()
	}

	return optional.Some(d.Bids[0])
}

// BestAsk returns the lowest ask, if any.
func (d DepthSnapshot) BestAsk() optional.Option[PriceLevel] {
	if len(d.Asks) == 0 {
		return optional.None[PriceLevel]()
	}

	return optional.Some(d.Asks[0])
}

// IsCrossed reports whether the best bid is at or above the best ask.
func (d DepthSnapshot) IsCrossed() bool {
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return false
	}

	return d.Bids[0].Price.GreaterThanOrEqual(d.Asks[0].Price)
}

// DepthLevel is a display-ready order book level.
type DepthLevel struct {
	Price          decimal.Decimal `json:"price"`
	Size           decimal.Decimal `json:"size"`
	CumulativeSize decimal.Decimal `json:"cumulativeSize"`
	// PercentageOfMax is CumulativeSize relative to the visible side total, 0-100.
	PercentageOfMax float64 `json:"percentageOfMax"`
}

// Spread is the gap between the best ask and the best bid.
type Spread struct {
	BestBid decimal.Decimal `json:"bestBid"`
	BestAsk decimal.Decimal `json:"bestAsk"`
	Value   decimal.Decimal `json:"value"`
	// Percent is Value relative to BestBid, in percent.
	Percent float64 `json:"percent"`
}
