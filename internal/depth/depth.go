// Package depth turns raw order book sides into display-ready levels.
//
// Every function here is pure: levels are rebuilt from the snapshot on each
// call and never mutated in place.
package depth

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Book is a normalized order book.
type Book struct {
	Symbol string             `json:"symbol"`
	Bids   []types.DepthLevel `json:"bids"`
	// Asks are ordered best price first, like Bids. Use StackTowardSpread for
	// the top-down visual order.
	Asks   []types.DepthLevel            `json:"asks"`
	Spread optional.Option[types.Spread] `json:"spread"`
}

// Normalize truncates both sides to maxLevels, computes cumulative depth and
// derives the spread. maxLevels <= 0 keeps every level.
func Normalize(snapshot types.DepthSnapshot, maxLevels int) Book {
	return Book{
		Symbol: snapshot.Symbol,
		Bids:   Levels(snapshot.Bids, maxLevels),
		Asks:   Levels(snapshot.Asks, maxLevels),
		Spread: ComputeSpread(snapshot.Bids, snapshot.Asks),
	}
}

// Levels walks one side from the best price outward. Each level's
// CumulativeSize includes itself and PercentageOfMax is relative to the
// total of the truncated side, so the deepest visible level is 100.
// A side whose sizes sum to zero reports 0 for every level.
func Levels(side []types.PriceLevel, maxLevels int) []types.DepthLevel {
	visible := truncate(side, maxLevels)
	levels := make([]types.DepthLevel, 0, len(visible))

	total := decimal.Zero
	for _, l := range visible {
		total = total.Add(l.Quantity)
	}

	running := decimal.Zero
	for _, l := range visible {
		running = running.Add(l.Quantity)

		levels = append(levels, types.DepthLevel{
			Price:           l.Price,
			Size:            l.Quantity,
			CumulativeSize:  running,
			PercentageOfMax: percentOf(running, total),
		})
	}

	return levels
}

// StackTowardSpread reorders asks for a book drawn top-down: highest ask
// first, lowest ask last, directly above the spread. Only the order changes.
func StackTowardSpread(asks []types.DepthLevel) []types.DepthLevel {
	stacked := make([]types.DepthLevel, len(asks))
	for i, level := range asks {
		stacked[len(asks)-1-i] = level
	}

	return stacked
}

// ComputeSpread returns best ask minus best bid and that gap as a percentage
// of the best bid. It is None when either side is empty. A crossed book gives
// a negative spread.
func ComputeSpread(bids, asks []types.PriceLevel) optional.Option[types.Spread] {
	if len(bids) == 0 || len(asks) == 0 {
		return optional.None[types.Spread]()
	}

	bestBid := bids[0].Price
	bestAsk := asks[0].Price
	value := bestAsk.Sub(bestBid)

	return optional.Some(types.Spread{
		BestBid: bestBid,
		BestAsk: bestAsk,
		Value:   value,
		Percent: percentOf(value, bestBid),
	})
}

// Imbalance is the bid share of the visible size in [0, 1], or None when both
// sides are empty or sized zero.
func (b Book) Imbalance() optional.Option[float64] {
	bidTotal := sideTotal(b.Bids)
	askTotal := sideTotal(b.Asks)
	sum := bidTotal.Add(askTotal)

	if sum.IsZero() {
		return optional.None[float64]()
	}

	return optional.Some(bidTotal.Div(sum).InexactFloat64())
}

// StackedAsks is StackTowardSpread applied to the book's asks.
func (b Book) StackedAsks() []types.DepthLevel {
	return StackTowardSpread(b.Asks)
}

func truncate(side []types.PriceLevel, maxLevels int) []types.PriceLevel {
	if maxLevels > 0 && len(side) > maxLevels {
		return side[:maxLevels]
	}

	return side
}

func sideTotal(levels []types.DepthLevel) decimal.Decimal {
	if len(levels) == 0 {
		return decimal.Zero
	}

	return levels[len(levels)-1].CumulativeSize
}

func percentOf(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}

	return part.Div(whole).Mul(hundred).InexactFloat64()
}
