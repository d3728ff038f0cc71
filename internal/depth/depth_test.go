package depth

import (
	"math/rand"
	"testing"

	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type DepthTestSuite struct {
	suite.Suite
}

func TestDepthSuite(t *testing.T) {
	suite.Run(t, new(DepthTestSuite))
}

func levelsOf(pairs ...[2]float64) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, types.NewPriceLevel(p[0], p[1]))
	}

	return out
}

func cumulative(levels []types.DepthLevel) []string {
	out := make([]string, 0, len(levels))
	for _, l := range levels {
		out = append(out, l.CumulativeSize.String())
	}

	return out
}

func percentages(levels []types.DepthLevel) []float64 {
	out := make([]float64, 0, len(levels))
	for _, l := range levels {
		out = append(out, l.PercentageOfMax)
	}

	return out
}

func (suite *DepthTestSuite) TestNormalizeTwoLevelBook() {
	snapshot := types.DepthSnapshot{
		Symbol: "BTC-USDT",
		Bids:   levelsOf([2]float64{100, 2}, [2]float64{99, 3}),
		Asks:   levelsOf([2]float64{101, 1}, [2]float64{102, 4}),
	}

	book := Normalize(snapshot, 20)

	suite.Equal([]string{"2", "5"}, cumulative(book.Bids))
	suite.Equal([]float64{40, 100}, percentages(book.Bids))
	suite.Equal([]string{"1", "5"}, cumulative(book.Asks))
	suite.Equal([]float64{20, 100}, percentages(book.Asks))

	suite.Require().True(book.Spread.IsSome())
	spread := book.Spread.Unwrap()
	suite.Equal("100", spread.BestBid.String())
	suite.Equal("101", spread.BestAsk.String())
	suite.Equal("1", spread.Value.String())
	suite.InDelta(1.0, spread.Percent, 1e-9)
}

func (suite *DepthTestSuite) TestTruncationUsesVisibleTotal() {
	bids := levelsOf([2]float64{100, 1}, [2]float64{99, 1}, [2]float64{98, 8})

	levels := Levels(bids, 2)

	suite.Len(levels, 2)
	suite.Equal([]float64{50, 100}, percentages(levels))
	suite.Equal("99", levels[1].Price.String())
}

func (suite *DepthTestSuite) TestNoCapKeepsEveryLevel() {
	bids := levelsOf([2]float64{100, 1}, [2]float64{99, 1}, [2]float64{98, 2})

	suite.Len(Levels(bids, 0), 3)
	suite.Len(Levels(bids, -1), 3)
	suite.Len(Levels(bids, 10), 3)
}

func (suite *DepthTestSuite) TestEmptySides() {
	book := Normalize(types.DepthSnapshot{Bids: levelsOf([2]float64{100, 1})}, 10)

	suite.NotNil(book.Asks)
	suite.Empty(book.Asks)
	suite.Len(book.Bids, 1)
	suite.True(book.Spread.IsNone())

	book = Normalize(types.DepthSnapshot{}, 10)
	suite.Empty(book.Bids)
	suite.Empty(book.Asks)
	suite.True(book.Spread.IsNone())
	suite.True(book.Imbalance().IsNone())
}

func (suite *DepthTestSuite) TestZeroSizeSide() {
	levels := Levels(levelsOf([2]float64{100, 0}, [2]float64{99, 0}), 10)

	suite.Equal([]float64{0, 0}, percentages(levels))
	suite.Equal([]string{"0", "0"}, cumulative(levels))
}

func (suite *DepthTestSuite) TestCrossedBookDoesNotPanic() {
	snapshot := types.DepthSnapshot{
		Bids: levelsOf([2]float64{102, 1}),
		Asks: levelsOf([2]float64{101, 1}),
	}

	book := Normalize(snapshot, 5)

	suite.Require().True(book.Spread.IsSome())
	suite.True(book.Spread.Unwrap().Value.IsNegative())
	suite.Less(book.Spread.Unwrap().Percent, 0.0)
}

func (suite *DepthTestSuite) TestZeroBestBidPercent() {
	spread := ComputeSpread(levelsOf([2]float64{0, 1}), levelsOf([2]float64{1, 1}))

	suite.Equal(0.0, spread.Unwrap().Percent)
	suite.Equal("1", spread.Unwrap().Value.String())
}

func (suite *DepthTestSuite) TestStackTowardSpread() {
	asks := Levels(levelsOf([2]float64{101, 1}, [2]float64{102, 4}, [2]float64{103, 5}), 10)

	stacked := StackTowardSpread(asks)

	suite.Equal("103", stacked[0].Price.String())
	suite.Equal("101", stacked[2].Price.String())
	// values travel with their level
	suite.Equal(100.0, stacked[0].PercentageOfMax)
	suite.Equal(asks[0], stacked[2])
	// the input is not reordered
	suite.Equal("101", asks[0].Price.String())
	suite.Empty(StackTowardSpread(nil))
}

func (suite *DepthTestSuite) TestImbalance() {
	book := Normalize(types.DepthSnapshot{
		Bids: levelsOf([2]float64{100, 3}),
		Asks: levelsOf([2]float64{101, 1}),
	}, 10)

	suite.InDelta(0.75, book.Imbalance().Unwrap(), 1e-9)
}

// Randomized books must always end at 100 and grow monotonically.
func (suite *DepthTestSuite) TestRandomSidesInvariants() {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(40)
		side := make([]types.PriceLevel, n)
		for j := range side {
			side[j] = types.PriceLevel{
				Price:    decimal.NewFromInt(int64(1000 - j)),
				Quantity: decimal.NewFromFloat(rng.Float64() * 10).Round(4),
			}
		}

		maxLevels := 1 + rng.Intn(30)
		levels := Levels(side, maxLevels)

		suite.LessOrEqual(len(levels), maxLevels)
		for j := 1; j < len(levels); j++ {
			suite.True(levels[j].CumulativeSize.GreaterThanOrEqual(levels[j-1].CumulativeSize))
			suite.GreaterOrEqual(levels[j].PercentageOfMax, levels[j-1].PercentageOfMax)
		}

		last := levels[len(levels)-1]
		if last.CumulativeSize.IsZero() {
			suite.Equal(0.0, last.PercentageOfMax)
		} else {
			suite.InDelta(100.0, last.PercentageOfMax, 1e-9)
		}
	}
}
