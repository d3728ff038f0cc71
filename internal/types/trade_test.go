package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type TradeTestSuite struct {
	suite.Suite
}

func TestTradeSuite(t *testing.T) {
	suite.Run(t, new(TradeTestSuite))
}

func (suite *TradeTestSuite) TestSide() {
	suite.Equal(SideSell, Trade{IsBuyerMaker: true}.Side())
	suite.Equal(SideBuy, Trade{IsBuyerMaker: false}.Side())
}

func (suite *TradeTestSuite) TestNotionalAndTime() {
	trade := Trade{
		ID:       7,
		Price:    decimal.RequireFromString("101.5"),
		Quantity: decimal.RequireFromString("2"),
		Time:     1700000000123,
	}

	suite.Equal("203", trade.Notional().String())
	suite.Equal(int64(1700000000123), trade.ExecutedAt().UnixMilli())
}
