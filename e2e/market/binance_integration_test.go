package market

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rxtech-lab/marketboard/pkg/marketdata/provider"
	"github.com/stretchr/testify/suite"
)

// BinanceIntegrationTestSuite talks to the public Binance API.
// Set MARKETBOARD_BINANCE_INTEGRATION=1 to run it.
type BinanceIntegrationTestSuite struct {
	suite.Suite
	client *provider.BinanceClient
}

func TestBinanceIntegrationSuite(t *testing.T) {
	suite.Run(t, new(BinanceIntegrationTestSuite))
}

func (suite *BinanceIntegrationTestSuite) SetupTest() {
	if os.Getenv("MARKETBOARD_BINANCE_INTEGRATION") == "" {
		suite.T().Skip("Skipping integration test: MARKETBOARD_BINANCE_INTEGRATION not set")
	}

	client, err := provider.NewBinanceClient(provider.BinanceConfig{})
	suite.Require().NoError(err)
	suite.client = client
}

func (suite *BinanceIntegrationTestSuite) TestIntegration_FetchTicker() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ticker, err := suite.client.FetchTicker(ctx, "BTC-USDT")
	suite.Require().NoError(err)
	suite.Equal("BTC-USDT", ticker.Symbol)
	suite.True(ticker.LastPrice.IsPositive())
}

func (suite *BinanceIntegrationTestSuite) TestIntegration_FetchDepth() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snapshot, err := suite.client.FetchDepth(ctx, "ETH-USDT", 10)
	suite.Require().NoError(err)
	suite.LessOrEqual(len(snapshot.Bids), 10)
	suite.False(snapshot.IsCrossed())
}
