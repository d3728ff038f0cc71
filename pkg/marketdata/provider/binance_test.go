package provider_test

import (
	"context"
	"errors"
	"testing"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	marketerrors "github.com/rxtech-lab/marketboard/pkg/errors"
	"github.com/rxtech-lab/marketboard/pkg/marketdata/provider"
	"github.com/rxtech-lab/marketboard/pkg/mockproxy"
	"github.com/stretchr/testify/suite"
)

// mockBinanceAPIClient implements BinanceAPIClient for testing.
type mockBinanceAPIClient struct {
	depth     *binance.DepthResponse
	depthErr  error
	stats     []*binance.PriceChangeStats
	statsErr  error
	trades    []*binance.Trade
	tradesErr error

	lastSymbol string
	lastLimit  int
}

func (m *mockBinanceAPIClient) NewDepthService() provider.BinanceDepthService {
	return &mockDepthService{client: m}
}

func (m *mockBinanceAPIClient) NewPriceChangeStatsService() provider.BinancePriceChangeStatsService {
	return &mockStatsService{client: m}
}

func (m *mockBinanceAPIClient) NewRecentTradesService() provider.BinanceRecentTradesService {
	return &mockTradesService{client: m}
}

type mockDepthService struct{ client *mockBinanceAPIClient }

func (s *mockDepthService) Symbol(symbol string) provider.BinanceDepthService {
	s.client.lastSymbol = symbol
	return s
}

func (s *mockDepthService) Limit(limit int) provider.BinanceDepthService {
	s.client.lastLimit = limit
	return s
}

func (s *mockDepthService) Do(_ context.Context) (*binance.DepthResponse, error) {
	return s.client.depth, s.client.depthErr
}

type mockStatsService struct{ client *mockBinanceAPIClient }

func (s *mockStatsService) Symbol(symbol string) provider.BinancePriceChangeStatsService {
	s.client.lastSymbol = symbol
	return s
}

func (s *mockStatsService) Do(_ context.Context) ([]*binance.PriceChangeStats, error) {
	return s.client.stats, s.client.statsErr
}

type mockTradesService struct{ client *mockBinanceAPIClient }

func (s *mockTradesService) Symbol(symbol string) provider.BinanceRecentTradesService {
	s.client.lastSymbol = symbol
	return s
}

func (s *mockTradesService) Limit(limit int) provider.BinanceRecentTradesService {
	s.client.lastLimit = limit
	return s
}

func (s *mockTradesService) Do(_ context.Context) ([]*binance.Trade, error) {
	return s.client.trades, s.client.tradesErr
}

type BinanceClientTestSuite struct {
	suite.Suite
	api    *mockBinanceAPIClient
	client *provider.BinanceClient
}

func TestBinanceClientSuite(t *testing.T) {
	suite.Run(t, new(BinanceClientTestSuite))
}

func (suite *BinanceClientTestSuite) SetupTest() {
	suite.api = &mockBinanceAPIClient{}
	suite.client = provider.NewBinanceClientWithAPI(suite.api)
}

func (suite *BinanceClientTestSuite) validStats() *binance.PriceChangeStats {
	return &binance.PriceChangeStats{
		Symbol:             "BTCUSDT",
		PriceChange:        "-120.50",
		PriceChangePercent: "-0.121",
		WeightedAvgPrice:   "99010.2",
		LastPrice:          "98879.50",
		OpenPrice:          "99000.00",
		HighPrice:          "99500.00",
		LowPrice:           "98500.00",
		Volume:             "1532.1",
		QuoteVolume:        "151700000.12",
		Count:              812345,
	}
}

func (suite *BinanceClientTestSuite) TestFetchTicker() {
	suite.api.stats = []*binance.PriceChangeStats{suite.validStats()}

	ticker, err := suite.client.FetchTicker(context.Background(), "BTC-USDT")

	suite.Require().NoError(err)
	suite.Equal("BTCUSDT", suite.api.lastSymbol)
	suite.Equal("BTC-USDT", ticker.Symbol)
	suite.Equal("98879.5", ticker.LastPrice.String())
	suite.Equal("-120.5", ticker.PriceChange.String())
	suite.Equal(int64(812345), ticker.Count)
	suite.True(ticker.WeightedAvgPrice.Valid)
}

func (suite *BinanceClientTestSuite) TestFetchTickerMalformed() {
	stats := suite.validStats()
	stats.HighPrice = "n/a"
	suite.api.stats = []*binance.PriceChangeStats{stats}

	_, err := suite.client.FetchTicker(context.Background(), "BTC-USDT")
	suite.True(marketerrors.HasCode(err, marketerrors.ErrCodeMalformedResponse))

	suite.api.stats = nil
	_, err = suite.client.FetchTicker(context.Background(), "BTC-USDT")
	suite.True(marketerrors.HasCode(err, marketerrors.ErrCodeMalformedResponse))
}

func (suite *BinanceClientTestSuite) TestFetchTickerTransportError() {
	suite.api.statsErr = &common.APIError{Code: -1003, Message: "Too many requests"}

	_, err := suite.client.FetchTicker(context.Background(), "BTC-USDT")
	suite.True(marketerrors.HasCode(err, marketerrors.ErrCodeTransport))

	suite.api.statsErr = context.DeadlineExceeded
	_, err = suite.client.FetchTicker(context.Background(), "BTC-USDT")
	suite.True(marketerrors.HasCode(err, marketerrors.ErrCodeTimeout))
}

func (suite *BinanceClientTestSuite) TestUnknownSymbol() {
	invalid := &common.APIError{Code: -1121, Message: "Invalid symbol."}
	suite.api.statsErr = invalid
	suite.api.depthErr = invalid
	suite.api.tradesErr = invalid

	_, err := suite.client.FetchTicker(context.Background(), "NOPE-USDT")
	suite.True(marketerrors.HasCode(err, marketerrors.ErrCodeUnsupportedSymbol))
	suite.False(marketerrors.IsSourceFailure(err))

	_, err = suite.client.FetchDepth(context.Background(), "NOPE-USDT", 5)
	suite.True(marketerrors.HasCode(err, marketerrors.ErrCodeUnsupportedSymbol))

	_, err = suite.client.FetchTrades(context.Background(), "NOPE-USDT", 5)
	suite.True(marketerrors.HasCode(err, marketerrors.ErrCodeUnsupportedSymbol))
	suite.Contains(err.Error(), "Invalid symbol.")
}

func (suite *BinanceClientTestSuite) TestFetchDepth() {
	suite.api.depth = &binance.DepthResponse{
		LastUpdateID: 77,
		Bids:         []binance.Bid{{Price: "100", Quantity: "2"}, {Price: "99", Quantity: "3"}, {Price: "98", Quantity: "1"}},
		Asks:         []binance.Ask{{Price: "101", Quantity: "1"}},
	}

	snapshot, err := suite.client.FetchDepth(context.Background(), "ETH-USDT", 2)

	suite.Require().NoError(err)
	suite.Equal("ETHUSDT", suite.api.lastSymbol)
	suite.Equal(5, suite.api.lastLimit)
	suite.Equal(int64(77), snapshot.LastUpdateID)
	suite.Len(snapshot.Bids, 2)
	suite.Len(snapshot.Asks, 1)
	suite.Equal("ETH-USDT", snapshot.Symbol)
}

func (suite *BinanceClientTestSuite) TestFetchDepthErrors() {
	suite.api.depthErr = errors.New("dial tcp: connection refused")
	_, err := suite.client.FetchDepth(context.Background(), "ETH-USDT", 5)
	suite.True(marketerrors.HasCode(err, marketerrors.ErrCodeTransport))

	suite.api.depthErr = nil
	suite.api.depth = &binance.DepthResponse{Bids: []binance.Bid{{Price: "x", Quantity: "1"}}}
	_, err = suite.client.FetchDepth(context.Background(), "ETH-USDT", 5)
	suite.True(marketerrors.HasCode(err, marketerrors.ErrCodeMalformedResponse))
}

func (suite *BinanceClientTestSuite) TestFetchTradesReversed() {
	suite.api.trades = []*binance.Trade{
		{ID: 1, Price: "10", Quantity: "1", Time: 1000, IsBuyerMaker: true},
		{ID: 2, Price: "11", Quantity: "2", Time: 2000, IsBuyerMaker: false},
	}

	trades, err := suite.client.FetchTrades(context.Background(), "BTC-USDT", 2)

	suite.Require().NoError(err)
	suite.Equal(2, suite.api.lastLimit)
	suite.Equal(int64(2), trades[0].ID)
	suite.Equal(int64(1), trades[1].ID)
	suite.True(trades[1].IsBuyerMaker)
}

func (suite *BinanceClientTestSuite) TestFetchAllTickers() {
	eth := suite.validStats()
	eth.Symbol = "ETHUSDT"
	suite.api.stats = []*binance.PriceChangeStats{suite.validStats(), eth}

	tickers, err := suite.client.FetchAllTickers(context.Background())

	suite.Require().NoError(err)
	suite.Len(tickers, 2)
	suite.Equal("BTC-USDT", tickers[0].Symbol)
	suite.Equal("ETH-USDT", tickers[1].Symbol)
}

// Exercises the real SDK against the Binance routes of the mock proxy.
func (suite *BinanceClientTestSuite) TestAgainstMockServer() {
	server := mockproxy.New(nil)
	suite.Require().NoError(server.Start("127.0.0.1:0"))
	defer server.Stop()

	client, err := provider.NewBinanceClient(provider.BinanceConfig{BaseURL: server.BaseURL()})
	suite.Require().NoError(err)

	snapshot, err := client.FetchDepth(context.Background(), "BTC-USDT", 10)
	suite.Require().NoError(err)
	suite.Len(snapshot.Bids, 10)

	ticker, err := client.FetchTicker(context.Background(), "ETH-USDT")
	suite.Require().NoError(err)
	suite.Equal("ETH-USDT", ticker.Symbol)

	trades, err := client.FetchTrades(context.Background(), "BTC-USDT", 20)
	suite.Require().NoError(err)
	suite.Len(trades, 20)
	suite.Greater(trades[0].Time, trades[19].Time)

	server.SetFault(mockproxy.EndpointDepth, mockproxy.FaultHTTPError)
	_, err = client.FetchDepth(context.Background(), "BTC-USDT", 10)
	suite.True(marketerrors.IsSourceFailure(err))
}
