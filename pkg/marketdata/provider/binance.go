package provider

import (
	"context"
	"slices"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/rxtech-lab/marketboard/pkg/errors"
	"github.com/shopspring/decimal"
)

// BinanceDepthService is the subset of binance.DepthService the client uses.
type BinanceDepthService interface {
	Symbol(symbol string) BinanceDepthService
	Limit(limit int) BinanceDepthService
	Do(ctx context.Context) (*binance.DepthResponse, error)
}

// BinancePriceChangeStatsService is the subset of binance.ListPriceChangeStatsService the client uses.
type BinancePriceChangeStatsService interface {
	Symbol(symbol string) BinancePriceChangeStatsService
	Do(ctx context.Context) ([]*binance.PriceChangeStats, error)
}

// BinanceRecentTradesService is the subset of binance.RecentTradesService the client uses.
type BinanceRecentTradesService interface {
	Symbol(symbol string) BinanceRecentTradesService
	Limit(limit int) BinanceRecentTradesService
	Do(ctx context.Context) ([]*binance.Trade, error)
}

// BinanceAPIClient creates the services above. It exists so tests can replace the SDK.
type BinanceAPIClient interface {
	NewDepthService() BinanceDepthService
	NewPriceChangeStatsService() BinancePriceChangeStatsService
	NewRecentTradesService() BinanceRecentTradesService
}

// BinanceClient reads public market data straight from Binance.
type BinanceClient struct {
	api BinanceAPIClient
}

// NewBinanceClient creates a Binance provider using the public endpoints.
func NewBinanceClient(config BinanceConfig) (*BinanceClient, error) {
	client := binance.NewClient("", "")
	if config.BaseURL != "" {
		client.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}

	return NewBinanceClientWithAPI(&binanceAPIClientWrapper{client: client}), nil
}

// NewBinanceClientWithAPI creates a Binance provider on top of api.
func NewBinanceClientWithAPI(api BinanceAPIClient) *BinanceClient {
	return &BinanceClient{api: api}
}

// Name implements Provider.
func (c *BinanceClient) Name() string {
	return string(ProviderBinance)
}

// FetchTicker implements Provider.
func (c *BinanceClient) FetchTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	stats, err := c.api.NewPriceChangeStatsService().Symbol(ToExchangeSymbol(symbol)).Do(ctx)
	if err != nil {
		return types.Ticker{}, binanceError(err, "failed to fetch ticker from Binance")
	}

	if len(stats) == 0 || stats[0] == nil {
		return types.Ticker{}, errors.Newf(errors.ErrCodeMalformedResponse, "binance returned no ticker for %s", symbol)
	}

	ticker, err := convertPriceChangeStats(stats[0])
	if err != nil {
		return types.Ticker{}, err
	}

	ticker.Symbol = symbol

	return ticker, nil
}

// FetchDepth implements Provider.
func (c *BinanceClient) FetchDepth(ctx context.Context, symbol string, limit int) (types.DepthSnapshot, error) {
	service := c.api.NewDepthService().Symbol(ToExchangeSymbol(symbol))
	if limit > 0 {
		service = service.Limit(binanceDepthLimit(limit))
	}

	res, err := service.Do(ctx)
	if err != nil {
		return types.DepthSnapshot{}, binanceError(err, "failed to fetch depth from Binance")
	}

	if res == nil {
		return types.DepthSnapshot{}, errors.Newf(errors.ErrCodeMalformedResponse, "binance returned no depth for %s", symbol)
	}

	bids := make([]types.PriceLevel, 0, len(res.Bids))
	for _, b := range res.Bids {
		level, err := parseLevel(b.Price, b.Quantity)
		if err != nil {
			return types.DepthSnapshot{}, err
		}

		bids = append(bids, level)
	}

	asks := make([]types.PriceLevel, 0, len(res.Asks))
	for _, a := range res.Asks {
		level, err := parseLevel(a.Price, a.Quantity)
		if err != nil {
			return types.DepthSnapshot{}, err
		}

		asks = append(asks, level)
	}

	if limit > 0 {
		bids = bids[:min(limit, len(bids))]
		asks = asks[:min(limit, len(asks))]
	}

	return types.DepthSnapshot{
		Symbol:       symbol,
		LastUpdateID: res.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
		Timestamp:    time.Now().UnixMilli(),
	}, nil
}

// FetchTrades implements Provider. Binance returns trades oldest first; the
// result is reversed to newest first.
func (c *BinanceClient) FetchTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	service := c.api.NewRecentTradesService().Symbol(ToExchangeSymbol(symbol))
	if limit > 0 {
		service = service.Limit(limit)
	}

	res, err := service.Do(ctx)
	if err != nil {
		return nil, binanceError(err, "failed to fetch trades from Binance")
	}

	trades := make([]types.Trade, 0, len(res))
	for _, t := range res {
		if t == nil {
			continue
		}

		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMalformedResponse, err, "invalid trade price %q", t.Price)
		}

		qty, err := decimal.NewFromString(t.Quantity)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMalformedResponse, err, "invalid trade quantity %q", t.Quantity)
		}

		trades = append(trades, types.Trade{
			ID:           t.ID,
			Price:        price,
			Quantity:     qty,
			Time:         t.Time,
			IsBuyerMaker: t.IsBuyerMaker,
		})
	}

	slices.Reverse(trades)

	return trades, nil
}

// FetchAllTickers implements Provider.
func (c *BinanceClient) FetchAllTickers(ctx context.Context) ([]types.Ticker, error) {
	stats, err := c.api.NewPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, binanceError(err, "failed to fetch tickers from Binance")
	}

	tickers := make([]types.Ticker, 0, len(stats))
	for _, s := range stats {
		if s == nil {
			continue
		}

		ticker, err := convertPriceChangeStats(s)
		if err != nil {
			return nil, err
		}

		tickers = append(tickers, ticker)
	}

	return tickers, nil
}

// binanceInvalidSymbol is the API error code Binance answers unknown symbols with.
const binanceInvalidSymbol = -1121

// binanceError classifies an SDK error. An unknown symbol is reported as
// ErrCodeUnsupportedSymbol, everything else as in errors.FromContext.
func binanceError(err error, message string) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == binanceInvalidSymbol {
		return errors.Wrap(errors.ErrCodeUnsupportedSymbol, message, err)
	}

	return errors.FromContext(err, message)
}

// convertPriceChangeStats converts a Binance 24h ticker into our Ticker.
func convertPriceChangeStats(s *binance.PriceChangeStats) (types.Ticker, error) {
	ticker := types.Ticker{
		Symbol: FromExchangeSymbol(s.Symbol),
		Count:  s.Count,
	}

	fields := []struct {
		name   string
		raw    string
		target *decimal.Decimal
	}{
		{"lastPrice", s.LastPrice, &ticker.LastPrice},
		{"priceChange", s.PriceChange, &ticker.PriceChange},
		{"priceChangePercent", s.PriceChangePercent, &ticker.PriceChangePercent},
		{"volume", s.Volume, &ticker.Volume},
		{"quoteVolume", s.QuoteVolume, &ticker.QuoteVolume},
		{"openPrice", s.OpenPrice, &ticker.OpenPrice},
		{"highPrice", s.HighPrice, &ticker.HighPrice},
		{"lowPrice", s.LowPrice, &ticker.LowPrice},
	}

	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return types.Ticker{}, errors.Wrapf(errors.ErrCodeMalformedResponse, err, "invalid %s %q for %s", f.name, f.raw, s.Symbol)
		}

		*f.target = v
	}

	if s.WeightedAvgPrice != "" {
		v, err := decimal.NewFromString(s.WeightedAvgPrice)
		if err != nil {
			return types.Ticker{}, errors.Wrapf(errors.ErrCodeMalformedResponse, err, "invalid weightedAvgPrice %q", s.WeightedAvgPrice)
		}

		ticker.WeightedAvgPrice = decimal.NewNullDecimal(v)
	}

	return ticker, nil
}

func parseLevel(price, quantity string) (types.PriceLevel, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return types.PriceLevel{}, errors.Wrapf(errors.ErrCodeMalformedResponse, err, "invalid level price %q", price)
	}

	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return types.PriceLevel{}, errors.Wrapf(errors.ErrCodeMalformedResponse, err, "invalid level quantity %q", quantity)
	}

	return types.PriceLevel{Price: p, Quantity: q}, nil
}

// binanceDepthLimit rounds limit up to a value the depth endpoint accepts.
// Ref: https://binance-docs.github.io/apidocs/spot/en/#order-book
func binanceDepthLimit(limit int) int {
	for _, allowed := range []int{5, 10, 20, 50, 100, 500, 1000, 5000} {
		if limit <= allowed {
			return allowed
		}
	}

	return 5000
}

// binanceAPIClientWrapper adapts *binance.Client to BinanceAPIClient.
type binanceAPIClientWrapper struct {
	client *binance.Client
}

func (w *binanceAPIClientWrapper) NewDepthService() BinanceDepthService {
	return &depthServiceWrapper{svc: w.client.NewDepthService()}
}

func (w *binanceAPIClientWrapper) NewPriceChangeStatsService() BinancePriceChangeStatsService {
	return &priceChangeStatsServiceWrapper{svc: w.client.NewListPriceChangeStatsService()}
}

func (w *binanceAPIClientWrapper) NewRecentTradesService() BinanceRecentTradesService {
	return &recentTradesServiceWrapper{svc: w.client.NewRecentTradesService()}
}

type depthServiceWrapper struct {
	svc *binance.DepthService
}

func (w *depthServiceWrapper) Symbol(symbol string) BinanceDepthService {
	w.svc = w.svc.Symbol(symbol)

	return w
}

func (w *depthServiceWrapper) Limit(limit int) BinanceDepthService {
	w.svc = w.svc.Limit(limit)

	return w
}

func (w *depthServiceWrapper) Do(ctx context.Context) (*binance.DepthResponse, error) {
	return w.svc.Do(ctx)
}

type priceChangeStatsServiceWrapper struct {
	svc *binance.ListPriceChangeStatsService
}

func (w *priceChangeStatsServiceWrapper) Symbol(symbol string) BinancePriceChangeStatsService {
	w.svc = w.svc.Symbol(symbol)

	return w
}

func (w *priceChangeStatsServiceWrapper) Do(ctx context.Context) ([]*binance.PriceChangeStats, error) {
	return w.svc.Do(ctx)
}

type recentTradesServiceWrapper struct {
	svc *binance.RecentTradesService
}

func (w *recentTradesServiceWrapper) Symbol(symbol string) BinanceRecentTradesService {
	w.svc = w.svc.Symbol(symbol)

	return w
}

func (w *recentTradesServiceWrapper) Limit(limit int) BinanceRecentTradesService {
	w.svc = w.svc.Limit(limit)

	return w
}

func (w *recentTradesServiceWrapper) Do(ctx context.Context) ([]*binance.Trade, error) {
	return w.svc.Do(ctx)
}

var (
	_ Provider = (*BinanceClient)(nil)
	_ Provider = (*ProxyClient)(nil)
	_ Provider = (*SyntheticClient)(nil)
)
