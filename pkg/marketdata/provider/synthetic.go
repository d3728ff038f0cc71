package provider

import (
	"context"

	"github.com/rxtech-lab/marketboard/internal/synthetic"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/rxtech-lab/marketboard/pkg/errors"
	"github.com/shopspring/decimal"
)

// SyntheticClient serves generator output through the Provider interface.
// It never fails unless ctx is already done.
type SyntheticClient struct {
	gen *synthetic.Generator
}

// NewSyntheticClient wraps gen.
func NewSyntheticClient(gen *synthetic.Generator) *SyntheticClient {
	return &SyntheticClient{gen: gen}
}

// Name implements Provider.
func (c *SyntheticClient) Name() string {
	return string(ProviderSynthetic)
}

// Generator returns the wrapped generator.
func (c *SyntheticClient) Generator() *synthetic.Generator {
	return c.gen
}

// FetchTicker implements Provider.
func (c *SyntheticClient) FetchTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	if err := ctx.Err(); err != nil {
		return types.Ticker{}, errors.FromContext(err, "synthetic ticker")
	}

	return c.gen.Ticker(symbol), nil
}

// FetchDepth implements Provider.
func (c *SyntheticClient) FetchDepth(ctx context.Context, symbol string, limit int) (types.DepthSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return types.DepthSnapshot{}, errors.FromContext(err, "synthetic depth")
	}

	return c.gen.Depth(symbol, decimal.Zero, limit), nil
}

// FetchTrades implements Provider.
func (c *SyntheticClient) FetchTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(err, "synthetic trades")
	}

	return c.gen.Trades(symbol, decimal.Zero, limit), nil
}

// FetchAllTickers implements Provider.
func (c *SyntheticClient) FetchAllTickers(ctx context.Context) ([]types.Ticker, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(err, "synthetic tickers")
	}

	return c.gen.AllTickers(), nil
}
