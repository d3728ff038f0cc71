package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rxtech-lab/marketboard/internal/synthetic"
	"github.com/rxtech-lab/marketboard/internal/types"
)

// ProviderType defines the type of market data provider.
type ProviderType string

const (
	// ProviderProxy talks to the dashboard backend proxy.
	ProviderProxy ProviderType = "proxy"
	// ProviderBinance talks to the Binance public REST API directly.
	ProviderBinance ProviderType = "binance"
	// ProviderSynthetic serves generated data.
	ProviderSynthetic ProviderType = "synthetic"
)

// Provider is a source of market data. Implementations return coded errors
// from pkg/errors so callers can tell transport failures from malformed payloads.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// FetchTicker returns the 24h ticker of symbol.
	FetchTicker(ctx context.Context, symbol string) (types.Ticker, error)
	// FetchDepth returns an order book snapshot with at most limit levels per side.
	FetchDepth(ctx context.Context, symbol string, limit int) (types.DepthSnapshot, error)
	// FetchTrades returns at most limit recent trades, newest first.
	FetchTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error)
	// FetchAllTickers returns the ticker of every tradable symbol.
	FetchAllTickers(ctx context.Context) ([]types.Ticker, error)
}

// Config holds the settings of every provider type. Only the section of the
// selected type is read.
type Config struct {
	Proxy   ProxyConfig   `yaml:"proxy" json:"proxy"`
	Binance BinanceConfig `yaml:"binance" json:"binance"`
	// Generator backs ProviderSynthetic. A default generator is created when nil.
	Generator *synthetic.Generator `yaml:"-" json:"-"`
}

// ProxyConfig configures the proxy provider.
type ProxyConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url" validate:"omitempty,url" jsonschema:"title=Base URL,description=Base URL of the market data proxy"`
	// Timeout bounds a single HTTP request. The orchestrator applies its own deadline on top.
	Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"type=string,title=Timeout"`
	// APIVersion is the contract version the proxy must be compatible with.
	APIVersion string `yaml:"api_version" json:"api_version"`
}

// BinanceConfig configures the Binance provider.
type BinanceConfig struct {
	// BaseURL overrides the REST endpoint, e.g. for a mock server.
	BaseURL string `yaml:"base_url" json:"base_url" validate:"omitempty,url"`
}

// NewMarketDataProvider creates a new market data provider based on the provider type.
func NewMarketDataProvider(providerType ProviderType, config Config) (Provider, error) {
	switch providerType {
	case ProviderProxy:
		client, err := NewProxyClient(config.Proxy)
		if err != nil {
			return nil, err
		}

		return client, nil
	case ProviderBinance:
		client, err := NewBinanceClient(config.Binance)
		if err != nil {
			return nil, err
		}

		return client, nil
	case ProviderSynthetic:
		gen := config.Generator
		if gen == nil {
			gen = synthetic.NewGenerator(synthetic.DefaultConfig())
		}

		return NewSyntheticClient(gen), nil
	default:
		return nil, fmt.Errorf("unsupported market data provider: %s", providerType)
	}
}
