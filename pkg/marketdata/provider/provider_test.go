package provider_test

import (
	"context"
	"testing"

	"github.com/rxtech-lab/marketboard/internal/synthetic"
	"github.com/rxtech-lab/marketboard/pkg/errors"
	"github.com/rxtech-lab/marketboard/pkg/marketdata/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMarketDataProvider(t *testing.T) {
	tests := []struct {
		name         string
		providerType provider.ProviderType
		config       provider.Config
		expectedName string
		expectError  bool
	}{
		{
			name:         "proxy",
			providerType: provider.ProviderProxy,
			config:       provider.Config{Proxy: provider.ProxyConfig{BaseURL: "http://localhost:3001/api/market"}},
			expectedName: "proxy",
		},
		{
			name:         "proxy without url",
			providerType: provider.ProviderProxy,
			expectError:  true,
		},
		{
			name:         "binance",
			providerType: provider.ProviderBinance,
			expectedName: "binance",
		},
		{
			name:         "synthetic",
			providerType: provider.ProviderSynthetic,
			expectedName: "synthetic",
		},
		{
			name:         "unknown",
			providerType: provider.ProviderType("polygon"),
			expectError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := provider.NewMarketDataProvider(tt.providerType, tt.config)
			if tt.expectError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedName, p.Name())
		})
	}
}

func TestSymbolConversion(t *testing.T) {
	assert.Equal(t, "BTCUSDT", provider.ToExchangeSymbol("BTC-USDT"))
	assert.Equal(t, "ETHBTC", provider.ToExchangeSymbol("eth/btc"))
	assert.Equal(t, "BTC-USDT", provider.FromExchangeSymbol("BTCUSDT"))
	assert.Equal(t, "ETH-BTC", provider.FromExchangeSymbol("ETHBTC"))
	assert.Equal(t, "SOL-FDUSD", provider.FromExchangeSymbol("SOLFDUSD"))
	assert.Equal(t, "BTC-USDT", provider.FromExchangeSymbol("BTC-USDT"))
	assert.Equal(t, "XYZ", provider.FromExchangeSymbol("XYZ"))
}

func TestSyntheticClient(t *testing.T) {
	client := provider.NewSyntheticClient(synthetic.NewGenerator(synthetic.DefaultConfig()))
	ctx := context.Background()

	ticker, err := client.FetchTicker(ctx, "SOL-USDT")
	require.NoError(t, err)
	assert.Equal(t, "SOL-USDT", ticker.Symbol)

	snapshot, err := client.FetchDepth(ctx, "SOL-USDT", 3)
	require.NoError(t, err)
	assert.Len(t, snapshot.Asks, 3)

	trades, err := client.FetchTrades(ctx, "SOL-USDT", 4)
	require.NoError(t, err)
	assert.Len(t, trades, 4)

	tickers, err := client.FetchAllTickers(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tickers)

	canceled, cancel := context.WithCancel(ctx)
	cancel()

	_, err = client.FetchTicker(canceled, "SOL-USDT")
	assert.True(t, errors.HasCode(err, errors.ErrCodeCanceled))
}
