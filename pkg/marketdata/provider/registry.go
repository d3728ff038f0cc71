package provider

import (
	"encoding/json"
	"sort"

	"github.com/rxtech-lab/marketboard/pkg/errors"
	"github.com/rxtech-lab/marketboard/pkg/utils"
)

// ProviderInfo contains metadata about a market data provider.
type ProviderInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	// RequiresBaseURL is true when the provider cannot run without providers.<name>.base_url.
	RequiresBaseURL bool `json:"requiresBaseUrl"`
}

var providerRegistry = map[ProviderType]ProviderInfo{
	ProviderProxy: {
		Name:            string(ProviderProxy),
		DisplayName:     "Market data proxy",
		Description:     "Dashboard backend proxy serving ticker, depth, trades and the market list as JSON envelopes",
		RequiresBaseURL: true,
	},
	ProviderBinance: {
		Name:            string(ProviderBinance),
		DisplayName:     "Binance",
		Description:     "Binance public REST API, no credentials needed",
		RequiresBaseURL: false,
	},
	ProviderSynthetic: {
		Name:            string(ProviderSynthetic),
		DisplayName:     "Synthetic",
		Description:     "Generated data shaped like the live sources",
		RequiresBaseURL: false,
	},
}

// GetSupportedProviders returns the names of all providers, sorted.
func GetSupportedProviders() []string {
	providers := make([]string, 0, len(providerRegistry))
	for providerType := range providerRegistry {
		providers = append(providers, string(providerType))
	}

	sort.Strings(providers)

	return providers
}

// GetProviderInfo returns metadata for a specific provider.
func GetProviderInfo(providerName string) (ProviderInfo, error) {
	info, exists := providerRegistry[ProviderType(providerName)]
	if !exists {
		return ProviderInfo{}, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported provider: %s", providerName)
	}

	return info, nil
}

// GetConfigSchema returns the JSON schema of a provider's configuration section.
func GetConfigSchema(providerName string) (string, error) {
	switch ProviderType(providerName) {
	case ProviderProxy:
		//nolint:exhaustruct // Empty struct is intentional for schema generation
		return utils.GetSchemaFromConfig(ProxyConfig{}, "proxy-provider-config")
	case ProviderBinance:
		//nolint:exhaustruct // Empty struct is intentional for schema generation
		return utils.GetSchemaFromConfig(BinanceConfig{}, "binance-provider-config")
	case ProviderSynthetic:
		return `{"type":"object","title":"synthetic-provider-config","additionalProperties":false}`, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidProvider, "unsupported provider: %s", providerName)
	}
}

// ParseConfig parses the JSON configuration section of providerName into a Config.
func ParseConfig(providerName string, jsonConfig string) (Config, error) {
	var config Config

	var target any

	switch ProviderType(providerName) {
	case ProviderProxy:
		target = &config.Proxy
	case ProviderBinance:
		target = &config.Binance
	case ProviderSynthetic:
		return config, nil
	default:
		return config, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported provider: %s", providerName)
	}

	if err := json.Unmarshal([]byte(jsonConfig), target); err != nil {
		return config, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse %s config", providerName)
	}

	return config, nil
}
