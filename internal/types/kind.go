package types

import "github.com/rxtech-lab/marketboard/pkg/errors"

// DataKind identifies one of the independently fetched market data values.
type DataKind string

const (
	DataKindTicker     DataKind = "ticker"
	DataKindDepth      DataKind = "depth"
	DataKindTrades     DataKind = "trades"
	DataKindAllTickers DataKind = "all_tickers"
)

// AllDataKinds lists every kind in refresh order.
var AllDataKinds = []DataKind{DataKindTicker, DataKindDepth, DataKindTrades, DataKindAllTickers}

// ParseDataKind converts a string into a DataKind.
func ParseDataKind(s string) (DataKind, error) {
	for _, k := range AllDataKinds {
		if string(k) == s {
			return k, nil
		}
	}

	return "", errors.Newf(errors.ErrCodeInvalidParameter, "unknown data kind %q", s)
}

// Mode selects where the orchestrator gets its data from.
type Mode string

const (
	// ModeLive fetches from the configured provider and falls back to synthetic data on failure.
	ModeLive Mode = "live"
	// ModeMock serves synthetic data only.
	ModeMock Mode = "mock"
)
