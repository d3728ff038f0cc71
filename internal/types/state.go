package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// LoadingFlags holds the in-flight flag of every data kind.
type LoadingFlags struct {
	Ticker     bool `json:"ticker"`
	Depth      bool `json:"depth"`
	Trades     bool `json:"trades"`
	AllTickers bool `json:"allTickers"`
}

// Get returns the flag for kind.
func (l LoadingFlags) Get(kind DataKind) bool {
	switch kind {
	case DataKindTicker:
		return l.Ticker
	case DataKindDepth:
		return l.Depth
	case DataKindTrades:
		return l.Trades
	case DataKindAllTickers:
		return l.AllTickers
	default:
		return false
	}
}

// Any reports whether any kind is in flight.
func (l LoadingFlags) Any() bool {
	return l.Ticker || l.Depth || l.Trades || l.AllTickers
}

// RefreshState is the status channel of the orchestrator.
type RefreshState struct {
	Mode    Mode         `json:"mode"`
	Loading LoadingFlags `json:"loading"`
	// LastError is None after a successful live fetch and in mock mode.
	LastError   optional.Option[string]    `json:"lastError"`
	LastErrorAt optional.Option[time.Time] `json:"lastErrorAt"`
	// LastUpdated is the time the cache last received a value. Zero until the first fetch lands.
	LastUpdated       time.Time `json:"lastUpdated"`
	UsingFallbackData bool      `json:"usingFallbackData"`
}

// Connected reports whether the latest applied data came from the live source.
func (s RefreshState) Connected() bool {
	return !s.UsingFallbackData && !s.LastUpdated.IsZero()
}

// FallbackReason explains why synthetic data is shown, or returns None when it is not.
func (s RefreshState) FallbackReason() optional.Option[string] {
	if !s.UsingFallbackData {
		return optional.None[string]()
	}

	if s.LastError.IsSome() {
		return optional.Some("using demo data because live data is unavailable")
	}

	return optional.Some("using demo data (mock mode)")
}
