package provider

import (
	"strings"
)

// knownQuotes are tried longest first when splitting an exchange symbol.
var knownQuotes = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "USD", "EUR", "TRY", "BTC", "ETH", "BNB"}

// ToExchangeSymbol converts BTC-USDT (or BTC/USDT, btc_usdt) to BTCUSDT.
func ToExchangeSymbol(symbol string) string {
	replacer := strings.NewReplacer("-", "", "/", "", "_", "", " ", "")

	return strings.ToUpper(replacer.Replace(symbol))
}

// FromExchangeSymbol converts BTCUSDT to BTC-USDT. Symbols whose quote asset
// is not recognised are returned unchanged.
func FromExchangeSymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	if strings.Contains(s, "-") {
		return s
	}

	for _, quote := range knownQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return strings.TrimSuffix(s, quote) + "-" + quote
		}
	}

	return s
}
