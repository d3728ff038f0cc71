// Package synthetic produces ticker, depth and trade payloads shaped exactly
// like the live source. It backs both mock mode and the fallback path.
package synthetic

import (
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/shopspring/decimal"
)

// Config configures how synthetic data is generated.
type Config struct {
	// Seed makes output reproducible for a given call sequence.
	Seed int64 `yaml:"seed" json:"seed" jsonschema:"title=Seed,description=Random seed for synthetic data"`
	// BasePrices maps a base asset (BTC, ETH, ...) to its reference price.
	BasePrices map[string]float64 `yaml:"base_prices" json:"base_prices" validate:"dive,gt=0"`
	// Symbols is the universe returned by AllTickers.
	Symbols []string `yaml:"symbols" json:"symbols" validate:"dive,required"`
	// Volatility is the max relative distance of open/last from the base price.
	Volatility float64 `yaml:"volatility" json:"volatility" validate:"gte=0,lt=1"`
	// RangeEpsilon widens high/low beyond the open/last range.
	RangeEpsilon float64 `yaml:"range_epsilon" json:"range_epsilon" validate:"gt=0,lt=1"`
	// DepthLevels is used when a caller asks for a non-positive level count.
	DepthLevels int `yaml:"depth_levels" json:"depth_levels" validate:"gte=1"`
	// MaxStepTicks bounds the price gap between neighbouring levels, in ticks.
	MaxStepTicks int `yaml:"max_step_ticks" json:"max_step_ticks" validate:"gte=1"`
	// TradeJitter is the max relative distance of trade prices from the base price.
	TradeJitter float64 `yaml:"trade_jitter" json:"trade_jitter" validate:"gte=0,lt=1"`
	// NudgeFactor is the max relative move applied by Nudge.
	NudgeFactor float64 `yaml:"nudge_factor" json:"nudge_factor" validate:"gte=0,lt=1"`
	// Notional is the typical quote value of one book level or trade.
	Notional float64 `yaml:"notional" json:"notional" validate:"gt=0"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Seed: 42,
		BasePrices: map[string]float64{
			"BTC":  99000,
			"ETH":  3000,
			"SOL":  200,
			"BNB":  600,
			"XRP":  2.2,
			"DOGE": 0.30,
			"TON":  3.90,
		},
		Symbols:      []string{"BTC-USDT", "ETH-USDT", "SOL-USDT", "BNB-USDT", "XRP-USDT", "DOGE-USDT", "TON-USDT"},
		Volatility:   0.02,
		RangeEpsilon: 0.005,
		DepthLevels:  20,
		MaxStepTicks: 5,
		TradeJitter:  0.001,
		NudgeFactor:  0.0005,
		Notional:     5000,
	}
}

// DefaultTradeCount is used when Trades is asked for a non-positive count.
const DefaultTradeCount = 50

// Generator is safe for concurrent use.
type Generator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	config    Config
	now       func() time.Time
	tradeSeq  int64
	updateSeq int64
}

// NewGenerator creates a Generator. Zero-valued tuning fields fall back to DefaultConfig.
func NewGenerator(config Config) *Generator {
	defaults := DefaultConfig()

	if config.BasePrices == nil {
		config.BasePrices = defaults.BasePrices
	}

	if len(config.Symbols) == 0 {
		config.Symbols = defaults.Symbols
	}

	if config.RangeEpsilon <= 0 {
		config.RangeEpsilon = defaults.RangeEpsilon
	}

	if config.DepthLevels <= 0 {
		config.DepthLevels = defaults.DepthLevels
	}

	if config.MaxStepTicks <= 0 {
		config.MaxStepTicks = defaults.MaxStepTicks
	}

	if config.Notional <= 0 {
		config.Notional = defaults.Notional
	}

	return &Generator{
		mu:        sync.Mutex{},
		rng:       rand.New(rand.NewSource(config.Seed)), //nolint:gosec // not used for security
		config:    config,
		now:       time.Now,
		tradeSeq:  0,
		updateSeq: 0,
	}
}

// SetClock replaces the time source used for timestamps.
func (g *Generator) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.now = now
}

// Symbols returns the universe used by AllTickers.
func (g *Generator) Symbols() []string {
	return append([]string(nil), g.config.Symbols...)
}

// BasePrice returns the reference price for symbol. Symbols without a
// configured base asset get a stable price derived from the symbol name.
func (g *Generator) BasePrice(symbol string) decimal.Decimal {
	asset := BaseAsset(symbol)
	if price, ok := g.config.BasePrices[asset]; ok {
		return decimal.NewFromFloat(price)
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToUpper(symbol)))

	// [1, 1000)
	return decimal.New(int64(h.Sum32()%99900)+100, -2)
}

// Ticker returns a ticker around the symbol's base price.
// high = max(open, last)*(1+e) and low = min(open, last)*(1-e).
func (g *Generator) Ticker(symbol string) types.Ticker {
	base := g.BasePrice(symbol).InexactFloat64()
	places := pricePlaces(base)

	g.mu.Lock()
	defer g.mu.Unlock()

	open := base * (1 + g.jitter(g.config.Volatility))
	last := base * (1 + g.jitter(g.config.Volatility))
	high := math.Max(open, last) * (1 + g.config.RangeEpsilon*(1+g.rng.Float64()))
	low := math.Min(open, last) * (1 - g.config.RangeEpsilon*(1+g.rng.Float64()))

	// every price is at least one tick, so sub-tick bases and wide ranges stay positive
	tick := decimal.New(1, -places)
	openD := decimal.Max(tick, decimal.NewFromFloat(open).Round(places))
	lastD := decimal.Max(tick, decimal.NewFromFloat(last).Round(places))
	highD := decimal.Max(openD, lastD, decimal.NewFromFloat(high).RoundCeil(places))
	lowD := decimal.Max(tick, decimal.Min(openD, lastD, decimal.NewFromFloat(low).RoundFloor(places)))
	weighted := highD.Add(lowD).Add(lastD).Div(decimal.NewFromInt(3)).Round(places)

	volume := decimal.NewFromFloat(g.config.Notional * 200 / base * (0.5 + g.rng.Float64())).Round(4)
	change := lastD.Sub(openD)

	changePercent := decimal.Zero
	if !openD.IsZero() {
		changePercent = change.Div(openD).Mul(decimal.NewFromInt(100)).Round(3)
	}

	return types.Ticker{
		Symbol:             symbol,
		LastPrice:          lastD,
		PriceChange:        change,
		PriceChangePercent: changePercent,
		Volume:             volume,
		QuoteVolume:        volume.Mul(weighted).Round(2),
		OpenPrice:          openD,
		HighPrice:          highD,
		LowPrice:           lowD,
		Count:              int64(1000 + g.rng.Intn(50000)),
		WeightedAvgPrice:   decimal.NewNullDecimal(weighted),
	}
}

// AllTickers returns one ticker per configured symbol.
func (g *Generator) AllTickers() []types.Ticker {
	tickers := make([]types.Ticker, 0, len(g.config.Symbols))
	for _, symbol := range g.config.Symbols {
		tickers = append(tickers, g.Ticker(symbol))
	}

	return tickers
}

// Depth returns a book around basePrice with levels entries per side.
// Bids strictly descend, asks strictly ascend and both sides have at least
// one level. A non-positive basePrice uses the symbol's reference price.
func (g *Generator) Depth(symbol string, basePrice decimal.Decimal, levels int) types.DepthSnapshot {
	if !basePrice.IsPositive() {
		basePrice = g.BasePrice(symbol)
	}

	if levels <= 0 {
		levels = g.config.DepthLevels
	}

	places := pricePlaces(basePrice.InexactFloat64())
	tick := decimal.New(1, -places)
	mid := basePrice.Round(places)

	g.mu.Lock()
	defer g.mu.Unlock()

	half := tick.Mul(decimal.NewFromInt(int64(1 + g.rng.Intn(3))))
	bestBid := mid.Sub(half)
	bestAsk := mid.Add(half)

	if !bestBid.IsPositive() {
		bestBid = tick
		bestAsk = tick.Add(half.Mul(decimal.NewFromInt(2)))
	}

	bids := make([]types.PriceLevel, 0, levels)
	price := bestBid
	for i := 0; i < levels && price.IsPositive(); i++ {
		bids = append(bids, types.PriceLevel{Price: price, Quantity: g.levelQuantity(basePrice)})
		price = price.Sub(g.step(tick))
	}

	asks := make([]types.PriceLevel, 0, levels)
	price = bestAsk
	for i := 0; i < levels; i++ {
		asks = append(asks, types.PriceLevel{Price: price, Quantity: g.levelQuantity(basePrice)})
		price = price.Add(g.step(tick))
	}

	g.updateSeq++

	return types.DepthSnapshot{
		Symbol:       symbol,
		LastUpdateID: g.updateSeq,
		Bids:         bids,
		Asks:         asks,
		Timestamp:    g.now().UnixMilli(),
	}
}

// Trades returns count trades around basePrice, newest first, with strictly
// decreasing timestamps and ids. A non-positive count uses DefaultTradeCount.
func (g *Generator) Trades(symbol string, basePrice decimal.Decimal, count int) []types.Trade {
	if !basePrice.IsPositive() {
		basePrice = g.BasePrice(symbol)
	}

	if count <= 0 {
		count = DefaultTradeCount
	}

	base := basePrice.InexactFloat64()
	places := pricePlaces(base)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.tradeSeq += int64(count)
	id := g.tradeSeq
	ts := g.now().UnixMilli()

	trades := make([]types.Trade, 0, count)
	for i := 0; i < count; i++ {
		price := decimal.NewFromFloat(base * (1 + g.jitter(g.config.TradeJitter))).Round(places)
		if !price.IsPositive() {
			price = basePrice
		}

		trades = append(trades, types.Trade{
			ID:           id,
			Price:        price,
			Quantity:     g.levelQuantity(basePrice),
			Time:         ts,
			IsBuyerMaker: g.rng.Intn(2) == 0,
		})

		id--
		ts -= int64(1 + g.rng.Intn(1500))
	}

	return trades
}

// Nudge moves price by a small random relative delta bounded by NudgeFactor.
func (g *Generator) Nudge(price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return price
	}

	places := pricePlaces(price.InexactFloat64())

	g.mu.Lock()
	delta := g.jitter(g.config.NudgeFactor)
	g.mu.Unlock()

	next := price.Mul(decimal.NewFromFloat(1 + delta)).Round(places)
	if !next.IsPositive() {
		return price
	}

	return next
}

// BaseAsset extracts the base asset from BTC-USDT, BTC/USDT, BTC_USDT or BTCUSDT.
func BaseAsset(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))

	if i := strings.IndexAny(s, "-/_"); i > 0 {
		return s[:i]
	}

	for _, quote := range []string{"USDT", "USDC", "BUSD", "FDUSD", "USD", "EUR", "BTC", "ETH"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return strings.TrimSuffix(s, quote)
		}
	}

	return s
}

// jitter returns a uniform value in [-bound, bound). Callers hold g.mu.
func (g *Generator) jitter(bound float64) float64 {
	return (g.rng.Float64()*2 - 1) * bound
}

// step is a positive whole number of ticks. Callers hold g.mu.
func (g *Generator) step(tick decimal.Decimal) decimal.Decimal {
	return tick.Mul(decimal.NewFromInt(int64(1 + g.rng.Intn(g.config.MaxStepTicks))))
}

// levelQuantity is always positive. Callers hold g.mu.
func (g *Generator) levelQuantity(basePrice decimal.Decimal) decimal.Decimal {
	scale := g.config.Notional / basePrice.InexactFloat64()
	qty := decimal.NewFromFloat(scale * (0.05 + g.rng.Float64()*2)).Round(4)

	if !qty.IsPositive() {
		return decimal.New(1, -4)
	}

	return qty
}

// pricePlaces keeps about six significant digits.
func pricePlaces(price float64) int32 {
	if price <= 0 {
		return 2
	}

	places := 5 - int32(math.Floor(math.Log10(price)))

	return max(0, min(8, places))
}
