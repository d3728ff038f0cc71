// Package market owns the in-memory cache of the latest ticker, depth, trades
// and market list for one symbol, and the fallback policy around it.
package market

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/marketboard/internal/depth"
	"github.com/rxtech-lab/marketboard/internal/logger"
	"github.com/rxtech-lab/marketboard/internal/synthetic"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/rxtech-lab/marketboard/pkg/errors"
	"github.com/rxtech-lab/marketboard/pkg/marketdata/provider"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Default configuration values.
const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultDepthLimit   = 20
	DefaultTradeLimit   = 50
	MaxTradeLimit       = 1000
)

// Options configures an Orchestrator.
type Options struct {
	Symbol string
	// Mode ModeMock serves synthetic data only; the provider is never called.
	Mode types.Mode
	// FetchTimeout bounds every provider call.
	FetchTimeout time.Duration
	// DepthLimit is the number of levels per side requested from the provider.
	DepthLimit int
	// TradeLimit is used when FetchTrades is called with a non-positive limit.
	TradeLimit int
	// MaxLevels caps the normalized book. 0 keeps every level.
	MaxLevels int
	// Observer, when set, is told about every provider call.
	Observer FetchObserver
}

// FetchObserver receives the outcome of provider calls.
type FetchObserver interface {
	ObserveFetch(kind types.DataKind, source string, err error, elapsed time.Duration)
}

// Update is delivered to listeners after a value is applied to the cache.
type Update struct {
	Kind types.DataKind `json:"kind"`
	View View           `json:"view"`
}

// Listener is called synchronously after each applied update, in apply
// order. It may read the orchestrator but must not call Fetch, SetSymbol,
// NudgeLastPrice, Quiesce or Close on it.
type Listener func(Update)

// View is a read-only snapshot of the cache.
type View struct {
	Symbol     string                               `json:"symbol"`
	Ticker     optional.Option[types.Ticker]        `json:"ticker"`
	Depth      optional.Option[types.DepthSnapshot] `json:"depth"`
	Book       optional.Option[depth.Book]          `json:"book"`
	Trades     []types.Trade                        `json:"trades"`
	AllTickers []types.Ticker                       `json:"allTickers"`
	State      types.RefreshState                   `json:"state"`
}

// Orchestrator is the single owner of market data state. Fetch methods never
// fail: provider errors are recorded in the refresh state and replaced by
// synthetic data of the same shape.
type Orchestrator struct {
	mu sync.RWMutex
	// applyMu serializes cache writes with listener delivery.
	applyMu sync.Mutex

	source provider.Provider
	gen    *synthetic.Generator
	opts   Options
	log    *logger.Logger
	now    func() time.Time

	symbol   string
	epoch    uint64
	closed   bool
	inflight map[types.DataKind]int

	ticker     optional.Option[types.Ticker]
	depth      optional.Option[types.DepthSnapshot]
	book       optional.Option[depth.Book]
	trades     []types.Trade
	allTickers []types.Ticker
	state      types.RefreshState

	listeners    map[uint64]Listener
	nextListener uint64
}

// NewOrchestrator creates an orchestrator reading from source. In mock mode
// source may be nil. A default generator is created when gen is nil.
func NewOrchestrator(source provider.Provider, gen *synthetic.Generator, opts Options, log *logger.Logger) (*Orchestrator, error) {
	if strings.TrimSpace(opts.Symbol) == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "symbol is required")
	}

	if opts.Mode == "" {
		opts.Mode = types.ModeLive
	}

	if opts.Mode != types.ModeLive && opts.Mode != types.ModeMock {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "unknown mode %q", opts.Mode)
	}

	if gen == nil {
		gen = synthetic.NewGenerator(synthetic.DefaultConfig())
	}

	if opts.Mode == types.ModeMock {
		source = provider.NewSyntheticClient(gen)
	}

	if source == nil {
		return nil, errors.New(errors.ErrCodeInvalidProvider, "a market data provider is required in live mode")
	}

	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}

	if opts.DepthLimit <= 0 {
		opts.DepthLimit = DefaultDepthLimit
	}

	if opts.TradeLimit <= 0 {
		opts.TradeLimit = DefaultTradeLimit
	}

	opts.TradeLimit = min(opts.TradeLimit, MaxTradeLimit)

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Orchestrator{
		mu:           sync.RWMutex{},
		applyMu:      sync.Mutex{},
		source:       source,
		gen:          gen,
		opts:         opts,
		log:          log.Named("market"),
		now:          time.Now,
		symbol:       normalizeSymbol(opts.Symbol),
		epoch:        0,
		closed:       false,
		inflight:     make(map[types.DataKind]int, len(types.AllDataKinds)),
		ticker:       optional.None[types.Ticker](),
		depth:        optional.None[types.DepthSnapshot](),
		book:         optional.None[depth.Book](),
		trades:       nil,
		allTickers:   nil,
		state:        types.RefreshState{Mode: opts.Mode}, //nolint:exhaustruct // zero status until the first fetch
		listeners:    make(map[uint64]Listener),
		nextListener: 0,
	}, nil
}

// SetClock replaces the clock used for status timestamps.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.now = now
}

// Mode returns the data mode.
func (o *Orchestrator) Mode() types.Mode {
	return o.opts.Mode
}

// SourceName returns the name of the provider in use.
func (o *Orchestrator) SourceName() string {
	return o.source.Name()
}

// Symbol returns the configured symbol.
func (o *Orchestrator) Symbol() string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.symbol
}

// SetSymbol switches the configured symbol. Cached symbol-specific values are
// dropped and results of fetches issued for the previous symbol are discarded.
func (o *Orchestrator) SetSymbol(symbol string) error {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return errors.New(errors.ErrCodeInvalidParameter, "symbol must not be empty")
	}

	o.applyMu.Lock()
	defer o.applyMu.Unlock()

	o.mu.Lock()
	if symbol == o.symbol {
		o.mu.Unlock()

		return nil
	}

	o.symbol = symbol
	o.epoch++
	o.ticker = optional.None[types.Ticker]()
	o.depth = optional.None[types.DepthSnapshot]()
	o.book = optional.None[depth.Book]()
	o.trades = nil
	o.log.Info("symbol changed", zap.String("symbol", symbol))
	o.mu.Unlock()

	return nil
}

// Subscribe registers l and returns a function removing it.
func (o *Orchestrator) Subscribe(l Listener) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextListener
	o.nextListener++
	o.listeners[id] = l
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// View returns the current snapshot.
func (o *Orchestrator) View() View {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.viewLocked()
}

// State returns the current refresh state.
func (o *Orchestrator) State() types.RefreshState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.stateLocked()
}

// FetchTicker fetches the ticker of symbol (the configured symbol when empty).
func (o *Orchestrator) FetchTicker(ctx context.Context, symbol string) types.Ticker {
	symbol = o.resolveSymbol(symbol)

	return fetch(ctx, o, types.DataKindTicker, symbol,
		func(ctx context.Context) (types.Ticker, error) {
			return o.source.FetchTicker(ctx, symbol)
		},
		func() types.Ticker {
			return o.gen.Ticker(symbol)
		},
		func(t types.Ticker) {
			o.ticker = optional.Some(t)
		},
	)
}

// FetchDepth fetches the order book of symbol. Empty sides are valid and kept as is.
func (o *Orchestrator) FetchDepth(ctx context.Context, symbol string) types.DepthSnapshot {
	symbol = o.resolveSymbol(symbol)
	limit := o.opts.DepthLimit

	return fetch(ctx, o, types.DataKindDepth, symbol,
		func(ctx context.Context) (types.DepthSnapshot, error) {
			return o.source.FetchDepth(ctx, symbol, limit)
		},
		func() types.DepthSnapshot {
			return o.gen.Depth(symbol, o.fallbackBasePrice(symbol), limit)
		},
		func(d types.DepthSnapshot) {
			o.depth = optional.Some(d)
			o.book = optional.Some(depth.Normalize(d, o.opts.MaxLevels))
		},
	)
}

// FetchTrades fetches at most limit recent trades of symbol, newest first.
// A non-positive limit uses the configured default; limits above
// MaxTradeLimit are capped.
func (o *Orchestrator) FetchTrades(ctx context.Context, symbol string, limit int) []types.Trade {
	symbol = o.resolveSymbol(symbol)
	if limit <= 0 {
		limit = o.opts.TradeLimit
	}

	limit = min(limit, MaxTradeLimit)

	return fetch(ctx, o, types.DataKindTrades, symbol,
		func(ctx context.Context) ([]types.Trade, error) {
			return o.source.FetchTrades(ctx, symbol, limit)
		},
		func() []types.Trade {
			return o.gen.Trades(symbol, o.fallbackBasePrice(symbol), limit)
		},
		func(t []types.Trade) {
			o.trades = t
		},
	)
}

// FetchAllTickers fetches the ticker of every tradable symbol.
func (o *Orchestrator) FetchAllTickers(ctx context.Context) []types.Ticker {
	return fetch(ctx, o, types.DataKindAllTickers, "",
		o.source.FetchAllTickers,
		o.gen.AllTickers,
		func(t []types.Ticker) {
			o.allTickers = t
		},
	)
}

// Fetch runs the fetch of kind for the configured symbol.
func (o *Orchestrator) Fetch(ctx context.Context, kind types.DataKind) {
	switch kind {
	case types.DataKindTicker:
		o.FetchTicker(ctx, "")
	case types.DataKindDepth:
		o.FetchDepth(ctx, "")
	case types.DataKindTrades:
		o.FetchTrades(ctx, "", 0)
	case types.DataKindAllTickers:
		o.FetchAllTickers(ctx)
	default:
		o.log.Warn("ignoring unknown data kind", zap.String("kind", string(kind)))
	}
}

// Refresh starts the fetches of kinds in the background and returns
// immediately. Completion is visible through the loading flags.
func (o *Orchestrator) Refresh(ctx context.Context, kinds ...types.DataKind) {
	for _, kind := range kinds {
		go o.Fetch(ctx, kind)
	}
}

// RefreshAll starts all four fetches in the background.
func (o *Orchestrator) RefreshAll(ctx context.Context) {
	o.Refresh(ctx, types.AllDataKinds...)
}

// RefreshAndWait runs the fetches of kinds concurrently and returns the view
// once all of them have completed.
func (o *Orchestrator) RefreshAndWait(ctx context.Context, kinds ...types.DataKind) View {
	var g errgroup.Group

	for _, kind := range kinds {
		g.Go(func() error {
			o.Fetch(ctx, kind)

			return nil
		})
	}

	// fetches never fail
	_ = g.Wait()

	return o.View()
}

// RefreshAllAndWait runs all four fetches and waits for them.
func (o *Orchestrator) RefreshAllAndWait(ctx context.Context) View {
	return o.RefreshAndWait(ctx, types.AllDataKinds...)
}

// NudgeLastPrice moves the cached ticker's last price by a small random step
// and recomputes the change fields from the open price. Volume, high and low
// are left untouched. It reports whether a ticker was nudged.
func (o *Orchestrator) NudgeLastPrice(ctx context.Context) bool {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()

	o.mu.Lock()
	if o.closed || ctx.Err() != nil || o.ticker.IsNone() {
		o.mu.Unlock()

		return false
	}

	ticker := o.ticker.Unwrap()
	o.ticker = optional.Some(ticker.WithLastPrice(o.gen.Nudge(ticker.LastPrice)))
	view := o.viewLocked()
	listeners := o.listenersLocked()
	o.mu.Unlock()

	notify(listeners, Update{Kind: types.DataKindTicker, View: view})

	return true
}

// Quiesce returns once no cache write or listener delivery is in progress.
// Combined with a cancelled context or Close it guarantees that no further
// write happens.
func (o *Orchestrator) Quiesce() {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()
}

// Close discards every result that resolves from now on and waits for an
// apply in progress. The cached values remain readable.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.Quiesce()
}

// fetch runs one provider call with the fallback policy applied. A fetch
// issued on a done context or a closed orchestrator returns synthetic data
// without touching the cache.
func fetch[T any](
	ctx context.Context,
	o *Orchestrator,
	kind types.DataKind,
	symbol string,
	live func(context.Context) (T, error),
	fallback func() T,
	store func(T),
) T {
	epoch, ok := o.begin(ctx, kind)
	if !ok {
		return fallback()
	}
	defer o.end(kind)

	callCtx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
	start := time.Now()
	value, err := live(callCtx)
	cancel()

	if o.opts.Observer != nil {
		o.opts.Observer.ObserveFetch(kind, o.source.Name(), err, time.Since(start))
	}

	if err != nil {
		err = errors.FromContext(err, fmt.Sprintf("failed to fetch %s", kind))

		fields := []zap.Field{
			zap.String("kind", string(kind)),
			zap.String("symbol", symbol),
			zap.String("source", o.source.Name()),
			zap.Error(err),
		}

		switch {
		case ctx.Err() != nil:
			o.log.Debug("fetch abandoned", fields...)
		case errors.IsSourceFailure(err):
			o.log.Warn("fetch failed, using synthetic data", fields...)
		default:
			// the source answered but refused the request, e.g. an unknown symbol
			o.log.Error("fetch rejected, using synthetic data", fields...)
		}

		value = fallback()
	}

	o.apply(ctx, kind, epoch, err, func() { store(value) })

	return value
}

func (o *Orchestrator) begin(ctx context.Context, kind types.DataKind) (uint64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || ctx.Err() != nil {
		return 0, false
	}

	o.inflight[kind]++

	return o.epoch, true
}

func (o *Orchestrator) end(kind types.DataKind) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.inflight[kind]--
}

// apply writes a fetch result unless it is stale, then notifies listeners.
func (o *Orchestrator) apply(ctx context.Context, kind types.DataKind, epoch uint64, fetchErr error, write func()) bool {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()

	o.mu.Lock()
	if o.closed || ctx.Err() != nil || epoch != o.epoch {
		o.mu.Unlock()
		o.log.Debug("discarding stale result", zap.String("kind", string(kind)))

		return false
	}

	write()

	now := o.now()
	o.state.LastUpdated = now

	switch {
	case fetchErr != nil:
		o.state.LastError = optional.Some(fetchErr.Error())
		o.state.LastErrorAt = optional.Some(now)
		o.state.UsingFallbackData = true
	case o.opts.Mode == types.ModeMock:
		o.state.LastError = optional.None[string]()
		o.state.LastErrorAt = optional.None[time.Time]()
		o.state.UsingFallbackData = true
	default:
		o.state.LastError = optional.None[string]()
		o.state.LastErrorAt = optional.None[time.Time]()
		o.state.UsingFallbackData = false
	}

	view := o.viewLocked()
	listeners := o.listenersLocked()
	o.mu.Unlock()

	notify(listeners, Update{Kind: kind, View: view})

	return true
}

func (o *Orchestrator) viewLocked() View {
	return View{
		Symbol:     o.symbol,
		Ticker:     o.ticker,
		Depth:      o.depth,
		Book:       o.book,
		Trades:     o.trades,
		AllTickers: o.allTickers,
		State:      o.stateLocked(),
	}
}

func (o *Orchestrator) stateLocked() types.RefreshState {
	state := o.state
	state.Loading = types.LoadingFlags{
		Ticker:     o.inflight[types.DataKindTicker] > 0,
		Depth:      o.inflight[types.DataKindDepth] > 0,
		Trades:     o.inflight[types.DataKindTrades] > 0,
		AllTickers: o.inflight[types.DataKindAllTickers] > 0,
	}

	return state
}

func (o *Orchestrator) listenersLocked() []Listener {
	ids := slices.Sorted(maps.Keys(o.listeners))
	listeners := make([]Listener, 0, len(ids))

	for _, id := range ids {
		listeners = append(listeners, o.listeners[id])
	}

	return listeners
}

func (o *Orchestrator) resolveSymbol(symbol string) string {
	if symbol = normalizeSymbol(symbol); symbol != "" {
		return symbol
	}

	return o.Symbol()
}

// fallbackBasePrice anchors synthetic depth and trades on the cached last
// price so a fallback does not jump away from the live market.
func (o *Orchestrator) fallbackBasePrice(symbol string) decimal.Decimal {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.ticker.IsSome() {
		if t := o.ticker.Unwrap(); t.Symbol == symbol && t.LastPrice.IsPositive() {
			return t.LastPrice
		}
	}

	return o.gen.BasePrice(symbol)
}

func notify(listeners []Listener, update Update) {
	for _, l := range listeners {
		l(update)
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
