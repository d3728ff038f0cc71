// Package mockproxy provides an in-process market data proxy for tests and demos.
//
// It serves the proxy JSON contract (/ticker, /depth, /trades, /all-tickers)
// and the matching Binance public REST endpoints (/api/v3/...) from a
// synthetic generator, with per-endpoint fault injection.
package mockproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rxtech-lab/marketboard/internal/synthetic"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/rxtech-lab/marketboard/internal/version"
	"github.com/rxtech-lab/marketboard/pkg/marketdata/provider"
	"github.com/shopspring/decimal"
)

// Endpoint names a data endpoint. Faults and delays are set per endpoint and
// apply to both the proxy and the Binance routes serving that data.
type Endpoint string

const (
	EndpointTicker     Endpoint = "ticker"
	EndpointDepth      Endpoint = "depth"
	EndpointTrades     Endpoint = "trades"
	EndpointAllTickers Endpoint = "all-tickers"
)

// Fault is an injected failure.
type Fault string

const (
	FaultNone Fault = ""
	// FaultHTTPError answers 502 with an error envelope.
	FaultHTTPError Fault = "http_error"
	// FaultUnsuccessful answers 200 with success=false.
	FaultUnsuccessful Fault = "unsuccessful"
	// FaultMalformed answers 200 with a body that is not JSON.
	FaultMalformed Fault = "malformed"
	// FaultWrongShape answers 200 with success=true and data of the wrong type.
	FaultWrongShape Fault = "wrong_shape"
)

// envelope is the proxy response body.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Server is a mock market data proxy.
type Server struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener
	router     *mux.Router

	gen        *synthetic.Generator
	faults     map[Endpoint]Fault
	delays     map[Endpoint]time.Duration
	requests   map[Endpoint]int
	apiVersion string
	prices     map[string]decimal.Decimal
}

// New creates a server backed by gen. A default generator is used when gen is nil.
func New(gen *synthetic.Generator) *Server {
	if gen == nil {
		gen = synthetic.NewGenerator(synthetic.DefaultConfig())
	}

	s := &Server{
		mu:         sync.RWMutex{},
		httpServer: nil,
		listener:   nil,
		router:     mux.NewRouter(),
		gen:        gen,
		faults:     make(map[Endpoint]Fault),
		delays:     make(map[Endpoint]time.Duration),
		requests:   make(map[Endpoint]int),
		apiVersion: version.ProxyAPIVersion,
		prices:     make(map[string]decimal.Decimal),
	}

	s.router.HandleFunc("/ticker", s.handleTicker).Methods(http.MethodGet)
	s.router.HandleFunc("/depth", s.handleDepth).Methods(http.MethodGet)
	s.router.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
	s.router.HandleFunc("/all-tickers", s.handleAllTickers).Methods(http.MethodGet)

	s.router.HandleFunc("/api/v3/ticker/24hr", s.handleBinanceTicker).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v3/depth", s.handleBinanceDepth).Methods(http.MethodGet)
	// go-binance requests recent trades from the v1 path
	s.router.HandleFunc("/api/v1/trades", s.handleBinanceTrades).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v3/trades", s.handleBinanceTrades).Methods(http.MethodGet)

	return s
}

// Handler returns the router, e.g. for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on address (":0" picks a free port) and serves in the background.
func (s *Server) Start(address string) error {
	if address == "" {
		address = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	go func() {
		_ = srv.Serve(listener)
	}()

	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(ctx)
}

// BaseURL returns http://host:port of a started server.
func (s *Server) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return ""
	}

	return "http://" + s.listener.Addr().String()
}

// SetFault injects fault into endpoint. FaultNone clears it.
func (s *Server) SetFault(endpoint Endpoint, fault Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults[endpoint] = fault
}

// SetDelay delays every response of endpoint by d.
func (s *Server) SetDelay(endpoint Endpoint, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delays[endpoint] = d
}

// SetAPIVersion changes the advertised contract version. Empty omits the header.
func (s *Server) SetAPIVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apiVersion = v
}

// SetPrice pins the base price used for symbol.
func (s *Server) SetPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[strings.ToUpper(provider.FromExchangeSymbol(symbol))] = price
}

// Requests returns how many requests endpoint has received.
func (s *Server) Requests(endpoint Endpoint) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.requests[endpoint]
}

// Reset clears faults, delays, pinned prices and counters.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults = make(map[Endpoint]Fault)
	s.delays = make(map[Endpoint]time.Duration)
	s.requests = make(map[Endpoint]int)
	s.prices = make(map[string]decimal.Decimal)
	s.apiVersion = version.ProxyAPIVersion
}

// begin records the request, waits out any delay and returns the active fault.
// ok is false when the client went away during the delay.
func (s *Server) begin(w http.ResponseWriter, r *http.Request, endpoint Endpoint) (fault Fault, ok bool) {
	s.mu.Lock()
	s.requests[endpoint]++
	fault = s.faults[endpoint]
	delay := s.delays[endpoint]
	apiVersion := s.apiVersion
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-r.Context().Done():
			return fault, false
		}
	}

	if apiVersion != "" {
		w.Header().Set(provider.APIVersionHeader, apiVersion)
	}

	return fault, true
}

func (s *Server) basePrice(symbol string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if price, ok := s.prices[strings.ToUpper(symbol)]; ok {
		return price
	}

	return decimal.Zero
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	fault, ok := s.begin(w, r, EndpointTicker)
	if !ok {
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Error: "symbol is required"})
		return
	}

	if writeFault(w, fault, "ticker") {
		return
	}

	writeEnvelope(w, http.StatusOK, envelope{Success: true, Data: s.ticker(symbol)})
}

// ticker generates a ticker for symbol, moved to its pinned price if any.
func (s *Server) ticker(symbol string) types.Ticker {
	ticker := s.gen.Ticker(symbol)
	if price := s.basePrice(symbol); price.IsPositive() {
		ticker = ticker.WithLastPrice(price)
	}

	return ticker
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	fault, ok := s.begin(w, r, EndpointDepth)
	if !ok {
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Error: "symbol is required"})
		return
	}

	if writeFault(w, fault, "depth") {
		return
	}

	limit := queryInt(r, "limit", 20)
	writeEnvelope(w, http.StatusOK, envelope{Success: true, Data: s.gen.Depth(symbol, s.basePrice(symbol), limit)})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	fault, ok := s.begin(w, r, EndpointTrades)
	if !ok {
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Error: "symbol is required"})
		return
	}

	if writeFault(w, fault, "trades") {
		return
	}

	limit := queryInt(r, "limit", synthetic.DefaultTradeCount)
	writeEnvelope(w, http.StatusOK, envelope{Success: true, Data: s.gen.Trades(symbol, s.basePrice(symbol), limit)})
}

func (s *Server) handleAllTickers(w http.ResponseWriter, r *http.Request) {
	fault, ok := s.begin(w, r, EndpointAllTickers)
	if !ok {
		return
	}

	if writeFault(w, fault, "all-tickers") {
		return
	}

	writeEnvelope(w, http.StatusOK, envelope{Success: true, Data: s.gen.AllTickers()})
}

// binanceTicker mirrors the /api/v3/ticker/24hr payload.
type binanceTicker struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	WeightedAvgPrice   string `json:"weightedAvgPrice"`
	LastPrice          string `json:"lastPrice"`
	OpenPrice          string `json:"openPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	Count              int64  `json:"count"`
}

// binanceTrade mirrors the recent trades payload.
type binanceTrade struct {
	ID           int64  `json:"id"`
	Price        string `json:"price"`
	Quantity     string `json:"qty"`
	QuoteQty     string `json:"quoteQty"`
	Time         int64  `json:"time"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
	IsBestMatch  bool   `json:"isBestMatch"`
}

func toBinanceTicker(t types.Ticker) binanceTicker {
	weighted := ""
	if t.WeightedAvgPrice.Valid {
		weighted = t.WeightedAvgPrice.Decimal.String()
	}

	return binanceTicker{
		Symbol:             provider.ToExchangeSymbol(t.Symbol),
		PriceChange:        t.PriceChange.String(),
		PriceChangePercent: t.PriceChangePercent.String(),
		WeightedAvgPrice:   weighted,
		LastPrice:          t.LastPrice.String(),
		OpenPrice:          t.OpenPrice.String(),
		HighPrice:          t.HighPrice.String(),
		LowPrice:           t.LowPrice.String(),
		Volume:             t.Volume.String(),
		QuoteVolume:        t.QuoteVolume.String(),
		Count:              t.Count,
	}
}

func (s *Server) handleBinanceTicker(w http.ResponseWriter, r *http.Request) {
	fault, ok := s.begin(w, r, EndpointTicker)
	if !ok {
		return
	}

	if writeBinanceFault(w, fault) {
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbols := s.gen.Symbols()
		out := make([]binanceTicker, 0, len(symbols))
		for _, sym := range symbols {
			out = append(out, toBinanceTicker(s.ticker(sym)))
		}

		writeJSON(w, http.StatusOK, out)

		return
	}

	writeJSON(w, http.StatusOK, toBinanceTicker(s.ticker(provider.FromExchangeSymbol(symbol))))
}

func (s *Server) handleBinanceDepth(w http.ResponseWriter, r *http.Request) {
	fault, ok := s.begin(w, r, EndpointDepth)
	if !ok {
		return
	}

	if writeBinanceFault(w, fault) {
		return
	}

	symbol := provider.FromExchangeSymbol(r.URL.Query().Get("symbol"))
	snapshot := s.gen.Depth(symbol, s.basePrice(symbol), queryInt(r, "limit", 100))

	writeJSON(w, http.StatusOK, map[string]any{
		"lastUpdateId": snapshot.LastUpdateID,
		"bids":         snapshot.Bids,
		"asks":         snapshot.Asks,
	})
}

func (s *Server) handleBinanceTrades(w http.ResponseWriter, r *http.Request) {
	fault, ok := s.begin(w, r, EndpointTrades)
	if !ok {
		return
	}

	if writeBinanceFault(w, fault) {
		return
	}

	symbol := provider.FromExchangeSymbol(r.URL.Query().Get("symbol"))
	trades := s.gen.Trades(symbol, s.basePrice(symbol), queryInt(r, "limit", 500))

	// Binance lists oldest first
	out := make([]binanceTrade, 0, len(trades))
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		out = append(out, binanceTrade{
			ID:           t.ID,
			Price:        t.Price.String(),
			Quantity:     t.Quantity.String(),
			QuoteQty:     t.Notional().String(),
			Time:         t.Time,
			IsBuyerMaker: t.IsBuyerMaker,
			IsBestMatch:  true,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func writeFault(w http.ResponseWriter, fault Fault, what string) bool {
	switch fault {
	case FaultHTTPError:
		writeEnvelope(w, http.StatusBadGateway, envelope{Success: false, Error: "upstream exchange unavailable"})
	case FaultUnsuccessful:
		writeEnvelope(w, http.StatusOK, envelope{Success: false, Error: fmt.Sprintf("failed to load %s", what)})
	case FaultMalformed:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success": tru`))
	case FaultWrongShape:
		writeEnvelope(w, http.StatusOK, envelope{Success: true, Data: "not-" + what})
	default:
		return false
	}

	return true
}

func writeBinanceFault(w http.ResponseWriter, fault Fault) bool {
	switch fault {
	case FaultNone:
		return false
	case FaultMalformed, FaultWrongShape:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"lastUpdateId": "x", "bids": 3`))
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"code": -1000, "msg": "An unknown error occurred while processing the request."})
	}

	return true
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return fallback
	}

	return v
}
