package provider

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/rxtech-lab/marketboard/internal/version"
	"github.com/rxtech-lab/marketboard/pkg/errors"
	"github.com/tidwall/gjson"
)

// APIVersionHeader carries the contract version a proxy serves.
const APIVersionHeader = "X-Api-Version"

const defaultProxyTimeout = 10 * time.Second

// ProxyClient reads market data from the backend proxy. Every endpoint
// answers with the envelope {"success": bool, "data": ..., "error": "..."}.
type ProxyClient struct {
	client *resty.Client
	config ProxyConfig
}

// NewProxyClient creates a proxy provider for config.BaseURL.
func NewProxyClient(config ProxyConfig) (*ProxyClient, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "proxy base url is required")
	}

	if config.Timeout <= 0 {
		config.Timeout = defaultProxyTimeout
	}

	if config.APIVersion == "" {
		config.APIVersion = version.ProxyAPIVersion
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(config.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "marketboard/"+version.GetVersion())

	return &ProxyClient{
		client: client,
		config: config,
	}, nil
}

// Name implements Provider.
func (c *ProxyClient) Name() string {
	return string(ProviderProxy)
}

// FetchTicker implements Provider. GET /ticker?symbol=S
func (c *ProxyClient) FetchTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	data, err := c.get(ctx, "/ticker", map[string]string{"symbol": symbol})
	if err != nil {
		return types.Ticker{}, err
	}

	ticker, err := decodeTicker(data)
	if err != nil {
		return types.Ticker{}, err
	}

	if ticker.Symbol == "" {
		ticker.Symbol = symbol
	}

	return ticker, nil
}

// FetchDepth implements Provider. GET /depth?symbol=S&limit=N
func (c *ProxyClient) FetchDepth(ctx context.Context, symbol string, limit int) (types.DepthSnapshot, error) {
	data, err := c.get(ctx, "/depth", map[string]string{
		"symbol": symbol,
		"limit":  strconv.Itoa(limit),
	})
	if err != nil {
		return types.DepthSnapshot{}, err
	}

	if !data.IsObject() {
		return types.DepthSnapshot{}, errors.New(errors.ErrCodeMalformedResponse, "depth data is not an object")
	}

	// missing sides are an empty book, wrong types are not
	for _, side := range []string{"bids", "asks"} {
		field := data.Get(side)
		if field.Exists() && field.Type != gjson.Null && !field.IsArray() {
			return types.DepthSnapshot{}, errors.Newf(errors.ErrCodeMalformedResponse, "depth %s is not an array", side)
		}
	}

	var snapshot types.DepthSnapshot
	if err := json.Unmarshal([]byte(data.Raw), &snapshot); err != nil {
		return types.DepthSnapshot{}, errors.Wrap(errors.ErrCodeMalformedResponse, "failed to decode depth", err)
	}

	if err := validateLevels(snapshot.Bids, "bid"); err != nil {
		return types.DepthSnapshot{}, err
	}

	if err := validateLevels(snapshot.Asks, "ask"); err != nil {
		return types.DepthSnapshot{}, err
	}

	if snapshot.Bids == nil {
		snapshot.Bids = []types.PriceLevel{}
	}

	if snapshot.Asks == nil {
		snapshot.Asks = []types.PriceLevel{}
	}

	if snapshot.Symbol == "" {
		snapshot.Symbol = symbol
	}

	if snapshot.Timestamp == 0 {
		snapshot.Timestamp = time.Now().UnixMilli()
	}

	return snapshot, nil
}

// FetchTrades implements Provider. GET /trades?symbol=S&limit=N
func (c *ProxyClient) FetchTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	data, err := c.get(ctx, "/trades", map[string]string{
		"symbol": symbol,
		"limit":  strconv.Itoa(limit),
	})
	if err != nil {
		return nil, err
	}

	if !data.IsArray() {
		return nil, errors.New(errors.ErrCodeMalformedResponse, "trades data is not an array")
	}

	trades := make([]types.Trade, 0, len(data.Array()))
	if err := json.Unmarshal([]byte(data.Raw), &trades); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedResponse, "failed to decode trades", err)
	}

	for _, trade := range trades {
		if trade.Price.IsNegative() || trade.Quantity.IsNegative() {
			return nil, errors.Newf(errors.ErrCodeMalformedResponse, "trade %d has a negative price or quantity", trade.ID)
		}
	}

	// newest first regardless of how the proxy orders them
	slices.SortStableFunc(trades, func(a, b types.Trade) int {
		return cmp.Compare(b.Time, a.Time)
	})

	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}

	return trades, nil
}

// FetchAllTickers implements Provider. GET /all-tickers
func (c *ProxyClient) FetchAllTickers(ctx context.Context) ([]types.Ticker, error) {
	data, err := c.get(ctx, "/all-tickers", nil)
	if err != nil {
		return nil, err
	}

	if !data.IsArray() {
		return nil, errors.New(errors.ErrCodeMalformedResponse, "all-tickers data is not an array")
	}

	tickers := make([]types.Ticker, 0, len(data.Array()))
	for i, item := range data.Array() {
		ticker, err := decodeTicker(item)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMalformedResponse, err, "ticker %d", i)
		}

		tickers = append(tickers, ticker)
	}

	return tickers, nil
}

// get performs the request and unwraps the envelope, returning its data field.
func (c *ProxyClient) get(ctx context.Context, path string, params map[string]string) (gjson.Result, error) {
	request := c.client.R().SetContext(ctx)
	if len(params) > 0 {
		request.SetQueryParams(params)
	}

	resp, err := request.Get(path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return gjson.Result{}, errors.FromContext(ctxErr, fmt.Sprintf("GET %s", path))
		}

		return gjson.Result{}, errors.FromContext(err, fmt.Sprintf("GET %s", path))
	}

	if served := resp.Header().Get(APIVersionHeader); served != "" {
		if err := version.CheckProxyCompatibility(c.config.APIVersion, served); err != nil {
			return gjson.Result{}, errors.Wrap(errors.ErrCodeIncompatibleSource, "proxy contract version not supported", err)
		}
	}

	body := resp.Body()

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		message := gjson.GetBytes(body, "error").String()
		if message == "" {
			message = http.StatusText(resp.StatusCode())
		}

		return gjson.Result{}, errors.Newf(errors.ErrCodeTransport, "GET %s: status %d: %s", path, resp.StatusCode(), message)
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.Newf(errors.ErrCodeMalformedResponse, "GET %s: body is not valid JSON", path)
	}

	success := gjson.GetBytes(body, "success")
	if success.Type != gjson.True && success.Type != gjson.False {
		return gjson.Result{}, errors.Newf(errors.ErrCodeMalformedResponse, "GET %s: envelope has no success flag", path)
	}

	if !success.Bool() {
		message := gjson.GetBytes(body, "error").String()
		if message == "" {
			message = "proxy reported failure"
		}

		return gjson.Result{}, errors.Newf(errors.ErrCodeTransport, "GET %s: %s", path, message)
	}

	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return gjson.Result{}, errors.Newf(errors.ErrCodeMalformedResponse, "GET %s: envelope has no data", path)
	}

	return data, nil
}

func decodeTicker(data gjson.Result) (types.Ticker, error) {
	if !data.IsObject() {
		return types.Ticker{}, errors.New(errors.ErrCodeMalformedResponse, "ticker data is not an object")
	}

	if !data.Get("lastPrice").Exists() {
		return types.Ticker{}, errors.New(errors.ErrCodeMalformedResponse, "ticker has no lastPrice")
	}

	var ticker types.Ticker
	if err := json.Unmarshal([]byte(data.Raw), &ticker); err != nil {
		return types.Ticker{}, errors.Wrap(errors.ErrCodeMalformedResponse, "failed to decode ticker", err)
	}

	return ticker, nil
}

func validateLevels(levels []types.PriceLevel, side string) error {
	for i, level := range levels {
		if level.Price.IsNegative() || level.Quantity.IsNegative() {
			return errors.Newf(errors.ErrCodeMalformedResponse, "%s level %d has a negative price or quantity", side, i)
		}
	}

	return nil
}
