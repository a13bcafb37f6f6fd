// Package bitget implements the Bitget USDT-futures adapter: signed REST,
// public/private WebSocket sessions and the contract cache.
package bitget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/avetra/crypto_trade_exec/internal/domain"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/contracts"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/exchange"
)

const (
	DefaultBaseURL      = "https://api.bitget.com"
	DefaultWSPublicURL  = "wss://ws.bitget.com/v2/ws/public"
	DefaultWSPrivateURL = "wss://ws.bitget.com/v2/ws/private"

	codeOK = "00000"
)

// Margin-mode change rejections caused by open positions or orders. The
// engine swallows these and still applies leverage.
var marginModeLockedCodes = map[string]struct{}{
	"45091": {},
	"45117": {},
	"40810": {},
}

// Endpoint feature flags the exchange toggles during rollouts.
var maintenanceCodes = map[string]struct{}{
	"40200": {},
	"40930": {},
}

type Config struct {
	APIKey     string
	APISecret  string
	Passphrase string

	BaseURL      string
	WSPublicURL  string
	WSPrivateURL string

	ProductType string // e.g. USDT-FUTURES
	MarginCoin  string // e.g. USDT

	Timeout       time.Duration
	MaxAttempts   int
	MinRequestGap time.Duration
	CacheTTL      time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.WSPublicURL == "" {
		c.WSPublicURL = DefaultWSPublicURL
	}
	if c.WSPrivateURL == "" {
		c.WSPrivateURL = DefaultWSPrivateURL
	}
	if c.ProductType == "" {
		c.ProductType = "USDT-FUTURES"
	}
	if c.MarginCoin == "" {
		c.MarginCoin = "USDT"
	}
}

// Adapter composes the signer, REST transport, contract cache and WS
// sessions into the uniform exchange surface.
type Adapter struct {
	cfg       Config
	signer    *Signer
	transport *exchange.Transport
	cache     *contracts.Cache
	log       *zap.Logger

	pub  *exchange.Session
	priv *exchange.Session
}

var _ domain.Adapter = (*Adapter)(nil)

// New builds the adapter and best-effort primes the contract cache in the
// background; construction never fails on an unreachable exchange.
func New(cfg Config, log *zap.Logger) *Adapter {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	signer := NewSigner(cfg.APIKey, cfg.APISecret, cfg.Passphrase)
	a := &Adapter{cfg: cfg, signer: signer, log: log}

	a.transport = exchange.NewTransport(exchange.TransportConfig{
		Exchange:      a.Name(),
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
		MaxAttempts:   cfg.MaxAttempts,
		MinRequestGap: cfg.MinRequestGap,
		Signer:        signer,
		CheckBody:     a.checkBody,
		Logger:        log,
	})

	a.cache = contracts.NewCache(a.Name(), a.loadContracts, cfg.CacheTTL, log)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.cache.Warmup(ctx)
	}()

	a.pub = exchange.NewSession(exchange.SessionConfig{
		Exchange:    a.Name(),
		Name:        "public",
		URL:         cfg.WSPublicURL,
		PingMessage: []byte("ping"),
		IsKeepalive: isPong,
		ChannelOf:   channelOf,
		Logger:      log,
	})
	a.priv = exchange.NewSession(exchange.SessionConfig{
		Exchange:    a.Name(),
		Name:        "private",
		URL:         cfg.WSPrivateURL,
		PingMessage: []byte("ping"),
		IsKeepalive: isPong,
		ChannelOf:   channelOf,
		Login:       a.loginPayload,
		Reconcile:   a.reconcile,
		Logger:      log,
	})

	return a
}

func (a *Adapter) Name() string { return "bitget" }

// Cache exposes the contract cache for warmup orchestration and symbol
// translation.
func (a *Adapter) Cache() *contracts.Cache { return a.cache }

func (a *Adapter) Close() {
	a.cache.Stop()
	a.pub.Disconnect()
	a.priv.Disconnect()
}

// checkBody enforces the embedded success code independently of the HTTP
// status.
func (a *Adapter) checkBody(body []byte) error {
	var env struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return &domain.APIError{Exchange: a.Name(), Code: "decode_failed", Message: err.Error()}
	}
	if env.Code == "" || env.Code == codeOK {
		return nil
	}
	if _, ok := maintenanceCodes[env.Code]; ok {
		return &domain.MaintenanceError{Exchange: a.Name(), Message: env.Msg}
	}
	return &domain.APIError{Exchange: a.Name(), HTTPStatus: 200, Code: env.Code, Message: env.Msg}
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// --- contract cache ---

func (a *Adapter) loadContracts(ctx context.Context) ([]*domain.ContractInfo, error) {
	q := url.Values{}
	q.Set("productType", a.cfg.ProductType)

	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v2/mix/market/contracts", Query: q,
	}, &env); err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode contracts: %w", a.Name(), err)
	}

	now := time.Now()
	out := make([]*domain.ContractInfo, 0, len(raw))
	for _, m := range raw {
		symbol := exchange.PickString(m, "symbol")
		if symbol == "" {
			continue
		}
		status := exchange.PickString(m, "symbolStatus", "status")

		pricePlace := exchange.FloatOrZero(exchange.PickFloat(m, "pricePlace"))
		priceEndStep := exchange.FloatOrZero(exchange.PickFloat(m, "priceEndStep"))
		tick := priceEndStep * math.Pow(10, -pricePlace)

		step := exchange.FloatOrZero(exchange.PickFloat(m, "sizeMultiplier"))
		if step <= 0 {
			volumePlace := exchange.FloatOrZero(exchange.PickFloat(m, "volumePlace"))
			step = math.Pow(10, -volumePlace)
		}

		out = append(out, &domain.ContractInfo{
			Symbol:         symbol, // Bitget futures symbols are already canonical
			ExchangeSymbol: symbol,
			BaseAsset:      exchange.PickString(m, "baseCoin"),
			QuoteAsset:     exchange.PickString(m, "quoteCoin"),
			TickSize:       tick,
			StepSize:       step,
			MinQty:         exchange.FloatOrZero(exchange.PickFloat(m, "minTradeNum")),
			MaxQty:         exchange.FloatOrZero(exchange.PickFloat(m, "maxOrderQty", "maxTradeNum")),
			MinLeverage:    int(exchange.FloatOrZero(exchange.PickFloat(m, "minLever"))),
			MaxLeverage:    int(exchange.FloatOrZero(exchange.PickFloat(m, "maxLever"))),
			Multiplier:     1,
			MakerFee:       exchange.FloatOrZero(exchange.PickFloat(m, "makerFeeRate")),
			TakerFee:       exchange.FloatOrZero(exchange.PickFloat(m, "takerFeeRate")),
			APIAllowed:     status == "normal",
			Status:         status,
			RefreshedAt:    now,
		})
	}
	return out, nil
}

func (a *Adapter) ContractByCanonical(ctx context.Context, symbol string) (*domain.ContractInfo, error) {
	info, ok := a.cache.ByCanonical(ctx, symbol)
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", a.Name(), symbol, domain.ErrSymbolUnknown)
	}
	return info, nil
}

func (a *Adapter) Contracts(ctx context.Context) ([]*domain.ContractInfo, error) {
	if err := a.cache.Refresh(ctx, false); err != nil && len(a.cache.Snapshot()) == 0 {
		return nil, err
	}
	return a.cache.Snapshot(), nil
}

// --- account & positions ---

func (a *Adapter) AccountState(ctx context.Context) (*domain.AccountState, error) {
	q := url.Values{}
	q.Set("productType", a.cfg.ProductType)

	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v2/mix/account/accounts", Query: q, Private: true,
	}, &env); err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode accounts: %w", a.Name(), err)
	}

	for _, m := range raw {
		coin := exchange.PickString(m, "marginCoin")
		if coin != a.cfg.MarginCoin {
			continue
		}
		return &domain.AccountState{
			MarginCoin:    coin,
			Equity:        exchange.PickFloat(m, "accountEquity", "equity", "usdtEquity"),
			Available:     exchange.PickFloat(m, "available", "crossedMaxAvailable"),
			UnrealizedPnl: exchange.PickFloat(m, "unrealizedPL", "unrealizedPnl"),
		}, nil
	}
	return &domain.AccountState{MarginCoin: a.cfg.MarginCoin}, nil
}

func (a *Adapter) Positions(ctx context.Context) ([]*domain.NormalizedPosition, error) {
	q := url.Values{}
	q.Set("productType", a.cfg.ProductType)
	q.Set("marginCoin", a.cfg.MarginCoin)

	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v2/mix/position/all-position", Query: q, Private: true,
	}, &env); err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode positions: %w", a.Name(), err)
	}

	out := make([]*domain.NormalizedPosition, 0, len(raw))
	for _, m := range raw {
		out = append(out, normalizePosition(m))
	}
	return out, nil
}

func (a *Adapter) OpenOrders(ctx context.Context, symbol string) ([]*domain.NormalizedOrder, error) {
	q := url.Values{}
	q.Set("productType", a.cfg.ProductType)
	if symbol != "" {
		q.Set("symbol", symbol)
	}

	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v2/mix/order/orders-pending", Query: q, Private: true,
	}, &env); err != nil {
		return nil, err
	}

	var data struct {
		EntrustedList []map[string]any `json:"entrustedList"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%s: decode open orders: %w", a.Name(), err)
	}

	out := make([]*domain.NormalizedOrder, 0, len(data.EntrustedList))
	for _, m := range data.EntrustedList {
		out = append(out, normalizeOrder(m))
	}
	return out, nil
}

// --- trading ---

func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return a.transport.Do(ctx, exchange.Request{
		Method: "POST", Path: "/api/v2/mix/account/set-leverage", Private: true,
		Body: map[string]string{
			"symbol":      symbol,
			"productType": a.cfg.ProductType,
			"marginCoin":  a.cfg.MarginCoin,
			"leverage":    strconv.Itoa(leverage),
		},
	}, nil)
}

func (a *Adapter) SetMarginMode(ctx context.Context, symbol string, mode domain.MarginMode) error {
	marginMode := "crossed"
	if mode == domain.MarginModeIsolated {
		marginMode = "isolated"
	}
	err := a.transport.Do(ctx, exchange.Request{
		Method: "POST", Path: "/api/v2/mix/account/set-margin-mode", Private: true,
		Body: map[string]string{
			"symbol":      symbol,
			"productType": a.cfg.ProductType,
			"marginCoin":  a.cfg.MarginCoin,
			"marginMode":  marginMode,
		},
	}, nil)
	if err != nil {
		var api *domain.APIError
		if errors.As(err, &api) {
			if _, locked := marginModeLockedCodes[api.Code]; locked {
				return fmt.Errorf("%s: %w", a.Name(), domain.ErrMarginModeLocked)
			}
		}
	}
	return err
}

func (a *Adapter) PlaceOrder(ctx context.Context, req *domain.OrderRequest) (string, error) {
	side := "buy"
	if req.Side == domain.SideShort {
		side = "sell"
	}
	orderType := "market"
	if req.Type == domain.OrderTypeLimit {
		orderType = "limit"
	}

	body := map[string]string{
		"symbol":      req.Symbol,
		"productType": a.cfg.ProductType,
		"marginCoin":  a.cfg.MarginCoin,
		"marginMode":  marginModeParam(req.MarginMode),
		"size":        formatFloat(req.Qty),
		"side":        side,
		"orderType":   orderType,
		"force":       "gtc",
		"clientOid":   req.ClientOrderID,
	}
	if req.Type == domain.OrderTypeLimit {
		body["price"] = formatFloat(req.Price)
	}
	if req.ReduceOnly {
		body["reduceOnly"] = "YES"
	}
	if req.TakeProfitPrice > 0 {
		body["presetStopSurplusPrice"] = formatFloat(req.TakeProfitPrice)
	}
	if req.StopLossPrice > 0 {
		body["presetStopLossPrice"] = formatFloat(req.StopLossPrice)
	}

	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "POST", Path: "/api/v2/mix/order/place-order", Private: true, Body: body,
	}, &env); err != nil {
		return "", err
	}

	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("%s: decode order response: %w", a.Name(), err)
	}
	return exchange.PickString(data, "orderId", "orderID"), nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return a.transport.Do(ctx, exchange.Request{
		Method: "POST", Path: "/api/v2/mix/order/cancel-order", Private: true,
		Body: map[string]string{
			"symbol":      symbol,
			"productType": a.cfg.ProductType,
			"orderId":     orderID,
		},
	}, nil)
}

// --- market data queries ---

func (a *Adapter) Ticker(ctx context.Context, symbol string) (*domain.NormalizedTicker, error) {
	q := url.Values{}
	q.Set("productType", a.cfg.ProductType)
	q.Set("symbol", symbol)

	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v2/mix/market/ticker", Query: q,
	}, &env); err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(env.Data, &raw); err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("%s: ticker %s: empty response", a.Name(), symbol)
	}
	return normalizeTicker(raw[0]), nil
}

func (a *Adapter) OrderBook(ctx context.Context, symbol string, limit int) (*domain.NormalizedOrderBook, error) {
	q := url.Values{}
	q.Set("productType", a.cfg.ProductType)
	q.Set("symbol", symbol)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v2/mix/market/merge-depth", Query: q,
	}, &env); err != nil {
		return nil, err
	}

	var data struct {
		Asks [][]any `json:"asks"`
		Bids [][]any `json:"bids"`
		Ts   string  `json:"ts"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%s: decode depth: %w", a.Name(), err)
	}

	book := &domain.NormalizedOrderBook{Symbol: symbol}
	book.Bids = normalizeBookLevels(data.Bids)
	book.Asks = normalizeBookLevels(data.Asks)
	if ts, err := strconv.ParseInt(data.Ts, 10, 64); err == nil {
		book.Ts = &ts
	}
	return book, nil
}

func (a *Adapter) RecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.NormalizedTrade, error) {
	q := url.Values{}
	q.Set("productType", a.cfg.ProductType)
	q.Set("symbol", symbol)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v2/mix/market/fills", Query: q,
	}, &env); err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode trades: %w", a.Name(), err)
	}

	out := make([]*domain.NormalizedTrade, 0, len(raw))
	for _, m := range raw {
		out = append(out, normalizeTrade(symbol, m))
	}
	return out, nil
}

func marginModeParam(mode domain.MarginMode) string {
	if mode == domain.MarginModeIsolated {
		return "isolated"
	}
	return "crossed"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
