// Package mexc implements the MEXC contract-API adapter. XT and Coinstore
// run structurally identical APIs and are built from the same machinery
// (see variants.go).
package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avetra/crypto_trade_exec/internal/domain"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/contracts"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/exchange"
)

const (
	DefaultBaseURL = "https://contract.mexc.com"
	DefaultWSURL   = "wss://contract.mexc.com/edge"
)

type Config struct {
	APIKey    string
	APISecret string

	BaseURL string
	WSURL   string

	MarginCoin string // e.g. USDT

	Timeout       time.Duration
	MaxAttempts   int
	MinRequestGap time.Duration
	CacheTTL      time.Duration
}

func (c *Config) applyDefaults(baseURL, wsURL string) {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.WSURL == "" {
		c.WSURL = wsURL
	}
	if c.MarginCoin == "" {
		c.MarginCoin = "USDT"
	}
}

// Adapter is the MEXC-style contract adapter. The margin mode is applied
// per order via the openType parameter, so SetMarginMode records the mode
// instead of calling an endpoint.
type Adapter struct {
	name      string
	cfg       Config
	signer    *Signer
	transport *exchange.Transport
	cache     *contracts.Cache
	log       *zap.Logger

	pub  *exchange.Session
	priv *exchange.Session

	modeMu     sync.RWMutex
	marginMode map[string]domain.MarginMode
}

var _ domain.Adapter = (*Adapter)(nil)

// New builds the MEXC adapter.
func New(cfg Config, log *zap.Logger) *Adapter {
	return newAdapter("mexc", DefaultBaseURL, DefaultWSURL, cfg, log)
}

func newAdapter(name, baseURL, wsURL string, cfg Config, log *zap.Logger) *Adapter {
	cfg.applyDefaults(baseURL, wsURL)
	if log == nil {
		log = zap.NewNop()
	}

	a := &Adapter{
		name:       name,
		cfg:        cfg,
		signer:     NewSigner(cfg.APIKey, cfg.APISecret),
		log:        log,
		marginMode: make(map[string]domain.MarginMode),
	}

	a.transport = exchange.NewTransport(exchange.TransportConfig{
		Exchange:      name,
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
		MaxAttempts:   cfg.MaxAttempts,
		MinRequestGap: cfg.MinRequestGap,
		Signer:        a.signer,
		CheckBody:     a.checkBody,
		Logger:        log,
	})

	a.cache = contracts.NewCache(name, a.loadContracts, cfg.CacheTTL, log)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.cache.Warmup(ctx)
	}()

	a.pub = exchange.NewSession(exchange.SessionConfig{
		Exchange:    name,
		Name:        "public",
		URL:         cfg.WSURL,
		PingMessage: []byte(`{"method":"ping"}`),
		IsKeepalive: isKeepalive,
		ChannelOf:   channelOf,
		Logger:      log,
	})
	a.priv = exchange.NewSession(exchange.SessionConfig{
		Exchange:    name,
		Name:        "private",
		URL:         cfg.WSURL,
		PingMessage: []byte(`{"method":"ping"}`),
		IsKeepalive: isKeepalive,
		ChannelOf:   channelOf,
		Login:       a.loginPayload,
		Reconcile:   a.reconcile,
		Logger:      log,
	})

	return a
}

func (a *Adapter) Name() string            { return a.name }
func (a *Adapter) Cache() *contracts.Cache { return a.cache }

func (a *Adapter) Close() {
	a.cache.Stop()
	a.pub.Disconnect()
	a.priv.Disconnect()
}

// checkBody: the contract API flags success both ways, {"success":true}
// and {"code":0}; both must hold when present.
func (a *Adapter) checkBody(body []byte) error {
	var env struct {
		Success *bool  `json:"success"`
		Code    *int   `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return &domain.APIError{Exchange: a.name, Code: "decode_failed", Message: err.Error()}
	}
	if env.Success != nil && !*env.Success {
		code := ""
		if env.Code != nil {
			code = strconv.Itoa(*env.Code)
		}
		return &domain.APIError{Exchange: a.name, HTTPStatus: 200, Code: code, Message: env.Message}
	}
	if env.Code != nil && *env.Code != 0 {
		return &domain.APIError{Exchange: a.name, HTTPStatus: 200, Code: strconv.Itoa(*env.Code), Message: env.Message}
	}
	return nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// canonicalSymbol strips the underscore: BTC_USDT → BTCUSDT.
func canonicalSymbol(native string) string {
	return strings.ReplaceAll(native, "_", "")
}

// --- contract cache ---

func (a *Adapter) loadContracts(ctx context.Context) ([]*domain.ContractInfo, error) {
	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v1/contract/detail",
	}, &env); err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode contracts: %w", a.name, err)
	}

	now := time.Now()
	out := make([]*domain.ContractInfo, 0, len(raw))
	for _, m := range raw {
		native := exchange.PickString(m, "symbol")
		if native == "" {
			continue
		}
		apiAllowed, hasFlag := exchange.PickBool(m, "apiAllowed", "isApiAllowed")
		state := exchange.PickInt(m, "state", "status")
		normal := state == nil || *state == 0
		if !hasFlag {
			apiAllowed = normal
		}

		multiplier := exchange.FloatOrZero(exchange.PickFloat(m, "contractSize", "multiplier"))
		if multiplier <= 0 {
			multiplier = 1
		}

		out = append(out, &domain.ContractInfo{
			Symbol:         canonicalSymbol(native),
			ExchangeSymbol: native,
			BaseAsset:      exchange.PickString(m, "baseCoin", "baseCurrency"),
			QuoteAsset:     exchange.PickString(m, "quoteCoin", "quoteCurrency"),
			TickSize:       exchange.FloatOrZero(exchange.PickFloat(m, "priceUnit", "tickSize")),
			StepSize:       exchange.FloatOrZero(exchange.PickFloat(m, "volUnit", "stepSize", "lotSize")),
			MinQty:         exchange.FloatOrZero(exchange.PickFloat(m, "minVol", "minQty")),
			MaxQty:         exchange.FloatOrZero(exchange.PickFloat(m, "maxVol", "maxQty")),
			MinLeverage:    int(exchange.FloatOrZero(exchange.PickFloat(m, "minLeverage"))),
			MaxLeverage:    int(exchange.FloatOrZero(exchange.PickFloat(m, "maxLeverage"))),
			Multiplier:     multiplier,
			MakerFee:       exchange.FloatOrZero(exchange.PickFloat(m, "makerFeeRate")),
			TakerFee:       exchange.FloatOrZero(exchange.PickFloat(m, "takerFeeRate")),
			APIAllowed:     apiAllowed && normal,
			Status:         exchange.PickString(m, "state", "status"),
			RefreshedAt:    now,
		})
	}
	return out, nil
}

func (a *Adapter) ContractByCanonical(ctx context.Context, symbol string) (*domain.ContractInfo, error) {
	info, ok := a.cache.ByCanonical(ctx, symbol)
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", a.name, symbol, domain.ErrSymbolUnknown)
	}
	return info, nil
}

func (a *Adapter) Contracts(ctx context.Context) ([]*domain.ContractInfo, error) {
	if err := a.cache.Refresh(ctx, false); err != nil && len(a.cache.Snapshot()) == 0 {
		return nil, err
	}
	return a.cache.Snapshot(), nil
}

func (a *Adapter) nativeSymbol(ctx context.Context, canonical string) (string, error) {
	return a.cache.ToExchangeSymbol(ctx, canonical)
}

// --- account & positions ---

func (a *Adapter) AccountState(ctx context.Context) (*domain.AccountState, error) {
	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v1/private/account/assets", Private: true,
	}, &env); err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode assets: %w", a.name, err)
	}

	for _, m := range raw {
		if exchange.PickString(m, "currency") != a.cfg.MarginCoin {
			continue
		}
		return &domain.AccountState{
			MarginCoin:    a.cfg.MarginCoin,
			Equity:        exchange.PickFloat(m, "equity"),
			Available:     exchange.PickFloat(m, "availableBalance", "available"),
			UnrealizedPnl: exchange.PickFloat(m, "unrealized", "unrealizedPnl"),
		}, nil
	}
	return &domain.AccountState{MarginCoin: a.cfg.MarginCoin}, nil
}

func (a *Adapter) Positions(ctx context.Context) ([]*domain.NormalizedPosition, error) {
	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v1/private/position/open_positions", Private: true,
	}, &env); err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode positions: %w", a.name, err)
	}

	out := make([]*domain.NormalizedPosition, 0, len(raw))
	for _, m := range raw {
		out = append(out, normalizePosition(m))
	}
	return out, nil
}

func (a *Adapter) OpenOrders(ctx context.Context, symbol string) ([]*domain.NormalizedOrder, error) {
	q := url.Values{}
	if symbol != "" {
		native, err := a.nativeSymbol(ctx, symbol)
		if err != nil {
			return nil, err
		}
		q.Set("symbol", native)
	}

	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v1/private/order/list/open_orders", Query: q, Private: true,
	}, &env); err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode open orders: %w", a.name, err)
	}

	out := make([]*domain.NormalizedOrder, 0, len(raw))
	for _, m := range raw {
		out = append(out, normalizeOrder(m))
	}
	return out, nil
}

// --- trading ---

func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	native, err := a.nativeSymbol(ctx, symbol)
	if err != nil {
		return err
	}
	return a.transport.Do(ctx, exchange.Request{
		Method: "POST", Path: "/api/v1/private/position/change_leverage", Private: true,
		Body: map[string]any{
			"symbol":   native,
			"leverage": leverage,
		},
	}, nil)
}

// SetMarginMode records the mode for the symbol; this API family selects
// cross/isolated per order through openType rather than per symbol.
func (a *Adapter) SetMarginMode(_ context.Context, symbol string, mode domain.MarginMode) error {
	a.modeMu.Lock()
	a.marginMode[symbol] = mode
	a.modeMu.Unlock()
	return nil
}

func (a *Adapter) openType(symbol string, requested domain.MarginMode) int {
	mode := requested
	if mode == "" {
		a.modeMu.RLock()
		mode = a.marginMode[symbol]
		a.modeMu.RUnlock()
	}
	if mode == domain.MarginModeIsolated {
		return 1
	}
	return 2
}

// orderSide maps engine semantics onto the numeric side codes:
// 1 open long, 2 close short, 3 open short, 4 close long. Reduce-only
// orders are closes of the opposite position.
func orderSide(side domain.Side, reduceOnly bool) int {
	switch {
	case side == domain.SideLong && !reduceOnly:
		return 1
	case side == domain.SideLong && reduceOnly:
		return 2
	case side == domain.SideShort && !reduceOnly:
		return 3
	default:
		return 4
	}
}

func (a *Adapter) PlaceOrder(ctx context.Context, req *domain.OrderRequest) (string, error) {
	native, err := a.nativeSymbol(ctx, req.Symbol)
	if err != nil {
		return "", err
	}

	orderType := 5 // market
	if req.Type == domain.OrderTypeLimit {
		orderType = 1
	}

	body := map[string]any{
		"symbol":      native,
		"vol":         req.Qty,
		"side":        orderSide(req.Side, req.ReduceOnly),
		"type":        orderType,
		"openType":    a.openType(req.Symbol, req.MarginMode),
		"externalOid": req.ClientOrderID,
	}
	if req.Type == domain.OrderTypeLimit {
		body["price"] = req.Price
	}
	if req.TakeProfitPrice > 0 {
		body["takeProfitPrice"] = req.TakeProfitPrice
	}
	if req.StopLossPrice > 0 {
		body["stopLossPrice"] = req.StopLossPrice
	}

	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "POST", Path: "/api/v1/private/order/submit", Private: true, Body: body,
	}, &env); err != nil {
		return "", err
	}

	// The order id arrives either as a bare value or an object.
	var bare any
	if err := json.Unmarshal(env.Data, &bare); err != nil {
		return "", fmt.Errorf("%s: decode order response: %w", a.name, err)
	}
	switch v := bare.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	case map[string]any:
		return exchange.PickString(v, "orderId", "orderID", "id"), nil
	}
	return "", nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_ = symbol // cancellation is by order id alone on this API family
	return a.transport.Do(ctx, exchange.Request{
		Method: "POST", Path: "/api/v1/private/order/cancel", Private: true,
		Body: []string{orderID},
	}, nil)
}

// --- market data queries ---

func (a *Adapter) Ticker(ctx context.Context, symbol string) (*domain.NormalizedTicker, error) {
	native, err := a.nativeSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("symbol", native)

	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v1/contract/ticker", Query: q,
	}, &env); err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode ticker: %w", a.name, err)
	}
	t := normalizeTicker(raw)
	t.Symbol = symbol
	return t, nil
}

func (a *Adapter) OrderBook(ctx context.Context, symbol string, limit int) (*domain.NormalizedOrderBook, error) {
	native, err := a.nativeSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v1/contract/depth/" + native, Query: q,
	}, &env); err != nil {
		return nil, err
	}

	var data struct {
		Asks      [][]any `json:"asks"`
		Bids      [][]any `json:"bids"`
		Timestamp int64   `json:"timestamp"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%s: decode depth: %w", a.name, err)
	}

	book := &domain.NormalizedOrderBook{Symbol: symbol}
	book.Bids = normalizeBookLevels(data.Bids)
	book.Asks = normalizeBookLevels(data.Asks)
	if data.Timestamp > 0 {
		ts := data.Timestamp
		book.Ts = &ts
	}
	return book, nil
}

func (a *Adapter) RecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.NormalizedTrade, error) {
	native, err := a.nativeSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var env envelope
	if err := a.transport.Do(ctx, exchange.Request{
		Method: "GET", Path: "/api/v1/contract/deals/" + native, Query: q,
	}, &env); err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode deals: %w", a.name, err)
	}

	out := make([]*domain.NormalizedTrade, 0, len(raw))
	for _, m := range raw {
		out = append(out, normalizeTrade(symbol, m))
	}
	return out, nil
}
