package mexc

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/avetra/crypto_trade_exec/internal/domain"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/exchange"
)

// Envelopes follow the method/param shape: {"method":"sub.ticker",
// "param":{"symbol":"BTC_USDT"}}. Push frames carry a channel field
// ("push.ticker", "push.personal.order", ...).
type wsCommand struct {
	Method string         `json:"method"`
	Param  map[string]any `json:"param,omitempty"`
}

type wsFrame struct {
	Channel string          `json:"channel"`
	Method  string          `json:"method"`
	Symbol  string          `json:"symbol"`
	Data    json.RawMessage `json:"data"`
}

func isKeepalive(frame []byte) bool {
	var f wsFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return false
	}
	return f.Channel == "pong" || f.Method == "pong"
}

func channelOf(frame []byte) string {
	var f wsFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return ""
	}
	return f.Channel
}

func (a *Adapter) loginPayload(ts time.Time) ([]byte, error) {
	reqTime, sign := a.signer.WSLoginSign(ts)
	return json.Marshal(wsCommand{
		Method: "login",
		Param: map[string]any{
			"apiKey":    a.signer.APIKey(),
			"reqTime":   reqTime,
			"signature": sign,
		},
	})
}

func (a *Adapter) reconcile(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	orders, oErr := a.OpenOrders(ctx, "")
	positions, pErr := a.Positions(ctx)
	if oErr != nil || pErr != nil {
		a.log.Warn("private reconciliation incomplete",
			zap.NamedError("orders", oErr), zap.NamedError("positions", pErr))
		return
	}
	a.log.Info("private state reconciled",
		zap.Int("openOrders", len(orders)),
		zap.Int("positions", len(positions)))
}

func (a *Adapter) ConnectPublic(ctx context.Context) error  { return a.pub.Connect(ctx) }
func (a *Adapter) ConnectPrivate(ctx context.Context) error { return a.priv.Connect(ctx) }

func (a *Adapter) subscribe(sess *exchange.Session, method string, param map[string]any) error {
	payload, err := json.Marshal(wsCommand{Method: method, Param: param})
	if err != nil {
		return err
	}
	return sess.Subscribe(payload)
}

func (a *Adapter) SubscribeTicker(ctx context.Context, symbol string, h func(*domain.NormalizedTicker)) error {
	native, err := a.nativeSymbol(ctx, symbol)
	if err != nil {
		return err
	}
	a.pub.On("push.ticker", func(_ string, frame []byte) {
		var f wsFrame
		if err := json.Unmarshal(frame, &f); err != nil || f.Symbol != native {
			return
		}
		var m map[string]any
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return
		}
		t := normalizeTicker(m)
		t.Symbol = symbol
		h(t)
	})
	return a.subscribe(a.pub, "sub.ticker", map[string]any{"symbol": native})
}

func (a *Adapter) SubscribeDepth(ctx context.Context, symbol string, h func(*domain.NormalizedOrderBook)) error {
	native, err := a.nativeSymbol(ctx, symbol)
	if err != nil {
		return err
	}
	a.pub.On("push.depth", func(_ string, frame []byte) {
		var f struct {
			Symbol string `json:"symbol"`
			Data   struct {
				Asks [][]any `json:"asks"`
				Bids [][]any `json:"bids"`
			} `json:"data"`
		}
		if err := json.Unmarshal(frame, &f); err != nil || f.Symbol != native {
			return
		}
		h(&domain.NormalizedOrderBook{
			Symbol: symbol,
			Bids:   normalizeBookLevels(f.Data.Bids),
			Asks:   normalizeBookLevels(f.Data.Asks),
		})
	})
	return a.subscribe(a.pub, "sub.depth", map[string]any{"symbol": native})
}

func (a *Adapter) SubscribeTrades(ctx context.Context, symbol string, h func(*domain.NormalizedTrade)) error {
	native, err := a.nativeSymbol(ctx, symbol)
	if err != nil {
		return err
	}
	a.pub.On("push.deal", func(_ string, frame []byte) {
		var f wsFrame
		if err := json.Unmarshal(frame, &f); err != nil || f.Symbol != native {
			return
		}
		var m map[string]any
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return
		}
		h(normalizeTrade(symbol, m))
	})
	return a.subscribe(a.pub, "sub.deal", map[string]any{"symbol": native})
}

func (a *Adapter) SubscribeKline(ctx context.Context, symbol, interval string, h func(*domain.NormalizedKline)) error {
	native, err := a.nativeSymbol(ctx, symbol)
	if err != nil {
		return err
	}
	a.pub.On("push.kline", func(_ string, frame []byte) {
		var f wsFrame
		if err := json.Unmarshal(frame, &f); err != nil || f.Symbol != native {
			return
		}
		var m map[string]any
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return
		}
		h(&domain.NormalizedKline{
			Symbol: symbol,
			Open:   exchange.PickFloat(m, "o", "open"),
			High:   exchange.PickFloat(m, "h", "high"),
			Low:    exchange.PickFloat(m, "l", "low"),
			Close:  exchange.PickFloat(m, "c", "close"),
			Volume: exchange.PickFloat(m, "q", "vol"),
			Ts:     exchange.PickInt(m, "t", "ts"),
		})
	})
	return a.subscribe(a.pub, "sub.kline", map[string]any{"symbol": native, "interval": interval})
}

// Private streams arrive on the personal channels after login; one filter
// subscription covers them all.

func (a *Adapter) SubscribeFills(h func(*domain.NormalizedTrade)) error {
	a.priv.On("push.personal.order.deal", func(_ string, frame []byte) {
		var f wsFrame
		if err := json.Unmarshal(frame, &f); err != nil {
			return
		}
		var m map[string]any
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return
		}
		h(normalizeTrade(canonicalSymbol(exchange.PickString(m, "symbol")), m))
	})
	return a.subscribePersonal()
}

func (a *Adapter) SubscribeOrderUpdates(h func(*domain.NormalizedOrder)) error {
	a.priv.On("push.personal.order", func(_ string, frame []byte) {
		var f wsFrame
		if err := json.Unmarshal(frame, &f); err != nil {
			return
		}
		var m map[string]any
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return
		}
		h(normalizeOrder(m))
	})
	return a.subscribePersonal()
}

func (a *Adapter) SubscribePositionUpdates(h func(*domain.NormalizedPosition)) error {
	a.priv.On("push.personal.position", func(_ string, frame []byte) {
		var f wsFrame
		if err := json.Unmarshal(frame, &f); err != nil {
			return
		}
		var m map[string]any
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return
		}
		h(normalizePosition(m))
	})
	return a.subscribePersonal()
}

// subscribePersonal registers the single personal filter subscription; the
// session deduplicates it across callers and reconnects.
func (a *Adapter) subscribePersonal() error {
	return a.subscribe(a.priv, "personal.filter", map[string]any{
		"filters": []map[string]any{{"filter": "order"}, {"filter": "position"}, {"filter": "order.deal"}},
	})
}
