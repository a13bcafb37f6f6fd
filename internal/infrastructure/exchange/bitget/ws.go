package bitget

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/avetra/crypto_trade_exec/internal/domain"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/exchange"
)

// Subscribe/unsubscribe envelopes follow the V2 op/args shape:
// {"op":"subscribe","args":[{"instType":...,"channel":...,"instId":...}]}.
type wsArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

type wsEnvelope struct {
	Op   string  `json:"op"`
	Args []wsArg `json:"args"`
}

type wsFrame struct {
	Event string          `json:"event"`
	Arg   wsArg           `json:"arg"`
	Data  json.RawMessage `json:"data"`
}

func isPong(frame []byte) bool {
	return string(frame) == "pong"
}

// channelOf routes frames by arg.channel. Event acks and frames without a
// channel are dropped before dispatch.
func channelOf(frame []byte) string {
	var f wsFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return ""
	}
	if f.Event != "" && f.Event != "login" {
		return ""
	}
	return f.Arg.Channel
}

func (a *Adapter) loginPayload(ts time.Time) ([]byte, error) {
	timestamp, sign := a.signer.WSLoginSign(ts)
	return json.Marshal(map[string]any{
		"op": "login",
		"args": []map[string]string{{
			"apiKey":     a.signer.AccessKey(),
			"passphrase": a.signer.Passphrase(),
			"timestamp":  timestamp,
			"sign":       sign,
		}},
	})
}

// reconcile re-fetches authoritative private state over REST after a
// reconnect; WS-received state is never replayed blindly.
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

// ConnectPublic/ConnectPrivate dial the sessions; adapters stay usable for
// REST-only callers that never call these.
func (a *Adapter) ConnectPublic(ctx context.Context) error  { return a.pub.Connect(ctx) }
func (a *Adapter) ConnectPrivate(ctx context.Context) error { return a.priv.Connect(ctx) }

func (a *Adapter) subscribePublic(channel, symbol string) error {
	payload, err := json.Marshal(wsEnvelope{
		Op:   "subscribe",
		Args: []wsArg{{InstType: a.cfg.ProductType, Channel: channel, InstID: symbol}},
	})
	if err != nil {
		return err
	}
	return a.pub.Subscribe(payload)
}

func (a *Adapter) subscribePrivate(channel string) error {
	payload, err := json.Marshal(wsEnvelope{
		Op:   "subscribe",
		Args: []wsArg{{InstType: a.cfg.ProductType, Channel: channel, InstID: "default"}},
	})
	if err != nil {
		return err
	}
	return a.priv.Subscribe(payload)
}

func (a *Adapter) SubscribeTicker(symbol string, h func(*domain.NormalizedTicker)) error {
	a.pub.On("ticker", func(_ string, frame []byte) {
		for _, m := range frameRows(frame) {
			t := normalizeTicker(m)
			if t.Symbol == symbol || t.Symbol == "" {
				h(t)
			}
		}
	})
	return a.subscribePublic("ticker", symbol)
}

func (a *Adapter) SubscribeDepth(symbol string, h func(*domain.NormalizedOrderBook)) error {
	a.pub.On("books15", func(_ string, frame []byte) {
		var f struct {
			Arg  wsArg `json:"arg"`
			Data []struct {
				Asks [][]any `json:"asks"`
				Bids [][]any `json:"bids"`
				Ts   string  `json:"ts"`
			} `json:"data"`
		}
		if err := json.Unmarshal(frame, &f); err != nil || f.Arg.InstID != symbol {
			return
		}
		for _, d := range f.Data {
			h(&domain.NormalizedOrderBook{
				Symbol: symbol,
				Bids:   normalizeBookLevels(d.Bids),
				Asks:   normalizeBookLevels(d.Asks),
			})
		}
	})
	return a.subscribePublic("books15", symbol)
}

func (a *Adapter) SubscribeTrades(symbol string, h func(*domain.NormalizedTrade)) error {
	a.pub.On("trade", func(_ string, frame []byte) {
		for _, m := range frameRows(frame) {
			h(normalizeTrade(symbol, m))
		}
	})
	return a.subscribePublic("trade", symbol)
}

func (a *Adapter) SubscribeKline(symbol, interval string, h func(*domain.NormalizedKline)) error {
	channel := "candle" + interval
	a.pub.On(channel, func(_ string, frame []byte) {
		var f struct {
			Arg  wsArg   `json:"arg"`
			Data [][]any `json:"data"`
		}
		if err := json.Unmarshal(frame, &f); err != nil || f.Arg.InstID != symbol {
			return
		}
		for _, row := range f.Data {
			if k := normalizeKlineRow(symbol, row); k != nil {
				h(k)
			}
		}
	})
	return a.subscribePublic(channel, symbol)
}

// Private streams: fills, order updates, position updates.

func (a *Adapter) SubscribeFills(h func(*domain.NormalizedTrade)) error {
	a.priv.On("fill", func(_ string, frame []byte) {
		for _, m := range frameRows(frame) {
			h(normalizeTrade(exchange.PickString(m, "symbol", "instId"), m))
		}
	})
	return a.subscribePrivate("fill")
}

func (a *Adapter) SubscribeOrderUpdates(h func(*domain.NormalizedOrder)) error {
	a.priv.On("orders", func(_ string, frame []byte) {
		for _, m := range frameRows(frame) {
			h(normalizeOrder(m))
		}
	})
	return a.subscribePrivate("orders")
}

func (a *Adapter) SubscribePositionUpdates(h func(*domain.NormalizedPosition)) error {
	a.priv.On("positions", func(_ string, frame []byte) {
		for _, m := range frameRows(frame) {
			h(normalizePosition(m))
		}
	})
	return a.subscribePrivate("positions")
}

// frameRows decodes the data array of a push frame into generic rows;
// malformed frames yield nothing.
func frameRows(frame []byte) []map[string]any {
	var f struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(frame, &f); err != nil {
		return nil
	}
	return f.Data
}

func normalizeKlineRow(symbol string, row []any) *domain.NormalizedKline {
	if len(row) < 6 {
		return nil
	}
	k := &domain.NormalizedKline{Symbol: symbol}
	if ts, ok := exchange.AsFloat(row[0]); ok {
		n := int64(ts)
		k.Ts = &n
	}
	assign := func(dst **float64, v any) {
		if f, ok := exchange.AsFloat(v); ok {
			*dst = &f
		}
	}
	assign(&k.Open, row[1])
	assign(&k.High, row[2])
	assign(&k.Low, row[3])
	assign(&k.Close, row[4])
	assign(&k.Volume, row[5])
	return k
}
