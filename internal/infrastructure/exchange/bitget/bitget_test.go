package bitget_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/avetra/crypto_trade_exec/internal/domain"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/exchange/bitget"
)

// fakeBitget serves the REST endpoints the adapter touches. Handlers are
// registered before the adapter is built because warmup fires immediately.
type fakeBitget struct {
	*httptest.Server
	mux *http.ServeMux

	mu         sync.Mutex
	lastOrder  map[string]any
	lastMargin map[string]any
}

func newFakeBitget(t *testing.T) *fakeBitget {
	t.Helper()
	f := &fakeBitget{mux: http.NewServeMux()}

	f.mux.HandleFunc("/api/v2/mix/market/contracts", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":"00000","msg":"success","data":[
			{"symbol":"BTCUSDT","baseCoin":"BTC","quoteCoin":"USDT",
			 "pricePlace":"1","priceEndStep":"5","sizeMultiplier":"0.001",
			 "minTradeNum":"0.001","maxOrderQty":"1000",
			 "minLever":"1","maxLever":"125","symbolStatus":"normal"},
			{"symbol":"HALTUSDT","baseCoin":"HALT","quoteCoin":"USDT",
			 "pricePlace":"4","priceEndStep":"1","volumePlace":"0",
			 "minLever":"1","maxLever":"20","symbolStatus":"maintain"}
		]}`)
	})
	f.mux.HandleFunc("/api/v2/mix/order/place-order", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastOrder = body
		f.mu.Unlock()
		io.WriteString(w, `{"code":"00000","msg":"success","data":{"orderId":"1234567890","clientOid":"c-1"}}`)
	})
	f.mux.HandleFunc("/api/v2/mix/account/set-margin-mode", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastMargin = body
		f.mu.Unlock()
		// Rejected because a position is open.
		io.WriteString(w, `{"code":"45091","msg":"please close the position first","data":null}`)
	})
	f.mux.HandleFunc("/api/v2/mix/market/ticker", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":"00000","msg":"success","data":[
			{"symbol":"BTCUSDT","lastPr":"50000.5","bidPr":"50000","askPr":"50001",
			 "high24h":"51000","low24h":"49000","baseVolume":"120.5","ts":"1700000000000"}
		]}`)
	})
	f.mux.HandleFunc("/api/v2/mix/account/accounts", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":"40200","msg":"endpoint under maintenance","data":null}`)
	})

	f.Server = httptest.NewServer(f.mux)
	return f
}

func newTestAdapter(t *testing.T, srv *fakeBitget) *bitget.Adapter {
	t.Helper()
	a := bitget.New(bitget.Config{
		APIKey:        "k",
		APISecret:     "s",
		Passphrase:    "p",
		BaseURL:       srv.URL,
		MaxAttempts:   1,
		MinRequestGap: time.Millisecond,
		CacheTTL:      time.Hour,
	}, nil)
	t.Cleanup(a.Close)
	return a
}

func TestAdapter_LoadContracts(t *testing.T) {
	srv := newFakeBitget(t)
	defer srv.Close()
	a := newTestAdapter(t, srv)
	ctx := context.Background()

	list, err := a.Contracts(ctx)
	if err != nil {
		t.Fatalf("Contracts failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("contracts = %d, want 2", len(list))
	}

	btc, err := a.ContractByCanonical(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("ContractByCanonical failed: %v", err)
	}
	// tick = priceEndStep * 10^-pricePlace = 5 * 0.1
	if btc.TickSize != 0.5 {
		t.Errorf("tick = %v, want 0.5", btc.TickSize)
	}
	if btc.StepSize != 0.001 {
		t.Errorf("step = %v, want 0.001 from sizeMultiplier", btc.StepSize)
	}
	if btc.MinQty != 0.001 || btc.MaxQty != 1000 {
		t.Errorf("qty bounds = [%v, %v]", btc.MinQty, btc.MaxQty)
	}
	if btc.MinLeverage != 1 || btc.MaxLeverage != 125 {
		t.Errorf("leverage bounds = [%d, %d]", btc.MinLeverage, btc.MaxLeverage)
	}
	if !btc.APIAllowed {
		t.Error("normal status must be tradable")
	}

	halt, err := a.ContractByCanonical(ctx, "HALTUSDT")
	if err != nil {
		t.Fatalf("ContractByCanonical failed: %v", err)
	}
	if halt.APIAllowed {
		t.Error("maintain status must not be tradable")
	}
	// No sizeMultiplier: step falls back to 10^-volumePlace.
	if halt.StepSize != 1 {
		t.Errorf("fallback step = %v, want 1", halt.StepSize)
	}

	if _, err := a.ContractByCanonical(ctx, "NOPEUSDT"); !errors.Is(err, domain.ErrSymbolUnknown) {
		t.Errorf("unknown symbol error = %v", err)
	}
}

func TestAdapter_PlaceOrder(t *testing.T) {
	srv := newFakeBitget(t)
	defer srv.Close()
	a := newTestAdapter(t, srv)

	orderID, err := a.PlaceOrder(context.Background(), &domain.OrderRequest{
		Symbol:        "BTCUSDT",
		Side:          domain.SideShort,
		Type:          domain.OrderTypeLimit,
		Qty:           0.25,
		Price:         50000.5,
		MarginMode:    domain.MarginModeIsolated,
		ReduceOnly:    true,
		ClientOrderID: "cli-1",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if orderID != "1234567890" {
		t.Errorf("orderID = %q", orderID)
	}

	srv.mu.Lock()
	body := srv.lastOrder
	srv.mu.Unlock()
	if body["side"] != "sell" {
		t.Errorf("side = %v", body["side"])
	}
	if body["orderType"] != "limit" || body["price"] != "50000.5" {
		t.Errorf("orderType/price = %v/%v", body["orderType"], body["price"])
	}
	if body["size"] != "0.25" {
		t.Errorf("size = %v", body["size"])
	}
	if body["reduceOnly"] != "YES" {
		t.Errorf("reduceOnly = %v", body["reduceOnly"])
	}
	if body["marginMode"] != "isolated" {
		t.Errorf("marginMode = %v", body["marginMode"])
	}
	if body["clientOid"] != "cli-1" {
		t.Errorf("clientOid = %v", body["clientOid"])
	}
	if body["force"] != "gtc" {
		t.Errorf("force = %v", body["force"])
	}
}

func TestAdapter_SetMarginModeLocked(t *testing.T) {
	srv := newFakeBitget(t)
	defer srv.Close()
	a := newTestAdapter(t, srv)

	err := a.SetMarginMode(context.Background(), "BTCUSDT", domain.MarginModeCross)
	if !errors.Is(err, domain.ErrMarginModeLocked) {
		t.Fatalf("expected ErrMarginModeLocked, got %v", err)
	}

	srv.mu.Lock()
	body := srv.lastMargin
	srv.mu.Unlock()
	if body["marginMode"] != "crossed" {
		t.Errorf("marginMode param = %v", body["marginMode"])
	}
}

func TestAdapter_MaintenanceCode(t *testing.T) {
	srv := newFakeBitget(t)
	defer srv.Close()
	a := newTestAdapter(t, srv)

	_, err := a.AccountState(context.Background())
	var maint *domain.MaintenanceError
	if !errors.As(err, &maint) {
		t.Fatalf("expected MaintenanceError, got %v", err)
	}
}

func TestAdapter_Ticker(t *testing.T) {
	srv := newFakeBitget(t)
	defer srv.Close()
	a := newTestAdapter(t, srv)

	tk, err := a.Ticker(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Ticker failed: %v", err)
	}
	if tk.Last == nil || *tk.Last != 50000.5 {
		t.Errorf("last = %v", tk.Last)
	}
	if tk.Bid == nil || *tk.Bid != 50000 {
		t.Errorf("bid = %v", tk.Bid)
	}
	if tk.Ts == nil || *tk.Ts != 1700000000000 {
		t.Errorf("ts = %v", tk.Ts)
	}
}
