package mexc_test

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
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/exchange/mexc"
)

type fakeMexc struct {
	*httptest.Server
	mux *http.ServeMux

	mu         sync.Mutex
	lastOrder  map[string]any
	lastCancel []string
}

func newFakeMexc(t *testing.T) *fakeMexc {
	t.Helper()
	f := &fakeMexc{mux: http.NewServeMux()}

	f.mux.HandleFunc("/api/v1/contract/detail", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":true,"code":0,"data":[
			{"symbol":"BTC_USDT","baseCoin":"BTC","quoteCoin":"USDT",
			 "priceUnit":0.1,"volUnit":1,"minVol":1,"maxVol":100000,
			 "minLeverage":1,"maxLeverage":200,"contractSize":0.0001,
			 "state":0,"apiAllowed":true},
			{"symbol":"OLD_USDT","baseCoin":"OLD","quoteCoin":"USDT",
			 "priceUnit":0.001,"volUnit":1,"state":2,"apiAllowed":true}
		]}`)
	})
	f.mux.HandleFunc("/api/v1/private/order/submit", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastOrder = body
		f.mu.Unlock()
		io.WriteString(w, `{"success":true,"code":0,"data":{"orderId":"102015012431"}}`)
	})
	f.mux.HandleFunc("/api/v1/private/order/cancel", func(w http.ResponseWriter, r *http.Request) {
		var ids []string
		json.NewDecoder(r.Body).Decode(&ids)
		f.mu.Lock()
		f.lastCancel = ids
		f.mu.Unlock()
		io.WriteString(w, `{"success":true,"code":0}`)
	})
	f.mux.HandleFunc("/api/v1/private/account/assets", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":false,"code":602,"message":"signature verification failed"}`)
	})

	f.Server = httptest.NewServer(f.mux)
	return f
}

func newTestAdapter(t *testing.T, srv *fakeMexc) *mexc.Adapter {
	t.Helper()
	a := mexc.New(mexc.Config{
		APIKey:        "k",
		APISecret:     "s",
		BaseURL:       srv.URL,
		MaxAttempts:   1,
		MinRequestGap: time.Millisecond,
		CacheTTL:      time.Hour,
	}, nil)
	t.Cleanup(a.Close)
	return a
}

func TestAdapter_LoadContracts(t *testing.T) {
	srv := newFakeMexc(t)
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

	// Canonical symbol strips the underscore; the native form is preserved
	// for request building.
	btc, err := a.ContractByCanonical(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("ContractByCanonical failed: %v", err)
	}
	if btc.ExchangeSymbol != "BTC_USDT" {
		t.Errorf("native symbol = %q", btc.ExchangeSymbol)
	}
	if btc.TickSize != 0.1 || btc.StepSize != 1 {
		t.Errorf("tick/step = %v/%v", btc.TickSize, btc.StepSize)
	}
	if btc.Multiplier != 0.0001 {
		t.Errorf("multiplier = %v", btc.Multiplier)
	}
	if btc.MaxLeverage != 200 {
		t.Errorf("maxLeverage = %d", btc.MaxLeverage)
	}
	if !btc.APIAllowed {
		t.Error("state 0 with apiAllowed must be tradable")
	}

	old, err := a.ContractByCanonical(ctx, "OLDUSDT")
	if err != nil {
		t.Fatalf("ContractByCanonical failed: %v", err)
	}
	if old.APIAllowed {
		t.Error("non-zero state must not be tradable")
	}
}

func TestAdapter_PlaceOrderSideCodes(t *testing.T) {
	srv := newFakeMexc(t)
	defer srv.Close()
	a := newTestAdapter(t, srv)
	ctx := context.Background()

	// Isolated mode is recorded locally and applied per order via openType.
	if err := a.SetMarginMode(ctx, "BTCUSDT", domain.MarginModeIsolated); err != nil {
		t.Fatalf("SetMarginMode failed: %v", err)
	}

	orderID, err := a.PlaceOrder(ctx, &domain.OrderRequest{
		Symbol:        "BTCUSDT",
		Side:          domain.SideShort,
		Type:          domain.OrderTypeMarket,
		Qty:           3,
		ClientOrderID: "cli-9",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if orderID != "102015012431" {
		t.Errorf("orderID = %q", orderID)
	}

	srv.mu.Lock()
	body := srv.lastOrder
	srv.mu.Unlock()
	if body["symbol"] != "BTC_USDT" {
		t.Errorf("symbol = %v, want the native form", body["symbol"])
	}
	if body["side"] != float64(3) {
		t.Errorf("side = %v, want 3 (open short)", body["side"])
	}
	if body["type"] != float64(5) {
		t.Errorf("type = %v, want 5 (market)", body["type"])
	}
	if body["openType"] != float64(1) {
		t.Errorf("openType = %v, want 1 (isolated)", body["openType"])
	}
	if body["externalOid"] != "cli-9" {
		t.Errorf("externalOid = %v", body["externalOid"])
	}
	if _, hasPrice := body["price"]; hasPrice {
		t.Error("market order must not carry a price")
	}
}

func TestAdapter_PlaceOrderReduceOnlyCloses(t *testing.T) {
	srv := newFakeMexc(t)
	defer srv.Close()
	a := newTestAdapter(t, srv)

	_, err := a.PlaceOrder(context.Background(), &domain.OrderRequest{
		Symbol:     "BTCUSDT",
		Side:       domain.SideLong,
		Type:       domain.OrderTypeLimit,
		Qty:        2,
		Price:      50000.5,
		ReduceOnly: true,
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	srv.mu.Lock()
	body := srv.lastOrder
	srv.mu.Unlock()
	// Reduce-only long is a close of the short position: side code 2.
	if body["side"] != float64(2) {
		t.Errorf("side = %v, want 2 (close short)", body["side"])
	}
	if body["type"] != float64(1) {
		t.Errorf("type = %v, want 1 (limit)", body["type"])
	}
	if body["price"] != 50000.5 {
		t.Errorf("price = %v", body["price"])
	}
	if body["openType"] != float64(2) {
		t.Errorf("openType = %v, want 2 (cross default)", body["openType"])
	}
}

func TestAdapter_CancelOrderBody(t *testing.T) {
	srv := newFakeMexc(t)
	defer srv.Close()
	a := newTestAdapter(t, srv)

	if err := a.CancelOrder(context.Background(), "BTCUSDT", "ord-55"); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}

	srv.mu.Lock()
	ids := srv.lastCancel
	srv.mu.Unlock()
	if len(ids) != 1 || ids[0] != "ord-55" {
		t.Errorf("cancel body = %v, want the bare id list", ids)
	}
}

func TestAdapter_EmbeddedFailureCode(t *testing.T) {
	srv := newFakeMexc(t)
	defer srv.Close()
	a := newTestAdapter(t, srv)

	_, err := a.AccountState(context.Background())
	var api *domain.APIError
	if !errors.As(err, &api) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if api.Code != "602" {
		t.Errorf("code = %q", api.Code)
	}
}
