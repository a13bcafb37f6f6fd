package bitget

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"
)

func hmacB64(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSigner_Sign(t *testing.T) {
	s := NewSigner("key-1", "secret-1", "pass-1")
	ts := time.UnixMilli(1700000000000)

	t.Run("GET with query", func(t *testing.T) {
		h := s.Sign("GET", "/api/v2/mix/market/contracts", "productType=USDT-FUTURES", "", ts)
		want := hmacB64("secret-1", "1700000000000GET/api/v2/mix/market/contracts?productType=USDT-FUTURES")
		if h["ACCESS-SIGN"] != want {
			t.Errorf("sign = %q, want %q", h["ACCESS-SIGN"], want)
		}
		if h["ACCESS-KEY"] != "key-1" || h["ACCESS-PASSPHRASE"] != "pass-1" {
			t.Errorf("headers = %v", h)
		}
		if h["ACCESS-TIMESTAMP"] != "1700000000000" {
			t.Errorf("timestamp = %q, want milliseconds", h["ACCESS-TIMESTAMP"])
		}
	})

	t.Run("POST with body and no query", func(t *testing.T) {
		body := `{"symbol":"BTCUSDT"}`
		h := s.Sign("POST", "/api/v2/mix/order/place-order", "", body, ts)
		// No "?" separator when the query is empty.
		want := hmacB64("secret-1", "1700000000000POST/api/v2/mix/order/place-order"+body)
		if h["ACCESS-SIGN"] != want {
			t.Errorf("sign = %q, want %q", h["ACCESS-SIGN"], want)
		}
	})

	t.Run("query and body both included", func(t *testing.T) {
		h := s.Sign("POST", "/p", "a=1", `{"x":2}`, ts)
		want := hmacB64("secret-1", `1700000000000POST/p?a=1{"x":2}`)
		if h["ACCESS-SIGN"] != want {
			t.Errorf("sign = %q, want %q", h["ACCESS-SIGN"], want)
		}
	})
}

func TestSigner_WSLoginSign(t *testing.T) {
	s := NewSigner("key-1", "secret-1", "pass-1")
	ts := time.Unix(1700000000, 500e6)

	timestamp, sign := s.WSLoginSign(ts)
	if timestamp != "1700000000" {
		t.Errorf("timestamp = %q, want second resolution", timestamp)
	}
	want := hmacB64("secret-1", "1700000000GET/user/verify")
	if sign != want {
		t.Errorf("sign = %q, want %q", sign, want)
	}
}
