package exchange_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avetra/crypto_trade_exec/internal/infrastructure/exchange"
)

// wsTestServer accepts one connection at a time and records every text
// frame it receives. Frames written to push are sent to the client.
type wsTestServer struct {
	*httptest.Server

	mu       sync.Mutex
	received []string
	push     chan []byte
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	s := &wsTestServer{push: make(chan []byte, 16)}
	upgrader := websocket.Upgrader{}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for msg := range s.push {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, string(frame))
			s.mu.Unlock()
		}
	}))
	return s
}

func (s *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

func (s *wsTestServer) frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

func (s *wsTestServer) waitFrames(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := s.frames(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, have %v", n, s.frames())
	return nil
}

func jsonChannelOf(frame []byte) string {
	var f struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(frame, &f); err != nil {
		return ""
	}
	return f.Channel
}

func newTestSession(srv *wsTestServer, login func(ts time.Time) ([]byte, error)) *exchange.Session {
	return exchange.NewSession(exchange.SessionConfig{
		Exchange:    "test",
		Name:        "public",
		URL:         srv.url(),
		IsKeepalive: func(frame []byte) bool { return string(frame) == "pong" },
		ChannelOf:   jsonChannelOf,
		Login:       login,
	})
}

func TestSession_SubscribeDeduplicates(t *testing.T) {
	srv := newWSTestServer(t)
	defer srv.Close()

	sess := newTestSession(srv, nil)
	defer sess.Disconnect()

	payload := []byte(`{"op":"subscribe","args":["ticker.BTCUSDT"]}`)
	if err := sess.Subscribe(payload); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := sess.Subscribe(payload); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	srv.waitFrames(t, 1)
	time.Sleep(50 * time.Millisecond)
	frames := srv.frames()
	if len(frames) != 1 {
		t.Fatalf("expected exactly one replayed subscription, got %v", frames)
	}
	if frames[0] != string(payload) {
		t.Errorf("replayed frame = %s", frames[0])
	}
}

func TestSession_SubscribeWhileOpenSendsOnce(t *testing.T) {
	srv := newWSTestServer(t)
	defer srv.Close()

	sess := newTestSession(srv, nil)
	defer sess.Disconnect()

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	payload := []byte(`{"op":"subscribe","args":["trade.BTCUSDT"]}`)
	if err := sess.Subscribe(payload); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	// Duplicate while open: tracked once, sent once.
	if err := sess.Subscribe(payload); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	srv.waitFrames(t, 1)
	time.Sleep(50 * time.Millisecond)
	if frames := srv.frames(); len(frames) != 1 {
		t.Fatalf("expected one frame, got %v", frames)
	}
}

func TestSession_LoginSentFirst(t *testing.T) {
	srv := newWSTestServer(t)
	defer srv.Close()

	login := func(ts time.Time) ([]byte, error) {
		return []byte(`{"op":"login"}`), nil
	}
	sess := newTestSession(srv, login)
	defer sess.Disconnect()

	if err := sess.Subscribe([]byte(`{"op":"subscribe","args":["orders"]}`)); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	frames := srv.waitFrames(t, 2)
	if frames[0] != `{"op":"login"}` {
		t.Errorf("first frame = %s, want the login payload", frames[0])
	}
	if !strings.Contains(frames[1], "subscribe") {
		t.Errorf("second frame = %s, want the subscription", frames[1])
	}
}

func TestSession_DispatchRoutesByChannel(t *testing.T) {
	srv := newWSTestServer(t)
	defer srv.Close()

	sess := newTestSession(srv, nil)
	defer sess.Disconnect()

	tickerCh := make(chan string, 4)
	tradeCh := make(chan string, 4)
	sess.On("ticker", func(channel string, frame []byte) { tickerCh <- string(frame) })
	sess.On("trade", func(channel string, frame []byte) { tradeCh <- string(frame) })

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	srv.push <- []byte("pong") // keepalive, dropped
	srv.push <- []byte(`{"channel":"ticker","data":{"last":"1"}}`)
	srv.push <- []byte(`{"channel":"trade","data":{"p":"2"}}`)
	srv.push <- []byte(`{"noChannel":true}`) // no channel, dropped

	select {
	case f := <-tickerCh:
		if !strings.Contains(f, `"ticker"`) {
			t.Errorf("ticker handler got %s", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ticker handler never fired")
	}
	select {
	case f := <-tradeCh:
		if !strings.Contains(f, `"trade"`) {
			t.Errorf("trade handler got %s", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("trade handler never fired")
	}
	select {
	case f := <-tickerCh:
		t.Errorf("unexpected extra ticker frame %s", f)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSession_FanOutToMultipleHandlers(t *testing.T) {
	srv := newWSTestServer(t)
	defer srv.Close()

	sess := newTestSession(srv, nil)
	defer sess.Disconnect()

	var wg sync.WaitGroup
	wg.Add(2)
	sess.On("ticker", func(string, []byte) { wg.Done() })
	sess.On("ticker", func(string, []byte) { wg.Done() })

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	srv.push <- []byte(`{"channel":"ticker"}`)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("both handlers should receive the frame")
	}
}

func TestSession_ConnectAfterDisconnectFails(t *testing.T) {
	srv := newWSTestServer(t)
	defer srv.Close()

	sess := newTestSession(srv, nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	sess.Disconnect()

	if err := sess.Connect(context.Background()); err == nil {
		t.Fatal("manually closed session must refuse to reconnect")
	}
	if sess.State() != exchange.StateDisconnected {
		t.Errorf("state = %s", sess.State())
	}
}

func TestSession_Unsubscribe(t *testing.T) {
	srv := newWSTestServer(t)
	defer srv.Close()

	sess := newTestSession(srv, nil)
	defer sess.Disconnect()

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	sub := []byte(`{"op":"subscribe","args":["ticker.BTCUSDT"]}`)
	unsub := []byte(`{"op":"unsubscribe","args":["ticker.BTCUSDT"]}`)
	if err := sess.Subscribe(sub); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := sess.Unsubscribe(sub, unsub); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	frames := srv.waitFrames(t, 2)
	if frames[1] != string(unsub) {
		t.Errorf("second frame = %s, want the unsubscribe envelope", frames[1])
	}

	// Resubscribing after unsubscribe sends again: the dedup set was cleared.
	if err := sess.Subscribe(sub); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	srv.waitFrames(t, 3)
}
