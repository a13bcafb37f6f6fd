package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/avetra/crypto_trade_exec/internal/domain"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
	defaultMinGap      = 100 * time.Millisecond

	retryBaseDelay = 250 * time.Millisecond
	retryMaxDelay  = 3 * time.Second
)

// BodyCheck inspects a 2xx response body for the exchange's embedded
// success flag (code==0, success==true, ...). A non-nil return fails the
// request even though HTTP said OK: the two conditions are independent.
type BodyCheck func(body []byte) error

// TransportConfig configures one exchange REST client.
type TransportConfig struct {
	Exchange      string
	BaseURL       string
	Timeout       time.Duration
	MaxAttempts   int // total request attempts, not extra retries
	MinRequestGap time.Duration
	Signer        Signer
	CheckBody     BodyCheck
	Logger        *zap.Logger
}

// Request describes a single REST call. Query keys are sorted and encoded
// by url.Values; Body is JSON-marshaled when non-nil.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Private bool
}

// Transport sends signed or public requests with timeout, defensive JSON
// parsing, dual success classification and bounded retry. A per-instance
// rate limiter serializes outgoing requests so concurrent callers respect
// the exchange's minimum request gap.
type Transport struct {
	exchange    string
	baseURL     string
	timeout     time.Duration
	maxAttempts int
	signer      Signer
	checkBody   BodyCheck
	limiter     *rate.Limiter
	client      *http.Client
	log         *zap.Logger
}

func NewTransport(cfg TransportConfig) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.MinRequestGap <= 0 {
		cfg.MinRequestGap = defaultMinGap
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Transport{
		exchange:    cfg.Exchange,
		baseURL:     cfg.BaseURL,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		signer:      cfg.Signer,
		checkBody:   cfg.CheckBody,
		limiter:     rate.NewLimiter(rate.Every(cfg.MinRequestGap), 1),
		client:      &http.Client{Timeout: cfg.Timeout},
		log:         cfg.Logger,
	}
}

// Do executes the request, retrying transient failures (HTTP 429, 5xx,
// network errors) with exponential backoff plus jitter. Auth and
// validation failures surface immediately. out, when non-nil, receives the
// decoded JSON body.
func (t *Transport) Do(ctx context.Context, req Request, out any) error {
	var body string
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("%s: marshal request body: %w", t.exchange, err)
		}
		body = string(raw)
	}

	var query string
	if len(req.Query) > 0 {
		query = req.Query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			t.log.Warn("retrying request",
				zap.String("exchange", t.exchange),
				zap.String("path", req.Path),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = t.once(ctx, req.Method, req.Path, query, body, req.Private, out)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (t *Transport) once(ctx context.Context, method, path, query, body string, private bool, out any) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	fullURL := t.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", t.exchange, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if private {
		if t.signer == nil {
			return &domain.AuthError{Exchange: t.exchange, Message: "no credentials configured"}
		}
		for k, v := range t.signer.Sign(method, path, query, body, time.Now()) {
			req.Header.Set(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ctx.Err()
		}
		return &domain.APIError{Exchange: t.exchange, Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.APIError{Exchange: t.exchange, HTTPStatus: resp.StatusCode, Message: err.Error(), Retryable: true}
	}

	if err := t.classifyStatus(resp.StatusCode, raw); err != nil {
		return err
	}

	if !json.Valid(raw) {
		// WAF/challenge pages arrive as HTML with HTTP 200; surface them
		// as a typed error instead of a silently empty payload.
		return &domain.APIError{
			Exchange:   t.exchange,
			HTTPStatus: resp.StatusCode,
			Code:       "non_json_response",
			Message:    snippet(raw),
		}
	}

	if t.checkBody != nil {
		if err := t.checkBody(raw); err != nil {
			return err
		}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &domain.APIError{
				Exchange:   t.exchange,
				HTTPStatus: resp.StatusCode,
				Code:       "decode_failed",
				Message:    err.Error(),
			}
		}
	}
	return nil
}

func (t *Transport) classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.AuthError{Exchange: t.exchange, Message: snippet(body)}
	case status == http.StatusTooManyRequests:
		return &domain.APIError{Exchange: t.exchange, HTTPStatus: status, Code: "rate_limited", Message: snippet(body), Retryable: true}
	case status >= 500:
		return &domain.APIError{Exchange: t.exchange, HTTPStatus: status, Message: snippet(body), Retryable: true}
	default:
		code, msg := errorBody(body)
		if msg == "" {
			msg = snippet(body)
		}
		return &domain.APIError{Exchange: t.exchange, HTTPStatus: status, Code: code, Message: msg}
	}
}

func retryable(err error) bool {
	var api *domain.APIError
	return errors.As(err, &api) && api.Retryable
}

func retryDelay(attempt int) time.Duration {
	d := retryBaseDelay * time.Duration(1<<(attempt-1))
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	// Up to 50% jitter so concurrent clients do not retry in lockstep.
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

// errorBody pulls the embedded code/message out of a JSON error payload.
func errorBody(body []byte) (code, msg string) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return "", ""
	}
	return PickString(m, "code", "retCode", "errorCode"), PickString(m, "msg", "message", "retMsg", "error")
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
