package mexc

import "go.uber.org/zap"

// XT and Coinstore expose the same contract API surface as MEXC: identical
// signing, envelopes, endpoints and side/openType codes. They differ only
// in hostnames, so both are thin variants of the same adapter.

const (
	XTBaseURL = "https://fapi.xt.com"
	XTWSURL   = "wss://fstream.xt.com/ws/market"

	CoinstoreBaseURL = "https://futures.coinstore.com"
	CoinstoreWSURL   = "wss://futures-ws.coinstore.com/edge"
)

// NewXT builds the XT futures adapter.
func NewXT(cfg Config, log *zap.Logger) *Adapter {
	return newAdapter("xt", XTBaseURL, XTWSURL, cfg, log)
}

// NewCoinstore builds the Coinstore futures adapter.
func NewCoinstore(cfg Config, log *zap.Logger) *Adapter {
	return newAdapter("coinstore", CoinstoreBaseURL, CoinstoreWSURL, cfg, log)
}
