package domain

import "time"

// ContractInfo describes one tradable instrument on one exchange.
// Instances are immutable once built; the contract cache replaces the whole
// set on refresh.
type ContractInfo struct {
	// Symbol is the canonical, exchange-agnostic identifier (e.g. BTCUSDT).
	Symbol string
	// ExchangeSymbol is the native identifier (e.g. BTC_USDT on MEXC).
	ExchangeSymbol string
	BaseAsset      string
	QuoteAsset     string

	TickSize float64 // minimum price increment
	StepSize float64 // minimum quantity increment
	MinQty   float64
	MaxQty   float64

	MinLeverage int
	MaxLeverage int

	Multiplier float64 // contract size multiplier, 1 for linear USDT contracts
	MakerFee   float64
	TakerFee   float64

	// APIAllowed is false when the exchange has disabled API trading for
	// this instrument.
	APIAllowed bool
	// Status is the exchange's free-form instrument status; adapters fold it
	// into APIAllowed when it is not the exchange's normal/tradable value.
	Status string

	RefreshedAt time.Time
}
