package domain

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

type MarginMode string

const (
	MarginModeCross    MarginMode = "cross"
	MarginModeIsolated MarginMode = "isolated"
)

// RoundingMode controls how quantities and prices are snapped to the
// instrument's step/tick grid.
type RoundingMode string

const (
	RoundDown    RoundingMode = "down"
	RoundNearest RoundingMode = "nearest"
)

// Normalized market types are exchange-agnostic projections of raw exchange
// payloads. Numeric fields are pointers: a missing or garbled value becomes
// nil, never an error.

type NormalizedOrder struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          string
	Type          string
	Status        string
	Price         *float64
	Qty           *float64
	FilledQty     *float64
	AvgPrice      *float64
	ReduceOnly    bool
	CreatedAt     *int64
	UpdatedAt     *int64
}

type NormalizedPosition struct {
	Symbol           string
	Side             Side
	MarginMode       MarginMode
	Qty              *float64
	EntryPrice       *float64
	MarkPrice        *float64
	LiquidationPrice *float64
	UnrealizedPnl    *float64
	Leverage         *float64
}

type NormalizedTicker struct {
	Symbol    string
	Last      *float64
	Bid       *float64
	Ask       *float64
	High24h   *float64
	Low24h    *float64
	Volume24h *float64
	Ts        *int64
}

type BookLevel struct {
	Price float64
	Qty   float64
}

type NormalizedOrderBook struct {
	Symbol string
	Bids   []BookLevel
	Asks   []BookLevel
	Ts     *int64
}

type NormalizedTrade struct {
	Symbol string
	Side   string
	Price  *float64
	Qty    *float64
	Ts     *int64
}

type NormalizedKline struct {
	Symbol string
	Open   *float64
	High   *float64
	Low    *float64
	Close  *float64
	Volume *float64
	Ts     *int64
}

// AccountState is a snapshot of the futures account for one margin coin.
type AccountState struct {
	MarginCoin    string
	Equity        *float64
	Available     *float64
	UnrealizedPnl *float64
}
