package domain

import "time"

// IntentKind tags the trade intent variant.
type IntentKind string

const (
	IntentNone  IntentKind = "none"
	IntentOpen  IntentKind = "open"
	IntentClose IntentKind = "close"
)

// OrderSpec is the declarative order description inside an open intent.
// Exactly one sizing path must resolve to a positive quantity:
// Qty, DesiredNotionalUSD+MarkPrice, or RiskUSD+StopDistancePct+MarkPrice.
type OrderSpec struct {
	Type OrderType

	Qty   float64
	Price float64

	DesiredNotionalUSD float64
	RiskUSD            float64
	StopDistancePct    float64
	MarkPrice          float64

	Leverage   int
	MarginMode MarginMode
	ReduceOnly bool
	Rounding   RoundingMode

	TakeProfitPrice float64
	StopLossPrice   float64
}

// CloseSpec carries the optional order cancellation of a close intent.
type CloseSpec struct {
	CancelOrderID string
}

// TradeIntent is the declarative input of the execution engine.
type TradeIntent struct {
	Kind   IntentKind
	Symbol string
	Side   Side
	Order  *OrderSpec
	Close  *CloseSpec
}

// BlockReason explains why execution was refused.
type BlockReason string

const (
	BlockKillSwitch        BlockReason = "kill_switch"
	BlockSymbolUnknown     BlockReason = "symbol_unknown"
	BlockTradingNotAllowed BlockReason = "trading_not_allowed"
	BlockValidation        BlockReason = "validation"
)

type ResultKind string

const (
	ResultNoop     ResultKind = "noop"
	ResultBlocked  ResultKind = "blocked"
	ResultAccepted ResultKind = "accepted"
)

// ExecutionResult is produced exactly once per engine Execute call.
type ExecutionResult struct {
	Kind    ResultKind
	Reason  BlockReason
	OrderID string
}

func Noop() ExecutionResult                 { return ExecutionResult{Kind: ResultNoop} }
func Blocked(r BlockReason) ExecutionResult { return ExecutionResult{Kind: ResultBlocked, Reason: r} }
func Accepted(orderID string) ExecutionResult {
	return ExecutionResult{Kind: ResultAccepted, OrderID: orderID}
}

// Risk event types emitted by the engine.
const (
	RiskKillSwitchBlock      = "KILL_SWITCH_BLOCK"
	RiskSymbolUnknown        = "SYMBOL_UNKNOWN"
	RiskTradingNotAllowed    = "TRADING_NOT_ALLOWED"
	RiskOrderValidationBlock = "ORDER_VALIDATION_BLOCK"
	RiskBoundaryViolation    = "BOUNDARY_VIOLATION"
)

// RiskEvent is an observational side effect; publishing one never blocks or
// alters control flow.
type RiskEvent struct {
	ID        string
	Type      string
	BotID     string
	Timestamp time.Time
	Message   string
	Meta      map[string]string
}
