package domain

import "context"

// OrderRequest is the fully normalized order handed to an adapter. Symbol
// is canonical; the adapter translates it to the exchange-native form.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Qty           float64
	Price         float64
	MarginMode    MarginMode
	ReduceOnly    bool
	ClientOrderID string

	TakeProfitPrice float64
	StopLossPrice   float64
}

// Adapter is the uniform surface one exchange exposes to the execution
// engine. Implementations compose a signer, a REST transport, a contract
// cache and WebSocket sessions.
type Adapter interface {
	Name() string

	ContractByCanonical(ctx context.Context, symbol string) (*ContractInfo, error)
	Contracts(ctx context.Context) ([]*ContractInfo, error)

	AccountState(ctx context.Context) (*AccountState, error)
	Positions(ctx context.Context) ([]*NormalizedPosition, error)
	OpenOrders(ctx context.Context, symbol string) ([]*NormalizedOrder, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginMode(ctx context.Context, symbol string, mode MarginMode) error

	PlaceOrder(ctx context.Context, req *OrderRequest) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// DecisionAPI is the read-only view handed to strategy/decision code.
// Strategy code can inspect state but cannot reach order placement: only
// the orchestration layer holds the executing engine.
type DecisionAPI interface {
	Name() string
	ContractByCanonical(ctx context.Context, symbol string) (*ContractInfo, error)
	AccountState(ctx context.Context) (*AccountState, error)
	Positions(ctx context.Context) ([]*NormalizedPosition, error)
}

// RiskSink receives risk events. Implementations must not block the
// execution path; failures are logged, never returned into control flow.
type RiskSink interface {
	Publish(ctx context.Context, ev RiskEvent)
}

// KillSwitchFunc resolves whether trading is globally enabled.
type KillSwitchFunc func() bool
