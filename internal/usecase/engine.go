package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avetra/crypto_trade_exec/internal/domain"
)

// ExecContext carries per-call execution context from the orchestration
// layer. TradingEnabled, when set, overrides every other kill switch source.
type ExecContext struct {
	BotID          string
	TradingEnabled *bool
}

// EngineOptions tune an ExecutionEngine instance.
type EngineOptions struct {
	// KillSwitch resolves the global trading toggle. Defaults to the
	// TRADING_ENABLED environment resolver.
	KillSwitch domain.KillSwitchFunc
	// TradingEnabled is the engine-level override, consulted after the
	// per-call override and before the global resolver.
	TradingEnabled *bool
	// Sink receives risk events. Defaults to a zap-backed sink.
	Sink   domain.RiskSink
	Logger *zap.Logger
}

// ExecutionEngine is the single entry point for order placement. It gates
// every trade intent through the kill switch, symbol resolution,
// tradability and normalization before the adapter is ever touched, and is
// the one place low-level exchange errors become the caller-facing
// three-state result.
type ExecutionEngine struct {
	adapter        domain.Adapter
	kill           domain.KillSwitchFunc
	tradingEnabled *bool
	sink           domain.RiskSink
	log            *zap.Logger
}

func NewExecutionEngine(adapter domain.Adapter, opts EngineOptions) *ExecutionEngine {
	if opts.KillSwitch == nil {
		opts.KillSwitch = KillSwitchFromEnv(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sink == nil {
		opts.Sink = NewZapRiskSink(opts.Logger)
	}
	return &ExecutionEngine{
		adapter:        adapter,
		kill:           opts.KillSwitch,
		tradingEnabled: opts.TradingEnabled,
		sink:           opts.Sink,
		log:            opts.Logger,
	}
}

// Decision returns the read-only view for strategy code. Strategy code
// never holds the engine itself; only the orchestration layer can execute.
func (e *ExecutionEngine) Decision() domain.DecisionAPI {
	return e.adapter
}

// Execute runs one trade intent through the gate sequence and produces
// exactly one result. Validation-class failures come back as blocked
// results; unanticipated exchange errors propagate as errors so the caller
// stops instead of silently continuing.
func (e *ExecutionEngine) Execute(ctx context.Context, intent domain.TradeIntent, ec ExecContext) (domain.ExecutionResult, error) {
	if intent.Kind == domain.IntentNone || intent.Kind == "" {
		return domain.Noop(), nil
	}

	// Kill switch: per-call override, then engine override, then the
	// global resolver (default enabled).
	if !e.resolveTradingEnabled(ec) {
		e.emit(ctx, domain.RiskKillSwitchBlock, ec.BotID,
			fmt.Sprintf("order blocked by kill switch: %s %s", intent.Kind, intent.Symbol), nil)
		return domain.Blocked(domain.BlockKillSwitch), nil
	}

	contract, err := e.adapter.ContractByCanonical(ctx, intent.Symbol)
	if err != nil || contract == nil {
		if err == nil || errors.Is(err, domain.ErrSymbolUnknown) {
			e.emit(ctx, domain.RiskSymbolUnknown, ec.BotID,
				fmt.Sprintf("unknown symbol %s on %s", intent.Symbol, e.adapter.Name()),
				map[string]string{"symbol": intent.Symbol})
			return domain.Blocked(domain.BlockSymbolUnknown), nil
		}
		return domain.ExecutionResult{}, err
	}

	if !contract.APIAllowed {
		e.emit(ctx, domain.RiskTradingNotAllowed, ec.BotID,
			fmt.Sprintf("api trading disabled for %s on %s", intent.Symbol, e.adapter.Name()),
			map[string]string{"symbol": intent.Symbol, "status": contract.Status})
		return domain.Blocked(domain.BlockTradingNotAllowed), nil
	}

	switch intent.Kind {
	case domain.IntentOpen:
		return e.executeOpen(ctx, intent, contract, ec)
	case domain.IntentClose:
		return e.executeClose(ctx, intent, ec)
	default:
		return domain.Noop(), nil
	}
}

func (e *ExecutionEngine) executeOpen(ctx context.Context, intent domain.TradeIntent, contract *domain.ContractInfo, ec ExecContext) (domain.ExecutionResult, error) {
	plan, err := NormalizeOrder(contract, intent.Order)
	if err != nil {
		if domain.IsValidation(err) {
			e.emit(ctx, domain.RiskOrderValidationBlock, ec.BotID, err.Error(), map[string]string{
				"symbol": intent.Symbol,
				"error":  domain.ValidationName(err),
			})
			return domain.Blocked(domain.BlockValidation), nil
		}
		return domain.ExecutionResult{}, err
	}

	// Margin mode before leverage; both awaited so they land before the
	// order despite out-of-order REST completion.
	if intent.Order.MarginMode != "" {
		if err := e.adapter.SetMarginMode(ctx, intent.Symbol, intent.Order.MarginMode); err != nil {
			if !errors.Is(err, domain.ErrMarginModeLocked) {
				return domain.ExecutionResult{}, err
			}
			e.log.Debug("margin mode change skipped, position or orders open",
				zap.String("symbol", intent.Symbol))
		}
	}
	if intent.Order.Leverage > 0 {
		if err := e.adapter.SetLeverage(ctx, intent.Symbol, intent.Order.Leverage); err != nil {
			return domain.ExecutionResult{}, err
		}
	}

	orderID, err := e.adapter.PlaceOrder(ctx, &domain.OrderRequest{
		Symbol:          intent.Symbol,
		Side:            intent.Side,
		Type:            plan.Type,
		Qty:             plan.Qty,
		Price:           plan.Price,
		MarginMode:      intent.Order.MarginMode,
		ReduceOnly:      plan.ReduceOnly,
		ClientOrderID:   uuid.NewString(),
		TakeProfitPrice: plan.TakeProfitPrice,
		StopLossPrice:   plan.StopLossPrice,
	})
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	e.log.Info("order placed",
		zap.String("exchange", e.adapter.Name()),
		zap.String("symbol", intent.Symbol),
		zap.String("side", string(intent.Side)),
		zap.Float64("qty", plan.Qty),
		zap.Float64("price", plan.Price),
		zap.String("orderId", orderID))
	return domain.Accepted(orderID), nil
}

func (e *ExecutionEngine) executeClose(ctx context.Context, intent domain.TradeIntent, ec ExecContext) (domain.ExecutionResult, error) {
	// Position closing is expressed as reduce-only open intents; a close
	// intent only carries an optional cancellation.
	if intent.Close == nil || intent.Close.CancelOrderID == "" {
		return domain.Accepted(""), nil
	}
	if err := e.adapter.CancelOrder(ctx, intent.Symbol, intent.Close.CancelOrderID); err != nil {
		return domain.ExecutionResult{}, err
	}
	e.log.Info("order cancelled",
		zap.String("exchange", e.adapter.Name()),
		zap.String("symbol", intent.Symbol),
		zap.String("orderId", intent.Close.CancelOrderID))
	return domain.Accepted(intent.Close.CancelOrderID), nil
}

func (e *ExecutionEngine) resolveTradingEnabled(ec ExecContext) bool {
	if ec.TradingEnabled != nil {
		return *ec.TradingEnabled
	}
	if e.tradingEnabled != nil {
		return *e.tradingEnabled
	}
	return e.kill()
}

func (e *ExecutionEngine) emit(ctx context.Context, typ, botID, msg string, meta map[string]string) {
	e.sink.Publish(ctx, domain.RiskEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		BotID:     botID,
		Timestamp: time.Now(),
		Message:   msg,
		Meta:      meta,
	})
}
