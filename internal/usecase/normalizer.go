package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/avetra/crypto_trade_exec/internal/domain"
)

// NormalizedOrderPlan is the outcome of normalizing an OrderSpec against a
// contract: quantities snapped to the step grid, prices to the tick grid,
// both validated against the instrument bounds.
type NormalizedOrderPlan struct {
	Type       domain.OrderType
	Qty        float64
	Price      float64
	ReduceOnly bool

	TakeProfitPrice float64
	StopLossPrice   float64
}

// ResolveQty picks the single sizing path of an order spec, in precedence
// order: explicit qty, desired notional through mark price, then risk
// through stop distance and mark price. Fails before any network call when
// none resolves to a positive quantity.
func ResolveQty(spec *domain.OrderSpec) (float64, error) {
	if spec.Qty > 0 {
		return spec.Qty, nil
	}
	if spec.DesiredNotionalUSD > 0 && spec.MarkPrice > 0 {
		return spec.DesiredNotionalUSD / spec.MarkPrice, nil
	}
	if spec.RiskUSD > 0 && spec.StopDistancePct > 0 && spec.MarkPrice > 0 {
		notional := spec.RiskUSD / spec.StopDistancePct
		return notional / spec.MarkPrice, nil
	}
	return 0, domain.ErrSizingUnresolved
}

// RoundQtyToStep snaps qty onto the step grid. Mode down never rounds up
// through a step, so a normalized order can never be larger than requested.
func RoundQtyToStep(qty, step float64, mode domain.RoundingMode) float64 {
	return snap(qty, step, mode)
}

// RoundPriceToTick snaps price onto the tick grid.
func RoundPriceToTick(price, tick float64, mode domain.RoundingMode) float64 {
	return snap(price, tick, mode)
}

func snap(value, increment float64, mode domain.RoundingMode) float64 {
	if increment <= 0 || value <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	inc := decimal.NewFromFloat(increment)

	steps := v.Div(inc)
	switch mode {
	case domain.RoundNearest:
		steps = steps.Round(0)
	default:
		steps = steps.Floor()
	}
	f, _ := steps.Mul(inc).Float64()
	return f
}

// NormalizeOrder applies the contract constraints to a desired order, in
// order: leverage bound rejection, quantity step rounding, quantity clamp,
// quantity range validation, then tick rounding and validation for limit
// orders.
func NormalizeOrder(c *domain.ContractInfo, spec *domain.OrderSpec) (*NormalizedOrderPlan, error) {
	if c == nil {
		return nil, fmt.Errorf("nil contract")
	}
	if spec == nil {
		return nil, domain.ErrSizingUnresolved
	}

	// Leverage is rejected outright, never rounded into bounds.
	if spec.Leverage != 0 {
		if spec.Leverage < c.MinLeverage || spec.Leverage > c.MaxLeverage {
			return nil, &domain.LeverageError{
				Symbol:    c.Symbol,
				Requested: spec.Leverage,
				Min:       c.MinLeverage,
				Max:       c.MaxLeverage,
			}
		}
	}

	qty, err := ResolveQty(spec)
	if err != nil {
		return nil, err
	}

	mode := spec.Rounding
	if mode == "" {
		mode = domain.RoundDown
	}
	qty = RoundQtyToStep(qty, c.StepSize, mode)
	if qty <= 0 {
		return nil, &domain.QtyOutOfRangeError{Symbol: c.Symbol, Qty: qty, Min: c.MinQty, Max: c.MaxQty}
	}

	if c.MinQty > 0 && qty < c.MinQty {
		qty = c.MinQty
	}
	if c.MaxQty > 0 && qty > c.MaxQty {
		qty = c.MaxQty
	}
	if (c.MinQty > 0 && qty < c.MinQty) || (c.MaxQty > 0 && qty > c.MaxQty) {
		return nil, &domain.QtyOutOfRangeError{Symbol: c.Symbol, Qty: qty, Min: c.MinQty, Max: c.MaxQty}
	}

	plan := &NormalizedOrderPlan{
		Type:            spec.Type,
		Qty:             qty,
		ReduceOnly:      spec.ReduceOnly,
		TakeProfitPrice: spec.TakeProfitPrice,
		StopLossPrice:   spec.StopLossPrice,
	}

	if spec.Type == domain.OrderTypeLimit {
		if spec.Price <= 0 {
			return nil, &domain.PriceOutOfRangeError{Symbol: c.Symbol, Price: spec.Price, Tick: c.TickSize}
		}
		price := RoundPriceToTick(spec.Price, c.TickSize, mode)
		if price <= 0 {
			return nil, &domain.PriceOutOfRangeError{Symbol: c.Symbol, Price: price, Tick: c.TickSize}
		}
		plan.Price = price
	}

	return plan, nil
}
