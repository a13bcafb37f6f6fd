package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSymbolUnknown means the canonical symbol has no contract on the
	// target exchange.
	ErrSymbolUnknown = errors.New("symbol unknown")
	// ErrSizingUnresolved means no sizing path of an OrderSpec produced a
	// positive quantity.
	ErrSizingUnresolved = errors.New("order sizing unresolved")
	// ErrMarginModeLocked marks margin-mode changes rejected because a
	// position or open orders exist. The engine swallows these.
	ErrMarginModeLocked = errors.New("margin mode locked by open position or orders")
)

// APIError is a classified exchange REST failure. Retryable errors (HTTP
// 429, 5xx, transport failures) are retried by the transport; everything
// else surfaces immediately.
type APIError struct {
	Exchange   string
	HTTPStatus int
	Code       string
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: api error http=%d code=%s: %s", e.Exchange, e.HTTPStatus, e.Code, e.Message)
}

// AuthError is a signature or credential failure. Never retried.
type AuthError struct {
	Exchange string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Exchange, e.Message)
}

// MaintenanceError marks an endpoint the exchange has feature-flagged off,
// so callers do not mistake it for a transient failure.
type MaintenanceError struct {
	Exchange string
	Endpoint string
	Message  string
}

func (e *MaintenanceError) Error() string {
	return fmt.Sprintf("%s: endpoint %s unavailable: %s", e.Exchange, e.Endpoint, e.Message)
}

// QtyOutOfRangeError means the quantity is outside the instrument bounds
// even after step rounding and clamping.
type QtyOutOfRangeError struct {
	Symbol string
	Qty    float64
	Min    float64
	Max    float64
}

func (e *QtyOutOfRangeError) Error() string {
	return fmt.Sprintf("%s: qty %v outside [%v, %v]", e.Symbol, e.Qty, e.Min, e.Max)
}

// PriceOutOfRangeError means a limit price is missing or not on the tick grid.
type PriceOutOfRangeError struct {
	Symbol string
	Price  float64
	Tick   float64
}

func (e *PriceOutOfRangeError) Error() string {
	return fmt.Sprintf("%s: price %v invalid for tick %v", e.Symbol, e.Price, e.Tick)
}

// LeverageError means the requested leverage is outside the instrument
// bounds. Leverage is rejected, never rounded.
type LeverageError struct {
	Symbol    string
	Requested int
	Min       int
	Max       int
}

func (e *LeverageError) Error() string {
	return fmt.Sprintf("%s: leverage %d outside [%d, %d]", e.Symbol, e.Requested, e.Min, e.Max)
}

// IsValidation reports whether err belongs to the validation taxonomy the
// engine maps to blocked{validation}.
func IsValidation(err error) bool {
	var qty *QtyOutOfRangeError
	var price *PriceOutOfRangeError
	var lev *LeverageError
	return errors.As(err, &qty) ||
		errors.As(err, &price) ||
		errors.As(err, &lev) ||
		errors.Is(err, ErrSizingUnresolved)
}

// ValidationName returns the typed name of a validation error for risk
// event metadata.
func ValidationName(err error) string {
	var qty *QtyOutOfRangeError
	var price *PriceOutOfRangeError
	var lev *LeverageError
	switch {
	case errors.As(err, &qty):
		return "QtyOutOfRangeError"
	case errors.As(err, &price):
		return "PriceOutOfRangeError"
	case errors.As(err, &lev):
		return "LeverageError"
	case errors.Is(err, ErrSizingUnresolved):
		return "SizingUnresolvedError"
	default:
		return "ValidationError"
	}
}
