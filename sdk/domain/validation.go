package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError representa un error de validación.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implementa la interfaz error.
func (v *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s' with value '%v': %s", v.Field, v.Value, v.Message)
}

// NewValidationError crea un nuevo ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{1,12}(\.[A-Z]{2,4})?$`)

// ValidateSymbolFormat valida el formato básico de un símbolo.
//
// Formato esperado: código alfanumérico con sufijo de mercado opcional
// (ej. 600000.SH, 000001.SZ).
func ValidateSymbolFormat(symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return NewValidationError("symbol", symbol, "symbol cannot be empty")
	}
	if !symbolPattern.MatchString(strings.ToUpper(symbol)) {
		return NewValidationError("symbol", symbol, "invalid symbol format (expected: CODE[.MARKET])")
	}
	return nil
}

// ValidateAccountID valida que la cuenta no esté vacía.
func ValidateAccountID(accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return NewValidationError("account_id", accountID, "account_id cannot be empty")
	}
	return nil
}

// Validate revisa los campos de nivel superior de una orden.
//
// No reemplaza las validaciones del motor (límites de precio, lotes, saldo).
func (o *OrderRequest) Validate() error {
	if err := ValidateAccountID(o.AccountID); err != nil {
		return err
	}
	if err := ValidateSymbolFormat(o.Symbol); err != nil {
		return err
	}

	switch o.OrderType {
	case OrderTypeBuy, OrderTypeSell:
	default:
		return NewValidationError("order_type", o.OrderType, "must be buy or sell")
	}

	switch o.PriceType {
	case PriceTypeLimit:
		if o.Price <= 0 {
			return NewValidationError("price", o.Price, "limit orders require a positive price")
		}
	case PriceTypeMarket:
	default:
		return NewValidationError("price_type", o.PriceType, "must be limit or market")
	}

	if o.Volume <= 0 {
		return NewValidationError("volume", o.Volume, "volume must be positive")
	}
	return nil
}

// Validate revisa los params de cancel_order.
func (c *CancelRequest) Validate() error {
	if err := ValidateAccountID(c.AccountID); err != nil {
		return err
	}
	if strings.TrimSpace(c.OrderID) == "" {
		return NewValidationError("order_id", c.OrderID, "order_id cannot be empty")
	}
	return nil
}

// IsKnownAction reporta si la acción es una de KnownActions.
func IsKnownAction(action string) bool {
	for _, a := range KnownActions {
		if string(a) == action {
			return true
		}
	}
	return false
}
