package repositories

import "fmt"

// StockErrorCode enumerates repository error causes for stock ledger operations.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorInsufficientStock indicates requested quantity exceeds availability.
	StockErrorInsufficientStock StockErrorCode = "stock_insufficient"
	// StockErrorVariantNotFound indicates the variant has no ledger record.
	StockErrorVariantNotFound StockErrorCode = "stock_variant_not_found"
	// StockErrorInvalidRelease indicates a release would drive reserved stock negative.
	StockErrorInvalidRelease StockErrorCode = "stock_invalid_release"
	// StockErrorTotalBelowReserved indicates an adjustment would shrink the
	// physical count below currently committed units.
	StockErrorTotalBelowReserved StockErrorCode = "stock_total_below_reserved"
	// StockErrorAlreadyReleased indicates the release ledger already holds a
	// record for this order item and event.
	StockErrorAlreadyReleased StockErrorCode = "stock_already_released"
)

// StockError wraps stock-ledger failures with machine readable codes.
type StockError struct {
	Op      string
	Code    StockErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock ledger error.
func NewStockError(code StockErrorCode, message string, err error) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
