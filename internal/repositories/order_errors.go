package repositories

import "errors"

var (
	// ErrOrderNotFound indicates the order document does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderItemNotFound indicates the order exists but the item does not.
	ErrOrderItemNotFound = errors.New("order: item not found")
	// ErrOrderStatusConflict indicates a compare-and-set update lost to a
	// concurrent transition.
	ErrOrderStatusConflict = errors.New("order: fulfillment status changed concurrently")
)
