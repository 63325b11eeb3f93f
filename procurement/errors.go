package procurement

import (
	"errors"
	"fmt"
)

var (
	// ErrBelowMinimumOrder is a domain rejection: the vendor will not ship
	// an order this small.
	ErrBelowMinimumOrder = errors.New("below vendor minimum order")

	ErrOrderNotFound     = errors.New("purchase order not found")
	ErrInvalidState      = errors.New("invalid purchase order state transition")
	ErrLeadTimeElapsed   = errors.New("lead time already started")
	ErrProductNotCarried = errors.New("vendor does not carry product")
	ErrEmptyOrder        = errors.New("order has no lines")
	ErrInvalidQuantity   = errors.New("order quantity must be positive")
	ErrInvalidShipping   = errors.New("invalid shipping model")
	ErrInvalidTerms      = errors.New("invalid payment terms")
	ErrInvalidUnitCost   = errors.New("unit cost must be positive")
)

// MinimumKind says which vendor minimum was missed.
type MinimumKind string

const (
	MinimumValue           MinimumKind = "order_value"
	MinimumQuantity        MinimumKind = "order_quantity"
	MinimumProductQuantity MinimumKind = "product_quantity"
)

// BelowMinimumOrderError details which minimum was not met.
type BelowMinimumOrderError struct {
	VendorID  string
	ProductID string // set for MinimumProductQuantity
	Kind      MinimumKind
	Minimum   string
	Actual    string
}

func (e *BelowMinimumOrderError) Error() string {
	if e.ProductID != "" {
		return fmt.Sprintf("below minimum order for vendor %s: %s %s is %s, minimum %s",
			e.VendorID, e.ProductID, e.Kind, e.Actual, e.Minimum)
	}
	return fmt.Sprintf("below minimum order for vendor %s: %s is %s, minimum %s",
		e.VendorID, e.Kind, e.Actual, e.Minimum)
}

func (e *BelowMinimumOrderError) Unwrap() error { return ErrBelowMinimumOrder }

// StateError names the transition that was refused.
type StateError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("purchase order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }
