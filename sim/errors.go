/*
errors.go - Error taxonomy of the simulation

PURPOSE:
  Callers (service, API, CLI) only need to know three things about a failed
  command: was the input bad, was something missing, or did the books break.

ERROR CATEGORIES:
  1. Invariant violations - ledger imbalance or a forbidden negative balance.
     The command is rolled back; this is a bug, not a user mistake.
  2. Domain rejections - the command is valid input but the business says no:
     not enough cash, below a vendor minimum, locked product, bad state.
  3. Not found - unknown product, vendor, order or bill.

  Stockouts and overdue bills are NOT errors. They are reported as values
  in the day report and the aging report.

SEE ALSO:
  - ledger/errors.go: invariant violations and ErrInsufficientCash
  - procurement/errors.go: minimum order and state errors
*/
package sim

import (
	"errors"
	"fmt"

	"github.com/warp/harvest-engine/finance"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/payables"
	"github.com/warp/harvest-engine/procurement"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrInsufficientCash aliases the ledger sentinel so callers need not import ledger.
	ErrInsufficientCash = ledger.ErrInsufficientCash

	ErrProductLocked   = errors.New("product is locked")
	ErrUnknownProduct  = errors.New("unknown product")
	ErrUnknownVendor   = errors.New("unknown vendor")
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrInvalidCampaign = errors.New("invalid campaign")
	ErrAdvanceLimit    = errors.New("days to advance out of range")
	ErrInvalidConfig   = errors.New("invalid business config")
)

// InsufficientCashError is the structured form of ErrInsufficientCash.
type InsufficientCashError = ledger.InsufficientCashError

// ProductLockedError names the product and what it takes to unlock it.
type ProductLockedError struct {
	ProductID     string
	UnlockRevenue string
}

func (e *ProductLockedError) Error() string {
	return fmt.Sprintf("product %s is locked until lifetime revenue reaches %s", e.ProductID, e.UnlockRevenue)
}

func (e *ProductLockedError) Unwrap() error { return ErrProductLocked }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsInvariantViolation reports a broken accounting invariant.
func IsInvariantViolation(err error) bool {
	return ledger.IsInvariantViolation(err)
}

// IsDomainRejection returns true if the business refused a well-formed command.
func IsDomainRejection(err error) bool {
	return errors.Is(err, ErrInsufficientCash) ||
		errors.Is(err, ErrProductLocked) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidCampaign) ||
		errors.Is(err, ErrAdvanceLimit) ||
		errors.Is(err, procurement.ErrBelowMinimumOrder) ||
		errors.Is(err, procurement.ErrInvalidState) ||
		errors.Is(err, procurement.ErrLeadTimeElapsed) ||
		errors.Is(err, procurement.ErrProductNotCarried) ||
		errors.Is(err, procurement.ErrEmptyOrder) ||
		errors.Is(err, procurement.ErrInvalidQuantity) ||
		errors.Is(err, procurement.ErrInvalidUnitCost) ||
		errors.Is(err, payables.ErrAlreadyPaid) ||
		errors.Is(err, finance.ErrInvalidLoan)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrUnknownVendor) ||
		errors.Is(err, procurement.ErrOrderNotFound) ||
		errors.Is(err, payables.ErrBillNotFound)
}
