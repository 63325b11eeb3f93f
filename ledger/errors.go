/*
errors.go - Ledger error types

ERROR CATEGORIES:
  1. Invariant violations - ErrImbalanced, ErrNegativeBalance, ErrCorruptLedger.
     A command that hits one of these is aborted and rolled back.
  2. Malformed input - ErrUnknownAccount, ErrNonPositiveAmount, ErrTooFewLines.
  3. Domain rejection - ErrInsufficientCash, raised by RequireCash before
     a command spends money it does not have.

SEE ALSO:
  - ledger.go: Post validates with these
  - sim/errors.go: classifies them for callers
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/warp/harvest-engine/money"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrImbalanced is returned when debits and credits of a transaction differ.
	ErrImbalanced = errors.New("imbalanced transaction")

	// ErrNegativeBalance is returned when a posting would drive a
	// no-negative account (cash, stock) below zero.
	ErrNegativeBalance = errors.New("negative balance not allowed")

	ErrUnknownAccount    = errors.New("unknown account")
	ErrNonPositiveAmount = errors.New("line amount must be positive")
	ErrTooFewLines       = errors.New("transaction needs at least two lines")
	ErrDuplicateAccount  = errors.New("duplicate account code")

	// ErrCorruptLedger is returned when restored entries do not net to zero.
	ErrCorruptLedger = errors.New("corrupt ledger")

	// ErrInsufficientCash is a domain rejection: the command would spend
	// more cash than the business holds. Checked before posting.
	ErrInsufficientCash = errors.New("insufficient cash")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ImbalancedTransactionError carries both column totals.
type ImbalancedTransactionError struct {
	TransactionID TransactionID
	Debits        money.Money
	Credits       money.Money
}

func (e *ImbalancedTransactionError) Error() string {
	return fmt.Sprintf("imbalanced transaction %s: debits %s, credits %s",
		e.TransactionID, e.Debits, e.Credits)
}

func (e *ImbalancedTransactionError) Unwrap() error { return ErrImbalanced }

// NegativeBalanceError names the account that would have gone negative.
type NegativeBalanceError struct {
	Account   AccountCode
	Balance   money.Money
	Projected money.Money
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("account %s would go negative: balance %s, after posting %s",
		e.Account, e.Balance, e.Projected)
}

func (e *NegativeBalanceError) Unwrap() error { return ErrNegativeBalance }

// InsufficientCashError is returned by commands that pay cash up front.
type InsufficientCashError struct {
	Available money.Money
	Required  money.Money
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("insufficient cash: available %s, required %s", e.Available, e.Required)
}

func (e *InsufficientCashError) Unwrap() error { return ErrInsufficientCash }

// RequireCash fails with *InsufficientCashError when the Cash account holds less than amount.
func (l *Ledger) RequireCash(amount money.Money) error {
	available := l.Current(Cash)
	if available.LessThan(amount) {
		return &InsufficientCashError{Available: available, Required: amount}
	}
	return nil
}

// IsInvariantViolation returns true for errors that indicate broken books.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrImbalanced) ||
		errors.Is(err, ErrNegativeBalance) ||
		errors.Is(err, ErrCorruptLedger)
}
