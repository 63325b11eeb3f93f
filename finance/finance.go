/*
Package finance generates the scheduled money events of a business:
recurring operating expenses and loans.

PURPOSE:
  Like an accrual schedule, each item here answers "what happens on day d?".
  The scheduler calls Process once per simulated day, in day order.

LOANS (simple daily interest):
  - TakeLoan:      Dr Cash / Cr Loans Payable (principal)
  - every day:     Dr Interest Expense / Cr Interest Payable,
                   outstanding principal x annual rate / 365, rounded to cents
  - installment:   every IntervalDays a bill is opened for the principal part
                   plus the interest accrued since the last installment:
                   Dr Loans Payable + Dr Interest Payable / Cr Accounts Payable
  The bill is then settled (or goes overdue) like any other payable.
  Interest does not compound: it accrues on outstanding principal only.

RECURRING EXPENSES:
  On DayOfMonth (clamped to the month length) a bill is opened:
  Dr <expense account> / Cr Accounts Payable, due NetDays later.

SEE ALSO:
  - payables/payables.go: settlement and overdue handling
  - sim/scheduler.go: step 3 of the daily cycle
*/
package finance

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/ids"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/payables"
)

var (
	ErrInvalidLoan    = errors.New("invalid loan terms")
	ErrInvalidExpense = errors.New("invalid recurring expense")
)

var daysPerYear = decimal.NewFromInt(365)

// =============================================================================
// LOANS
// =============================================================================

type LoanStatus string

const (
	LoanActive LoanStatus = "active"
	LoanRepaid LoanStatus = "repaid"
)

type Loan struct {
	ID              string          `json:"id"`
	Lender          string          `json:"lender"`
	Principal       money.Money     `json:"principal"`
	Outstanding     money.Money     `json:"outstanding"`
	AnnualRate      decimal.Decimal `json:"annual_rate"`
	Start           calendar.Date   `json:"start"`
	Installments    int             `json:"installments"`
	IntervalDays    int             `json:"interval_days"`
	InstallmentsDue int             `json:"installments_due"`
	NextDue         calendar.Date   `json:"next_due"`
	AccruedInterest money.Money     `json:"accrued_interest"`
	Status          LoanStatus      `json:"status"`
}

// DailyInterest is simple interest for one day on the outstanding principal.
func (l Loan) DailyInterest() money.Money {
	return l.Outstanding.Mul(l.AnnualRate).Div(daysPerYear).RoundCents()
}

// PrincipalPart is the principal billed with the next installment.
// The last installment clears whatever is left.
func (l Loan) PrincipalPart() money.Money {
	remaining := l.Installments - l.InstallmentsDue
	if remaining <= 1 {
		return l.Outstanding
	}
	part := l.Principal.Div(decimal.NewFromInt(int64(l.Installments))).RoundCents()
	return part.Min(l.Outstanding)
}

// LoanTerms is the request to borrow.
type LoanTerms struct {
	Lender       string
	Principal    money.Money
	AnnualRate   decimal.Decimal
	Installments int
	IntervalDays int
}

func (t LoanTerms) Validate() error {
	switch {
	case !t.Principal.IsPositive():
		return fmt.Errorf("%w: principal must be positive", ErrInvalidLoan)
	case t.AnnualRate.IsNegative():
		return fmt.Errorf("%w: negative rate", ErrInvalidLoan)
	case t.Installments <= 0:
		return fmt.Errorf("%w: installments must be positive", ErrInvalidLoan)
	case t.IntervalDays <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalidLoan)
	}
	return nil
}

// =============================================================================
// RECURRING EXPENSES
// =============================================================================

type RecurringExpense struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Payee      string             `json:"payee"`
	Amount     money.Money        `json:"amount"`
	DayOfMonth int                `json:"day_of_month"`
	NetDays    int                `json:"net_days"`
	Account    ledger.AccountCode `json:"account"`
}

func (e RecurringExpense) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidExpense)
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: %s amount must be positive", ErrInvalidExpense, e.ID)
	}
	if e.DayOfMonth < 1 || e.DayOfMonth > 31 {
		return fmt.Errorf("%w: %s day of month %d", ErrInvalidExpense, e.ID, e.DayOfMonth)
	}
	if e.NetDays < 0 {
		return fmt.Errorf("%w: %s negative net days", ErrInvalidExpense, e.ID)
	}
	return nil
}

// DueOn reports whether the expense falls on d. Day 31 means "last day" in short months.
func (e RecurringExpense) DueOn(d calendar.Date) bool {
	last := time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	day := e.DayOfMonth
	if day > last {
		day = last
	}
	return d.Day() == day
}

// =============================================================================
// BOOK
// =============================================================================

type Book struct {
	ledger   *ledger.Ledger
	payables *payables.Book
	ids      ids.Generator
	loans    []Loan
	expenses []RecurringExpense
}

func New(l *ledger.Ledger, ap *payables.Book, gen ids.Generator, expenses []RecurringExpense) (*Book, error) {
	b := &Book{ledger: l, payables: ap, ids: gen}
	for _, e := range expenses {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if e.Account == "" {
			e.Account = ledger.OperatingExpense
		}
		b.expenses = append(b.expenses, e)
	}
	return b, nil
}

func Restore(l *ledger.Ledger, ap *payables.Book, gen ids.Generator, expenses []RecurringExpense, loans []Loan) (*Book, error) {
	b, err := New(l, ap, gen, expenses)
	if err != nil {
		return nil, err
	}
	b.loans = append([]Loan(nil), loans...)
	return b, nil
}

// TakeLoan books the principal into cash.
func (b *Book) TakeLoan(terms LoanTerms, date calendar.Date) (Loan, error) {
	if err := terms.Validate(); err != nil {
		return Loan{}, err
	}
	principal := terms.Principal.RoundCents()
	loan := Loan{
		ID:              b.ids.Next("loan", len(b.loans)+1),
		Lender:          terms.Lender,
		Principal:       principal,
		Outstanding:     principal,
		AnnualRate:      terms.AnnualRate,
		Start:           date,
		Installments:    terms.Installments,
		IntervalDays:    terms.IntervalDays,
		NextDue:         date.AddDays(terms.IntervalDays),
		AccruedInterest: money.Zero,
		Status:          LoanActive,
	}
	if loan.Lender == "" {
		loan.Lender = "Bank"
	}
	if _, err := b.ledger.Post(ledger.Transaction{
		Date:      date,
		Memo:      "loan from " + loan.Lender,
		Reference: loan.ID,
		Lines: []ledger.Line{
			ledger.DebitLine(ledger.Cash, principal),
			ledger.CreditLine(ledger.LoanPayable, principal),
		},
	}); err != nil {
		return Loan{}, err
	}
	b.loans = append(b.loans, loan)
	return loan, nil
}

// Activity is what Process did on one day.
type Activity struct {
	ExpenseBills     []payables.Bill `json:"expense_bills,omitempty"`
	InterestAccrued  money.Money     `json:"interest_accrued"`
	InstallmentBills []payables.Bill `json:"installment_bills,omitempty"`
}

// Process accrues expenses, interest and installments for day d.
func (b *Book) Process(d calendar.Date) (Activity, error) {
	act := Activity{InterestAccrued: money.Zero}

	for _, e := range b.expenses {
		if !e.DueOn(d) {
			continue
		}
		payee := e.Payee
		if payee == "" {
			payee = e.Name
		}
		bill, err := b.payables.Accrue(payables.Bill{
			Payee:     payee,
			Source:    payables.SourceExpense,
			Reference: e.ID,
			Amount:    e.Amount,
			Issued:    d,
			Due:       d.AddDays(e.NetDays),
		}, []ledger.Line{ledger.DebitLine(e.Account, e.Amount)}, e.Name)
		if err != nil {
			return act, fmt.Errorf("expense %s: %w", e.ID, err)
		}
		act.ExpenseBills = append(act.ExpenseBills, bill)
	}

	for i := range b.loans {
		loan := b.loans[i]
		if loan.Status != LoanActive || !d.After(loan.Start) {
			continue
		}
		if interest := loan.DailyInterest(); interest.IsPositive() {
			if _, err := b.ledger.Post(ledger.Transaction{
				Date:      d,
				Memo:      "interest accrual",
				Reference: loan.ID,
				Lines: []ledger.Line{
					ledger.DebitLine(ledger.InterestExpense, interest),
					ledger.CreditLine(ledger.InterestPayable, interest),
				},
			}); err != nil {
				return act, fmt.Errorf("loan %s interest: %w", loan.ID, err)
			}
			loan.AccruedInterest = loan.AccruedInterest.Add(interest)
			act.InterestAccrued = act.InterestAccrued.Add(interest)
		}

		if !loan.NextDue.After(d) {
			bill, err := b.billInstallment(&loan, d)
			if err != nil {
				return act, err
			}
			act.InstallmentBills = append(act.InstallmentBills, bill)
		}
		b.loans[i] = loan
	}
	return act, nil
}

func (b *Book) billInstallment(loan *Loan, d calendar.Date) (payables.Bill, error) {
	principal := loan.PrincipalPart()
	var debits []ledger.Line
	if principal.IsPositive() {
		debits = append(debits, ledger.DebitLine(ledger.LoanPayable, principal))
	}
	if loan.AccruedInterest.IsPositive() {
		debits = append(debits, ledger.DebitLine(ledger.InterestPayable, loan.AccruedInterest))
	}
	amount := principal.Add(loan.AccruedInterest)
	bill, err := b.payables.Accrue(payables.Bill{
		Payee:     loan.Lender,
		Source:    payables.SourceLoan,
		Reference: loan.ID,
		Amount:    amount,
		Issued:    d,
		Due:       d,
	}, debits, fmt.Sprintf("loan installment %d/%d", loan.InstallmentsDue+1, loan.Installments))
	if err != nil {
		return payables.Bill{}, fmt.Errorf("loan %s installment: %w", loan.ID, err)
	}
	loan.Outstanding = loan.Outstanding.Sub(principal)
	loan.AccruedInterest = money.Zero
	loan.InstallmentsDue++
	loan.NextDue = loan.NextDue.AddDays(loan.IntervalDays)
	if loan.Outstanding.IsZero() {
		loan.Status = LoanRepaid
	}
	return bill, nil
}

// =============================================================================
// CHECKPOINT & QUERIES
// =============================================================================

type Checkpoint struct{ loans []Loan }

func (b *Book) Checkpoint() Checkpoint { return Checkpoint{loans: append([]Loan(nil), b.loans...)} }

func (b *Book) RestoreCheckpoint(cp Checkpoint) { b.loans = cp.loans }

func (b *Book) Loans() []Loan { return append([]Loan(nil), b.loans...) }

func (b *Book) Expenses() []RecurringExpense {
	return append([]RecurringExpense(nil), b.expenses...)
}

// OutstandingPrincipal sums the principal still owed across loans.
func (b *Book) OutstandingPrincipal() money.Money {
	total := money.Zero
	for _, l := range b.loans {
		total = total.Add(l.Outstanding)
	}
	return total
}
