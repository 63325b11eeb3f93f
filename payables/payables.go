/*
Package payables tracks bills owed by a business (accounts payable).

PURPOSE:
  A Bill is an amount owed to a payee with a due date. Bills come from three
  sources: purchase orders delivered on credit terms, recurring expenses, and
  loan installments. The ledger liability (Accounts Payable) is credited when
  the obligation arises; the Bill is the sub-ledger record that says to whom
  and by when.

STATUS MACHINE:
  Open ──pay──> Paid
    │
    └─(due date passes without cash)──> Overdue ──pay──> Paid

  Overdue is a reporting state, not an error. Settle retries overdue bills
  every simulated day until cash allows.

POSTINGS:
  Accrue:  Dr <expense or liability lines> / Cr Accounts Payable
  Pay:     Dr Accounts Payable / Cr Cash

AGING:
  Aging buckets bills by days past due: Current, 1-30, 31-60, 61-90, 90+.

SEE ALSO:
  - procurement/orders.go: opens bills for NET-terms deliveries
  - finance/finance.go: opens bills for expenses and loan installments
*/
package payables

import (
	"errors"
	"fmt"
	"sort"

	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/ids"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
)

var (
	ErrBillNotFound = errors.New("bill not found")
	ErrAlreadyPaid  = errors.New("bill already paid")
	ErrInvalidBill  = errors.New("invalid bill")
)

// =============================================================================
// TYPES
// =============================================================================

type Status string

const (
	StatusOpen    Status = "open"
	StatusOverdue Status = "overdue"
	StatusPaid    Status = "paid"
)

type Source string

const (
	SourcePurchase Source = "purchase"
	SourceExpense  Source = "expense"
	SourceLoan     Source = "loan"
)

type Bill struct {
	ID        string        `json:"id"`
	Payee     string        `json:"payee"`
	VendorID  string        `json:"vendor_id,omitempty"`
	Source    Source        `json:"source"`
	Reference string        `json:"reference,omitempty"`
	Amount    money.Money   `json:"amount"`
	Issued    calendar.Date `json:"issued"`
	Due       calendar.Date `json:"due"`
	Status    Status        `json:"status"`
	PaidOn    calendar.Date `json:"paid_on,omitempty"`
}

func (b Bill) Outstanding() bool { return b.Status != StatusPaid }

// DaysPastDue is zero while the bill is not yet due.
func (b Bill) DaysPastDue(asOf calendar.Date) int {
	d := calendar.DaysBetween(b.Due, asOf)
	if d < 0 {
		return 0
	}
	return d
}

// =============================================================================
// BOOK
// =============================================================================

// Book holds every bill of one business, in issue order.
type Book struct {
	ledger *ledger.Ledger
	ids    ids.Generator
	bills  []Bill
}

func New(l *ledger.Ledger, gen ids.Generator) *Book {
	return &Book{ledger: l, ids: gen}
}

func Restore(l *ledger.Ledger, gen ids.Generator, bills []Bill) *Book {
	return &Book{ledger: l, ids: gen, bills: append([]Bill(nil), bills...)}
}

// Record registers a bill whose liability is already in Accounts Payable.
func (b *Book) Record(bill Bill) (Bill, error) {
	if !bill.Amount.IsPositive() {
		return Bill{}, fmt.Errorf("%w: amount must be positive", ErrInvalidBill)
	}
	if bill.Due.Before(bill.Issued) {
		return Bill{}, fmt.Errorf("%w: due before issue date", ErrInvalidBill)
	}
	bill.Amount = bill.Amount.RoundCents()
	bill.ID = b.ids.Next("bill", len(b.bills)+1)
	bill.Status = StatusOpen
	bill.PaidOn = calendar.Date{}
	b.bills = append(b.bills, bill)
	return bill, nil
}

// Accrue posts debits against Accounts Payable and records the bill.
// The debit lines must sum to the bill amount.
func (b *Book) Accrue(bill Bill, debits []ledger.Line, memo string) (Bill, error) {
	if !bill.Amount.IsPositive() {
		return Bill{}, fmt.Errorf("%w: amount must be positive", ErrInvalidBill)
	}
	lines := append(append([]ledger.Line(nil), debits...), ledger.CreditLine(ledger.AccountsPayable, bill.Amount))
	if _, err := b.ledger.Post(ledger.Transaction{
		Date:      bill.Issued,
		Memo:      memo,
		Reference: bill.Reference,
		Lines:     lines,
	}); err != nil {
		return Bill{}, err
	}
	return b.Record(bill)
}

// Pay settles a bill in full from cash.
func (b *Book) Pay(id string, date calendar.Date) (Bill, error) {
	i := b.index(id)
	if i < 0 {
		return Bill{}, fmt.Errorf("%w: %s", ErrBillNotFound, id)
	}
	bill := b.bills[i]
	if bill.Status == StatusPaid {
		return Bill{}, fmt.Errorf("%w: %s", ErrAlreadyPaid, id)
	}
	if err := b.ledger.RequireCash(bill.Amount); err != nil {
		return Bill{}, err
	}
	if _, err := b.ledger.Post(ledger.Transaction{
		Date:      date,
		Memo:      "pay bill " + bill.Payee,
		Reference: bill.ID,
		Lines: []ledger.Line{
			ledger.DebitLine(ledger.AccountsPayable, bill.Amount),
			ledger.CreditLine(ledger.Cash, bill.Amount),
		},
	}); err != nil {
		return Bill{}, err
	}
	bill.Status = StatusPaid
	bill.PaidOn = date
	b.bills[i] = bill
	return bill, nil
}

// Settlement reports what Settle did on one day.
type Settlement struct {
	Paid       []Bill `json:"paid,omitempty"`
	NewOverdue []Bill `json:"new_overdue,omitempty"`
}

// Settle pays every bill due on or before date while cash allows, oldest due first.
// Bills that cannot be paid flip to Overdue.
func (b *Book) Settle(date calendar.Date) (Settlement, error) {
	var s Settlement
	for _, i := range b.dueIndexes(date) {
		bill := b.bills[i]
		if b.ledger.RequireCash(bill.Amount) != nil {
			if bill.Status == StatusOpen {
				bill.Status = StatusOverdue
				b.bills[i] = bill
				s.NewOverdue = append(s.NewOverdue, bill)
			}
			continue
		}
		paid, err := b.Pay(bill.ID, date)
		if err != nil {
			return s, err
		}
		s.Paid = append(s.Paid, paid)
	}
	return s, nil
}

func (b *Book) dueIndexes(date calendar.Date) []int {
	var idx []int
	for i, bill := range b.bills {
		if bill.Outstanding() && bill.Due.BeforeOrEqual(date) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(x, y int) bool { return b.bills[idx[x]].Due.Before(b.bills[idx[y]].Due) })
	return idx
}

func (b *Book) index(id string) int {
	for i := range b.bills {
		if b.bills[i].ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// CHECKPOINT
// =============================================================================

type Checkpoint struct{ bills []Bill }

func (b *Book) Checkpoint() Checkpoint { return Checkpoint{bills: append([]Bill(nil), b.bills...)} }

func (b *Book) RestoreCheckpoint(cp Checkpoint) { b.bills = cp.bills }

// =============================================================================
// QUERIES
// =============================================================================

func (b *Book) Get(id string) (Bill, bool) {
	if i := b.index(id); i >= 0 {
		return b.bills[i], true
	}
	return Bill{}, false
}

func (b *Book) All() []Bill { return append([]Bill(nil), b.bills...) }

func (b *Book) Outstanding() []Bill {
	var out []Bill
	for _, bill := range b.bills {
		if bill.Outstanding() {
			out = append(out, bill)
		}
	}
	return out
}

// OutstandingTotal is the sum of unpaid bills.
func (b *Book) OutstandingTotal() money.Money {
	total := money.Zero
	for _, bill := range b.Outstanding() {
		total = total.Add(bill.Amount)
	}
	return total
}

// AgingBucket is one column of the aging report.
type AgingBucket struct {
	Label   string      `json:"label"`
	MinDays int         `json:"min_days"`
	MaxDays int         `json:"max_days"` // -1 = open ended
	Total   money.Money `json:"total"`
	Bills   []Bill      `json:"bills,omitempty"`
}

// Aging groups outstanding bills by days past due.
type Aging struct {
	AsOf     calendar.Date `json:"as_of"`
	Buckets  []AgingBucket `json:"buckets"`
	Total    money.Money   `json:"total"`
	Overdue  money.Money   `json:"overdue"`
	Unbilled money.Money   `json:"unbilled"` // AP credited for undelivered orders
}

func (b *Book) Aging(asOf calendar.Date) Aging {
	a := Aging{
		AsOf: asOf,
		Buckets: []AgingBucket{
			{Label: "Current", MinDays: 0, MaxDays: 0},
			{Label: "1-30", MinDays: 1, MaxDays: 30},
			{Label: "31-60", MinDays: 31, MaxDays: 60},
			{Label: "61-90", MinDays: 61, MaxDays: 90},
			{Label: "90+", MinDays: 91, MaxDays: -1},
		},
	}
	for _, bill := range b.bills {
		if bill.Issued.After(asOf) {
			continue
		}
		if bill.Status == StatusPaid && !bill.PaidOn.After(asOf) {
			continue
		}
		days := bill.DaysPastDue(asOf)
		for i := range a.Buckets {
			bk := &a.Buckets[i]
			if days >= bk.MinDays && (bk.MaxDays < 0 || days <= bk.MaxDays) {
				bk.Bills = append(bk.Bills, bill)
				bk.Total = bk.Total.Add(bill.Amount)
				break
			}
		}
		a.Total = a.Total.Add(bill.Amount)
		if days > 0 {
			a.Overdue = a.Overdue.Add(bill.Amount)
		}
	}
	return a
}
