/*
ledger.go - Double-entry posting engine

PURPOSE:
  The Ledger is the immutable source of truth for every financial effect in
  a simulated business. Purchases, deliveries, sales, bills, loans and
  campaigns all end up here as balanced transactions. Account balances are
  always derived from entries, there is no separately stored balance that
  can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: committed entries are never updated or deleted
  2. BALANCED: every transaction has debits == credits, so the trial
     balance is exactly zero after every Post
  3. ATOMIC: a transaction lands completely or not at all
  4. NO-NEGATIVE: accounts flagged !AllowNegative never go below zero

POSTING:
  A Transaction is an ordered set of Lines (account, side, amount).
  Post validates the whole set before appending anything. Each line becomes
  one Entry carrying its own running balance (normal-side signed).

UNDO OF UNCOMMITTED WORK:
  The simulation runs each command against live engines and, on failure,
  calls RollbackTo(mark) with the Mark taken before the command started.
  That only ever discards entries the failed command appended itself.

EXAMPLE FLOW:
  1. Start business: Dr Cash 50,000 / Cr Owner Equity 50,000
  2. Place order:    Dr Goods in Transit 2,000, Dr Freight 25 / Cr Cash 2,025
  3. Delivery:       Dr Inventory 2,000 / Cr Goods in Transit 2,000
  4. Sale:           Dr Cash 3,000 / Cr Sales Revenue 3,000
                     Dr COGS 1,200 / Cr Inventory 1,200

SEE ALSO:
  - accounts.go: chart of accounts and normal sides
  - reports.go: income statement, balance sheet, trial balance rows
*/
package ledger

import (
	"fmt"

	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/money"
)

// =============================================================================
// TYPES
// =============================================================================

type TransactionID string

// Line is one leg of a transaction.
type Line struct {
	Account AccountCode
	Side    Side
	Amount  money.Money
}

func DebitLine(account AccountCode, amount money.Money) Line {
	return Line{Account: account, Side: Debit, Amount: amount}
}

func CreditLine(account AccountCode, amount money.Money) Line {
	return Line{Account: account, Side: Credit, Amount: amount}
}

// Transaction is a balanced set of lines posted on one date.
type Transaction struct {
	ID        TransactionID
	Date      calendar.Date
	Memo      string
	Reference string // e.g. purchase order or bill id
	Lines     []Line
}

// Entry is one posted line. Exactly one of Debit/Credit is non-zero.
type Entry struct {
	Sequence       int64         `json:"sequence"`
	TransactionID  TransactionID `json:"transaction_id"`
	Date           calendar.Date `json:"date"`
	Account        AccountCode   `json:"account"`
	Debit          money.Money   `json:"debit"`
	Credit         money.Money   `json:"credit"`
	Memo           string        `json:"memo,omitempty"`
	Reference      string        `json:"reference,omitempty"`
	RunningBalance money.Money   `json:"running_balance"`
}

// signed returns the entry's effect on its account in normal-side terms.
func (e Entry) signed(normal Side) money.Money {
	if normal == Debit {
		return e.Debit.Sub(e.Credit)
	}
	return e.Credit.Sub(e.Debit)
}

// Mark identifies a position in the log for RollbackTo.
type Mark struct{ n int }

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is not safe for concurrent mutation. One writer per business.
type Ledger struct {
	chart    *Chart
	entries  []Entry
	balances map[AccountCode]money.Money
	txCount  int
}

func New(chart *Chart) *Ledger {
	if chart == nil {
		chart = DefaultChart()
	}
	return &Ledger{chart: chart, balances: make(map[AccountCode]money.Money)}
}

// Restore rebuilds a ledger from persisted entries, checking they still net to zero.
func Restore(chart *Chart, entries []Entry) (*Ledger, error) {
	l := New(chart)
	seen := make(map[TransactionID]bool)
	for i, e := range entries {
		acct, ok := l.chart.Lookup(e.Account)
		if !ok {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrCorruptLedger, e.Sequence, ErrUnknownAccount)
		}
		if e.Sequence != int64(i+1) {
			return nil, fmt.Errorf("%w: sequence gap at %d", ErrCorruptLedger, e.Sequence)
		}
		bal := l.balances[e.Account].Add(e.signed(acct.NormalSide()))
		l.balances[e.Account] = bal
		e.RunningBalance = bal
		l.entries = append(l.entries, e)
		if !seen[e.TransactionID] {
			seen[e.TransactionID] = true
			l.txCount++
		}
	}
	if tb := l.TrialBalance(); !tb.IsZero() {
		return nil, fmt.Errorf("%w: trial balance %s", ErrCorruptLedger, tb)
	}
	return l, nil
}

func (l *Ledger) Chart() *Chart { return l.chart }

// Post validates and appends a transaction. All lines or none.
func (l *Ledger) Post(tx Transaction) ([]Entry, error) {
	if tx.ID == "" {
		tx.ID = TransactionID(fmt.Sprintf("tx-%06d", l.txCount+1))
	}
	if len(tx.Lines) < 2 {
		return nil, fmt.Errorf("%s: %w", tx.ID, ErrTooFewLines)
	}

	debits, credits := money.Zero, money.Zero
	deltas := make(map[AccountCode]money.Money)
	lines := make([]Line, len(tx.Lines))
	for i, line := range tx.Lines {
		acct, ok := l.chart.Lookup(line.Account)
		if !ok {
			return nil, fmt.Errorf("%s: %w: %s", tx.ID, ErrUnknownAccount, line.Account)
		}
		line.Amount = line.Amount.RoundCents()
		if !line.Amount.IsPositive() {
			return nil, fmt.Errorf("%s: %w: %s %s", tx.ID, ErrNonPositiveAmount, line.Account, line.Amount)
		}
		switch line.Side {
		case Debit:
			debits = debits.Add(line.Amount)
		case Credit:
			credits = credits.Add(line.Amount)
		default:
			return nil, fmt.Errorf("%s: invalid side %q", tx.ID, line.Side)
		}
		delta := line.Amount
		if line.Side != acct.NormalSide() {
			delta = delta.Neg()
		}
		deltas[line.Account] = deltas[line.Account].Add(delta)
		lines[i] = line
	}

	if !debits.Equal(credits) {
		return nil, &ImbalancedTransactionError{TransactionID: tx.ID, Debits: debits, Credits: credits}
	}

	for code, delta := range deltas {
		acct, _ := l.chart.Lookup(code)
		if acct.AllowNegative {
			continue
		}
		projected := l.balances[code].Add(delta)
		if projected.IsNegative() {
			return nil, &NegativeBalanceError{Account: code, Balance: l.balances[code], Projected: projected}
		}
	}

	// Validated: append
	posted := make([]Entry, 0, len(lines))
	for _, line := range lines {
		acct, _ := l.chart.Lookup(line.Account)
		e := Entry{
			Sequence:      int64(len(l.entries) + 1),
			TransactionID: tx.ID,
			Date:          tx.Date,
			Account:       line.Account,
			Memo:          tx.Memo,
			Reference:     tx.Reference,
		}
		if line.Side == Debit {
			e.Debit = line.Amount
		} else {
			e.Credit = line.Amount
		}
		bal := l.balances[line.Account].Add(e.signed(acct.NormalSide()))
		l.balances[line.Account] = bal
		e.RunningBalance = bal
		l.entries = append(l.entries, e)
		posted = append(posted, e)
	}
	l.txCount++
	return posted, nil
}

// Mark returns the current end of the log.
func (l *Ledger) Mark() Mark { return Mark{n: len(l.entries)} }

// RollbackTo discards entries appended after m. Used only to abort the
// command that appended them.
func (l *Ledger) RollbackTo(m Mark) {
	if m.n >= len(l.entries) {
		return
	}
	txs := make(map[TransactionID]bool)
	for _, e := range l.entries[m.n:] {
		acct, _ := l.chart.Lookup(e.Account)
		l.balances[e.Account] = l.balances[e.Account].Sub(e.signed(acct.NormalSide()))
		txs[e.TransactionID] = true
	}
	l.entries = l.entries[:m.n]
	l.txCount -= len(txs)
}

// =============================================================================
// READS
// =============================================================================

// Current returns the latest balance of an account.
func (l *Ledger) Current(code AccountCode) money.Money {
	return l.balances[code]
}

// Balance returns the balance of an account counting entries dated on or before asOf.
func (l *Ledger) Balance(code AccountCode, asOf calendar.Date) (money.Money, error) {
	acct, ok := l.chart.Lookup(code)
	if !ok {
		return money.Zero, fmt.Errorf("%w: %s", ErrUnknownAccount, code)
	}
	bal := money.Zero
	for _, e := range l.entries {
		if e.Account != code || e.Date.After(asOf) {
			continue
		}
		bal = bal.Add(e.signed(acct.NormalSide()))
	}
	return bal, nil
}

// Activity returns the net movement of an account within r, normal-side signed.
func (l *Ledger) Activity(code AccountCode, r calendar.Range) money.Money {
	acct, ok := l.chart.Lookup(code)
	if !ok {
		return money.Zero
	}
	total := money.Zero
	for _, e := range l.entries {
		if e.Account == code && r.Contains(e.Date) {
			total = total.Add(e.signed(acct.NormalSide()))
		}
	}
	return total
}

// TrialBalance returns sum(debit-normal balances) - sum(credit-normal balances).
// It is zero whenever the books are consistent.
func (l *Ledger) TrialBalance() money.Money {
	total := money.Zero
	for code, bal := range l.balances {
		acct, _ := l.chart.Lookup(code)
		if acct.NormalSide() == Debit {
			total = total.Add(bal)
		} else {
			total = total.Sub(bal)
		}
	}
	return total
}

// Entries returns a copy of the whole log.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// EntriesSince returns entries with sequence > seq.
func (l *Ledger) EntriesSince(seq int64) []Entry {
	if seq < 0 {
		seq = 0
	}
	if int(seq) >= len(l.entries) {
		return nil
	}
	out := make([]Entry, len(l.entries)-int(seq))
	copy(out, l.entries[seq:])
	return out
}

// EntriesFor returns the entries posted to one account.
func (l *Ledger) EntriesFor(code AccountCode) []Entry {
	var out []Entry
	for _, e := range l.entries {
		if e.Account == code {
			out = append(out, e)
		}
	}
	return out
}

func (l *Ledger) Len() int { return len(l.entries) }
