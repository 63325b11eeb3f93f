package sim

import (
	"math"

	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/demand"
	"github.com/warp/harvest-engine/finance"
	"github.com/warp/harvest-engine/inventory"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/payables"
	"github.com/warp/harvest-engine/procurement"
)

// supplyWindowDays is how many recent days feed the days-of-supply estimate.
const supplyWindowDays = 7

// =============================================================================
// LEDGER QUERIES
// =============================================================================

// LedgerBalance is an account balance as of a date (zero date = today).
func (b *Business) LedgerBalance(code ledger.AccountCode, asOf calendar.Date) (money.Money, error) {
	if asOf.IsZero() {
		asOf = b.current
	}
	return b.ledger.Balance(code, asOf)
}

// TrialBalance is debits minus credits across all accounts. Always zero.
func (b *Business) TrialBalance() money.Money { return b.ledger.TrialBalance() }

func (b *Business) TrialBalanceRows(asOf calendar.Date) []ledger.TrialBalanceRow {
	if asOf.IsZero() {
		asOf = b.current
	}
	return b.ledger.TrialBalanceRows(asOf)
}

func (b *Business) IncomeStatement(r calendar.Range) (ledger.IncomeStatement, error) {
	return b.ledger.IncomeStatement(r)
}

func (b *Business) BalanceSheet(asOf calendar.Date) ledger.BalanceSheet {
	if asOf.IsZero() {
		asOf = b.current
	}
	return b.ledger.BalanceSheet(asOf)
}

func (b *Business) Cash() money.Money { return b.ledger.Current(ledger.Cash) }

func (b *Business) Entries() []ledger.Entry { return b.ledger.Entries() }

// EntriesSince returns entries with a sequence greater than seq.
func (b *Business) EntriesSince(seq int64) []ledger.Entry { return b.ledger.EntriesSince(seq) }

// =============================================================================
// INVENTORY QUERIES
// =============================================================================

// StockSnapshot is an inventory snapshot with a sales-velocity estimate.
type StockSnapshot struct {
	inventory.Snapshot
	AverageDailySales float64 `json:"average_daily_sales"`
	DaysOfSupply      float64 `json:"days_of_supply"` // -1 when nothing sold in the window
}

func (b *Business) InventorySnapshot(productID inventory.ProductID) (StockSnapshot, error) {
	if _, err := b.product(productID); err != nil {
		return StockSnapshot{}, err
	}
	s := StockSnapshot{Snapshot: b.inventory.Snapshot(productID), DaysOfSupply: -1}

	from := b.current.AddDays(-(supplyWindowDays - 1))
	var sold money.Quantity
	for _, r := range b.sales {
		if r.ProductID == productID && !r.Date.Before(from) {
			sold += r.Sold
		}
	}
	if sold > 0 {
		s.AverageDailySales = float64(sold) / supplyWindowDays
		s.DaysOfSupply = math.Round(float64(s.OnHand)/s.AverageDailySales*10) / 10
	}
	return s, nil
}

// InventoryValue is the FIFO cost of everything on hand.
func (b *Business) InventoryValue() money.Money { return b.inventory.Value() }

// =============================================================================
// PROCUREMENT & PAYABLES QUERIES
// =============================================================================

func (b *Business) OpenPurchaseOrders() []procurement.PurchaseOrder { return b.orders.Open() }

func (b *Business) PurchaseOrders() []procurement.PurchaseOrder { return b.orders.All() }

func (b *Business) PurchaseOrder(id string) (procurement.PurchaseOrder, bool) { return b.orders.Get(id) }

// AccountsPayableAging buckets outstanding bills as of today and reports
// payables committed on orders not yet delivered as Unbilled.
func (b *Business) AccountsPayableAging() payables.Aging {
	a := b.payables.Aging(b.current)
	a.Unbilled = b.orders.UnbilledPayables()
	return a
}

func (b *Business) Bills() []payables.Bill { return b.payables.All() }

func (b *Business) Loans() []finance.Loan { return b.finance.Loans() }

func (b *Business) Vendors() []procurement.Vendor {
	return append([]procurement.Vendor(nil), b.cfg.Vendors...)
}

// =============================================================================
// PRODUCT & DEMAND QUERIES
// =============================================================================

func (b *Business) Products() []Product {
	out := make([]Product, len(b.products))
	for i, p := range b.products {
		out[i] = p.clone()
	}
	return out
}

// ActiveModifiers lists events and campaigns in effect on d (zero date = tomorrow).
func (b *Business) ActiveModifiers(d calendar.Date) []demand.Modifier {
	if d.IsZero() {
		d = b.current.AddDays(1)
	}
	var out []demand.Modifier
	for _, m := range b.modifiers {
		if m.ActiveOn(d) {
			out = append(out, m)
		}
	}
	return out
}

// Modifiers lists every event and campaign ever started.
func (b *Business) Modifiers() []demand.Modifier {
	return append([]demand.Modifier(nil), b.modifiers...)
}

// Projection is the expected demand of one future day, before randomness.
type Projection struct {
	Date     calendar.Date `json:"date"`
	Expected float64       `json:"expected"`
}

// ProjectedDemand returns the expected demand for the next n days at the current price.
func (b *Business) ProjectedDemand(productID inventory.ProductID, days int) ([]Projection, error) {
	p, err := b.product(productID)
	if err != nil {
		return nil, err
	}
	if days < 1 || days > b.cfg.MaxAdvanceDays {
		return nil, ErrAdvanceLimit
	}
	out := make([]Projection, 0, days)
	for i := 1; i <= days; i++ {
		d := b.current.AddDays(i)
		e := b.model.Expected(b.demandInputs(p, d))
		out = append(out, Projection{Date: d, Expected: math.Round(e*100) / 100})
	}
	return out, nil
}

// ExplainDemand returns every demand factor for a product on a day.
func (b *Business) ExplainDemand(productID inventory.ProductID, d calendar.Date) (demand.Breakdown, error) {
	p, err := b.product(productID)
	if err != nil {
		return demand.Breakdown{}, err
	}
	return b.model.Explain(b.demandInputs(p, d)), nil
}

// SalesHistory returns the daily sales summary, oldest first.
func (b *Business) SalesHistory() []SalesRecord { return append([]SalesRecord(nil), b.sales...) }

// =============================================================================
// SUMMARY
// =============================================================================

// Summary is a headline view of the business.
type Summary struct {
	BusinessID          string        `json:"business_id"`
	Name                string        `json:"name"`
	Kind                string        `json:"kind,omitempty"`
	StartDate           calendar.Date `json:"start_date"`
	CurrentDate         calendar.Date `json:"current_date"`
	Day                 int           `json:"day"`
	Cash                money.Money   `json:"cash"`
	InventoryValue      money.Money   `json:"inventory_value"`
	LifetimeRevenue     money.Money   `json:"lifetime_revenue"`
	OpenOrders          int           `json:"open_orders"`
	OutstandingPayables money.Money   `json:"outstanding_payables"`
	OverdueBills        int           `json:"overdue_bills"`
	LoanPrincipal       money.Money   `json:"loan_principal"`
}

func (b *Business) State() Summary {
	overdue := 0
	for _, bill := range b.payables.Outstanding() {
		if bill.Status == payables.StatusOverdue {
			overdue++
		}
	}
	return Summary{
		BusinessID:          b.cfg.BusinessID,
		Name:                b.cfg.Name,
		Kind:                b.cfg.Kind,
		StartDate:           b.cfg.StartDate,
		CurrentDate:         b.current,
		Day:                 calendar.DaysBetween(b.cfg.StartDate, b.current),
		Cash:                b.Cash(),
		InventoryValue:      b.inventory.Value(),
		LifetimeRevenue:     b.lifetimeRevenue,
		OpenOrders:          len(b.orders.Open()),
		OutstandingPayables: b.ledger.Current(ledger.AccountsPayable),
		OverdueBills:        overdue,
		LoanPrincipal:       b.finance.OutstandingPrincipal(),
	}
}

func (b *Business) ID() string                   { return b.cfg.BusinessID }
func (b *Business) CurrentDate() calendar.Date   { return b.current }
func (b *Business) Config() Config               { return b.cfg }
func (b *Business) LifetimeRevenue() money.Money { return b.lifetimeRevenue }
