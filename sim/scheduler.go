/*
scheduler.go - Time-advance scheduler

PURPOSE:
  Time only moves when asked. AdvanceDay simulates the next calendar day
  d = current + 1 in a fixed order, so a given history always produces the
  same books:

    1. DELIVERIES   purchase orders with expected <= d arrive
                    (GoodsInTransit -> Inventory, NET bills opened)
    2. SALES        per unlocked product: demand(d) -> FIFO consume -> revenue
                    and COGS. Stock limits sales; a stockout is a value
    3. FINANCE      recurring expenses, loan interest and installments,
                    then every bill due <= d is paid or flips to Overdue
    4. MILESTONES   products unlock once lifetime revenue crosses their
                    threshold; the market event roll may start an event
                    that takes effect from d + 1
    5. CLOCK        current date = d, only after everything above succeeded

  A day is all-or-nothing. If any step fails, every engine is restored to
  its state from before step 1 and the clock does not move.

  A single product's sale failing is contained: its own postings are
  undone, the failure is listed in the report, and the other products
  still sell.

SEE ALSO:
  - procurement/orders.go: AdvanceTo
  - demand/model.go: Daily
  - finance/finance.go: Process
  - payables/payables.go: Settle
*/
package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/demand"
	"github.com/warp/harvest-engine/inventory"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/payables"
	"github.com/warp/harvest-engine/procurement"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// Sale is the outcome of one product on one day.
type Sale struct {
	ProductID      inventory.ProductID `json:"product_id"`
	Name           string              `json:"name"`
	Demand         money.Quantity      `json:"demand"`
	Sold           money.Quantity      `json:"sold"`
	Stockout       bool                `json:"stockout"`
	Price          money.Money         `json:"price"`
	Revenue        money.Money         `json:"revenue"`
	COGS           money.Money         `json:"cogs"`
	StockRemaining money.Quantity      `json:"stock_remaining"`
}

// SaleFailure is a product whose sale could not be booked.
type SaleFailure struct {
	ProductID inventory.ProductID `json:"product_id"`
	Error     string              `json:"error"`
}

// DayReport is everything that happened on one simulated day.
type DayReport struct {
	Date             calendar.Date          `json:"date"`
	Deliveries       []procurement.Delivery `json:"deliveries,omitempty"`
	Sales            []Sale                 `json:"sales,omitempty"`
	Failures         []SaleFailure          `json:"failures,omitempty"`
	ExpenseBills     []payables.Bill        `json:"expense_bills,omitempty"`
	InterestAccrued  money.Money            `json:"interest_accrued"`
	InstallmentBills []payables.Bill        `json:"installment_bills,omitempty"`
	BillsPaid        []payables.Bill        `json:"bills_paid,omitempty"`
	BillsOverdue     []payables.Bill        `json:"bills_overdue,omitempty"`
	Unlocked         []inventory.ProductID  `json:"unlocked,omitempty"`
	EventsStarted    []demand.Modifier      `json:"events_started,omitempty"`
	Revenue          money.Money            `json:"revenue"`
	COGS             money.Money            `json:"cogs"`
	CashEnd          money.Money            `json:"cash_end"`
}

// SalesRecord is one row of the daily sales summary.
type SalesRecord struct {
	Date      calendar.Date       `json:"date"`
	ProductID inventory.ProductID `json:"product_id"`
	Demand    money.Quantity      `json:"demand"`
	Sold      money.Quantity      `json:"sold"`
	Revenue   money.Money         `json:"revenue"`
	COGS      money.Money         `json:"cogs"`
}

// =============================================================================
// ADVANCE
// =============================================================================

// AdvanceDay simulates the next day and moves the clock onto it.
func (b *Business) AdvanceDay() (DayReport, error) {
	var report DayReport
	err := b.atomically(func() error {
		var err error
		report, err = b.simulateDay(b.current.AddDays(1))
		return err
	})
	if err != nil {
		b.log.WithError(err).WithField("date", b.current.AddDays(1).String()).Error("day aborted")
		return DayReport{}, err
	}
	b.log.WithFields(logrus.Fields{
		"date":       report.Date.String(),
		"revenue":    report.Revenue.String(),
		"deliveries": len(report.Deliveries),
		"cash":       report.CashEnd.String(),
	}).Debug("day simulated")
	return report, nil
}

// AdvanceDays simulates n days, 1 <= n <= the configured limit.
// Days already simulated stay committed if a later day fails.
func (b *Business) AdvanceDays(n int) ([]DayReport, error) {
	if n < 1 || n > b.cfg.MaxAdvanceDays {
		return nil, fmt.Errorf("%w: %d (allowed 1..%d)", ErrAdvanceLimit, n, b.cfg.MaxAdvanceDays)
	}
	reports := make([]DayReport, 0, n)
	for i := 0; i < n; i++ {
		r, err := b.AdvanceDay()
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (b *Business) simulateDay(d calendar.Date) (DayReport, error) {
	report := DayReport{Date: d, Revenue: money.Zero, COGS: money.Zero, InterestAccrued: money.Zero}

	// 1. deliveries
	deliveries, err := b.orders.AdvanceTo(d)
	if err != nil {
		return report, fmt.Errorf("deliveries on %s: %w", d, err)
	}
	report.Deliveries = deliveries

	// 2. sales
	for i := range b.products {
		p := b.products[i]
		if !p.Unlocked {
			continue
		}
		sale, err := b.sell(p, d)
		if err != nil {
			b.log.WithError(err).WithFields(logrus.Fields{
				"date":    d.String(),
				"product": string(p.ID),
			}).Warn("sale failed")
			report.Failures = append(report.Failures, SaleFailure{ProductID: p.ID, Error: err.Error()})
			continue
		}
		report.Sales = append(report.Sales, sale)
		report.Revenue = report.Revenue.Add(sale.Revenue)
		report.COGS = report.COGS.Add(sale.COGS)
	}

	// 3. finance
	act, err := b.finance.Process(d)
	if err != nil {
		return report, fmt.Errorf("finance on %s: %w", d, err)
	}
	report.ExpenseBills = act.ExpenseBills
	report.InterestAccrued = act.InterestAccrued
	report.InstallmentBills = act.InstallmentBills

	settlement, err := b.payables.Settle(d)
	if err != nil {
		return report, fmt.Errorf("bill settlement on %s: %w", d, err)
	}
	report.BillsPaid = settlement.Paid
	report.BillsOverdue = settlement.NewOverdue

	// 4. milestones and market events
	report.Unlocked = b.unlockProducts(d)
	if ev, ok := b.rollMarketEvent(d); ok {
		report.EventsStarted = append(report.EventsStarted, ev)
	}

	if tb := b.ledger.TrialBalance(); !tb.IsZero() {
		return report, fmt.Errorf("%w: trial balance %s after %s", ledger.ErrCorruptLedger, tb, d)
	}

	// 5. clock
	report.CashEnd = b.ledger.Current(ledger.Cash)
	b.current = d
	return report, nil
}

// sell books one product's demand for day d. On error its postings are undone.
func (b *Business) sell(p Product, d calendar.Date) (Sale, error) {
	dem := b.model.Daily(b.demandInputs(p, d))
	sale := Sale{ProductID: p.ID, Name: p.Name, Demand: dem, Price: p.Price, Revenue: money.Zero, COGS: money.Zero}

	mark := b.ledger.Mark()
	invCp := b.inventory.Checkpoint()
	undo := func() {
		b.ledger.RollbackTo(mark)
		b.inventory.RestoreCheckpoint(invCp)
	}

	cons, err := b.inventory.Consume(p.ID, dem, d, fmt.Sprintf("cogs %s", p.ID))
	if err != nil {
		undo()
		return Sale{}, err
	}
	sale.Sold = cons.Fulfilled
	sale.Stockout = cons.Shortfall() > 0
	sale.COGS = cons.TotalCost
	sale.Revenue = p.Price.MulQty(cons.Fulfilled).RoundCents()

	if sale.Revenue.IsPositive() {
		if _, err := b.ledger.Post(ledger.Transaction{
			Date:      d,
			Memo:      fmt.Sprintf("sales %d x %s @ %s", sale.Sold, p.ID, p.Price),
			Reference: string(p.ID),
			Lines: []ledger.Line{
				ledger.DebitLine(ledger.Cash, sale.Revenue),
				ledger.CreditLine(ledger.SalesRevenue, sale.Revenue),
			},
		}); err != nil {
			undo()
			return Sale{}, err
		}
	}
	sale.StockRemaining = b.inventory.OnHand(p.ID)
	b.lifetimeRevenue = b.lifetimeRevenue.Add(sale.Revenue)
	b.sales = append(b.sales, SalesRecord{
		Date:      d,
		ProductID: p.ID,
		Demand:    sale.Demand,
		Sold:      sale.Sold,
		Revenue:   sale.Revenue,
		COGS:      sale.COGS,
	})
	return sale, nil
}

func (b *Business) demandInputs(p Product, d calendar.Date) demand.Inputs {
	t := p.target()
	return demand.Inputs{
		BusinessID:         b.cfg.BusinessID,
		ProductID:          string(p.ID),
		Date:               d,
		BaseDemand:         p.BaseDemand,
		BasePrice:          p.BasePrice,
		Price:              p.Price,
		PriceSensitivity:   p.PriceSensitivity,
		SeasonalAmplitude:  p.SeasonalAmplitude,
		LaunchDate:         p.LaunchDate,
		BusinessStart:      b.cfg.StartDate,
		EventMultiplier:    demand.Combined(b.modifiers, demand.KindEvent, t, d),
		CampaignMultiplier: demand.Combined(b.modifiers, demand.KindCampaign, t, d),
		Volatility:         b.cfg.Volatility,
		Locked:             !p.Unlocked,
	}
}

// =============================================================================
// MILESTONES & MARKET EVENTS
// =============================================================================

// unlockProducts unlocks every product whose revenue threshold is met.
// Unlocked products start selling the next day.
func (b *Business) unlockProducts(d calendar.Date) []inventory.ProductID {
	var unlocked []inventory.ProductID
	for i := range b.products {
		p := &b.products[i]
		if p.Unlocked || b.lifetimeRevenue.LessThan(p.UnlockRevenue) {
			continue
		}
		p.Unlocked = true
		p.LaunchDate = d.AddDays(1)
		unlocked = append(unlocked, p.ID)
		b.log.WithFields(logrus.Fields{"date": d.String(), "product": string(p.ID)}).Info("product unlocked")
	}
	return unlocked
}

// rollMarketEvent may start one event from the business templates.
// The roll is a pure function of business id and date.
func (b *Business) rollMarketEvent(d calendar.Date) (demand.Modifier, bool) {
	if len(b.cfg.Events) == 0 || calendar.DaysBetween(b.cfg.StartDate, d) < b.cfg.EventMinDays {
		return demand.Modifier{}, false
	}
	rng := demand.Stream(b.cfg.BusinessID, "market-events", d)
	if rng.Float64() >= b.cfg.EventChance {
		return demand.Modifier{}, false
	}
	t := b.cfg.Events[rng.IntN(len(b.cfg.Events))]
	ev := demand.Modifier{
		ID:         b.ids.Next("event", b.countModifiers(demand.KindEvent)+1),
		Kind:       demand.KindEvent,
		Name:       t.Name,
		Scope:      t.Scope,
		Target:     t.Target,
		Multiplier: t.Multiplier,
		Start:      d.AddDays(1),
		End:        d.AddDays(t.DurationDays),
	}
	b.modifiers = append(b.modifiers, ev)
	b.log.WithFields(logrus.Fields{"date": d.String(), "event": t.Name}).Info("market event started")
	return ev, true
}

func (b *Business) countModifiers(kind demand.Kind) int {
	n := 0
	for _, m := range b.modifiers {
		if m.Kind == kind {
			n++
		}
	}
	return n
}
