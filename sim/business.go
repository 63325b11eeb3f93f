/*
Package sim composes the engines into one simulated business.

PURPOSE:
  A Business owns a ledger, a FIFO inventory, a payables book, a purchase
  order book and a finance book, all bound to the same per-business clock.
  Commands mutate them together; queries read them. Every state change is
  also an accounting event, so the ledger alone can explain the business.

CRITICAL INVARIANTS:
  1. ZERO-SUM: trial balance is zero after every command and every day
  2. ALL-OR-NOTHING: a failed command or day leaves no trace (see atomically)
  3. CLOCK: current date only moves in AdvanceDay, and only at the very end
  4. DETERMINISM: same config + same commands = same books

CONCURRENCY:
  A Business is single-writer and NOT safe for concurrent use. The service
  layer serialises access per business id.

SEE ALSO:
  - scheduler.go: the daily cycle
  - commands.go / queries.go: the public surface
  - state.go: export and restore for persistence
*/
package sim

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/demand"
	"github.com/warp/harvest-engine/finance"
	"github.com/warp/harvest-engine/ids"
	"github.com/warp/harvest-engine/inventory"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/payables"
	"github.com/warp/harvest-engine/procurement"
)

// Business is one simulated retail business.
type Business struct {
	cfg   Config
	log   logrus.FieldLogger
	model demand.Model
	ids   ids.Generator

	ledger    *ledger.Ledger
	inventory *inventory.Engine
	payables  *payables.Book
	orders    *procurement.Book
	finance   *finance.Book

	products  []Product
	vendors   map[string]procurement.Vendor
	modifiers []demand.Modifier
	sales     []SalesRecord

	current         calendar.Date
	lifetimeRevenue money.Money
}

// Option configures a Business.
type Option func(*Business)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log logrus.FieldLogger) Option {
	return func(b *Business) {
		if log != nil {
			b.log = log
		}
	}
}

// WithModel replaces the default demand model.
func WithModel(m demand.Model) Option {
	return func(b *Business) { b.model = m }
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// New creates a business on its start date and books the starting capital.
func New(cfg Config, opts ...Option) (*Business, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	b := &Business{
		cfg:   cfg,
		log:   discardLogger(),
		model: demand.DefaultModel(),
		ids:   ids.New(cfg.BusinessID),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.WithField("business", cfg.BusinessID)

	if err := b.reset(); err != nil {
		return nil, err
	}
	return b, nil
}

// reset builds fresh engines from the config.
func (b *Business) reset() error {
	l := ledger.New(nil)
	ap := payables.New(l, b.ids)
	inv := inventory.New(l)
	fin, err := finance.New(l, ap, b.ids, b.cfg.Expenses)
	if err != nil {
		return err
	}
	if b.cfg.StartingCash.IsPositive() {
		if _, err := l.Post(ledger.Transaction{
			Date:      b.cfg.StartDate,
			Memo:      "starting capital",
			Reference: b.cfg.BusinessID,
			Lines: []ledger.Line{
				ledger.DebitLine(ledger.Cash, b.cfg.StartingCash),
				ledger.CreditLine(ledger.OwnerEquity, b.cfg.StartingCash),
			},
		}); err != nil {
			return err
		}
	}

	b.ledger = l
	b.payables = ap
	b.inventory = inv
	b.orders = procurement.New(l, inv, ap, b.ids)
	b.finance = fin
	b.products = make([]Product, len(b.cfg.Products))
	for i, p := range b.cfg.Products {
		b.products[i] = p.clone()
	}
	b.vendors = make(map[string]procurement.Vendor, len(b.cfg.Vendors))
	for _, v := range b.cfg.Vendors {
		b.vendors[v.ID] = v
	}
	b.modifiers = nil
	b.sales = nil
	b.current = b.cfg.StartDate
	b.lifetimeRevenue = money.Zero
	return nil
}

// =============================================================================
// ATOMICITY - snapshot + rollback on error
// =============================================================================

type checkpoint struct {
	mark            ledger.Mark
	inventory       inventory.Checkpoint
	payables        payables.Checkpoint
	orders          procurement.Checkpoint
	finance         finance.Checkpoint
	products        []Product
	modifiers       []demand.Modifier
	sales           int
	current         calendar.Date
	lifetimeRevenue money.Money
}

func (b *Business) checkpoint() checkpoint {
	products := make([]Product, len(b.products))
	for i, p := range b.products {
		products[i] = p.clone()
	}
	return checkpoint{
		mark:            b.ledger.Mark(),
		inventory:       b.inventory.Checkpoint(),
		payables:        b.payables.Checkpoint(),
		orders:          b.orders.Checkpoint(),
		finance:         b.finance.Checkpoint(),
		products:        products,
		modifiers:       append([]demand.Modifier(nil), b.modifiers...),
		sales:           len(b.sales),
		current:         b.current,
		lifetimeRevenue: b.lifetimeRevenue,
	}
}

func (b *Business) rollback(cp checkpoint) {
	b.ledger.RollbackTo(cp.mark)
	b.inventory.RestoreCheckpoint(cp.inventory)
	b.payables.RestoreCheckpoint(cp.payables)
	b.orders.RestoreCheckpoint(cp.orders)
	b.finance.RestoreCheckpoint(cp.finance)
	b.products = cp.products
	b.modifiers = cp.modifiers
	b.sales = b.sales[:cp.sales]
	b.current = cp.current
	b.lifetimeRevenue = cp.lifetimeRevenue
}

// atomically runs fn and undoes everything it did if it fails.
func (b *Business) atomically(fn func() error) error {
	cp := b.checkpoint()
	if err := fn(); err != nil {
		b.rollback(cp)
		return err
	}
	return nil
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (b *Business) productIndex(id inventory.ProductID) int {
	for i := range b.products {
		if b.products[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Business) product(id inventory.ProductID) (Product, error) {
	i := b.productIndex(id)
	if i < 0 {
		return Product{}, &notFoundError{kind: ErrUnknownProduct, id: string(id)}
	}
	return b.products[i], nil
}

func (b *Business) vendor(id string) (procurement.Vendor, error) {
	v, ok := b.vendors[id]
	if !ok {
		return procurement.Vendor{}, &notFoundError{kind: ErrUnknownVendor, id: id}
	}
	return v, nil
}

type notFoundError struct {
	kind error
	id   string
}

func (e *notFoundError) Error() string { return e.kind.Error() + ": " + e.id }
func (e *notFoundError) Unwrap() error { return e.kind }
