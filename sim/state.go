package sim

import (
	"fmt"

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

// =============================================================================
// SNAPSHOT - Full state for persistence
// =============================================================================

// Snapshot is everything needed to rebuild a Business exactly.
type Snapshot struct {
	Config          Config                      `json:"config"`
	CurrentDate     calendar.Date               `json:"current_date"`
	LifetimeRevenue money.Money                 `json:"lifetime_revenue"`
	Products        []Product                   `json:"products"`
	Entries         []ledger.Entry              `json:"entries"`
	Layers          []inventory.Layer           `json:"layers"`
	Orders          []procurement.PurchaseOrder `json:"orders"`
	Bills           []payables.Bill             `json:"bills"`
	Loans           []finance.Loan              `json:"loans"`
	Modifiers       []demand.Modifier           `json:"modifiers"`
	Sales           []SalesRecord               `json:"sales"`
}

// Snapshot copies the current state.
func (b *Business) Snapshot() Snapshot {
	return Snapshot{
		Config:          b.cfg,
		CurrentDate:     b.current,
		LifetimeRevenue: b.lifetimeRevenue,
		Products:        b.Products(),
		Entries:         b.ledger.Entries(),
		Layers:          b.inventory.Layers(),
		Orders:          b.orders.All(),
		Bills:           b.payables.All(),
		Loans:           b.finance.Loans(),
		Modifiers:       b.Modifiers(),
		Sales:           b.SalesHistory(),
	}
}

// Restore rebuilds a business from a snapshot and checks that the
// sub-ledgers agree with the general ledger.
func Restore(s Snapshot, opts ...Option) (*Business, error) {
	if err := s.Config.Validate(); err != nil {
		return nil, err
	}
	cfg := s.Config.withDefaults()

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

	l, err := ledger.Restore(nil, s.Entries)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", cfg.BusinessID, err)
	}
	ap := payables.Restore(l, b.ids, s.Bills)
	inv := inventory.Restore(l, s.Layers)
	fin, err := finance.Restore(l, ap, b.ids, cfg.Expenses, s.Loans)
	if err != nil {
		return nil, err
	}

	b.ledger = l
	b.payables = ap
	b.inventory = inv
	b.orders = procurement.Restore(l, inv, ap, b.ids, s.Orders)
	b.finance = fin
	b.products = make([]Product, len(s.Products))
	for i, p := range s.Products {
		b.products[i] = p.clone()
	}
	b.vendors = make(map[string]procurement.Vendor, len(cfg.Vendors))
	for _, v := range cfg.Vendors {
		b.vendors[v.ID] = v
	}
	b.modifiers = append([]demand.Modifier(nil), s.Modifiers...)
	b.sales = append([]SalesRecord(nil), s.Sales...)
	b.current = s.CurrentDate
	b.lifetimeRevenue = s.LifetimeRevenue

	if err := b.reconcile(); err != nil {
		return nil, fmt.Errorf("restore %s: %w", cfg.BusinessID, err)
	}
	return b, nil
}

// reconcile checks each sub-ledger against its control account.
func (b *Business) reconcile() error {
	if v, gl := b.inventory.Value(), b.ledger.Current(ledger.Inventory); !v.Equal(gl) {
		return fmt.Errorf("%w: inventory layers %s, ledger %s", ledger.ErrCorruptLedger, v, gl)
	}
	ap := b.payables.OutstandingTotal().Add(b.orders.UnbilledPayables())
	if gl := b.ledger.Current(ledger.AccountsPayable); !ap.Equal(gl) {
		return fmt.Errorf("%w: payables %s, ledger %s", ledger.ErrCorruptLedger, ap, gl)
	}
	return nil
}
