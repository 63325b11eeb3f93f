/*
orders.go - Purchase order state machine

PURPOSE:
  Turns a purchase decision into a commitment on the books now and stock
  on the shelf later. A purchase order lives through:

    Placed ──(a day passes)──> InTransit ──(expected date reached)──> Delivered
      │                                                                  ▲
      ├──────────────(expected date reached on the first day)────────────┘
      │
      └──(cancel on the order date)──> Cancelled

POSTINGS:
  Place (cash terms):   Dr Goods in Transit (subtotal)
                        Dr Freight          (shipping)
                        Cr Cash             (total)
  Place (NET terms):    same debits, Cr Accounts Payable (total)
  Deliver:              Dr Inventory / Cr Goods in Transit, one layer per line
                        NET terms: bill opened, due delivery + n days
  Cancel:               exact reversal of Place

  Inventory is recognised only at delivery. Goods in Transit holds the value
  of ordered but undelivered stock so the books balance in between.

DETERMINISM:
  expected delivery = order date + vendor lead time. Orders are delivered
  in placement order on the first simulated day with expected <= today.

SEE ALSO:
  - vendor.go: minimums, terms, shipping variant
  - inventory/inventory.go: Receive creates the layers
  - payables/payables.go: bills for NET terms
*/
package procurement

import (
	"fmt"

	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/ids"
	"github.com/warp/harvest-engine/inventory"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/payables"
)

// =============================================================================
// TYPES
// =============================================================================

type Status string

const (
	StatusPlaced    Status = "placed"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Open reports whether the order still awaits delivery.
func (s Status) Open() bool { return s == StatusPlaced || s == StatusInTransit }

// LineRequest is what a caller asks for.
type LineRequest struct {
	ProductID inventory.ProductID `json:"product_id"`
	Quantity  money.Quantity      `json:"quantity"`
}

// OrderLine is a priced line on a placed order.
type OrderLine struct {
	ProductID inventory.ProductID `json:"product_id"`
	Quantity  money.Quantity      `json:"quantity"`
	UnitCost  money.Money         `json:"unit_cost"`
}

func (l OrderLine) Value() money.Money { return l.UnitCost.MulQty(l.Quantity).RoundCents() }

type PurchaseOrder struct {
	ID          string        `json:"id"`
	VendorID    string        `json:"vendor_id"`
	VendorName  string        `json:"vendor_name"`
	Lines       []OrderLine   `json:"lines"`
	OrderDate   calendar.Date `json:"order_date"`
	Expected    calendar.Date `json:"expected_delivery"`
	DeliveredOn calendar.Date `json:"delivered_on,omitempty"`
	CancelledOn calendar.Date `json:"cancelled_on,omitempty"`
	Status      Status        `json:"status"`
	Terms       Terms         `json:"terms"`
	Subtotal    money.Money   `json:"subtotal"`
	Shipping    money.Money   `json:"shipping"`
	Total       money.Money   `json:"total"`
	BillID      string        `json:"bill_id,omitempty"`
}

func (po PurchaseOrder) Quantity() money.Quantity {
	var q money.Quantity
	for _, l := range po.Lines {
		q += l.Quantity
	}
	return q
}

// fundingAccount is the account credited at placement.
func (po PurchaseOrder) fundingAccount() ledger.AccountCode {
	if po.Terms.IsCredit() {
		return ledger.AccountsPayable
	}
	return ledger.Cash
}

// Delivery is one order resolved by AdvanceTo.
type Delivery struct {
	Order  PurchaseOrder     `json:"order"`
	Layers []inventory.Layer `json:"layers"`
	Bill   *payables.Bill    `json:"bill,omitempty"`
}

// =============================================================================
// BOOK
// =============================================================================

// Book owns the purchase orders of one business.
type Book struct {
	ledger    *ledger.Ledger
	inventory *inventory.Engine
	payables  *payables.Book
	ids       ids.Generator
	orders    []PurchaseOrder
}

func New(l *ledger.Ledger, inv *inventory.Engine, ap *payables.Book, gen ids.Generator) *Book {
	return &Book{ledger: l, inventory: inv, payables: ap, ids: gen}
}

func Restore(l *ledger.Ledger, inv *inventory.Engine, ap *payables.Book, gen ids.Generator, orders []PurchaseOrder) *Book {
	b := New(l, inv, ap, gen)
	b.orders = append([]PurchaseOrder(nil), orders...)
	return b
}

// Quote prices an order without placing it: minimums are enforced, nothing is posted.
func (b *Book) Quote(v Vendor, req []LineRequest) (PurchaseOrder, error) {
	if len(req) == 0 {
		return PurchaseOrder{}, ErrEmptyOrder
	}
	po := PurchaseOrder{VendorID: v.ID, VendorName: v.Name, Terms: v.Terms, Subtotal: money.Zero}
	var totalQty money.Quantity
	for _, r := range req {
		if r.Quantity <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: %s", ErrInvalidQuantity, r.ProductID)
		}
		offer, ok := v.Offers[r.ProductID]
		if !ok {
			return PurchaseOrder{}, fmt.Errorf("%w: %s from %s", ErrProductNotCarried, r.ProductID, v.ID)
		}
		if !offer.UnitCost.IsPositive() {
			return PurchaseOrder{}, fmt.Errorf("%w: %s from %s", ErrInvalidUnitCost, r.ProductID, v.ID)
		}
		if r.Quantity < offer.MinQuantity {
			return PurchaseOrder{}, &BelowMinimumOrderError{
				VendorID: v.ID, ProductID: string(r.ProductID), Kind: MinimumProductQuantity,
				Minimum: fmt.Sprint(offer.MinQuantity), Actual: fmt.Sprint(r.Quantity),
			}
		}
		line := OrderLine{ProductID: r.ProductID, Quantity: r.Quantity, UnitCost: offer.UnitCost}
		po.Lines = append(po.Lines, line)
		po.Subtotal = po.Subtotal.Add(line.Value())
		totalQty += r.Quantity
	}
	if totalQty < v.MinOrderQty {
		return PurchaseOrder{}, &BelowMinimumOrderError{
			VendorID: v.ID, Kind: MinimumQuantity,
			Minimum: fmt.Sprint(v.MinOrderQty), Actual: fmt.Sprint(totalQty),
		}
	}
	if po.Subtotal.LessThan(v.MinOrderValue) {
		return PurchaseOrder{}, &BelowMinimumOrderError{
			VendorID: v.ID, Kind: MinimumValue,
			Minimum: v.MinOrderValue.String(), Actual: po.Subtotal.String(),
		}
	}
	shipping, err := v.Shipping.Cost(po.Subtotal)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Shipping = shipping
	po.Total = po.Subtotal.Add(shipping)
	return po, nil
}

// Place validates, posts the commitment and records a Placed order.
func (b *Book) Place(v Vendor, req []LineRequest, date calendar.Date) (PurchaseOrder, error) {
	po, err := b.Quote(v, req)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if !po.Terms.IsCredit() {
		if err := b.ledger.RequireCash(po.Total); err != nil {
			return PurchaseOrder{}, err
		}
	}

	po.ID = b.ids.Next("po", len(b.orders)+1)
	po.OrderDate = date
	po.Expected = date.AddDays(v.LeadTimeDays)
	po.Status = StatusPlaced

	lines := []ledger.Line{ledger.DebitLine(ledger.GoodsInTransit, po.Subtotal)}
	if po.Shipping.IsPositive() {
		lines = append(lines, ledger.DebitLine(ledger.FreightExpense, po.Shipping))
	}
	lines = append(lines, ledger.CreditLine(po.fundingAccount(), po.Total))
	if _, err := b.ledger.Post(ledger.Transaction{
		Date:      date,
		Memo:      fmt.Sprintf("purchase order from %s (%s)", v.Name, po.Terms),
		Reference: po.ID,
		Lines:     lines,
	}); err != nil {
		return PurchaseOrder{}, err
	}

	b.orders = append(b.orders, po)
	return po, nil
}

// Cancel reverses a Placed order. Only allowed on its order date.
func (b *Book) Cancel(id string, date calendar.Date) (PurchaseOrder, error) {
	i := b.index(id)
	if i < 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	po := b.orders[i]
	if po.Status != StatusPlaced {
		return PurchaseOrder{}, &StateError{OrderID: id, From: po.Status, To: StatusCancelled}
	}
	if date.After(po.OrderDate) {
		return PurchaseOrder{}, fmt.Errorf("%w: %s placed %s", ErrLeadTimeElapsed, id, po.OrderDate)
	}

	lines := []ledger.Line{
		ledger.DebitLine(po.fundingAccount(), po.Total),
		ledger.CreditLine(ledger.GoodsInTransit, po.Subtotal),
	}
	if po.Shipping.IsPositive() {
		lines = append(lines, ledger.CreditLine(ledger.FreightExpense, po.Shipping))
	}
	if _, err := b.ledger.Post(ledger.Transaction{
		Date:      date,
		Memo:      "cancel purchase order " + id,
		Reference: id,
		Lines:     lines,
	}); err != nil {
		return PurchaseOrder{}, err
	}

	po.Status = StatusCancelled
	po.CancelledOn = date
	b.orders[i] = po
	return po, nil
}

// AdvanceTo resolves orders for the simulated day `date`.
func (b *Book) AdvanceTo(date calendar.Date) ([]Delivery, error) {
	var deliveries []Delivery
	for i := range b.orders {
		po := b.orders[i]
		if !po.Status.Open() {
			continue
		}
		if po.Expected.After(date) {
			if po.Status == StatusPlaced && date.After(po.OrderDate) {
				po.Status = StatusInTransit
				b.orders[i] = po
			}
			continue
		}
		d, err := b.deliver(&po, date)
		if err != nil {
			return deliveries, fmt.Errorf("deliver %s: %w", po.ID, err)
		}
		b.orders[i] = po
		deliveries = append(deliveries, d)
	}
	return deliveries, nil
}

func (b *Book) deliver(po *PurchaseOrder, date calendar.Date) (Delivery, error) {
	d := Delivery{}
	for _, line := range po.Lines {
		layer, err := b.inventory.Receive(line.ProductID, line.Quantity, line.UnitCost, date, ledger.GoodsInTransit, po.ID)
		if err != nil {
			return d, err
		}
		d.Layers = append(d.Layers, layer)
	}
	if po.Terms.IsCredit() {
		bill, err := b.payables.Record(payables.Bill{
			Payee:     po.VendorName,
			VendorID:  po.VendorID,
			Source:    payables.SourcePurchase,
			Reference: po.ID,
			Amount:    po.Total,
			Issued:    date,
			Due:       date.AddDays(po.Terms.NetDays),
		})
		if err != nil {
			return d, err
		}
		po.BillID = bill.ID
		d.Bill = &bill
	}
	po.Status = StatusDelivered
	po.DeliveredOn = date
	d.Order = *po
	return d, nil
}

func (b *Book) index(id string) int {
	for i := range b.orders {
		if b.orders[i].ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// CHECKPOINT
// =============================================================================

type Checkpoint struct{ orders []PurchaseOrder }

func (b *Book) Checkpoint() Checkpoint {
	return Checkpoint{orders: append([]PurchaseOrder(nil), b.orders...)}
}

func (b *Book) RestoreCheckpoint(cp Checkpoint) { b.orders = cp.orders }

// =============================================================================
// QUERIES
// =============================================================================

func (b *Book) Get(id string) (PurchaseOrder, bool) {
	if i := b.index(id); i >= 0 {
		return b.orders[i], true
	}
	return PurchaseOrder{}, false
}

// Open returns orders still awaiting delivery, in placement order.
func (b *Book) Open() []PurchaseOrder {
	var out []PurchaseOrder
	for _, po := range b.orders {
		if po.Status.Open() {
			out = append(out, po)
		}
	}
	return out
}

func (b *Book) All() []PurchaseOrder { return append([]PurchaseOrder(nil), b.orders...) }

// UnbilledPayables is AP credited for open NET-terms orders.
func (b *Book) UnbilledPayables() money.Money {
	total := money.Zero
	for _, po := range b.orders {
		if po.Status.Open() && po.Terms.IsCredit() {
			total = total.Add(po.Total)
		}
	}
	return total
}
