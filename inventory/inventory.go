/*
inventory.go - Perpetual FIFO cost-layer engine

PURPOSE:
  Tracks on-hand stock per product as an ordered list of cost layers.
  Every receipt creates a layer, every sale consumes the oldest layers first,
  and every movement posts its cost to the ledger in the same step so the
  Inventory account always equals the sum of remaining layer value.

CRITICAL INVARIANTS:
  1. FIFO: consumption drains layers by (acquired date, acquisition order)
  2. CONSERVATION: sum(remaining) == received - consumed, per product
  3. LAYERS ARE NEVER DELETED: exhausted layers stay with remaining = 0
  4. ATOMIC: the ledger posting is made first, layers change only if it succeeds

STOCKOUTS:
  Consume never fails because stock is short. It returns how much was
  actually fulfilled. Callers record the shortfall as lost sales.

SEE ALSO:
  - ledger/ledger.go: receives the Inventory postings
  - procurement/orders.go: deliveries call Receive
*/
package inventory

import (
	"errors"
	"fmt"
	"sort"

	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
)

var (
	ErrNonPositiveQuantity = errors.New("quantity must be positive")
	ErrNegativeUnitCost    = errors.New("unit cost must not be negative")
)

type ProductID string

// =============================================================================
// LAYER
// =============================================================================

// Layer is one receipt of stock at a single unit cost.
type Layer struct {
	ProductID        ProductID      `json:"product_id"`
	AcquisitionOrder int64          `json:"acquisition_order"`
	Acquired         calendar.Date  `json:"acquired"`
	OriginalQuantity money.Quantity `json:"original_quantity"`
	Remaining        money.Quantity `json:"remaining"`
	UnitCost         money.Money    `json:"unit_cost"`
	SourceRef        string         `json:"source_ref,omitempty"`
}

func (l Layer) Exhausted() bool          { return l.Remaining == 0 }
func (l Layer) RemainingValue() money.Money { return l.UnitCost.MulQty(l.Remaining) }

// Draw is the part of a consumption taken from one layer.
type Draw struct {
	AcquisitionOrder int64          `json:"acquisition_order"`
	Quantity         money.Quantity `json:"quantity"`
	UnitCost         money.Money    `json:"unit_cost"`
}

// Consumption is the result of Consume.
type Consumption struct {
	Requested money.Quantity `json:"requested"`
	Fulfilled money.Quantity `json:"fulfilled"`
	TotalCost money.Money    `json:"total_cost"`
	Draws     []Draw         `json:"draws,omitempty"`
}

func (c Consumption) Shortfall() money.Quantity { return c.Requested - c.Fulfilled }

// =============================================================================
// ENGINE
// =============================================================================

// Engine holds the layers of every product of one business.
type Engine struct {
	ledger    *ledger.Ledger
	layers    map[ProductID][]Layer
	nextOrder int64
}

func New(l *ledger.Ledger) *Engine {
	return &Engine{ledger: l, layers: make(map[ProductID][]Layer), nextOrder: 1}
}

// Restore rebuilds an engine from persisted layers. Ledger balances are not re-posted.
func Restore(l *ledger.Ledger, layers []Layer) *Engine {
	e := New(l)
	for _, layer := range layers {
		e.insert(layer)
		if layer.AcquisitionOrder >= e.nextOrder {
			e.nextOrder = layer.AcquisitionOrder + 1
		}
	}
	return e
}

// Receive adds a layer and posts Dr Inventory / Cr funding for qty * unitCost.
func (e *Engine) Receive(product ProductID, qty money.Quantity, unitCost money.Money, date calendar.Date, funding ledger.AccountCode, ref string) (Layer, error) {
	if qty <= 0 {
		return Layer{}, fmt.Errorf("receive %s: %w", product, ErrNonPositiveQuantity)
	}
	if unitCost.IsNegative() {
		return Layer{}, fmt.Errorf("receive %s: %w", product, ErrNegativeUnitCost)
	}

	value := unitCost.MulQty(qty).RoundCents()
	if value.IsPositive() {
		_, err := e.ledger.Post(ledger.Transaction{
			Date:      date,
			Memo:      fmt.Sprintf("receive %d x %s @ %s", qty, product, unitCost),
			Reference: ref,
			Lines: []ledger.Line{
				ledger.DebitLine(ledger.Inventory, value),
				ledger.CreditLine(funding, value),
			},
		})
		if err != nil {
			return Layer{}, fmt.Errorf("receive %s: %w", product, err)
		}
	}

	layer := Layer{
		ProductID:        product,
		AcquisitionOrder: e.nextOrder,
		Acquired:         date,
		OriginalQuantity: qty,
		Remaining:        qty,
		UnitCost:         unitCost,
		SourceRef:        ref,
	}
	e.nextOrder++
	e.insert(layer)
	return layer, nil
}

// insert keeps layers sorted by (acquired, acquisition order).
func (e *Engine) insert(layer Layer) {
	ls := e.layers[layer.ProductID]
	i := sort.Search(len(ls), func(i int) bool {
		if ls[i].Acquired.Equal(layer.Acquired) {
			return ls[i].AcquisitionOrder > layer.AcquisitionOrder
		}
		return ls[i].Acquired.After(layer.Acquired)
	})
	ls = append(ls, Layer{})
	copy(ls[i+1:], ls[i:])
	ls[i] = layer
	e.layers[layer.ProductID] = ls
}

// Consume draws up to qty units FIFO and posts Dr COGS / Cr Inventory for their cost.
// A short or empty stock is not an error: Fulfilled tells how much was available.
func (e *Engine) Consume(product ProductID, qty money.Quantity, date calendar.Date, memo string) (Consumption, error) {
	c := Consumption{Requested: qty, TotalCost: money.Zero}
	if qty <= 0 {
		return c, nil
	}

	// Plan against the current layers without touching them.
	ls := e.layers[product]
	need := qty
	for _, layer := range ls {
		if need == 0 {
			break
		}
		if layer.Remaining == 0 {
			continue
		}
		take := layer.Remaining.Min(need)
		c.Draws = append(c.Draws, Draw{AcquisitionOrder: layer.AcquisitionOrder, Quantity: take, UnitCost: layer.UnitCost})
		c.Fulfilled += take
		c.TotalCost = c.TotalCost.Add(layer.UnitCost.MulQty(take))
		need -= take
	}
	c.TotalCost = c.TotalCost.RoundCents()

	if c.TotalCost.IsPositive() {
		if memo == "" {
			memo = fmt.Sprintf("cogs %d x %s", c.Fulfilled, product)
		}
		_, err := e.ledger.Post(ledger.Transaction{
			Date: date,
			Memo: memo,
			Lines: []ledger.Line{
				ledger.DebitLine(ledger.COGS, c.TotalCost),
				ledger.CreditLine(ledger.Inventory, c.TotalCost),
			},
		})
		if err != nil {
			return Consumption{Requested: qty}, fmt.Errorf("consume %s: %w", product, err)
		}
	}

	// Apply the plan.
	for _, d := range c.Draws {
		for i := range ls {
			if ls[i].AcquisitionOrder == d.AcquisitionOrder {
				ls[i].Remaining -= d.Quantity
				break
			}
		}
	}
	return c, nil
}

// =============================================================================
// CHECKPOINT - Undo support for an aborted command
// =============================================================================

// Checkpoint captures remaining quantities so a failed command can be undone.
type Checkpoint struct {
	layers    map[ProductID][]Layer
	nextOrder int64
}

func (e *Engine) Checkpoint() Checkpoint {
	cp := Checkpoint{layers: make(map[ProductID][]Layer, len(e.layers)), nextOrder: e.nextOrder}
	for p, ls := range e.layers {
		cp.layers[p] = append([]Layer(nil), ls...)
	}
	return cp
}

func (e *Engine) RestoreCheckpoint(cp Checkpoint) {
	e.layers = cp.layers
	e.nextOrder = cp.nextOrder
}

// =============================================================================
// QUERIES
// =============================================================================

// Snapshot summarises one product's stock.
type Snapshot struct {
	ProductID ProductID      `json:"product_id"`
	OnHand    money.Quantity `json:"on_hand"`
	Value     money.Money    `json:"value"`
	Received  money.Quantity `json:"received"`
	Consumed  money.Quantity `json:"consumed"`
	Layers    []Layer        `json:"layers"`
}

// AverageUnitCost is value / on hand, or zero when empty.
func (s Snapshot) AverageUnitCost() money.Money {
	if s.OnHand == 0 {
		return money.Zero
	}
	return s.Value.Div(s.OnHand.Decimal()).RoundCents()
}

func (e *Engine) Snapshot(product ProductID) Snapshot {
	s := Snapshot{ProductID: product, Value: money.Zero}
	for _, l := range e.layers[product] {
		s.OnHand += l.Remaining
		s.Value = s.Value.Add(l.RemainingValue())
		s.Received += l.OriginalQuantity
		s.Consumed += l.OriginalQuantity - l.Remaining
		s.Layers = append(s.Layers, l)
	}
	s.Value = s.Value.RoundCents()
	return s
}

func (e *Engine) OnHand(product ProductID) money.Quantity {
	var total money.Quantity
	for _, l := range e.layers[product] {
		total += l.Remaining
	}
	return total
}

// Value is the cost of all remaining stock across products.
func (e *Engine) Value() money.Money {
	total := money.Zero
	for _, ls := range e.layers {
		for _, l := range ls {
			total = total.Add(l.RemainingValue())
		}
	}
	return total.RoundCents()
}

// Products returns ids of products that have ever received stock, sorted.
func (e *Engine) Products() []ProductID {
	out := make([]ProductID, 0, len(e.layers))
	for p := range e.layers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Layers returns every layer, grouped by product, in FIFO order.
func (e *Engine) Layers() []Layer {
	var out []Layer
	for _, p := range e.Products() {
		out = append(out, e.layers[p]...)
	}
	return out
}
