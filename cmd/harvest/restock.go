package main

import (
	"math"

	"github.com/sirupsen/logrus"
	"github.com/warp/harvest-engine/inventory"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/procurement"
	"github.com/warp/harvest-engine/sim"
)

// restocker is the autopilot used by simulate --restock. Before each day it
// orders from the cheapest vendor for every unlocked product whose stock
// plus open orders covers fewer than coverDays of projected demand.
type restocker struct {
	coverDays int
	log       logrus.FieldLogger
}

func (r restocker) run(b *sim.Business) ([]procurement.PurchaseOrder, error) {
	days := min(r.coverDays, b.Config().MaxAdvanceDays)
	incoming := incomingUnits(b.OpenPurchaseOrders())

	var placed []procurement.PurchaseOrder
	for _, p := range b.Products() {
		if !p.Unlocked {
			continue
		}
		need, err := projectedUnits(b, p.ID, days)
		if err != nil {
			return placed, err
		}
		stock, err := b.InventorySnapshot(p.ID)
		if err != nil {
			return placed, err
		}
		have := stock.OnHand + incoming[p.ID]
		if float64(have) >= need {
			continue
		}

		vendor, offer, ok := cheapestOffer(b.Vendors(), p.ID)
		if !ok {
			continue
		}
		qty := orderQuantity(vendor, offer, money.Quantity(math.Ceil(2*need))-have)
		po, err := b.PlaceOrder(vendor.ID, []procurement.LineRequest{{ProductID: p.ID, Quantity: qty}})
		if sim.IsDomainRejection(err) {
			r.log.WithError(err).WithField("product", p.ID).Debug("restock skipped")
			continue
		}
		if err != nil {
			return placed, err
		}
		placed = append(placed, po)
	}
	return placed, nil
}

func projectedUnits(b *sim.Business, id inventory.ProductID, days int) (float64, error) {
	proj, err := b.ProjectedDemand(id, days)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, p := range proj {
		total += p.Expected
	}
	return total, nil
}

func incomingUnits(orders []procurement.PurchaseOrder) map[inventory.ProductID]money.Quantity {
	out := make(map[inventory.ProductID]money.Quantity)
	for _, po := range orders {
		for _, l := range po.Lines {
			out[l.ProductID] += l.Quantity
		}
	}
	return out
}

// cheapestOffer picks the lowest unit cost; ties go to the shorter lead time.
func cheapestOffer(vendors []procurement.Vendor, id inventory.ProductID) (procurement.Vendor, procurement.Offer, bool) {
	var (
		best      procurement.Vendor
		bestOffer procurement.Offer
		found     bool
	)
	for _, v := range vendors {
		o, ok := v.Offers[id]
		if !ok {
			continue
		}
		if !found || o.UnitCost.LessThan(bestOffer.UnitCost) ||
			(o.UnitCost.Equal(bestOffer.UnitCost) && v.LeadTimeDays < best.LeadTimeDays) {
			best, bestOffer, found = v, o, true
		}
	}
	return best, bestOffer, found
}

// orderQuantity raises want to the vendor's quantity and value minimums.
func orderQuantity(v procurement.Vendor, o procurement.Offer, want money.Quantity) money.Quantity {
	qty := max(want, o.MinQuantity, v.MinOrderQty, 1)
	if o.UnitCost.IsPositive() && o.UnitCost.MulQty(qty).LessThan(v.MinOrderValue) {
		units := v.MinOrderValue.Value.Div(o.UnitCost.Value).Ceil().IntPart()
		qty = max(qty, money.Quantity(units))
	}
	return qty
}
