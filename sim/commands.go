package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/warp/harvest-engine/demand"
	"github.com/warp/harvest-engine/finance"
	"github.com/warp/harvest-engine/inventory"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/payables"
	"github.com/warp/harvest-engine/procurement"
)

// =============================================================================
// COMMANDS - each runs atomically on the current simulated date
// =============================================================================

// PlaceOrder places a purchase order with a vendor.
func (b *Business) PlaceOrder(vendorID string, lines []procurement.LineRequest) (procurement.PurchaseOrder, error) {
	v, err := b.vendor(vendorID)
	if err != nil {
		return procurement.PurchaseOrder{}, err
	}
	for _, l := range lines {
		p, err := b.product(l.ProductID)
		if err != nil {
			return procurement.PurchaseOrder{}, err
		}
		if !p.Unlocked {
			return procurement.PurchaseOrder{}, &ProductLockedError{ProductID: string(p.ID), UnlockRevenue: p.UnlockRevenue.String()}
		}
	}

	var po procurement.PurchaseOrder
	err = b.atomically(func() error {
		po, err = b.orders.Place(v, lines, b.current)
		return err
	})
	if err != nil {
		return procurement.PurchaseOrder{}, err
	}
	b.log.WithFields(logrus.Fields{
		"order":  po.ID,
		"vendor": v.ID,
		"total":  po.Total.String(),
		"date":   b.current.String(),
	}).Info("purchase order placed")
	return po, nil
}

// CancelOrder cancels an order placed today.
func (b *Business) CancelOrder(orderID string) (procurement.PurchaseOrder, error) {
	var po procurement.PurchaseOrder
	err := b.atomically(func() error {
		var err error
		po, err = b.orders.Cancel(orderID, b.current)
		return err
	})
	if err != nil {
		return procurement.PurchaseOrder{}, err
	}
	b.log.WithField("order", po.ID).Info("purchase order cancelled")
	return po, nil
}

// SetPrice changes a product's selling price from the next simulated day.
func (b *Business) SetPrice(productID inventory.ProductID, price money.Money) (Product, error) {
	i := b.productIndex(productID)
	if i < 0 {
		return Product{}, &notFoundError{kind: ErrUnknownProduct, id: string(productID)}
	}
	price = price.RoundCents()
	if !price.IsPositive() {
		return Product{}, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}
	b.products[i].Price = price
	return b.products[i].clone(), nil
}

// CampaignRequest describes a marketing campaign.
type CampaignRequest struct {
	Name         string       `json:"name"`
	Scope        demand.Scope `json:"scope"`
	Target       string       `json:"target,omitempty"`
	Multiplier   float64      `json:"multiplier"`
	DurationDays int          `json:"duration_days"`
	Cost         money.Money  `json:"cost"`
}

// LaunchCampaign pays for a campaign now and boosts demand from tomorrow.
func (b *Business) LaunchCampaign(req CampaignRequest) (demand.Modifier, error) {
	if req.DurationDays <= 0 {
		return demand.Modifier{}, fmt.Errorf("%w: duration must be positive", ErrInvalidCampaign)
	}
	if req.Cost.IsNegative() {
		return demand.Modifier{}, fmt.Errorf("%w: negative cost", ErrInvalidCampaign)
	}
	campaign := demand.Modifier{
		ID:         b.ids.Next("campaign", b.countModifiers(demand.KindCampaign)+1),
		Kind:       demand.KindCampaign,
		Name:       req.Name,
		Scope:      req.Scope,
		Target:     req.Target,
		Multiplier: req.Multiplier,
		Start:      b.current.AddDays(1),
		End:        b.current.AddDays(req.DurationDays),
	}
	if err := campaign.Validate(); err != nil {
		return demand.Modifier{}, fmt.Errorf("%w: %v", ErrInvalidCampaign, err)
	}
	if campaign.Scope == demand.ScopeProduct {
		if _, err := b.product(inventory.ProductID(campaign.Target)); err != nil {
			return demand.Modifier{}, err
		}
	}

	cost := req.Cost.RoundCents()
	err := b.atomically(func() error {
		if cost.IsPositive() {
			if err := b.ledger.RequireCash(cost); err != nil {
				return err
			}
			if _, err := b.ledger.Post(ledger.Transaction{
				Date:      b.current,
				Memo:      "campaign " + req.Name,
				Reference: campaign.ID,
				Lines: []ledger.Line{
					ledger.DebitLine(ledger.MarketingExpense, cost),
					ledger.CreditLine(ledger.Cash, cost),
				},
			}); err != nil {
				return err
			}
		}
		b.modifiers = append(b.modifiers, campaign)
		return nil
	})
	if err != nil {
		return demand.Modifier{}, err
	}
	b.log.WithFields(logrus.Fields{"campaign": campaign.ID, "cost": cost.String()}).Info("campaign launched")
	return campaign, nil
}

// PayBill pays an open or overdue bill in full today.
func (b *Business) PayBill(billID string) (payables.Bill, error) {
	var bill payables.Bill
	err := b.atomically(func() error {
		var err error
		bill, err = b.payables.Pay(billID, b.current)
		return err
	})
	if err != nil {
		return payables.Bill{}, err
	}
	b.log.WithFields(logrus.Fields{"bill": bill.ID, "amount": bill.Amount.String()}).Info("bill paid")
	return bill, nil
}

// TakeLoan borrows cash today.
func (b *Business) TakeLoan(terms finance.LoanTerms) (finance.Loan, error) {
	var loan finance.Loan
	err := b.atomically(func() error {
		var err error
		loan, err = b.finance.TakeLoan(terms, b.current)
		return err
	})
	if err != nil {
		return finance.Loan{}, err
	}
	b.log.WithFields(logrus.Fields{"loan": loan.ID, "principal": loan.Principal.String()}).Info("loan taken")
	return loan, nil
}

// Restart discards all history and starts the business again from its config.
func (b *Business) Restart() error {
	saved := *b
	if err := b.reset(); err != nil {
		*b = saved
		return err
	}
	b.log.Info("business restarted")
	return nil
}
