package procurement

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/harvest-engine/inventory"
	"github.com/warp/harvest-engine/money"
)

// =============================================================================
// SHIPPING MODEL - Tagged variant
// =============================================================================

type ShippingKind string

const (
	ShippingFlat     ShippingKind = "flat"
	ShippingDistance ShippingKind = "distance"
	ShippingValue    ShippingKind = "value"
)

// ShippingModel is a tagged variant. Only the fields of its Kind are read:
//
//	flat:     FlatFee
//	distance: DistanceKm x RatePerKm (+ FlatFee as a handling base)
//	value:    Percent of the order subtotal, at least Minimum
type ShippingModel struct {
	Kind       ShippingKind    `json:"kind"`
	FlatFee    money.Money     `json:"flat_fee,omitempty"`
	DistanceKm decimal.Decimal `json:"distance_km,omitempty"`
	RatePerKm  money.Money     `json:"rate_per_km,omitempty"`
	Percent    decimal.Decimal `json:"percent,omitempty"`
	Minimum    money.Money     `json:"minimum,omitempty"`
}

func FlatShipping(fee money.Money) ShippingModel {
	return ShippingModel{Kind: ShippingFlat, FlatFee: fee}
}

func DistanceShipping(km decimal.Decimal, ratePerKm money.Money) ShippingModel {
	return ShippingModel{Kind: ShippingDistance, DistanceKm: km, RatePerKm: ratePerKm}
}

func ValueShipping(percent decimal.Decimal, minimum money.Money) ShippingModel {
	return ShippingModel{Kind: ShippingValue, Percent: percent, Minimum: minimum}
}

// Cost returns the shipping charge for an order subtotal.
func (s ShippingModel) Cost(subtotal money.Money) (money.Money, error) {
	switch s.Kind {
	case ShippingFlat, "":
		return s.FlatFee.RoundCents(), nil
	case ShippingDistance:
		if s.DistanceKm.IsNegative() {
			return money.Zero, fmt.Errorf("%w: negative distance", ErrInvalidShipping)
		}
		return s.FlatFee.Add(s.RatePerKm.Mul(s.DistanceKm)).RoundCents(), nil
	case ShippingValue:
		if s.Percent.IsNegative() {
			return money.Zero, fmt.Errorf("%w: negative percent", ErrInvalidShipping)
		}
		return subtotal.Mul(s.Percent).Max(s.Minimum).RoundCents(), nil
	default:
		return money.Zero, fmt.Errorf("%w: unknown kind %q", ErrInvalidShipping, s.Kind)
	}
}

// =============================================================================
// PAYMENT TERMS
// =============================================================================

// Terms are the vendor's payment terms. NetDays == 0 means cash with order.
type Terms struct {
	NetDays int `json:"net_days"`
}

var TermsCash = Terms{}

func Net(days int) Terms { return Terms{NetDays: days} }

func (t Terms) IsCredit() bool { return t.NetDays > 0 }

func (t Terms) String() string {
	if !t.IsCredit() {
		return "CASH"
	}
	return "NET" + strconv.Itoa(t.NetDays)
}

// ParseTerms reads "CASH", "COD" or "NETn".
func ParseTerms(s string) (Terms, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case up == "" || up == "CASH" || up == "COD":
		return TermsCash, nil
	case strings.HasPrefix(up, "NET"):
		n, err := strconv.Atoi(strings.TrimPrefix(up, "NET"))
		if err != nil || n < 0 {
			return Terms{}, fmt.Errorf("%w: %q", ErrInvalidTerms, s)
		}
		return Net(n), nil
	}
	return Terms{}, fmt.Errorf("%w: %q", ErrInvalidTerms, s)
}

// =============================================================================
// VENDOR
// =============================================================================

// Offer is a product a vendor sells and its price.
type Offer struct {
	UnitCost    money.Money    `json:"unit_cost"`
	MinQuantity money.Quantity `json:"min_quantity,omitempty"`
}

type Vendor struct {
	ID            string                        `json:"id"`
	Name          string                        `json:"name"`
	Location      string                        `json:"location,omitempty"`
	LeadTimeDays  int                           `json:"lead_time_days"`
	MinOrderValue money.Money                   `json:"min_order_value"`
	MinOrderQty   money.Quantity                `json:"min_order_qty,omitempty"`
	Terms         Terms                         `json:"terms"`
	Shipping      ShippingModel                 `json:"shipping"`
	Offers        map[inventory.ProductID]Offer `json:"offers"`
}

func (v Vendor) Carries(p inventory.ProductID) bool {
	_, ok := v.Offers[p]
	return ok
}

// Validate checks static vendor configuration.
func (v Vendor) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vendor: empty id")
	}
	if v.LeadTimeDays < 0 {
		return fmt.Errorf("vendor %s: negative lead time", v.ID)
	}
	if v.Terms.NetDays < 0 {
		return fmt.Errorf("vendor %s: %w", v.ID, ErrInvalidTerms)
	}
	if _, err := v.Shipping.Cost(money.Zero); err != nil {
		return fmt.Errorf("vendor %s: %w", v.ID, err)
	}
	for p, o := range v.Offers {
		if !o.UnitCost.IsPositive() {
			return fmt.Errorf("vendor %s: product %s: %w", v.ID, p, ErrInvalidUnitCost)
		}
		// whole cents keep layer values and ledger postings identical
		if o.UnitCost.HasSubCents() {
			return fmt.Errorf("vendor %s: product %s unit cost %s has fractions of a cent", v.ID, p, o.UnitCost.Value)
		}
	}
	return nil
}
