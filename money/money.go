/*
Package money provides the fixed-point value types used by every engine.

PURPOSE:
  All monetary values are decimal.Decimal wrapped in Money. Quantities of
  stock are whole units (Quantity). Nothing in the simulation core touches
  float64 for a value that ends up in the ledger or an inventory layer.

ROUNDING:
  Arithmetic keeps full precision. Values are rounded to cents with
  RoundCents() at posting boundaries (ledger lines, bills, layer costs).
  Rounding is half away from zero.

USAGE:
  price := money.MustParse("4.99")
  total := price.MulQty(money.Quantity(12)).RoundCents()

SEE ALSO:
  - ledger/ledger.go: rounds every line before balancing
  - inventory/inventory.go: layer cost arithmetic
*/
package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal currency amount
// =============================================================================

// Money is a currency amount. The zero value is $0.
type Money struct {
	Value decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

func New(value decimal.Decimal) Money { return Money{Value: value} }

func FromInt(units int64) Money { return Money{Value: decimal.NewFromInt(units)} }

// FromCents builds an amount from an integer number of cents.
func FromCents(cents int64) Money { return Money{Value: decimal.New(cents, -2)} }

// Parse reads a decimal string such as "1250.00".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid money %q: %w", s, err)
	}
	return Money{Value: d}, nil
}

// MustParse is Parse for constants and tests. Panics on malformed input.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(o Money) Money               { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money               { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(f decimal.Decimal) Money     { return Money{Value: m.Value.Mul(f)} }
func (m Money) MulQty(q Quantity) Money         { return Money{Value: m.Value.Mul(q.Decimal())} }
func (m Money) Div(f decimal.Decimal) Money     { return Money{Value: m.Value.Div(f)} }
func (m Money) Neg() Money                      { return Money{Value: m.Value.Neg()} }
func (m Money) Abs() Money                      { return Money{Value: m.Value.Abs()} }
func (m Money) RoundCents() Money               { return Money{Value: m.Value.Round(2)} }
func (m Money) IsZero() bool                    { return m.Value.IsZero() }
func (m Money) IsNegative() bool                { return m.Value.IsNegative() }
func (m Money) IsPositive() bool                { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool              { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool        { return m.Value.GreaterThan(o.Value) }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.Value.GreaterThanOrEqual(o.Value) }
func (m Money) LessThan(o Money) bool           { return m.Value.LessThan(o.Value) }
func (m Money) Cmp(o Money) int                 { return m.Value.Cmp(o.Value) }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

func (m Money) Max(o Money) Money {
	if m.GreaterThan(o) {
		return m
	}
	return o
}

// HasSubCents reports whether the amount carries precision below one cent.
func (m Money) HasSubCents() bool {
	return !m.Value.Equal(m.Value.Round(2))
}

// String formats with two decimals, e.g. "1250.00".
func (m Money) String() string { return m.Value.StringFixed(2) }

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Value.String())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// accept bare numbers too
		return m.Value.UnmarshalJSON(data)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid money %q: %w", s, err)
	}
	m.Value = d
	return nil
}

// Sum adds amounts together.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// =============================================================================
// QUANTITY - Whole units of stock
// =============================================================================

// Quantity counts whole units. Fractional units do not exist in the model.
type Quantity int64

func (q Quantity) Decimal() decimal.Decimal { return decimal.NewFromInt(int64(q)) }
func (q Quantity) IsZero() bool             { return q == 0 }
func (q Quantity) IsPositive() bool         { return q > 0 }

func (q Quantity) Min(o Quantity) Quantity {
	if q < o {
		return q
	}
	return o
}
