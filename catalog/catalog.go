/*
Package catalog turns YAML business templates into simulation configs.

PURPOSE:
  A business is defined once as data: products, vendors, recurring
  expenses and the market events its industry is exposed to. The catalog
  parses that definition, validates it, and builds a sim.Config for a
  concrete business id and start date. Three presets ship embedded.

YAML SCHEMA:
  kind: keyboards
  name: Clicky Clack Supply
  volatility: MEDIUM
  starting_cash: "15000.00"
  products:
    - sku: GAT-RED
      name: Gateron Red
      category: Linear Switches
      price: "0.65"
      base_demand: 320
      price_sensitivity: 1.3
      attributes: {switch_type: LINEAR, feel: LIGHT, sound: QUIET}
  vendors:
    - id: us-switches
      name: US Switches LLC
      lead_time_days: 3
      min_order_value: "150.00"
      terms: NET30
      shipping: {kind: flat, flat_fee: "25.00"}
      offers:
        - {product: GAT-RED, unit_cost: "0.45"}
  expenses:
    - {name: Warehouse Rent, amount: "1200.00", day_of_month: 1}
  events:
    - {name: Streamer Craze, scope: attribute, target: switch_type=LINEAR,
       multiplier: 1.5, duration_days: 14}

  Money is always written as a decimal string. Product ids default to the
  lower-cased SKU; offers reference products by SKU or id.

SEE ALSO:
  - sim/config.go: the Config this package produces
  - presets/: embedded templates
*/
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/demand"
	"github.com/warp/harvest-engine/finance"
	"github.com/warp/harvest-engine/inventory"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/procurement"
	"github.com/warp/harvest-engine/sim"
)

// DefaultSeasonalAmplitude applies to products that do not set their own.
const DefaultSeasonalAmplitude = 0.3

var (
	ErrUnknownPreset   = errors.New("unknown preset")
	ErrInvalidTemplate = errors.New("invalid business template")
)

//go:embed presets/*.yaml
var presetFS embed.FS

// =============================================================================
// TEMPLATE SCHEMA
// =============================================================================

type Template struct {
	Kind         string            `yaml:"kind" json:"kind" validate:"required"`
	Name         string            `yaml:"name" json:"name" validate:"required"`
	Description  string            `yaml:"description,omitempty" json:"description,omitempty"`
	Volatility   string            `yaml:"volatility,omitempty" json:"volatility,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	StartingCash string            `yaml:"starting_cash" json:"starting_cash" validate:"required"`
	Products     []ProductTemplate `yaml:"products" json:"products" validate:"required,min=1,dive"`
	Vendors      []VendorTemplate  `yaml:"vendors,omitempty" json:"vendors,omitempty" validate:"dive"`
	Expenses     []ExpenseTemplate `yaml:"expenses,omitempty" json:"expenses,omitempty" validate:"dive"`
	Events       []EventTemplate   `yaml:"events,omitempty" json:"events,omitempty" validate:"dive"`
}

type ProductTemplate struct {
	ID                string            `yaml:"id,omitempty" json:"id,omitempty"`
	SKU               string            `yaml:"sku" json:"sku" validate:"required_without=ID"`
	Name              string            `yaml:"name" json:"name" validate:"required"`
	Category          string            `yaml:"category,omitempty" json:"category,omitempty"`
	Attributes        map[string]string `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Price             string            `yaml:"price" json:"price" validate:"required"`
	BaseDemand        float64           `yaml:"base_demand" json:"base_demand" validate:"gte=0"`
	PriceSensitivity  float64           `yaml:"price_sensitivity" json:"price_sensitivity" validate:"gte=0"`
	SeasonalAmplitude *float64          `yaml:"seasonal_amplitude,omitempty" json:"seasonal_amplitude,omitempty" validate:"omitempty,gte=0,lt=1"`
	UnlockRevenue     string            `yaml:"unlock_revenue,omitempty" json:"unlock_revenue,omitempty"`
}

// productID is the id the product gets in the simulation.
func (p ProductTemplate) productID() inventory.ProductID {
	if p.ID != "" {
		return inventory.ProductID(p.ID)
	}
	return inventory.ProductID(strings.ToLower(p.SKU))
}

type VendorTemplate struct {
	ID            string           `yaml:"id,omitempty" json:"id,omitempty"`
	Name          string           `yaml:"name" json:"name" validate:"required"`
	Location      string           `yaml:"location,omitempty" json:"location,omitempty"`
	LeadTimeDays  int              `yaml:"lead_time_days" json:"lead_time_days" validate:"gte=0"`
	MinOrderValue string           `yaml:"min_order_value,omitempty" json:"min_order_value,omitempty"`
	MinOrderQty   int64            `yaml:"min_order_qty,omitempty" json:"min_order_qty,omitempty" validate:"gte=0"`
	Terms         string           `yaml:"terms,omitempty" json:"terms,omitempty"`
	Shipping      ShippingTemplate `yaml:"shipping" json:"shipping"`
	Offers        []OfferTemplate  `yaml:"offers" json:"offers" validate:"required,min=1,dive"`
}

type ShippingTemplate struct {
	Kind       string `yaml:"kind,omitempty" json:"kind,omitempty" validate:"omitempty,oneof=flat distance value"`
	FlatFee    string `yaml:"flat_fee,omitempty" json:"flat_fee,omitempty"`
	DistanceKm string `yaml:"distance_km,omitempty" json:"distance_km,omitempty"`
	RatePerKm  string `yaml:"rate_per_km,omitempty" json:"rate_per_km,omitempty"`
	Percent    string `yaml:"percent,omitempty" json:"percent,omitempty"`
	Minimum    string `yaml:"minimum,omitempty" json:"minimum,omitempty"`
}

type OfferTemplate struct {
	Product     string `yaml:"product" json:"product" validate:"required"`
	UnitCost    string `yaml:"unit_cost" json:"unit_cost" validate:"required"`
	MinQuantity int64  `yaml:"min_quantity,omitempty" json:"min_quantity,omitempty" validate:"gte=0"`
}

type ExpenseTemplate struct {
	Name       string `yaml:"name" json:"name" validate:"required"`
	Payee      string `yaml:"payee,omitempty" json:"payee,omitempty"`
	Amount     string `yaml:"amount" json:"amount" validate:"required"`
	DayOfMonth int    `yaml:"day_of_month" json:"day_of_month" validate:"min=1,max=31"`
	NetDays    int    `yaml:"net_days,omitempty" json:"net_days,omitempty" validate:"gte=0"`
	Account    string `yaml:"account,omitempty" json:"account,omitempty"`
}

type EventTemplate struct {
	Name         string  `yaml:"name" json:"name" validate:"required"`
	Description  string  `yaml:"description,omitempty" json:"description,omitempty"`
	Scope        string  `yaml:"scope" json:"scope" validate:"required,oneof=product category attribute all"`
	Target       string  `yaml:"target,omitempty" json:"target,omitempty"`
	Multiplier   float64 `yaml:"multiplier" json:"multiplier" validate:"gt=0,lte=10"`
	DurationDays int     `yaml:"duration_days" json:"duration_days" validate:"gt=0"`
}

// =============================================================================
// LOADER
// =============================================================================

// Loader parses and validates templates.
type Loader struct {
	validate *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{validate: validator.New()}
}

// Parse reads a YAML template and checks it against the schema.
func (l *Loader) Parse(data []byte) (Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("failed to parse template YAML: %w", err)
	}
	if err := l.Validate(t); err != nil {
		return Template{}, err
	}
	return t, nil
}

// Load reads a template from a file.
func (l *Loader) Load(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read template %s: %w", path, err)
	}
	return l.Parse(data)
}

// Validate runs the struct tag rules and reports every failing field.
func (l *Loader) Validate(t Template) error {
	err := l.validate.Struct(t)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidTemplate, strings.Join(msgs, "; "))
}

// ToYAML renders a template back to YAML.
func (l *Loader) ToYAML(t Template) ([]byte, error) {
	return yaml.Marshal(t)
}

// =============================================================================
// PRESETS
// =============================================================================

var defaultLoader = NewLoader()

// Presets lists the kinds of the embedded templates, sorted.
func Presets() []string {
	entries, err := presetFS.ReadDir("presets")
	if err != nil {
		return nil
	}
	kinds := make([]string, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(kinds)
	return kinds
}

// Preset returns an embedded template by kind.
func Preset(kind string) (Template, error) {
	data, err := presetFS.ReadFile("presets/" + kind + ".yaml")
	if err != nil {
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownPreset, kind)
	}
	return defaultLoader.Parse(data)
}

// =============================================================================
// CONFIG BUILDING
// =============================================================================

// Config builds the simulation config for a business started on start.
func (t Template) Config(businessID string, start calendar.Date) (sim.Config, error) {
	cash, err := parseMoney("starting_cash", t.StartingCash)
	if err != nil {
		return sim.Config{}, err
	}
	cfg := sim.Config{
		BusinessID:   businessID,
		Name:         t.Name,
		Kind:         t.Kind,
		StartDate:    start,
		StartingCash: cash,
		Volatility:   demand.Volatility(strings.ToUpper(t.Volatility)),
	}

	bySKU := make(map[string]inventory.ProductID, len(t.Products))
	for _, pt := range t.Products {
		p, err := parseProduct(pt)
		if err != nil {
			return sim.Config{}, err
		}
		cfg.Products = append(cfg.Products, p)
		bySKU[strings.ToUpper(pt.SKU)] = p.ID
		bySKU[strings.ToUpper(string(p.ID))] = p.ID
	}
	for _, vt := range t.Vendors {
		v, err := parseVendor(vt, bySKU)
		if err != nil {
			return sim.Config{}, err
		}
		cfg.Vendors = append(cfg.Vendors, v)
	}
	for _, et := range t.Expenses {
		e, err := parseExpense(et)
		if err != nil {
			return sim.Config{}, err
		}
		cfg.Expenses = append(cfg.Expenses, e)
	}
	for _, et := range t.Events {
		cfg.Events = append(cfg.Events, sim.EventTemplate{
			Name:         et.Name,
			Description:  et.Description,
			Scope:        demand.Scope(et.Scope),
			Target:       et.Target,
			Multiplier:   et.Multiplier,
			DurationDays: et.DurationDays,
		})
	}

	if err := cfg.Validate(); err != nil {
		return sim.Config{}, err
	}
	return cfg, nil
}

func parseProduct(pt ProductTemplate) (sim.Product, error) {
	price, err := parseMoney(pt.Name+" price", pt.Price)
	if err != nil {
		return sim.Product{}, err
	}
	unlock, err := parseOptionalMoney(pt.Name+" unlock_revenue", pt.UnlockRevenue)
	if err != nil {
		return sim.Product{}, err
	}
	amplitude := DefaultSeasonalAmplitude
	if pt.SeasonalAmplitude != nil {
		amplitude = *pt.SeasonalAmplitude
	}
	return sim.Product{
		ID:                pt.productID(),
		Name:              pt.Name,
		SKU:               pt.SKU,
		Category:          pt.Category,
		Attributes:        pt.Attributes,
		BasePrice:         price,
		Price:             price,
		BaseDemand:        pt.BaseDemand,
		PriceSensitivity:  pt.PriceSensitivity,
		SeasonalAmplitude: amplitude,
		UnlockRevenue:     unlock,
	}, nil
}

func parseVendor(vt VendorTemplate, products map[string]inventory.ProductID) (procurement.Vendor, error) {
	id := vt.ID
	if id == "" {
		id = slug(vt.Name)
	}
	minValue, err := parseOptionalMoney(id+" min_order_value", vt.MinOrderValue)
	if err != nil {
		return procurement.Vendor{}, err
	}
	terms, err := procurement.ParseTerms(vt.Terms)
	if err != nil {
		return procurement.Vendor{}, fmt.Errorf("vendor %s: %w", id, err)
	}
	shipping, err := parseShipping(id, vt.Shipping)
	if err != nil {
		return procurement.Vendor{}, err
	}

	offers := make(map[inventory.ProductID]procurement.Offer, len(vt.Offers))
	for _, ot := range vt.Offers {
		pid, ok := products[strings.ToUpper(ot.Product)]
		if !ok {
			return procurement.Vendor{}, fmt.Errorf("%w: vendor %s offers unknown product %s", ErrInvalidTemplate, id, ot.Product)
		}
		cost, err := parseMoney(id+" unit_cost", ot.UnitCost)
		if err != nil {
			return procurement.Vendor{}, err
		}
		offers[pid] = procurement.Offer{UnitCost: cost, MinQuantity: money.Quantity(ot.MinQuantity)}
	}

	return procurement.Vendor{
		ID:            id,
		Name:          vt.Name,
		Location:      vt.Location,
		LeadTimeDays:  vt.LeadTimeDays,
		MinOrderValue: minValue,
		MinOrderQty:   money.Quantity(vt.MinOrderQty),
		Terms:         terms,
		Shipping:      shipping,
		Offers:        offers,
	}, nil
}

func parseShipping(vendorID string, st ShippingTemplate) (procurement.ShippingModel, error) {
	field := func(name string) string { return vendorID + " shipping." + name }

	flat, err := parseOptionalMoney(field("flat_fee"), st.FlatFee)
	if err != nil {
		return procurement.ShippingModel{}, err
	}
	switch procurement.ShippingKind(st.Kind) {
	case procurement.ShippingFlat, "":
		return procurement.FlatShipping(flat), nil
	case procurement.ShippingDistance:
		km, err := parseDecimal(field("distance_km"), st.DistanceKm)
		if err != nil {
			return procurement.ShippingModel{}, err
		}
		rate, err := parseMoney(field("rate_per_km"), st.RatePerKm)
		if err != nil {
			return procurement.ShippingModel{}, err
		}
		s := procurement.DistanceShipping(km, rate)
		s.FlatFee = flat
		return s, nil
	case procurement.ShippingValue:
		pct, err := parseDecimal(field("percent"), st.Percent)
		if err != nil {
			return procurement.ShippingModel{}, err
		}
		minimum, err := parseOptionalMoney(field("minimum"), st.Minimum)
		if err != nil {
			return procurement.ShippingModel{}, err
		}
		return procurement.ValueShipping(pct, minimum), nil
	}
	return procurement.ShippingModel{}, fmt.Errorf("%w: vendor %s shipping kind %q", ErrInvalidTemplate, vendorID, st.Kind)
}

func parseExpense(et ExpenseTemplate) (finance.RecurringExpense, error) {
	amount, err := parseMoney(et.Name+" amount", et.Amount)
	if err != nil {
		return finance.RecurringExpense{}, err
	}
	account, err := parseAccount(et.Account)
	if err != nil {
		return finance.RecurringExpense{}, fmt.Errorf("expense %s: %w", et.Name, err)
	}
	payee := et.Payee
	if payee == "" {
		payee = et.Name
	}
	return finance.RecurringExpense{
		ID:         "exp-" + slug(et.Name),
		Name:       et.Name,
		Payee:      payee,
		Amount:     amount,
		DayOfMonth: et.DayOfMonth,
		NetDays:    et.NetDays,
		Account:    account,
	}, nil
}

// parseAccount accepts a short expense name or a full account code.
func parseAccount(s string) (ledger.AccountCode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "operating":
		return ledger.OperatingExpense, nil
	case "marketing":
		return ledger.MarketingExpense, nil
	case "freight":
		return ledger.FreightExpense, nil
	}
	code := ledger.AccountCode(s)
	if a, ok := ledger.DefaultChart().Lookup(code); ok && a.Type == ledger.TypeExpense {
		return code, nil
	}
	return "", fmt.Errorf("%w: account %q is not an expense account", ErrInvalidTemplate, s)
}

func parseMoney(field, s string) (money.Money, error) {
	m, err := money.Parse(s)
	if err != nil {
		return money.Zero, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, field, err)
	}
	return m, nil
}

func parseOptionalMoney(field, s string) (money.Money, error) {
	if strings.TrimSpace(s) == "" {
		return money.Zero, nil
	}
	return parseMoney(field, s)
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, field, err)
	}
	return d, nil
}

// slug lower-cases s and joins its words with dashes.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
