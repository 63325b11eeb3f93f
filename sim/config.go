package sim

import (
	"fmt"

	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/demand"
	"github.com/warp/harvest-engine/finance"
	"github.com/warp/harvest-engine/inventory"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/procurement"
)

const (
	DefaultMaxAdvanceDays = 30
	DefaultEventChance    = 0.04
	DefaultEventMinDays   = 14
)

// =============================================================================
// PRODUCT
// =============================================================================

// Product is a sellable item and its demand parameters.
type Product struct {
	ID                inventory.ProductID `json:"id"`
	Name              string              `json:"name"`
	SKU               string              `json:"sku,omitempty"`
	Category          string              `json:"category,omitempty"`
	Attributes        map[string]string   `json:"attributes,omitempty"`
	BasePrice         money.Money         `json:"base_price"`
	Price             money.Money         `json:"price"`
	BaseDemand        float64             `json:"base_demand"`
	PriceSensitivity  float64             `json:"price_sensitivity"`
	SeasonalAmplitude float64             `json:"seasonal_amplitude"`
	UnlockRevenue     money.Money         `json:"unlock_revenue"`
	Unlocked          bool                `json:"unlocked"`
	LaunchDate        calendar.Date       `json:"launch_date,omitempty"`
}

func (p Product) target() demand.Target {
	return demand.Target{ProductID: string(p.ID), Category: p.Category, Attributes: p.Attributes}
}

func (p Product) clone() Product {
	if p.Attributes != nil {
		attrs := make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			attrs[k] = v
		}
		p.Attributes = attrs
	}
	return p
}

// =============================================================================
// MARKET EVENT TEMPLATES
// =============================================================================

// EventTemplate is a market event that may start on a random day.
type EventTemplate struct {
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Scope        demand.Scope `json:"scope"`
	Target       string       `json:"target,omitempty"`
	Multiplier   float64      `json:"multiplier"`
	DurationDays int          `json:"duration_days"`
}

// =============================================================================
// CONFIG
// =============================================================================

// Config is the static definition of a business. It never changes after
// creation; Restart rebuilds the business from it.
type Config struct {
	BusinessID   string                     `json:"business_id"`
	Name         string                     `json:"name"`
	Kind         string                     `json:"kind,omitempty"`
	StartDate    calendar.Date              `json:"start_date"`
	StartingCash money.Money                `json:"starting_cash"`
	Volatility   demand.Volatility          `json:"volatility"`
	Products     []Product                  `json:"products"`
	Vendors      []procurement.Vendor       `json:"vendors"`
	Expenses     []finance.RecurringExpense `json:"expenses,omitempty"`
	Events       []EventTemplate            `json:"events,omitempty"`

	MaxAdvanceDays int     `json:"max_advance_days,omitempty"`
	EventChance    float64 `json:"event_chance,omitempty"`
	EventMinDays   int     `json:"event_min_days,omitempty"`
}

func (c Config) withDefaults() Config {
	if c.MaxAdvanceDays <= 0 {
		c.MaxAdvanceDays = DefaultMaxAdvanceDays
	}
	if c.EventChance <= 0 {
		c.EventChance = DefaultEventChance
	}
	if c.EventMinDays <= 0 {
		c.EventMinDays = DefaultEventMinDays
	}
	if c.Volatility == "" {
		c.Volatility = demand.VolatilityMedium
	}
	for i := range c.Products {
		p := &c.Products[i]
		if p.Price.IsZero() {
			p.Price = p.BasePrice
		}
		if !p.UnlockRevenue.IsPositive() {
			p.Unlocked = true
		}
		if p.Unlocked && p.LaunchDate.IsZero() {
			p.LaunchDate = c.StartDate
		}
	}
	return c
}

// Validate checks the config is internally consistent.
func (c Config) Validate() error {
	if c.BusinessID == "" {
		return fmt.Errorf("%w: empty business id", ErrInvalidConfig)
	}
	if c.StartDate.IsZero() {
		return fmt.Errorf("%w: missing start date", ErrInvalidConfig)
	}
	if c.StartingCash.IsNegative() {
		return fmt.Errorf("%w: negative starting cash", ErrInvalidConfig)
	}
	seen := make(map[inventory.ProductID]bool, len(c.Products))
	for _, p := range c.Products {
		if p.ID == "" {
			return fmt.Errorf("%w: product with empty id", ErrInvalidConfig)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate product %s", ErrInvalidConfig, p.ID)
		}
		seen[p.ID] = true
		if !p.BasePrice.IsPositive() {
			return fmt.Errorf("%w: product %s needs a positive base price", ErrInvalidConfig, p.ID)
		}
		if p.BaseDemand < 0 || p.PriceSensitivity < 0 {
			return fmt.Errorf("%w: product %s has negative demand parameters", ErrInvalidConfig, p.ID)
		}
	}
	vendors := make(map[string]bool, len(c.Vendors))
	for _, v := range c.Vendors {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if vendors[v.ID] {
			return fmt.Errorf("%w: duplicate vendor %s", ErrInvalidConfig, v.ID)
		}
		vendors[v.ID] = true
		for p := range v.Offers {
			if !seen[p] {
				return fmt.Errorf("%w: vendor %s offers unknown product %s", ErrInvalidConfig, v.ID, p)
			}
		}
	}
	for _, e := range c.Expenses {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	for _, t := range c.Events {
		m := demand.Modifier{ID: t.Name, Scope: t.Scope, Target: t.Target, Multiplier: t.Multiplier}
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%w: event %v", ErrInvalidConfig, err)
		}
		if t.DurationDays <= 0 {
			return fmt.Errorf("%w: event %s needs a positive duration", ErrInvalidConfig, t.Name)
		}
	}
	return nil
}
