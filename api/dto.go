/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Responses mostly
  reuse the domain types, which already carry json tags; requests get
  their own types so input is validated before it reaches a business.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Business:
    CreateBusinessRequest, BusinessDTO, AdvanceRequest, AdvanceResponse

  Commands:
    PlaceOrderRequest, OrderLineRequest, SetPriceRequest,
    CampaignRequest, LoanRequest

  Catalog:
    PresetDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  decodeAndValidate, which rejects bad JSON and failed rules with 400.
  Rules that depend on business state (advance limits, cash, minimum
  orders) are checked by the simulation and surface as 422.

SEE ALSO:
  - handlers.go: Uses these types
  - sim/commands.go: The commands these requests become
*/
package api

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/demand"
	"github.com/warp/harvest-engine/finance"
	"github.com/warp/harvest-engine/inventory"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/procurement"
	"github.com/warp/harvest-engine/sim"
)

// =============================================================================
// BUSINESS
// =============================================================================

// CreateBusinessRequest starts a business from a preset.
type CreateBusinessRequest struct {
	ID        string `json:"id" validate:"omitempty,max=64,excludesall=/?# "`
	Name      string `json:"name" validate:"omitempty,max=120"`
	Preset    string `json:"preset" validate:"required"`
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

// BusinessDTO is a stored business in list responses.
type BusinessDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind,omitempty"`
	CurrentDate string `json:"current_date"`
	UpdatedAt   string `json:"updated_at"`
}

// AdvanceRequest moves a business forward. Zero days means one.
type AdvanceRequest struct {
	Days int `json:"days" validate:"gte=0"`
}

type AdvanceResponse struct {
	Reports []sim.DayReport `json:"reports"`
	State   sim.Summary     `json:"state"`
}

// =============================================================================
// COMMANDS
// =============================================================================

type OrderLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
}

type PlaceOrderRequest struct {
	VendorID string             `json:"vendor_id" validate:"required"`
	Lines    []OrderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (r PlaceOrderRequest) lines() []procurement.LineRequest {
	out := make([]procurement.LineRequest, len(r.Lines))
	for i, l := range r.Lines {
		out[i] = procurement.LineRequest{
			ProductID: inventory.ProductID(l.ProductID),
			Quantity:  money.Quantity(l.Quantity),
		}
	}
	return out
}

type SetPriceRequest struct {
	Price string `json:"price" validate:"required,numeric"`
}

// CampaignRequest is a marketing campaign. Target is required unless the
// scope is "all"; attribute targets are "key=value".
type CampaignRequest struct {
	Name         string  `json:"name" validate:"required,max=120"`
	Scope        string  `json:"scope" validate:"required,oneof=product category attribute all"`
	Target       string  `json:"target" validate:"required_unless=Scope all"`
	Multiplier   float64 `json:"multiplier" validate:"gt=0,lte=10"`
	DurationDays int     `json:"duration_days" validate:"gte=1,lte=365"`
	Cost         string  `json:"cost" validate:"required,numeric"`
}

func (r CampaignRequest) toSim() (sim.CampaignRequest, error) {
	cost, err := money.Parse(r.Cost)
	if err != nil {
		return sim.CampaignRequest{}, err
	}
	return sim.CampaignRequest{
		Name:         r.Name,
		Scope:        demand.Scope(r.Scope),
		Target:       r.Target,
		Multiplier:   r.Multiplier,
		DurationDays: r.DurationDays,
		Cost:         cost,
	}, nil
}

// LoanRequest borrows cash. AnnualRate is a fraction ("0.08" is 8%).
type LoanRequest struct {
	Lender       string `json:"lender" validate:"omitempty,max=120"`
	Principal    string `json:"principal" validate:"required,numeric"`
	AnnualRate   string `json:"annual_rate" validate:"omitempty,numeric"`
	Installments int    `json:"installments" validate:"gte=1,lte=120"`
	IntervalDays int    `json:"interval_days" validate:"gte=1,lte=365"`
}

func (r LoanRequest) toTerms() (finance.LoanTerms, error) {
	principal, err := money.Parse(r.Principal)
	if err != nil {
		return finance.LoanTerms{}, err
	}
	rate := decimal.Zero
	if r.AnnualRate != "" {
		if rate, err = decimal.NewFromString(r.AnnualRate); err != nil {
			return finance.LoanTerms{}, fmt.Errorf("invalid annual_rate %q: %w", r.AnnualRate, err)
		}
	}
	return finance.LoanTerms{
		Lender:       r.Lender,
		Principal:    principal,
		AnnualRate:   rate,
		Installments: r.Installments,
		IntervalDays: r.IntervalDays,
	}, nil
}

// =============================================================================
// CATALOG & SCENARIOS
// =============================================================================

type PresetDTO struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Products    int    `json:"products"`
	Vendors     int    `json:"vendors"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Preset      string `json:"preset"`
}

// LoadScenarioRequest creates a business from a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
	BusinessID string `json:"business_id" validate:"omitempty,max=64,excludesall=/?# "`
	StartDate  string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

// ErrorResponse is the error format.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details string   `json:"details,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

func parseOptionalDate(s string) (calendar.Date, error) {
	if s == "" {
		return calendar.Date{}, nil
	}
	return calendar.Parse(s)
}
