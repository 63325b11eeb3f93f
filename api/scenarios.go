/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built businesses for demos and manual testing. Each
	scenario starts from a catalog preset and replays a short script of
	commands, so the business arrives with stock, open orders, bills or
	campaigns already in place.

AVAILABLE SCENARIOS:

	fresh-keyboards:  Day zero keyboard switch shop, nothing bought yet
	stocked-keyboards: Two weeks in, stocked from a NET30 vendor
	tech-on-credit:   Loan-funded bulk order from a slow overseas vendor
	farm-campaign:    Herbs stocked and promoted with a campaign

HOW SCENARIOS WORK:
 1. Create the business from the scenario's preset
 2. Run the scenario's script as one command under the business lock
 3. If the script fails, delete the half-built business

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "tech-on-credit", "business_id": "demo-1"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description and preset
 2. Write a script: func(b *sim.Business) error

SEE ALSO:
  - handlers.go: Shared helpers
  - catalog/presets: The businesses scenarios start from
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/harvest-engine/demand"
	"github.com/warp/harvest-engine/finance"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/procurement"
	"github.com/warp/harvest-engine/service"
	"github.com/warp/harvest-engine/sim"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	script func(b *sim.Business) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "fresh-keyboards",
			Name:        "Fresh Keyboard Shop",
			Description: "Day zero: starting cash, empty shelves",
			Preset:      "keyboards",
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "stocked-keyboards",
			Name:        "Stocked Keyboard Shop",
			Description: "Linear and tactile switches bought on NET30, two weeks of sales",
			Preset:      "keyboards",
		},
		script: playStockedKeyboards,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "tech-on-credit",
			Name:        "Tech Reseller on Credit",
			Description: "Bank loan funds a bulk overseas order; bills and installments come due",
			Preset:      "tech",
		},
		script: playTechOnCredit,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "farm-campaign",
			Name:        "Herb Promotion",
			Description: "Herbs stocked and pushed with a week-long marketing campaign",
			Preset:      "farm",
		},
		script: playFarmCampaign,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario creates a business from a scenario. The business id
// defaults to the scenario id.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	sc, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}
	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	id := req.BusinessID
	if id == "" {
		id = sc.ID
	}

	summary, err := h.loadScenario(r.Context(), sc, service.CreateRequest{
		BusinessID: id,
		Name:       sc.Name,
		Preset:     sc.Preset,
		StartDate:  start,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (h *Handler) loadScenario(ctx context.Context, sc scenario, req service.CreateRequest) (sim.Summary, error) {
	summary, err := h.svc.Create(ctx, req)
	if err != nil {
		return sim.Summary{}, err
	}
	if sc.script == nil {
		return summary, nil
	}

	err = h.svc.Update(ctx, summary.BusinessID, "scenario", func(b *sim.Business) error {
		if err := sc.script(b); err != nil {
			return err
		}
		summary = b.State()
		return nil
	})
	if err != nil {
		if derr := h.svc.Delete(context.WithoutCancel(ctx), summary.BusinessID); derr != nil {
			h.log.WithError(derr).WithField("business", summary.BusinessID).Warn("failed to remove partial scenario")
		}
		return sim.Summary{}, fmt.Errorf("scenario %s: %w", sc.ID, err)
	}
	h.log.WithField("business", summary.BusinessID).WithField("scenario", sc.ID).Info("scenario loaded")
	return summary, nil
}

// =============================================================================
// SCENARIO SCRIPTS
// =============================================================================

func playStockedKeyboards(b *sim.Business) error {
	if _, err := b.PlaceOrder("us-switches", []procurement.LineRequest{
		{ProductID: "gat-red", Quantity: 3000},
		{ProductID: "gat-brn", Quantity: 3000},
	}); err != nil {
		return err
	}
	_, err := b.AdvanceDays(14)
	return err
}

func playTechOnCredit(b *sim.Business) error {
	if _, err := b.TakeLoan(finance.LoanTerms{
		Lender:       "First Silicon Bank",
		Principal:    money.MustParse("20000"),
		AnnualRate:   decimal.RequireFromString("0.08"),
		Installments: 4,
		IntervalDays: 30,
	}); err != nil {
		return err
	}
	if _, err := b.PlaceOrder("shenzhen-components", []procurement.LineRequest{
		{ProductID: "gpu-rx580", Quantity: 60},
		{ProductID: "ram-ecc32", Quantity: 80},
	}); err != nil {
		return err
	}
	if _, err := b.PlaceOrder("techwholesale", []procurement.LineRequest{
		{ProductID: "cpu-xeon", Quantity: 10},
	}); err != nil {
		return err
	}
	if _, err := b.AdvanceDays(25); err != nil {
		return err
	}
	_, err := b.AdvanceDays(20)
	return err
}

func playFarmCampaign(b *sim.Business) error {
	if _, err := b.PlaceOrder("green-thumb", []procurement.LineRequest{
		{ProductID: "hb-basil", Quantity: 2000},
		{ProductID: "hb-cilant", Quantity: 2000},
		{ProductID: "lg-butter", Quantity: 1500},
	}); err != nil {
		return err
	}
	if _, err := b.AdvanceDays(5); err != nil {
		return err
	}
	if _, err := b.LaunchCampaign(sim.CampaignRequest{
		Name:         "Fresh Herb Week",
		Scope:        demand.ScopeCategory,
		Target:       "Herbs",
		Multiplier:   1.4,
		DurationDays: 7,
		Cost:         money.MustParse("300"),
	}); err != nil {
		return err
	}
	_, err := b.AdvanceDays(7)
	return err
}
