/*
handlers.go - HTTP API handlers for the business simulation

PURPOSE:
  Exposes the simulation via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to the service, which
  serializes commands per business and persists the result.

ENDPOINTS:
  Businesses:
    GET    /api/businesses                     List businesses
    POST   /api/businesses                     Create from a preset
    GET    /api/businesses/{id}                Summary
    DELETE /api/businesses/{id}                Delete
    POST   /api/businesses/{id}/advance        Simulate 1..N days
    POST   /api/businesses/{id}/restart        Back to day zero

  Commands:
    POST   /api/businesses/{id}/orders                 Place purchase order
    POST   /api/businesses/{id}/orders/{order}/cancel  Cancel before arrival
    PUT    /api/businesses/{id}/products/{product}/price
    POST   /api/businesses/{id}/campaigns              Launch campaign
    POST   /api/businesses/{id}/bills/{bill}/pay       Pay a bill
    POST   /api/businesses/{id}/loans                  Take a loan

  Queries:
    GET    /api/businesses/{id}/orders             ?open=true
    GET    /api/businesses/{id}/orders/{order}
    GET    /api/businesses/{id}/products
    GET    /api/businesses/{id}/vendors
    GET    /api/businesses/{id}/inventory[/{product}]
    GET    /api/businesses/{id}/demand/{product}   ?days=7
    GET    /api/businesses/{id}/demand/{product}/explain ?date=
    GET    /api/businesses/{id}/modifiers          ?active=true
    GET    /api/businesses/{id}/sales
    GET    /api/businesses/{id}/bills
    GET    /api/businesses/{id}/payables/aging
    GET    /api/businesses/{id}/loans
    GET    /api/businesses/{id}/ledger/entries     ?after=seq
    GET    /api/businesses/{id}/ledger/balance/{account} ?as_of=
    GET    /api/businesses/{id}/ledger/trial-balance     ?as_of=
    GET    /api/businesses/{id}/ledger/income-statement  ?from=&to=
    GET    /api/businesses/{id}/ledger/balance-sheet     ?as_of=

  Catalog:
    GET    /api/presets
    GET    /api/presets/{kind}

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Business, product, vendor, order or bill not found
  - 409: Business already exists or busy
  - 422: The business refused the command (cash, minimums, state)
  - 500: Internal errors and broken accounting invariants

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
  - service/service.go: Locking and persistence around every command
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/catalog"
	"github.com/warp/harvest-engine/demand"
	"github.com/warp/harvest-engine/finance"
	"github.com/warp/harvest-engine/inventory"
	"github.com/warp/harvest-engine/ledger"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/payables"
	"github.com/warp/harvest-engine/procurement"
	"github.com/warp/harvest-engine/service"
	"github.com/warp/harvest-engine/sim"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	svc      *service.Service
	validate *validator.Validate
	log      logrus.FieldLogger
}

// NewHandler creates a new handler on top of the service.
func NewHandler(svc *service.Service, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

func businessID(r *http.Request) string { return chi.URLParam(r, "id") }

func productID(r *http.Request) inventory.ProductID {
	return inventory.ProductID(chi.URLParam(r, "product"))
}

// view loads the business read-only and writes whatever fn returns.
func view[T any](h *Handler, w http.ResponseWriter, r *http.Request, fn func(*sim.Business) (T, error)) {
	var out T
	err := h.svc.View(r.Context(), businessID(r), func(b *sim.Business) error {
		var err error
		out, err = fn(b)
		return err
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// update runs a command under the business lock and writes its result.
func update[T any](h *Handler, w http.ResponseWriter, r *http.Request, command string, status int, fn func(*sim.Business) (T, error)) {
	var out T
	err := h.svc.Update(r.Context(), businessID(r), command, func(b *sim.Business) error {
		var err error
		out, err = fn(b)
		return err
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, status, out)
}

// =============================================================================
// BUSINESS HANDLERS
// =============================================================================

// ListBusinesses returns every stored business.
func (h *Handler) ListBusinesses(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list businesses", err)
		return
	}

	dtos := make([]BusinessDTO, len(records))
	for i, rec := range records {
		dtos[i] = BusinessDTO{
			ID:          rec.ID,
			Name:        rec.Name,
			Kind:        rec.Kind,
			CurrentDate: rec.CurrentDate.String(),
			UpdatedAt:   rec.UpdatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateBusiness starts a business from a preset.
func (h *Handler) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	var req CreateBusinessRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}

	summary, err := h.svc.Create(r.Context(), service.CreateRequest{
		BusinessID: req.ID,
		Name:       req.Name,
		Preset:     req.Preset,
		StartDate:  start,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (h *Handler) GetBusiness(w http.ResponseWriter, r *http.Request) {
	view(h, w, r, func(b *sim.Business) (sim.Summary, error) {
		return b.State(), nil
	})
}

func (h *Handler) DeleteBusiness(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), businessID(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdvanceBusiness simulates one or more days.
func (h *Handler) AdvanceBusiness(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if r.ContentLength != 0 && !h.decodeAndValidate(w, r, &req) {
		return
	}
	if req.Days == 0 {
		req.Days = 1
	}

	reports, state, err := h.svc.Advance(r.Context(), businessID(r), req.Days)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AdvanceResponse{Reports: nonNil(reports), State: state})
}

// RestartBusiness wipes all activity and rebooks the starting capital.
func (h *Handler) RestartBusiness(w http.ResponseWriter, r *http.Request) {
	update(h, w, r, "restart", http.StatusOK, func(b *sim.Business) (sim.Summary, error) {
		if err := b.Restart(); err != nil {
			return sim.Summary{}, err
		}
		return b.State(), nil
	})
}

// =============================================================================
// PROCUREMENT HANDLERS
// =============================================================================

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	openOnly := r.URL.Query().Get("open") == "true"
	view(h, w, r, func(b *sim.Business) ([]procurement.PurchaseOrder, error) {
		if openOnly {
			return nonNil(b.OpenPurchaseOrders()), nil
		}
		return nonNil(b.PurchaseOrders()), nil
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order")
	view(h, w, r, func(b *sim.Business) (procurement.PurchaseOrder, error) {
		po, ok := b.PurchaseOrder(orderID)
		if !ok {
			return procurement.PurchaseOrder{}, fmt.Errorf("%w: %s", procurement.ErrOrderNotFound, orderID)
		}
		return po, nil
	})
}

// PlaceOrder submits a purchase order to a vendor.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	update(h, w, r, "place_order", http.StatusCreated, func(b *sim.Business) (procurement.PurchaseOrder, error) {
		return b.PlaceOrder(req.VendorID, req.lines())
	})
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order")
	update(h, w, r, "cancel_order", http.StatusOK, func(b *sim.Business) (procurement.PurchaseOrder, error) {
		return b.CancelOrder(orderID)
	})
}

func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	view(h, w, r, func(b *sim.Business) ([]procurement.Vendor, error) {
		return nonNil(b.Vendors()), nil
	})
}

// =============================================================================
// PRODUCT & DEMAND HANDLERS
// =============================================================================

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	view(h, w, r, func(b *sim.Business) ([]sim.Product, error) {
		return nonNil(b.Products()), nil
	})
}

// SetPrice changes a product's selling price from the next sale onward.
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req SetPriceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	price, err := money.Parse(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid price", err)
		return
	}
	update(h, w, r, "set_price", http.StatusOK, func(b *sim.Business) (sim.Product, error) {
		return b.SetPrice(productID(r), price)
	})
}

func (h *Handler) LaunchCampaign(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	campaign, err := req.toSim()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cost", err)
		return
	}
	update(h, w, r, "launch_campaign", http.StatusCreated, func(b *sim.Business) (demand.Modifier, error) {
		return b.LaunchCampaign(campaign)
	})
}

// ListModifiers returns every event and campaign, or with ?active=true only
// those in effect on ?date= (default tomorrow).
func (h *Handler) ListModifiers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	on, err := parseOptionalDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	active := q.Get("active") == "true" || !on.IsZero()
	view(h, w, r, func(b *sim.Business) ([]demand.Modifier, error) {
		if active {
			return nonNil(b.ActiveModifiers(on)), nil
		}
		return nonNil(b.Modifiers()), nil
	})
}

// GetDemandProjection returns expected demand for the next ?days= days.
func (h *Handler) GetDemandProjection(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 7)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid days", err)
		return
	}
	view(h, w, r, func(b *sim.Business) ([]sim.Projection, error) {
		return b.ProjectedDemand(productID(r), days)
	})
}

// ExplainDemand breaks a day's demand into its factors.
func (h *Handler) ExplainDemand(w http.ResponseWriter, r *http.Request) {
	on, err := parseOptionalDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	view(h, w, r, func(b *sim.Business) (demand.Breakdown, error) {
		d := on
		if d.IsZero() {
			d = b.CurrentDate().AddDays(1)
		}
		return b.ExplainDemand(productID(r), d)
	})
}

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	view(h, w, r, func(b *sim.Business) ([]sim.SalesRecord, error) {
		return nonNil(b.SalesHistory()), nil
	})
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

// ListInventory returns a stock snapshot for every product.
func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	view(h, w, r, func(b *sim.Business) ([]sim.StockSnapshot, error) {
		products := b.Products()
		out := make([]sim.StockSnapshot, 0, len(products))
		for _, p := range products {
			s, err := b.InventorySnapshot(p.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	})
}

func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	view(h, w, r, func(b *sim.Business) (sim.StockSnapshot, error) {
		return b.InventorySnapshot(productID(r))
	})
}

// =============================================================================
// PAYABLES & FINANCE HANDLERS
// =============================================================================

func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	view(h, w, r, func(b *sim.Business) ([]payables.Bill, error) {
		return nonNil(b.Bills()), nil
	})
}

func (h *Handler) PayBill(w http.ResponseWriter, r *http.Request) {
	billID := chi.URLParam(r, "bill")
	update(h, w, r, "pay_bill", http.StatusOK, func(b *sim.Business) (payables.Bill, error) {
		return b.PayBill(billID)
	})
}

func (h *Handler) GetAging(w http.ResponseWriter, r *http.Request) {
	view(h, w, r, func(b *sim.Business) (payables.Aging, error) {
		return b.AccountsPayableAging(), nil
	})
}

func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	view(h, w, r, func(b *sim.Business) ([]finance.Loan, error) {
		return nonNil(b.Loans()), nil
	})
}

// TakeLoan books the principal into cash and schedules repayments.
func (h *Handler) TakeLoan(w http.ResponseWriter, r *http.Request) {
	var req LoanRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	terms, err := req.toTerms()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid loan terms", err)
		return
	}
	update(h, w, r, "take_loan", http.StatusCreated, func(b *sim.Business) (finance.Loan, error) {
		return b.TakeLoan(terms)
	})
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// ListEntries returns journal entries after ?after= (a sequence number).
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	after, err := intParam(r, "after", 0)
	if err != nil || after < 0 {
		writeError(w, http.StatusBadRequest, "Invalid after", err)
		return
	}
	view(h, w, r, func(b *sim.Business) ([]ledger.Entry, error) {
		return nonNil(b.EntriesSince(int64(after))), nil
	})
}

// AccountBalanceDTO is one account balance.
type AccountBalanceDTO struct {
	Account ledger.AccountCode `json:"account"`
	Name    string             `json:"name"`
	AsOf    calendar.Date      `json:"as_of"`
	Balance money.Money        `json:"balance"`
}

func (h *Handler) GetAccountBalance(w http.ResponseWriter, r *http.Request) {
	code := ledger.AccountCode(chi.URLParam(r, "account"))
	asOf, err := parseOptionalDate(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return
	}
	view(h, w, r, func(b *sim.Business) (AccountBalanceDTO, error) {
		account, ok := ledger.DefaultChart().Lookup(code)
		if !ok {
			return AccountBalanceDTO{}, fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, code)
		}
		d := asOf
		if d.IsZero() {
			d = b.CurrentDate()
		}
		bal, err := b.LedgerBalance(code, d)
		return AccountBalanceDTO{Account: code, Name: account.Name, AsOf: d, Balance: bal}, err
	})
}

// TrialBalanceDTO lists every account and the overall difference, which
// must be zero.
type TrialBalanceDTO struct {
	Rows       []ledger.TrialBalanceRow `json:"rows"`
	Difference money.Money              `json:"difference"`
}

func (h *Handler) GetTrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseOptionalDate(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return
	}
	view(h, w, r, func(b *sim.Business) (TrialBalanceDTO, error) {
		return TrialBalanceDTO{Rows: nonNil(b.TrialBalanceRows(asOf)), Difference: b.TrialBalance()}, nil
	})
}

// GetIncomeStatement defaults to the whole life of the business.
func (h *Handler) GetIncomeStatement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseOptionalDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from", err)
		return
	}
	to, err := parseOptionalDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to", err)
		return
	}
	view(h, w, r, func(b *sim.Business) (ledger.IncomeStatement, error) {
		if from.IsZero() {
			from = b.Config().StartDate
		}
		if to.IsZero() {
			to = b.CurrentDate()
		}
		period, err := calendar.NewRange(from, to)
		if err != nil {
			return ledger.IncomeStatement{}, err
		}
		return b.IncomeStatement(period)
	})
}

func (h *Handler) GetBalanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseOptionalDate(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return
	}
	view(h, w, r, func(b *sim.Business) (ledger.BalanceSheet, error) {
		return b.BalanceSheet(asOf), nil
	})
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	kinds := catalog.Presets()
	dtos := make([]PresetDTO, 0, len(kinds))
	for _, kind := range kinds {
		tpl, err := catalog.Preset(kind)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load preset", err)
			return
		}
		dtos = append(dtos, PresetDTO{
			Kind:        tpl.Kind,
			Name:        tpl.Name,
			Description: tpl.Description,
			Products:    len(tpl.Products),
			Vendors:     len(tpl.Vendors),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPreset returns the full template of one preset.
func (h *Handler) GetPreset(w http.ResponseWriter, r *http.Request) {
	tpl, err := catalog.Preset(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// It writes a 400 and returns false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag())
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: fields})
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeServiceError maps service and domain errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case service.IsNotFound(err), errors.Is(err, ledger.ErrUnknownAccount):
		writeError(w, http.StatusNotFound, "Not found", err)
	case service.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case sim.IsDomainRejection(err):
		writeError(w, http.StatusUnprocessableEntity, "Command rejected", err)
	case errors.Is(err, calendar.ErrInvalidRange),
		errors.Is(err, sim.ErrInvalidConfig),
		errors.Is(err, catalog.ErrInvalidTemplate):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		entry := h.log.WithError(err).WithField("path", r.URL.Path)
		if sim.IsInvariantViolation(err) {
			entry.Error("accounting invariant violated")
		} else {
			entry.Error("request failed")
		}
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// nonNil keeps empty lists as [] rather than null in responses.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
