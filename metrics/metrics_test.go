package metrics_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-engine/metrics"
	"github.com/warp/harvest-engine/sim"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, metrics.OutcomeOK, metrics.Outcome(nil))
	assert.Equal(t, metrics.OutcomeRejected, metrics.Outcome(fmt.Errorf("wrap: %w", sim.ErrInsufficientCash)))
	assert.Equal(t, metrics.OutcomeNotFound, metrics.Outcome(sim.ErrUnknownVendor))
	assert.Equal(t, metrics.OutcomeError, metrics.Outcome(errors.New("disk full")))
}

func TestObserveCommand_CountsByOutcome(t *testing.T) {
	m := metrics.New()
	start := time.Now()

	assert.NoError(t, m.ObserveCommand("advance", start, nil))
	err := m.ObserveCommand("advance", start, sim.ErrAdvanceLimit)
	assert.ErrorIs(t, err, sim.ErrAdvanceLimit)

	n, err := testutil.GatherAndCount(m.Registry(), "harvest_commands_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestObserveDays(t *testing.T) {
	m := metrics.New()
	m.ObserveDays("keyboards", []sim.DayReport{
		{Sales: []sim.Sale{{Sold: 10}, {Sold: 3, Stockout: true}}},
		{Sales: []sim.Sale{{Sold: 5}}, Failures: []sim.SaleFailure{{}}},
	})

	expected := `
# HELP harvest_units_sold_total Units sold by business kind.
# TYPE harvest_units_sold_total counter
harvest_units_sold_total{kind="keyboards"} 18
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "harvest_units_sold_total"))

	expected = `
# HELP harvest_stockouts_total Product-days where demand exceeded stock.
# TYPE harvest_stockouts_total counter
harvest_stockouts_total{kind="keyboards"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "harvest_stockouts_total"))
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/businesses/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/businesses/acme", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `harvest_http_requests_total{code="418",route="/businesses/{id}"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveDays("x", []sim.DayReport{{}})
	assert.NoError(t, m.ObserveCommand("x", time.Now(), nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
