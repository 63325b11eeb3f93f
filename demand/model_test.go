package demand_test

import (
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/demand"
	"github.com/warp/harvest-engine/money"
)

func baseInputs() demand.Inputs {
	start := calendar.NewDate(2025, time.January, 1)
	return demand.Inputs{
		BusinessID:        "keyboards",
		ProductID:         "switch-brown",
		Date:              start.AddDays(120),
		BaseDemand:        40,
		BasePrice:         money.MustParse("5.00"),
		Price:             money.MustParse("5.00"),
		PriceSensitivity:  1.2,
		SeasonalAmplitude: 0.3,
		LaunchDate:        start,
		BusinessStart:     start,
		Volatility:        demand.VolatilityMedium,
	}
}

func TestDaily_IdempotentForSameKey(t *testing.T) {
	m := demand.DefaultModel()
	in := baseInputs()

	first := m.Daily(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Daily(in), "same (business, product, date) must replay identically")
	}
}

func TestDaily_DifferentKeysVary(t *testing.T) {
	m := demand.DefaultModel()
	in := baseInputs()

	seen := map[money.Quantity]bool{}
	for i := 0; i < 20; i++ {
		in.Date = in.Date.AddDays(7) // same weekday
		seen[m.Daily(in)] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestDaily_LockedProductIsZero(t *testing.T) {
	in := baseInputs()
	in.Locked = true
	in.CampaignMultiplier = 5

	assert.Equal(t, money.Quantity(0), demand.DefaultModel().Daily(in))
}

func TestDaily_NeverNegative(t *testing.T) {
	m := demand.DefaultModel()
	in := baseInputs()
	in.Price = money.MustParse("50.00") // price factor floors at zero

	for i := 0; i < 30; i++ {
		in.Date = in.Date.AddDays(1)
		assert.GreaterOrEqual(t, int64(m.Daily(in)), int64(0))
	}
	assert.Equal(t, 0.0, m.Explain(in).Price)
}

func TestDaily_HugeMeanSaturates(t *testing.T) {
	m := demand.DefaultModel()
	in := baseInputs()
	in.BaseDemand = 100

	// GIVEN stacked multipliers far beyond what int64 units can hold
	in.CampaignMultiplier = 1e18
	in.EventMultiplier = 1e6

	// THEN the draw saturates instead of wrapping negative
	assert.Equal(t, money.Quantity(math.MaxInt64), m.Daily(in))

	// AND a mean that is not a number draws nothing
	in.CampaignMultiplier = math.Inf(1)
	in.EventMultiplier = 1
	in.Price = money.MustParse("50.00") // zero price factor: Inf x 0 = NaN
	assert.Equal(t, money.Quantity(0), m.Daily(in))
}

func TestPriceFactor(t *testing.T) {
	base := money.MustParse("10")

	assert.InDelta(t, 1.0, demand.PriceFactor(base, base, 1.5), 1e-9)
	assert.InDelta(t, 0.85, demand.PriceFactor(money.MustParse("11"), base, 1.5), 1e-9)
	assert.InDelta(t, 1.15, demand.PriceFactor(money.MustParse("9"), base, 1.5), 1e-9)
	assert.Equal(t, 0.0, demand.PriceFactor(money.MustParse("30"), base, 1.5))
}

func TestMaturity(t *testing.T) {
	m := demand.DefaultModel()

	assert.InDelta(t, 0.05, m.Maturity(0), 1e-9)
	assert.Equal(t, 1.0, m.Maturity(90))
	assert.Equal(t, 1.0, m.Maturity(400))
	assert.Less(t, m.Maturity(10), m.Maturity(45))
}

func TestTrendAndSeasonal(t *testing.T) {
	m := demand.DefaultModel()

	assert.InDelta(t, 1.10, m.Trend(365), 0.001)
	assert.Equal(t, 1.0, m.Trend(-3))

	// peak near day 171 (late June), trough near late December
	summer := demand.Seasonal(calendar.NewDate(2025, time.June, 20), 0.3)
	winter := demand.Seasonal(calendar.NewDate(2025, time.December, 20), 0.3)
	assert.Greater(t, summer, 1.25)
	assert.Less(t, winter, 0.75)
}

func TestExplain_WeekdayTable(t *testing.T) {
	m := demand.DefaultModel()
	in := baseInputs()
	in.Date = calendar.NewDate(2025, time.June, 7) // Saturday

	b := m.Explain(in)
	assert.Equal(t, 1.50, b.Weekday)
	assert.InDelta(t, b.Mean, m.Expected(in)*b.Volatility, 1e-9)
}

func TestDraw_MeanRoughlyPreserved(t *testing.T) {
	// GIVEN: a mature product on a flat day
	m := demand.DefaultModel()
	m.Bands = map[demand.Volatility]demand.Band{demand.VolatilityMedium: {Low: 1, High: 1}}
	in := baseInputs()
	in.SeasonalAmplitude = 0

	// WHEN: sampling many keys
	var total, expected float64
	for i := 0; i < 400; i++ {
		in.ProductID = "p" + strconv.Itoa(i)
		total += float64(m.Daily(in))
		expected += m.Expected(in)
	}

	// THEN: the sample mean is close to the model mean
	require.Greater(t, expected, 0.0)
	assert.Less(t, math.Abs(total-expected)/expected, 0.05)
}

func TestModifier_MatchingAndWindow(t *testing.T) {
	d := calendar.NewDate(2025, time.May, 10)
	target := demand.Target{ProductID: "switch-brown", Category: "Switches", Attributes: map[string]string{"feel": "tactile"}}
	mods := []demand.Modifier{
		{ID: "e1", Kind: demand.KindEvent, Scope: demand.ScopeAttribute, Target: "feel=tactile", Multiplier: 1.5, Start: d, End: d.AddDays(3)},
		{ID: "c1", Kind: demand.KindCampaign, Scope: demand.ScopeCategory, Target: "switches", Multiplier: 1.25, Start: d, End: d},
		{ID: "c2", Kind: demand.KindCampaign, Scope: demand.ScopeAll, Multiplier: 2, Start: d.AddDays(1), End: d.AddDays(2)},
		{ID: "c3", Kind: demand.KindCampaign, Scope: demand.ScopeProduct, Target: "other", Multiplier: 9, Start: d, End: d},
	}

	assert.InDelta(t, 1.5, demand.Combined(mods, demand.KindEvent, target, d), 1e-9)
	assert.InDelta(t, 1.25, demand.Combined(mods, demand.KindCampaign, target, d), 1e-9)
	assert.InDelta(t, 2.0, demand.Combined(mods, demand.KindCampaign, target, d.AddDays(1)), 1e-9)
	assert.InDelta(t, 1.0, demand.Combined(mods, demand.KindEvent, target, d.AddDays(4)), 1e-9)

	for _, m := range mods {
		assert.NoError(t, m.Validate())
	}
	bad := demand.Modifier{ID: "x", Scope: demand.ScopeCategory, Multiplier: 1, Start: d, End: d}
	assert.Error(t, bad.Validate())

	huge := demand.Modifier{ID: "y", Scope: demand.ScopeAll, Multiplier: demand.MaxMultiplier + 1, Start: d, End: d}
	assert.Error(t, huge.Validate())
	huge.Multiplier = demand.MaxMultiplier
	assert.NoError(t, huge.Validate())
}
