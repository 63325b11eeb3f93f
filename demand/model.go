/*
Package demand computes daily unit demand for a product.

PURPOSE:
  Demand is the product of independent multiplicative factors applied to a
  product's base daily demand, followed by a seeded random draw:

    mean = base x trend x seasonal x weekday x price x event x campaign
                x maturity x volatility
    units = Poisson(mean)

FACTORS:
  trend       (1 + TrendRate)^(days since launch / 365.25)
  seasonal    1 + amplitude x sin(2π(dayOfYear - 80) / 365.25)
  weekday     Monday..Sunday table, weekends sell more
  price       max(0, 1 - sensitivity x (price - basePrice) / basePrice)
  maturity    min + (1 - min) x (days since business start / MaturityDays)^0.6,
              capped at 1; a new shop has few customers
  volatility  uniform draw inside the business volatility band

DETERMINISM:
  Every random number comes from a generator seeded with
  (business id, product id, date). Asking for the same day twice returns the
  same quantity, so replaying a day is idempotent.

LOCKED PRODUCTS:
  A locked product has zero demand regardless of the other factors.

SEE ALSO:
  - modifier.go: events and campaigns
  - sim/scheduler.go: calls Daily once per product per simulated day
*/
package demand

import (
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/money"
)

// Volatility is the width of the daily random swing of a business.
type Volatility string

const (
	VolatilityLow    Volatility = "LOW"
	VolatilityMedium Volatility = "MEDIUM"
	VolatilityHigh   Volatility = "HIGH"
)

// Band is a closed interval of volatility multipliers.
type Band struct {
	Low  float64
	High float64
}

// Model holds the tunable constants. DefaultModel matches the shipped economy.
type Model struct {
	TrendRate      float64
	MaturityDays   float64
	MaturityMin    float64
	MaturityCurve  float64
	WeekdayFactors [7]float64 // Monday first
	Bands          map[Volatility]Band
	// Above this mean the Poisson draw switches to a normal approximation.
	NormalThreshold float64
}

func DefaultModel() Model {
	return Model{
		TrendRate:      0.10,
		MaturityDays:   90,
		MaturityMin:    0.05,
		MaturityCurve:  0.6,
		WeekdayFactors: [7]float64{0.90, 0.95, 1.00, 1.10, 1.40, 1.50, 1.20},
		Bands: map[Volatility]Band{
			VolatilityLow:    {Low: 0.95, High: 1.05},
			VolatilityMedium: {Low: 0.85, High: 1.15},
			VolatilityHigh:   {Low: 0.85, High: 1.15},
		},
		NormalThreshold: 30,
	}
}

// Inputs is everything the model needs for one product on one day.
type Inputs struct {
	BusinessID         string
	ProductID          string
	Date               calendar.Date
	BaseDemand         float64
	BasePrice          money.Money
	Price              money.Money
	PriceSensitivity   float64
	SeasonalAmplitude  float64
	LaunchDate         calendar.Date
	BusinessStart      calendar.Date
	EventMultiplier    float64
	CampaignMultiplier float64
	Volatility         Volatility
	Locked             bool
}

// Breakdown exposes each factor for diagnostics and projections.
type Breakdown struct {
	Base       float64        `json:"base"`
	Trend      float64        `json:"trend"`
	Seasonal   float64        `json:"seasonal"`
	Weekday    float64        `json:"weekday"`
	Price      float64        `json:"price"`
	Event      float64        `json:"event"`
	Campaign   float64        `json:"campaign"`
	Maturity   float64        `json:"maturity"`
	Volatility float64        `json:"volatility"`
	Mean       float64        `json:"mean"`
	Quantity   money.Quantity `json:"quantity"`
}

// Daily returns the units demanded. Always >= 0.
func (m Model) Daily(in Inputs) money.Quantity {
	return m.Explain(in).Quantity
}

// Explain computes every factor and the final draw.
func (m Model) Explain(in Inputs) Breakdown {
	if in.Locked || in.BaseDemand <= 0 {
		return Breakdown{}
	}
	rng := rand.New(rand.NewPCG(seed(in.BusinessID, in.ProductID, in.Date)))

	b := Breakdown{
		Base:       in.BaseDemand,
		Trend:      m.Trend(calendar.DaysBetween(in.LaunchDate, in.Date)),
		Seasonal:   Seasonal(in.Date, in.SeasonalAmplitude),
		Weekday:    m.WeekdayFactors[in.Date.MondayIndex()],
		Price:      PriceFactor(in.Price, in.BasePrice, in.PriceSensitivity),
		Event:      orOne(in.EventMultiplier),
		Campaign:   orOne(in.CampaignMultiplier),
		Maturity:   m.Maturity(calendar.DaysBetween(in.BusinessStart, in.Date)),
		Volatility: m.volatility(rng, in.Volatility),
	}
	b.Mean = b.Base * b.Trend * b.Seasonal * b.Weekday * b.Price * b.Event * b.Campaign * b.Maturity * b.Volatility
	b.Quantity = m.draw(rng, b.Mean)
	return b
}

// Expected is the mean before any randomness, used by projections.
func (m Model) Expected(in Inputs) float64 {
	if in.Locked || in.BaseDemand <= 0 {
		return 0
	}
	return in.BaseDemand *
		m.Trend(calendar.DaysBetween(in.LaunchDate, in.Date)) *
		Seasonal(in.Date, in.SeasonalAmplitude) *
		m.WeekdayFactors[in.Date.MondayIndex()] *
		PriceFactor(in.Price, in.BasePrice, in.PriceSensitivity) *
		orOne(in.EventMultiplier) * orOne(in.CampaignMultiplier) *
		m.Maturity(calendar.DaysBetween(in.BusinessStart, in.Date))
}

// =============================================================================
// FACTORS
// =============================================================================

func (m Model) Trend(daysSinceLaunch int) float64 {
	if daysSinceLaunch < 0 {
		daysSinceLaunch = 0
	}
	return math.Pow(1+m.TrendRate, float64(daysSinceLaunch)/365.25)
}

func Seasonal(d calendar.Date, amplitude float64) float64 {
	return 1 + amplitude*math.Sin(2*math.Pi*float64(d.YearDay()-80)/365.25)
}

// PriceFactor is linear elasticity around the base price, floored at zero.
func PriceFactor(price, base money.Money, sensitivity float64) float64 {
	if !base.IsPositive() {
		return 1
	}
	change, _ := price.Sub(base).Value.Div(base.Value).Float64()
	return math.Max(0, 1-sensitivity*change)
}

func (m Model) Maturity(daysSinceStart int) float64 {
	if m.MaturityDays <= 0 || float64(daysSinceStart) >= m.MaturityDays {
		return 1
	}
	if daysSinceStart < 0 {
		daysSinceStart = 0
	}
	progress := math.Pow(float64(daysSinceStart)/m.MaturityDays, m.MaturityCurve)
	return m.MaturityMin + (1-m.MaturityMin)*progress
}

func (m Model) volatility(rng *rand.Rand, v Volatility) float64 {
	band, ok := m.Bands[v]
	if !ok {
		band = m.Bands[VolatilityMedium]
	}
	if band.High <= band.Low {
		return orOne(band.Low)
	}
	return band.Low + rng.Float64()*(band.High-band.Low)
}

// draw samples a Poisson variate with the given mean. The result saturates
// at math.MaxInt64; a NaN mean draws nothing.
func (m Model) draw(rng *rand.Rand, mean float64) money.Quantity {
	if math.IsNaN(mean) || mean <= 0 {
		return 0
	}
	if mean > m.NormalThreshold {
		v := math.Round(mean + math.Sqrt(mean)*rng.NormFloat64())
		switch {
		case math.IsNaN(v) || v < 0:
			return 0
		case v >= math.MaxInt64:
			return math.MaxInt64
		}
		return money.Quantity(v)
	}
	// Knuth
	limit := math.Exp(-mean)
	k := 0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= limit {
			return money.Quantity(k)
		}
		k++
	}
}

func orOne(f float64) float64 {
	if f <= 0 {
		return 1
	}
	return f
}

// seed derives a reproducible PCG seed from the draw key.
func seed(business, product string, d calendar.Date) (uint64, uint64) {
	key := business + "|" + product + "|" + d.String()
	h1 := fnv.New64a()
	h1.Write([]byte(key))
	h2 := fnv.New64()
	h2.Write([]byte(key))
	return h1.Sum64(), h2.Sum64()
}

// Stream returns a reproducible generator for another per-day draw of a
// business, such as the market event roll.
func Stream(business, name string, d calendar.Date) *rand.Rand {
	return rand.New(rand.NewPCG(seed(business, "#"+name, d)))
}
