package main

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/catalog"
	"github.com/warp/harvest-engine/inventory"
	"github.com/warp/harvest-engine/money"
	"github.com/warp/harvest-engine/procurement"
	"github.com/warp/harvest-engine/sim"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func keyboards(t *testing.T) *sim.Business {
	t.Helper()
	tpl, err := catalog.Preset("keyboards")
	require.NoError(t, err)
	cfg, err := tpl.Config("kb", calendar.MustParse("2025-04-01"))
	require.NoError(t, err)
	b, err := sim.New(cfg)
	require.NoError(t, err)
	return b
}

func TestRestock_OrdersEveryUnlockedProductOnce(t *testing.T) {
	b := keyboards(t)
	r := restocker{coverDays: 14, log: quietLogger()}

	// GIVEN empty shelves
	placed, err := r.run(b)
	require.NoError(t, err)

	unlocked := 0
	for _, p := range b.Products() {
		if p.Unlocked {
			unlocked++
		}
	}
	assert.Len(t, placed, unlocked)
	minimums := map[string]money.Money{}
	for _, v := range b.Vendors() {
		minimums[v.ID] = v.MinOrderValue
	}
	for _, po := range placed {
		require.Len(t, po.Lines, 1)
		assert.True(t, po.Subtotal.GreaterThanOrEqual(minimums[po.VendorID]), po.ID)
	}

	// WHEN it runs again with those orders in transit
	again, err := r.run(b)
	require.NoError(t, err)

	// THEN nothing more is ordered
	assert.Empty(t, again)
	assert.True(t, b.TrialBalance().IsZero())
}

func TestCheapestOffer(t *testing.T) {
	vendors := []procurement.Vendor{
		{ID: "slow", LeadTimeDays: 20, Offers: map[inventory.ProductID]procurement.Offer{"a": {UnitCost: money.MustParse("1.00")}}},
		{ID: "fast", LeadTimeDays: 3, Offers: map[inventory.ProductID]procurement.Offer{"a": {UnitCost: money.MustParse("1.00")}}},
		{ID: "dear", LeadTimeDays: 1, Offers: map[inventory.ProductID]procurement.Offer{"a": {UnitCost: money.MustParse("1.50")}}},
		{ID: "other", Offers: map[inventory.ProductID]procurement.Offer{"b": {UnitCost: money.MustParse("0.10")}}},
	}

	v, o, ok := cheapestOffer(vendors, "a")
	require.True(t, ok)
	assert.Equal(t, "fast", v.ID)
	assert.True(t, o.UnitCost.Equal(money.MustParse("1.00")))

	_, _, ok = cheapestOffer(vendors, "zzz")
	assert.False(t, ok)
}

func TestOrderQuantity_RespectsMinimums(t *testing.T) {
	v := procurement.Vendor{MinOrderValue: money.MustParse("200")}
	o := procurement.Offer{UnitCost: money.MustParse("0.28"), MinQuantity: 500}

	assert.Equal(t, money.Quantity(715), orderQuantity(v, o, 10))   // 200 / 0.28 rounded up
	assert.Equal(t, money.Quantity(1000), orderQuantity(v, o, 1000)) // already above both
	assert.Equal(t, money.Quantity(715), orderQuantity(v, o, -50))
}
