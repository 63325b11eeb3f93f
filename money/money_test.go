package money_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-engine/money"
)

func TestMoney_NoFloatDrift(t *testing.T) {
	// GIVEN: ten cents added ten times
	total := money.Zero
	for i := 0; i < 10; i++ {
		total = total.Add(money.MustParse("0.10"))
	}

	// THEN: exactly one dollar
	assert.True(t, total.Equal(money.FromInt(1)))
	assert.Equal(t, "1.00", total.String())
}

func TestMoney_MulQtyAndRound(t *testing.T) {
	unit := money.MustParse("2.005")
	total := unit.MulQty(3)

	assert.Equal(t, "6.015", total.Value.String())
	assert.Equal(t, "6.02", total.RoundCents().String())
	assert.True(t, total.HasSubCents())
	assert.False(t, total.RoundCents().HasSubCents())
}

func TestMoney_FromCents(t *testing.T) {
	assert.Equal(t, "12.34", money.FromCents(1234).String())
	assert.True(t, money.FromCents(-50).IsNegative())
}

func TestMoney_ParseRejectsGarbage(t *testing.T) {
	_, err := money.Parse("twelve")
	assert.Error(t, err)
}

func TestMoney_JSON(t *testing.T) {
	data, err := json.Marshal(money.MustParse("19.90"))
	require.NoError(t, err)
	assert.Equal(t, `"19.9"`, string(data))

	var fromString money.Money
	require.NoError(t, json.Unmarshal([]byte(`"42.50"`), &fromString))
	assert.True(t, fromString.Equal(money.MustParse("42.5")))

	var fromNumber money.Money
	require.NoError(t, json.Unmarshal([]byte(`7.25`), &fromNumber))
	assert.True(t, fromNumber.Equal(money.MustParse("7.25")))
}

func TestMoney_MinMaxSum(t *testing.T) {
	a, b := money.FromInt(3), money.FromInt(5)
	assert.True(t, a.Min(b).Equal(a))
	assert.True(t, a.Max(b).Equal(b))
	assert.True(t, money.Sum(a, b, money.MustParse("0.5")).Equal(money.MustParse("8.5")))
	assert.True(t, a.Mul(decimal.NewFromInt(2)).Equal(money.FromInt(6)))
}

func TestQuantity_Min(t *testing.T) {
	assert.Equal(t, money.Quantity(20), money.Quantity(50).Min(20))
	assert.True(t, money.Quantity(0).IsZero())
}
