package calendar_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-engine/calendar"
)

func TestDate_ArithmeticAcrossMonthEnd(t *testing.T) {
	d := calendar.NewDate(2025, time.January, 30)

	assert.Equal(t, "2025-02-02", d.AddDays(3).String())
	assert.Equal(t, 3, calendar.DaysBetween(d, d.AddDays(3)))
	assert.Equal(t, -3, calendar.DaysBetween(d.AddDays(3), d))
}

func TestDate_MondayIndex(t *testing.T) {
	monday := calendar.NewDate(2025, time.March, 3)
	sunday := calendar.NewDate(2025, time.March, 9)

	assert.Equal(t, time.Monday, monday.Weekday())
	assert.Equal(t, 0, monday.MondayIndex())
	assert.Equal(t, 6, sunday.MondayIndex())
}

func TestDate_ParseAndJSON(t *testing.T) {
	d, err := calendar.Parse("2025-06-15")
	require.NoError(t, err)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2025-06-15"`, string(data))

	var back calendar.Date
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(d))

	_, err = calendar.Parse("15/06/2025")
	assert.Error(t, err)
}

func TestRange_ContainsAndDays(t *testing.T) {
	r, err := calendar.NewRange(calendar.MustParse("2025-01-01"), calendar.MustParse("2025-01-03"))
	require.NoError(t, err)

	assert.Len(t, r.Days(), 3)
	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Contains(calendar.MustParse("2025-01-03")))
	assert.False(t, r.Contains(calendar.MustParse("2025-01-04")))

	_, err = calendar.NewRange(calendar.MustParse("2025-01-03"), calendar.MustParse("2025-01-01"))
	assert.ErrorIs(t, err, calendar.ErrInvalidRange)
}
