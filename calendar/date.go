// Package calendar holds the day-granularity clock of a simulated business.
package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// DATE - Simulated calendar day (day granularity, UTC)
// =============================================================================

// Date is a simulated business day. The time-of-day part is always midnight UTC.
type Date struct {
	Time time.Time
}

const layout = "2006-01-02"

var ErrInvalidRange = errors.New("invalid range: end before start")

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func FromTime(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Parse reads a YYYY-MM-DD date.
func Parse(s string) (Date, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return FromTime(t), nil
}

func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(o Date) bool        { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool         { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool         { return d.Time.Equal(o.Time) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{Time: d.Time.AddDate(0, n, 0)} }

// Properties
func (d Date) Year() int              { return d.Time.Year() }
func (d Date) Month() time.Month      { return d.Time.Month() }
func (d Date) Day() int               { return d.Time.Day() }
func (d Date) YearDay() int           { return d.Time.YearDay() }
func (d Date) Weekday() time.Weekday  { return d.Time.Weekday() }
func (d Date) IsZero() bool           { return d.Time.IsZero() }
func (d Date) String() string         { return d.Time.Format(layout) }

// MondayIndex returns 0 for Monday through 6 for Sunday.
func (d Date) MondayIndex() int {
	return (int(d.Weekday()) + 6) % 7
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween returns the number of whole days from -> to (negative if to is earlier).
func DaysBetween(from, to Date) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

// Earliest returns the earlier of two dates.
func Earliest(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

// =============================================================================
// RANGE - Inclusive date interval
// =============================================================================

// Range is the closed interval [Start, End].
type Range struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

func NewRange(start, end Date) (Range, error) {
	r := Range{Start: start, End: end}
	return r, r.Validate()
}

func (r Range) Validate() error {
	if r.End.Before(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Contains returns true if d is within [Start, End].
func (r Range) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Days returns every day in the range.
func (r Range) Days() []Date {
	var days []Date
	for cur := r.Start; cur.BeforeOrEqual(r.End); cur = cur.AddDays(1) {
		days = append(days, cur)
	}
	return days
}

func (r Range) Len() int { return DaysBetween(r.Start, r.End) + 1 }

func (r Range) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}
