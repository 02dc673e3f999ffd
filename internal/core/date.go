package core

import (
	"strings"
	"time"
)

// DateLayout is the storage and wire format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date with no time component, normalized to UTC midnight.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the calendar date of now in now's location.
func Today(now time.Time) Date {
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// ParseDate parses a stored YYYY-MM-DD date. Surrounding whitespace is
// ignored; anything else that does not parse reports ok=false.
func ParseDate(s string) (Date, bool) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, false
	}
	return Date{Time: t}, true
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// SameMonth reports calendar year+month equality.
func (d Date) SameMonth(o Date) bool {
	return d.Year() == o.Year() && d.Month() == o.Month()
}

// SameISOWeek reports ISO year+week equality.
func (d Date) SameISOWeek(o Date) bool {
	y1, w1 := d.ISOWeek()
	y2, w2 := o.ISOWeek()
	return y1 == y2 && w1 == w2
}

// AddDays returns the date n days later (n may be negative).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

// WeekdayIndex maps Monday..Sunday to 0..6.
func (d Date) WeekdayIndex() int {
	return (int(d.Weekday()) + 6) % 7
}

// DaysInMonth returns the number of days in d's month.
func (d Date) DaysInMonth() int {
	return time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Weekdays lists day names in WeekdayIndex order.
var Weekdays = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// MonthKey returns the YYYY-MM key used for once-per-month bookkeeping.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}
