// Package analytics aggregates expense lists into spending summaries.
//
// All functions are pure: they take the expenses already fetched from
// storage plus a clock value and build fresh aggregation state per call, so
// they are safe to call concurrently for different subjects.
package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hisab/internal/core"
)

// TrailingDays is the inclusive lookback of the trailing transaction list.
const TrailingDays = 30

// Summary is the aggregated view of one subject's expenses.
type Summary struct {
	MonthlyTotal decimal.Decimal
	WeeklyTotal  decimal.Decimal

	// HighestSpendingDay is nil when nothing was spent this month.
	HighestSpendingDay    *core.Date
	HighestSpendingAmount decimal.Decimal

	// CategoryTotals covers the current month, sorted descending by amount.
	CategoryTotals []core.CategoryAmount

	// DayOfWeekTotals covers every dated expense, indexed Monday..Sunday.
	DayOfWeekTotals [7]decimal.Decimal

	// Trailing30 holds individual amounts dated within the last 30 days.
	Trailing30 []decimal.Decimal

	ExpenseCount int
	SkippedCount int

	Suggestions []string
}

// Accumulator is the single-pass aggregation state behind Summary.
type Accumulator struct {
	today           core.Date
	defaultCategory string

	monthly, weekly decimal.Decimal
	daily           map[string]decimal.Decimal
	dayOrder        []core.Date
	categories      map[string]decimal.Decimal
	categoryOrder   []string
	weekdays        [7]decimal.Decimal
	trailing        []decimal.Decimal
	counted         int
	skipped         int
}

// NewAccumulator starts an aggregation relative to now. Expenses without a
// category are attributed to defaultCategory.
func NewAccumulator(now time.Time, defaultCategory string) *Accumulator {
	return &Accumulator{
		today:           core.Today(now),
		defaultCategory: defaultCategory,
		daily:           make(map[string]decimal.Decimal),
		categories:      make(map[string]decimal.Decimal),
	}
}

// Add folds one expense into the aggregation. It reports false when the
// expense date cannot be parsed; such expenses are not counted anywhere.
func (a *Accumulator) Add(e core.Expense) bool {
	d, ok := core.ParseDate(e.Date)
	if !ok {
		a.skipped++
		return false
	}
	a.counted++

	if d.SameMonth(a.today) {
		a.monthly = a.monthly.Add(e.Amount)

		key := d.String()
		if _, seen := a.daily[key]; !seen {
			a.dayOrder = append(a.dayOrder, d)
		}
		a.daily[key] = a.daily[key].Add(e.Amount)

		cat := strings.TrimSpace(e.Category)
		if cat == "" {
			cat = a.defaultCategory
		}
		if _, seen := a.categories[cat]; !seen {
			a.categoryOrder = append(a.categoryOrder, cat)
		}
		a.categories[cat] = a.categories[cat].Add(e.Amount)
	}
	if d.SameISOWeek(a.today) {
		a.weekly = a.weekly.Add(e.Amount)
	}
	a.weekdays[d.WeekdayIndex()] = a.weekdays[d.WeekdayIndex()].Add(e.Amount)
	if !d.Before(a.today.AddDays(-TrailingDays).Time) {
		a.trailing = append(a.trailing, e.Amount)
	}
	return true
}

// Summary materializes the aggregation. Suggestions are left empty.
func (a *Accumulator) Summary() Summary {
	s := Summary{
		MonthlyTotal:    a.monthly,
		WeeklyTotal:     a.weekly,
		DayOfWeekTotals: a.weekdays,
		Trailing30:      a.trailing,
		ExpenseCount:    a.counted,
		SkippedCount:    a.skipped,
	}

	// strict > keeps the first-seen day on ties
	for _, d := range a.dayOrder {
		amt := a.daily[d.String()]
		if s.HighestSpendingDay == nil || amt.GreaterThan(s.HighestSpendingAmount) {
			day := d
			s.HighestSpendingDay = &day
			s.HighestSpendingAmount = amt
		}
	}

	s.CategoryTotals = make([]core.CategoryAmount, 0, len(a.categoryOrder))
	for _, name := range a.categoryOrder {
		s.CategoryTotals = append(s.CategoryTotals, core.CategoryAmount{Name: name, Amount: a.categories[name]})
	}
	sort.SliceStable(s.CategoryTotals, func(i, j int) bool {
		return s.CategoryTotals[i].Amount.GreaterThan(s.CategoryTotals[j].Amount)
	})
	return s
}

// BuildSummary aggregates a personal expense list.
func BuildSummary(expenses []core.Expense, now time.Time) Summary {
	acc := NewAccumulator(now, core.UncategorizedPersonal)
	for _, e := range expenses {
		acc.Add(e)
	}
	return acc.Summary()
}

// TopCategory returns the highest category, if any.
func (s Summary) TopCategory() (core.CategoryAmount, bool) {
	if len(s.CategoryTotals) == 0 {
		return core.CategoryAmount{}, false
	}
	return s.CategoryTotals[0], true
}

// TrailingAverage is the arithmetic mean of the individual trailing amounts
// (not of daily totals). Zero when the list is empty.
func (s Summary) TrailingAverage() decimal.Decimal {
	if len(s.Trailing30) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, s.Trailing30...).Div(decimal.NewFromInt(int64(len(s.Trailing30))))
}

// PeakWeekday returns the weekday with the highest cumulative spend. Ties
// resolve to the earliest day from Monday. ok is false when nothing was spent.
func (s Summary) PeakWeekday() (time.Weekday, decimal.Decimal, bool) {
	best := -1
	for i, amt := range s.DayOfWeekTotals {
		if !amt.IsPositive() {
			continue
		}
		if best < 0 || amt.GreaterThan(s.DayOfWeekTotals[best]) {
			best = i
		}
	}
	if best < 0 {
		return time.Monday, decimal.Zero, false
	}
	return core.Weekdays[best], s.DayOfWeekTotals[best], true
}
