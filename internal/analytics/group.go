package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hisab/internal/core"
)

// Member identifies a group member for ranking.
type Member struct {
	UserID int64
	Name   string
}

// GroupSummary is the group-aggregate Summary plus per-member partitions.
type GroupSummary struct {
	Summary

	GroupID int64
	// Members is the monthly leaderboard, highest spender first. Members
	// with no spending this month are included with a zero amount.
	Members          []core.MemberAmount
	MemberCount      int
	AveragePerMember decimal.Decimal
}

// BuildGroupSummary aggregates a group's expenses and ranks members by their
// current-month spending. Expenses from users who are no longer members
// still count toward the group totals but are not ranked.
func BuildGroupSummary(groupID int64, expenses []core.Expense, members []Member, now time.Time) GroupSummary {
	acc := NewAccumulator(now, core.UncategorizedGroup)
	today := core.Today(now)

	perMember := make(map[int64]decimal.Decimal, len(members))
	for _, e := range expenses {
		if !acc.Add(e) {
			continue
		}
		d, _ := core.ParseDate(e.Date)
		if d.SameMonth(today) {
			perMember[e.OwnerID] = perMember[e.OwnerID].Add(e.Amount)
		}
	}

	gs := GroupSummary{
		Summary:     acc.Summary(),
		GroupID:     groupID,
		MemberCount: len(members),
		Members:     make([]core.MemberAmount, 0, len(members)),
	}
	for _, m := range members {
		gs.Members = append(gs.Members, core.MemberAmount{UserID: m.UserID, Name: m.Name, Amount: perMember[m.UserID]})
	}
	sort.SliceStable(gs.Members, func(i, j int) bool {
		return gs.Members[i].Amount.GreaterThan(gs.Members[j].Amount)
	})
	if len(members) > 0 {
		gs.AveragePerMember = gs.MonthlyTotal.Div(decimal.NewFromInt(int64(len(members))))
	}
	return gs
}

// MemberOfTheMonth returns the top spender, if anyone spent this month.
func (gs GroupSummary) MemberOfTheMonth() (core.MemberAmount, bool) {
	if len(gs.Members) == 0 || !gs.Members[0].Amount.IsPositive() {
		return core.MemberAmount{}, false
	}
	return gs.Members[0], true
}

// SpendingMembers returns the members with a nonzero monthly total.
func (gs GroupSummary) SpendingMembers() []core.MemberAmount {
	out := make([]core.MemberAmount, 0, len(gs.Members))
	for _, m := range gs.Members {
		if m.Amount.IsPositive() {
			out = append(out, m)
		}
	}
	return out
}

// Window is a member-comparison lookback in days. WindowAll disables the
// lower bound.
type Window int

const (
	WindowWeek    Window = 7
	WindowMonth   Window = 30
	WindowQuarter Window = 90
	WindowYear    Window = 365
	WindowAll     Window = 0
)

// ParseWindow maps a day count to a supported window. Unsupported values
// report ok=false.
func ParseWindow(days int) (Window, bool) {
	switch w := Window(days); w {
	case WindowWeek, WindowMonth, WindowQuarter, WindowYear, WindowAll:
		return w, true
	}
	return WindowAll, false
}

// MemberStats is one side of a member comparison.
type MemberStats struct {
	UserID     int64
	Total      decimal.Decimal
	Count      int
	Categories []core.CategoryAmount
}

// Comparison contrasts two members over the same window.
type Comparison struct {
	Window Window
	From   *core.Date // nil for WindowAll
	To     core.Date
	A, B   MemberStats
}

// Difference is A.Total - B.Total.
func (c Comparison) Difference() decimal.Decimal {
	return c.A.Total.Sub(c.B.Total)
}

// CompareMembers filters expenses by each user id inside the window ending
// today (inclusive on both ends) and aggregates each side.
func CompareMembers(expenses []core.Expense, userA, userB int64, window Window, now time.Time) Comparison {
	today := core.Today(now)
	c := Comparison{Window: window, To: today}
	if window != WindowAll {
		from := today.AddDays(-int(window))
		c.From = &from
	}
	c.A = memberStats(expenses, userA, c.From, today)
	c.B = memberStats(expenses, userB, c.From, today)
	return c
}

func memberStats(expenses []core.Expense, userID int64, from *core.Date, to core.Date) MemberStats {
	st := MemberStats{UserID: userID}
	totals := make(map[string]decimal.Decimal)
	var order []string
	for _, e := range expenses {
		if e.OwnerID != userID {
			continue
		}
		d, ok := core.ParseDate(e.Date)
		if !ok || d.After(to.Time) || (from != nil && d.Before(from.Time)) {
			continue
		}
		st.Total = st.Total.Add(e.Amount)
		st.Count++
		cat := strings.TrimSpace(e.Category)
		if cat == "" {
			cat = core.UncategorizedGroup
		}
		if _, seen := totals[cat]; !seen {
			order = append(order, cat)
		}
		totals[cat] = totals[cat].Add(e.Amount)
	}
	for _, name := range order {
		st.Categories = append(st.Categories, core.CategoryAmount{Name: name, Amount: totals[name]})
	}
	sort.SliceStable(st.Categories, func(i, j int) bool {
		return st.Categories[i].Amount.GreaterThan(st.Categories[j].Amount)
	})
	return st
}
