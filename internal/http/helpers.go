package http

import (
	"time"

	"github.com/shopspring/decimal"

	"hisab/internal/analytics"
	"hisab/internal/core"
)

// money renders an amount both as a plain two-digit decimal and with the
// currency symbol.
type money struct {
	Amount    string `json:"amount"`
	Formatted string `json:"formatted"`
}

func newMoney(d decimal.Decimal) money {
	return money{Amount: d.StringFixed(2), Formatted: core.FormatMoney(d)}
}

type userView struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	Role      core.UserRole `json:"role"`
	CreatedAt time.Time     `json:"created_at"`
}

func newUserView(u core.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

func newUserViews(us []core.User) []userView {
	out := make([]userView, 0, len(us))
	for _, u := range us {
		out = append(out, newUserView(u))
	}
	return out
}

type expenseView struct {
	ID       int64  `json:"id"`
	OwnerID  int64  `json:"owner_id"`
	GroupID  *int64 `json:"group_id,omitempty"`
	Category string `json:"category"`
	Amount   money  `json:"amount"`
	Date     string `json:"date"`
	Note     string `json:"note,omitempty"`
}

func newExpenseViews(es []core.Expense) []expenseView {
	out := make([]expenseView, 0, len(es))
	for _, e := range es {
		out = append(out, expenseView{
			ID: e.ID, OwnerID: e.OwnerID, GroupID: e.GroupID, Category: e.Category,
			Amount: newMoney(e.Amount), Date: e.Date, Note: e.Note,
		})
	}
	return out
}

type groupView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func newGroupView(g core.Group) groupView {
	return groupView{ID: g.ID, Name: g.Name, CreatedBy: g.CreatedBy, CreatedAt: g.CreatedAt}
}

type memberView struct {
	UserID   int64           `json:"user_id"`
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Role     core.MemberRole `json:"role"`
	JoinedAt time.Time       `json:"joined_at"`
}

type groupInviteView struct {
	ID        int64             `json:"id"`
	GroupID   int64             `json:"group_id"`
	InviterID int64             `json:"inviter_id"`
	InviteeID int64             `json:"invitee_id"`
	Status    core.InviteStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

type parentInviteView struct {
	ID        int64             `json:"id"`
	ParentID  int64             `json:"parent_id"`
	ChildID   int64             `json:"child_id"`
	Status    core.InviteStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

func newParentInviteViews(in []core.ParentInvite) []parentInviteView {
	out := make([]parentInviteView, 0, len(in))
	for _, i := range in {
		out = append(out, parentInviteView{ID: i.ID, ParentID: i.ParentID, ChildID: i.ChildID, Status: i.Status, CreatedAt: i.CreatedAt})
	}
	return out
}

type alertView struct {
	ID         int64          `json:"id"`
	FromUserID int64          `json:"from_user_id"`
	ToUserID   int64          `json:"to_user_id"`
	Type       core.AlertType `json:"type"`
	Message    string         `json:"message"`
	CreatedAt  time.Time      `json:"created_at"`
	Read       bool           `json:"read"`
}

type categoryView struct {
	Name   string `json:"name"`
	Amount money  `json:"amount"`
}

func newCategoryViews(cs []core.CategoryAmount) []categoryView {
	out := make([]categoryView, 0, len(cs))
	for _, c := range cs {
		out = append(out, categoryView{Name: c.Name, Amount: newMoney(c.Amount)})
	}
	return out
}

type weekdayView struct {
	Day    string `json:"day"`
	Amount money  `json:"amount"`
}

type summaryView struct {
	MonthlyTotal          money          `json:"monthly_total"`
	WeeklyTotal           money          `json:"weekly_total"`
	HighestSpendingDay    *string        `json:"highest_spending_day"`
	HighestSpendingAmount money          `json:"highest_spending_amount"`
	Categories            []categoryView `json:"categories"`
	Weekdays              []weekdayView  `json:"weekdays"`
	Trailing30Count       int            `json:"trailing_30_count"`
	Trailing30Average     money          `json:"trailing_30_average"`
	ExpenseCount          int            `json:"expense_count"`
	SkippedCount          int            `json:"skipped_count"`
	Suggestions           []string       `json:"suggestions"`
}

func newSummaryView(s analytics.Summary) summaryView {
	v := summaryView{
		MonthlyTotal:          newMoney(s.MonthlyTotal),
		WeeklyTotal:           newMoney(s.WeeklyTotal),
		HighestSpendingAmount: newMoney(s.HighestSpendingAmount),
		Categories:            newCategoryViews(s.CategoryTotals),
		Weekdays:              make([]weekdayView, 0, len(s.DayOfWeekTotals)),
		Trailing30Count:       len(s.Trailing30),
		Trailing30Average:     newMoney(s.TrailingAverage()),
		ExpenseCount:          s.ExpenseCount,
		SkippedCount:          s.SkippedCount,
		Suggestions:           s.Suggestions,
	}
	if s.HighestSpendingDay != nil {
		day := s.HighestSpendingDay.String()
		v.HighestSpendingDay = &day
	}
	for i, amount := range s.DayOfWeekTotals {
		// index 0 is Monday
		v.Weekdays = append(v.Weekdays, weekdayView{Day: time.Weekday((i + 1) % 7).String(), Amount: newMoney(amount)})
	}
	if v.Suggestions == nil {
		v.Suggestions = []string{}
	}
	return v
}

type memberAmountView struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Amount money  `json:"amount"`
}

type groupSummaryView struct {
	summaryView
	GroupID          int64              `json:"group_id"`
	Members          []memberAmountView `json:"members"`
	MemberCount      int                `json:"member_count"`
	AveragePerMember money              `json:"average_per_member"`
	MemberOfTheMonth *memberAmountView  `json:"member_of_the_month"`
}

func newGroupSummaryView(gs analytics.GroupSummary) groupSummaryView {
	v := groupSummaryView{
		summaryView:      newSummaryView(gs.Summary),
		GroupID:          gs.GroupID,
		Members:          make([]memberAmountView, 0, len(gs.Members)),
		MemberCount:      gs.MemberCount,
		AveragePerMember: newMoney(gs.AveragePerMember),
	}
	for _, m := range gs.Members {
		v.Members = append(v.Members, memberAmountView{UserID: m.UserID, Name: m.Name, Amount: newMoney(m.Amount)})
	}
	if top, ok := gs.MemberOfTheMonth(); ok {
		v.MemberOfTheMonth = &memberAmountView{UserID: top.UserID, Name: top.Name, Amount: newMoney(top.Amount)}
	}
	return v
}

type memberStatsView struct {
	UserID     int64          `json:"user_id"`
	Total      money          `json:"total"`
	Count      int            `json:"count"`
	Categories []categoryView `json:"categories"`
}

type comparisonView struct {
	WindowDays int             `json:"window_days"`
	From       *string         `json:"from"`
	To         string          `json:"to"`
	A          memberStatsView `json:"a"`
	B          memberStatsView `json:"b"`
	Difference money           `json:"difference"`
}

func newComparisonView(c analytics.Comparison) comparisonView {
	side := func(m analytics.MemberStats) memberStatsView {
		return memberStatsView{UserID: m.UserID, Total: newMoney(m.Total), Count: m.Count, Categories: newCategoryViews(m.Categories)}
	}
	v := comparisonView{
		WindowDays: int(c.Window),
		To:         c.To.String(),
		A:          side(c.A),
		B:          side(c.B),
		Difference: newMoney(c.Difference()),
	}
	if c.From != nil {
		from := c.From.String()
		v.From = &from
	}
	return v
}

type budgetView struct {
	Set    bool   `json:"set"`
	Amount *money `json:"amount"`
}

func newBudgetView(amount decimal.Decimal, set bool) budgetView {
	if !set {
		return budgetView{}
	}
	m := newMoney(amount)
	return budgetView{Set: true, Amount: &m}
}
