// Package suggest turns analytics summaries and budget state into ordered,
// human-readable spending tips.
//
// Tips are emitted in rule order. Every rule is evaluated independently, so
// several tips usually coexist; when fewer than MinTips apply the generic
// FallbackTips are appended.
package suggest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"hisab/internal/analytics"
	"hisab/internal/core"
)

// Rule thresholds.
const (
	PaceOverMargin  = 15 // percentage points ahead of the calendar
	PaceUnderMargin = 10 // percentage points behind the calendar
	DominantShare   = 50 // top category share that triggers a warning
	MinTips         = 3
	ImbalanceRatio  = 3
)

var (
	hundred          = decimal.NewFromInt(100)
	trendUpFactor    = decimal.RequireFromString("1.2")
	trendDownFactor  = decimal.RequireFromString("0.8")
	spikeShare       = decimal.RequireFromString("0.2")
	weeksPerMonth    = decimal.RequireFromString("4.3")
	weeklyPaceFactor = decimal.RequireFromString("1.2")
)

// FallbackTips pad short suggestion lists.
var FallbackTips = []string{
	"Track every expense, even small ones. Small purchases add up quickly.",
	"Try the 50/30/20 rule: 50% for needs, 30% for wants and 20% for savings.",
	"Review your subscriptions each month and cancel the ones you no longer use.",
}

// voice phrases tips for a person or a group.
type voice struct {
	subject    string
	has        string
	possessive string
	spends     string
}

var (
	personal = voice{subject: "you", has: "You have", possessive: "your", spends: "You spend"}
	group    = voice{subject: "the group", has: "The group has", possessive: "the group's", spends: "The group spends"}
)

// Personal builds tips for one user's summary. A budget <= 0 means no budget
// is set.
func Personal(s analytics.Summary, budget decimal.Decimal, now time.Time) []string {
	tips := common(s, budget, now, personal)
	return withFallback(tips)
}

// Group builds tips for a group summary. In addition to the personal rules it
// reports the average spend per member and flags uneven spending when the
// biggest spender spent more than ImbalanceRatio times the smallest nonzero
// spender.
func Group(gs analytics.GroupSummary, budget decimal.Decimal, now time.Time) []string {
	tips := common(gs.Summary, budget, now, group)

	if gs.MemberCount > 0 && gs.MonthlyTotal.IsPositive() {
		tips = append(tips, fmt.Sprintf("Average spend per member this month is %s across %d members.",
			core.FormatMoney(gs.AveragePerMember), gs.MemberCount))
	}

	if spending := gs.SpendingMembers(); len(spending) >= 2 {
		top, low := spending[0], spending[len(spending)-1]
		if top.Amount.GreaterThan(low.Amount.Mul(decimal.NewFromInt(ImbalanceRatio))) {
			tips = append(tips, fmt.Sprintf("Spending is uneven: %s spent %s while %s spent %s this month.",
				displayName(top), core.FormatMoney(top.Amount), displayName(low), core.FormatMoney(low.Amount)))
		}
	}

	return withFallback(tips)
}

func common(s analytics.Summary, budget decimal.Decimal, now time.Time, v voice) []string {
	today := core.Today(now)
	day := decimal.NewFromInt(int64(today.Day()))
	daysInMonth := decimal.NewFromInt(int64(today.DaysInMonth()))
	monthly := s.MonthlyTotal

	var tips []string

	if budget.IsPositive() {
		used := monthly.Div(budget).Mul(hundred)
		elapsed := day.Div(daysInMonth).Mul(hundred)
		switch {
		case used.GreaterThan(elapsed.Add(decimal.NewFromInt(PaceOverMargin))):
			tips = append(tips, fmt.Sprintf("%s used %s of %s budget but only %s of the month has passed. Spending is faster than expected.",
				v.has, pct(used), v.possessive, pct(elapsed)))
		case used.LessThan(elapsed.Sub(decimal.NewFromInt(PaceUnderMargin))):
			tips = append(tips, fmt.Sprintf("Great job! Only %s of %s budget is used with %s of the month gone.",
				pct(used), v.possessive, pct(elapsed)))
		}

		remaining := budget.Sub(monthly)
		if remaining.IsPositive() {
			daysLeft := today.DaysInMonth() - today.Day()
			if daysLeft < 1 {
				daysLeft = 1
			}
			daily := remaining.Div(decimal.NewFromInt(int64(daysLeft)))
			tips = append(tips, fmt.Sprintf("%s left this month. Safe daily spend is %s for the next %d days.",
				core.FormatMoney(remaining), core.FormatMoney(daily), daysLeft))
		} else {
			tips = append(tips, fmt.Sprintf("%s exceeded %s budget by %s.",
				v.has, v.possessive, core.FormatMoney(remaining.Abs())))
		}
	} else if monthly.IsPositive() {
		tips = append(tips, fmt.Sprintf("Set a monthly budget to keep track of %s spending pace.", v.possessive))
	}

	if top, ok := s.TopCategory(); ok && monthly.IsPositive() {
		share := top.Amount.Div(monthly).Mul(hundred)
		tips = append(tips, fmt.Sprintf("%s is the top category at %s of this month's spending (%s).",
			top.Name, pct(share), core.FormatMoney(top.Amount)))
		if share.GreaterThan(decimal.NewFromInt(DominantShare)) {
			tips = append(tips, fmt.Sprintf("More than half of %s spending goes to %s. Consider spreading it out or cutting back.",
				v.possessive, top.Name))
		}
	}

	if monthly.IsPositive() {
		currentAvg := monthly.Div(day)
		if trailingAvg := s.TrailingAverage(); trailingAvg.IsPositive() {
			switch {
			case currentAvg.GreaterThan(trailingAvg.Mul(trendUpFactor)):
				tips = append(tips, fmt.Sprintf("Daily spending (%s) is more than 20%% above the 30-day average (%s). Spending is increasing.",
					core.FormatMoney(currentAvg), core.FormatMoney(trailingAvg)))
			case currentAvg.LessThan(trailingAvg.Mul(trendDownFactor)):
				tips = append(tips, fmt.Sprintf("Daily spending (%s) is more than 20%% below the 30-day average (%s). Nice work.",
					core.FormatMoney(currentAvg), core.FormatMoney(trailingAvg)))
			}
		}
		tips = append(tips, fmt.Sprintf("At this pace %s will spend about %s by the end of the month.",
			v.subject, core.FormatMoney(currentAvg.Mul(daysInMonth))))
	}

	if wd, amt, ok := s.PeakWeekday(); ok {
		tips = append(tips, fmt.Sprintf("%s the most on %ss (%s in total).",
			v.spends, wd, core.FormatMoney(amt)))
	}

	if s.HighestSpendingDay != nil && s.HighestSpendingAmount.GreaterThan(monthly.Mul(spikeShare)) {
		share := s.HighestSpendingAmount.Div(monthly).Mul(hundred)
		tips = append(tips, fmt.Sprintf("The biggest day this month was %s with %s (%s of the month).",
			s.HighestSpendingDay.Format("Jan 2"), core.FormatMoney(s.HighestSpendingAmount), pct(share)))
	}

	if s.WeeklyTotal.Mul(weeksPerMonth).GreaterThan(monthly.Mul(weeklyPaceFactor)) {
		tips = append(tips, fmt.Sprintf("This week's spending (%s) is running well ahead of the monthly pace. Consider slowing down.",
			core.FormatMoney(s.WeeklyTotal)))
	}

	return tips
}

func withFallback(tips []string) []string {
	if len(tips) < MinTips {
		tips = append(tips, FallbackTips...)
	}
	return tips
}

func pct(d decimal.Decimal) string {
	return d.StringFixed(1) + "%"
}

func displayName(m core.MemberAmount) string {
	if m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("member #%d", m.UserID)
}
