package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"hisab/internal/analytics"
	"hisab/internal/cache"
	"hisab/internal/core"
	"hisab/internal/events"
	"hisab/internal/log"
	"hisab/internal/suggest"
)

// snapshot is a cached summary together with the calendar day it was
// computed for; month and week buckets are only valid on that day.
type snapshot struct {
	day      string
	personal analytics.Summary
	group    analytics.GroupSummary
}

// AnalyticsService fetches a subject's expenses and budget, aggregates them
// and attaches suggestions. Results are cached until a change event for the
// subject arrives or the day rolls over.
type AnalyticsService struct {
	expenses ExpenseStore
	budgets  BudgetStore
	groups   MembershipStore
	links    ParentStore
	cache    cache.Cache[snapshot]
	logger   *log.Logger
	now      func() time.Time

	// generations counts invalidations per cache key. A summary computed
	// while its key was invalidated is not stored.
	mu          sync.Mutex
	generations map[string]uint64
}

func NewAnalyticsService(expenses ExpenseStore, budgets BudgetStore, groups MembershipStore, links ParentStore, c cache.Cache[snapshot], bus *events.Bus) *AnalyticsService {
	s := &AnalyticsService{
		expenses: expenses,
		budgets:  budgets,
		groups:   groups,
		links:    links,
		cache:       c,
		logger:      log.Component(log.ComponentAnalytics),
		now:         time.Now,
		generations: make(map[string]uint64),
	}
	if bus != nil {
		bus.Subscribe(s.invalidate, events.ExpenseChanged, events.BudgetChanged, events.MembershipChanged)
	}
	return s
}

// NewSummaryCache builds the cache AnalyticsService expects.
func NewSummaryCache(size int, ttl time.Duration) *cache.LRUCache[snapshot] {
	return cache.NewLRUCache[snapshot](size, ttl)
}

// WithClock overrides the clock used for month/week boundaries.
func (s *AnalyticsService) WithClock(now func() time.Time) *AnalyticsService {
	s.now = now
	return s
}

func userKey(id int64) string  { return fmt.Sprintf("user:%d:", id) }
func groupKey(id int64) string { return fmt.Sprintf("group:%d:", id) }

func (s *AnalyticsService) invalidate(ctx context.Context, e events.Event) {
	if s.cache == nil {
		return
	}
	var key string
	switch {
	case e.GroupID > 0:
		key = groupKey(e.GroupID)
	case e.UserID > 0:
		key = userKey(e.UserID)
	default:
		return
	}
	s.mu.Lock()
	s.generations[key]++
	s.cache.DeletePrefix(key)
	s.mu.Unlock()
	s.logger.DebugContext(ctx, "Summary cache invalidated", log.FieldEvent, string(e.Type), log.FieldUserID, e.UserID, log.FieldGroupID, e.GroupID)
}

func (s *AnalyticsService) cached(key string, today string) (snapshot, bool) {
	if s.cache == nil {
		return snapshot{}, false
	}
	snap, ok := s.cache.Get(key)
	if !ok || snap.day != today {
		return snapshot{}, false
	}
	return snap, true
}

// generation returns the invalidation count for key. Capture it before
// reading the stores and hand it to store.
func (s *AnalyticsService) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[key]
}

// store caches snap unless key was invalidated after gen was taken.
func (s *AnalyticsService) store(key string, gen uint64, snap snapshot) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[key] != gen {
		s.logger.Debug("Discarded summary computed during a change", "key", key)
		return
	}
	s.cache.Set(key, snap)
}

// budgetAmount returns the budget, or zero when none is set.
func (s *AnalyticsService) budgetAmount(ctx context.Context, kind core.OwnerKind, ownerID int64) (decimal.Decimal, error) {
	b, ok, err := s.budgets.GetBudget(ctx, kind, ownerID)
	if err != nil || !ok {
		return decimal.Zero, err
	}
	return b.MonthlyAmount, nil
}

// BuildPersonalSummary aggregates userID's personal expenses with
// suggestions.
func (s *AnalyticsService) BuildPersonalSummary(ctx context.Context, userID int64) (analytics.Summary, error) {
	now := s.now()
	today := core.Today(now).String()
	key := userKey(userID)
	if snap, ok := s.cached(key, today); ok {
		return snap.personal, nil
	}
	gen := s.generation(key)

	var (
		expenses []core.Expense
		budget   decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		expenses, err = s.expenses.ListExpenses(gctx, core.PersonalExpenses(userID))
		return err
	})
	g.Go(func() (err error) {
		budget, err = s.budgetAmount(gctx, core.OwnerUser, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return analytics.Summary{}, fmt.Errorf("personal summary: %w", err)
	}

	sum := analytics.BuildSummary(expenses, now)
	sum.Suggestions = suggest.Personal(sum, budget, now)
	if sum.SkippedCount > 0 {
		s.logger.WarnContext(ctx, "Skipped expenses with unparseable dates", log.FieldUserID, userID, "skipped", sum.SkippedCount)
	}

	s.store(key, gen, snapshot{day: today, personal: sum})
	return sum, nil
}

// BuildGroupSummary aggregates a group's expenses, ranks its members and
// attaches group suggestions.
func (s *AnalyticsService) BuildGroupSummary(ctx context.Context, groupID int64) (analytics.GroupSummary, error) {
	now := s.now()
	today := core.Today(now).String()
	key := groupKey(groupID)
	if snap, ok := s.cached(key, today); ok {
		return snap.group, nil
	}
	gen := s.generation(key)

	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return analytics.GroupSummary{}, err
	}

	var (
		expenses []core.Expense
		members  []core.GroupMember
		budget   decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		expenses, err = s.expenses.ListExpenses(gctx, core.GroupExpenses(groupID))
		return err
	})
	g.Go(func() (err error) {
		members, err = s.groups.ListMembers(gctx, groupID)
		return err
	})
	g.Go(func() (err error) {
		budget, err = s.budgetAmount(gctx, core.OwnerGroup, groupID)
		return err
	})
	if err := g.Wait(); err != nil {
		return analytics.GroupSummary{}, fmt.Errorf("group summary: %w", err)
	}

	gs := analytics.BuildGroupSummary(groupID, expenses, toMembers(members), now)
	gs.Suggestions = suggest.Group(gs, budget, now)

	s.store(key, gen, snapshot{day: today, group: gs})
	return gs, nil
}

// CompareMembers contrasts two current members of a group over window.
func (s *AnalyticsService) CompareMembers(ctx context.Context, groupID, userA, userB int64, window analytics.Window) (analytics.Comparison, error) {
	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return analytics.Comparison{}, err
	}
	var foundA, foundB bool
	for _, m := range members {
		foundA = foundA || m.UserID == userA
		foundB = foundB || m.UserID == userB
	}
	if !foundA || !foundB {
		return analytics.Comparison{}, ErrNotMember
	}

	expenses, err := s.expenses.ListExpenses(ctx, core.GroupExpenses(groupID))
	if err != nil {
		return analytics.Comparison{}, err
	}
	return analytics.CompareMembers(expenses, userA, userB, window, s.now()), nil
}

// ChildSummary is the parent's read-only view of a linked child's spending.
func (s *AnalyticsService) ChildSummary(ctx context.Context, parentID, childID int64) (analytics.Summary, error) {
	linked, err := s.links.IsLinked(ctx, parentID, childID)
	if err != nil {
		return analytics.Summary{}, err
	}
	if !linked {
		return analytics.Summary{}, ErrNotLinked
	}
	return s.BuildPersonalSummary(ctx, childID)
}

func toMembers(in []core.GroupMember) []analytics.Member {
	out := make([]analytics.Member, len(in))
	for i, m := range in {
		out[i] = analytics.Member{UserID: m.UserID, Name: m.Name}
	}
	return out
}
