package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"hisab/internal/analytics"
	"hisab/internal/core"
	"hisab/internal/events"
	"hisab/internal/storage"
)

var fixedNow = time.Date(2025, 3, 19, 18, 30, 0, 0, time.UTC)

type ServicesSuite struct {
	suite.Suite
	ctx  context.Context
	repo *storage.Repository
	bus  *events.Bus
	seen []events.Event

	users     *UserService
	groups    *MembershipService
	parents   *ParentService
	expenses  *ExpenseService
	budgets   *BudgetService
	analytics *AnalyticsService
}

func TestServicesSuite(t *testing.T) {
	suite.Run(t, new(ServicesSuite))
}

func (s *ServicesSuite) SetupTest() {
	repo, err := storage.NewSQLiteRepository(filepath.Join(s.T().TempDir(), "hisab.db"))
	s.Require().NoError(err)
	s.repo = repo
	s.ctx = context.Background()
	s.seen = nil

	s.bus = events.NewBus()
	s.bus.Subscribe(func(_ context.Context, e events.Event) { s.seen = append(s.seen, e) })

	clock := func() time.Time { return fixedNow }
	s.users = NewUserService(repo)
	s.groups = NewMembershipService(repo, repo, repo, s.bus)
	s.parents = NewParentService(repo, repo, repo, repo, s.bus)
	s.expenses = NewExpenseService(repo, repo, s.bus).WithClock(clock)
	s.budgets = NewBudgetService(repo, repo, s.bus)
	s.analytics = NewAnalyticsService(repo, repo, repo, repo, NewSummaryCache(16, time.Hour), s.bus).WithClock(clock)
}

func (s *ServicesSuite) TearDownTest() {
	s.Require().NoError(s.repo.Close())
}

func (s *ServicesSuite) register(name string, role core.UserRole) int64 {
	u, err := s.users.Register(s.ctx, name, name+"@example.com", "correct horse", role)
	s.Require().NoError(err)
	return u.ID
}

func (s *ServicesSuite) expense(owner int64, group *int64, amount, date string) int64 {
	id, err := s.expenses.CreateExpense(s.ctx, owner, core.Expense{
		GroupID:  group,
		Category: "Food",
		Amount:   decimal.RequireFromString(amount),
		Date:     date,
	})
	s.Require().NoError(err)
	return id
}

func (s *ServicesSuite) eventTypes() []events.Type {
	out := make([]events.Type, len(s.seen))
	for i, e := range s.seen {
		out[i] = e.Type
	}
	return out
}

func (s *ServicesSuite) TestRegisterAndLogin() {
	id := s.register("asha", core.UserRoleIndividual)

	u, err := s.users.Login(s.ctx, "ASHA@example.com", "correct horse")
	s.Require().NoError(err)
	s.Equal(id, u.ID)

	_, err = s.users.Login(s.ctx, "asha@example.com", "wrong password")
	s.ErrorIs(err, ErrInvalidCredentials)
	_, err = s.users.Login(s.ctx, "nobody@example.com", "correct horse")
	s.ErrorIs(err, ErrInvalidCredentials)

	_, err = s.users.Register(s.ctx, "other", "asha@example.com", "correct horse", core.UserRoleIndividual)
	s.ErrorIs(err, ErrEmailTaken)
	_, err = s.users.Register(s.ctx, " ", "x@example.com", "correct horse", core.UserRoleIndividual)
	s.ErrorIs(err, ErrEmptyName)
	_, err = s.users.Register(s.ctx, "x", "not-an-email", "correct horse", core.UserRoleIndividual)
	s.Error(err)
}

func (s *ServicesSuite) TestCreatorIsAdmin() {
	owner := s.register("owner", core.UserRoleIndividual)
	g, err := s.groups.CreateGroup(s.ctx, owner, "Flat 4B")
	s.Require().NoError(err)

	admin, err := s.groups.IsAdmin(s.ctx, g.ID, owner)
	s.Require().NoError(err)
	s.True(admin)

	_, err = s.groups.CreateGroup(s.ctx, owner, "  ")
	s.ErrorIs(err, ErrEmptyName)
}

func (s *ServicesSuite) TestGroupInviteFlow() {
	owner := s.register("owner", core.UserRoleIndividual)
	friend := s.register("friend", core.UserRoleIndividual)
	stranger := s.register("stranger", core.UserRoleIndividual)
	g, err := s.groups.CreateGroup(s.ctx, owner, "Trip")
	s.Require().NoError(err)

	_, err = s.groups.SendGroupInvite(s.ctx, friend, g.ID, stranger)
	s.ErrorIs(err, ErrNotAdmin)
	_, err = s.groups.SendGroupInvite(s.ctx, owner, g.ID, owner)
	s.ErrorIs(err, ErrSelfInvite)

	inv, err := s.groups.SendGroupInviteByEmail(s.ctx, owner, g.ID, "friend@example.com")
	s.Require().NoError(err)
	_, err = s.groups.SendGroupInvite(s.ctx, owner, g.ID, friend)
	s.ErrorIs(err, ErrAlreadyPending)

	_, err = s.groups.AcceptGroupInvite(s.ctx, stranger, inv)
	s.ErrorIs(err, ErrForbidden)

	ok, err := s.groups.AcceptGroupInvite(s.ctx, friend, inv)
	s.Require().NoError(err)
	s.True(ok)
	ok, err = s.groups.AcceptGroupInvite(s.ctx, friend, inv)
	s.Require().NoError(err)
	s.False(ok, "second accept must be a no-op")

	member, err := s.groups.IsMember(s.ctx, g.ID, friend)
	s.Require().NoError(err)
	s.True(member)
	admin, err := s.groups.IsAdmin(s.ctx, g.ID, friend)
	s.Require().NoError(err)
	s.False(admin)

	_, err = s.groups.SendGroupInvite(s.ctx, owner, g.ID, friend)
	s.ErrorIs(err, ErrAlreadyMember)

	ok, err = s.groups.AcceptGroupInvite(s.ctx, friend, 9999)
	s.Require().NoError(err)
	s.False(ok)

	s.Contains(s.eventTypes(), events.InviteSent)
	s.Contains(s.eventTypes(), events.InviteResolved)
}

func (s *ServicesSuite) TestDeclinedInviteCannotBeAccepted() {
	owner := s.register("owner", core.UserRoleIndividual)
	friend := s.register("friend", core.UserRoleIndividual)
	g, err := s.groups.CreateGroup(s.ctx, owner, "Trip")
	s.Require().NoError(err)

	inv, err := s.groups.SendGroupInvite(s.ctx, owner, g.ID, friend)
	s.Require().NoError(err)
	ok, err := s.groups.DeclineGroupInvite(s.ctx, friend, inv)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.groups.AcceptGroupInvite(s.ctx, friend, inv)
	s.Require().NoError(err)
	s.False(ok)

	member, err := s.groups.IsMember(s.ctx, g.ID, friend)
	s.Require().NoError(err)
	s.False(member)

	// a fresh invite is allowed once the old one is resolved
	_, err = s.groups.SendGroupInvite(s.ctx, owner, g.ID, friend)
	s.NoError(err)
}

func (s *ServicesSuite) TestRemoveAndLeave() {
	owner := s.register("owner", core.UserRoleIndividual)
	a := s.register("a", core.UserRoleIndividual)
	b := s.register("b", core.UserRoleIndividual)
	g, err := s.groups.CreateGroup(s.ctx, owner, "Club")
	s.Require().NoError(err)
	s.Require().NoError(s.groups.AddMember(s.ctx, owner, g.ID, a))
	s.Require().NoError(s.groups.AddMember(s.ctx, owner, g.ID, b))
	s.ErrorIs(s.groups.AddMember(s.ctx, owner, g.ID, a), ErrAlreadyMember)
	s.ErrorIs(s.groups.AddMember(s.ctx, a, g.ID, owner), ErrNotAdmin)

	_, err = s.groups.RemoveMember(s.ctx, a, g.ID, b)
	s.ErrorIs(err, ErrNotAdmin)

	deleted, err := s.groups.RemoveMember(s.ctx, owner, g.ID, b)
	s.Require().NoError(err)
	s.False(deleted)

	gid := g.ID
	s.expense(a, &gid, "40", "2025-03-18")

	deleted, err = s.groups.LeaveGroup(s.ctx, g.ID, a)
	s.Require().NoError(err)
	s.False(deleted)
	deleted, err = s.groups.LeaveGroup(s.ctx, g.ID, owner)
	s.Require().NoError(err)
	s.True(deleted)

	_, err = s.repo.GetGroup(s.ctx, g.ID)
	s.ErrorIs(err, ErrNotFound)

	kept, err := s.repo.ListExpenses(s.ctx, core.GroupExpenses(g.ID))
	s.Require().NoError(err)
	s.Len(kept, 1, "group expenses outlive the group")

	_, err = s.groups.LeaveGroup(s.ctx, g.ID, owner)
	s.ErrorIs(err, ErrNotMember)
}

func (s *ServicesSuite) TestExpenseAuthorization() {
	owner := s.register("owner", core.UserRoleIndividual)
	other := s.register("other", core.UserRoleIndividual)

	id := s.expense(owner, nil, "25.50", "2025-03-18")
	s.ErrorIs(s.expenses.DeleteExpense(s.ctx, other, id), ErrForbidden)
	s.ErrorIs(s.expenses.UpdateExpense(s.ctx, other, core.Expense{ID: id, Category: "X", Amount: decimal.NewFromInt(1), Date: "2025-03-18"}), ErrForbidden)

	g, err := s.groups.CreateGroup(s.ctx, owner, "Home")
	s.Require().NoError(err)
	gid := g.ID
	_, err = s.expenses.CreateExpense(s.ctx, other, core.Expense{GroupID: &gid, Category: "Food", Amount: decimal.NewFromInt(5), Date: "2025-03-18"})
	s.ErrorIs(err, ErrNotMember)
	_, err = s.expenses.ListExpenses(s.ctx, other, &gid)
	s.ErrorIs(err, ErrNotMember)

	_, err = s.expenses.CreateExpense(s.ctx, owner, core.Expense{Category: "Food", Amount: decimal.NewFromInt(5), Date: "2025-03-20"})
	s.ErrorIs(err, core.ErrFutureDate)

	s.Require().NoError(s.expenses.UpdateExpense(s.ctx, owner, core.Expense{ID: id, Category: "Books", Amount: decimal.RequireFromString("30"), Date: "2025-03-17", Note: "used"}))
	got, err := s.repo.GetExpense(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("Books", got.Category)
	s.Equal(owner, got.OwnerID)
	s.Nil(got.GroupID)

	s.Require().NoError(s.expenses.DeleteExpense(s.ctx, owner, id))
	s.ErrorIs(s.expenses.DeleteExpense(s.ctx, owner, id), ErrNotFound)
}

func (s *ServicesSuite) TestBudgetGating() {
	owner := s.register("owner", core.UserRoleIndividual)
	member := s.register("member", core.UserRoleIndividual)
	outsider := s.register("outsider", core.UserRoleIndividual)
	g, err := s.groups.CreateGroup(s.ctx, owner, "Home")
	s.Require().NoError(err)
	s.Require().NoError(s.groups.AddMember(s.ctx, owner, g.ID, member))

	s.ErrorIs(s.budgets.SetUserBudget(s.ctx, owner, decimal.NewFromInt(-1)), core.ErrInvalidBudget)
	s.Require().NoError(s.budgets.SetUserBudget(s.ctx, owner, decimal.NewFromInt(2000)))
	amount, ok, err := s.budgets.GetUserBudget(s.ctx, owner)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("2000.00", amount.StringFixed(2))

	s.ErrorIs(s.budgets.SetGroupBudget(s.ctx, member, g.ID, decimal.NewFromInt(100)), ErrNotAdmin)
	s.Require().NoError(s.budgets.SetGroupBudget(s.ctx, owner, g.ID, decimal.NewFromInt(900)))

	amount, ok, err = s.budgets.GetGroupBudget(s.ctx, member, g.ID)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("900.00", amount.StringFixed(2))

	_, _, err = s.budgets.GetGroupBudget(s.ctx, outsider, g.ID)
	s.ErrorIs(err, ErrNotMember)
}

func (s *ServicesSuite) TestParentLinkAndMessages() {
	parent := s.register("parent", core.UserRoleParent)
	child := s.register("child", core.UserRoleChild)
	adult := s.register("adult", core.UserRoleIndividual)

	_, err := s.parents.SendParentInvite(s.ctx, adult, child)
	s.ErrorIs(err, ErrWrongRole)
	_, err = s.parents.SendParentInvite(s.ctx, parent, adult)
	s.ErrorIs(err, ErrWrongRole)

	_, err = s.parents.SendMessage(s.ctx, parent, child, "save more")
	s.ErrorIs(err, ErrNotLinked)

	inv, err := s.parents.SendParentInviteByEmail(s.ctx, parent, "child@example.com")
	s.Require().NoError(err)
	_, err = s.parents.SendParentInvite(s.ctx, parent, child)
	s.ErrorIs(err, ErrAlreadyPending)

	_, err = s.parents.AcceptParentInvite(s.ctx, parent, inv)
	s.ErrorIs(err, ErrForbidden)
	ok, err := s.parents.AcceptParentInvite(s.ctx, child, inv)
	s.Require().NoError(err)
	s.True(ok)

	_, err = s.parents.SendParentInvite(s.ctx, parent, child)
	s.ErrorIs(err, ErrAlreadyLinked)

	children, err := s.parents.ListChildren(s.ctx, parent)
	s.Require().NoError(err)
	s.Require().Len(children, 1)
	s.Equal(child, children[0].ID)

	id, err := s.parents.SendMessage(s.ctx, parent, child, "  save more  ")
	s.Require().NoError(err)
	alerts, err := s.parents.ListAlerts(s.ctx, child)
	s.Require().NoError(err)
	s.Require().Len(alerts, 1)
	s.Equal(core.AlertTypeSuggestion, alerts[0].Type)
	s.Equal("save more", alerts[0].Message)

	_, err = s.parents.SendMessage(s.ctx, child, parent, "")
	s.ErrorIs(err, core.ErrEmptyMessage)

	s.ErrorIs(s.parents.MarkRead(s.ctx, parent, id), ErrForbidden)
	s.Require().NoError(s.parents.MarkRead(s.ctx, child, id))
	n, err := s.parents.UnreadCount(s.ctx, child)
	s.Require().NoError(err)
	s.Zero(n)

	s.ErrorIs(s.parents.DeleteAlert(s.ctx, parent, id), ErrForbidden)
	s.NoError(s.parents.DeleteAlert(s.ctx, child, id))
}

func (s *ServicesSuite) TestSendAutoAlertOncePerMonth() {
	parent := s.register("parent", core.UserRoleParent)
	child := s.register("child", core.UserRoleChild)
	inv, err := s.parents.SendParentInvite(s.ctx, parent, child)
	s.Require().NoError(err)
	_, err = s.parents.AcceptParentInvite(s.ctx, child, inv)
	s.Require().NoError(err)

	sent, err := s.parents.SendAutoAlert(s.ctx, child, parent, "2025-03", "over budget")
	s.Require().NoError(err)
	s.True(sent)
	sent, err = s.parents.SendAutoAlert(s.ctx, child, parent, "2025-03", "over budget")
	s.Require().NoError(err)
	s.False(sent)
	sent, err = s.parents.SendAutoAlert(s.ctx, child, parent, "2025-04", "over budget")
	s.Require().NoError(err)
	s.True(sent)

	n, err := s.parents.UnreadCount(s.ctx, parent)
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *ServicesSuite) TestPersonalSummaryIsCachedUntilChange() {
	uid := s.register("asha", core.UserRoleIndividual)
	s.expense(uid, nil, "100", "2025-03-18")

	first, err := s.analytics.BuildPersonalSummary(s.ctx, uid)
	s.Require().NoError(err)
	s.Equal("100.00", first.MonthlyTotal.StringFixed(2))
	s.GreaterOrEqual(len(first.Suggestions), 3)

	// a write behind the service's back is not visible while cached
	_, err = s.repo.CreateExpense(s.ctx, core.Expense{OwnerID: uid, Category: "Food", Amount: decimal.NewFromInt(50), Date: "2025-03-18"})
	s.Require().NoError(err)
	cached, err := s.analytics.BuildPersonalSummary(s.ctx, uid)
	s.Require().NoError(err)
	s.Equal("100.00", cached.MonthlyTotal.StringFixed(2))

	// a service write publishes ExpenseChanged and invalidates
	s.expense(uid, nil, "25", "2025-03-19")
	fresh, err := s.analytics.BuildPersonalSummary(s.ctx, uid)
	s.Require().NoError(err)
	s.Equal("175.00", fresh.MonthlyTotal.StringFixed(2))

	s.Require().NoError(s.budgets.SetUserBudget(s.ctx, uid, decimal.NewFromInt(150)))
	withBudget, err := s.analytics.BuildPersonalSummary(s.ctx, uid)
	s.Require().NoError(err)
	s.Contains(withBudget.Suggestions, "You have exceeded your budget by ৳25.00.")
}

// failingAlerts fails the first automatic alert insert.
type failingAlerts struct {
	AlertStore
	failed bool
}

func (f *failingAlerts) CreateAutoAlert(ctx context.Context, a core.Alert, month string) (int64, bool, error) {
	if !f.failed {
		f.failed = true
		return 0, false, errors.New("disk full")
	}
	return f.AlertStore.CreateAutoAlert(ctx, a, month)
}

func (s *ServicesSuite) TestSendAutoAlertRetriesAfterFailure() {
	parent := s.register("parent", core.UserRoleParent)
	child := s.register("child", core.UserRoleChild)
	inv, err := s.parents.SendParentInvite(s.ctx, parent, child)
	s.Require().NoError(err)
	_, err = s.parents.AcceptParentInvite(s.ctx, child, inv)
	s.Require().NoError(err)

	parents := NewParentService(s.repo, s.repo, &failingAlerts{AlertStore: s.repo}, s.repo, s.bus)
	sent, err := parents.SendAutoAlert(s.ctx, child, parent, "2025-03", "over budget")
	s.Error(err)
	s.False(sent)

	sent, err = parents.SendAutoAlert(s.ctx, child, parent, "2025-03", "over budget")
	s.Require().NoError(err)
	s.True(sent)

	alerts, err := s.parents.ListAlerts(s.ctx, parent)
	s.Require().NoError(err)
	s.Require().Len(alerts, 1)
	s.Equal(core.AlertTypeAlert, alerts[0].Type)
}

// writeDuringList adds an expense right after the first list query
// returns, before the caller has aggregated the result.
type writeDuringList struct {
	ExpenseStore
	once  sync.Once
	write func()
}

func (w *writeDuringList) ListExpenses(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, error) {
	out, err := w.ExpenseStore.ListExpenses(ctx, f)
	w.once.Do(w.write)
	return out, err
}

func (s *ServicesSuite) TestSummaryComputedDuringChangeIsNotCached() {
	uid := s.register("asha", core.UserRoleIndividual)
	var writeErr error
	store := &writeDuringList{ExpenseStore: s.repo, write: func() {
		_, writeErr = s.expenses.CreateExpense(s.ctx, uid, core.Expense{
			Category: "Food", Amount: decimal.NewFromInt(100), Date: "2025-03-18",
		})
	}}
	svc := NewAnalyticsService(store, s.repo, s.repo, s.repo, NewSummaryCache(16, time.Hour), s.bus).
		WithClock(func() time.Time { return fixedNow })

	first, err := svc.BuildPersonalSummary(s.ctx, uid)
	s.Require().NoError(err)
	s.Require().NoError(writeErr)
	s.True(first.MonthlyTotal.IsZero())

	second, err := svc.BuildPersonalSummary(s.ctx, uid)
	s.Require().NoError(err)
	s.Equal("100.00", second.MonthlyTotal.StringFixed(2))
}

func (s *ServicesSuite) TestGroupSummaryAndComparison() {
	owner := s.register("owner", core.UserRoleIndividual)
	friend := s.register("friend", core.UserRoleIndividual)
	outsider := s.register("outsider", core.UserRoleIndividual)
	g, err := s.groups.CreateGroup(s.ctx, owner, "Home")
	s.Require().NoError(err)
	s.Require().NoError(s.groups.AddMember(s.ctx, owner, g.ID, friend))
	gid := g.ID

	s.expense(owner, &gid, "300", "2025-03-18")
	s.expense(friend, &gid, "50", "2025-03-10")

	gs, err := s.analytics.BuildGroupSummary(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal("350.00", gs.MonthlyTotal.StringFixed(2))
	s.Equal(2, gs.MemberCount)
	s.Require().Len(gs.Members, 2)
	s.Equal(owner, gs.Members[0].UserID)

	cmp, err := s.analytics.CompareMembers(s.ctx, g.ID, owner, friend, analytics.WindowWeek)
	s.Require().NoError(err)
	s.Equal("300.00", cmp.A.Total.StringFixed(2))
	s.Equal("0.00", cmp.B.Total.StringFixed(2))

	_, err = s.analytics.CompareMembers(s.ctx, g.ID, owner, outsider, analytics.WindowMonth)
	s.ErrorIs(err, ErrNotMember)

	_, err = s.analytics.BuildGroupSummary(s.ctx, 9999)
	s.ErrorIs(err, ErrNotFound)
}

func (s *ServicesSuite) TestChildSummaryRequiresLink() {
	parent := s.register("parent", core.UserRoleParent)
	child := s.register("child", core.UserRoleChild)
	s.expense(child, nil, "12", "2025-03-18")

	_, err := s.analytics.ChildSummary(s.ctx, parent, child)
	s.ErrorIs(err, ErrNotLinked)

	inv, err := s.parents.SendParentInvite(s.ctx, parent, child)
	s.Require().NoError(err)
	_, err = s.parents.AcceptParentInvite(s.ctx, child, inv)
	s.Require().NoError(err)

	sum, err := s.analytics.ChildSummary(s.ctx, parent, child)
	s.Require().NoError(err)
	s.Equal("12.00", sum.MonthlyTotal.StringFixed(2))
}

func TestAsync(t *testing.T) {
	t.Run("delivers value", func(t *testing.T) {
		r := <-Async(context.Background(), func(context.Context) (int, error) { return 42, nil })
		require.NoError(t, r.Err)
		assert.Equal(t, 42, r.Value)
	})

	t.Run("delivers error", func(t *testing.T) {
		boom := errors.New("boom")
		r := <-Async(context.Background(), func(context.Context) (int, error) { return 0, boom })
		assert.ErrorIs(t, r.Err, boom)
	})

	t.Run("cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		release := make(chan struct{})
		defer close(release)

		ch := Async(ctx, func(context.Context) (int, error) {
			<-release
			return 1, nil
		})
		cancel()

		select {
		case r := <-ch:
			assert.ErrorIs(t, r.Err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("cancelled call did not complete")
		}
	})
}
