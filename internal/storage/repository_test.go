package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"hisab/internal/core"
)

type RepositorySuite struct {
	suite.Suite
	repo *Repository
	ctx  context.Context
	tick int64
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	s.tick = 0
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		s.tick++
		return base.Add(time.Duration(s.tick) * time.Second)
	}

	repo, err := NewSQLiteRepository(filepath.Join(s.T().TempDir(), "hisab.db"), WithClock(clock))
	s.Require().NoError(err)
	s.repo = repo
	s.ctx = context.Background()
}

func (s *RepositorySuite) TearDownTest() {
	s.Require().NoError(s.repo.Close())
}

func (s *RepositorySuite) user(name string) int64 {
	id, err := s.repo.CreateUser(s.ctx, core.User{
		Name:         name,
		Email:        name + "@example.com",
		Role:         core.UserRoleIndividual,
		PasswordHash: "x",
	})
	s.Require().NoError(err)
	return id
}

func (s *RepositorySuite) TestBudgetRoundTrip() {
	uid := s.user("asha")

	_, ok, err := s.repo.GetBudget(s.ctx, core.OwnerUser, uid)
	s.Require().NoError(err)
	s.False(ok, "budget must be unset before the first write")

	s.Require().NoError(s.repo.SetBudget(s.ctx, core.OwnerUser, uid, decimal.NewFromFloat(500.0)))
	b, ok, err := s.repo.GetBudget(s.ctx, core.OwnerUser, uid)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.True(b.MonthlyAmount.Equal(decimal.RequireFromString("500.00")), "got %s", b.MonthlyAmount)
	s.Equal(core.CurrencyCode, b.Currency)

	s.Require().NoError(s.repo.SetBudget(s.ctx, core.OwnerUser, uid, decimal.RequireFromString("1234.56")))
	b, _, err = s.repo.GetBudget(s.ctx, core.OwnerUser, uid)
	s.Require().NoError(err)
	s.Equal("1234.56", b.MonthlyAmount.StringFixed(2))

	// same id, different owner kind
	_, ok, err = s.repo.GetBudget(s.ctx, core.OwnerGroup, uid)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RepositorySuite) TestExpenseCRUD() {
	uid := s.user("asha")
	g, err := s.repo.CreateGroup(s.ctx, "Flat", uid, core.RoleAdmin)
	s.Require().NoError(err)

	personal := core.Expense{OwnerID: uid, Category: "Food", Amount: decimal.RequireFromString("12.345"), Date: "2025-03-02", Note: "lunch"}
	pid, err := s.repo.CreateExpense(s.ctx, personal)
	s.Require().NoError(err)

	shared := core.Expense{OwnerID: uid, GroupID: &g.ID, Category: "Rent", Amount: decimal.NewFromInt(900), Date: "2025-03-01"}
	_, err = s.repo.CreateExpense(s.ctx, shared)
	s.Require().NoError(err)

	mine, err := s.repo.ListExpenses(s.ctx, core.PersonalExpenses(uid))
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal("lunch", mine[0].Note)
	s.True(mine[0].Amount.Equal(decimal.RequireFromString("12.345")))
	s.Nil(mine[0].GroupID)

	group, err := s.repo.ListExpenses(s.ctx, core.GroupExpenses(g.ID))
	s.Require().NoError(err)
	s.Require().Len(group, 1)
	s.Require().NotNil(group[0].GroupID)
	s.Equal(g.ID, *group[0].GroupID)

	personal.ID = pid
	personal.Amount = decimal.NewFromInt(15)
	ok, err := s.repo.UpdateExpense(s.ctx, personal)
	s.Require().NoError(err)
	s.True(ok)
	got, err := s.repo.GetExpense(s.ctx, pid)
	s.Require().NoError(err)
	s.True(got.Amount.Equal(decimal.NewFromInt(15)))

	ok, err = s.repo.DeleteExpense(s.ctx, pid)
	s.Require().NoError(err)
	s.True(ok)
	ok, err = s.repo.DeleteExpense(s.ctx, pid)
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.repo.GetExpense(s.ctx, pid)
	s.ErrorIs(err, ErrNotFound)
}

func (s *RepositorySuite) TestCreateGroupSeedsCreator() {
	uid := s.user("asha")
	g, err := s.repo.CreateGroup(s.ctx, "Trip", uid, core.RoleAdmin)
	s.Require().NoError(err)

	m, ok, err := s.repo.GetMembership(s.ctx, g.ID, uid)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(core.RoleAdmin, m.Role)

	groups, err := s.repo.ListUserGroups(s.ctx, uid)
	s.Require().NoError(err)
	s.Require().Len(groups, 1)
	s.Equal("Trip", groups[0].Name)
}

func (s *RepositorySuite) TestAcceptGroupInviteIsIdempotent() {
	admin, invitee := s.user("asha"), s.user("babu")
	g, err := s.repo.CreateGroup(s.ctx, "Flat", admin, core.RoleAdmin)
	s.Require().NoError(err)

	id, err := s.repo.CreateGroupInvite(s.ctx, g.ID, admin, invitee)
	s.Require().NoError(err)
	pending, err := s.repo.HasPendingGroupInvite(s.ctx, g.ID, invitee)
	s.Require().NoError(err)
	s.True(pending)

	ok, err := s.repo.AcceptGroupInvite(s.ctx, id)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.repo.AcceptGroupInvite(s.ctx, id)
	s.Require().NoError(err)
	s.False(ok, "second accept must fail")

	members, err := s.repo.ListMembers(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Len(members, 2)
	m, ok, err := s.repo.GetMembership(s.ctx, g.ID, invitee)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(core.RoleMember, m.Role)

	inv, err := s.repo.GetGroupInvite(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(core.InviteAccepted, inv.Status)
}

func (s *RepositorySuite) TestDeclineThenAcceptFails() {
	admin, invitee := s.user("asha"), s.user("babu")
	g, err := s.repo.CreateGroup(s.ctx, "Flat", admin, core.RoleAdmin)
	s.Require().NoError(err)
	id, err := s.repo.CreateGroupInvite(s.ctx, g.ID, admin, invitee)
	s.Require().NoError(err)

	ok, err := s.repo.DeclineGroupInvite(s.ctx, id)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.repo.AcceptGroupInvite(s.ctx, id)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.repo.DeclineGroupInvite(s.ctx, id)
	s.Require().NoError(err)
	s.False(ok, "declining a resolved invite affects no rows")

	_, member, err := s.repo.GetMembership(s.ctx, g.ID, invitee)
	s.Require().NoError(err)
	s.False(member)
}

func (s *RepositorySuite) TestUnknownInvite() {
	ok, err := s.repo.AcceptGroupInvite(s.ctx, 4242)
	s.Require().NoError(err)
	s.False(ok)
	ok, err = s.repo.AcceptParentInvite(s.ctx, 4242)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RepositorySuite) TestParentInviteLifecycle() {
	parent, child := s.user("ma"), s.user("rafi")

	id, err := s.repo.CreateParentInvite(s.ctx, parent, child)
	s.Require().NoError(err)

	ok, err := s.repo.AcceptParentInvite(s.ctx, id)
	s.Require().NoError(err)
	s.True(ok)
	ok, err = s.repo.AcceptParentInvite(s.ctx, id)
	s.Require().NoError(err)
	s.False(ok)

	linked, err := s.repo.IsLinked(s.ctx, parent, child)
	s.Require().NoError(err)
	s.True(linked)

	// a second invite for an existing link leaves a single link row
	id2, err := s.repo.CreateParentInvite(s.ctx, parent, child)
	s.Require().NoError(err)
	ok, err = s.repo.AcceptParentInvite(s.ctx, id2)
	s.Require().NoError(err)
	s.True(ok)
	links, err := s.repo.ListLinks(s.ctx)
	s.Require().NoError(err)
	s.Len(links, 1)

	children, err := s.repo.ListChildren(s.ctx, parent)
	s.Require().NoError(err)
	s.Require().Len(children, 1)
	s.Equal(child, children[0].ID)

	parents, err := s.repo.ListParents(s.ctx, child)
	s.Require().NoError(err)
	s.Require().Len(parents, 1)
	s.Equal(parent, parents[0].ID)
}

func (s *RepositorySuite) TestInviteListingsNewestFirst() {
	parent, child := s.user("ma"), s.user("rafi")
	first, err := s.repo.CreateParentInvite(s.ctx, parent, child)
	s.Require().NoError(err)
	second, err := s.repo.CreateParentInvite(s.ctx, parent, child)
	s.Require().NoError(err)
	_, err = s.repo.DeclineParentInvite(s.ctx, first)
	s.Require().NoError(err)

	all, err := s.repo.ListParentInvites(s.ctx, child, "")
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(second, all[0].ID)
	s.Equal(first, all[1].ID)

	pending, err := s.repo.ListParentInvites(s.ctx, child, core.InvitePending)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(second, pending[0].ID)

	sent, err := s.repo.ListSentParentInvites(s.ctx, parent)
	s.Require().NoError(err)
	s.Len(sent, 2)
}

func (s *RepositorySuite) TestLeavingAsLastMemberDeletesGroup() {
	uid := s.user("asha")
	g, err := s.repo.CreateGroup(s.ctx, "Solo", uid, core.RoleAdmin)
	s.Require().NoError(err)
	s.Require().NoError(s.repo.SetBudget(s.ctx, core.OwnerGroup, g.ID, decimal.NewFromInt(100)))
	_, err = s.repo.CreateExpense(s.ctx, core.Expense{OwnerID: uid, GroupID: &g.ID, Category: "Food", Amount: decimal.NewFromInt(5), Date: "2025-03-01"})
	s.Require().NoError(err)

	removed, deleted, err := s.repo.RemoveMember(s.ctx, g.ID, uid)
	s.Require().NoError(err)
	s.True(removed)
	s.True(deleted)

	members, err := s.repo.ListMembers(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Empty(members)

	_, err = s.repo.GetGroup(s.ctx, g.ID)
	s.ErrorIs(err, ErrNotFound)

	_, ok, err := s.repo.GetBudget(s.ctx, core.OwnerGroup, g.ID)
	s.Require().NoError(err)
	s.False(ok)

	// group expenses survive with a dangling group id
	orphans, err := s.repo.ListExpenses(s.ctx, core.GroupExpenses(g.ID))
	s.Require().NoError(err)
	s.Len(orphans, 1)
}

func (s *RepositorySuite) TestRemoveMemberKeepsGroupWithOthers() {
	a, b := s.user("asha"), s.user("babu")
	g, err := s.repo.CreateGroup(s.ctx, "Flat", a, core.RoleAdmin)
	s.Require().NoError(err)
	added, err := s.repo.AddMember(s.ctx, g.ID, b, core.RoleMember)
	s.Require().NoError(err)
	s.True(added)
	added, err = s.repo.AddMember(s.ctx, g.ID, b, core.RoleAdmin)
	s.Require().NoError(err)
	s.False(added, "existing membership must not be replaced")

	removed, deleted, err := s.repo.RemoveMember(s.ctx, g.ID, a)
	s.Require().NoError(err)
	s.True(removed)
	s.False(deleted)

	removed, _, err = s.repo.RemoveMember(s.ctx, g.ID, a)
	s.Require().NoError(err)
	s.False(removed)

	_, err = s.repo.GetGroup(s.ctx, g.ID)
	s.NoError(err)
}

func (s *RepositorySuite) TestAlerts() {
	parent, child := s.user("ma"), s.user("rafi")
	first, err := s.repo.CreateAlert(s.ctx, core.Alert{FromUserID: child, ToUserID: parent, Type: core.AlertTypeAlert, Message: "need help"})
	s.Require().NoError(err)
	second, err := s.repo.CreateAlert(s.ctx, core.Alert{FromUserID: child, ToUserID: parent, Type: core.AlertTypeAlert, Message: "over budget"})
	s.Require().NoError(err)

	alerts, err := s.repo.ListAlerts(s.ctx, parent)
	s.Require().NoError(err)
	s.Require().Len(alerts, 2)
	s.Equal(second, alerts[0].ID)
	s.False(alerts[0].Read)

	n, err := s.repo.CountUnread(s.ctx, parent)
	s.Require().NoError(err)
	s.Equal(2, n)

	s.Require().NoError(s.repo.MarkAlertRead(s.ctx, first))
	a, err := s.repo.GetAlert(s.ctx, first)
	s.Require().NoError(err)
	s.True(a.Read)

	n, err = s.repo.CountUnread(s.ctx, parent)
	s.Require().NoError(err)
	s.Equal(1, n)

	ok, err := s.repo.DeleteAlert(s.ctx, second)
	s.Require().NoError(err)
	s.True(ok)
	_, err = s.repo.GetAlert(s.ctx, second)
	s.ErrorIs(err, ErrNotFound)
}

func (s *RepositorySuite) TestCreateAutoAlertOncePerMonth() {
	parent, child := s.user("ma"), s.user("rafi")
	alert := core.Alert{FromUserID: child, ToUserID: parent, Type: core.AlertTypeAlert, Message: "over budget"}

	id, ok, err := s.repo.CreateAutoAlert(s.ctx, alert, "2025-03")
	s.Require().NoError(err)
	s.True(ok)
	s.Positive(id)

	id, ok, err = s.repo.CreateAutoAlert(s.ctx, alert, "2025-03")
	s.Require().NoError(err)
	s.False(ok)
	s.Zero(id)

	_, ok, err = s.repo.CreateAutoAlert(s.ctx, alert, "2025-04")
	s.Require().NoError(err)
	s.True(ok)

	alerts, err := s.repo.ListAlerts(s.ctx, parent)
	s.Require().NoError(err)
	s.Len(alerts, 2)
}

func (s *RepositorySuite) TestCreateAutoAlertFailureLeavesMonthUnclaimed() {
	parent, child := s.user("ma"), s.user("rafi")
	alert := core.Alert{FromUserID: child, ToUserID: parent, Type: core.AlertTypeAlert, Message: "over budget"}

	_, err := s.repo.db.ExecContext(s.ctx, `ALTER TABLE alerts RENAME TO alerts_offline`)
	s.Require().NoError(err)
	_, ok, err := s.repo.CreateAutoAlert(s.ctx, alert, "2025-03")
	s.Error(err)
	s.False(ok)
	var se *StoreError
	s.ErrorAs(err, &se)

	_, err = s.repo.db.ExecContext(s.ctx, `ALTER TABLE alerts_offline RENAME TO alerts`)
	s.Require().NoError(err)
	_, ok, err = s.repo.CreateAutoAlert(s.ctx, alert, "2025-03")
	s.Require().NoError(err)
	s.True(ok, "a failed insert must not consume the month")

	n, err := s.repo.CountUnread(s.ctx, parent)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *RepositorySuite) TestUsers() {
	id, err := s.repo.CreateUser(s.ctx, core.User{Name: "Asha", Email: " Asha@Example.com ", Role: core.UserRoleParent, PasswordHash: "h"})
	s.Require().NoError(err)

	u, err := s.repo.GetUserByEmail(s.ctx, "ASHA@example.com")
	s.Require().NoError(err)
	s.Equal(id, u.ID)
	s.Equal("asha@example.com", u.Email)
	s.Equal(core.UserRoleParent, u.Role)

	_, err = s.repo.CreateUser(s.ctx, core.User{Name: "Dup", Email: "asha@example.com", Role: core.UserRoleChild, PasswordHash: "h"})
	var se *StoreError
	s.ErrorAs(err, &se)

	users, err := s.repo.GetUsers(s.ctx, []int64{id, 999})
	s.Require().NoError(err)
	s.Len(users, 1)

	_, err = s.repo.GetUser(s.ctx, 999)
	s.ErrorIs(err, ErrNotFound)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("mysql")
	require.NoError(t, err)
	require.Equal(t, MySQL, d)
	_, err = ParseDialect("postgres")
	require.Error(t, err)
}
