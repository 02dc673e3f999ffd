package worker

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hisab/internal/amqp"
	"hisab/internal/core"
	"hisab/internal/events"
	"hisab/internal/services"
	"hisab/internal/storage"
)

var march19 = time.Date(2025, 3, 19, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx     context.Context
	repo    *storage.Repository
	parents *services.ParentService
	watcher *BudgetWatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "hisab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	parents := services.NewParentService(repo, repo, repo, repo, nil)
	return &fixture{
		ctx:     context.Background(),
		repo:    repo,
		parents: parents,
		watcher: NewBudgetWatcher(repo, parents, "@every 1h").WithClock(func() time.Time { return march19 }),
	}
}

func (f *fixture) user(t *testing.T, name string, role core.UserRole) int64 {
	t.Helper()
	id, err := f.repo.CreateUser(f.ctx, core.User{Name: name, Email: name + "@example.com", Role: role, PasswordHash: "x"})
	require.NoError(t, err)
	return id
}

func (f *fixture) link(t *testing.T, parent, child int64) {
	t.Helper()
	inv, err := f.repo.CreateParentInvite(f.ctx, parent, child)
	require.NoError(t, err)
	ok, err := f.repo.AcceptParentInvite(f.ctx, inv)
	require.NoError(t, err)
	require.True(t, ok)
}

func (f *fixture) spend(t *testing.T, owner int64, amount, date string) {
	t.Helper()
	_, err := f.repo.CreateExpense(f.ctx, core.Expense{
		OwnerID: owner, Category: "Snacks", Amount: decimal.RequireFromString(amount), Date: date,
	})
	require.NoError(t, err)
}

func TestCheckChildAlertsOncePerMonth(t *testing.T) {
	f := newFixture(t)
	mum := f.user(t, "mum", core.UserRoleParent)
	dad := f.user(t, "dad", core.UserRoleParent)
	kid := f.user(t, "kid", core.UserRoleChild)
	f.link(t, mum, kid)
	f.link(t, dad, kid)

	require.NoError(t, f.repo.SetBudget(f.ctx, core.OwnerUser, kid, decimal.NewFromInt(100)))
	f.spend(t, kid, "80", "2025-03-02")
	f.spend(t, kid, "70", "2025-03-18")
	f.spend(t, kid, "500", "2025-02-10") // last month

	n, err := f.watcher.CheckChild(f.ctx, kid)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one alert per linked parent")

	n, err = f.watcher.CheckChild(f.ctx, kid)
	require.NoError(t, err)
	assert.Zero(t, n, "second check in the same month is a no-op")

	alerts, err := f.parents.ListAlerts(f.ctx, mum)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, core.AlertTypeAlert, alerts[0].Type)
	assert.Equal(t, kid, alerts[0].FromUserID)
	assert.Equal(t, "kid has spent ৳150.00 this month, ৳50.00 over their ৳100.00 budget.", alerts[0].Message)
}

func TestCheckChildSkips(t *testing.T) {
	f := newFixture(t)
	mum := f.user(t, "mum", core.UserRoleParent)
	kid := f.user(t, "kid", core.UserRoleChild)
	adult := f.user(t, "adult", core.UserRoleIndividual)
	f.link(t, mum, kid)

	t.Run("no budget", func(t *testing.T) {
		f.spend(t, kid, "999", "2025-03-18")
		n, err := f.watcher.CheckChild(f.ctx, kid)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("within budget", func(t *testing.T) {
		require.NoError(t, f.repo.SetBudget(f.ctx, core.OwnerUser, kid, decimal.NewFromInt(999)))
		n, err := f.watcher.CheckChild(f.ctx, kid)
		require.NoError(t, err)
		assert.Zero(t, n, "spending equal to the budget is not over it")
	})

	t.Run("not a child", func(t *testing.T) {
		require.NoError(t, f.repo.SetBudget(f.ctx, core.OwnerUser, adult, decimal.NewFromInt(1)))
		f.spend(t, adult, "50", "2025-03-18")
		n, err := f.watcher.CheckChild(f.ctx, adult)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestSweepVisitsEachChildOnce(t *testing.T) {
	f := newFixture(t)
	mum := f.user(t, "mum", core.UserRoleParent)
	dad := f.user(t, "dad", core.UserRoleParent)
	a := f.user(t, "a", core.UserRoleChild)
	b := f.user(t, "b", core.UserRoleChild)
	f.link(t, mum, a)
	f.link(t, dad, a)
	f.link(t, mum, b)

	require.NoError(t, f.repo.SetBudget(f.ctx, core.OwnerUser, a, decimal.NewFromInt(10)))
	require.NoError(t, f.repo.SetBudget(f.ctx, core.OwnerUser, b, decimal.NewFromInt(10)))
	f.spend(t, a, "11", "2025-03-18")
	f.spend(t, b, "5", "2025-03-18")

	n, err := f.watcher.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.watcher.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandleMessage(t *testing.T) {
	f := newFixture(t)
	mum := f.user(t, "mum", core.UserRoleParent)
	kid := f.user(t, "kid", core.UserRoleChild)
	f.link(t, mum, kid)
	require.NoError(t, f.repo.SetBudget(f.ctx, core.OwnerUser, kid, decimal.NewFromInt(10)))
	f.spend(t, kid, "20", "2025-03-18")

	ignored := []events.Event{
		{Type: events.ExpenseChanged, UserID: kid, GroupID: 3},
		{Type: events.InviteSent, UserID: kid},
		{Type: events.ExpenseChanged},
	}
	for _, e := range ignored {
		require.NoError(t, f.watcher.HandleMessage(f.ctx, amqp.NewEventMessage(e)))
	}
	unread, err := f.parents.UnreadCount(f.ctx, mum)
	require.NoError(t, err)
	assert.Zero(t, unread)

	require.NoError(t, f.watcher.HandleMessage(f.ctx, amqp.NewEventMessage(events.Event{Type: events.ExpenseChanged, UserID: kid})))
	unread, err = f.parents.UnreadCount(f.ctx, mum)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	err = f.watcher.HandleMessage(f.ctx, amqp.NewEventMessage(events.Event{Type: events.BudgetChanged, UserID: 9999}))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

type blockingConsumer struct {
	calls atomic.Int32
}

func (c *blockingConsumer) Consume(ctx context.Context, _ func(context.Context, *amqp.EventMessage) error) error {
	c.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestBudgetWatcherLifecycle(t *testing.T) {
	f := newFixture(t)
	consumer := &blockingConsumer{}

	require.NoError(t, f.watcher.Start(f.ctx, consumer))
	assert.True(t, f.watcher.IsRunning())

	err := f.watcher.Start(f.ctx, consumer)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "already running"))

	assert.Eventually(t, func() bool { return consumer.calls.Load() == 1 }, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(f.ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.watcher.Stop(stopCtx))
	assert.False(t, f.watcher.IsRunning())

	// stopping twice is fine
	require.NoError(t, f.watcher.Stop(stopCtx))
}

func TestBudgetWatcherRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	w := NewBudgetWatcher(f.repo, f.parents, "whenever")
	require.Error(t, w.Start(f.ctx, nil))
	assert.False(t, w.IsRunning())
}
