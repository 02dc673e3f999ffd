// Package worker runs background jobs against the shared store.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"hisab/internal/amqp"
	"hisab/internal/analytics"
	"hisab/internal/core"
	"hisab/internal/events"
	"hisab/internal/log"
)

// Store is the read side the watcher needs.
type Store interface {
	ListExpenses(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, error)
	GetBudget(ctx context.Context, kind core.OwnerKind, ownerID int64) (core.Budget, bool, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	ListParents(ctx context.Context, childID int64) ([]core.User, error)
	ListLinks(ctx context.Context) ([]core.ParentChildLink, error)
}

// Alerter sends the once-per-month automatic alert.
// services.ParentService implements it.
type Alerter interface {
	SendAutoAlert(ctx context.Context, childID, parentID int64, month, message string) (bool, error)
}

// Consumer delivers broker messages. *amqp.Client implements it.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, *amqp.EventMessage) error) error
}

// BudgetWatcher alerts linked parents when a child's monthly spending goes
// over the child's budget. It reacts to expense and budget events and also
// sweeps every linked child on a cron schedule to catch missed messages.
type BudgetWatcher struct {
	store    Store
	alerter  Alerter
	schedule string
	now      func() time.Time
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

func NewBudgetWatcher(store Store, alerter Alerter, schedule string) *BudgetWatcher {
	return &BudgetWatcher{
		store:    store,
		alerter:  alerter,
		schedule: schedule,
		now:      time.Now,
		logger:   log.Component(log.ComponentWorker),
	}
}

// WithClock overrides the clock used to pick the current month.
func (w *BudgetWatcher) WithClock(now func() time.Time) *BudgetWatcher {
	w.now = now
	return w
}

// Start schedules the sweep, runs one immediately and, when consumer is
// non-nil, consumes change events until Stop. It returns an error if
// already running or the schedule is invalid.
func (w *BudgetWatcher) Start(ctx context.Context, consumer Consumer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("budget watcher is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New()
	if _, err := c.AddFunc(w.schedule, func() { w.runSweep(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule sweep %q: %w", w.schedule, err)
	}

	w.running = true
	w.cron = c
	w.cancel = cancel
	w.doneCh = make(chan struct{})

	c.Start()
	go w.run(ctx, consumer)

	w.logger.InfoContext(ctx, "Budget watcher started", "schedule", w.schedule, "consume", consumer != nil)
	return nil
}

func (w *BudgetWatcher) run(ctx context.Context, consumer Consumer) {
	defer close(w.doneCh)

	w.runSweep(ctx)
	if consumer == nil {
		<-ctx.Done()
		return
	}

	for attempt := 0; ; attempt++ {
		err := consumer.Consume(ctx, w.HandleMessage)
		if ctx.Err() != nil {
			return
		}
		wait := time.Duration(min(attempt+1, 30)) * time.Second
		w.logger.ErrorContext(ctx, "Message consumption stopped, retrying", log.FieldError, err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Stop halts the schedule and consumer and waits for in-flight work or ctx.
func (w *BudgetWatcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	c, cancel, done := w.cron, w.cancel, w.doneCh
	w.mu.Unlock()

	cancel()
	cronDone := c.Stop().Done()

	for _, ch := range []<-chan struct{}{done, cronDone} {
		select {
		case <-ch:
		case <-ctx.Done():
			w.logger.WarnContext(ctx, "Budget watcher stop timed out")
			return ctx.Err()
		}
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Budget watcher stopped gracefully")
	return nil
}

// IsRunning returns whether the watcher is currently running
func (w *BudgetWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// HandleMessage checks the owner of a personal expense or budget change.
// Group and unrelated events are acknowledged without work.
func (w *BudgetWatcher) HandleMessage(ctx context.Context, msg *amqp.EventMessage) error {
	switch events.Type(msg.Type) {
	case events.ExpenseChanged, events.BudgetChanged:
	default:
		return nil
	}
	if msg.GroupID != 0 || msg.UserID <= 0 {
		return nil
	}
	_, err := w.CheckChild(ctx, msg.UserID)
	return err
}

func (w *BudgetWatcher) runSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := w.Sweep(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Budget sweep failed", log.NewFields().WithOperation(log.OpSweep).WithError(err).ToSlice()...)
		return
	}
	w.logger.InfoContext(ctx, "Budget sweep complete", log.NewFields().WithOperation(log.OpSweep).ToSlice()...)
	if n > 0 {
		w.logger.InfoContext(ctx, "Automatic alerts sent", "count", n)
	}
}

// Sweep checks every linked child once and returns how many alerts were
// sent. A failing child is logged and skipped.
func (w *BudgetWatcher) Sweep(ctx context.Context) (int, error) {
	links, err := w.store.ListLinks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list links: %w", err)
	}

	seen := make(map[int64]bool, len(links))
	total := 0
	for _, l := range links {
		if seen[l.ChildID] {
			continue
		}
		seen[l.ChildID] = true

		n, err := w.CheckChild(ctx, l.ChildID)
		if err != nil {
			w.logger.WarnContext(ctx, "Budget check failed", log.FieldUserID, l.ChildID, log.FieldError, err)
			continue
		}
		total += n
	}
	return total, nil
}

// CheckChild alerts each linked parent of childID, at most once per month,
// when the child's spending this month exceeds their budget. It returns
// the number of alerts sent.
func (w *BudgetWatcher) CheckChild(ctx context.Context, childID int64) (int, error) {
	child, err := w.store.GetUser(ctx, childID)
	if err != nil {
		return 0, err
	}
	if child.Role != core.UserRoleChild {
		return 0, nil
	}

	budget, ok, err := w.store.GetBudget(ctx, core.OwnerUser, childID)
	if err != nil || !ok || !budget.MonthlyAmount.IsPositive() {
		return 0, err
	}

	now := w.now()
	expenses, err := w.store.ListExpenses(ctx, core.PersonalExpenses(childID))
	if err != nil {
		return 0, err
	}
	spent := analytics.BuildSummary(expenses, now).MonthlyTotal
	if !spent.GreaterThan(budget.MonthlyAmount) {
		return 0, nil
	}

	parents, err := w.store.ListParents(ctx, childID)
	if err != nil {
		return 0, err
	}

	month := core.Today(now).MonthKey()
	msg := overBudgetMessage(child.Name, spent, budget.MonthlyAmount)
	sent := 0
	for _, p := range parents {
		ok, err := w.alerter.SendAutoAlert(ctx, childID, p.ID, month, msg)
		if err != nil {
			return sent, fmt.Errorf("alert parent %d: %w", p.ID, err)
		}
		if ok {
			sent++
			w.logger.InfoContext(ctx, "Over-budget alert sent",
				log.FieldUserID, childID, log.FieldTargetID, p.ID, log.FieldMonth, month)
		}
	}
	return sent, nil
}

func overBudgetMessage(name string, spent, budget decimal.Decimal) string {
	return fmt.Sprintf("%s has spent %s this month, %s over their %s budget.",
		name, core.FormatMoney(spent), core.FormatMoney(spent.Sub(budget)), core.FormatMoney(budget))
}
