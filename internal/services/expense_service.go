package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hisab/internal/core"
	"hisab/internal/events"
	"hisab/internal/log"
)

// ExpenseService validates and authorizes expense mutations, then notifies
// subscribers through the event bus.
type ExpenseService struct {
	expenses ExpenseStore
	groups   MembershipStore
	bus      *events.Bus
	logger   *log.Logger
	now      func() time.Time
}

func NewExpenseService(expenses ExpenseStore, groups MembershipStore, bus *events.Bus) *ExpenseService {
	return &ExpenseService{
		expenses: expenses,
		groups:   groups,
		bus:      bus,
		logger:   log.Component(log.ComponentExpense),
		now:      time.Now,
	}
}

// WithClock overrides the clock used to reject future dates.
func (s *ExpenseService) WithClock(now func() time.Time) *ExpenseService {
	s.now = now
	return s
}

// CreateExpense records an expense owned by actorID. Group expenses require
// membership.
func (s *ExpenseService) CreateExpense(ctx context.Context, actorID int64, e core.Expense) (int64, error) {
	e.OwnerID = actorID
	e.Category = strings.TrimSpace(e.Category)
	e.Date = strings.TrimSpace(e.Date)
	if err := e.Validate(s.now()); err != nil {
		return 0, err
	}
	if err := s.authorize(ctx, actorID, e); err != nil {
		return 0, err
	}

	id, err := s.expenses.CreateExpense(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save expense: %w", err)
	}

	fields := log.NewFields().WithExpense(id, e.Amount, e.Category).WithUser(actorID).WithOperation(log.OpCreate)
	if e.GroupID != nil {
		fields = fields.WithGroup(*e.GroupID)
	}
	s.logger.InfoContext(ctx, "Expense created", fields.ToSlice()...)

	s.publish(ctx, actorID, e)
	return id, nil
}

// UpdateExpense replaces category, amount, date and note of an expense.
// Owner and group association are kept from the stored row.
func (s *ExpenseService) UpdateExpense(ctx context.Context, actorID int64, e core.Expense) error {
	current, err := s.expenses.GetExpense(ctx, e.ID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actorID, current); err != nil {
		return err
	}

	e.OwnerID = current.OwnerID
	e.GroupID = current.GroupID
	e.Category = strings.TrimSpace(e.Category)
	e.Date = strings.TrimSpace(e.Date)
	if err := e.Validate(s.now()); err != nil {
		return err
	}

	if _, err := s.expenses.UpdateExpense(ctx, e); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	s.publish(ctx, actorID, e)
	return nil
}

// DeleteExpense removes an expense the caller may mutate.
func (s *ExpenseService) DeleteExpense(ctx context.Context, actorID, id int64) error {
	current, err := s.expenses.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actorID, current); err != nil {
		return err
	}
	ok, err := s.expenses.DeleteExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	s.logger.InfoContext(ctx, "Expense deleted", log.NewFields().WithUser(actorID).WithOperation(log.OpDelete).ToSlice()...)
	s.publish(ctx, actorID, current)
	return nil
}

// ListExpenses returns the caller's personal expenses, or a group's expenses
// when groupID is set.
func (s *ExpenseService) ListExpenses(ctx context.Context, actorID int64, groupID *int64) ([]core.Expense, error) {
	if groupID == nil {
		return s.expenses.ListExpenses(ctx, core.PersonalExpenses(actorID))
	}
	if err := s.requireMember(ctx, *groupID, actorID); err != nil {
		return nil, err
	}
	return s.expenses.ListExpenses(ctx, core.GroupExpenses(*groupID))
}

// authorize checks that actorID may mutate e: personal expenses belong to
// their owner and group expenses to any current member.
func (s *ExpenseService) authorize(ctx context.Context, actorID int64, e core.Expense) error {
	if e.IsPersonal() {
		if e.OwnerID != actorID {
			return ErrForbidden
		}
		return nil
	}
	return s.requireMember(ctx, *e.GroupID, actorID)
}

func (s *ExpenseService) requireMember(ctx context.Context, groupID, userID int64) error {
	_, ok, err := s.groups.GetMembership(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

func (s *ExpenseService) publish(ctx context.Context, actorID int64, e core.Expense) {
	ev := events.Event{Type: events.ExpenseChanged, UserID: e.OwnerID, TargetID: actorID}
	if e.GroupID != nil {
		ev.GroupID = *e.GroupID
	}
	s.bus.Publish(ctx, ev)
}
