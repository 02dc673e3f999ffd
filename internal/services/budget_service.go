package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"hisab/internal/core"
	"hisab/internal/events"
)

// BudgetService reads and writes monthly budgets for users and groups.
type BudgetService struct {
	budgets BudgetStore
	groups  MembershipStore
	bus     *events.Bus
}

func NewBudgetService(budgets BudgetStore, groups MembershipStore, bus *events.Bus) *BudgetService {
	return &BudgetService{budgets: budgets, groups: groups, bus: bus}
}

// GetUserBudget returns the user's monthly budget and whether one is set.
func (s *BudgetService) GetUserBudget(ctx context.Context, userID int64) (decimal.Decimal, bool, error) {
	b, ok, err := s.budgets.GetBudget(ctx, core.OwnerUser, userID)
	return b.MonthlyAmount, ok, err
}

// SetUserBudget replaces the user's monthly budget. Zero is allowed and
// means "no budget" to the suggestion rules.
func (s *BudgetService) SetUserBudget(ctx context.Context, userID int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return core.ErrInvalidBudget
	}
	if err := s.budgets.SetBudget(ctx, core.OwnerUser, userID, amount); err != nil {
		return fmt.Errorf("set user budget: %w", err)
	}
	s.bus.Publish(ctx, events.Event{Type: events.BudgetChanged, UserID: userID})
	return nil
}

// GetGroupBudget returns a group's budget to one of its members.
func (s *BudgetService) GetGroupBudget(ctx context.Context, actorID, groupID int64) (decimal.Decimal, bool, error) {
	if _, ok, err := s.groups.GetMembership(ctx, groupID, actorID); err != nil {
		return decimal.Zero, false, err
	} else if !ok {
		return decimal.Zero, false, ErrNotMember
	}
	b, ok, err := s.budgets.GetBudget(ctx, core.OwnerGroup, groupID)
	return b.MonthlyAmount, ok, err
}

// SetGroupBudget replaces a group's budget. Only admins may do this.
func (s *BudgetService) SetGroupBudget(ctx context.Context, actorID, groupID int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return core.ErrInvalidBudget
	}
	m, ok, err := s.groups.GetMembership(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	if !ok || m.Role != core.RoleAdmin {
		return ErrNotAdmin
	}
	if err := s.budgets.SetBudget(ctx, core.OwnerGroup, groupID, amount); err != nil {
		return fmt.Errorf("set group budget: %w", err)
	}
	s.bus.Publish(ctx, events.Event{Type: events.BudgetChanged, UserID: actorID, GroupID: groupID})
	return nil
}
