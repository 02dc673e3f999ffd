package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"hisab/internal/core"
)

// GetBudget returns the budget of an owner. ok is false when none was ever
// set, which callers must keep distinct from a zero budget.
func (r *Repository) GetBudget(ctx context.Context, kind core.OwnerKind, ownerID int64) (core.Budget, bool, error) {
	b := core.Budget{OwnerID: ownerID, OwnerKind: kind}
	var updated int64
	err := r.db.QueryRowContext(ctx,
		`SELECT monthly_amount, currency, updated_at FROM budgets WHERE owner_kind = ? AND owner_id = ?`,
		string(kind), ownerID).Scan(&b.MonthlyAmount, &b.Currency, &updated)
	if err != nil {
		err = wrap("get budget", err)
		if err == ErrNotFound {
			return core.Budget{}, false, nil
		}
		return core.Budget{}, false, err
	}
	b.UpdatedAt = fromMillis(updated)
	return b, true, nil
}

// SetBudget replaces the monthly budget of an owner.
func (r *Repository) SetBudget(ctx context.Context, kind core.OwnerKind, ownerID int64, amount decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, r.dialect.upsertBudget(),
		string(kind), ownerID, amount, core.CurrencyCode, r.stamp())
	return wrap("set budget", err)
}
