package storage

import (
	"context"
	"database/sql"
	"log/slog"

	"hisab/internal/core"
)

const expenseColumns = `id, owner_id, group_id, category, amount, date, note`

func scanExpense(sc interface{ Scan(...any) error }) (core.Expense, error) {
	var (
		e       core.Expense
		groupID sql.NullInt64
	)
	if err := sc.Scan(&e.ID, &e.OwnerID, &groupID, &e.Category, &e.Amount, &e.Date, &e.Note); err != nil {
		return core.Expense{}, err
	}
	if groupID.Valid {
		id := groupID.Int64
		e.GroupID = &id
	}
	return e, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// CreateExpense inserts e and returns its id.
func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (owner_id, group_id, category, amount, date, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.OwnerID, nullableID(e.GroupID), e.Category, e.Amount, e.Date, e.Note, r.stamp())
	if err != nil {
		return 0, wrap("create expense", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("create expense", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", id,
		"owner_id", e.OwnerID,
		"amount", e.Amount.String(),
		"date", e.Date)

	return id, nil
}

// UpdateExpense overwrites the mutable fields of an existing expense. The
// owner and group association never change. It reports false when the id
// does not exist.
func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET category = ?, amount = ?, date = ?, note = ? WHERE id = ?`,
		e.Category, e.Amount, e.Date, e.Note, e.ID)
	if err != nil {
		return false, wrap("update expense", err)
	}
	ok, err := affected(res)
	return ok, wrap("update expense", err)
}

// DeleteExpense removes an expense by id, reporting whether it existed.
func (r *Repository) DeleteExpense(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return false, wrap("delete expense", err)
	}
	ok, err := affected(res)
	return ok, wrap("delete expense", err)
}

// GetExpense retrieves a single expense by id.
func (r *Repository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if err != nil {
		return core.Expense{}, wrap("get expense", err)
	}
	return e, nil
}

// ListExpenses returns the expenses matching f, newest date first.
func (r *Repository) ListExpenses(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if f.GroupID != nil {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+expenseColumns+` FROM expenses WHERE group_id = ? ORDER BY date DESC, id DESC`, *f.GroupID)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+expenseColumns+` FROM expenses WHERE owner_id = ? AND group_id IS NULL ORDER BY date DESC, id DESC`, f.OwnerID)
	}
	if err != nil {
		return nil, wrap("list expenses", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, wrap("list expenses", err)
		}
		out = append(out, e)
	}
	return out, wrap("list expenses", rows.Err())
}
