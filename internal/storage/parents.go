package storage

import (
	"context"
	"database/sql"

	"hisab/internal/core"
)

// IsLinked reports whether parentID and childID share a confirmed link.
func (r *Repository) IsLinked(ctx context.Context, parentID, childID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM parent_child_links WHERE parent_id = ? AND child_id = ?`,
		parentID, childID).Scan(&n)
	return n > 0, wrap("is linked", err)
}

// ListChildren returns the users linked to parentID as children.
func (r *Repository) ListChildren(ctx context.Context, parentID int64) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumnsPrefixed+` FROM users u JOIN parent_child_links l ON l.child_id = u.id
		 WHERE l.parent_id = ? ORDER BY u.name, u.id`, parentID)
	if err != nil {
		return nil, wrap("list children", err)
	}
	return collectUsers(rows, "list children")
}

// ListParents returns the users linked to childID as parents.
func (r *Repository) ListParents(ctx context.Context, childID int64) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumnsPrefixed+` FROM users u JOIN parent_child_links l ON l.parent_id = u.id
		 WHERE l.child_id = ? ORDER BY u.name, u.id`, childID)
	if err != nil {
		return nil, wrap("list parents", err)
	}
	return collectUsers(rows, "list parents")
}

// ListLinks returns every confirmed parent-child link.
func (r *Repository) ListLinks(ctx context.Context) ([]core.ParentChildLink, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT parent_id, child_id, created_at FROM parent_child_links ORDER BY child_id, parent_id`)
	if err != nil {
		return nil, wrap("list links", err)
	}
	defer rows.Close()

	var out []core.ParentChildLink
	for rows.Next() {
		var (
			l       core.ParentChildLink
			created int64
		)
		if err := rows.Scan(&l.ParentID, &l.ChildID, &created); err != nil {
			return nil, wrap("list links", err)
		}
		l.CreatedAt = fromMillis(created)
		out = append(out, l)
	}
	return out, wrap("list links", rows.Err())
}

// CreateAutoAlert stores the automatic over-budget alert a at most once per
// (sender, recipient, month). The claim and the alert commit together, so a
// failed insert leaves the month unclaimed. It reports false with a zero id
// when the month was already claimed.
func (r *Repository) CreateAutoAlert(ctx context.Context, a core.Alert, month string) (int64, bool, error) {
	var id int64
	err := r.withTx(ctx, "create auto alert", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			r.dialect.insertIgnore()+` auto_alerts (child_id, parent_id, month) VALUES (?, ?, ?)`,
			a.FromUserID, a.ToUserID, month)
		if err != nil {
			return wrap("claim auto alert", err)
		}
		claimed, err := affected(res)
		if err != nil || !claimed {
			return wrap("claim auto alert", err)
		}

		res, err = tx.ExecContext(ctx,
			`INSERT INTO alerts (from_user_id, to_user_id, type, message, is_read, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
			a.FromUserID, a.ToUserID, string(a.Type), a.Message, r.stamp())
		if err != nil {
			return wrap("create alert", err)
		}
		id, err = res.LastInsertId()
		return wrap("create alert", err)
	})
	if err != nil {
		return 0, false, err
	}
	return id, id > 0, nil
}

const alertColumns = `id, from_user_id, to_user_id, type, message, is_read, created_at`

func scanAlert(sc interface{ Scan(...any) error }) (core.Alert, error) {
	var (
		a       core.Alert
		typ     string
		created int64
	)
	if err := sc.Scan(&a.ID, &a.FromUserID, &a.ToUserID, &typ, &a.Message, &a.Read, &created); err != nil {
		return core.Alert{}, err
	}
	a.Type = core.AlertType(typ)
	a.CreatedAt = fromMillis(created)
	return a, nil
}

// CreateAlert stores an unread alert or suggestion.
func (r *Repository) CreateAlert(ctx context.Context, a core.Alert) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO alerts (from_user_id, to_user_id, type, message, is_read, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		a.FromUserID, a.ToUserID, string(a.Type), a.Message, r.stamp())
	if err != nil {
		return 0, wrap("create alert", err)
	}
	id, err := res.LastInsertId()
	return id, wrap("create alert", err)
}

// GetAlert retrieves an alert by id.
func (r *Repository) GetAlert(ctx context.Context, id int64) (core.Alert, error) {
	a, err := scanAlert(r.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id))
	if err != nil {
		return core.Alert{}, wrap("get alert", err)
	}
	return a, nil
}

// ListAlerts returns the messages received by toUserID, newest first.
func (r *Repository) ListAlerts(ctx context.Context, toUserID int64) ([]core.Alert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE to_user_id = ? ORDER BY created_at DESC, id DESC`, toUserID)
	if err != nil {
		return nil, wrap("list alerts", err)
	}
	defer rows.Close()

	var out []core.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, wrap("list alerts", err)
		}
		out = append(out, a)
	}
	return out, wrap("list alerts", rows.Err())
}

// CountUnread returns the number of unread messages for toUserID.
func (r *Repository) CountUnread(ctx context.Context, toUserID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE to_user_id = ? AND is_read = 0`, toUserID).Scan(&n)
	return n, wrap("count unread", err)
}

// MarkAlertRead flags an alert as read. Read alerts never return to unread.
func (r *Repository) MarkAlertRead(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE alerts SET is_read = 1 WHERE id = ?`, id)
	return wrap("mark alert read", err)
}

// DeleteAlert removes an alert, reporting whether it existed.
func (r *Repository) DeleteAlert(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return false, wrap("delete alert", err)
	}
	ok, err := affected(res)
	return ok, wrap("delete alert", err)
}

func collectUsers(rows *sql.Rows, op string) ([]core.User, error) {
	defer rows.Close()
	var out []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, u)
	}
	return out, wrap(op, rows.Err())
}
