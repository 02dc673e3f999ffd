package storage

import (
	"context"
	"database/sql"
	"log/slog"

	"hisab/internal/core"
)

// CreateGroup inserts a group and seeds its creator with the given role in
// one transaction.
func (r *Repository) CreateGroup(ctx context.Context, name string, creatorID int64, creatorRole core.MemberRole) (core.Group, error) {
	g := core.Group{Name: name, CreatedBy: creatorID}
	now := r.stamp()
	err := r.withTx(ctx, "create group", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO expense_groups (name, created_by, created_at) VALUES (?, ?, ?)`,
			name, creatorID, now)
		if err != nil {
			return wrap("create group", err)
		}
		if g.ID, err = res.LastInsertId(); err != nil {
			return wrap("create group", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
			g.ID, creatorID, string(creatorRole), now)
		return wrap("create group: seed creator", err)
	})
	if err != nil {
		return core.Group{}, err
	}
	g.CreatedAt = fromMillis(now)

	slog.InfoContext(ctx, "Group created", "group_id", g.ID, "creator_id", creatorID, "role", string(creatorRole))
	return g, nil
}

// GetGroup retrieves a group by id.
func (r *Repository) GetGroup(ctx context.Context, id int64) (core.Group, error) {
	var (
		g       core.Group
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at FROM expense_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.CreatedBy, &created)
	if err != nil {
		return core.Group{}, wrap("get group", err)
	}
	g.CreatedAt = fromMillis(created)
	return g, nil
}

// ListUserGroups returns the groups userID belongs to, oldest first.
func (r *Repository) ListUserGroups(ctx context.Context, userID int64) ([]core.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.created_by, g.created_at
		 FROM expense_groups g JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = ? ORDER BY g.created_at, g.id`, userID)
	if err != nil {
		return nil, wrap("list user groups", err)
	}
	defer rows.Close()

	var out []core.Group
	for rows.Next() {
		var (
			g       core.Group
			created int64
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedBy, &created); err != nil {
			return nil, wrap("list user groups", err)
		}
		g.CreatedAt = fromMillis(created)
		out = append(out, g)
	}
	return out, wrap("list user groups", rows.Err())
}

// ListMembers returns a group's members in join order.
func (r *Repository) ListMembers(ctx context.Context, groupID int64) ([]core.GroupMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.group_id, m.user_id, m.role, m.joined_at, u.name, u.email
		 FROM group_members m JOIN users u ON u.id = m.user_id
		 WHERE m.group_id = ? ORDER BY m.joined_at, m.user_id`, groupID)
	if err != nil {
		return nil, wrap("list members", err)
	}
	defer rows.Close()

	var out []core.GroupMember
	for rows.Next() {
		var (
			m      core.GroupMember
			role   string
			joined int64
		)
		if err := rows.Scan(&m.GroupID, &m.UserID, &role, &joined, &m.Name, &m.Email); err != nil {
			return nil, wrap("list members", err)
		}
		m.Role = core.MemberRole(role)
		m.JoinedAt = fromMillis(joined)
		out = append(out, m)
	}
	return out, wrap("list members", rows.Err())
}

// GetMembership looks up userID in groupID. ok is false when the user is not
// a member.
func (r *Repository) GetMembership(ctx context.Context, groupID, userID int64) (core.Membership, bool, error) {
	m := core.Membership{GroupID: groupID, UserID: userID}
	var (
		role   string
		joined int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT role, joined_at FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID).Scan(&role, &joined)
	if err != nil {
		if err = wrap("get membership", err); err == ErrNotFound {
			return core.Membership{}, false, nil
		}
		return core.Membership{}, false, err
	}
	m.Role = core.MemberRole(role)
	m.JoinedAt = fromMillis(joined)
	return m, true, nil
}

// AddMember inserts a membership. It reports false when the user was already
// a member; the existing role is kept.
func (r *Repository) AddMember(ctx context.Context, groupID, userID int64, role core.MemberRole) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		r.dialect.insertIgnore()+` group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		groupID, userID, string(role), r.stamp())
	if err != nil {
		return false, wrap("add member", err)
	}
	ok, err := affected(res)
	return ok, wrap("add member", err)
}

// RemoveMember deletes a membership. When it was the last one the group
// itself (with its budget and invites) is deleted in the same transaction.
// Expenses tagged with the group are left untouched.
func (r *Repository) RemoveMember(ctx context.Context, groupID, userID int64) (removed, groupDeleted bool, err error) {
	err = r.withTx(ctx, "remove member", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
		if err != nil {
			return wrap("remove member", err)
		}
		if removed, err = affected(res); err != nil || !removed {
			return wrap("remove member", err)
		}

		var left int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM group_members WHERE group_id = ?`, groupID).Scan(&left); err != nil {
			return wrap("remove member: count", err)
		}
		if left > 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM group_invites WHERE group_id = ?`, groupID); err != nil {
			return wrap("delete group: invites", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM budgets WHERE owner_kind = ? AND owner_id = ?`, string(core.OwnerGroup), groupID); err != nil {
			return wrap("delete group: budget", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM expense_groups WHERE id = ?`, groupID); err != nil {
			return wrap("delete group", err)
		}
		groupDeleted = true
		return nil
	})
	if err != nil {
		return false, false, err
	}

	if groupDeleted {
		slog.InfoContext(ctx, "Group deleted after last member left", "group_id", groupID, "user_id", userID)
	}
	return removed, groupDeleted, nil
}
