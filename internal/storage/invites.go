package storage

import (
	"context"
	"database/sql"
	"log/slog"

	"hisab/internal/core"
)

// Invite resolution runs as one transaction: a conditional status update
// guarded by status = 'pending', whose affected-row count decides success,
// followed by the idempotent side-effect insert.

// CreateGroupInvite inserts a pending group invite.
func (r *Repository) CreateGroupInvite(ctx context.Context, groupID, inviterID, inviteeID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO group_invites (group_id, inviter_id, invitee_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		groupID, inviterID, inviteeID, string(core.InvitePending), r.stamp())
	if err != nil {
		return 0, wrap("create group invite", err)
	}
	id, err := res.LastInsertId()
	return id, wrap("create group invite", err)
}

// HasPendingGroupInvite reports whether inviteeID already has a pending
// invite to groupID.
func (r *Repository) HasPendingGroupInvite(ctx context.Context, groupID, inviteeID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_invites WHERE group_id = ? AND invitee_id = ? AND status = ?`,
		groupID, inviteeID, string(core.InvitePending)).Scan(&n)
	return n > 0, wrap("has pending group invite", err)
}

const groupInviteColumns = `id, group_id, inviter_id, invitee_id, status, created_at`

func scanGroupInvite(sc interface{ Scan(...any) error }) (core.GroupInvite, error) {
	var (
		inv     core.GroupInvite
		status  string
		created int64
	)
	if err := sc.Scan(&inv.ID, &inv.GroupID, &inv.InviterID, &inv.InviteeID, &status, &created); err != nil {
		return core.GroupInvite{}, err
	}
	inv.Status = core.InviteStatus(status)
	inv.CreatedAt = fromMillis(created)
	return inv, nil
}

// GetGroupInvite retrieves a group invite by id.
func (r *Repository) GetGroupInvite(ctx context.Context, id int64) (core.GroupInvite, error) {
	inv, err := scanGroupInvite(r.db.QueryRowContext(ctx,
		`SELECT `+groupInviteColumns+` FROM group_invites WHERE id = ?`, id))
	if err != nil {
		return core.GroupInvite{}, wrap("get group invite", err)
	}
	return inv, nil
}

// ListGroupInvites returns the invites addressed to inviteeID, newest first.
// An empty status lists every state.
func (r *Repository) ListGroupInvites(ctx context.Context, inviteeID int64, status core.InviteStatus) ([]core.GroupInvite, error) {
	q := `SELECT ` + groupInviteColumns + ` FROM group_invites WHERE invitee_id = ?`
	args := []any{inviteeID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	rows, err := r.db.QueryContext(ctx, q+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, wrap("list group invites", err)
	}
	defer rows.Close()

	var out []core.GroupInvite
	for rows.Next() {
		inv, err := scanGroupInvite(rows)
		if err != nil {
			return nil, wrap("list group invites", err)
		}
		out = append(out, inv)
	}
	return out, wrap("list group invites", rows.Err())
}

// AcceptGroupInvite moves a pending invite to accepted and adds the invitee
// as a member. It reports false, with no side effects, when the invite does
// not exist or is no longer pending.
func (r *Repository) AcceptGroupInvite(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.withTx(ctx, "accept group invite", func(tx *sql.Tx) error {
		changed, err := transition(ctx, tx, "group_invites", id, core.InviteAccepted)
		if err != nil || !changed {
			return err
		}

		var groupID, inviteeID int64
		if err := tx.QueryRowContext(ctx,
			`SELECT group_id, invitee_id FROM group_invites WHERE id = ?`, id).Scan(&groupID, &inviteeID); err != nil {
			return wrap("accept group invite: load", err)
		}
		if _, err := tx.ExecContext(ctx,
			r.dialect.insertIgnore()+` group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
			groupID, inviteeID, string(core.RoleMember), r.stamp()); err != nil {
			return wrap("accept group invite: add member", err)
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if ok {
		slog.InfoContext(ctx, "Group invite accepted", "invite_id", id)
	}
	return ok, nil
}

// DeclineGroupInvite moves a pending invite to declined. It reports false
// when the invite was not pending.
func (r *Repository) DeclineGroupInvite(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.withTx(ctx, "decline group invite", func(tx *sql.Tx) error {
		var err error
		ok, err = transition(ctx, tx, "group_invites", id, core.InviteDeclined)
		return err
	})
	return ok, err
}

// CreateParentInvite inserts a pending parent-child invite.
func (r *Repository) CreateParentInvite(ctx context.Context, parentID, childID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO parent_invites (parent_id, child_id, status, created_at) VALUES (?, ?, ?, ?)`,
		parentID, childID, string(core.InvitePending), r.stamp())
	if err != nil {
		return 0, wrap("create parent invite", err)
	}
	id, err := res.LastInsertId()
	return id, wrap("create parent invite", err)
}

// HasPendingParentInvite reports whether a pending invite from parentID to
// childID exists.
func (r *Repository) HasPendingParentInvite(ctx context.Context, parentID, childID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM parent_invites WHERE parent_id = ? AND child_id = ? AND status = ?`,
		parentID, childID, string(core.InvitePending)).Scan(&n)
	return n > 0, wrap("has pending parent invite", err)
}

const parentInviteColumns = `id, parent_id, child_id, status, created_at`

func scanParentInvite(sc interface{ Scan(...any) error }) (core.ParentInvite, error) {
	var (
		inv     core.ParentInvite
		status  string
		created int64
	)
	if err := sc.Scan(&inv.ID, &inv.ParentID, &inv.ChildID, &status, &created); err != nil {
		return core.ParentInvite{}, err
	}
	inv.Status = core.InviteStatus(status)
	inv.CreatedAt = fromMillis(created)
	return inv, nil
}

// GetParentInvite retrieves a parent invite by id.
func (r *Repository) GetParentInvite(ctx context.Context, id int64) (core.ParentInvite, error) {
	inv, err := scanParentInvite(r.db.QueryRowContext(ctx,
		`SELECT `+parentInviteColumns+` FROM parent_invites WHERE id = ?`, id))
	if err != nil {
		return core.ParentInvite{}, wrap("get parent invite", err)
	}
	return inv, nil
}

// ListParentInvites returns invites received by childID, newest first. An
// empty status lists every state.
func (r *Repository) ListParentInvites(ctx context.Context, childID int64, status core.InviteStatus) ([]core.ParentInvite, error) {
	return r.listParentInvites(ctx, "child_id", childID, status)
}

// ListSentParentInvites returns every invite sent by parentID, newest first.
func (r *Repository) ListSentParentInvites(ctx context.Context, parentID int64) ([]core.ParentInvite, error) {
	return r.listParentInvites(ctx, "parent_id", parentID, "")
}

func (r *Repository) listParentInvites(ctx context.Context, column string, userID int64, status core.InviteStatus) ([]core.ParentInvite, error) {
	q := `SELECT ` + parentInviteColumns + ` FROM parent_invites WHERE ` + column + ` = ?`
	args := []any{userID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	rows, err := r.db.QueryContext(ctx, q+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, wrap("list parent invites", err)
	}
	defer rows.Close()

	var out []core.ParentInvite
	for rows.Next() {
		inv, err := scanParentInvite(rows)
		if err != nil {
			return nil, wrap("list parent invites", err)
		}
		out = append(out, inv)
	}
	return out, wrap("list parent invites", rows.Err())
}

// AcceptParentInvite moves a pending invite to accepted and links parent and
// child. Linking is idempotent.
func (r *Repository) AcceptParentInvite(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.withTx(ctx, "accept parent invite", func(tx *sql.Tx) error {
		changed, err := transition(ctx, tx, "parent_invites", id, core.InviteAccepted)
		if err != nil || !changed {
			return err
		}

		var parentID, childID int64
		if err := tx.QueryRowContext(ctx,
			`SELECT parent_id, child_id FROM parent_invites WHERE id = ?`, id).Scan(&parentID, &childID); err != nil {
			return wrap("accept parent invite: load", err)
		}
		if _, err := tx.ExecContext(ctx,
			r.dialect.insertIgnore()+` parent_child_links (parent_id, child_id, created_at) VALUES (?, ?, ?)`,
			parentID, childID, r.stamp()); err != nil {
			return wrap("accept parent invite: link", err)
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if ok {
		slog.InfoContext(ctx, "Parent invite accepted", "invite_id", id)
	}
	return ok, nil
}

// DeclineParentInvite moves a pending invite to declined.
func (r *Repository) DeclineParentInvite(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.withTx(ctx, "decline parent invite", func(tx *sql.Tx) error {
		var err error
		ok, err = transition(ctx, tx, "parent_invites", id, core.InviteDeclined)
		return err
	})
	return ok, err
}

// transition is the pending -> to compare-and-swap.
func transition(ctx context.Context, tx *sql.Tx, table string, id int64, to core.InviteStatus) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(core.InvitePending))
	if err != nil {
		return false, wrap("transition "+table, err)
	}
	ok, err := affected(res)
	return ok, wrap("transition "+table, err)
}
