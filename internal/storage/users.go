package storage

import (
	"context"
	"strings"

	"hisab/internal/core"
)

const (
	userColumns         = `id, name, email, role, password_hash, created_at`
	userColumnsPrefixed = `u.id, u.name, u.email, u.role, u.password_hash, u.created_at`
)

func scanUser(sc interface{ Scan(...any) error }) (core.User, error) {
	var (
		u       core.User
		role    string
		created int64
	)
	if err := sc.Scan(&u.ID, &u.Name, &u.Email, &role, &u.PasswordHash, &created); err != nil {
		return core.User{}, err
	}
	u.Role = core.UserRole(role)
	u.CreatedAt = fromMillis(created)
	return u, nil
}

// CreateUser inserts a user. Emails are stored lower-cased.
func (r *Repository) CreateUser(ctx context.Context, u core.User) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, email, role, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.Name, normalizeEmail(u.Email), string(u.Role), u.PasswordHash, r.stamp())
	if err != nil {
		return 0, wrap("create user", err)
	}
	id, err := res.LastInsertId()
	return id, wrap("create user", err)
}

// GetUser retrieves a user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return core.User{}, wrap("get user", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by e-mail, case-insensitively.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email)))
	if err != nil {
		return core.User{}, wrap("get user by email", err)
	}
	return u, nil
}

// GetUsers resolves several ids at once. Unknown ids are skipped.
func (r *Repository) GetUsers(ctx context.Context, ids []int64) ([]core.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`, args...)
	if err != nil {
		return nil, wrap("get users", err)
	}
	return collectUsers(rows, "get users")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
