package storage

import "fmt"

// Dialect selects the SQL flavour of the backing database.
type Dialect string

const (
	SQLite Dialect = "sqlite"
	MySQL  Dialect = "mysql"
)

// ParseDialect maps a DATA_BACKEND value to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(s) {
	case SQLite, MySQL:
		return Dialect(s), nil
	}
	return "", fmt.Errorf("unknown data backend %q (want sqlite or mysql)", s)
}

func (d Dialect) driverName() string {
	return string(d)
}

// insertIgnore is the prefix of an insert that silently skips rows violating
// a unique constraint.
func (d Dialect) insertIgnore() string {
	if d == MySQL {
		return "INSERT IGNORE INTO"
	}
	return "INSERT OR IGNORE INTO"
}

func (d Dialect) upsertBudget() string {
	if d == MySQL {
		return `INSERT INTO budgets (owner_kind, owner_id, monthly_amount, currency, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE monthly_amount = VALUES(monthly_amount),
				currency = VALUES(currency), updated_at = VALUES(updated_at)`
	}
	return `INSERT INTO budgets (owner_kind, owner_id, monthly_amount, currency, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_kind, owner_id) DO UPDATE SET monthly_amount = excluded.monthly_amount,
			currency = excluded.currency, updated_at = excluded.updated_at`
}
