package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// MemberAmount represents an amount aggregated by group member.
type MemberAmount struct {
	UserID int64
	Name   string
	Amount decimal.Decimal
}
