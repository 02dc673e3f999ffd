package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"

	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteDeclined InviteStatus = "declined"

	AlertTypeAlert      AlertType = "alert"
	AlertTypeSuggestion AlertType = "suggestion"

	UserRoleParent     UserRole = "parent"
	UserRoleChild      UserRole = "child"
	UserRoleIndividual UserRole = "individual"

	OwnerUser  OwnerKind = "user"
	OwnerGroup OwnerKind = "group"
)

const (
	// MaxNoteLength bounds Expense.Note.
	MaxNoteLength = 500
	// MaxAlertLength bounds Alert.Message.
	MaxAlertLength = 500
	// UncategorizedPersonal is used for personal expenses without a category.
	UncategorizedPersonal = "Uncategorized"
	// UncategorizedGroup is used for group expenses without a category.
	UncategorizedGroup = "Other"
)

type (
	MemberRole   string
	InviteStatus string
	AlertType    string
	UserRole     string
	OwnerKind    string

	User struct {
		ID           int64
		Name         string
		Email        string
		Role         UserRole
		PasswordHash string
		CreatedAt    time.Time
	}

	// Expense is a single spending record. Date holds the stored calendar
	// date text (YYYY-MM-DD); readers parse it with ParseDate.
	Expense struct {
		ID       int64
		OwnerID  int64
		GroupID  *int64
		Category string
		Amount   decimal.Decimal
		Date     string
		Note     string
	}

	Budget struct {
		OwnerID       int64
		OwnerKind     OwnerKind
		MonthlyAmount decimal.Decimal
		Currency      string
		UpdatedAt     time.Time
	}

	Group struct {
		ID        int64
		Name      string
		CreatedBy int64
		CreatedAt time.Time
	}

	Membership struct {
		GroupID  int64
		UserID   int64
		Role     MemberRole
		JoinedAt time.Time
	}

	ParentChildLink struct {
		ParentID  int64
		ChildID   int64
		CreatedAt time.Time
	}

	ParentInvite struct {
		ID        int64
		ParentID  int64
		ChildID   int64
		Status    InviteStatus
		CreatedAt time.Time
	}

	GroupInvite struct {
		ID        int64
		GroupID   int64
		InviterID int64
		InviteeID int64
		Status    InviteStatus
		CreatedAt time.Time
	}

	// GroupMember is a membership joined with the member's profile.
	GroupMember struct {
		Membership
		Name  string
		Email string
	}

	// ExpenseFilter selects the expenses visible to one subject. With
	// GroupID set it matches that group's expenses; otherwise it matches
	// OwnerID's personal expenses.
	ExpenseFilter struct {
		OwnerID int64
		GroupID *int64
	}

	Alert struct {
		ID         int64
		FromUserID int64
		ToUserID   int64
		Type       AlertType
		Message    string
		CreatedAt  time.Time
		Read       bool
	}
)

var (
	// ErrNotFound is returned when an id does not resolve.
	ErrNotFound = errors.New("not found")

	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyCategory = errors.New("empty category")
	ErrInvalidDate   = errors.New("invalid date")
	ErrFutureDate    = errors.New("date is in the future")
	ErrNoteTooLong   = errors.New("note too long (max 500 characters)")
	ErrInvalidOwner  = errors.New("invalid owner")
	ErrEmptyMessage  = errors.New("empty message")
	ErrMessageLength = errors.New("message too long (max 500 characters)")
	ErrAlertType     = errors.New("invalid alert type")
	ErrInvalidBudget = errors.New("budget must not be negative")
)

// IsPersonal reports whether the expense has no group association.
func (e Expense) IsPersonal() bool {
	return e.GroupID == nil
}

// InGroup reports whether the expense belongs to groupID.
func (e Expense) InGroup(groupID int64) bool {
	return e.GroupID != nil && *e.GroupID == groupID
}

// Validate checks an expense at the input boundary. now is the caller's
// clock, used to reject future dates.
func (e Expense) Validate(now time.Time) error {
	if e.OwnerID <= 0 {
		return ErrInvalidOwner
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	d, ok := ParseDate(e.Date)
	if !ok {
		return ErrInvalidDate
	}
	if d.After(Today(now).Time) {
		return ErrFutureDate
	}
	if utf8.RuneCountInString(e.Note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}

// PersonalExpenses selects userID's expenses outside any group.
func PersonalExpenses(userID int64) ExpenseFilter {
	return ExpenseFilter{OwnerID: userID}
}

// GroupExpenses selects every expense tagged with groupID.
func GroupExpenses(groupID int64) ExpenseFilter {
	return ExpenseFilter{GroupID: &groupID}
}

// IsTerminal reports whether the status can no longer change.
func (s InviteStatus) IsTerminal() bool {
	return s == InviteAccepted || s == InviteDeclined
}

func (s InviteStatus) IsValid() bool {
	switch s {
	case InvitePending, InviteAccepted, InviteDeclined:
		return true
	}
	return false
}

func (r MemberRole) IsValid() bool {
	return r == RoleAdmin || r == RoleMember
}

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleParent, UserRoleChild, UserRoleIndividual:
		return true
	}
	return false
}

func (a Alert) Validate() error {
	if strings.TrimSpace(a.Message) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(a.Message) > MaxAlertLength {
		return ErrMessageLength
	}
	if a.Type != AlertTypeAlert && a.Type != AlertTypeSuggestion {
		return ErrAlertType
	}
	return nil
}
