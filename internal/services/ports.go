package services

import (
	"context"

	"github.com/shopspring/decimal"

	"hisab/internal/core"
)

// Data-access ports. storage.Repository implements all of them.

type ExpenseStore interface {
	CreateExpense(ctx context.Context, e core.Expense) (int64, error)
	UpdateExpense(ctx context.Context, e core.Expense) (bool, error)
	DeleteExpense(ctx context.Context, id int64) (bool, error)
	GetExpense(ctx context.Context, id int64) (core.Expense, error)
	ListExpenses(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, error)
}

type BudgetStore interface {
	GetBudget(ctx context.Context, kind core.OwnerKind, ownerID int64) (core.Budget, bool, error)
	SetBudget(ctx context.Context, kind core.OwnerKind, ownerID int64, amount decimal.Decimal) error
}

type MembershipStore interface {
	CreateGroup(ctx context.Context, name string, creatorID int64, creatorRole core.MemberRole) (core.Group, error)
	GetGroup(ctx context.Context, id int64) (core.Group, error)
	ListUserGroups(ctx context.Context, userID int64) ([]core.Group, error)
	ListMembers(ctx context.Context, groupID int64) ([]core.GroupMember, error)
	GetMembership(ctx context.Context, groupID, userID int64) (core.Membership, bool, error)
	AddMember(ctx context.Context, groupID, userID int64, role core.MemberRole) (bool, error)
	RemoveMember(ctx context.Context, groupID, userID int64) (removed, groupDeleted bool, err error)
}

type InviteStore interface {
	CreateGroupInvite(ctx context.Context, groupID, inviterID, inviteeID int64) (int64, error)
	HasPendingGroupInvite(ctx context.Context, groupID, inviteeID int64) (bool, error)
	GetGroupInvite(ctx context.Context, id int64) (core.GroupInvite, error)
	ListGroupInvites(ctx context.Context, inviteeID int64, status core.InviteStatus) ([]core.GroupInvite, error)
	AcceptGroupInvite(ctx context.Context, id int64) (bool, error)
	DeclineGroupInvite(ctx context.Context, id int64) (bool, error)

	CreateParentInvite(ctx context.Context, parentID, childID int64) (int64, error)
	HasPendingParentInvite(ctx context.Context, parentID, childID int64) (bool, error)
	GetParentInvite(ctx context.Context, id int64) (core.ParentInvite, error)
	ListParentInvites(ctx context.Context, childID int64, status core.InviteStatus) ([]core.ParentInvite, error)
	ListSentParentInvites(ctx context.Context, parentID int64) ([]core.ParentInvite, error)
	AcceptParentInvite(ctx context.Context, id int64) (bool, error)
	DeclineParentInvite(ctx context.Context, id int64) (bool, error)
}

type ParentStore interface {
	IsLinked(ctx context.Context, parentID, childID int64) (bool, error)
	ListChildren(ctx context.Context, parentID int64) ([]core.User, error)
	ListParents(ctx context.Context, childID int64) ([]core.User, error)
	ListLinks(ctx context.Context) ([]core.ParentChildLink, error)
}

type AlertStore interface {
	CreateAlert(ctx context.Context, a core.Alert) (int64, error)
	CreateAutoAlert(ctx context.Context, a core.Alert, month string) (int64, bool, error)
	GetAlert(ctx context.Context, id int64) (core.Alert, error)
	ListAlerts(ctx context.Context, toUserID int64) ([]core.Alert, error)
	CountUnread(ctx context.Context, toUserID int64) (int, error)
	MarkAlertRead(ctx context.Context, id int64) error
	DeleteAlert(ctx context.Context, id int64) (bool, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u core.User) (int64, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	GetUsers(ctx context.Context, ids []int64) ([]core.User, error)
}

// Store is the full data-access surface.
type Store interface {
	ExpenseStore
	BudgetStore
	MembershipStore
	InviteStore
	ParentStore
	AlertStore
	UserStore
}
