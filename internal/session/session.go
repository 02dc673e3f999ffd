// Package session carries the authenticated caller through a request.
package session

import (
	"context"

	"hisab/internal/core"
)

// Mode is the context the caller is currently working in.
type Mode string

const (
	ModePersonal Mode = "personal"
	ModeGroup    Mode = "group"
	ModeParent   Mode = "parent"
)

// Session is the active caller. It replaces process-wide "current user"
// state: handlers build one per request and pass it down explicitly.
type Session struct {
	UserID int64
	Name   string
	Role   core.UserRole
	Mode   Mode
	// GroupID is the active group in ModeGroup, zero otherwise.
	GroupID int64
}

// IsParent reports whether the caller registered as a parent.
func (s Session) IsParent() bool {
	return s.Role == core.UserRoleParent
}

// InGroup returns a copy of s switched to the given group.
func (s Session) InGroup(groupID int64) Session {
	s.Mode = ModeGroup
	s.GroupID = groupID
	return s
}

type ctxKey struct{}

// NewContext returns ctx carrying s.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored in ctx, if any.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok && s.UserID > 0
}
