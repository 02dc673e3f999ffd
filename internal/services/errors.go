package services

import (
	"errors"

	"hisab/internal/core"
)

var (
	ErrNotFound           = core.ErrNotFound
	ErrAlreadyPending     = errors.New("an invite is already pending")
	ErrAlreadyMember      = errors.New("user is already a member")
	ErrAlreadyLinked      = errors.New("parent and child are already linked")
	ErrNotAdmin           = errors.New("only group admins can do that")
	ErrNotMember          = errors.New("not a member of this group")
	ErrNotLinked          = errors.New("parent and child are not linked")
	ErrSelfInvite         = errors.New("cannot invite yourself")
	ErrForbidden          = errors.New("forbidden")
	ErrWrongRole          = errors.New("user has the wrong role for this action")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmptyName          = errors.New("name is required")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email")
)
