package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hisab/internal/core"
	"hisab/internal/events"
	"hisab/internal/log"
)

// CreatorRole is the role a group creator is seeded with.
const CreatorRole = core.RoleAdmin

// MembershipService owns groups, their members and group invites.
type MembershipService struct {
	groups  MembershipStore
	invites InviteStore
	users   UserStore
	bus     *events.Bus
	logger  *log.Logger
}

func NewMembershipService(groups MembershipStore, invites InviteStore, users UserStore, bus *events.Bus) *MembershipService {
	return &MembershipService{
		groups:  groups,
		invites: invites,
		users:   users,
		bus:     bus,
		logger:  log.Component(log.ComponentGroups),
	}
}

// CreateGroup creates a group with creatorID as its first member.
func (s *MembershipService) CreateGroup(ctx context.Context, creatorID int64, name string) (core.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Group{}, ErrEmptyName
	}
	g, err := s.groups.CreateGroup(ctx, name, creatorID, CreatorRole)
	if err != nil {
		return core.Group{}, fmt.Errorf("create group: %w", err)
	}
	s.bus.Publish(ctx, events.Event{Type: events.MembershipChanged, UserID: creatorID, GroupID: g.ID, TargetID: creatorID})
	return g, nil
}

// GetGroup returns a group the caller belongs to.
func (s *MembershipService) GetGroup(ctx context.Context, actorID, groupID int64) (core.Group, error) {
	if err := s.requireMember(ctx, groupID, actorID); err != nil {
		return core.Group{}, err
	}
	return s.groups.GetGroup(ctx, groupID)
}

// IsAdmin reports whether userID holds the admin role in groupID.
func (s *MembershipService) IsAdmin(ctx context.Context, groupID, userID int64) (bool, error) {
	m, ok, err := s.groups.GetMembership(ctx, groupID, userID)
	if err != nil || !ok {
		return false, err
	}
	return m.Role == core.RoleAdmin, nil
}

// IsMember reports whether userID belongs to groupID.
func (s *MembershipService) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	_, ok, err := s.groups.GetMembership(ctx, groupID, userID)
	return ok, err
}

func (s *MembershipService) requireMember(ctx context.Context, groupID, userID int64) error {
	ok, err := s.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

func (s *MembershipService) requireAdmin(ctx context.Context, groupID, userID int64) error {
	ok, err := s.IsAdmin(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAdmin
	}
	return nil
}

// ListUserGroups returns the groups userID belongs to.
func (s *MembershipService) ListUserGroups(ctx context.Context, userID int64) ([]core.Group, error) {
	return s.groups.ListUserGroups(ctx, userID)
}

// ListMembers returns the members of a group the caller belongs to.
func (s *MembershipService) ListMembers(ctx context.Context, actorID, groupID int64) ([]core.GroupMember, error) {
	if err := s.requireMember(ctx, groupID, actorID); err != nil {
		return nil, err
	}
	return s.groups.ListMembers(ctx, groupID)
}

// AddMember adds userID directly, bypassing the invite flow. Only admins
// may do this.
func (s *MembershipService) AddMember(ctx context.Context, actorID, groupID, userID int64) error {
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return err
	}
	added, err := s.groups.AddMember(ctx, groupID, userID, core.RoleMember)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if !added {
		return ErrAlreadyMember
	}
	s.bus.Publish(ctx, events.Event{Type: events.MembershipChanged, UserID: actorID, GroupID: groupID, TargetID: userID})
	return nil
}

// RemoveMember removes userID from groupID. Admins may remove anyone; other
// members may only remove themselves. It reports whether the group was
// deleted because nobody was left.
func (s *MembershipService) RemoveMember(ctx context.Context, actorID, groupID, userID int64) (bool, error) {
	if actorID != userID {
		if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
			return false, err
		}
	}
	return s.remove(ctx, actorID, groupID, userID)
}

// LeaveGroup removes userID from groupID. Leaving as the last member deletes
// the group; its expenses are kept.
func (s *MembershipService) LeaveGroup(ctx context.Context, groupID, userID int64) (bool, error) {
	return s.remove(ctx, userID, groupID, userID)
}

func (s *MembershipService) remove(ctx context.Context, actorID, groupID, userID int64) (bool, error) {
	removed, deleted, err := s.groups.RemoveMember(ctx, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("remove member: %w", err)
	}
	if !removed {
		return false, ErrNotMember
	}

	fields := log.NewFields().WithUser(userID).WithGroup(groupID).WithOperation(log.OpLeave)
	s.logger.InfoContext(ctx, "Member removed", append(fields.ToSlice(), "group_deleted", deleted)...)

	s.bus.Publish(ctx, events.Event{Type: events.MembershipChanged, UserID: actorID, GroupID: groupID, TargetID: userID})
	return deleted, nil
}

// SendGroupInvite invites inviteeID to groupID on behalf of an admin.
//
// The member and pending checks are separate reads before the insert, so
// two concurrent sends can both succeed.
func (s *MembershipService) SendGroupInvite(ctx context.Context, inviterID, groupID, inviteeID int64) (int64, error) {
	if inviterID == inviteeID {
		return 0, ErrSelfInvite
	}
	if err := s.requireAdmin(ctx, groupID, inviterID); err != nil {
		return 0, err
	}
	if _, err := s.users.GetUser(ctx, inviteeID); err != nil {
		return 0, err
	}

	member, err := s.IsMember(ctx, groupID, inviteeID)
	if err != nil {
		return 0, err
	}
	if member {
		return 0, ErrAlreadyMember
	}
	pending, err := s.invites.HasPendingGroupInvite(ctx, groupID, inviteeID)
	if err != nil {
		return 0, err
	}
	if pending {
		return 0, ErrAlreadyPending
	}

	id, err := s.invites.CreateGroupInvite(ctx, groupID, inviterID, inviteeID)
	if err != nil {
		return 0, fmt.Errorf("create group invite: %w", err)
	}

	fields := log.NewFields().WithUser(inviterID).WithGroup(groupID).WithInvite(id, string(events.GroupInvite)).WithOperation(log.OpInvite)
	s.logger.InfoContext(ctx, "Group invite sent", fields.ToSlice()...)

	s.bus.Publish(ctx, events.Event{
		Type: events.InviteSent, UserID: inviterID, GroupID: groupID, TargetID: inviteeID,
		InviteID: id, InviteKind: events.GroupInvite,
	})
	return id, nil
}

// SendGroupInviteByEmail resolves the invitee by e-mail and sends the invite.
func (s *MembershipService) SendGroupInviteByEmail(ctx context.Context, inviterID, groupID int64, email string) (int64, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	return s.SendGroupInvite(ctx, inviterID, groupID, u.ID)
}

// ListGroupInvites returns invites addressed to userID, newest first.
func (s *MembershipService) ListGroupInvites(ctx context.Context, userID int64, status core.InviteStatus) ([]core.GroupInvite, error) {
	return s.invites.ListGroupInvites(ctx, userID, status)
}

// AcceptGroupInvite accepts a pending invite addressed to actorID. It
// returns false when the invite is unknown or already resolved.
func (s *MembershipService) AcceptGroupInvite(ctx context.Context, actorID, inviteID int64) (bool, error) {
	return s.resolve(ctx, actorID, inviteID, true)
}

// DeclineGroupInvite declines a pending invite addressed to actorID.
func (s *MembershipService) DeclineGroupInvite(ctx context.Context, actorID, inviteID int64) (bool, error) {
	return s.resolve(ctx, actorID, inviteID, false)
}

func (s *MembershipService) resolve(ctx context.Context, actorID, inviteID int64, accept bool) (bool, error) {
	inv, err := s.invites.GetGroupInvite(ctx, inviteID)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if inv.InviteeID != actorID {
		return false, ErrForbidden
	}

	var ok bool
	if accept {
		ok, err = s.invites.AcceptGroupInvite(ctx, inviteID)
	} else {
		ok, err = s.invites.DeclineGroupInvite(ctx, inviteID)
	}
	if err != nil || !ok {
		return false, err
	}

	s.bus.Publish(ctx, events.Event{
		Type: events.InviteResolved, UserID: actorID, GroupID: inv.GroupID, TargetID: inv.InviterID,
		InviteID: inviteID, InviteKind: events.GroupInvite, Accepted: accept,
	})
	if accept {
		s.bus.Publish(ctx, events.Event{Type: events.MembershipChanged, UserID: actorID, GroupID: inv.GroupID, TargetID: actorID})
	}
	return true, nil
}
