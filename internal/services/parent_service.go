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

// ParentService owns parent-child links, their invites and the messages
// exchanged over a link.
type ParentService struct {
	invites InviteStore
	links   ParentStore
	alerts  AlertStore
	users   UserStore
	bus     *events.Bus
	logger  *log.Logger
}

func NewParentService(invites InviteStore, links ParentStore, alerts AlertStore, users UserStore, bus *events.Bus) *ParentService {
	return &ParentService{
		invites: invites,
		links:   links,
		alerts:  alerts,
		users:   users,
		bus:     bus,
		logger:  log.Component(log.ComponentParents),
	}
}

// SendParentInvite asks childID to accept parentID as a parent.
func (s *ParentService) SendParentInvite(ctx context.Context, parentID, childID int64) (int64, error) {
	if parentID == childID {
		return 0, ErrSelfInvite
	}
	if err := s.requireRole(ctx, parentID, core.UserRoleParent); err != nil {
		return 0, err
	}
	if err := s.requireRole(ctx, childID, core.UserRoleChild); err != nil {
		return 0, err
	}

	linked, err := s.links.IsLinked(ctx, parentID, childID)
	if err != nil {
		return 0, err
	}
	if linked {
		return 0, ErrAlreadyLinked
	}
	pending, err := s.invites.HasPendingParentInvite(ctx, parentID, childID)
	if err != nil {
		return 0, err
	}
	if pending {
		return 0, ErrAlreadyPending
	}

	id, err := s.invites.CreateParentInvite(ctx, parentID, childID)
	if err != nil {
		return 0, fmt.Errorf("create parent invite: %w", err)
	}

	fields := log.NewFields().WithUser(parentID).WithInvite(id, string(events.ParentInvite)).WithOperation(log.OpInvite)
	s.logger.InfoContext(ctx, "Parent invite sent", append(fields.ToSlice(), log.FieldTargetID, childID)...)

	s.bus.Publish(ctx, events.Event{
		Type: events.InviteSent, UserID: parentID, TargetID: childID,
		InviteID: id, InviteKind: events.ParentInvite,
	})
	return id, nil
}

// SendParentInviteByEmail resolves the child by e-mail and sends the invite.
func (s *ParentService) SendParentInviteByEmail(ctx context.Context, parentID int64, email string) (int64, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	return s.SendParentInvite(ctx, parentID, u.ID)
}

func (s *ParentService) requireRole(ctx context.Context, userID int64, role core.UserRole) error {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role != role {
		return ErrWrongRole
	}
	return nil
}

// ListParentInvites returns invites received by childID, newest first.
func (s *ParentService) ListParentInvites(ctx context.Context, childID int64, status core.InviteStatus) ([]core.ParentInvite, error) {
	return s.invites.ListParentInvites(ctx, childID, status)
}

// ListSentParentInvites returns invites sent by parentID, newest first.
func (s *ParentService) ListSentParentInvites(ctx context.Context, parentID int64) ([]core.ParentInvite, error) {
	return s.invites.ListSentParentInvites(ctx, parentID)
}

// AcceptParentInvite accepts a pending invite addressed to actorID and
// links the pair. It returns false when the invite is unknown or resolved.
func (s *ParentService) AcceptParentInvite(ctx context.Context, actorID, inviteID int64) (bool, error) {
	return s.resolve(ctx, actorID, inviteID, true)
}

// DeclineParentInvite declines a pending invite addressed to actorID.
func (s *ParentService) DeclineParentInvite(ctx context.Context, actorID, inviteID int64) (bool, error) {
	return s.resolve(ctx, actorID, inviteID, false)
}

func (s *ParentService) resolve(ctx context.Context, actorID, inviteID int64, accept bool) (bool, error) {
	inv, err := s.invites.GetParentInvite(ctx, inviteID)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if inv.ChildID != actorID {
		return false, ErrForbidden
	}

	var ok bool
	if accept {
		ok, err = s.invites.AcceptParentInvite(ctx, inviteID)
	} else {
		ok, err = s.invites.DeclineParentInvite(ctx, inviteID)
	}
	if err != nil || !ok {
		return false, err
	}

	s.bus.Publish(ctx, events.Event{
		Type: events.InviteResolved, UserID: actorID, TargetID: inv.ParentID,
		InviteID: inviteID, InviteKind: events.ParentInvite, Accepted: accept,
	})
	return true, nil
}

// IsLinked reports whether parentID may view childID.
func (s *ParentService) IsLinked(ctx context.Context, parentID, childID int64) (bool, error) {
	return s.links.IsLinked(ctx, parentID, childID)
}

func (s *ParentService) ListChildren(ctx context.Context, parentID int64) ([]core.User, error) {
	return s.links.ListChildren(ctx, parentID)
}

func (s *ParentService) ListParents(ctx context.Context, childID int64) ([]core.User, error) {
	return s.links.ListParents(ctx, childID)
}

// SendMessage delivers a message over a confirmed link. Parents send
// suggestions to children; children send alerts to parents. The message type
// follows from the direction.
func (s *ParentService) SendMessage(ctx context.Context, fromID, toID int64, message string) (int64, error) {
	var parentID, childID int64
	var typ core.AlertType

	from, err := s.users.GetUser(ctx, fromID)
	if err != nil {
		return 0, err
	}
	switch from.Role {
	case core.UserRoleParent:
		parentID, childID, typ = fromID, toID, core.AlertTypeSuggestion
	case core.UserRoleChild:
		parentID, childID, typ = toID, fromID, core.AlertTypeAlert
	default:
		return 0, ErrWrongRole
	}

	linked, err := s.links.IsLinked(ctx, parentID, childID)
	if err != nil {
		return 0, err
	}
	if !linked {
		return 0, ErrNotLinked
	}

	return s.deliver(ctx, core.Alert{FromUserID: fromID, ToUserID: toID, Type: typ, Message: strings.TrimSpace(message)})
}

func (s *ParentService) deliver(ctx context.Context, a core.Alert) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	id, err := s.alerts.CreateAlert(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("create alert: %w", err)
	}
	s.bus.Publish(ctx, events.Event{Type: events.AlertSent, UserID: a.FromUserID, TargetID: a.ToUserID})
	return id, nil
}

// ListAlerts returns messages received by userID, newest first.
func (s *ParentService) ListAlerts(ctx context.Context, userID int64) ([]core.Alert, error) {
	return s.alerts.ListAlerts(ctx, userID)
}

func (s *ParentService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.alerts.CountUnread(ctx, userID)
}

// MarkRead flags a message addressed to userID as read.
func (s *ParentService) MarkRead(ctx context.Context, userID, alertID int64) error {
	if _, err := s.recipientAlert(ctx, userID, alertID); err != nil {
		return err
	}
	return s.alerts.MarkAlertRead(ctx, alertID)
}

// DeleteAlert removes a message addressed to userID.
func (s *ParentService) DeleteAlert(ctx context.Context, userID, alertID int64) error {
	if _, err := s.recipientAlert(ctx, userID, alertID); err != nil {
		return err
	}
	ok, err := s.alerts.DeleteAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *ParentService) recipientAlert(ctx context.Context, userID, alertID int64) (core.Alert, error) {
	a, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return core.Alert{}, err
	}
	if a.ToUserID != userID {
		return core.Alert{}, ErrForbidden
	}
	return a, nil
}

// SendAutoAlert sends the automatic over-budget alert from a child to one
// of their parents at most once per month. It reports whether a message was
// sent.
func (s *ParentService) SendAutoAlert(ctx context.Context, childID, parentID int64, month, message string) (bool, error) {
	a := core.Alert{FromUserID: childID, ToUserID: parentID, Type: core.AlertTypeAlert, Message: strings.TrimSpace(message)}
	if err := a.Validate(); err != nil {
		return false, err
	}
	_, sent, err := s.alerts.CreateAutoAlert(ctx, a, month)
	if err != nil {
		return false, fmt.Errorf("create auto alert: %w", err)
	}
	if sent {
		s.bus.Publish(ctx, events.Event{Type: events.AlertSent, UserID: childID, TargetID: parentID})
	}
	return sent, nil
}
