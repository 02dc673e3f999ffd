// Package notify e-mails invitees when an invite is sent.
package notify

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/gomail.v2"

	"hisab/internal/core"
	"hisab/internal/events"
	"hisab/internal/log"
)

// Sender delivers composed messages. *gomail.Dialer implements it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type UserLookup interface {
	GetUser(ctx context.Context, id int64) (core.User, error)
}

type GroupLookup interface {
	GetGroup(ctx context.Context, id int64) (core.Group, error)
}

// SMTPConfig holds the dialer settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Mailer sends invite e-mails in the background.
type Mailer struct {
	sender Sender
	from   string
	users  UserLookup
	groups GroupLookup
	logger *log.Logger
	wg     sync.WaitGroup
}

func NewMailer(sender Sender, from string, users UserLookup, groups GroupLookup) *Mailer {
	return &Mailer{
		sender: sender,
		from:   from,
		users:  users,
		groups: groups,
		logger: log.Component(log.ComponentNotify),
	}
}

// NewSMTPMailer builds a Mailer backed by a gomail dialer.
func NewSMTPMailer(cfg SMTPConfig, users UserLookup, groups GroupLookup) *Mailer {
	return NewMailer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password), cfg.From, users, groups)
}

// Attach subscribes the mailer to invite.sent events.
func (m *Mailer) Attach(bus *events.Bus) (detach func()) {
	return bus.Subscribe(m.OnInviteSent, events.InviteSent)
}

// OnInviteSent composes the invite e-mail and sends it on its own goroutine.
func (m *Mailer) OnInviteSent(ctx context.Context, e events.Event) {
	ctx = context.WithoutCancel(ctx)
	msg, err := m.compose(ctx, e)
	if err != nil {
		m.logger.WarnContext(ctx, "Cannot compose invite e-mail", log.NewFields().WithInvite(e.InviteID, string(e.InviteKind)).WithError(err).ToSlice()...)
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.sender.DialAndSend(msg); err != nil {
			m.logger.ErrorContext(ctx, "Failed to send invite e-mail", log.NewFields().WithInvite(e.InviteID, string(e.InviteKind)).WithError(err).ToSlice()...)
			return
		}
		m.logger.InfoContext(ctx, "Invite e-mail sent", log.NewFields().WithInvite(e.InviteID, string(e.InviteKind)).ToSlice()...)
	}()
}

// Wait blocks until in-flight e-mails are done.
func (m *Mailer) Wait() {
	m.wg.Wait()
}

func (m *Mailer) compose(ctx context.Context, e events.Event) (*gomail.Message, error) {
	invitee, err := m.users.GetUser(ctx, e.TargetID)
	if err != nil {
		return nil, fmt.Errorf("invitee: %w", err)
	}
	inviter, err := m.users.GetUser(ctx, e.UserID)
	if err != nil {
		return nil, fmt.Errorf("inviter: %w", err)
	}

	var subject, body string
	switch e.InviteKind {
	case events.GroupInvite:
		g, err := m.groups.GetGroup(ctx, e.GroupID)
		if err != nil {
			return nil, fmt.Errorf("group: %w", err)
		}
		subject = fmt.Sprintf("%s invited you to %s", inviter.Name, g.Name)
		body = fmt.Sprintf("Hi %s,\n\n%s invited you to join the group %q on hisab.\nSign in to accept or decline the invite.\n",
			invitee.Name, inviter.Name, g.Name)
	case events.ParentInvite:
		subject = fmt.Sprintf("%s wants to link your account", inviter.Name)
		body = fmt.Sprintf("Hi %s,\n\n%s asked to be linked to your hisab account as a parent.\nOnce you accept they can see your spending summary and send you suggestions.\n",
			invitee.Name, inviter.Name)
	default:
		return nil, fmt.Errorf("unknown invite kind %q", e.InviteKind)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetAddressHeader("To", invitee.Email, invitee.Name)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return msg, nil
}
