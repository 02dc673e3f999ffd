// Package events is the in-process change notification bus. Services publish
// after successful mutations; caches, the AMQP bridge and the mailer
// subscribe.
package events

import (
	"context"
	"sync"
	"time"
)

type Type string

const (
	ExpenseChanged    Type = "expense.changed"
	BudgetChanged     Type = "budget.changed"
	MembershipChanged Type = "membership.changed"
	InviteSent        Type = "invite.sent"
	InviteResolved    Type = "invite.resolved"
	AlertSent         Type = "alert.sent"
)

// InviteKind distinguishes the two invite flavours.
type InviteKind string

const (
	GroupInvite  InviteKind = "group"
	ParentInvite InviteKind = "parent"
)

// Event describes one change. Zero ids mean "not applicable".
type Event struct {
	Type    Type
	UserID  int64 // acting or owning user
	GroupID int64

	// TargetID is the invitee, alert recipient or affected member.
	TargetID int64

	InviteID   int64
	InviteKind InviteKind
	Accepted   bool

	At time.Time
}

// Handler receives events synchronously on the publisher's goroutine.
type Handler func(ctx context.Context, e Event)

type subscription struct {
	id      uint64
	types   map[Type]bool // nil means all
	handler Handler
}

// Bus fans events out to subscribers in registration order. A nil *Bus is
// valid and drops everything.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	now    func() time.Time
}

func NewBus() *Bus {
	return &Bus{now: time.Now}
}

// Subscribe registers h for the given types, or for every type when none are
// given. The returned func removes the subscription.
func (b *Bus) Subscribe(h Handler, types ...Type) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, handler: h}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	b.subs = append(b.subs, sub)

	id := sub.id
	return func() { b.remove(id) }
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to matching subscribers. At is filled in when zero.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = b.now()
	}

	b.mu.RLock()
	subs := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.types == nil || s.types[e.Type] {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(ctx, e)
	}
}
