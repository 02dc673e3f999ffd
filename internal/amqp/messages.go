package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"hisab/internal/events"
)

// EventMessage is the wire form of a change event. It carries ids only;
// consumers read current state from the database.
type EventMessage struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     int64     `json:"user_id,omitempty"`
	GroupID    int64     `json:"group_id,omitempty"`
	TargetID   int64     `json:"target_id,omitempty"`
	InviteID   int64     `json:"invite_id,omitempty"`
	InviteKind string    `json:"invite_kind,omitempty"`
	Accepted   bool      `json:"accepted,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEventMessage wraps e with a fresh message id.
func NewEventMessage(e events.Event) *EventMessage {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	return &EventMessage{
		ID:         uuid.NewString(),
		Type:       string(e.Type),
		UserID:     e.UserID,
		GroupID:    e.GroupID,
		TargetID:   e.TargetID,
		InviteID:   e.InviteID,
		InviteKind: string(e.InviteKind),
		Accepted:   e.Accepted,
		OccurredAt: at.UTC(),
	}
}

// Event converts the message back into a bus event.
func (m *EventMessage) Event() events.Event {
	return events.Event{
		Type:       events.Type(m.Type),
		UserID:     m.UserID,
		GroupID:    m.GroupID,
		TargetID:   m.TargetID,
		InviteID:   m.InviteID,
		InviteKind: events.InviteKind(m.InviteKind),
		Accepted:   m.Accepted,
		At:         m.OccurredAt,
	}
}

func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
