package model

import "time"

type EventType string

const (
	EventAppointmentAccepted  EventType = "appointment.accepted"
	EventAppointmentRejected  EventType = "appointment.rejected"
	EventSessionStarted       EventType = "session.started"
	EventSessionCompleted     EventType = "session.completed"
	EventAppointmentCancelled EventType = "appointment.cancelled"
	EventAppointmentNoShow    EventType = "appointment.no_show"
	EventSettlementCompleted  EventType = "settlement.completed"
	EventSettlementFailed     EventType = "settlement.failed"
)

// Event is published fire-and-forget after a committed transition.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	AppointmentID int64     `json:"appointment_id"`
	FamilyID      int64     `json:"family_id"`
	EducatorID    int64     `json:"educator_id"`
	Amount        int64     `json:"amount,omitempty"`       // charged or refunded to the family
	Compensation  int64     `json:"compensation,omitempty"` // paid to the educator
	Currency      string    `json:"currency,omitempty"`
	Actor         PartyRole `json:"actor,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
