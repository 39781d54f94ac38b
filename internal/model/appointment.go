package model

import (
	"fmt"
	"time"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"   // Waiting for the educator's answer
	AppointmentStatusAccepted  AppointmentStatus = "accepted"  // Confirmed, session may start
	AppointmentStatusRejected  AppointmentStatus = "rejected"  // Declined by the educator
	AppointmentStatusCompleted AppointmentStatus = "completed" // Session finished with the completion PIN
	AppointmentStatusCancelled AppointmentStatus = "cancelled" // Cancelled inside the allowed window
	AppointmentStatusNoShow    AppointmentStatus = "no_show"   // Family absent, reported by the educator
)

// IsTerminal reports whether no further transition can leave the status.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentStatusRejected, AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusAccepted, AppointmentStatusRejected,
		AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

type LocationType string

const (
	LocationTypeOnline LocationType = "online"
	LocationTypeHome   LocationType = "home"
	LocationTypeOffice LocationType = "office"
)

type SettlementStatus string

const (
	SettlementStatusNone    SettlementStatus = "none"
	SettlementStatusPending SettlementStatus = "pending" // Transition committed, payment call not confirmed yet
	SettlementStatusSettled SettlementStatus = "settled"
	SettlementStatusFailed  SettlementStatus = "failed" // rejected by the processor, left to support
)

type InvoiceStatus string

const (
	InvoiceStatusNone    InvoiceStatus = "none"
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusIssued  InvoiceStatus = "issued"
)

type SettlementAction string

const (
	SettlementActionCapture SettlementAction = "capture"
	SettlementActionRefund  SettlementAction = "refund"
)

// TimeOfDay is a wall-clock time expressed in minutes after midnight.
type TimeOfDay int

// ParseTimeOfDay parses "15:04".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", value, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < 24*60
}

type Appointment struct {
	ID           int64        `json:"id"`
	FamilyID     int64        `json:"family_id"`
	EducatorID   int64        `json:"educator_id"`
	ChildID      *int64       `json:"child_id,omitempty"`
	Date         time.Time    `json:"date"` // only year, month and day are significant
	StartTime    TimeOfDay    `json:"start_time"`
	EndTime      TimeOfDay    `json:"end_time"`
	LocationType LocationType `json:"location_type"`
	Address      string       `json:"address,omitempty"`

	Status      AppointmentStatus `json:"status"`
	StartedAt   *time.Time        `json:"started_at,omitempty"` // set once by a successful start PIN
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	CancelledBy PartyRole         `json:"cancelled_by,omitempty"`
	RespondedAt *time.Time        `json:"responded_at,omitempty"`

	// Price is in minor currency units
	Price    int64  `json:"price"`
	Currency string `json:"currency"`

	RefundAmount       int64 `json:"refund_amount"`
	FamilyChargeAmount int64 `json:"family_charge_amount"`
	CompensationAmount int64 `json:"compensation_amount"`
	PlatformFeeBps     int64 `json:"platform_fee_bps"`

	SettlementStatus SettlementStatus `json:"settlement_status"`
	SettlementAction SettlementAction `json:"settlement_action,omitempty"`
	SettlementAmount int64            `json:"settlement_amount"`
	SettledAt        *time.Time       `json:"settled_at,omitempty"`

	// SettlementAttempts counts failed payment calls. The retry loop serves
	// the least tried settlements first.
	SettlementAttempts    int        `json:"settlement_attempts,omitempty"`
	SettlementAttemptedAt *time.Time `json:"settlement_attempted_at,omitempty"`
	SettlementError       string     `json:"settlement_error,omitempty"`

	InvoiceStatus   InvoiceStatus `json:"invoice_status"`
	InvoiceAttempts int           `json:"invoice_attempts,omitempty"`
	InvoicedAt      *time.Time    `json:"invoiced_at,omitempty"`

	StartPinHash    string `json:"-"`
	CompletePinHash string `json:"-"`

	Notes           string `json:"notes,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduledDuration is end_time - start_time, fixed at booking.
func (a *Appointment) ScheduledDuration() time.Duration {
	return time.Duration(a.EndTime-a.StartTime) * time.Minute
}

func (a *Appointment) IsStarted() bool {
	return a.StartedAt != nil
}

// IsParty reports whether the actor is the family or the educator of the appointment.
func (a *Appointment) IsParty(role PartyRole, partyID int64) bool {
	switch role {
	case PartyRoleFamily:
		return a.FamilyID == partyID
	case PartyRoleEducator:
		return a.EducatorID == partyID
	}
	return false
}

// FinancialOutcome is the money effect of a transition. It is stored together
// with the transition that produced it.
type FinancialOutcome struct {
	RefundAmount       int64 `json:"refund_amount"`
	FamilyChargeAmount int64 `json:"family_charge_amount"`
	CompensationAmount int64 `json:"compensation_amount"`
	PlatformFeeAmount  int64 `json:"platform_fee_amount"`
	PlatformFeeBps     int64 `json:"platform_fee_bps"`
}

// PendingSettlement is the payment call owed by a committed transition.
type PendingSettlement struct {
	Action SettlementAction `json:"action"`
	Amount int64            `json:"amount"`
}
