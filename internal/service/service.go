// Package service implements the appointment operations: the registry
// transitions, the PIN session gate and the settlement of money effects.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zakariya2002/autisme-connect-sub000/internal/invoice"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

var tracer = otel.Tracer("github.com/zakariya2002/autisme-connect-sub000/internal/service")

// AppointmentStore is the appointment registry. Every transition method is a
// conditional update: it fails with a conflict when the appointment is no
// longer in the state the transition requires.
type AppointmentStore interface {
	Create(ctx context.Context, a *model.Appointment) error
	GetByID(ctx context.Context, id int64) (*model.Appointment, error)
	Accept(ctx context.Context, id int64, at time.Time, startPinHash, completePinHash string) (*model.Appointment, error)
	Reject(ctx context.Context, id int64, at time.Time, reason string) (*model.Appointment, error)
	MarkStarted(ctx context.Context, id int64, at time.Time) (*model.Appointment, error)
	Complete(ctx context.Context, id int64, at time.Time, outcome model.FinancialOutcome, settlement *model.PendingSettlement) (*model.Appointment, error)
	Cancel(ctx context.Context, id int64, at time.Time, by model.PartyRole, outcome model.FinancialOutcome, settlement *model.PendingSettlement) (*model.Appointment, error)
	MarkNoShow(ctx context.Context, id int64, at time.Time, outcome model.FinancialOutcome, settlement *model.PendingSettlement) (*model.Appointment, error)
	MarkSettled(ctx context.Context, id int64, at time.Time) (*model.Appointment, error)
	MarkSettlementFailed(ctx context.Context, id int64, at time.Time, reason string, permanent bool) (*model.Appointment, error)
	ListPendingSettlements(ctx context.Context, limit int) ([]*model.Appointment, error)
	MarkInvoiced(ctx context.Context, id int64, at time.Time) (*model.Appointment, error)
	MarkInvoiceFailed(ctx context.Context, id int64, at time.Time) (*model.Appointment, error)
	ListPendingInvoices(ctx context.Context, limit int) ([]*model.Appointment, error)
}

type PartyStore interface {
	Link(ctx context.Context, link *model.PartyLink) error
	GetByChatID(ctx context.Context, chatID int64) (*model.PartyLink, error)
	GetByParty(ctx context.Context, role model.PartyRole, partyID int64) (*model.PartyLink, error)
}

// EventPublisher delivers events without blocking the caller.
type EventPublisher interface {
	Publish(event model.Event)
}

type InvoiceGenerator interface {
	Generate(ctx context.Context, a *model.Appointment) (*invoice.Invoice, error)
}

func startSpan(ctx context.Context, name string, appointmentID int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.Int64("appointment.id", appointmentID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func eventFor(a *model.Appointment, t model.EventType, at time.Time) model.Event {
	return model.Event{
		Type:          t,
		AppointmentID: a.ID,
		FamilyID:      a.FamilyID,
		EducatorID:    a.EducatorID,
		Currency:      a.Currency,
		OccurredAt:    at,
	}
}
