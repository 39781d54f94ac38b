package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/zakariya2002/autisme-connect-sub000/internal/apperr"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
	"github.com/zakariya2002/autisme-connect-sub000/internal/payment"
)

// Settler performs the payment call owed by a committed transition and
// issues the invoice of a completed session. The transition already stored
// settlement_status = pending; Settle moves it to settled once the processor
// confirms. Calls are idempotent per appointment and action, so a retry after
// an unknown outcome is safe.
type Settler struct {
	store     AppointmentStore
	processor payment.Processor
	invoices  InvoiceGenerator
	events    EventPublisher
	now       func() time.Time
	logger    *zap.Logger
}

func NewSettler(
	store AppointmentStore,
	processor payment.Processor,
	invoices InvoiceGenerator,
	events EventPublisher,
	now func() time.Time,
	logger *zap.Logger,
) *Settler {
	if now == nil {
		now = time.Now
	}
	return &Settler{
		store:     store,
		processor: processor,
		invoices:  invoices,
		events:    events,
		now:       now,
		logger:    logger,
	}
}

// Settle returns the appointment as stored after the attempt. A processor
// failure is counted on the row and returned as an external service error.
// A rejection by the processor ends the retries with a failed settlement.
// Once nothing is owed, the invoice of a completed appointment is issued.
func (s *Settler) Settle(ctx context.Context, a *model.Appointment) (result *model.Appointment, err error) {
	ctx, span := startSpan(ctx, "Settler.Settle", a.ID)
	defer func() { endSpan(span, err) }()

	if a.SettlementStatus == model.SettlementStatusPending {
		a, err = s.pay(ctx, a)
		if err != nil {
			return a, err
		}
	}

	return s.issueInvoice(ctx, a), nil
}

func (s *Settler) pay(ctx context.Context, a *model.Appointment) (*model.Appointment, error) {
	req := payment.Request{
		AppointmentID: a.ID,
		Action:        a.SettlementAction,
		Amount:        a.SettlementAmount,
		Currency:      a.Currency,
	}
	receipt, err := payment.Execute(ctx, s.processor, req)
	if err != nil {
		return s.recordFailure(ctx, a, req, err)
	}

	settled, err := s.store.MarkSettled(ctx, a.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			// settled concurrently by the retry loop
			return s.store.GetByID(ctx, a.ID)
		}
		return a, err
	}

	s.logger.Info("Settlement completed",
		zap.Int64("appointment_id", a.ID),
		zap.String("action", string(req.Action)),
		zap.Int64("amount", req.Amount),
		zap.String("receipt", receipt.ID),
	)

	event := eventFor(settled, model.EventSettlementCompleted, s.now().UTC())
	event.Amount = settled.SettlementAmount
	s.events.Publish(event)

	return settled, nil
}

func (s *Settler) recordFailure(ctx context.Context, a *model.Appointment, req payment.Request, cause error) (*model.Appointment, error) {
	permanent := errors.Is(cause, payment.ErrRejected)
	now := s.now().UTC()

	fields := []zap.Field{
		zap.Int64("appointment_id", a.ID),
		zap.String("action", string(req.Action)),
		zap.Int64("amount", req.Amount),
		zap.Error(cause),
	}
	if permanent {
		s.logger.Error("Settlement rejected by processor", fields...)
	} else {
		s.logger.Warn("Settlement failed, will retry", fields...)
	}

	updated, err := s.store.MarkSettlementFailed(ctx, a.ID, now, cause.Error(), permanent)
	if err != nil {
		s.logger.Error("Failed to record settlement attempt",
			zap.Int64("appointment_id", a.ID),
			zap.Error(err),
		)
		updated = a
	}

	if permanent && updated.SettlementStatus == model.SettlementStatusFailed {
		event := eventFor(updated, model.EventSettlementFailed, now)
		event.Amount = updated.SettlementAmount
		s.events.Publish(event)
	}

	return updated, apperr.External(cause, "payment %s failed", req.Action)
}

// issueInvoice archives the invoice owed by a completed appointment. A
// failure is counted and left to the retry loop.
func (s *Settler) issueInvoice(ctx context.Context, a *model.Appointment) *model.Appointment {
	if s.invoices == nil || a.InvoiceStatus != model.InvoiceStatusPending {
		return a
	}
	if a.SettlementStatus != model.SettlementStatusNone && a.SettlementStatus != model.SettlementStatusSettled {
		return a
	}

	if _, err := s.invoices.Generate(ctx, a); err != nil {
		s.logger.Error("Failed to generate invoice, will retry",
			zap.Int64("appointment_id", a.ID),
			zap.Int("attempt", a.InvoiceAttempts+1),
			zap.Error(err),
		)
		if updated, err := s.store.MarkInvoiceFailed(ctx, a.ID, s.now().UTC()); err == nil {
			return updated
		}
		return a
	}

	invoiced, err := s.store.MarkInvoiced(ctx, a.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			if current, err := s.store.GetByID(ctx, a.ID); err == nil {
				return current
			}
		}
		s.logger.Error("Failed to record invoice", zap.Int64("appointment_id", a.ID), zap.Error(err))
		return a
	}
	return invoiced
}

// RetryPending settles up to limit pending appointments, then issues up to
// limit owed invoices. It returns how many appointments were brought up to
// date.
func (s *Settler) RetryPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.store.ListPendingSettlements(ctx, limit)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, a := range pending {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := s.Settle(ctx, a); err != nil {
			continue
		}
		done++
	}

	if s.invoices == nil {
		return done, nil
	}

	owed, err := s.store.ListPendingInvoices(ctx, limit)
	if err != nil {
		return done, err
	}
	for _, a := range owed {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if s.issueInvoice(ctx, a).InvoiceStatus == model.InvoiceStatusIssued {
			done++
		}
	}
	return done, nil
}
