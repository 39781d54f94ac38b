package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zakariya2002/autisme-connect-sub000/internal/apperr"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
	"github.com/zakariya2002/autisme-connect-sub000/internal/repository/base"
)

const appointmentColumns = `
	id, family_id, educator_id, child_id, date, start_time, end_time, location_type, address,
	status, started_at, completed_at, cancelled_at, cancelled_by, responded_at,
	price, currency, refund_amount, family_charge_amount, compensation_amount, platform_fee_bps,
	settlement_status, settlement_action, settlement_amount, settled_at,
	settlement_attempts, settlement_attempted_at, settlement_error,
	invoice_status, invoice_attempts, invoiced_at,
	start_pin_hash, complete_pin_hash, notes, rejection_reason, created_at, updated_at`

// AppointmentRepository is the postgres appointment registry. Every state
// change is a single conditional UPDATE so concurrent callers are arbitrated
// by the row itself.
type AppointmentRepository struct {
	*base.Repository
}

func NewAppointmentRepository(pool *pgxpool.Pool) *AppointmentRepository {
	return &AppointmentRepository{Repository: base.NewRepository(pool)}
}

// Create inserts a pending appointment.
func (r *AppointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			family_id, educator_id, child_id, date, start_time, end_time, location_type, address,
			status, price, currency, settlement_status, invoice_status, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`

	a.Status = model.AppointmentStatusPending
	a.SettlementStatus = model.SettlementStatusNone
	a.InvoiceStatus = model.InvoiceStatusNone

	err := r.QueryRow(
		ctx, query,
		a.FamilyID,
		a.EducatorID,
		a.ChildID,
		a.Date,
		timeOfDayToPg(a.StartTime),
		timeOfDayToPg(a.EndTime),
		a.LocationType,
		a.Address,
		a.Status,
		a.Price,
		a.Currency,
		a.SettlementStatus,
		a.InvoiceStatus,
		a.Notes,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}

	return nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id int64) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	a, err := scanAppointment(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, appointmentNotFound(id)
		}
		return nil, fmt.Errorf("get appointment by id: %w", err)
	}

	return a, nil
}

// Accept moves a pending appointment to accepted and stores the PIN hashes.
func (r *AppointmentRepository) Accept(ctx context.Context, id int64, at time.Time, startPinHash, completePinHash string) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $1, responded_at = $2, start_pin_hash = $3, complete_pin_hash = $4, updated_at = $2
		WHERE id = $5 AND status = $6
	`
	return r.transition(ctx, ActionAccept, id, query,
		model.AppointmentStatusAccepted, at, startPinHash, completePinHash, id, model.AppointmentStatusPending)
}

func (r *AppointmentRepository) Reject(ctx context.Context, id int64, at time.Time, reason string) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $1, responded_at = $2, rejection_reason = $3, updated_at = $2
		WHERE id = $4 AND status = $5
	`
	return r.transition(ctx, ActionReject, id, query,
		model.AppointmentStatusRejected, at, reason, id, model.AppointmentStatusPending)
}

// MarkStarted sets started_at once. A second start, or a start racing with a
// cancellation, finds no row to update.
func (r *AppointmentRepository) MarkStarted(ctx context.Context, id int64, at time.Time) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET started_at = $1, updated_at = $1
		WHERE id = $2 AND status = $3 AND started_at IS NULL
	`
	return r.transition(ctx, ActionStart, id, query, at, id, model.AppointmentStatusAccepted)
}

func (r *AppointmentRepository) Complete(ctx context.Context, id int64, at time.Time, outcome model.FinancialOutcome, settlement *model.PendingSettlement) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $1, completed_at = $2, updated_at = $2,
			refund_amount = $3, family_charge_amount = $4, compensation_amount = $5, platform_fee_bps = $6,
			settlement_status = $7, settlement_action = $8, settlement_amount = $9, invoice_status = $10
		WHERE id = $11 AND status = $12 AND started_at IS NOT NULL
	`
	status, action, amount := settlementColumns(settlement)
	return r.transition(ctx, ActionComplete, id, query,
		model.AppointmentStatusCompleted, at,
		outcome.RefundAmount, outcome.FamilyChargeAmount, outcome.CompensationAmount, outcome.PlatformFeeBps,
		status, action, amount, model.InvoiceStatusPending,
		id, model.AppointmentStatusAccepted)
}

func (r *AppointmentRepository) Cancel(ctx context.Context, id int64, at time.Time, by model.PartyRole, outcome model.FinancialOutcome, settlement *model.PendingSettlement) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $1, cancelled_at = $2, updated_at = $2, cancelled_by = $3,
			refund_amount = $4, family_charge_amount = $5, compensation_amount = $6, platform_fee_bps = $7,
			settlement_status = $8, settlement_action = $9, settlement_amount = $10
		WHERE id = $11 AND status = $12 AND started_at IS NULL
	`
	status, action, amount := settlementColumns(settlement)
	return r.transition(ctx, ActionCancel, id, query,
		model.AppointmentStatusCancelled, at, by,
		outcome.RefundAmount, outcome.FamilyChargeAmount, outcome.CompensationAmount, outcome.PlatformFeeBps,
		status, action, amount,
		id, model.AppointmentStatusAccepted)
}

func (r *AppointmentRepository) MarkNoShow(ctx context.Context, id int64, at time.Time, outcome model.FinancialOutcome, settlement *model.PendingSettlement) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $1, updated_at = $2,
			refund_amount = $3, family_charge_amount = $4, compensation_amount = $5, platform_fee_bps = $6,
			settlement_status = $7, settlement_action = $8, settlement_amount = $9
		WHERE id = $10 AND status = $11 AND started_at IS NULL
	`
	status, action, amount := settlementColumns(settlement)
	return r.transition(ctx, ActionNoShow, id, query,
		model.AppointmentStatusNoShow, at,
		outcome.RefundAmount, outcome.FamilyChargeAmount, outcome.CompensationAmount, outcome.PlatformFeeBps,
		status, action, amount,
		id, model.AppointmentStatusAccepted)
}

// MarkSettled records that the payment call of a pending settlement succeeded.
func (r *AppointmentRepository) MarkSettled(ctx context.Context, id int64, at time.Time) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET settlement_status = $1, settled_at = $2, settlement_error = '', updated_at = $2
		WHERE id = $3 AND settlement_status = $4
		RETURNING ` + appointmentColumns

	return r.settlementUpdate(ctx, id, query,
		model.SettlementStatusSettled, at, id, model.SettlementStatusPending)
}

// MarkSettlementFailed counts a failed payment call. A permanent failure
// moves the settlement to failed, anything else leaves it pending behind the
// settlements tried fewer times.
func (r *AppointmentRepository) MarkSettlementFailed(ctx context.Context, id int64, at time.Time, reason string, permanent bool) (*model.Appointment, error) {
	status := model.SettlementStatusPending
	if permanent {
		status = model.SettlementStatusFailed
	}

	query := `
		UPDATE appointments
		SET settlement_status = $1, settlement_attempts = settlement_attempts + 1,
			settlement_attempted_at = $2, settlement_error = $3, updated_at = $2
		WHERE id = $4 AND settlement_status = $5
		RETURNING ` + appointmentColumns

	return r.settlementUpdate(ctx, id, query,
		status, at, reason, id, model.SettlementStatusPending)
}

func (r *AppointmentRepository) settlementUpdate(ctx context.Context, id int64, query string, args ...any) (*model.Appointment, error) {
	a, err := scanAppointment(r.QueryRow(ctx, query, args...))
	if err == nil {
		return a, nil
	}
	if !base.IsNotFound(err) {
		return nil, fmt.Errorf("update settlement: %w", err)
	}

	var status model.SettlementStatus
	err = r.QueryRow(ctx, `SELECT settlement_status FROM appointments WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, appointmentNotFound(id)
		}
		return nil, fmt.Errorf("load settlement state: %w", err)
	}
	return nil, apperr.Conflict("settlement of appointment %d is %s", id, status)
}

// ListPendingSettlements returns the pending settlements tried the fewest
// times, oldest attempt first, so settlements that keep failing cannot hold
// the head of the queue.
func (r *AppointmentRepository) ListPendingSettlements(ctx context.Context, limit int) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE settlement_status = $1
		ORDER BY settlement_attempts ASC, settlement_attempted_at ASC NULLS FIRST, id ASC
		LIMIT $2
	`
	return r.list(ctx, "list pending settlements", query, model.SettlementStatusPending, limit)
}

// MarkInvoiced records that the invoice of a completed appointment is archived.
func (r *AppointmentRepository) MarkInvoiced(ctx context.Context, id int64, at time.Time) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET invoice_status = $1, invoiced_at = $2, updated_at = $2
		WHERE id = $3 AND invoice_status = $4
		RETURNING ` + appointmentColumns

	return r.invoiceUpdate(ctx, id, query, model.InvoiceStatusIssued, at, id, model.InvoiceStatusPending)
}

func (r *AppointmentRepository) MarkInvoiceFailed(ctx context.Context, id int64, at time.Time) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET invoice_attempts = invoice_attempts + 1, updated_at = $1
		WHERE id = $2 AND invoice_status = $3
		RETURNING ` + appointmentColumns

	return r.invoiceUpdate(ctx, id, query, at, id, model.InvoiceStatusPending)
}

func (r *AppointmentRepository) invoiceUpdate(ctx context.Context, id int64, query string, args ...any) (*model.Appointment, error) {
	a, err := scanAppointment(r.QueryRow(ctx, query, args...))
	if err == nil {
		return a, nil
	}
	if !base.IsNotFound(err) {
		return nil, fmt.Errorf("update invoice state: %w", err)
	}

	var status model.InvoiceStatus
	err = r.QueryRow(ctx, `SELECT invoice_status FROM appointments WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, appointmentNotFound(id)
		}
		return nil, fmt.Errorf("load invoice state: %w", err)
	}
	return nil, apperr.Conflict("invoice of appointment %d is %s", id, status)
}

// ListPendingInvoices returns completed appointments whose invoice is still
// owed once their payment is settled or not needed.
func (r *AppointmentRepository) ListPendingInvoices(ctx context.Context, limit int) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE invoice_status = $1 AND settlement_status IN ($2, $3)
		ORDER BY invoice_attempts ASC, id ASC
		LIMIT $4
	`
	return r.list(ctx, "list pending invoices", query,
		model.InvoiceStatusPending, model.SettlementStatusNone, model.SettlementStatusSettled, limit)
}

func (r *AppointmentRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Appointment, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var appointments []*model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return appointments, nil
}

// transition runs a conditional update. When no row matches it reloads the
// row to tell a missing appointment from a lost race or a forbidden edge.
func (r *AppointmentRepository) transition(ctx context.Context, action Action, id int64, query string, args ...any) (*model.Appointment, error) {
	a, err := scanAppointment(r.QueryRow(ctx, query+" RETURNING "+appointmentColumns, args...))
	if err == nil {
		return a, nil
	}
	if !base.IsNotFound(err) {
		return nil, fmt.Errorf("%s appointment: %w", action, err)
	}

	var (
		status  model.AppointmentStatus
		started bool
	)
	err = r.QueryRow(ctx, `SELECT status, started_at IS NOT NULL FROM appointments WHERE id = $1`, id).Scan(&status, &started)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, appointmentNotFound(id)
		}
		return nil, fmt.Errorf("load appointment state: %w", err)
	}
	return nil, transitionConflict(action, status, started)
}

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var (
		a          model.Appointment
		start, end pgtype.Time
	)
	err := row.Scan(
		&a.ID,
		&a.FamilyID,
		&a.EducatorID,
		&a.ChildID,
		&a.Date,
		&start,
		&end,
		&a.LocationType,
		&a.Address,
		&a.Status,
		&a.StartedAt,
		&a.CompletedAt,
		&a.CancelledAt,
		&a.CancelledBy,
		&a.RespondedAt,
		&a.Price,
		&a.Currency,
		&a.RefundAmount,
		&a.FamilyChargeAmount,
		&a.CompensationAmount,
		&a.PlatformFeeBps,
		&a.SettlementStatus,
		&a.SettlementAction,
		&a.SettlementAmount,
		&a.SettledAt,
		&a.SettlementAttempts,
		&a.SettlementAttemptedAt,
		&a.SettlementError,
		&a.InvoiceStatus,
		&a.InvoiceAttempts,
		&a.InvoicedAt,
		&a.StartPinHash,
		&a.CompletePinHash,
		&a.Notes,
		&a.RejectionReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.StartTime = timeOfDayFromPg(start)
	a.EndTime = timeOfDayFromPg(end)
	return &a, nil
}

func settlementColumns(s *model.PendingSettlement) (model.SettlementStatus, model.SettlementAction, int64) {
	if s == nil {
		return model.SettlementStatusNone, "", 0
	}
	return model.SettlementStatusPending, s.Action, s.Amount
}

const microsecondsPerMinute = int64(time.Minute / time.Microsecond)

func timeOfDayToPg(t model.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * microsecondsPerMinute, Valid: true}
}

func timeOfDayFromPg(t pgtype.Time) model.TimeOfDay {
	return model.TimeOfDay(t.Microseconds / microsecondsPerMinute)
}
