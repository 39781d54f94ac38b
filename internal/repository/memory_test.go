package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakariya2002/autisme-connect-sub000/internal/apperr"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

var at = time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)

func acceptedAppointment(t *testing.T, s *MemoryStore) *model.Appointment {
	t.Helper()
	ctx := context.Background()
	a := &model.Appointment{
		FamilyID:     1,
		EducatorID:   2,
		Date:         time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartTime:    14 * 60,
		EndTime:      15 * 60,
		LocationType: model.LocationTypeHome,
		Price:        10000,
		Currency:     "EUR",
	}
	require.NoError(t, s.Create(ctx, a))
	accepted, err := s.Accept(ctx, a.ID, at, "start-hash", "complete-hash")
	require.NoError(t, err)
	return accepted
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	a := acceptedAppointment(t, s)

	got, err := s.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusAccepted, got.Status)
	assert.Equal(t, "start-hash", got.StartPinHash)

	_, err = s.GetByID(context.Background(), 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryStoreStartOnlyOnce(t *testing.T) {
	s := NewMemoryStore()
	a := acceptedAppointment(t, s)

	started, err := s.MarkStarted(context.Background(), a.ID, at)
	require.NoError(t, err)
	require.NotNil(t, started.StartedAt)

	_, err = s.MarkStarted(context.Background(), a.ID, at.Add(time.Minute))
	assert.ErrorIs(t, err, apperr.ErrConflict)

	got, _ := s.GetByID(context.Background(), a.ID)
	assert.True(t, got.StartedAt.Equal(at))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	a := acceptedAppointment(t, s)

	got, _ := s.GetByID(context.Background(), a.ID)
	got.Status = model.AppointmentStatusCancelled

	again, _ := s.GetByID(context.Background(), a.ID)
	assert.Equal(t, model.AppointmentStatusAccepted, again.Status)
}

func TestMemoryStoreCancelRecordsOutcome(t *testing.T) {
	s := NewMemoryStore()
	a := acceptedAppointment(t, s)

	outcome := model.FinancialOutcome{RefundAmount: 10000, PlatformFeeBps: 1200}
	settlement := &model.PendingSettlement{Action: model.SettlementActionRefund, Amount: 10000}
	got, err := s.Cancel(context.Background(), a.ID, at, model.PartyRoleFamily, outcome, settlement)
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusCancelled, got.Status)
	assert.Equal(t, int64(10000), got.RefundAmount)
	assert.Equal(t, model.SettlementStatusPending, got.SettlementStatus)
	assert.Equal(t, model.SettlementActionRefund, got.SettlementAction)
	assert.Equal(t, model.PartyRoleFamily, got.CancelledBy)

	pending, err := s.ListPendingSettlements(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	settled, err := s.MarkSettled(context.Background(), a.ID, at)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusSettled, settled.SettlementStatus)

	_, err = s.MarkSettled(context.Background(), a.ID, at)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestMemoryStoreCancelAfterStartConflicts(t *testing.T) {
	s := NewMemoryStore()
	a := acceptedAppointment(t, s)

	_, err := s.MarkStarted(context.Background(), a.ID, at)
	require.NoError(t, err)

	_, err = s.Cancel(context.Background(), a.ID, at, model.PartyRoleFamily, model.FinancialOutcome{}, nil)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = s.MarkNoShow(context.Background(), a.ID, at, model.FinancialOutcome{}, nil)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestMemoryStoreCancelRacesStart(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := NewMemoryStore()
		a := acceptedAppointment(t, s)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = s.Cancel(context.Background(), a.ID, at, model.PartyRoleFamily, model.FinancialOutcome{RefundAmount: a.Price}, nil)
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = s.MarkStarted(context.Background(), a.ID, at)
		}()
		wg.Wait()

		successes := 0
		for _, err := range errs {
			if err == nil {
				successes++
				continue
			}
			require.True(t, errors.Is(err, apperr.ErrConflict), "unexpected error %v", err)
		}
		require.Equal(t, 1, successes)

		final, _ := s.GetByID(context.Background(), a.ID)
		if errs[0] == nil {
			assert.Equal(t, model.AppointmentStatusCancelled, final.Status)
			assert.Nil(t, final.StartedAt)
		} else {
			assert.Equal(t, model.AppointmentStatusAccepted, final.Status)
			assert.NotNil(t, final.StartedAt)
		}
	}
}

func TestMemoryStorePartyLinks(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	link := &model.PartyLink{Role: model.PartyRoleEducator, PartyID: 2, TelegramChatID: 500}
	require.NoError(t, s.Link(ctx, link))
	assert.NotZero(t, link.ID)

	got, err := s.GetByChatID(ctx, 500)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.PartyID)

	err = s.Link(ctx, &model.PartyLink{Role: model.PartyRoleFamily, PartyID: 1, TelegramChatID: 500})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	missing, err := s.GetByParty(ctx, model.PartyRoleFamily, 1)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStorePendingSettlementsServeLeastTriedFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	refund := &model.PendingSettlement{Action: model.SettlementActionRefund, Amount: 10000}

	var ids []int64
	for i := 0; i < 3; i++ {
		a := acceptedAppointment(t, s)
		_, err := s.Cancel(ctx, a.ID, at, model.PartyRoleFamily, model.FinancialOutcome{RefundAmount: 10000}, refund)
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	failed, err := s.MarkSettlementFailed(ctx, ids[0], at, "timeout", false)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusPending, failed.SettlementStatus)
	assert.Equal(t, 1, failed.SettlementAttempts)
	assert.Equal(t, "timeout", failed.SettlementError)

	pending, err := s.ListPendingSettlements(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[1], pending[0].ID)
	assert.Equal(t, ids[2], pending[1].ID)

	rejected, err := s.MarkSettlementFailed(ctx, ids[1], at, "card declined", true)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusFailed, rejected.SettlementStatus)

	_, err = s.MarkSettled(ctx, ids[1], at)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	pending, err = s.ListPendingSettlements(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[2], pending[0].ID)
	assert.Equal(t, ids[0], pending[1].ID)
}

func TestMemoryStoreInvoiceOwedAfterSettlement(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := acceptedAppointment(t, s)

	_, err := s.MarkStarted(ctx, a.ID, at)
	require.NoError(t, err)
	capture := &model.PendingSettlement{Action: model.SettlementActionCapture, Amount: 10000}
	completed, err := s.Complete(ctx, a.ID, at, model.FinancialOutcome{FamilyChargeAmount: 10000}, capture)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPending, completed.InvoiceStatus)

	owed, err := s.ListPendingInvoices(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, owed, "invoice waits for the capture")

	_, err = s.MarkSettled(ctx, a.ID, at)
	require.NoError(t, err)

	owed, err = s.ListPendingInvoices(ctx, 10)
	require.NoError(t, err)
	require.Len(t, owed, 1)

	retried, err := s.MarkInvoiceFailed(ctx, a.ID, at)
	require.NoError(t, err)
	assert.Equal(t, 1, retried.InvoiceAttempts)

	issued, err := s.MarkInvoiced(ctx, a.ID, at)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusIssued, issued.InvoiceStatus)

	_, err = s.MarkInvoiced(ctx, a.ID, at)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}
