package service

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
	"github.com/zakariya2002/autisme-connect-sub000/internal/payment"
)

func TestStartSessionSetsStartedAtOnce(t *testing.T) {
	env := newTestEnv(t)
	res := env.accepted(t)
	ctx := context.Background()

	env.clock.Set(sessionStart.Add(5 * time.Minute))
	out, err := env.gate.StartSession(ctx, educator, res.Appointment.ID, res.StartPin)
	require.NoError(t, err)
	assert.True(t, out.Success)
	require.NotNil(t, out.Appointment.StartedAt)
	assert.True(t, out.Appointment.StartedAt.Equal(sessionStart.Add(5*time.Minute)))

	env.clock.Set(sessionStart.Add(10 * time.Minute))
	_, err = env.gate.StartSession(ctx, educator, res.Appointment.ID, res.StartPin)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	stored, _ := env.store.GetByID(ctx, res.Appointment.ID)
	assert.True(t, stored.StartedAt.Equal(sessionStart.Add(5*time.Minute)))
	assert.Equal(t, model.AppointmentStatusAccepted, stored.Status)
}

func TestStartSessionRequiresAssignedEducator(t *testing.T) {
	env := newTestEnv(t)
	res := env.accepted(t)

	_, err := env.gate.StartSession(context.Background(), family, res.Appointment.ID, res.StartPin)
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	other := model.Actor{Role: model.PartyRoleEducator, ID: 3}
	_, err = env.gate.StartSession(context.Background(), other, res.Appointment.ID, res.StartPin)
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
}

func TestStartSessionAfterEndIsRejected(t *testing.T) {
	env := newTestEnv(t)
	res := env.accepted(t)

	env.clock.Set(sessionEnd)
	_, err := env.gate.StartSession(context.Background(), educator, res.Appointment.ID, res.StartPin)
	require.NoError(t, err)

	env2 := newTestEnv(t)
	res2 := env2.accepted(t)
	env2.clock.Set(sessionEnd.Add(time.Second))
	_, err = env2.gate.StartSession(context.Background(), educator, res2.Appointment.ID, res2.StartPin)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStartSessionOnPendingConflicts(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.svc.Create(context.Background(), family, defaultInput())
	require.NoError(t, err)

	_, err = env.gate.StartSession(context.Background(), educator, a.ID, "1234")
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestWrongPinCountsDownAndLocks(t *testing.T) {
	env := newTestEnv(t)
	res := env.accepted(t)
	ctx := context.Background()
	bad := wrongPin(res.StartPin)

	for want := 4; want >= 1; want-- {
		_, err := env.gate.StartSession(ctx, educator, res.Appointment.ID, bad)
		require.ErrorIs(t, err, apperr.ErrValidation)
		e, _ := apperr.As(err)
		require.NotNil(t, e.AttemptsLeft)
		assert.Equal(t, want, *e.AttemptsLeft)
		assert.False(t, e.Locked)
	}

	_, err := env.gate.StartSession(ctx, educator, res.Appointment.ID, bad)
	e, _ := apperr.As(err)
	require.NotNil(t, e)
	assert.Equal(t, 0, *e.AttemptsLeft)
	assert.True(t, e.Locked)

	// the right PIN no longer helps
	_, err = env.gate.StartSession(ctx, educator, res.Appointment.ID, res.StartPin)
	e, _ = apperr.As(err)
	require.NotNil(t, e)
	assert.True(t, e.Locked)

	state, err := env.gate.Attempts(ctx, res.Appointment.ID, model.PinModeStart)
	require.NoError(t, err)
	assert.True(t, state.Locked())

	// the completion PIN has its own counter
	complete, err := env.gate.Attempts(ctx, res.Appointment.ID, model.PinModeComplete)
	require.NoError(t, err)
	assert.Equal(t, 0, complete.Attempts)

	require.NoError(t, env.gate.UnlockPin(ctx, res.Appointment.ID, model.PinModeStart))
	out, err := env.gate.StartSession(ctx, educator, res.Appointment.ID, res.StartPin)
	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestCorrectPinDoesNotConsumeAttempts(t *testing.T) {
	env := newTestEnv(t)
	res := env.accepted(t)
	ctx := context.Background()

	_, err := env.gate.StartSession(ctx, educator, res.Appointment.ID, wrongPin(res.StartPin))
	require.Error(t, err)
	_, err = env.gate.StartSession(ctx, educator, res.Appointment.ID, res.StartPin)
	require.NoError(t, err)

	state, _ := env.gate.Attempts(ctx, res.Appointment.ID, model.PinModeStart)
	assert.Equal(t, 1, state.Attempts)
}

func TestMalformedPinIsNotCounted(t *testing.T) {
	env := newTestEnv(t)
	res := env.accepted(t)

	_, err := env.gate.StartSession(context.Background(), educator, res.Appointment.ID, "12a4")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	state, _ := env.gate.Attempts(context.Background(), res.Appointment.ID, model.PinModeStart)
	assert.Equal(t, 0, state.Attempts)
}

func TestUnlockPinValidates(t *testing.T) {
	env := newTestEnv(t)
	res := env.accepted(t)

	assert.ErrorIs(t, env.gate.UnlockPin(context.Background(), res.Appointment.ID, "middle"), apperr.ErrValidation)
	assert.ErrorIs(t, env.gate.UnlockPin(context.Background(), 404, model.PinModeStart), apperr.ErrNotFound)
}

func TestCompleteSessionBoundary(t *testing.T) {
	env := newTestEnv(t)
	res := env.started(t)
	ctx := context.Background()

	env.clock.Set(sessionStart.Add(time.Hour - time.Second))
	_, err := env.gate.CompleteSession(ctx, educator, res.Appointment.ID, res.CompletePin)
	require.ErrorIs(t, err, apperr.ErrValidation)
	e, _ := apperr.As(err)
	assert.Equal(t, 1, e.MinutesRemaining)

	// a premature attempt does not count against the PIN
	state, _ := env.gate.Attempts(ctx, res.Appointment.ID, model.PinModeComplete)
	assert.Equal(t, 0, state.Attempts)

	env.clock.Set(sessionStart.Add(time.Hour))
	out, err := env.gate.CompleteSession(ctx, educator, res.Appointment.ID, res.CompletePin)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.False(t, out.SettlementPending)
	assert.Equal(t, model.AppointmentStatusCompleted, out.Appointment.Status)
	assert.Equal(t, model.SettlementStatusSettled, out.Appointment.SettlementStatus)
	assert.Equal(t, int64(8800), out.Appointment.CompensationAmount)

	calls := env.processor.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, model.SettlementActionCapture, calls[0].Action)
	assert.Equal(t, int64(10000), calls[0].Amount)
	assert.Equal(t, []int64{res.Appointment.ID}, env.invoices.generated)

	assert.Equal(t, []model.EventType{
		model.EventAppointmentAccepted,
		model.EventSessionStarted,
		model.EventSessionCompleted,
		model.EventSettlementCompleted,
	}, env.events.types())

	_, err = env.gate.CompleteSession(ctx, educator, res.Appointment.ID, res.CompletePin)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCompleteRequiresStart(t *testing.T) {
	env := newTestEnv(t)
	res := env.accepted(t)

	env.clock.Set(sessionEnd)
	_, err := env.gate.CompleteSession(context.Background(), educator, res.Appointment.ID, res.CompletePin)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCompleteUsesCompletionPin(t *testing.T) {
	env := newTestEnv(t)
	res := env.started(t)

	env.clock.Set(sessionEnd)
	if res.StartPin != res.CompletePin {
		_, err := env.gate.CompleteSession(context.Background(), educator, res.Appointment.ID, res.StartPin)
		require.ErrorIs(t, err, apperr.ErrValidation)
	}

	state, _ := env.gate.Attempts(context.Background(), res.Appointment.ID, model.PinModeStart)
	assert.Equal(t, 0, state.Attempts)
}

func TestCompleteWithCaptureFailureLeavesExplicitPendingSettlement(t *testing.T) {
	env := newTestEnv(t)
	res := env.started(t)

	env.processor.captureFn = func(ctx context.Context, req payment.Request) (*payment.Receipt, error) {
		return nil, errors.New("timeout")
	}
	env.clock.Set(sessionEnd)
	out, err := env.gate.CompleteSession(context.Background(), educator, res.Appointment.ID, res.CompletePin)
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.True(t, out.SettlementPending)
	assert.Equal(t, model.AppointmentStatusCompleted, out.Appointment.Status)
	assert.Equal(t, model.SettlementStatusPending, out.Appointment.SettlementStatus)
	assert.Empty(t, env.invoices.generated)

	env.processor.captureFn = nil
	_, err = env.settler.RetryPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{res.Appointment.ID}, env.invoices.generated)
}

func TestCancelRacesStartSession(t *testing.T) {
	for i := 0; i < 20; i++ {
		env := newTestEnv(t)
		res := env.accepted(t)
		id := res.Appointment.ID

		var wg sync.WaitGroup
		var cancelErr, startErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = env.svc.Cancel(context.Background(), family, id)
		}()
		go func() {
			defer wg.Done()
			_, startErr = env.gate.StartSession(context.Background(), educator, id, res.StartPin)
		}()
		wg.Wait()

		final, err := env.store.GetByID(context.Background(), id)
		require.NoError(t, err)

		switch {
		case cancelErr == nil:
			require.ErrorIs(t, startErr, apperr.ErrConflict)
			assert.Equal(t, model.AppointmentStatusCancelled, final.Status)
			assert.Nil(t, final.StartedAt)
		case startErr == nil:
			require.ErrorIs(t, cancelErr, apperr.ErrConflict)
			assert.Equal(t, model.AppointmentStatusAccepted, final.Status)
			assert.NotNil(t, final.StartedAt)
		default:
			t.Fatalf("both failed: cancel=%v start=%v", cancelErr, startErr)
		}
	}
}
