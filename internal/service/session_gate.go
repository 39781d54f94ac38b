package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zakariya2002/autisme-connect-sub000/internal/apperr"
	"github.com/zakariya2002/autisme-connect-sub000/internal/finance"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
	"github.com/zakariya2002/autisme-connect-sub000/internal/pinattempt"
	"github.com/zakariya2002/autisme-connect-sub000/internal/policy"
)

const DefaultMaxPinAttempts = 5

// SessionGate starts and completes sessions against the PINs held by the
// family. Wrong PINs are counted per appointment and mode; once the limit is
// reached the mode stays locked until support unlocks it.
type SessionGate struct {
	store       AppointmentStore
	attempts    pinattempt.Store
	hasher      *pinattempt.Hasher
	evaluator   *policy.Evaluator
	calculator  *finance.Calculator
	settler     *Settler
	events      EventPublisher
	maxAttempts int
	now         func() time.Time
	logger      *zap.Logger
}

func NewSessionGate(
	store AppointmentStore,
	attempts pinattempt.Store,
	hasher *pinattempt.Hasher,
	evaluator *policy.Evaluator,
	calculator *finance.Calculator,
	settler *Settler,
	events EventPublisher,
	maxAttempts int,
	now func() time.Time,
	logger *zap.Logger,
) *SessionGate {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxPinAttempts
	}
	if now == nil {
		now = time.Now
	}
	return &SessionGate{
		store:       store,
		attempts:    attempts,
		hasher:      hasher,
		evaluator:   evaluator,
		calculator:  calculator,
		settler:     settler,
		events:      events,
		maxAttempts: maxAttempts,
		now:         now,
		logger:      logger,
	}
}

type SessionResult struct {
	Success           bool               `json:"success"`
	SettlementPending bool               `json:"settlement_pending,omitempty"`
	Appointment       *model.Appointment `json:"appointment"`
}

// StartSession sets started_at once the family's start PIN is given by the
// assigned educator before the scheduled end.
func (g *SessionGate) StartSession(ctx context.Context, actor model.Actor, id int64, pin string) (result *SessionResult, err error) {
	ctx, span := startSpan(ctx, "SessionGate.StartSession", id)
	defer func() { endSpan(span, err) }()

	a, err := g.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AppointmentStatusAccepted {
		return nil, apperr.Conflict("cannot start an appointment that is %s", a.Status)
	}
	if a.IsStarted() {
		return nil, apperr.Conflict("session already started")
	}

	now := g.now()
	if d := g.evaluator.CanStartSession(a, now); !d.Allowed {
		return nil, apperr.Validation("%s", d.Reason)
	}

	if err := g.checkPin(ctx, a, model.PinModeStart, a.StartPinHash, pin); err != nil {
		return nil, err
	}

	started, err := g.store.MarkStarted(ctx, id, now.UTC())
	if err != nil {
		return nil, err
	}

	g.logger.Info("Session started",
		zap.Int64("appointment_id", id),
		zap.Int64("educator_id", actor.ID),
		zap.Time("started_at", *started.StartedAt),
	)
	event := eventFor(started, model.EventSessionStarted, now.UTC())
	event.Actor = actor.Role
	g.events.Publish(event)

	return &SessionResult{Success: true, Appointment: started}, nil
}

// CompleteSession moves a started session to completed once the scheduled
// duration has elapsed since the start and the completion PIN matches. The
// price is then captured and the invoice issued.
func (g *SessionGate) CompleteSession(ctx context.Context, actor model.Actor, id int64, pin string) (result *SessionResult, err error) {
	ctx, span := startSpan(ctx, "SessionGate.CompleteSession", id)
	defer func() { endSpan(span, err) }()

	a, err := g.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AppointmentStatusAccepted {
		return nil, apperr.Conflict("cannot complete an appointment that is %s", a.Status)
	}
	if !a.IsStarted() {
		return nil, apperr.Conflict("session has not been started")
	}

	now := g.now()
	if d := g.evaluator.CanCompleteSession(a, now); !d.Allowed {
		return nil, apperr.WindowMinutes(d.MinutesRemaining, "%s", d.Reason)
	}

	if err := g.checkPin(ctx, a, model.PinModeComplete, a.CompletePinHash, pin); err != nil {
		return nil, err
	}

	outcome, err := g.calculator.Completion(a.Price)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}

	completed, err := g.store.Complete(ctx, id, now.UTC(), outcome, settlementFor(model.SettlementActionCapture, outcome.FamilyChargeAmount))
	if err != nil {
		return nil, err
	}

	g.logger.Info("Session completed",
		zap.Int64("appointment_id", id),
		zap.Int64("educator_id", actor.ID),
		zap.Int64("captured_amount", outcome.FamilyChargeAmount),
	)
	event := eventFor(completed, model.EventSessionCompleted, now.UTC())
	event.Amount = outcome.FamilyChargeAmount
	event.Compensation = outcome.CompensationAmount
	event.Actor = actor.Role
	g.events.Publish(event)

	completed, pending := settleNow(ctx, g.settler, completed)
	return &SessionResult{Success: true, SettlementPending: pending, Appointment: completed}, nil
}

// UnlockPin clears the attempt counter of one mode. It is a support
// operation and performs no party check.
func (g *SessionGate) UnlockPin(ctx context.Context, id int64, mode model.PinMode) error {
	if !mode.Valid() {
		return apperr.Validation("unknown pin mode %q", mode)
	}
	if _, err := g.store.GetByID(ctx, id); err != nil {
		return err
	}
	if err := g.attempts.Reset(ctx, id, mode); err != nil {
		return apperr.External(err, "reset pin attempts")
	}
	g.logger.Info("PIN attempts reset",
		zap.Int64("appointment_id", id),
		zap.String("mode", string(mode)),
	)
	return nil
}

// Attempts reports the attempt state of one mode.
func (g *SessionGate) Attempts(ctx context.Context, id int64, mode model.PinMode) (model.PinAttempt, error) {
	n, err := g.attempts.Get(ctx, id, mode)
	if err != nil {
		return model.PinAttempt{}, apperr.External(err, "read pin attempts")
	}
	return model.PinAttempt{AppointmentID: id, Mode: mode, Attempts: n, MaxAttempts: g.maxAttempts}, nil
}

func (g *SessionGate) load(ctx context.Context, actor model.Actor, id int64) (*model.Appointment, error) {
	a, err := g.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.PartyRoleEducator || a.EducatorID != actor.ID {
		return nil, apperr.Authorization("only the assigned educator can run the session")
	}
	return a, nil
}

// checkPin reserves an attempt before comparing so that concurrent guesses
// cannot go past the limit. A matching PIN gives the attempt back.
func (g *SessionGate) checkPin(ctx context.Context, a *model.Appointment, mode model.PinMode, hash, pin string) error {
	if !validPinFormat(pin) {
		return apperr.Validation("PIN must be %d digits", pinattempt.PinLength)
	}

	state, err := g.Attempts(ctx, a.ID, mode)
	if err != nil {
		return err
	}
	if state.Locked() {
		return apperr.PinRejected(0, true, "too many wrong PINs, contact support to unlock")
	}

	n, err := g.attempts.Reserve(ctx, a.ID, mode)
	if err != nil {
		return apperr.External(err, "record pin attempt")
	}
	if n > g.maxAttempts {
		return apperr.PinRejected(0, true, "too many wrong PINs, contact support to unlock")
	}

	ok, err := g.hasher.Matches(hash, pin)
	if err != nil || ok {
		if relErr := g.attempts.Release(ctx, a.ID, mode); relErr != nil {
			g.logger.Warn("Failed to release pin attempt", zap.Int64("appointment_id", a.ID), zap.Error(relErr))
		}
		return err
	}

	left := g.maxAttempts - n
	g.logger.Warn("Wrong PIN",
		zap.Int64("appointment_id", a.ID),
		zap.String("mode", string(mode)),
		zap.Int("attempts_left", left),
	)
	if left == 0 {
		return apperr.PinRejected(0, true, "wrong PIN, no attempts left, contact support to unlock")
	}
	return apperr.PinRejected(left, false, "wrong PIN")
}

func validPinFormat(pin string) bool {
	if len(pin) != pinattempt.PinLength {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
