package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/zakariya2002/autisme-connect-sub000/internal/apperr"
	"github.com/zakariya2002/autisme-connect-sub000/internal/calendar"
	"github.com/zakariya2002/autisme-connect-sub000/internal/countdown"
	"github.com/zakariya2002/autisme-connect-sub000/internal/finance"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
	"github.com/zakariya2002/autisme-connect-sub000/internal/pinattempt"
	"github.com/zakariya2002/autisme-connect-sub000/internal/policy"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

const defaultCurrency = "EUR"

type AppointmentService struct {
	store      AppointmentStore
	parties    PartyStore
	evaluator  *policy.Evaluator
	calculator *finance.Calculator
	hasher     *pinattempt.Hasher
	settler    *Settler
	events     EventPublisher
	now        func() time.Time
	logger     *zap.Logger
}

func NewAppointmentService(
	store AppointmentStore,
	parties PartyStore,
	evaluator *policy.Evaluator,
	calculator *finance.Calculator,
	hasher *pinattempt.Hasher,
	settler *Settler,
	events EventPublisher,
	now func() time.Time,
	logger *zap.Logger,
) *AppointmentService {
	if now == nil {
		now = time.Now
	}
	return &AppointmentService{
		store:      store,
		parties:    parties,
		evaluator:  evaluator,
		calculator: calculator,
		hasher:     hasher,
		settler:    settler,
		events:     events,
		now:        now,
		logger:     logger,
	}
}

type CreateAppointmentInput struct {
	FamilyID     int64
	EducatorID   int64
	ChildID      *int64
	Date         string // 2006-01-02
	StartTime    string // 15:04
	EndTime      string // 15:04
	LocationType model.LocationType
	Address      string
	Price        int64
	Currency     string
	Notes        string
}

// Create records a booking request as a pending appointment. Only the
// family named in the request may create it.
func (s *AppointmentService) Create(ctx context.Context, actor model.Actor, in CreateAppointmentInput) (*model.Appointment, error) {
	if actor.Role != model.PartyRoleFamily || actor.ID != in.FamilyID {
		return nil, apperr.Authorization("only the family can request an appointment")
	}

	a, err := s.buildAppointment(in)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("Appointment requested",
		zap.Int64("appointment_id", a.ID),
		zap.Int64("family_id", a.FamilyID),
		zap.Int64("educator_id", a.EducatorID),
		zap.String("date", a.Date.Format("2006-01-02")),
		zap.String("start_time", a.StartTime.String()),
	)

	return a, nil
}

func (s *AppointmentService) buildAppointment(in CreateAppointmentInput) (*model.Appointment, error) {
	if in.FamilyID <= 0 || in.EducatorID <= 0 {
		return nil, apperr.Validation("family_id and educator_id are required")
	}

	date, err := time.Parse("2006-01-02", in.Date)
	if err != nil {
		return nil, apperr.Validation("date must be formatted as YYYY-MM-DD")
	}
	start, err := model.ParseTimeOfDay(in.StartTime)
	if err != nil {
		return nil, apperr.Validation("start_time must be formatted as HH:MM")
	}
	end, err := model.ParseTimeOfDay(in.EndTime)
	if err != nil {
		return nil, apperr.Validation("end_time must be formatted as HH:MM")
	}
	if end <= start {
		return nil, apperr.Validation("end_time must be after start_time on the same day")
	}

	switch in.LocationType {
	case model.LocationTypeOnline:
	case model.LocationTypeHome, model.LocationTypeOffice:
		if in.Address == "" {
			return nil, apperr.Validation("address is required for %s appointments", in.LocationType)
		}
	default:
		return nil, apperr.Validation("unknown location_type %q", in.LocationType)
	}

	if in.Price < 0 {
		return nil, apperr.Validation("price must not be negative")
	}
	currency := in.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	if !currencyCode.MatchString(currency) {
		return nil, apperr.Validation("currency must be an ISO 4217 code")
	}

	return &model.Appointment{
		FamilyID:     in.FamilyID,
		EducatorID:   in.EducatorID,
		ChildID:      in.ChildID,
		Date:         date,
		StartTime:    start,
		EndTime:      end,
		LocationType: in.LocationType,
		Address:      in.Address,
		Price:        in.Price,
		Currency:     currency,
		Notes:        in.Notes,
	}, nil
}

// Get returns the appointment to one of its parties.
func (s *AppointmentService) Get(ctx context.Context, actor model.Actor, id int64) (*model.Appointment, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsParty(actor.Role, actor.ID) {
		return nil, apperr.Authorization("not a party to appointment %d", id)
	}
	return a, nil
}

type RespondResult struct {
	Appointment *model.Appointment `json:"appointment"`
	// Plain PINs are only ever returned here, once, for delivery to the family.
	StartPin    string `json:"start_pin,omitempty"`
	CompletePin string `json:"complete_pin,omitempty"`
}

// Respond accepts or rejects a pending appointment. Accepting issues the
// start and completion PINs.
func (s *AppointmentService) Respond(ctx context.Context, actor model.Actor, id int64, accept bool, reason string) (*RespondResult, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.PartyRoleEducator || a.EducatorID != actor.ID {
		return nil, apperr.Authorization("only the assigned educator can respond")
	}
	if a.Status != model.AppointmentStatusPending {
		return nil, apperr.Conflict("appointment is already %s", a.Status)
	}

	now := s.now().UTC()

	if !accept {
		rejected, err := s.store.Reject(ctx, id, now, reason)
		if err != nil {
			return nil, err
		}
		s.logger.Info("Appointment rejected", zap.Int64("appointment_id", id))
		s.events.Publish(eventFor(rejected, model.EventAppointmentRejected, now))
		return &RespondResult{Appointment: rejected}, nil
	}

	startPin, startHash, err := s.issuePin()
	if err != nil {
		return nil, err
	}
	completePin, completeHash, err := s.issuePin()
	if err != nil {
		return nil, err
	}

	accepted, err := s.store.Accept(ctx, id, now, startHash, completeHash)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Appointment accepted", zap.Int64("appointment_id", id))
	s.events.Publish(eventFor(accepted, model.EventAppointmentAccepted, now))

	return &RespondResult{Appointment: accepted, StartPin: startPin, CompletePin: completePin}, nil
}

func (s *AppointmentService) issuePin() (string, string, error) {
	pin, err := pinattempt.Generate()
	if err != nil {
		return "", "", err
	}
	hash, err := s.hasher.Hash(pin)
	if err != nil {
		return "", "", err
	}
	return pin, hash, nil
}

type CancelResult struct {
	Success           bool               `json:"success"`
	RefundAmount      int64              `json:"refund_amount"`
	SettlementPending bool               `json:"settlement_pending,omitempty"`
	Appointment       *model.Appointment `json:"appointment"`
}

// Cancel cancels an accepted, unstarted appointment up to the cutoff before
// its start and refunds the full price.
func (s *AppointmentService) Cancel(ctx context.Context, actor model.Actor, id int64) (result *CancelResult, err error) {
	ctx, span := startSpan(ctx, "AppointmentService.Cancel", id)
	defer func() { endSpan(span, err) }()

	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsParty(actor.Role, actor.ID) {
		return nil, apperr.Authorization("not a party to appointment %d", id)
	}
	if a.Status != model.AppointmentStatusAccepted {
		return nil, apperr.Conflict("cannot cancel an appointment that is %s", a.Status)
	}
	if a.IsStarted() {
		return nil, apperr.Conflict("session already started")
	}

	now := s.now()
	if d := s.evaluator.CanCancel(a, now); !d.Allowed {
		return nil, apperr.WindowHours(d.HoursRemaining, "%s", d.Reason)
	}

	outcome, err := s.calculator.Cancellation(a.Price)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}

	cancelled, err := s.store.Cancel(ctx, id, now.UTC(), actor.Role, outcome, settlementFor(model.SettlementActionRefund, outcome.RefundAmount))
	if err != nil {
		return nil, err
	}

	s.logger.Info("Appointment cancelled",
		zap.Int64("appointment_id", id),
		zap.String("cancelled_by", string(actor.Role)),
		zap.Int64("refund_amount", outcome.RefundAmount),
	)

	event := eventFor(cancelled, model.EventAppointmentCancelled, now.UTC())
	event.Amount = outcome.RefundAmount
	event.Actor = actor.Role
	s.events.Publish(event)

	cancelled, pending := s.settle(ctx, cancelled)
	return &CancelResult{
		Success:           true,
		RefundAmount:      outcome.RefundAmount,
		SettlementPending: pending,
		Appointment:       cancelled,
	}, nil
}

type NoShowResult struct {
	Success            bool               `json:"success"`
	CompensationAmount int64              `json:"compensation_amount"`
	FamilyChargeAmount int64              `json:"family_charge_amount"`
	RefundAmount       int64              `json:"refund_amount"`
	SettlementPending  bool               `json:"settlement_pending,omitempty"`
	Appointment        *model.Appointment `json:"appointment"`
}

// ReportNoShow lets the educator record that the family did not attend,
// once the grace period after the start has passed and as long as the
// session was never started.
func (s *AppointmentService) ReportNoShow(ctx context.Context, actor model.Actor, id int64) (result *NoShowResult, err error) {
	ctx, span := startSpan(ctx, "AppointmentService.ReportNoShow", id)
	defer func() { endSpan(span, err) }()

	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.PartyRoleEducator || a.EducatorID != actor.ID {
		return nil, apperr.Authorization("only the assigned educator can report a no-show")
	}
	if a.Status != model.AppointmentStatusAccepted {
		return nil, apperr.Conflict("cannot report a no-show for an appointment that is %s", a.Status)
	}
	if a.IsStarted() {
		return nil, apperr.Conflict("session already started")
	}

	now := s.now()
	if d := s.evaluator.CanReportNoShow(a, now); !d.Allowed {
		return nil, apperr.WindowMinutes(d.MinutesRemaining, "%s", d.Reason)
	}

	outcome, err := s.calculator.NoShow(a.Price)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}

	updated, err := s.store.MarkNoShow(ctx, id, now.UTC(), outcome, settlementFor(model.SettlementActionCapture, outcome.FamilyChargeAmount))
	if err != nil {
		return nil, err
	}

	s.logger.Info("No-show reported",
		zap.Int64("appointment_id", id),
		zap.Int64("family_charge_amount", outcome.FamilyChargeAmount),
		zap.Int64("compensation_amount", outcome.CompensationAmount),
	)

	event := eventFor(updated, model.EventAppointmentNoShow, now.UTC())
	event.Amount = outcome.FamilyChargeAmount
	event.Compensation = outcome.CompensationAmount
	event.Actor = actor.Role
	s.events.Publish(event)

	updated, pending := s.settle(ctx, updated)
	return &NoShowResult{
		Success:            true,
		CompensationAmount: outcome.CompensationAmount,
		FamilyChargeAmount: outcome.FamilyChargeAmount,
		RefundAmount:       outcome.RefundAmount,
		SettlementPending:  pending,
		Appointment:        updated,
	}, nil
}

// Policy returns every time-window decision for display.
func (s *AppointmentService) Policy(ctx context.Context, actor model.Actor, id int64) (policy.Snapshot, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return policy.Snapshot{}, err
	}
	return s.evaluator.Snapshot(a, s.now()), nil
}

type CountdownView struct {
	AppointmentID    int64           `json:"appointment_id"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	DurationSeconds  int64           `json:"duration_seconds"`
	RemainingSeconds int64           `json:"remaining_seconds"`
	Display          string          `json:"display"`
	Elapsed          bool            `json:"elapsed"`
	CanComplete      policy.Decision `json:"can_complete"`
}

// Countdown is the remaining session time for display. Completion is still
// decided by the server against the stored start.
func (s *AppointmentService) Countdown(ctx context.Context, actor model.Actor, id int64) (*CountdownView, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	duration := a.ScheduledDuration()
	view := &CountdownView{
		AppointmentID:   a.ID,
		StartedAt:       a.StartedAt,
		DurationSeconds: int64(duration / time.Second),
		CanComplete:     s.evaluator.CanCompleteSession(a, now),
	}

	frame := countdown.Frame{Remaining: duration, Seconds: view.DurationSeconds, Display: countdown.Format(view.DurationSeconds)}
	if a.IsStarted() {
		frame = countdown.FrameAt(*a.StartedAt, duration, now)
	}
	view.RemainingSeconds = frame.Seconds
	view.Display = frame.Display
	view.Elapsed = frame.Elapsed
	return view, nil
}

// WatchCountdown streams countdown frames every second until the session
// duration has elapsed or ctx is done.
func (s *AppointmentService) WatchCountdown(ctx context.Context, actor model.Actor, id int64) (<-chan countdown.Frame, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !a.IsStarted() {
		return nil, apperr.Validation("session has not been started")
	}
	return countdown.WatchEverySecond(ctx, *a.StartedAt, a.ScheduledDuration(), s.now), nil
}

// Calendar exports the appointment as a calendar event.
func (s *AppointmentService) Calendar(ctx context.Context, actor model.Actor, id int64) (calendar.Event, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return calendar.Event{}, err
	}

	location := a.Address
	if a.LocationType == model.LocationTypeOnline {
		location = "Online video call"
	}
	description := fmt.Sprintf("Accompaniment session #%d", a.ID)
	if a.Notes != "" {
		description += "\n" + a.Notes
	}

	return calendar.Event{
		Start:       s.evaluator.StartAt(a),
		End:         s.evaluator.EndAt(a),
		Summary:     "Accompaniment session",
		Description: description,
		Location:    location,
		UID:         calendar.UID(a.ID),
		Stamp:       a.UpdatedAt,
	}, nil
}

// LinkParty ties a Telegram chat to a family or an educator.
func (s *AppointmentService) LinkParty(ctx context.Context, link *model.PartyLink) error {
	if !link.Role.Valid() {
		return apperr.Validation("unknown party role %q", link.Role)
	}
	if link.PartyID <= 0 || link.TelegramChatID == 0 {
		return apperr.Validation("party id and telegram chat id are required")
	}
	if err := s.parties.Link(ctx, link); err != nil {
		return err
	}
	s.logger.Info("Party linked to telegram",
		zap.String("role", string(link.Role)),
		zap.Int64("party_id", link.PartyID),
		zap.Int64("chat_id", link.TelegramChatID),
	)
	return nil
}

// PartyByChat returns the party linked to a Telegram chat, or nil.
func (s *AppointmentService) PartyByChat(ctx context.Context, chatID int64) (*model.PartyLink, error) {
	return s.parties.GetByChatID(ctx, chatID)
}

// settle runs the owed payment call and reports whether it is still pending.
func (s *AppointmentService) settle(ctx context.Context, a *model.Appointment) (*model.Appointment, bool) {
	return settleNow(ctx, s.settler, a)
}

func settleNow(ctx context.Context, settler *Settler, a *model.Appointment) (*model.Appointment, bool) {
	settled, _ := settler.Settle(ctx, a)
	if settled == nil {
		settled = a
	}
	return settled, settled.SettlementStatus == model.SettlementStatusPending
}

func settlementFor(action model.SettlementAction, amount int64) *model.PendingSettlement {
	if amount <= 0 {
		return nil
	}
	return &model.PendingSettlement{Action: action, Amount: amount}
}
