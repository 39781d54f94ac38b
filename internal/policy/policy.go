// Package policy holds the time-window rules of an appointment. Every
// function is pure: the result depends only on the appointment and the
// instant passed in.
package policy

import (
	"time"

	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

const (
	DefaultCancellationCutoff = 48 * time.Hour
	DefaultNoShowGrace        = 60 * time.Minute
	DefaultVideoJoinLead      = 15 * time.Minute
)

type Config struct {
	// Location is the zone the appointment date and times are written in.
	Location           *time.Location
	CancellationCutoff time.Duration
	NoShowGrace        time.Duration
	VideoJoinLead      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Location:           time.UTC,
		CancellationCutoff: DefaultCancellationCutoff,
		NoShowGrace:        DefaultNoShowGrace,
		VideoJoinLead:      DefaultVideoJoinLead,
	}
}

type Evaluator struct {
	cfg Config
}

func NewEvaluator(cfg Config) *Evaluator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Evaluator{cfg: cfg}
}

func (e *Evaluator) Config() Config {
	return e.cfg
}

// Decision is the answer of one rule. When Allowed is false, Reason explains
// why and the remaining fields give the wait when one applies.
type Decision struct {
	Allowed          bool          `json:"allowed"`
	Reason           string        `json:"reason,omitempty"`
	HoursRemaining   int           `json:"hours_remaining,omitempty"`
	MinutesRemaining int           `json:"minutes_remaining,omitempty"`
	Remaining        time.Duration `json:"-"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// StartAt combines the appointment date and start time into one instant.
func (e *Evaluator) StartAt(a *model.Appointment) time.Time {
	return e.at(a, a.StartTime)
}

// EndAt combines the appointment date and end time into one instant.
func (e *Evaluator) EndAt(a *model.Appointment) time.Time {
	return e.at(a, a.EndTime)
}

func (e *Evaluator) at(a *model.Appointment, t model.TimeOfDay) time.Time {
	y, m, d := a.Date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, e.cfg.Location)
}

// CanCancel allows cancellation up to the cutoff before the start. When the
// cutoff has passed, HoursRemaining is the number of whole hours left before
// the session starts.
func (e *Evaluator) CanCancel(a *model.Appointment, now time.Time) Decision {
	start := e.StartAt(a)
	deadline := start.Add(-e.cfg.CancellationCutoff)
	if !now.After(deadline) {
		return allow()
	}
	untilStart := start.Sub(now)
	if untilStart < 0 {
		untilStart = 0
	}
	d := deny("cancellation closes " + formatHours(e.cfg.CancellationCutoff) + " before the session")
	d.HoursRemaining = int(untilStart / time.Hour)
	d.Remaining = untilStart
	return d
}

// CanReportNoShow opens the grace period after the scheduled start, and only
// while the session has not been started with the PIN.
func (e *Evaluator) CanReportNoShow(a *model.Appointment, now time.Time) Decision {
	if a.IsStarted() {
		return deny("session already started")
	}
	opensAt := e.StartAt(a).Add(e.cfg.NoShowGrace)
	if !now.Before(opensAt) {
		return allow()
	}
	wait := opensAt.Sub(now)
	d := deny("no-show can be reported " + formatMinutes(e.cfg.NoShowGrace) + " after the scheduled start")
	d.MinutesRemaining = ceilMinutes(wait)
	d.Remaining = wait
	return d
}

// CanJoinVideoCall is true for online appointments on the current day,
// from the join lead before the start until the end.
func (e *Evaluator) CanJoinVideoCall(a *model.Appointment, now time.Time) Decision {
	if a.LocationType != model.LocationTypeOnline {
		return deny("appointment is not online")
	}
	local := now.In(e.cfg.Location)
	ny, nm, nd := local.Date()
	ay, am, ad := a.Date.Date()
	if ny != ay || nm != am || nd != ad {
		return deny("video call is only available on the day of the appointment")
	}
	opensAt := e.StartAt(a).Add(-e.cfg.VideoJoinLead)
	if now.Before(opensAt) {
		wait := opensAt.Sub(now)
		d := deny("video call opens " + formatMinutes(e.cfg.VideoJoinLead) + " before the start")
		d.MinutesRemaining = ceilMinutes(wait)
		d.Remaining = wait
		return d
	}
	if now.After(e.EndAt(a)) {
		return deny("appointment has ended")
	}
	return allow()
}

// CanStartSession requires an unstarted session whose end has not passed.
func (e *Evaluator) CanStartSession(a *model.Appointment, now time.Time) Decision {
	if a.IsStarted() {
		return deny("session already started")
	}
	if now.After(e.EndAt(a)) {
		return deny("appointment end time has passed")
	}
	return allow()
}

// CanCompleteSession requires the full scheduled duration to have elapsed
// since the session was started.
func (e *Evaluator) CanCompleteSession(a *model.Appointment, now time.Time) Decision {
	if !a.IsStarted() {
		return deny("session has not been started")
	}
	endsAt := a.StartedAt.Add(a.ScheduledDuration())
	if !now.Before(endsAt) {
		return allow()
	}
	wait := endsAt.Sub(now)
	d := deny("the full session duration has not elapsed")
	d.MinutesRemaining = ceilMinutes(wait)
	d.Remaining = wait
	return d
}

// Snapshot groups every rule for display flags.
type Snapshot struct {
	StartAt          time.Time `json:"start_at"`
	EndAt            time.Time `json:"end_at"`
	CanCancel        Decision  `json:"can_cancel"`
	CanReportNoShow  Decision  `json:"can_report_no_show"`
	CanJoinVideoCall Decision  `json:"can_join_video_call"`
	CanStartSession  Decision  `json:"can_start_session"`
	CanComplete      Decision  `json:"can_complete_session"`
}

func (e *Evaluator) Snapshot(a *model.Appointment, now time.Time) Snapshot {
	return Snapshot{
		StartAt:          e.StartAt(a),
		EndAt:            e.EndAt(a),
		CanCancel:        e.CanCancel(a, now),
		CanReportNoShow:  e.CanReportNoShow(a, now),
		CanJoinVideoCall: e.CanJoinVideoCall(a, now),
		CanStartSession:  e.CanStartSession(a, now),
		CanComplete:      e.CanCompleteSession(a, now),
	}
}
