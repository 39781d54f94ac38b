package repository

import "github.com/zakariya2002/autisme-connect-sub000/internal/model"

type Action string

const (
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionNoShow   Action = "no_show"
)

type startedGuard int

const (
	anyStarted startedGuard = iota
	mustBeStarted
	mustNotBeStarted
)

type transition struct {
	from    model.AppointmentStatus
	to      model.AppointmentStatus
	started startedGuard
}

var transitionMap = map[Action]transition{
	ActionAccept:   {from: model.AppointmentStatusPending, to: model.AppointmentStatusAccepted},
	ActionReject:   {from: model.AppointmentStatusPending, to: model.AppointmentStatusRejected},
	ActionStart:    {from: model.AppointmentStatusAccepted, to: model.AppointmentStatusAccepted, started: mustNotBeStarted},
	ActionComplete: {from: model.AppointmentStatusAccepted, to: model.AppointmentStatusCompleted, started: mustBeStarted},
	ActionCancel:   {from: model.AppointmentStatusAccepted, to: model.AppointmentStatusCancelled, started: mustNotBeStarted},
	ActionNoShow:   {from: model.AppointmentStatusAccepted, to: model.AppointmentStatusNoShow, started: mustNotBeStarted},
}

// ValidTransition reports whether the action may be applied to an
// appointment in the given status and started state.
func ValidTransition(action Action, status model.AppointmentStatus, started bool) bool {
	t, ok := transitionMap[action]
	if !ok || t.from != status {
		return false
	}
	switch t.started {
	case mustBeStarted:
		return started
	case mustNotBeStarted:
		return !started
	}
	return true
}

// TargetStatus is the status an appointment has after the action.
func TargetStatus(action Action) (model.AppointmentStatus, bool) {
	t, ok := transitionMap[action]
	return t.to, ok
}
