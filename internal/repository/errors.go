package repository

import (
	"github.com/zakariya2002/autisme-connect-sub000/internal/apperr"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

func appointmentNotFound(id int64) error {
	return apperr.NotFound("appointment %d not found", id)
}

// transitionConflict explains why an action lost against the current state.
func transitionConflict(action Action, status model.AppointmentStatus, started bool) error {
	switch {
	case status.IsTerminal():
		return apperr.Conflict("appointment is already %s", status)
	case action == ActionStart && started:
		return apperr.Conflict("session already started")
	case (action == ActionCancel || action == ActionNoShow) && started:
		return apperr.Conflict("session already started")
	case action == ActionComplete && !started:
		return apperr.Conflict("session has not been started")
	}
	return apperr.Conflict("cannot %s an appointment that is %s", action, status)
}
