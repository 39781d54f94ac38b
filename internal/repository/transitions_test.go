package repository

import (
	"testing"

	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action  Action
		from    model.AppointmentStatus
		started bool
		valid   bool
	}{
		{ActionAccept, model.AppointmentStatusPending, false, true},
		{ActionAccept, model.AppointmentStatusAccepted, false, false},
		{ActionReject, model.AppointmentStatusPending, false, true},
		{ActionReject, model.AppointmentStatusCancelled, false, false},
		{ActionStart, model.AppointmentStatusAccepted, false, true},
		{ActionStart, model.AppointmentStatusAccepted, true, false},
		{ActionStart, model.AppointmentStatusPending, false, false},
		{ActionComplete, model.AppointmentStatusAccepted, true, true},
		{ActionComplete, model.AppointmentStatusAccepted, false, false},
		{ActionComplete, model.AppointmentStatusCompleted, true, false},
		{ActionCancel, model.AppointmentStatusAccepted, false, true},
		{ActionCancel, model.AppointmentStatusAccepted, true, false},
		{ActionCancel, model.AppointmentStatusPending, false, false},
		{ActionNoShow, model.AppointmentStatusAccepted, false, true},
		{ActionNoShow, model.AppointmentStatusAccepted, true, false},
		{ActionNoShow, model.AppointmentStatusRejected, false, false},
		{"unknown", model.AppointmentStatusPending, false, false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from, tt.started); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q, %v)=%v, want %v", tt.action, tt.from, tt.started, got, tt.valid)
		}
	}
}

func TestTerminalStatusesHaveNoOutgoingAction(t *testing.T) {
	terminal := []model.AppointmentStatus{
		model.AppointmentStatusRejected,
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
	}
	for _, status := range terminal {
		for action := range transitionMap {
			for _, started := range []bool{false, true} {
				if ValidTransition(action, status, started) {
					t.Fatalf("%s allowed from terminal status %s", action, status)
				}
			}
		}
	}
}
