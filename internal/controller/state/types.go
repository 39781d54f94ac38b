package state

// UserState is the step of a chat dialog
type UserState string

const (
	StateNone UserState = ""

	// waiting for the PIN after a command that named only the appointment
	StateAwaitingStartPin    UserState = "awaiting_start_pin"
	StateAwaitingCompletePin UserState = "awaiting_complete_pin"
)

// Data keys
const (
	KeyAppointmentID = "appointment_id"
)

// UserData holds the dialog state of one chat
type UserData struct {
	State UserState
	Data  map[string]any
}
