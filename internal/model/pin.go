package model

type PinMode string

const (
	PinModeStart    PinMode = "start"
	PinModeComplete PinMode = "complete"
)

func (m PinMode) Valid() bool {
	return m == PinModeStart || m == PinModeComplete
}

// PinAttempt is the failed-attempt state of one appointment and mode.
type PinAttempt struct {
	AppointmentID int64   `json:"appointment_id"`
	Mode          PinMode `json:"mode"`
	Attempts      int     `json:"attempts"`
	MaxAttempts   int     `json:"max_attempts"`
}

func (p PinAttempt) Locked() bool {
	return p.Attempts >= p.MaxAttempts
}

func (p PinAttempt) AttemptsLeft() int {
	left := p.MaxAttempts - p.Attempts
	if left < 0 {
		return 0
	}
	return left
}
