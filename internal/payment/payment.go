// Package payment talks to the payment processor. Every call carries an
// idempotency key derived from the appointment and the action, so a retried
// capture or refund is applied at most once by the processor.
package payment

import (
	"context"
	"errors"
	"strconv"

	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

// ErrRejected marks a final answer of the processor, such as a declined
// card. Retrying the same request cannot succeed.
var ErrRejected = errors.New("payment rejected")

type Request struct {
	AppointmentID int64                  `json:"appointment_id"`
	Action        model.SettlementAction `json:"action"`
	Amount        int64                  `json:"amount"`
	Currency      string                 `json:"currency"`
}

// IdempotencyKey is stable for one appointment and action.
func (r Request) IdempotencyKey() string {
	return IdempotencyKey(r.AppointmentID, r.Action)
}

func IdempotencyKey(appointmentID int64, action model.SettlementAction) string {
	return "appointment:" + strconv.FormatInt(appointmentID, 10) + ":" + string(action)
}

type Receipt struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Processor interface {
	Capture(ctx context.Context, req Request) (*Receipt, error)
	Refund(ctx context.Context, req Request) (*Receipt, error)
}

// Execute dispatches a request to the processor method of its action.
func Execute(ctx context.Context, p Processor, req Request) (*Receipt, error) {
	if req.Action == model.SettlementActionRefund {
		return p.Refund(ctx, req)
	}
	return p.Capture(ctx, req)
}
