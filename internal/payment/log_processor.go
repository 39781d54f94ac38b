package payment

import (
	"context"

	"go.uber.org/zap"
)

// LogProcessor accepts every call and only logs it. It stands in for the
// processor when no PAYMENT_BASE_URL is configured.
type LogProcessor struct {
	logger *zap.Logger
}

func NewLogProcessor(logger *zap.Logger) *LogProcessor {
	return &LogProcessor{logger: logger}
}

func (p *LogProcessor) Capture(ctx context.Context, req Request) (*Receipt, error) {
	return p.record(req), nil
}

func (p *LogProcessor) Refund(ctx context.Context, req Request) (*Receipt, error) {
	return p.record(req), nil
}

func (p *LogProcessor) record(req Request) *Receipt {
	p.logger.Info("Payment call recorded",
		zap.Int64("appointment_id", req.AppointmentID),
		zap.String("action", string(req.Action)),
		zap.Int64("amount", req.Amount),
		zap.String("currency", req.Currency),
		zap.String("idempotency_key", req.IdempotencyKey()),
	)
	return &Receipt{ID: req.IdempotencyKey(), Status: "recorded"}
}
