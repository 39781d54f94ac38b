// Package notify fans appointment events out to the notification channels.
// Delivery is fire-and-forget: a failing channel is logged and never affects
// the transition that produced the event.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

const defaultTimeout = 10 * time.Second

type Notifier interface {
	Name() string
	Notify(ctx context.Context, event model.Event) error
}

type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func NewDispatcher(logger *zap.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		timeout:   defaultTimeout,
		logger:    logger,
	}
}

// Publish hands the event to every notifier in the background.
func (d *Dispatcher) Publish(event model.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	for _, n := range d.notifiers {
		d.wg.Add(1)
		go func(n Notifier) {
			defer d.wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()

			if err := n.Notify(ctx, event); err != nil {
				d.logger.Warn("Notification failed",
					zap.String("notifier", n.Name()),
					zap.String("event", string(event.Type)),
					zap.Int64("appointment_id", event.AppointmentID),
					zap.Error(err),
				)
			}
		}(n)
	}
}

// Wait blocks until every published event has been delivered or dropped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// LogNotifier writes events to the log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(ctx context.Context, event model.Event) error {
	n.logger.Info("Appointment event",
		zap.String("id", event.ID),
		zap.String("type", string(event.Type)),
		zap.Int64("appointment_id", event.AppointmentID),
		zap.Int64("amount", event.Amount),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}
