package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const settlementBatchSize = 50

// SettlementRetrier settles appointments whose payment call is still
// pending and reports how many succeeded.
type SettlementRetrier interface {
	RetryPending(ctx context.Context, limit int) (int, error)
}

// Scheduler runs background tasks
type Scheduler struct {
	settler  SettlementRetrier
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(settler SettlementRetrier, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		settler:  settler,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("settlement_interval", s.interval))

	s.wg.Add(1)
	go s.runSettlementTask(ctx)
}

// Stop signals the tasks and waits for the running pass to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Scheduler) runSettlementTask(ctx context.Context) {
	defer s.wg.Done()

	// first pass right away so settlements left pending by a crash are retried
	s.retrySettlements(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.retrySettlements(ctx)
		case <-s.stopChan:
			s.logger.Info("Settlement retry task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Settlement retry task cancelled")
			return
		}
	}
}

func (s *Scheduler) retrySettlements(ctx context.Context) {
	settled, err := s.settler.RetryPending(ctx, settlementBatchSize)
	if err != nil {
		s.logger.Error("Failed to retry pending settlements", zap.Error(err))
		return
	}
	if settled > 0 {
		s.logger.Info("Pending settlements and invoices completed", zap.Int("count", settled))
	}
}
