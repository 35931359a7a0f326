// Package schedule drives the periodic scan: a fixed-interval cron
// entry plus a delayed initial scan shortly after startup. The manual
// HTTP trigger and the timer both call the same reentrancy-guarded
// scan operation.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the scan function on a fixed interval.
type Scheduler struct {
	cron         *cron.Cron
	scan         func(context.Context)
	interval     time.Duration
	initialDelay time.Duration
	logger       *slog.Logger
}

// New creates a scheduler that invokes scan every interval, with the
// first run delayed by initialDelay after Run is called.
func New(scan func(context.Context), interval, initialDelay time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:         cron.New(),
		scan:         scan,
		interval:     interval,
		initialDelay: initialDelay,
		logger:       logger,
	}
}

// Run starts the scheduler and blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() { s.scan(ctx) }); err != nil {
		return fmt.Errorf("registering scan schedule %q: %w", spec, err)
	}

	s.cron.Start()
	s.logger.Info("mail scanner active", "interval", s.interval)

	var initial *time.Timer
	if s.initialDelay >= 0 {
		initial = time.AfterFunc(s.initialDelay, func() {
			s.logger.Info("starting initial mailbox scan")
			s.scan(ctx)
		})
		defer initial.Stop()
	}

	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}
