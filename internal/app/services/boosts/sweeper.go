package boosts

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/souq-network/marketplace/internal/app/metrics"
	"github.com/souq-network/marketplace/pkg/logger"
)

const sweepTimeout = 30 * time.Second

// Sweeper runs the time-driven status transitions on a cron schedule. It
// implements the managed service interface so the application can start and
// stop it with the rest of the runtime.
type Sweeper struct {
	svc      *Service
	schedule string
	log      *logger.Logger
	cron     *cron.Cron
}

// NewSweeper creates a sweeper. schedule accepts cron expressions and
// @every intervals.
func NewSweeper(svc *Service, schedule string, log *logger.Logger) *Sweeper {
	if schedule == "" {
		schedule = "@every 30s"
	}
	if log == nil {
		log = logger.NewDefault("boost-sweeper")
	}
	return &Sweeper{svc: svc, schedule: schedule, log: log}
}

// Name identifies the sweeper to the service manager.
func (s *Sweeper) Name() string { return "boost-sweeper" }

// Start runs one immediate pass, then schedules recurring passes.
func (s *Sweeper) Start(ctx context.Context) error {
	s.runOnce()

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.runOnce); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c

	s.log.WithField("schedule", s.schedule).Info("boost sweeper started")
	return nil
}

// Stop halts scheduling and waits for a running pass to finish, bounded by
// ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("boost sweeper stopped")
	return nil
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	start := time.Now()
	activated, expired, err := s.svc.Sweep(ctx, time.Now().UTC())
	metrics.RecordSweep(activated, expired, time.Since(start))
	if err != nil {
		s.log.WithError(err).Error("sweep pass failed")
		return
	}
	if activated > 0 || expired > 0 {
		s.log.WithField("activated", activated).
			WithField("expired", expired).
			Info("sweep pass applied transitions")
	}
}
