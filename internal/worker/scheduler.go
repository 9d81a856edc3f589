package worker

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/log"

	"github.com/robfig/cron/v3"
)

type alertPurger interface {
	PurgeAlerts(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler runs the periodic alert-log retention purge
type Scheduler struct {
	cron      *cron.Cron
	alerts    alertPurger
	retention time.Duration
	logger    *log.Logger
	now       func() time.Time
}

func NewScheduler(alerts alertPurger, retention time.Duration, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		alerts:    alerts,
		retention: retention,
		logger:    logger.WithComponent(log.ComponentScheduler),
		now:       time.Now,
	}
}

// Start registers the purge under the cron spec and starts the scheduler.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() {
		_, _ = s.Purge(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule retention purge %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("Retention scheduler started",
		"schedule", spec,
		"retention", s.retention)
	return nil
}

// Purge deletes alerts older than the retention period.
func (s *Scheduler) Purge(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)
	n, err := s.alerts.PurgeAlerts(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "Alert purge failed",
			log.FieldOperation, log.OpPurge,
			log.FieldError, err)
		return 0, err
	}
	s.logger.InfoContext(ctx, "Alert purge completed",
		log.FieldOperation, log.OpPurge,
		"removed", n,
		"cutoff", cutoff.Format(time.RFC3339))
	return n, nil
}

// Stop waits for a running purge to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
