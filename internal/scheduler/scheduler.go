// Package scheduler runs configured recurring objectives on cron schedules.
// Each schedule submits its objective through the run manager, so scheduled
// runs go through the same supervision pipeline (planning, routing, review)
// as API-submitted ones.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jkaninda/msimamizi/internal/config"
	"github.com/jkaninda/msimamizi/internal/supervisor"
)

// Submitter starts a supervised run for an objective. Satisfied by
// *supervisor.Manager.
type Submitter interface {
	Submit(ctx context.Context, objective string) (*supervisor.RunRecord, error)
}

// Scheduler fires configured objectives on their cron schedules.
// It runs as a background goroutine in serve mode.
type Scheduler struct {
	manager Submitter
	metrics *Metrics
	logger  *slog.Logger
	config  *config.SchedulerConfig

	cron   *cron.Cron
	parser cron.Parser
}

// New creates a Scheduler.
func New(manager Submitter, metrics *Metrics, logger *slog.Logger, cfg *config.SchedulerConfig) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		manager: manager,
		metrics: metrics,
		logger:  logger,
		config:  cfg,
		cron:    cron.New(cron.WithParser(parser)),
		parser:  parser,
	}
}

// Start registers all configured schedules and begins the cron loop.
// Returns a cancel function that stops the loop and waits for in-flight
// submissions to return.
func (s *Scheduler) Start(ctx context.Context) (func(), error) {
	if s.config == nil || !s.config.Enabled || len(s.config.Schedules) == 0 {
		return func() {}, nil
	}

	for _, sched := range s.config.Schedules {
		sched := sched
		if _, err := s.cron.AddFunc(sched.Cron, func() {
			s.fire(ctx, sched)
		}); err != nil {
			return nil, fmt.Errorf("schedule %q: invalid cron expression %q: %w", sched.Name, sched.Cron, err)
		}
		s.logger.InfoContext(ctx, "schedule registered",
			slog.String("name", sched.Name),
			slog.String("cron", sched.Cron),
		)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "scheduler started",
		slog.Int("schedules", len(s.config.Schedules)),
	)

	return func() {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		s.logger.Info("scheduler stopped")
	}, nil
}

// fire submits a single scheduled objective as a supervised run.
func (s *Scheduler) fire(ctx context.Context, sched config.ScheduleConfig) {
	start := time.Now()

	s.logger.InfoContext(ctx, "firing schedule",
		slog.String("name", sched.Name),
	)

	if s.metrics != nil {
		s.metrics.JobsFired.Inc()
	}

	rec, err := s.manager.Submit(ctx, sched.Objective)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled run submission failed",
			slog.String("name", sched.Name),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.JobsFailed.Inc()
		}
		return
	}

	if s.metrics != nil {
		s.metrics.JobsSucceeded.Inc()
		s.metrics.FireDuration.Observe(time.Since(start).Seconds())
	}

	s.logger.InfoContext(ctx, "scheduled run submitted",
		slog.String("name", sched.Name),
		slog.String("run_id", rec.ID.String()),
	)
}

// NextRun computes the next fire time for a cron expression after now.
// Exported for the CLI's schedule listing.
func (s *Scheduler) NextRun(expr string) (time.Time, error) {
	sched, err := s.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(time.Now().UTC()), nil
}
