// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Job is the callback invoked when the schedule fires.
type Job func(ctx context.Context)

// Scheduler fires a single job on a cron schedule.
type Scheduler struct {
	schedule string
	job      Job
	logger   *slog.Logger
	cron     *cron.Cron

	mu  sync.Mutex
	ctx context.Context
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether expr is a schedule New would accept.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// New creates a Scheduler that runs job on schedule. An empty schedule
// disables it: Start and Run then only wait for cancellation.
func New(schedule string, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		schedule: schedule,
		job:      job,
		logger:   logger,
		cron:     cron.New(cron.WithParser(cronParser)),
		ctx:      context.Background(),
	}
}

// Start registers the job and starts the cron ticker. Jobs receive ctx.
// Overlapping fires are skipped while a previous run is still going.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("scheduled resync disabled")
		return nil
	}

	var running sync.Mutex
	_, err := s.cron.AddFunc(s.schedule, func() {
		if !running.TryLock() {
			s.logger.Debug("previous scheduled run still in progress, skipping")
			return
		}
		defer running.Unlock()

		s.mu.Lock()
		jobCtx := s.ctx
		s.mu.Unlock()
		if jobCtx.Err() != nil {
			return
		}
		s.logger.Debug("cron firing", "schedule", s.schedule)
		s.job(jobCtx)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.schedule, err)
	}
	s.logger.Info("scheduled resync", "schedule", s.schedule)

	s.cron.Start()
	return nil
}

// Run starts the scheduler, blocks until ctx is cancelled and then stops
// it, waiting for a running job to return.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// Stop stops the cron ticker and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
