// Package scheduler runs the periodic cycles on cron schedules.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/Riyadh644/stockscout/internal/logger"
)

// cronLogger adapts the application logger to cron's logging interface.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: %s: %v %v", msg, err, keysAndValues)
}

// Scheduler owns the cron runner. Every registered task is wrapped with a
// skip-if-still-running policy so a slow cycle is never overlapped by its
// own next tick.
type Scheduler struct {
	cron *cron.Cron
}

// New creates a Scheduler.
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{}),
			cron.SkipIfStillRunning(cronLogger{}),
		)),
	}
}

// Register adds a named task on the given cron spec (standard 5-field specs
// and @every durations are accepted).
func (s *Scheduler) Register(name, spec string, task func()) error {
	if _, err := s.cron.AddFunc(spec, func() {
		logger.Debug("Running scheduled task %s", name)
		task()
	}); err != nil {
		return fmt.Errorf("failed to register task %s on %q: %w", name, spec, err)
	}
	logger.Info("Registered task %s on schedule %q", name, spec)
	return nil
}

// Start starts the cron runner.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Scheduler started")
}

// Stop stops the cron runner, waiting for running tasks to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Scheduler stopped")
}
