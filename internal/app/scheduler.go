/**
 * @description
 * Cron scheduler for background ledger jobs.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	audit    func()
	schedule string
	logger   *slog.Logger
}

// NewScheduler creates a scheduler running audit on schedule. An empty schedule disables it.
func NewScheduler(audit func(), schedule string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:     c,
		audit:    audit,
		schedule: strings.TrimSpace(schedule),
		logger:   logger.With("component", "scheduler"),
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("ledger audit job disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.audit); err != nil {
		return fmt.Errorf("schedule ledger audit job %q: %w", s.schedule, err)
	}
	s.logger.Info("scheduled ledger audit job", "schedule", s.schedule)

	s.cron.Start()
	return nil
}

// Stop stops the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
