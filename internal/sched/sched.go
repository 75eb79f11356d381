// Package sched runs a job on a cron cadence in-process.
package sched

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps robfig/cron for a single recurring job.
type Scheduler struct {
	cron *cron.Cron
}

func New() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// Add registers a job under a standard 5-field cron spec.
func (s *Scheduler) Add(spec string, job func()) error {
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// Run starts the scheduler and blocks until the context is cancelled.
// Jobs already running are allowed to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return ctx.Err()
}
