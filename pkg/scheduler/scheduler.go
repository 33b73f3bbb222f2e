// Package scheduler repeats harvest passes on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"github.com/x1thexxx-lgtm/devconf/pkg/config"
	"github.com/x1thexxx-lgtm/devconf/pkg/logging"
)

// TaskRunner defines background work to execute.
type TaskRunner interface {
	Run(ctx context.Context) error
}

// Scheduler triggers harvest passes based on config.
type Scheduler struct {
	cfg    config.SchedulerConfig
	runner TaskRunner
	log    *logging.Logger
}

// New creates scheduler.
func New(cfg config.SchedulerConfig, runner TaskRunner, log *logging.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, runner: runner, log: log}
}

// Start runs one pass immediately, then one per tick until ctx is done. Passes never
// overlap: a pass that outlasts the tick delays the next one.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Infof("scheduler disabled")
		return
	}
	interval, err := time.ParseDuration(s.cfg.Tick)
	if err != nil || interval <= 0 {
		s.log.Errorf("invalid scheduler tick %q: %v", s.cfg.Tick, err)
		return
	}
	s.log.Infof("scheduler started, running every %s", interval)
	s.runOnce(ctx, 1)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for pass := 2; ; pass++ {
		select {
		case <-ctx.Done():
			s.log.Infof("scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, pass)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, pass int) {
	if ctx.Err() != nil {
		return
	}
	s.log.Infof("scheduled pass %d starting", pass)
	if err := s.runner.Run(ctx); err != nil {
		s.log.Errorf("scheduled pass %d: %v", pass, err)
	}
}
