package audit

// scheduler.go runs retention pruning of the audit sheet on a cron schedule.
//
// A failed prune is logged and retried at the next tick; it never stops the
// scheduler or the process.

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Pruner removes entries older than a duration.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}

// SchedulerConfig controls the prune job.
type SchedulerConfig struct {
	Schedule      string // cron spec or descriptor such as "@daily"
	RetentionDays int    // entries older than this are removed (default: 90)
}

// Scheduler owns the cron runner for the prune job.
type Scheduler struct {
	cron   *cron.Cron
	pruner Pruner
	cfg    SchedulerConfig
	log    *zap.SugaredLogger
}

// NewScheduler validates cfg.Schedule and registers the prune job.
func NewScheduler(p Pruner, cfg SchedulerConfig, log *zap.SugaredLogger) (*Scheduler, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if log == nil {
		log = zap.S()
	}
	s := &Scheduler{
		cron:   cron.New(),
		pruner: p,
		cfg:    cfg,
		log:    log.Named("audit"),
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("audit: schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start runs one prune immediately and then follows the schedule until ctx
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Infow("audit prune scheduler started",
		"schedule", s.cfg.Schedule,
		"retention_days", s.cfg.RetentionDays,
	)
	s.RunOnce(ctx)
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("audit prune scheduler stopped")
}

// RunOnce performs a single prune.
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()
	removed, err := s.pruner.Prune(ctx, time.Duration(s.cfg.RetentionDays)*24*time.Hour)
	if err != nil {
		s.log.Errorw("audit prune failed", "error", err, "removed", removed)
		return
	}
	s.log.Infow("audit entries pruned",
		"removed", removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
