package cronjob

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/packratbot/packrat/internal/archive"
	"github.com/packratbot/packrat/internal/batch"
	"github.com/packratbot/packrat/internal/config"
	"github.com/packratbot/packrat/internal/pkg/logs"
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Maintenance runs the periodic housekeeping jobs: sweeping abandoned
// forward waits, compacting the archive database, and logging store
// statistics.
type Maintenance struct {
	cfg           config.MaintenanceConfig
	detector      *batch.ForwardDetector
	store         *archive.Store
	waitRetention time.Duration

	cron   *cron.Cron
	runCtx context.Context
}

func NewMaintenance(cfg config.MaintenanceConfig, detector *batch.ForwardDetector, store *archive.Store) (*Maintenance, error) {
	if cfg.Enabled != nil && !*cfg.Enabled {
		return nil, nil
	}

	retention, err := time.ParseDuration(cfg.WaitRetention)
	if err != nil {
		return nil, fmt.Errorf("parse wait retention: %w", err)
	}

	m := &Maintenance{
		cfg:           cfg,
		detector:      detector,
		store:         store,
		waitRetention: retention,
		cron:          cron.New(cron.WithParser(cronParser)),
	}

	if _, err := m.cron.AddFunc(cfg.Schedule, m.housekeep); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", cfg.Schedule, err)
	}
	if _, err := m.cron.AddFunc("@daily", m.vacuum); err != nil {
		return nil, fmt.Errorf("register vacuum job: %w", err)
	}

	return m, nil
}

func (m *Maintenance) Start(ctx context.Context) {
	if m == nil {
		return
	}
	m.runCtx = ctx
	m.cron.Start()
	logs.CtxInfo(ctx, "[maintenance] started, schedule=%s, wait_retention=%s",
		m.cfg.Schedule, m.waitRetention)
}

func (m *Maintenance) Stop() {
	if m == nil {
		return
	}
	stopCtx := m.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		logs.Warn("[maintenance] stop timed out waiting for running jobs")
	}
}

// housekeep drops forward-wait entries whose dispatch path died without
// cleanup and logs a store snapshot.
func (m *Maintenance) housekeep() {
	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	if removed := m.detector.SweepStale(m.waitRetention); removed > 0 {
		logs.CtxInfo(ctx, "[maintenance] swept %d stale forward waits", removed)
	}

	stats, err := m.store.Stats(ctx)
	if err != nil {
		logs.CtxWarn(ctx, "[maintenance] store stats failed: %v", err)
		return
	}
	logs.CtxInfo(ctx, "[maintenance] store: archives=%d, notes=%d, tags=%d",
		stats.Archives, stats.Notes, stats.Tags)
}

func (m *Maintenance) vacuum() {
	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	if err := m.store.Vacuum(ctx); err != nil {
		logs.CtxWarn(ctx, "[maintenance] vacuum failed: %v", err)
		return
	}
	logs.CtxInfo(ctx, "[maintenance] vacuum completed in %s", time.Since(start))
}
