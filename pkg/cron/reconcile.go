package cron

import (
	"context"
	"sync"
	"time"

	"propman-be/internal/pkg/logger"

	"github.com/robfig/cron/v3"
)

// DefaultReconcileSchedule runs the sweep at the top of every hour.
const DefaultReconcileSchedule = "0 * * * *"

// Reconciler refreshes every stored subscription state.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// ReconcileJob periodically persists computed subscription states so list
// queries on the state column stay accurate.
type ReconcileJob struct {
	cron       *cron.Cron
	reconciler Reconciler
	schedule   string
	timeout    time.Duration
	logger     logger.ILogger

	mu      sync.Mutex
	running bool
}

func NewReconcileJob(reconciler Reconciler, schedule string, timeout time.Duration, log logger.ILogger) *ReconcileJob {
	if schedule == "" {
		schedule = DefaultReconcileSchedule
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &ReconcileJob{
		cron:       cron.New(),
		reconciler: reconciler,
		schedule:   schedule,
		timeout:    timeout,
		logger:     log,
	}
}

func (j *ReconcileJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() {
		j.Run(context.Background())
	}); err != nil {
		return err
	}
	j.cron.Start()

	j.logger.Info("CRON", "Subscription reconcile scheduled", map[string]interface{}{
		"schedule": j.schedule,
	})
	return nil
}

// Stop halts scheduling and returns a context done once a running sweep
// finishes.
func (j *ReconcileJob) Stop() context.Context {
	return j.cron.Stop()
}

// Run performs one sweep. Overlapping sweeps are skipped.
func (j *ReconcileJob) Run(ctx context.Context) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.logger.Warn("CRON", "Previous reconcile still running, skipping", nil)
		return
	}
	j.running = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	changed, err := j.reconciler.ReconcileAll(ctx)
	details := map[string]interface{}{
		"changed":     changed,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		details["error"] = err.Error()
		j.logger.Error("CRON", "Subscription reconcile failed", details)
		return
	}
	j.logger.Info("CRON", "Subscription reconcile finished", details)
}
