// Package scheduler runs DigiLync's periodic background jobs, such as
// refreshing the public metrics snapshot, on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultMetricsRefreshCron recomputes the public metrics every five minutes.
	DefaultMetricsRefreshCron = "*/5 * * * *"
	// DefaultJobTimeout bounds a single job run.
	DefaultJobTimeout = time.Minute
)

// Job is a unit of periodic work. Returned errors are logged, not retried.
type Job func(ctx context.Context) error

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithJobTimeout bounds each job run to d.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewScheduler creates and starts a cron scheduler. Jobs receive a context
// derived from ctx that is cancelled by Stop.
func NewScheduler(ctx context.Context, opts ...Option) *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	jobCtx, cancel := context.WithCancel(ctx)
	s := &Scheduler{cron: c, ctx: jobCtx, cancel: cancel, timeout: DefaultJobTimeout}
	for _, opt := range opts {
		opt(s)
	}
	c.Start()
	return s
}

// AddJob schedules job under name using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(name, expr string, job Job) error {
	if _, err := s.cron.AddFunc(expr, func() { s.run(name, job) }); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, expr, err)
	}
	slog.Info("Scheduler.AddJob: job scheduled", "job", name, "cron", expr)
	return nil
}

// RunNow runs job once, synchronously, with the scheduler's timeout.
func (s *Scheduler) RunNow(name string, job Job) {
	s.run(name, job)
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	start := time.Now()
	if err := job(ctx); err != nil {
		slog.Error("Scheduler.run: job failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	slog.Debug("Scheduler.run: job finished", "job", name, "duration", time.Since(start))
}

// Stop stops the cron scheduler, cancels running jobs and waits for them to finish.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
}
