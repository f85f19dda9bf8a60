package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler(context.Background())
	defer s.Stop()
	if err := s.AddJob("metrics", DefaultMetricsRefreshCron, func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
}

func TestSchedulerAddJobInvalidExpr(t *testing.T) {
	s := NewScheduler(context.Background())
	defer s.Stop()
	for _, expr := range []string{"", "every minute", "* * * *", "*/5 * * * * *"} {
		if err := s.AddJob("bad", expr, func(ctx context.Context) error { return nil }); err == nil {
			t.Errorf("expected error for cron %q", expr)
		}
	}
}

func TestRunNowAppliesTimeout(t *testing.T) {
	s := NewScheduler(context.Background(), WithJobTimeout(20*time.Millisecond))
	defer s.Stop()

	var deadlineSet bool
	var ctxErr error
	s.RunNow("slow", func(ctx context.Context) error {
		_, deadlineSet = ctx.Deadline()
		<-ctx.Done()
		ctxErr = ctx.Err()
		return ctxErr
	})
	if !deadlineSet {
		t.Error("expected job context to carry a deadline")
	}
	if !errors.Is(ctxErr, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", ctxErr)
	}
}

func TestStopCancelsJobContext(t *testing.T) {
	s := NewScheduler(context.Background(), WithJobTimeout(time.Hour))
	started := make(chan struct{})
	finished := make(chan error, 1)
	go s.RunNow("blocking", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		finished <- ctx.Err()
		return nil
	})
	<-started
	s.Stop()

	select {
	case err := <-finished:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("job was not cancelled by Stop")
	}
}
