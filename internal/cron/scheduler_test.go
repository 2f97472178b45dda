package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/devicelink/internal/linking"
	"github.com/haasonsaas/devicelink/internal/observability"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestScheduler() (*Scheduler, *testClock) {
	clock := &testClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(WithNow(clock.Now), WithLogger(logger)), clock
}

func TestAddValidation(t *testing.T) {
	s, _ := newTestScheduler()
	noop := func(context.Context) error { return nil }

	if err := s.Add("", "@hourly", noop); err == nil {
		t.Error("expected error for blank name")
	}
	if err := s.Add("a", "@hourly", nil); err == nil {
		t.Error("expected error for nil task")
	}
	if err := s.Add("a", "bogus", noop); err == nil {
		t.Error("expected error for bad expression")
	}
	if err := s.Add("a", "@hourly", noop); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Add("a", "@daily", noop); err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Errorf("duplicate Add() error = %v", err)
	}
}

func TestRunOnceRunsOnlyDueJobs(t *testing.T) {
	s, clock := newTestScheduler()
	var fast, slow atomic.Int32
	_ = s.Add("fast", "@every 1m", func(context.Context) error { fast.Add(1); return nil })
	_ = s.Add("slow", "@every 1h", func(context.Context) error { slow.Add(1); return nil })

	if n := s.RunOnce(context.Background()); n != 0 {
		t.Fatalf("RunOnce() before any deadline = %d, want 0", n)
	}

	clock.Advance(time.Minute)
	if n := s.RunOnce(context.Background()); n != 1 {
		t.Fatalf("RunOnce() = %d, want 1", n)
	}
	if fast.Load() != 1 || slow.Load() != 0 {
		t.Fatalf("runs fast=%d slow=%d", fast.Load(), slow.Load())
	}

	jobs := s.Jobs()
	if len(jobs) != 2 || jobs[0].Name != "fast" {
		t.Fatalf("Jobs() = %+v", jobs)
	}
	if jobs[0].Runs != 1 || !jobs[0].NextRun.Equal(clock.Now().Add(time.Minute)) {
		t.Fatalf("fast status = %+v", jobs[0])
	}
}

func TestRunJobRecordsErrorsAndPanics(t *testing.T) {
	s, _ := newTestScheduler()
	_ = s.Add("fails", "@hourly", func(context.Context) error { return errors.New("boom") })
	_ = s.Add("panics", "@hourly", func(context.Context) error { panic("oops") })

	if err := s.RunJob(context.Background(), "fails"); err == nil || err.Error() != "boom" {
		t.Fatalf("RunJob(fails) error = %v", err)
	}
	if err := s.RunJob(context.Background(), "panics"); err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("RunJob(panics) error = %v", err)
	}
	if err := s.RunJob(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown job")
	}

	for _, job := range s.Jobs() {
		if job.LastError == "" || job.Runs != 1 {
			t.Errorf("job %s status = %+v", job.Name, job)
		}
	}
}

func TestStartStop(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	s := NewScheduler(
		WithNow(clock.Now),
		WithTickInterval(5*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	ran := make(chan struct{}, 1)
	_ = s.Add("tick", "@every 1s", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})
	clock.Advance(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestLinkTasks(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	svc := linking.NewService(linking.Config{},
		linking.WithClock(clock.Now),
		linking.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	ctx := context.Background()
	_, _ = svc.Register(ctx, linking.RegisterRequest{Code: "ONE"})
	_, _ = svc.Register(ctx, linking.RegisterRequest{Code: "TWO"})
	_, _ = svc.Confirm(ctx, linking.ConfirmRequest{Code: "TWO", GuildID: "7"})

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	if err := LinkGaugeTask(svc, metrics)(ctx); err != nil {
		t.Fatalf("gauge task error = %v", err)
	}
	if got := testutil.ToFloat64(metrics.LinkRecords.WithLabelValues(string(linking.StatusPendingDevice))); got != 1 {
		t.Errorf("pending gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.LinkRecords.WithLabelValues(string(linking.StatusLinked))); got != 1 {
		t.Errorf("linked gauge = %v, want 1", got)
	}

	clock.Advance(2 * time.Hour)
	if err := LinkSweepTask(svc, time.Hour)(ctx); err != nil {
		t.Fatalf("sweep task error = %v", err)
	}
	if _, ok := svc.Get("ONE"); ok {
		t.Error("expired record should be swept")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := LinkSweepTask(svc, time.Hour)(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("sweep on cancelled context = %v", err)
	}
}
