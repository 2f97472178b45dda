// Package cron runs named maintenance jobs on cron schedules.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Scheduler runs jobs whose next activation has passed, checking once per
// tick. A job never overlaps with itself.
type Scheduler struct {
	logger       *slog.Logger
	now          func() time.Time
	tickInterval time.Duration

	mu      sync.Mutex
	jobs    []*Job
	running map[string]bool
	started bool
	wg      sync.WaitGroup
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLogger configures the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger.With("component", "cron")
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the scheduler tick interval.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// NewScheduler creates an empty scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:       slog.Default().With("component", "cron"),
		now:          time.Now,
		tickInterval: time.Second,
		running:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers task under name on the cron expression expr.
func (s *Scheduler) Add(name, expr string, task Task) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("job name required")
	}
	if task == nil {
		return fmt.Errorf("job %s: task required", name)
	}
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	next, err := schedule.Next(s.now())
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.Name == name {
			return fmt.Errorf("job %s already registered", name)
		}
	}
	s.jobs = append(s.jobs, &Job{Name: name, Schedule: schedule, Task: task, NextRun: next})
	s.logger.Debug("cron job added", "name", name, "schedule", schedule.Expr, "next_run", next)
	return nil
}

// Start begins running jobs until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
	return nil
}

// Stop waits for the scheduler loop to stop.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes due jobs immediately and returns how many ran.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if s == nil {
		return 0
	}
	return s.runDue(ctx)
}

// Jobs returns a snapshot of registered jobs.
func (s *Scheduler) Jobs() []Status {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.status())
	}
	return out
}

// RunJob executes the named job now without moving its next activation.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	if s == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("job name required")
	}

	s.mu.Lock()
	var target *Job
	for _, job := range s.jobs {
		if job.Name == name {
			target = job
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return fmt.Errorf("job %s not found", name)
	}
	if s.running[name] {
		s.mu.Unlock()
		return fmt.Errorf("job %s is already running", name)
	}
	s.running[name] = true
	target.LastRun = s.now()
	s.mu.Unlock()

	err := s.execute(ctx, target)

	s.mu.Lock()
	s.finish(target, err)
	s.mu.Unlock()
	return err
}

func (s *Scheduler) runDue(ctx context.Context) int {
	now := s.now()
	s.mu.Lock()
	due := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.NextRun.IsZero() || now.Before(job.NextRun) || s.running[job.Name] {
			continue
		}
		s.running[job.Name] = true
		job.LastRun = now
		due = append(due, job)
	}
	s.mu.Unlock()

	for _, job := range due {
		err := s.execute(ctx, job)
		if err != nil {
			s.logger.Warn("cron job failed", "name", job.Name, "error", err)
		}

		next, nextErr := job.Schedule.Next(now)
		s.mu.Lock()
		s.finish(job, err)
		if nextErr != nil {
			job.LastError = nextErr.Error()
			job.NextRun = time.Time{}
		} else {
			job.NextRun = next
		}
		s.mu.Unlock()
	}
	return len(due)
}

// finish records a run. Callers hold s.mu.
func (s *Scheduler) finish(job *Job, err error) {
	delete(s.running, job.Name)
	job.Runs++
	if err != nil {
		job.LastError = err.Error()
	} else {
		job.LastError = ""
	}
}

func (s *Scheduler) execute(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	start := s.now()
	err = job.Task(ctx)
	s.logger.Debug("cron job ran", "name", job.Name, "duration", s.now().Sub(start), "error", err)
	return err
}
