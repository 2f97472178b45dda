package cron

import (
	"context"
	"time"
)

// Task is the work a job performs on each run.
type Task func(ctx context.Context) error

// Job is a named task on a schedule.
type Job struct {
	Name     string
	Schedule Schedule
	Task     Task

	NextRun   time.Time
	LastRun   time.Time
	LastError string
	Runs      int
}

// Status is a read-only view of a job.
type Status struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	NextRun   time.Time `json:"nextRun"`
	LastRun   time.Time `json:"lastRun"`
	LastError string    `json:"lastError,omitempty"`
	Runs      int       `json:"runs"`
}

func (j *Job) status() Status {
	return Status{
		Name:      j.Name,
		Schedule:  j.Schedule.Expr,
		NextRun:   j.NextRun,
		LastRun:   j.LastRun,
		LastError: j.LastError,
		Runs:      j.Runs,
	}
}
