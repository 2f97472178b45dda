package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Schedule is a parsed cron expression. Standard five-field expressions,
// an optional leading seconds field and descriptors such as "@hourly" or
// "@every 5m" are accepted.
type Schedule struct {
	Expr string
	spec cron.Schedule
}

// ParseSchedule parses expr into a Schedule.
func ParseSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Schedule{}, fmt.Errorf("schedule is required")
	}
	spec, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return Schedule{Expr: expr, spec: spec}, nil
}

// Next returns the first activation strictly after now.
func (s Schedule) Next(now time.Time) (time.Time, error) {
	if s.spec == nil {
		return time.Time{}, fmt.Errorf("schedule %q is not parsed", s.Expr)
	}
	next := s.spec.Next(now)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("schedule %q never fires", s.Expr)
	}
	return next, nil
}
