package cron

import (
	"context"
	"time"

	"github.com/haasonsaas/devicelink/internal/linking"
	"github.com/haasonsaas/devicelink/internal/observability"
)

// LinkStats reports link record counts by status.
type LinkStats interface {
	Stats() map[linking.Status]int
}

// LinkSweeper drops long-expired link records.
type LinkSweeper interface {
	Sweep(retain time.Duration) int
}

// LinkGaugeTask refreshes the link record gauges.
func LinkGaugeTask(stats LinkStats, metrics *observability.Metrics) Task {
	return func(context.Context) error {
		counts := stats.Stats()
		byStatus := make(map[string]int, len(counts))
		for status, n := range counts {
			byStatus[string(status)] = n
		}
		metrics.SetLinkRecords(byStatus)
		return nil
	}
}

// LinkSweepTask drops records that expired more than retain ago.
func LinkSweepTask(sweeper LinkSweeper, retain time.Duration) Task {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		sweeper.Sweep(retain)
		return nil
	}
}
