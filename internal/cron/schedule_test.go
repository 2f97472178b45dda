package cron

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		expr    string
		want    time.Time
		wantErr bool
	}{
		{expr: "*/5 * * * *", want: now.Add(5 * time.Minute)},
		{expr: "30 * * * * *", want: now.Add(30 * time.Second)},
		{expr: "@hourly", want: now.Add(time.Hour)},
		{expr: "@every 10m", want: now.Add(10 * time.Minute)},
		{expr: "", wantErr: true},
		{expr: "invalid cron expr", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sched, err := ParseSchedule(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchedule() error = %v", err)
			}
			next, err := sched.Next(now)
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}
			if !next.Equal(tt.want) {
				t.Fatalf("Next() = %v, want %v", next, tt.want)
			}
		})
	}
}

func TestZeroScheduleNext(t *testing.T) {
	if _, err := (Schedule{Expr: "@hourly"}).Next(time.Now()); err == nil {
		t.Fatal("expected error for an unparsed schedule")
	}
}
