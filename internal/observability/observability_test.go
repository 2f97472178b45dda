package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewLogger_Redacts(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})

	token := "dlk_" + strings.Repeat("a", 43)
	logger.Info("claimed", "device_token", token, "error", errors.New("bad token "+token))

	out := buf.String()
	if strings.Contains(out, token) {
		t.Fatalf("credential leaked into log: %s", out)
	}
	if !strings.Contains(out, redacted) {
		t.Fatalf("expected redaction marker in %s", out)
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown", "component", "router")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "msg=shown") {
		t.Errorf("expected text output, got %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ThreadLookup("created")
	m.ThreadLookup("created")
	m.ThreadLookup("fast_path")
	m.StaleThreadRemoved()
	m.OverrideWritten()
	m.LinkOperation("claim", "NotLinkedYet")
	m.SetLinkRecords(map[string]int{"Linked": 3})
	m.RelayMessage("device")
	m.ObserveThreadCreate(10 * time.Millisecond)
	m.RecordHTTPRequest("GET", "/messages", "200", time.Millisecond)

	if got := testutil.ToFloat64(m.ThreadLookups.WithLabelValues("created")); got != 2 {
		t.Errorf("created lookups = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StaleThreads); got != 1 {
		t.Errorf("stale threads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LinkRecords.WithLabelValues("Linked")); got != 3 {
		t.Errorf("linked gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.LinkOperations.WithLabelValues("claim", "NotLinkedYet")); got != 1 {
		t.Errorf("claim errors = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ThreadLookup("created")
	m.StaleThreadRemoved()
	m.OverrideWritten()
	m.LinkOperation("register", "ok")
	m.SetLinkRecords(map[string]int{"Claimed": 1})
	m.RelayMessage("device")
	m.PlatformError("create_thread", "NOT_FOUND")
	m.RecordHTTPRequest("GET", "/", "200", 0)
}

func TestTracer_NoEndpoint(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	defer shutdown(context.Background())

	ctx, span := tracer.Start(context.Background(), "router.get_or_create_thread")
	if ctx == nil || span == nil {
		t.Fatal("expected context and span")
	}
	EndSpan(span, errors.New("boom"))

	var nilTracer *Tracer
	_, span = nilTracer.Start(context.Background(), "noop")
	EndSpan(span, nil)
}
