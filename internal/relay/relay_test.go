package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestRelay(opts ...Option) *Relay {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(append([]Option{WithClock(clock), WithLogger(logger)}, opts...)...)
}

func TestAppendAndListNewestFirst(t *testing.T) {
	r := newTestRelay()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Append(ctx, "42", fmt.Sprintf("msg %d", i), "", "alice"); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	items, err := r.List(ctx, "42", "", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("List() returned %d items, want 3", len(items))
	}
	if items[0].Text != "msg 2" || items[2].Text != "msg 0" {
		t.Fatalf("List() order = %q..%q, want newest first", items[0].Text, items[2].Text)
	}
	if items[0].Source != DefaultSource {
		t.Errorf("source = %q, want %q", items[0].Source, DefaultSource)
	}
	if items[0].ID == "" || items[0].ID == items[1].ID {
		t.Error("expected unique ids")
	}
}

func TestAppendValidation(t *testing.T) {
	r := newTestRelay()
	ctx := context.Background()

	if _, err := r.Append(ctx, "42", "   ", "", ""); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank text error = %v, want ErrEmptyMessage", err)
	}
	if _, err := r.Append(ctx, "", "hello", "", ""); !errors.Is(err, ErrMissingGuildID) {
		t.Errorf("blank guild error = %v, want ErrMissingGuildID", err)
	}
	if _, err := r.List(ctx, " ", "", 0); !errors.Is(err, ErrMissingGuildID) {
		t.Errorf("List blank guild error = %v, want ErrMissingGuildID", err)
	}
}

func TestListDriverFilterAndLimit(t *testing.T) {
	r := newTestRelay()
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		driver := "alice"
		if i%2 == 0 {
			driver = "Bob"
		}
		_, _ = r.Append(ctx, "1", fmt.Sprintf("m%d", i), "device", driver)
	}

	all, _ := r.List(ctx, "1", "", 1000)
	if len(all) != MaxLimit {
		t.Fatalf("List() len = %d, want cap %d", len(all), MaxLimit)
	}

	bob, _ := r.List(ctx, "1", "bob", 10)
	if len(bob) != 10 {
		t.Fatalf("filtered len = %d, want 10", len(bob))
	}
	for _, m := range bob {
		if m.DriverName != "Bob" {
			t.Fatalf("filter leaked driver %q", m.DriverName)
		}
	}
	if bob[0].Text != "m248" {
		t.Fatalf("newest bob message = %q, want m248", bob[0].Text)
	}
}

func TestBucketsAreIsolated(t *testing.T) {
	r := newTestRelay()
	ctx := context.Background()
	_, _ = r.Append(ctx, "1", "one", "", "")
	r.EnsureBucket("2")

	items, err := r.List(ctx, "2", "", 0)
	if err != nil || len(items) != 0 {
		t.Fatalf("List(2) = %v, %v; want empty", items, err)
	}
	missing, err := r.List(ctx, "3", "", 0)
	if err != nil || missing == nil || len(missing) != 0 {
		t.Fatalf("List(unknown) = %v, %v; want empty non-nil", missing, err)
	}
	if r.Guilds() != 2 {
		t.Fatalf("Guilds() = %d, want 2", r.Guilds())
	}
}

func TestForwarder(t *testing.T) {
	var forwarded []Message
	fwd := ForwarderFunc(func(ctx context.Context, msg Message) error {
		forwarded = append(forwarded, msg)
		return errors.New("thread unavailable")
	})
	r := newTestRelay(WithForwarder(fwd))
	ctx := context.Background()

	if _, err := r.Append(ctx, "1", "with driver", "", "alice"); err != nil {
		t.Fatalf("forward failure must not fail Append: %v", err)
	}
	_, _ = r.Append(ctx, "1", "no driver", "", "")
	_, _ = r.Append(ctx, "1", "from discord", "discord", "alice")

	if len(forwarded) != 1 || forwarded[0].Text != "with driver" {
		t.Fatalf("forwarded = %+v, want only the device message with a driver", forwarded)
	}
}

func TestConcurrentAppend(t *testing.T) {
	r := newTestRelay()
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(g, i int) {
				defer wg.Done()
				_, _ = r.Append(ctx, fmt.Sprint(g), fmt.Sprintf("m%d", i), "", "")
			}(g, i)
		}
	}
	wg.Wait()

	for g := 0; g < 4; g++ {
		items, _ := r.List(ctx, fmt.Sprint(g), "", 0)
		if len(items) != 25 {
			t.Fatalf("guild %d has %d messages, want 25", g, len(items))
		}
		assertNewestFirst(t, items)
	}
}

func TestConcurrentAppendKeepsCreationOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var calls atomic.Int64
	// The clock moves forward overall but steps back on every third read.
	clock := func() time.Time {
		n := calls.Add(1)
		offset := time.Duration(n) * time.Millisecond
		if n%3 == 0 {
			offset -= 5 * time.Millisecond
		}
		return base.Add(offset)
	}
	r := New(WithClock(clock), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = r.Append(ctx, "g", fmt.Sprintf("m%d", i), "", "")
		}(i)
	}
	wg.Wait()

	items, err := r.List(ctx, "g", "", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 200 {
		t.Fatalf("len(items) = %d, want 200", len(items))
	}
	assertNewestFirst(t, items)
}

func assertNewestFirst(t *testing.T, items []Message) {
	t.Helper()
	for i := 1; i < len(items); i++ {
		if items[i].CreatedAt.After(items[i-1].CreatedAt) {
			t.Fatalf("items[%d] created %v after items[%d] %v", i, items[i].CreatedAt, i-1, items[i-1].CreatedAt)
		}
	}
}
