package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/devicelink/internal/identity"
	"github.com/haasonsaas/devicelink/internal/roster"
)

type recordingSender struct {
	keys     []identity.Key
	contents []string
	err      error
}

func (s *recordingSender) SendToIdentity(ctx context.Context, key identity.Key, content string) (uint64, error) {
	s.keys = append(s.keys, key)
	s.contents = append(s.contents, content)
	return 99, s.err
}

func TestThreadForwarder(t *testing.T) {
	ctx := context.Background()
	dir := roster.NewMemoryStore()
	if err := dir.Put(ctx, &roster.Record{Name: "alice", GuildID: "1", UserID: "100"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	sender := &recordingSender{}
	fwd := &ThreadForwarder{Directory: dir, Sender: sender}

	if err := fwd.Forward(ctx, Message{GuildID: "1", DriverName: "Alice", Text: "arrived"}); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if len(sender.keys) != 1 || sender.keys[0] != identity.New("1", "100") {
		t.Fatalf("sent to %v, want 1:100", sender.keys)
	}
	if sender.contents[0] != "**Alice** (device): arrived" {
		t.Fatalf("content = %q", sender.contents[0])
	}

	err := fwd.Forward(ctx, Message{GuildID: "1", DriverName: "bob", Text: "hi"})
	if !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("unknown driver error = %v", err)
	}

	sender.err = errors.New("discord down")
	if err := fwd.Forward(ctx, Message{GuildID: "1", DriverName: "alice", Text: "x"}); err == nil {
		t.Fatal("expected send error")
	}
}

func TestRelayUsesThreadForwarder(t *testing.T) {
	ctx := context.Background()
	dir := roster.NewMemoryStore()
	_ = dir.Put(ctx, &roster.Record{Name: "alice", GuildID: "1", UserID: "100"})
	sender := &recordingSender{}

	r := newTestRelay()
	r.SetForwarder(&ThreadForwarder{Directory: dir, Sender: sender})
	if _, err := r.Append(ctx, "1", "hello", "", "alice"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if len(sender.contents) != 1 {
		t.Fatalf("forwarded %d messages, want 1", len(sender.contents))
	}
}
