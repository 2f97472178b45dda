package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/devicelink/internal/identity"
	"github.com/haasonsaas/devicelink/internal/roster"
)

// ErrUnknownDriver is returned when a message names a driver missing from
// the roster.
var ErrUnknownDriver = errors.New("relay: driver is not on the roster")

// DriverDirectory resolves driver names to roster records.
type DriverDirectory interface {
	ByName(ctx context.Context, guildID, name string) (*roster.Record, error)
}

// ThreadSender posts into the thread routed for an identity.
type ThreadSender interface {
	SendToIdentity(ctx context.Context, key identity.Key, content string) (uint64, error)
}

// ThreadForwarder posts device messages into the named driver's thread.
type ThreadForwarder struct {
	Directory DriverDirectory
	Sender    ThreadSender

	// Timeout bounds a single forward, including thread creation.
	// Zero means 30s.
	Timeout time.Duration
}

// Forward implements Forwarder.
func (f *ThreadForwarder) Forward(ctx context.Context, msg Message) error {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rec, err := f.Directory.ByName(ctx, msg.GuildID, msg.DriverName)
	if err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownDriver, msg.DriverName)
		}
		return err
	}
	if _, err := f.Sender.SendToIdentity(ctx, rec.Key(), formatForward(msg)); err != nil {
		return fmt.Errorf("forward to %s: %w", rec.Key(), err)
	}
	return nil
}

func formatForward(msg Message) string {
	return fmt.Sprintf("**%s** (device): %s", msg.DriverName, msg.Text)
}
