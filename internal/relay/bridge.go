package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/devicelink/internal/identity"
	"github.com/haasonsaas/devicelink/internal/roster"
)

// SourceDiscord tags messages typed by people in a routed thread.
const SourceDiscord = "discord"

// ThreadResolver maps a routed thread back to its identity.
type ThreadResolver interface {
	IdentityForThread(ctx context.Context, threadID uint64) (identity.Key, bool, error)
}

// IdentityDirectory finds the roster record for an identity.
type IdentityDirectory interface {
	ByIdentity(ctx context.Context, key identity.Key) (*roster.Record, error)
}

// ThreadBridge appends human messages from routed threads to the relay,
// tagged with the driver the thread belongs to.
type ThreadBridge struct {
	Relay     *Relay
	Threads   ThreadResolver
	Directory IdentityDirectory
	Logger    *slog.Logger
}

// HandleThreadMessage appends content when threadID is a routed thread in
// guildID. Messages in other channels are ignored.
func (b *ThreadBridge) HandleThreadMessage(ctx context.Context, guildID string, threadID uint64, authorID, content string) error {
	key, ok, err := b.Threads.IdentityForThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("resolve thread %d: %w", threadID, err)
	}
	if !ok || key.GuildID != guildID {
		return nil
	}

	driver, err := b.driverFor(ctx, key)
	if err != nil {
		return err
	}
	id, err := b.Relay.Append(ctx, key.GuildID, content, SourceDiscord, driver)
	if err != nil {
		return err
	}
	if b.Logger != nil {
		b.Logger.Debug("thread message relayed",
			"guild_id", key.GuildID,
			"thread_id", threadID,
			"author_id", authorID,
			"driver", driver,
			"id", id,
		)
	}
	return nil
}

// driverFor returns the roster name for key, or "" when it has none.
func (b *ThreadBridge) driverFor(ctx context.Context, key identity.Key) (string, error) {
	if b.Directory == nil {
		return "", nil
	}
	rec, err := b.Directory.ByIdentity(ctx, key)
	switch {
	case err == nil:
		return rec.Name, nil
	case errors.Is(err, roster.ErrNotFound):
		return "", nil
	default:
		return "", fmt.Errorf("roster lookup for %s: %w", key, err)
	}
}
