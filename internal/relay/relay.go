// Package relay keeps a per-guild, append-only log of device and human
// messages.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/devicelink/internal/observability"
)

// Limits for List.
const (
	DefaultLimit = 200
	MaxLimit     = 200
)

// DefaultSource tags messages appended without a source.
const DefaultSource = "device"

var (
	// ErrEmptyMessage is returned for blank text.
	ErrEmptyMessage = errors.New("relay: message text is required")

	// ErrMissingGuildID is returned when no guild was resolved.
	ErrMissingGuildID = errors.New("relay: guild id is required")
)

// Message is an immutable relay entry.
type Message struct {
	ID         string    `json:"id"`
	GuildID    string    `json:"guildId"`
	Text       string    `json:"text"`
	Source     string    `json:"source"`
	DriverName string    `json:"driverName,omitempty"`
	CreatedAt  time.Time `json:"createdUtc"`
}

// Forwarder receives device messages that name a driver, after they are appended.
type Forwarder interface {
	Forward(ctx context.Context, msg Message) error
}

// ForwarderFunc adapts a function to Forwarder.
type ForwarderFunc func(ctx context.Context, msg Message) error

// Forward calls f.
func (f ForwarderFunc) Forward(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

type bucket struct {
	mu       sync.Mutex
	messages []Message
}

// Relay holds one bucket per guild.
type Relay struct {
	mu      sync.RWMutex
	buckets map[string]*bucket

	clock     func() time.Time
	forwarder Forwarder
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option customizes a Relay.
type Option func(*Relay)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(r *Relay) { r.clock = clock }
}

// WithForwarder sets the forwarder for device messages.
func WithForwarder(f Forwarder) Option {
	return func(r *Relay) { r.forwarder = f }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger.With("component", "relay")
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// New creates an empty Relay.
func New(opts ...Option) *Relay {
	r := &Relay{
		buckets: make(map[string]*bucket),
		clock:   time.Now,
		logger:  slog.Default().With("component", "relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetForwarder replaces the forwarder. It exists for wiring cycles where the
// forwarder depends on components built after the relay.
func (r *Relay) SetForwarder(f Forwarder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forwarder = f
}

// EnsureBucket creates the bucket for guildID if needed.
func (r *Relay) EnsureBucket(guildID string) {
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return
	}
	r.bucketFor(guildID, true)
}

// Append stores a message and returns its ID.
func (r *Relay) Append(ctx context.Context, guildID, text, source, driverName string) (string, error) {
	guildID = strings.TrimSpace(guildID)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	if guildID == "" {
		return "", ErrMissingGuildID
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = DefaultSource
	}

	msg := Message{
		ID:         uuid.NewString(),
		GuildID:    guildID,
		Text:       text,
		Source:     source,
		DriverName: strings.TrimSpace(driverName),
	}

	// The timestamp is taken under the bucket lock and never precedes the
	// previous entry, so slice order is creation order.
	b := r.bucketFor(guildID, true)
	b.mu.Lock()
	msg.CreatedAt = r.clock().UTC()
	if n := len(b.messages); n > 0 && msg.CreatedAt.Before(b.messages[n-1].CreatedAt) {
		msg.CreatedAt = b.messages[n-1].CreatedAt
	}
	b.messages = append(b.messages, msg)
	b.mu.Unlock()

	r.metrics.RelayMessage(source)
	r.logger.Debug("message appended",
		"guild_id", guildID,
		"id", msg.ID,
		"source", source,
		"driver", msg.DriverName,
	)

	r.mu.RLock()
	forwarder := r.forwarder
	r.mu.RUnlock()
	if forwarder != nil && source == DefaultSource && msg.DriverName != "" {
		if err := forwarder.Forward(ctx, msg); err != nil {
			r.logger.Warn("failed to forward message",
				"guild_id", guildID,
				"id", msg.ID,
				"driver", msg.DriverName,
				"error", err,
			)
		}
	}
	return msg.ID, nil
}

// List returns up to limit messages for guildID, newest first, optionally
// filtered by driver name (case-insensitive). A limit outside (0, MaxLimit]
// becomes DefaultLimit or MaxLimit.
func (r *Relay) List(ctx context.Context, guildID, driverName string, limit int) ([]Message, error) {
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return nil, ErrMissingGuildID
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	driverName = strings.TrimSpace(driverName)

	out := make([]Message, 0)
	b := r.bucketFor(guildID, false)
	if b == nil {
		return out, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.messages) - 1; i >= 0 && len(out) < limit; i-- {
		msg := b.messages[i]
		if driverName != "" && !strings.EqualFold(msg.DriverName, driverName) {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Guilds returns the number of buckets.
func (r *Relay) Guilds() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buckets)
}

func (r *Relay) bucketFor(guildID string, create bool) *bucket {
	r.mu.RLock()
	b, ok := r.buckets[guildID]
	r.mu.RUnlock()
	if ok || !create {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[guildID]; ok {
		return b
	}
	b = &bucket{}
	r.buckets[guildID] = b
	return b
}
