// Package router maps identities to Discord threads, creating a private
// thread under the dispatch channel the first time an identity is seen.
//
// Lookups are lock-free. Creation runs under one process-wide mutex with a
// double check, so concurrent callers for the same identity observe a single
// thread. A mapping whose thread has disappeared is removed and replaced.
//
// A crash after the platform creates a thread but before the mapping is
// persisted leaves an orphaned thread; the next call creates a new one.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/devicelink/internal/channels"
	"github.com/haasonsaas/devicelink/internal/identity"
	"github.com/haasonsaas/devicelink/internal/observability"
	"github.com/haasonsaas/devicelink/internal/roster"
	"github.com/haasonsaas/devicelink/internal/threadmap"
)

// DefaultArchiveMinutes is the auto-archive duration of created threads (one week).
const DefaultArchiveMinutes = 10080

// DefaultIntro is posted into every new thread. {user} is replaced by a user mention.
const DefaultIntro = "This thread is linked to <@{user}>. Device messages for this driver will appear here."

// ErrDispatchChannel is wrapped by configuration errors about the dispatch channel.
var ErrDispatchChannel = errors.New("router: dispatch channel is not a usable text channel")

// Platform is the subset of the chat platform the router needs.
type Platform interface {
	// ThreadExists reports whether threadID still resolves. A missing
	// thread is (false, nil); transport failures are errors.
	ThreadExists(ctx context.Context, threadID uint64) (bool, error)

	// ValidateTextChannel returns an error unless channelID is a
	// text channel that can hold threads.
	ValidateTextChannel(ctx context.Context, channelID uint64) error

	CreatePrivateThread(ctx context.Context, parentID uint64, name string, archiveMinutes int) (uint64, error)
	AddThreadMember(ctx context.Context, threadID uint64, userID string) error
	SendMessage(ctx context.Context, channelID uint64, content string) error
}

// Directory supplies display names for thread naming.
type Directory interface {
	ByIdentity(ctx context.Context, key identity.Key) (*roster.Record, error)
}

// Config configures a Router.
type Config struct {
	// DispatchChannelID is the parent channel for every created thread.
	DispatchChannelID uint64

	// ArchiveMinutes defaults to DefaultArchiveMinutes.
	ArchiveMinutes int

	// Intro defaults to DefaultIntro. Set DisableIntro to skip it.
	Intro        string
	DisableIntro bool

	// IntroTimeout bounds the background intro post. Defaults to 30s.
	IntroTimeout time.Duration
}

// Router implements thread routing and manual overrides.
type Router struct {
	store     threadmap.Store
	platform  Platform
	directory Directory
	config    Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer

	// createMu serializes every thread creation in the process.
	createMu sync.Mutex

	background sync.WaitGroup
}

// Option customizes a Router.
type Option func(*Router)

// WithDirectory sets the display name source.
func WithDirectory(d Directory) Option {
	return func(r *Router) { r.directory = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger.With("component", "router")
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Router) { r.tracer = t }
}

// New creates a Router.
func New(store threadmap.Store, platform Platform, config Config, opts ...Option) *Router {
	if config.ArchiveMinutes <= 0 {
		config.ArchiveMinutes = DefaultArchiveMinutes
	}
	if strings.TrimSpace(config.Intro) == "" {
		config.Intro = DefaultIntro
	}
	if config.IntroTimeout <= 0 {
		config.IntroTimeout = 30 * time.Second
	}
	r := &Router{
		store:    store,
		platform: platform,
		config:   config,
		logger:   slog.Default().With("component", "router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreateThread returns the thread for key, creating it if needed.
func (r *Router) GetOrCreateThread(ctx context.Context, key identity.Key) (threadID uint64, err error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	slot := key.String()

	ctx, span := r.tracer.Start(ctx, "router.get_or_create_thread", attribute.String("identity", slot))
	defer func() { observability.EndSpan(span, err) }()

	threadID, ok, err := r.lookup(ctx, slot)
	if err != nil {
		r.metrics.ThreadLookup("error")
		return 0, err
	}
	if ok {
		r.metrics.ThreadLookup("fast_path")
		return threadID, nil
	}

	threadID, created, err := r.createOnce(ctx, key)
	if err != nil {
		r.metrics.ThreadLookup("error")
		return 0, err
	}
	if !created {
		r.metrics.ThreadLookup("double_check")
		return threadID, nil
	}
	r.metrics.ThreadLookup("created")
	span.SetAttributes(attribute.Bool("created", true))

	if !r.config.DisableIntro {
		r.postIntro(ctx, key, threadID)
	}
	return threadID, nil
}

// createOnce holds the creation lock, re-checks the mapping and creates the
// thread if it is still missing.
func (r *Router) createOnce(ctx context.Context, key identity.Key) (uint64, bool, error) {
	slot := key.String()

	r.createMu.Lock()
	defer r.createMu.Unlock()
	start := time.Now()
	defer func() { r.metrics.ObserveThreadCreate(time.Since(start)) }()

	threadID, ok, err := r.lookup(ctx, slot)
	if err != nil {
		return 0, false, err
	}
	if ok {
		return threadID, false, nil
	}

	parentID := r.config.DispatchChannelID
	if parentID == 0 {
		return 0, false, channels.ErrConfig("dispatch channel is not configured", ErrDispatchChannel)
	}
	if err := r.platform.ValidateTextChannel(ctx, parentID); err != nil {
		if channels.IsRetryable(err) {
			r.metrics.PlatformError("validate_channel", string(channels.GetErrorCode(err)))
			return 0, false, err
		}
		return 0, false, channels.ErrConfig("dispatch channel unusable", fmt.Errorf("%w: %v", ErrDispatchChannel, err)).
			WithContext("channel_id", parentID)
	}

	name := ThreadName(key, r.displayName(ctx, key))
	threadID, err = r.platform.CreatePrivateThread(ctx, parentID, name, r.config.ArchiveMinutes)
	if err != nil {
		r.metrics.PlatformError("create_thread", string(channels.GetErrorCode(err)))
		return 0, false, transient("create thread", err)
	}

	if err := r.platform.AddThreadMember(ctx, threadID, key.UserID); err != nil {
		r.logger.Warn("failed to add user to thread",
			"thread_id", threadID,
			"user_id", key.UserID,
			"error", err,
		)
	}

	if err := r.store.Set(ctx, slot, threadID); err != nil {
		r.logger.Error("thread created but mapping not persisted",
			"identity", slot,
			"thread_id", threadID,
			"error", err,
		)
		return 0, false, fmt.Errorf("router: persist mapping: %w", err)
	}

	r.logger.Info("thread created",
		"identity", slot,
		"thread_id", threadID,
		"name", name,
	)
	return threadID, true, nil
}

// lookup returns a mapped thread that still resolves. A mapping whose thread
// is gone is removed and reported as missing.
func (r *Router) lookup(ctx context.Context, slot string) (uint64, bool, error) {
	threadID, ok, err := r.store.Get(ctx, slot)
	if err != nil {
		return 0, false, fmt.Errorf("router: read mapping: %w", err)
	}
	if !ok {
		return 0, false, nil
	}

	exists, err := r.platform.ThreadExists(ctx, threadID)
	if err != nil && !channels.IsNotFound(err) {
		r.metrics.PlatformError("thread_exists", string(channels.GetErrorCode(err)))
		return 0, false, transient("check thread", err)
	}
	if err == nil && exists {
		return threadID, true, nil
	}

	removed, err := r.store.RemoveIf(ctx, slot, threadID)
	if err != nil {
		r.logger.Warn("failed to remove stale thread mapping",
			"identity", slot,
			"thread_id", threadID,
			"error", err,
		)
		return 0, false, nil
	}
	if removed {
		r.metrics.StaleThreadRemoved()
		r.logger.Info("removed stale thread mapping", "identity", slot, "thread_id", threadID)
	}
	return 0, false, nil
}

func (r *Router) displayName(ctx context.Context, key identity.Key) string {
	if r.directory == nil {
		return ""
	}
	rec, err := r.directory.ByIdentity(ctx, key)
	if err != nil {
		if !errors.Is(err, roster.ErrNotFound) {
			r.logger.Debug("display name lookup failed", "identity", key.String(), "error", err)
		}
		return ""
	}
	if rec.DisplayName != "" {
		return rec.DisplayName
	}
	return rec.Name
}

// postIntro sends the intro message in the background. Failures are logged.
func (r *Router) postIntro(ctx context.Context, key identity.Key, threadID uint64) {
	content := strings.ReplaceAll(r.config.Intro, "{user}", key.UserID)
	bg := context.WithoutCancel(ctx)

	r.background.Add(1)
	go func() {
		defer r.background.Done()
		sendCtx, cancel := context.WithTimeout(bg, r.config.IntroTimeout)
		defer cancel()
		if err := r.platform.SendMessage(sendCtx, threadID, content); err != nil {
			r.logger.Warn("failed to post intro message", "thread_id", threadID, "error", err)
		}
	}()
}

// Wait blocks until background intro posts have finished.
func (r *Router) Wait() {
	r.background.Wait()
}

// SetOverride maps key to threadID without locking or validation. An
// unreachable thread is detected and replaced on the next GetOrCreateThread.
func (r *Router) SetOverride(ctx context.Context, key identity.Key, threadID uint64) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := r.store.Set(ctx, key.String(), threadID); err != nil {
		return fmt.Errorf("router: override: %w", err)
	}
	r.metrics.OverrideWritten()
	r.logger.Info("thread override set", "identity", key.String(), "thread_id", threadID)
	return nil
}

// Lookup returns the stored mapping for key without consulting the platform.
func (r *Router) Lookup(ctx context.Context, key identity.Key) (uint64, bool, error) {
	if err := key.Validate(); err != nil {
		return 0, false, err
	}
	return r.store.Get(ctx, key.String())
}

// IdentityForThread returns the identity mapped to threadID.
func (r *Router) IdentityForThread(ctx context.Context, threadID uint64) (identity.Key, bool, error) {
	raw, ok, err := r.store.KeyForThread(ctx, threadID)
	if err != nil || !ok {
		return identity.Key{}, ok, err
	}
	key, err := identity.Parse(raw)
	if err != nil {
		return identity.Key{}, false, err
	}
	return key, true, nil
}

// SendToIdentity routes key to its thread and posts content there.
func (r *Router) SendToIdentity(ctx context.Context, key identity.Key, content string) (uint64, error) {
	threadID, err := r.GetOrCreateThread(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := r.platform.SendMessage(ctx, threadID, content); err != nil {
		r.metrics.PlatformError("send_message", string(channels.GetErrorCode(err)))
		return threadID, transient("send message", err)
	}
	return threadID, nil
}

// transient wraps err so callers see a retryable platform error.
func transient(op string, err error) error {
	if channels.IsRetryable(err) {
		return err
	}
	return channels.ErrUnavailable(op, err)
}
