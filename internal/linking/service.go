// Package linking implements the device link handshake.
//
// A device registers a short code, a guild administrator confirms it inside
// Discord, and the device claims the resulting guild binding and credential:
//
//	(none) --Register--> PendingDevice --Confirm--> Linked --Claim--> Claimed
//
// Records live in memory and are kept after they are claimed.
package linking

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/devicelink/internal/observability"
)

// Status is the lifecycle state of a link record.
type Status string

const (
	StatusPendingDevice Status = "PendingDevice"
	StatusLinked        Status = "Linked"
	StatusClaimed       Status = "Claimed"
)

// CredentialPrefix marks device credentials.
const CredentialPrefix = "dlk_"

const credentialBytes = 32

// Record is one handshake attempt.
type Record struct {
	Code       string
	Status     Status
	DriverName string
	DeviceName string

	CreatedAt time.Time
	ExpiresAt time.Time

	// Set by Confirm.
	GuildID           string
	GuildName         string
	ConfirmedByUserID string
	ConfirmedAt       time.Time
	DeviceCredential  string

	ClaimedAt time.Time
}

// Expired reports whether the record is past its expiry at now.
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// RegisterRequest starts a handshake.
type RegisterRequest struct {
	Code       string
	DriverName string
	DeviceName string

	// TTLMinutes of zero selects the default.
	TTLMinutes int
}

// ConfirmRequest binds a code to a guild.
type ConfirmRequest struct {
	Code      string
	GuildID   string
	GuildName string
	UserID    string
}

// ClaimResult is returned to the device.
type ClaimResult struct {
	Code        string
	GuildID     string
	GuildName   string
	DeviceToken string
	Status      Status
}

// BucketEnsurer creates the relay bucket for a confirmed guild.
type BucketEnsurer interface {
	EnsureBucket(guildID string)
}

// Config bounds record lifetimes.
type Config struct {
	DefaultTTL time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration
}

// DefaultConfig returns a 10 minute default clamped to [1, 60] minutes.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 10 * time.Minute,
		MinTTL:     time.Minute,
		MaxTTL:     60 * time.Minute,
	}
}

type entry struct {
	mu  sync.Mutex
	rec Record

	// removed is set once Sweep drops the entry from the table.
	removed bool
}

// Service owns every link record.
//
// The table lock only guards map access. Each record has its own mutex so
// operations on different codes never wait for each other.
type Service struct {
	config  Config
	clock   func() time.Time
	rand    io.Reader
	buckets BucketEnsurer
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	mu      sync.RWMutex
	records map[string]*entry

	// credentials maps a device credential to its code.
	credentials map[string]string
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithRand overrides the credential entropy source.
func WithRand(r io.Reader) Option {
	return func(s *Service) { s.rand = r }
}

// WithBuckets sets the bucket ensurer invoked on confirm.
func WithBuckets(b BucketEnsurer) Option {
	return func(s *Service) { s.buckets = b }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.With("component", "linking")
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// NewService creates a Service. Zero config fields take DefaultConfig values.
func NewService(config Config, opts ...Option) *Service {
	defaults := DefaultConfig()
	if config.MinTTL <= 0 {
		config.MinTTL = defaults.MinTTL
	}
	if config.MaxTTL <= 0 {
		config.MaxTTL = defaults.MaxTTL
	}
	if config.MaxTTL < config.MinTTL {
		config.MaxTTL = config.MinTTL
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = defaults.DefaultTTL
	}
	config.DefaultTTL = clampDuration(config.DefaultTTL, config.MinTTL, config.MaxTTL)

	s := &Service{
		config:      config,
		clock:       time.Now,
		rand:        rand.Reader,
		logger:      slog.Default().With("component", "linking"),
		records:     make(map[string]*entry),
		credentials: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeCode upper-cases and trims a link code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// TTL returns the lifetime for a requested number of minutes.
func (s *Service) TTL(minutes int) time.Duration {
	if minutes == 0 {
		return s.config.DefaultTTL
	}
	return clampDuration(time.Duration(minutes)*time.Minute, s.config.MinTTL, s.config.MaxTTL)
}

// Register creates a PendingDevice record, replacing any record for the code.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (rec Record, err error) {
	_, span := s.tracer.Start(ctx, "linking.register")
	defer func() { s.finish(span, "register", err) }()

	code := NormalizeCode(req.Code)
	if code == "" {
		return Record{}, ErrInvalidCode
	}
	span.SetAttributes(attribute.String("code", code))

	now := s.clock()
	e := s.lockEntry(code)
	previous := e.rec
	e.rec = Record{
		Code:       code,
		Status:     StatusPendingDevice,
		DriverName: strings.TrimSpace(req.DriverName),
		DeviceName: strings.TrimSpace(req.DeviceName),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.TTL(req.TTLMinutes)),
	}
	rec = e.rec
	e.mu.Unlock()

	if previous.DeviceCredential != "" {
		s.forgetCredential(previous.DeviceCredential)
	}
	s.logger.Info("link code registered",
		"code", code,
		"driver", rec.DriverName,
		"expires_at", rec.ExpiresAt,
		"replaced", previous.Code != "",
	)
	return rec, nil
}

// Confirm binds a code to a guild and issues the device credential once.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (rec Record, err error) {
	_, span := s.tracer.Start(ctx, "linking.confirm")
	defer func() { s.finish(span, "confirm", err) }()

	code := NormalizeCode(req.Code)
	if code == "" {
		return Record{}, ErrInvalidCode
	}
	span.SetAttributes(attribute.String("code", code))

	e := s.entryFor(code, false)
	if e == nil {
		return Record{}, ErrUnknownCode
	}

	e.mu.Lock()
	if e.rec.Code == "" {
		e.mu.Unlock()
		return Record{}, ErrUnknownCode
	}
	if e.rec.Expired(s.clock()) {
		e.mu.Unlock()
		return Record{}, ErrExpiredCode
	}
	guildID := strings.TrimSpace(req.GuildID)
	if guildID == "" {
		e.mu.Unlock()
		return Record{}, ErrMissingGuildID
	}

	issued := false
	if e.rec.DeviceCredential == "" {
		credential, err := NewCredential(s.rand)
		if err != nil {
			e.mu.Unlock()
			return Record{}, err
		}
		e.rec.DeviceCredential = credential
		issued = true
	}
	e.rec.GuildID = guildID
	e.rec.GuildName = strings.TrimSpace(req.GuildName)
	e.rec.ConfirmedByUserID = strings.TrimSpace(req.UserID)
	e.rec.ConfirmedAt = s.clock()
	if e.rec.Status != StatusClaimed {
		e.rec.Status = StatusLinked
	}
	rec = e.rec
	e.mu.Unlock()

	if issued {
		s.rememberCredential(rec.DeviceCredential, code)
	}
	if s.buckets != nil {
		s.buckets.EnsureBucket(guildID)
	}
	s.logger.Info("link code confirmed",
		"code", code,
		"guild_id", guildID,
		"user_id", rec.ConfirmedByUserID,
		"credential_issued", issued,
	)
	return rec, nil
}

// Claim returns the guild binding and credential for a confirmed code. With
// singleUse the record moves to Claimed; repeated claims keep succeeding
// with the same data until the record expires.
func (s *Service) Claim(ctx context.Context, code string, singleUse bool) (result ClaimResult, err error) {
	_, span := s.tracer.Start(ctx, "linking.claim")
	defer func() { s.finish(span, "claim", err) }()

	code = NormalizeCode(code)
	if code == "" {
		return ClaimResult{}, ErrInvalidCode
	}
	span.SetAttributes(attribute.String("code", code))

	e := s.entryFor(code, false)
	if e == nil {
		return ClaimResult{}, ErrUnknownCode
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec.Code == "" {
		return ClaimResult{}, ErrUnknownCode
	}
	now := s.clock()
	if e.rec.Expired(now) {
		return ClaimResult{}, ErrExpiredCode
	}
	if e.rec.Status == StatusPendingDevice {
		return ClaimResult{}, ErrNotLinkedYet
	}
	if singleUse && e.rec.Status != StatusClaimed {
		e.rec.Status = StatusClaimed
		e.rec.ClaimedAt = now
		s.logger.Info("link code claimed", "code", code, "guild_id", e.rec.GuildID)
	}
	return ClaimResult{
		Code:        e.rec.Code,
		GuildID:     e.rec.GuildID,
		GuildName:   e.rec.GuildName,
		DeviceToken: e.rec.DeviceCredential,
		Status:      e.rec.Status,
	}, nil
}

// Get returns a copy of the record for code.
func (s *Service) Get(code string) (Record, bool) {
	e := s.entryFor(NormalizeCode(code), false)
	if e == nil {
		return Record{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, e.rec.Code != ""
}

// Stats counts records by status.
func (s *Service) Stats() map[Status]int {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	counts := map[Status]int{
		StatusPendingDevice: 0,
		StatusLinked:        0,
		StatusClaimed:       0,
	}
	for _, e := range entries {
		e.mu.Lock()
		if e.rec.Code != "" {
			counts[e.rec.Status]++
		}
		e.mu.Unlock()
	}
	return counts
}

// ResolveCredential returns the guild bound to a device credential.
func (s *Service) ResolveCredential(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, CredentialPrefix) {
		return "", false
	}
	s.mu.RLock()
	code, ok := s.credentials[token]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	rec, ok := s.Get(code)
	if !ok || rec.Status == StatusPendingDevice {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(rec.DeviceCredential), []byte(token)) != 1 {
		return "", false
	}
	return rec.GuildID, true
}

// Sweep drops unfinished handshakes whose expiry is older than retain and
// forgets their credentials. Claimed records are kept for diagnostics. It
// returns the number of records removed.
func (s *Service) Sweep(retain time.Duration) int {
	cutoff := s.clock().Add(-retain)

	s.mu.Lock()
	removed := 0
	for code, e := range s.records {
		e.mu.Lock()
		stale := e.rec.Status != StatusClaimed && e.rec.ExpiresAt.Before(cutoff)
		if e.rec.Code == "" || stale {
			if e.rec.DeviceCredential != "" {
				delete(s.credentials, e.rec.DeviceCredential)
			}
			delete(s.records, code)
			e.removed = true
			if e.rec.Code != "" {
				removed++
			}
		}
		e.mu.Unlock()
	}

	// A Confirm racing a Register can remember a credential after it was
	// revoked; drop any token its record no longer holds.
	pruned := 0
	for token, code := range s.credentials {
		held := false
		if e, ok := s.records[code]; ok {
			e.mu.Lock()
			held = e.rec.DeviceCredential == token
			e.mu.Unlock()
		}
		if !held {
			delete(s.credentials, token)
			pruned++
		}
	}
	s.mu.Unlock()

	if removed > 0 || pruned > 0 {
		s.logger.Info("swept expired link records", "removed", removed, "stale_credentials", pruned, "cutoff", cutoff)
	}
	return removed
}

// lockEntry returns the live entry for code with its mutex held.
func (s *Service) lockEntry(code string) *entry {
	for {
		e := s.entryFor(code, true)
		e.mu.Lock()
		if !e.removed {
			return e
		}
		e.mu.Unlock()
	}
}

func (s *Service) entryFor(code string, create bool) *entry {
	s.mu.RLock()
	e, ok := s.records[code]
	s.mu.RUnlock()
	if ok || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.records[code]; ok {
		return e
	}
	e = &entry{}
	s.records[code] = e
	return e
}

func (s *Service) rememberCredential(token, code string) {
	s.mu.Lock()
	s.credentials[token] = code
	s.mu.Unlock()
}

func (s *Service) forgetCredential(token string) {
	s.mu.Lock()
	delete(s.credentials, token)
	s.mu.Unlock()
}

func (s *Service) finish(span trace.Span, op string, err error) {
	result := "ok"
	if err != nil {
		if result = Tag(err); result == "" {
			result = "error"
		}
	}
	s.metrics.LinkOperation(op, result)
	observability.EndSpan(span, err)
}

// NewCredential returns "dlk_" followed by 32 random bytes, base64url encoded.
func NewCredential(r io.Reader) (string, error) {
	buf := make([]byte, credentialBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("linking: generate credential: %w", err)
	}
	return CredentialPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
