// Package httpapi serves the device-side HTTP surface: the link handshake,
// the message relay, and a JWT-guarded operator API.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/devicelink/internal/auth"
	"github.com/haasonsaas/devicelink/internal/cron"
	"github.com/haasonsaas/devicelink/internal/linking"
	"github.com/haasonsaas/devicelink/internal/observability"
	"github.com/haasonsaas/devicelink/internal/relay"
)

const maxBodyBytes = 64 << 10

// Linker is the handshake service.
type Linker interface {
	Register(ctx context.Context, req linking.RegisterRequest) (linking.Record, error)
	Confirm(ctx context.Context, req linking.ConfirmRequest) (linking.Record, error)
	Claim(ctx context.Context, code string, singleUse bool) (linking.ClaimResult, error)
	Get(code string) (linking.Record, bool)
	ResolveCredential(token string) (string, bool)
}

// MessageLog is the relay.
type MessageLog interface {
	Append(ctx context.Context, guildID, text, source, driverName string) (string, error)
	List(ctx context.Context, guildID, driverName string, limit int) ([]relay.Message, error)
}

// ThreadSnapshotter lists every identity to thread mapping.
type ThreadSnapshotter interface {
	Snapshot(ctx context.Context) (map[string]uint64, error)
}

// JobLister reports scheduled maintenance jobs.
type JobLister interface {
	Jobs() []cron.Status
}

// Config configures the HTTP surface.
type Config struct {
	// DefaultGuildID is used for message routes when the request names no guild.
	DefaultGuildID string

	// CommandPrefix is rendered into link QR codes. Defaults to "!".
	CommandPrefix string
}

// Server holds the handlers and their dependencies.
type Server struct {
	config   Config
	linker   Linker
	messages MessageLog
	threads  ThreadSnapshotter
	jobs     JobLister
	auth     *auth.Service
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    func() time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithAuth enables the /admin routes.
func WithAuth(service *auth.Service) Option {
	return func(s *Server) { s.auth = service }
}

// WithThreads sets the thread map listed by /admin/threads.
func WithThreads(t ThreadSnapshotter) Option {
	return func(s *Server) { s.threads = t }
}

// WithJobs sets the scheduler listed by /admin/jobs.
func WithJobs(j JobLister) Option {
	return func(s *Server) { s.jobs = j }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.With("component", "httpapi")
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock overrides time.Now for expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) { s.clock = clock }
}

// New creates a Server.
func New(config Config, linker Linker, messages MessageLog, opts ...Option) *Server {
	s := &Server{
		config:   config,
		linker:   linker,
		messages: messages,
		logger:   slog.Default().With("component", "httpapi"),
		clock:    time.Now,
	}
	if strings.TrimSpace(s.config.CommandPrefix) == "" {
		s.config.CommandPrefix = "!"
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in request metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /link/register", s.handleRegister)
	mux.HandleFunc("POST /link/confirm", s.handleConfirm)
	mux.HandleFunc("POST /link/claim", s.handleClaim)
	mux.HandleFunc("GET /link/{code}/qr", s.handleLinkQR)
	mux.HandleFunc("GET /messages", s.handleListMessages)
	mux.HandleFunc("POST /messages/send", s.handleSendMessage)

	admin := auth.Middleware(s.auth, s.logger)
	mux.Handle("GET /admin/links/{code}", admin(http.HandlerFunc(s.handleAdminLink)))
	mux.Handle("GET /admin/threads", admin(http.HandlerFunc(s.handleAdminThreads)))
	mux.Handle("GET /admin/jobs", admin(http.HandlerFunc(s.handleAdminJobs)))

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return s.instrument(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}

// instrument records latency per matched route and logs each request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		s.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(wrapped.status), duration)
		s.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", wrapped.status,
			"duration", duration,
			"remote_addr", r.RemoteAddr,
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

// resolveGuild picks the guild for message routes: query, X-Guild-Id header,
// a device credential bearer token, then the configured default.
func (s *Server) resolveGuild(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("guildId")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get("X-Guild-Id")); id != "" {
		return id
	}
	if token := auth.BearerToken(r); token != "" {
		if id, ok := s.linker.ResolveCredential(token); ok {
			return id
		}
	}
	return strings.TrimSpace(s.config.DefaultGuildID)
}
