package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haasonsaas/devicelink/internal/auth"
	"github.com/haasonsaas/devicelink/internal/commands"
	"github.com/haasonsaas/devicelink/internal/config"
	"github.com/haasonsaas/devicelink/internal/cron"
	"github.com/haasonsaas/devicelink/internal/httpapi"
	"github.com/haasonsaas/devicelink/internal/linking"
	"github.com/haasonsaas/devicelink/internal/observability"
	"github.com/haasonsaas/devicelink/internal/relay"
	"github.com/haasonsaas/devicelink/internal/roster"
	"github.com/haasonsaas/devicelink/internal/router"
	"github.com/haasonsaas/devicelink/internal/threadmap"
)

// app holds every long-lived component of a running server.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *prometheus.Registry
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	threads   threadmap.Store
	roster    roster.Store
	relay     *relay.Relay
	bridge    *relay.ThreadBridge
	linking   *linking.Service
	router    *router.Router
	commands  *commands.Registry
	parser    *commands.Parser
	scheduler *cron.Scheduler
	api       *httpapi.Server

	closers []func(context.Context) error
}

// newApp builds and wires the components. The platform is the Discord
// client in production and a fake in tests.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, platform router.Platform) (a *app, err error) {
	dispatchID, err := cfg.Discord.DispatchChannel()
	if err != nil {
		return nil, err
	}

	a = &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = observability.NewMetrics(a.registry)

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "devicelink",
		ServiceVersion: version,
		Environment:    cfg.Observability.Tracing.Environment,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		Insecure:       cfg.Observability.Tracing.Insecure,
	})
	a.tracer = tracer
	a.closers = append(a.closers, shutdownTracer)

	a.threads, err = threadmap.Open(ctx, threadmap.Options{
		Driver: cfg.Storage.ThreadMap.Driver,
		Path:   cfg.Storage.ThreadMap.Path,
		DSN:    cfg.Storage.ThreadMap.DSN,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open thread map: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.threads.Close() })
	if fs, ok := a.threads.(*threadmap.FileStore); ok && cfg.Storage.ThreadMap.Watch {
		if err := fs.Watch(ctx, 0); err != nil {
			return nil, err
		}
	}

	a.roster, err = openRoster(ctx, cfg.Storage.Roster)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	if c, ok := a.roster.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	a.relay = relay.New(relay.WithLogger(logger), relay.WithMetrics(a.metrics))

	a.linking = linking.NewService(linking.Config{
		DefaultTTL: time.Duration(cfg.Linking.DefaultTTLMinutes) * time.Minute,
		MinTTL:     time.Duration(cfg.Linking.MinTTLMinutes) * time.Minute,
		MaxTTL:     time.Duration(cfg.Linking.MaxTTLMinutes) * time.Minute,
	},
		linking.WithBuckets(a.relay),
		linking.WithLogger(logger),
		linking.WithMetrics(a.metrics),
		linking.WithTracer(a.tracer),
	)

	a.router = router.New(a.threads, platform, router.Config{
		DispatchChannelID: dispatchID,
		ArchiveMinutes:    cfg.Router.ArchiveMinutes,
		Intro:             cfg.Router.Intro,
		DisableIntro:      cfg.Router.DisableIntro,
	},
		router.WithDirectory(a.roster),
		router.WithLogger(logger),
		router.WithMetrics(a.metrics),
		router.WithTracer(a.tracer),
	)

	if !cfg.Relay.DisableThreadForward {
		a.relay.SetForwarder(&relay.ThreadForwarder{Directory: a.roster, Sender: a.router})
	}
	a.bridge = &relay.ThreadBridge{
		Relay:     a.relay,
		Threads:   a.router,
		Directory: a.roster,
		Logger:    logger.With("component", "thread-bridge"),
	}

	a.commands = commands.NewRegistry(logger)
	commands.RegisterBuiltins(a.commands, commands.Deps{
		Linker: a.linking,
		Router: a.router,
		Roster: a.roster,
	})
	a.parser = commands.NewParser(cfg.Discord.CommandPrefix)

	a.scheduler = cron.NewScheduler(cron.WithLogger(logger))
	if err := a.scheduler.Add("link-gauges", cfg.Observability.GaugeSchedule, cron.LinkGaugeTask(a.linking, a.metrics)); err != nil {
		return nil, err
	}
	if err := a.scheduler.Add("link-sweep", cfg.Linking.SweepSchedule, cron.LinkSweepTask(a.linking, cfg.Linking.RetainExpired)); err != nil {
		return nil, err
	}

	a.api = httpapi.New(httpapi.Config{
		DefaultGuildID: cfg.Relay.DefaultGuildID,
		CommandPrefix:  cfg.Discord.CommandPrefix,
	}, a.linking, a.relay,
		httpapi.WithAuth(auth.NewService(auth.Config{
			JWTSecret:   cfg.Auth.JWTSecret,
			Issuer:      cfg.Auth.Issuer,
			TokenExpiry: cfg.Auth.TokenExpiry,
		})),
		httpapi.WithThreads(a.threads),
		httpapi.WithJobs(a.scheduler),
		httpapi.WithGatherer(a.registry),
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(a.metrics),
	)
	return a, nil
}

func openRoster(ctx context.Context, cfg config.StoreConfig) (roster.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return roster.NewMemoryStore(), nil
	default:
		return roster.OpenSQLStore(ctx, cfg.Driver, cfg.DSN)
	}
}

// httpServer returns the listener configured from the server section.
func (a *app) httpServer() *http.Server {
	return &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      a.api.Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	if a.router != nil {
		a.router.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
