package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/haasonsaas/devicelink/internal/channels/discord"
	"github.com/haasonsaas/devicelink/internal/config"
	"github.com/haasonsaas/devicelink/internal/observability"
)

// runServe loads the config, starts every component and blocks until a
// shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	slog.SetDefault(logger)

	logger.Info("starting devicelink",
		"version", version,
		"commit", commit,
		"config", configPath,
		"http_addr", cfg.Server.Addr(),
	)

	client, err := discord.NewClient(discord.Config{
		Token:     cfg.Discord.BotToken,
		SendRate:  cfg.Discord.SendRate,
		SendBurst: cfg.Discord.SendBurst,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create discord client: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, client)
	if err != nil {
		return err
	}
	client.SetMetrics(a.metrics)
	client.SetCommands(a.commands, a.parser)
	client.SetMessageSink(a.bridge)

	if err := client.Start(ctx); err != nil {
		_ = a.close(context.Background())
		return fmt.Errorf("failed to connect to discord: %w", err)
	}
	if dispatchID, _ := cfg.Discord.DispatchChannel(); dispatchID != 0 {
		if err := client.ValidateTextChannel(ctx, dispatchID); err != nil {
			logger.Warn("dispatch channel is not usable; thread creation will fail", "channel_id", dispatchID, "error", err)
		}
	} else {
		logger.Warn("no dispatch channel configured; only manual thread overrides will route")
	}

	if err := a.scheduler.Start(ctx); err != nil {
		logger.Warn("scheduler failed to start", "error", err)
	}

	srv := a.httpServer()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case serveErr = <-errCh:
		logger.Error("http server failed", "error", serveErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if serveErr != nil {
		errs = append(errs, serveErr)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	cancel()
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
	}
	if err := client.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("discord stop: %w", err))
	}
	if err := a.close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Info("devicelink stopped gracefully")
	return nil
}
