// Package main provides the CLI entry point for devicelink.
//
// devicelink routes per-user Discord threads, pairs devices with guilds
// through a short-code handshake and relays device messages.
//
// # Basic Usage
//
// Start the server:
//
//	devicelink serve --config devicelink.yaml
//
// Inspect or edit the thread map offline:
//
//	devicelink threads list
//	devicelink threads set <guild-id> <user-id> <thread-id>
//
// Drive the link handshake from a shell:
//
//	devicelink link register XY12 --driver alice
//	devicelink link claim XY12
//
// # Environment Variables
//
//   - DEVICELINK_CONFIG: Path to configuration file (default: devicelink.yaml)
//   - DISCORD_BOT_TOKEN: Discord bot token
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/devicelink/internal/config"
)

// Build information, populated by ldflags during build:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "devicelink.yaml"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "devicelink",
		Short: "devicelink - Discord thread routing and device pairing",
		Long: `devicelink keeps one private Discord thread per guild member, lets devices
pair with a guild using a short code confirmed by an administrator, and
relays device messages into the right thread.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildThreadsCmd(),
		buildLinkCmd(),
		buildTokenCmd(),
	)
	return rootCmd
}

// resolveConfigPath prefers an explicit path, then DEVICELINK_CONFIG, then
// the default file name.
func resolveConfigPath(path string) string {
	if p := strings.TrimSpace(path); p != "" && p != defaultConfigPath {
		return p
	}
	if env := strings.TrimSpace(os.Getenv(config.EnvConfigPath)); env != "" {
		return env
	}
	return defaultConfigPath
}
