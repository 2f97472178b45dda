package main

import (
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the devicelink server",
		Long: `Start the devicelink server.

The server will:
1. Load configuration from the specified file (or devicelink.yaml)
2. Open the thread map and roster stores
3. Connect to the Discord gateway and register text commands
4. Start the HTTP API for pairing, messages, metrics and health
5. Schedule maintenance jobs

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  devicelink serve

  # Start with debug logging
  devicelink serve --config /etc/devicelink/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML or JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")
	return cmd
}

// =============================================================================
// Thread Map Commands
// =============================================================================

func buildThreadsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Inspect and edit the identity to thread map",
		Long: `Operate directly on the configured thread map store.

With the file driver, a running server only sees these edits when
storage.thread_map.watch is enabled.`,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML or JSON5 configuration file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List every mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runThreadsList(cmd, resolveConfigPath(configPath))
		},
	}
	set := &cobra.Command{
		Use:   "set <guild-id> <user-id> <thread-id>",
		Short: "Point an identity at a thread",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runThreadsSet(cmd, resolveConfigPath(configPath), args[0], args[1], args[2])
		},
	}
	remove := &cobra.Command{
		Use:     "remove <guild-id> <user-id>",
		Aliases: []string{"rm"},
		Short:   "Forget the thread for an identity",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runThreadsRemove(cmd, resolveConfigPath(configPath), args[0], args[1])
		},
	}
	cmd.AddCommand(list, set, remove)
	return cmd
}

// =============================================================================
// Link Commands
// =============================================================================

func buildLinkCmd() *cobra.Command {
	var (
		serverURL string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Drive the device link handshake against a running server",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "devicelink HTTP base URL")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	var (
		driver  string
		device  string
		minutes int
	)
	register := &cobra.Command{
		Use:   "register <code>",
		Short: "Register a pending link code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL, "", timeout)
			return runLinkRegister(cmd, client, args[0], driver, device, minutes)
		},
	}
	register.Flags().StringVar(&driver, "driver", "", "Driver name reported by the device")
	register.Flags().StringVar(&device, "device", "", "Device name shown to the confirming admin")
	register.Flags().IntVar(&minutes, "expires", 0, "Lifetime in minutes (0 uses the server default)")

	var keep bool
	claim := &cobra.Command{
		Use:   "claim <code>",
		Short: "Claim a confirmed code and print the device credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL, "", timeout)
			return runLinkClaim(cmd, client, args[0], !keep)
		},
	}
	claim.Flags().BoolVar(&keep, "keep", false, "Leave the record Linked so it can be claimed again")

	var token string
	status := &cobra.Command{
		Use:   "status <code>",
		Short: "Show a link record (requires an admin token)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL, token, timeout)
			return runLinkStatus(cmd, client, args[0])
		},
	}
	status.Flags().StringVar(&token, "token", "", "Admin JWT (see devicelink token)")

	cmd.AddCommand(register, claim, status)
	return cmd
}

// =============================================================================
// Token Command
// =============================================================================

func buildTokenCmd() *cobra.Command {
	var (
		configPath string
		subject    string
		name       string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API token signed with auth.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, resolveConfigPath(configPath), subject, name)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML or JSON5 configuration file")
	cmd.Flags().StringVar(&subject, "subject", "", "Operator id placed in the token subject (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "Operator display name")
	return cmd
}
