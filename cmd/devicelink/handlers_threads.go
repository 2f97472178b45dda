package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/devicelink/internal/config"
	"github.com/haasonsaas/devicelink/internal/identity"
	"github.com/haasonsaas/devicelink/internal/threadmap"
)

func openThreadMap(ctx context.Context, configPath string) (threadmap.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return threadmap.Open(ctx, threadmap.Options{
		Driver: cfg.Storage.ThreadMap.Driver,
		Path:   cfg.Storage.ThreadMap.Path,
		DSN:    cfg.Storage.ThreadMap.DSN,
	}, slog.Default())
}

func runThreadsList(cmd *cobra.Command, configPath string) error {
	store, err := openThreadMap(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return printThreads(cmd, store)
}

func printThreads(cmd *cobra.Command, store threadmap.Store) error {
	snapshot, err := store.Snapshot(cmd.Context())
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tTHREAD")
	for _, key := range keys {
		fmt.Fprintf(w, "%s\t%d\n", key, snapshot[key])
	}
	return w.Flush()
}

func runThreadsSet(cmd *cobra.Command, configPath, guildID, userID, rawThread string) error {
	key := identity.New(guildID, userID)
	if err := key.Validate(); err != nil {
		return err
	}
	threadID, err := strconv.ParseUint(rawThread, 10, 64)
	if err != nil || threadID == 0 {
		return fmt.Errorf("thread id %q must be a numeric snowflake", rawThread)
	}

	store, err := openThreadMap(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Set(cmd.Context(), key.String(), threadID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %d\n", key, threadID)
	return nil
}

func runThreadsRemove(cmd *cobra.Command, configPath, guildID, userID string) error {
	key := identity.New(guildID, userID)
	if err := key.Validate(); err != nil {
		return err
	}
	store, err := openThreadMap(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Remove(cmd.Context(), key.String()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", key)
	return nil
}
