package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Registry manages command registrations and execution.
type Registry struct {
	commands map[string]*Command // name -> command
	aliases  map[string]string   // alias -> name
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewRegistry creates a new command registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
		logger:   logger.With("component", "commands"),
	}
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("command is nil")
	}
	if cmd.Name == "" {
		return fmt.Errorf("command name is required")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command handler is required")
	}

	name := strings.ToLower(strings.TrimSpace(cmd.Name))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	if existingName, exists := r.aliases[name]; exists {
		return fmt.Errorf("command name %q conflicts with alias for %q", name, existingName)
	}

	r.commands[name] = cmd

	for _, alias := range cmd.Aliases {
		aliasLower := strings.ToLower(strings.TrimSpace(alias))
		if aliasLower == "" || aliasLower == name {
			continue
		}
		if _, exists := r.commands[aliasLower]; exists {
			r.logger.Warn("alias conflicts with command", "alias", aliasLower, "command", name)
			continue
		}
		if _, exists := r.aliases[aliasLower]; exists {
			r.logger.Warn("alias already registered", "alias", aliasLower, "command", name)
			continue
		}
		r.aliases[aliasLower] = name
	}

	r.logger.Debug("registered command", "name", name, "aliases", cmd.Aliases, "admin_only", cmd.AdminOnly)
	return nil
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) (*Command, bool) {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if cmd, exists := r.commands[name]; exists {
		return cmd, true
	}
	if realName, exists := r.aliases[name]; exists {
		if cmd, exists := r.commands[realName]; exists {
			return cmd, true
		}
	}
	return nil, false
}

// ListVisible returns non-hidden commands sorted by name.
func (r *Registry) ListVisible() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	visible := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		if !cmd.Hidden {
			visible = append(visible, cmd)
		}
	}
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].Name < visible[j].Name
	})
	return visible
}

// Execute runs the command named by inv.Name. Admin restrictions and
// argument checks are reported in Result.Error rather than as errors.
func (r *Registry) Execute(ctx context.Context, inv *Invocation) (*Result, error) {
	if inv == nil {
		return nil, fmt.Errorf("invocation is nil")
	}

	cmd, exists := r.Get(inv.Name)
	if !exists {
		return nil, fmt.Errorf("command %q not found", inv.Name)
	}

	if cmd.AdminOnly && !inv.IsAdmin {
		r.logger.Info("admin command refused",
			"command", cmd.Name,
			"guild_id", inv.GuildID,
			"user_id", inv.UserID)
		return &Result{
			Error: "This command requires Administrator or Manage Server permission.",
		}, nil
	}

	if !cmd.AcceptsArgs && strings.TrimSpace(inv.Args) != "" {
		return &Result{
			Error: fmt.Sprintf("Command %s does not accept arguments", cmd.Name),
		}, nil
	}

	inv.Command = cmd
	return cmd.Handler(ctx, inv)
}
