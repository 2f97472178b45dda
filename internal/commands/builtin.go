package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/haasonsaas/devicelink/internal/identity"
	"github.com/haasonsaas/devicelink/internal/linking"
	"github.com/haasonsaas/devicelink/internal/roster"
)

// Linker confirms device handshakes.
type Linker interface {
	Confirm(ctx context.Context, req linking.ConfirmRequest) (linking.Record, error)
}

// ThreadRouter exposes the routing operations commands need.
type ThreadRouter interface {
	SetOverride(ctx context.Context, key identity.Key, threadID uint64) error
	Lookup(ctx context.Context, key identity.Key) (uint64, bool, error)
}

// Deps are the services built-in commands call into. Commands whose
// dependency is nil are not registered.
type Deps struct {
	Linker Linker
	Router ThreadRouter
	Roster roster.Store
}

// RegisterBuiltins registers the built-in commands.
func RegisterBuiltins(r *Registry, deps Deps) {
	mustRegister := func(cmd *Command) {
		if err := r.Register(cmd); err != nil {
			panic(fmt.Sprintf("failed to register builtin command %q: %v", cmd.Name, err))
		}
	}

	mustRegister(&Command{
		Name:        "help",
		Aliases:     []string{"commands"},
		Description: "Show available commands",
		Usage:       "help",
		Category:    "system",
		Handler:     helpHandler(r),
	})

	if deps.Linker != nil {
		mustRegister(&Command{
			Name:        "link",
			Description: "Link a device to this server using the code it shows",
			Usage:       "link <code>",
			AcceptsArgs: true,
			AdminOnly:   true,
			Category:    "devices",
			Handler:     linkHandler(deps.Linker),
		})
	}

	if deps.Router != nil {
		mustRegister(&Command{
			Name:        "setthread",
			Description: "Route messages for you (or a mentioned user) to this thread",
			Usage:       "setthread [@user]",
			AcceptsArgs: true,
			Category:    "threads",
			Handler:     setThreadHandler(deps.Router),
		})
		mustRegister(&Command{
			Name:        "whoami",
			Description: "Show your routing identity and thread",
			Usage:       "whoami",
			Category:    "threads",
			Handler:     whoamiHandler(deps.Router),
		})
	}

	if deps.Roster != nil {
		mustRegister(&Command{
			Name:        "roster",
			Description: "Manage driver names",
			Usage:       "roster add <name> [@user] | roster remove <name> | roster list",
			AcceptsArgs: true,
			AdminOnly:   true,
			Category:    "devices",
			Handler:     rosterHandler(deps.Roster),
		})
	}
}

func helpHandler(r *Registry) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		var sb strings.Builder
		sb.WriteString("Available commands:\n")
		for _, cmd := range r.ListVisible() {
			usage := cmd.Usage
			if usage == "" {
				usage = cmd.Name
			}
			sb.WriteString(fmt.Sprintf("  %s - %s", usage, cmd.Description))
			if cmd.AdminOnly {
				sb.WriteString(" (admin)")
			}
			sb.WriteString("\n")
		}
		return &Result{Text: strings.TrimRight(sb.String(), "\n")}, nil
	}
}

func linkHandler(linker Linker) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		code, _ := SplitCommandArgs(inv.Args)
		if code == "" {
			return &Result{Error: "Usage: link <code>"}, nil
		}

		rec, err := linker.Confirm(ctx, linking.ConfirmRequest{
			Code:      code,
			GuildID:   inv.GuildID,
			GuildName: inv.GuildName,
			UserID:    inv.UserID,
		})
		if err != nil {
			if msg := linkFailure(err); msg != "" {
				return &Result{Error: msg}, nil
			}
			return nil, err
		}

		device := rec.DeviceName
		if device == "" {
			device = "device"
		}
		return &Result{
			Text: fmt.Sprintf("Linked %s to this server. It can now finish pairing with code %s.", device, rec.Code),
		}, nil
	}
}

func linkFailure(err error) string {
	switch linking.Tag(err) {
	case linking.TagInvalidCode:
		return "That code is not valid."
	case linking.TagUnknownCode:
		return "No device is waiting with that code."
	case linking.TagExpiredCode:
		return "That code has expired. Start pairing again on the device."
	case linking.TagMissingGuildID:
		return "Run this command inside a server."
	}
	return ""
}

func setThreadHandler(router ThreadRouter) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if !inv.InThread {
			return &Result{Error: "Run this command inside the thread you want to use."}, nil
		}
		threadID, err := strconv.ParseUint(inv.ChannelID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("thread id %q: %w", inv.ChannelID, err)
		}

		target, ok := targetUser(inv)
		if !ok {
			return &Result{Error: mentionHelp}, nil
		}
		if target != inv.UserID && !inv.IsAdmin {
			return &Result{Error: "Only admins can set the thread for another user."}, nil
		}

		key := identity.New(inv.GuildID, target)
		if err := router.SetOverride(ctx, key, threadID); err != nil {
			if errors.Is(err, identity.ErrEmptyIdentity) {
				return &Result{Error: "Run this command inside a server."}, nil
			}
			return nil, err
		}
		return &Result{Text: fmt.Sprintf("Messages for <@%s> will now go to this thread.", target)}, nil
	}
}

const mentionHelp = "Mention the user to bind, e.g. @driver."

// targetUser returns the mentioned user, or the invoker when none is named.
func targetUser(inv *Invocation) (string, bool) {
	arg, _ := SplitCommandArgs(inv.Args)
	if arg == "" {
		return inv.UserID, true
	}
	if id, ok := ParseMention(arg); ok {
		return id, true
	}
	if len(inv.Mentions) > 0 {
		return inv.Mentions[0], true
	}
	return "", false
}

func whoamiHandler(router ThreadRouter) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		key := identity.New(inv.GuildID, inv.UserID)
		if err := key.Validate(); err != nil {
			return &Result{Error: "Run this command inside a server."}, nil
		}
		threadID, ok, err := router.Lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &Result{Text: fmt.Sprintf("Identity %s has no thread yet.", key)}, nil
		}
		return &Result{Text: fmt.Sprintf("Identity %s routes to <#%d>.", key, threadID)}, nil
	}
}

func rosterHandler(store roster.Store) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if strings.TrimSpace(inv.GuildID) == "" {
			return &Result{Error: "Run this command inside a server."}, nil
		}
		sub, rest := SplitCommandArgs(inv.Args)
		switch sub {
		case "add":
			name, tail := SplitCommandArgs(rest)
			if name == "" {
				return &Result{Error: "Usage: roster add <name> [@user]"}, nil
			}
			target, ok := targetUser(&Invocation{Args: tail, UserID: inv.UserID, Mentions: inv.Mentions})
			if !ok {
				return &Result{Error: mentionHelp}, nil
			}
			rec := &roster.Record{
				Name:        name,
				GuildID:     inv.GuildID,
				UserID:      target,
				DisplayName: originalName(rest),
			}
			if err := store.Put(ctx, rec); err != nil {
				return nil, err
			}
			return &Result{Text: fmt.Sprintf("Driver %q is now <@%s>.", rec.Name, rec.UserID)}, nil

		case "remove", "rm":
			name, _ := SplitCommandArgs(rest)
			if name == "" {
				return &Result{Error: "Usage: roster remove <name>"}, nil
			}
			if _, err := store.ByName(ctx, inv.GuildID, name); err != nil {
				if errors.Is(err, roster.ErrNotFound) {
					return &Result{Error: fmt.Sprintf("No driver named %q.", name)}, nil
				}
				return nil, err
			}
			if err := store.Delete(ctx, inv.GuildID, name); err != nil {
				return nil, err
			}
			return &Result{Text: fmt.Sprintf("Removed driver %q.", name)}, nil

		case "list", "":
			records, err := store.List(ctx, inv.GuildID)
			if err != nil {
				return nil, err
			}
			if len(records) == 0 {
				return &Result{Text: "The roster is empty."}, nil
			}
			var sb strings.Builder
			sb.WriteString("Roster:")
			for _, rec := range records {
				sb.WriteString(fmt.Sprintf("\n  %s -> <@%s>", rec.Name, rec.UserID))
			}
			return &Result{Text: sb.String()}, nil
		}
		return &Result{Error: "Usage: roster add <name> [@user] | roster remove <name> | roster list"}, nil
	}
}

// originalName returns the first word of args with its casing preserved.
func originalName(args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
