// Package commands provides text command parsing and routing for the chat
// surface.
package commands

import (
	"context"
)

// Command represents a registered text command.
type Command struct {
	// Name is the command name without the prefix (e.g., "link")
	Name string `json:"name"`

	// Aliases are alternative names for the command
	Aliases []string `json:"aliases,omitempty"`

	// Description is a short description of what the command does
	Description string `json:"description,omitempty"`

	// Usage shows how to use the command
	Usage string `json:"usage,omitempty"`

	// AcceptsArgs indicates if the command accepts arguments
	AcceptsArgs bool `json:"accepts_args"`

	// Hidden hides the command from help listings
	Hidden bool `json:"hidden,omitempty"`

	// AdminOnly restricts the command to guild administrators
	AdminOnly bool `json:"admin_only,omitempty"`

	// Handler is the function that executes the command
	Handler CommandHandler `json:"-"`

	// Category groups commands in help output
	Category string `json:"category,omitempty"`
}

// CommandHandler processes a command invocation.
type CommandHandler func(ctx context.Context, inv *Invocation) (*Result, error)

// Invocation represents a parsed command invocation.
type Invocation struct {
	// Command is the matched command definition
	Command *Command

	// Name is the actual name/alias used to invoke
	Name string

	// Args is the text after the command name
	Args string

	// RawText is the original message text
	RawText string

	GuildID   string
	GuildName string

	// ChannelID is where the command was sent
	ChannelID string

	// InThread is set when ChannelID is a thread
	InThread bool

	// UserID identifies the user who invoked the command
	UserID string

	// Mentions are the user IDs mentioned in the message, in order
	Mentions []string

	// IsAdmin is set for Administrator or Manage Server holders
	IsAdmin bool
}

// Result is the output of a command execution.
type Result struct {
	// Text is the response message to send
	Text string `json:"text,omitempty"`

	// Suppress indicates no response should be sent
	Suppress bool `json:"suppress,omitempty"`

	// Error is set if the command failed
	Error string `json:"error,omitempty"`
}

// Reply returns the text to post back, or "" when nothing should be sent.
func (r *Result) Reply() string {
	if r == nil || r.Suppress {
		return ""
	}
	if r.Error != "" {
		return r.Error
	}
	return r.Text
}

// ParsedCommand represents a command detected at the start of a message.
type ParsedCommand struct {
	// Name is the command name (without prefix)
	Name string

	// Args is the argument text
	Args string

	// Prefix is the command prefix used
	Prefix string
}
