package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/haasonsaas/devicelink/internal/commands"
)

const adminPermissions = discordgo.PermissionAdministrator | discordgo.PermissionManageGuild

const commandFailedReply = "Something went wrong running that command."

func (c *Client) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return
	}

	c.mu.Lock()
	registry, parser, sink := c.registry, c.parser, c.sink
	c.mu.Unlock()

	var parsed *commands.ParsedCommand
	if registry != nil && parser != nil {
		if p := parser.ParseCommand(m.Content); p != nil {
			if _, ok := registry.Get(p.Name); ok {
				parsed = p
			}
		}
	}
	if parsed == nil && (sink == nil || m.GuildID == "") {
		return
	}

	base, ok := c.begin()
	if !ok {
		return
	}
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(base, c.config.CommandTimeout)
	defer cancel()
	if parsed != nil {
		c.dispatch(ctx, registry, parsed, m.Message)
		return
	}
	c.deliver(ctx, sink, m.Message)
}

// begin registers an in-flight handler. It reports false once Stop has run.
func (c *Client) begin() (context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil, false
	}
	c.wg.Add(1)
	return c.ctx, true
}

// deliver hands a plain guild message to the sink.
func (c *Client) deliver(ctx context.Context, sink MessageSink, m *discordgo.Message) {
	if strings.TrimSpace(m.Content) == "" {
		return
	}
	channelID, err := parseID(m.ChannelID)
	if err != nil {
		c.logger.Debug("ignoring message with malformed channel id", "channel_id", m.ChannelID)
		return
	}
	if err := sink.HandleThreadMessage(ctx, m.GuildID, channelID, m.Author.ID, m.Content); err != nil {
		c.logger.Warn("failed to relay thread message",
			"guild_id", m.GuildID,
			"channel_id", m.ChannelID,
			"message_id", m.ID,
			"error", err,
		)
	}
}

func (c *Client) dispatch(ctx context.Context, registry *commands.Registry, parsed *commands.ParsedCommand, m *discordgo.Message) {
	inv := &commands.Invocation{
		Name:      parsed.Name,
		Args:      parsed.Args,
		RawText:   m.Content,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID != m.Author.ID {
			inv.Mentions = append(inv.Mentions, u.ID)
		}
	}

	if ch, err := c.session.Channel(m.ChannelID, discordgo.WithContext(ctx)); err == nil && ch != nil {
		inv.InThread = ch.IsThread()
	}
	if m.GuildID != "" {
		inv.IsAdmin = c.isAdmin(ctx, m.Author.ID, m.ChannelID)
		if g, err := c.session.Guild(m.GuildID, discordgo.WithContext(ctx)); err == nil && g != nil {
			inv.GuildName = g.Name
		}
	}

	logger := c.logger.With(
		"command", parsed.Name,
		"guild_id", inv.GuildID,
		"channel_id", inv.ChannelID,
		"user_id", inv.UserID,
	)

	res, err := registry.Execute(ctx, inv)
	if err != nil {
		logger.Error("command failed", "error", err)
		res = &commands.Result{Error: commandFailedReply}
	} else {
		logger.Debug("command executed", "admin", inv.IsAdmin, "refused", res != nil && res.Error != "")
	}

	reply := res.Reply()
	if reply == "" {
		return
	}
	channelID, err := parseID(m.ChannelID)
	if err != nil {
		logger.Warn("cannot reply to malformed channel id", "error", err)
		return
	}
	if err := c.SendMessage(ctx, channelID, reply); err != nil {
		logger.Warn("failed to send command reply", "error", err)
	}
}

// isAdmin reports whether userID holds Administrator or Manage Server in channelID.
func (c *Client) isAdmin(ctx context.Context, userID, channelID string) bool {
	perms, err := c.session.UserChannelPermissions(userID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		c.logger.Debug("permission lookup failed", "user_id", userID, "channel_id", channelID, "error", err)
		return false
	}
	return perms&adminPermissions != 0
}
