// Package discord implements the chat platform on top of discordgo: thread
// lookup and creation for the router, paced message sends, and inbound text
// commands.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/haasonsaas/devicelink/internal/channels"
	"github.com/haasonsaas/devicelink/internal/commands"
	"github.com/haasonsaas/devicelink/internal/observability"
)

// discordSession interface allows for mocking the Discord session in tests.
type discordSession interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	ThreadStartComplex(channelID string, data *discordgo.ThreadStart, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ThreadMemberAdd(threadID, memberID string, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// MessageSink receives guild messages that are not commands.
type MessageSink interface {
	HandleThreadMessage(ctx context.Context, guildID string, threadID uint64, authorID, content string) error
}

// Config holds configuration for the Discord client.
type Config struct {
	// Token is the bot token from Discord Developer Portal (required)
	Token string

	// MaxConnectAttempts bounds gateway connection retries on Start
	MaxConnectAttempts int

	// ConnectBackoff is the maximum wait between connection attempts
	ConnectBackoff time.Duration

	// SendRate and SendBurst pace messages per channel (messages per second)
	SendRate  float64
	SendBurst int

	// CommandTimeout bounds a single inbound command
	CommandTimeout time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Validate checks if the configuration is valid and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return channels.ErrConfig("discord bot token is required", nil)
	}
	if c.MaxConnectAttempts == 0 {
		c.MaxConnectAttempts = 5
	}
	if c.ConnectBackoff == 0 {
		c.ConnectBackoff = 30 * time.Second
	}
	if c.SendRate == 0 {
		c.SendRate = 1
	}
	if c.SendBurst == 0 {
		c.SendBurst = 5
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Client is the Discord platform used by the router and the command surface.
type Client struct {
	config   Config
	session  discordSession
	limiter  *channels.ChannelLimiter
	registry *commands.Registry
	parser   *commands.Parser
	sink     MessageSink
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewClient creates a client. The gateway session is created on Start.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config:  config,
		limiter: channels.NewChannelLimiter(config.SendRate, config.SendBurst),
		logger:  config.Logger.With("component", "discord"),
		metrics: config.Metrics,
		ctx:     context.Background(),
	}, nil
}

// SetCommands enables inbound text commands.
func (c *Client) SetCommands(registry *commands.Registry, parser *commands.Parser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry = registry
	c.parser = parser
}

// SetMessageSink receives plain guild messages, such as replies typed in a
// routed thread.
func (c *Client) SetMessageSink(sink MessageSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// SetMetrics sets the metrics sink. Call it before Start.
func (c *Client) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// Start opens the gateway connection and registers event handlers.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("discord client already started")
	}

	if c.session == nil {
		dg, err := discordgo.New("Bot " + c.config.Token)
		if err != nil {
			return channels.ErrConfig("failed to create Discord session", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuilds |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsMessageContent
		c.session = dg
	}

	c.session.AddHandler(c.handleMessageCreate)
	c.session.AddHandler(c.handleReady)

	if err := c.connectWithRetry(ctx); err != nil {
		return err
	}

	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.started = true
	c.stopped = false
	c.logger.Info("discord client started", "send_rate", c.config.SendRate)
	return nil
}

// Stop waits for in-flight commands and closes the gateway connection.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	// Handlers register with wg under c.mu, so none can start while we wait.
	c.stopped = true

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("stop timeout, forcing shutdown")
	}

	c.started = false
	if err := c.session.Close(); err != nil {
		return channels.ErrConnection("failed to close Discord session", err)
	}
	c.logger.Info("discord client stopped")
	return nil
}

// ThreadExists reports whether threadID resolves to a thread.
func (c *Client) ThreadExists(ctx context.Context, threadID uint64) (bool, error) {
	ch, err := c.session.Channel(formatID(threadID), discordgo.WithContext(ctx))
	if err != nil {
		err = classify("fetch thread", err)
		if channels.IsNotFound(err) {
			return false, nil
		}
		c.recordError("thread_exists", err)
		return false, err
	}
	return ch != nil && ch.IsThread(), nil
}

// ValidateTextChannel returns a config error unless channelID is a text or
// announcement channel that can hold threads.
func (c *Client) ValidateTextChannel(ctx context.Context, channelID uint64) error {
	ch, err := c.session.Channel(formatID(channelID), discordgo.WithContext(ctx))
	if err != nil {
		err = classify("fetch dispatch channel", err)
		c.recordError("validate_channel", err)
		if channels.IsNotFound(err) {
			return channels.ErrConfig(fmt.Sprintf("dispatch channel %d does not exist", channelID), err)
		}
		return err
	}
	switch ch.Type {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
		return nil
	}
	return channels.ErrConfig(fmt.Sprintf("dispatch channel %d is not a text channel", channelID), nil).
		WithContext("channel_type", int(ch.Type))
}

// CreatePrivateThread starts a private thread under parentID.
func (c *Client) CreatePrivateThread(ctx context.Context, parentID uint64, name string, archiveMinutes int) (uint64, error) {
	ch, err := c.session.ThreadStartComplex(formatID(parentID), &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: archiveMinutes,
		Type:                discordgo.ChannelTypeGuildPrivateThread,
		Invitable:           false,
	}, discordgo.WithContext(ctx))
	if err != nil {
		err = classify("create thread", err)
		c.recordError("create_thread", err)
		return 0, err
	}
	id, err := parseID(ch.ID)
	if err != nil {
		return 0, channels.ErrInvalidInput("discord returned a malformed thread id", err)
	}
	return id, nil
}

// AddThreadMember adds userID to threadID.
func (c *Client) AddThreadMember(ctx context.Context, threadID uint64, userID string) error {
	if err := c.session.ThreadMemberAdd(formatID(threadID), userID, discordgo.WithContext(ctx)); err != nil {
		err = classify("add thread member", err)
		c.recordError("add_thread_member", err)
		return err
	}
	return nil
}

// SendMessage posts content to channelID, waiting for the per-channel pace.
// Content over the Discord length limit is sent as several messages.
func (c *Client) SendMessage(ctx context.Context, channelID uint64, content string) error {
	target := formatID(channelID)
	for _, chunk := range channels.SplitMessage(content, channels.MaxMessageLength) {
		if err := c.limiter.Wait(ctx, target); err != nil {
			return channels.NewError(channels.ErrCodeTimeout, "send pacing interrupted", err)
		}
		if _, err := c.session.ChannelMessageSend(target, chunk, discordgo.WithContext(ctx)); err != nil {
			err = classify("send message", err)
			c.recordError("send_message", err)
			return err
		}
	}
	return nil
}

func (c *Client) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	c.logger.Info("discord connection ready", "user", r.User.Username, "guilds", len(r.Guilds))
}

func (c *Client) connectWithRetry(ctx context.Context) error {
	var err error
	maxAttempts := c.config.MaxConnectAttempts

	for attempt := 0; attempt < maxAttempts; attempt++ {
		c.logger.Info("connecting to discord", "attempt", attempt+1, "max_attempts", maxAttempts)

		err = c.session.Open()
		if err == nil {
			return nil
		}

		backoff := calculateBackoff(attempt, c.config.ConnectBackoff)
		c.logger.Warn("connection failed, retrying",
			"error", err,
			"attempt", attempt+1,
			"backoff_ms", backoff.Milliseconds())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return channels.ErrConnection("failed to connect after retries", err)
}

func calculateBackoff(attempt int, maxWait time.Duration) time.Duration {
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > maxWait {
		backoff = maxWait
	}
	return backoff
}

func (c *Client) recordError(op string, err error) {
	c.metrics.PlatformError(op, string(channels.GetErrorCode(err)))
}

// classify maps a discordgo error onto the platform error taxonomy.
func classify(op string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		status := 0
		if restErr.Response != nil {
			status = restErr.Response.StatusCode
		}
		apiCode := 0
		if restErr.Message != nil {
			apiCode = restErr.Message.Code
		}
		switch {
		case apiCode == discordgo.ErrCodeUnknownChannel || status == http.StatusNotFound:
			return channels.ErrNotFound(op, err)
		case status == http.StatusTooManyRequests:
			return channels.ErrRateLimit(op, err)
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return channels.ErrPermission(op, err)
		case status >= http.StatusInternalServerError:
			return channels.ErrUnavailable(op, err)
		case status >= http.StatusBadRequest:
			return channels.ErrInvalidInput(op, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return channels.NewError(channels.ErrCodeTimeout, op, err)
	}
	return channels.ErrConnection(op, err)
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func parseID(id string) (uint64, error) {
	return strconv.ParseUint(id, 10, 64)
}
