package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfigPath names the environment variable holding the config path.
const EnvConfigPath = "DEVICELINK_CONFIG"

// EnvBotToken overrides discord.bot_token when set.
const EnvBotToken = "DISCORD_BOT_TOKEN"

// Config is the main configuration structure for devicelink.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Discord       DiscordConfig       `yaml:"discord"`
	Router        RouterConfig        `yaml:"router"`
	Storage       StorageConfig       `yaml:"storage"`
	Linking       LinkingConfig       `yaml:"linking"`
	Relay         RelayConfig         `yaml:"relay"`
	Auth          AuthConfig          `yaml:"auth"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}

type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`

	// DispatchChannelID is the parent channel for routed threads.
	DispatchChannelID string `yaml:"dispatch_channel_id"`

	CommandPrefix string `yaml:"command_prefix"`

	// SendRate and SendBurst pace outbound messages per channel.
	SendRate  float64 `yaml:"send_rate"`
	SendBurst int     `yaml:"send_burst"`
}

// DispatchChannel parses DispatchChannelID. Zero means unset.
func (d DiscordConfig) DispatchChannel() (uint64, error) {
	raw := strings.TrimSpace(d.DispatchChannelID)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("discord.dispatch_channel_id must be a numeric snowflake: %w", err)
	}
	return id, nil
}

type RouterConfig struct {
	ArchiveMinutes int    `yaml:"archive_minutes"`
	Intro          string `yaml:"intro"`
	DisableIntro   bool   `yaml:"disable_intro"`
}

type StorageConfig struct {
	ThreadMap StoreConfig `yaml:"thread_map"`
	Roster    StoreConfig `yaml:"roster"`
}

type StoreConfig struct {
	// Driver is file or memory (backend dependent), sqlite or postgres.
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`

	// Watch reloads a file-backed store when the file changes on disk.
	Watch bool `yaml:"watch"`
}

type LinkingConfig struct {
	DefaultTTLMinutes int `yaml:"default_ttl_minutes"`
	MinTTLMinutes     int `yaml:"min_ttl_minutes"`
	MaxTTLMinutes     int `yaml:"max_ttl_minutes"`

	// RetainExpired keeps expired records visible this long before the
	// sweep job drops them.
	RetainExpired time.Duration `yaml:"retain_expired"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

type RelayConfig struct {
	// DefaultGuildID is used when a request names no guild.
	DefaultGuildID string `yaml:"default_guild_id"`

	// DisableThreadForward stops posting device messages into the
	// driver's thread.
	DisableThreadForward bool `yaml:"disable_thread_forward"`
}

type AuthConfig struct {
	// JWTSecret enables the /admin API when set.
	JWTSecret   string        `yaml:"jwt_secret"`
	Issuer      string        `yaml:"issuer"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`

	// GaugeSchedule is a cron spec for refreshing gauges.
	GaugeSchedule string `yaml:"gauge_schedule"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
	Environment  string  `yaml:"environment"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv(EnvBotToken)); token != "" {
		cfg.Discord.BotToken = token
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Discord.CommandPrefix == "" {
		cfg.Discord.CommandPrefix = "!"
	}
	if cfg.Discord.SendRate == 0 {
		cfg.Discord.SendRate = 1
	}
	if cfg.Discord.SendBurst == 0 {
		cfg.Discord.SendBurst = 5
	}
	if cfg.Router.ArchiveMinutes == 0 {
		cfg.Router.ArchiveMinutes = 10080
	}
	if cfg.Storage.ThreadMap.Driver == "" {
		cfg.Storage.ThreadMap.Driver = "file"
	}
	if cfg.Storage.ThreadMap.Driver == "file" && cfg.Storage.ThreadMap.Path == "" {
		cfg.Storage.ThreadMap.Path = "data/threads.json"
	}
	if cfg.Storage.Roster.Driver == "" {
		cfg.Storage.Roster.Driver = "memory"
	}
	if cfg.Linking.DefaultTTLMinutes == 0 {
		cfg.Linking.DefaultTTLMinutes = 10
	}
	if cfg.Linking.MinTTLMinutes == 0 {
		cfg.Linking.MinTTLMinutes = 1
	}
	if cfg.Linking.MaxTTLMinutes == 0 {
		cfg.Linking.MaxTTLMinutes = 60
	}
	if cfg.Linking.RetainExpired == 0 {
		cfg.Linking.RetainExpired = 24 * time.Hour
	}
	if cfg.Linking.SweepSchedule == "" {
		cfg.Linking.SweepSchedule = "@every 10m"
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "devicelink"
	}
	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.GaugeSchedule == "" {
		cfg.Observability.GaugeSchedule = "@every 1m"
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port must be between 0 and 65535"))
	}
	if _, err := c.Discord.DispatchChannel(); err != nil {
		errs = append(errs, err)
	}
	if c.Discord.SendRate < 0 || c.Discord.SendBurst < 0 {
		errs = append(errs, fmt.Errorf("discord.send_rate and discord.send_burst must not be negative"))
	}
	if c.Router.ArchiveMinutes < 0 {
		errs = append(errs, fmt.Errorf("router.archive_minutes must not be negative"))
	}

	switch strings.ToLower(c.Storage.ThreadMap.Driver) {
	case "file":
		if strings.TrimSpace(c.Storage.ThreadMap.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.thread_map.path is required for the file driver"))
		}
	case "sqlite", "postgres", "postgresql", "cockroach", "cockroachdb":
		if strings.TrimSpace(c.Storage.ThreadMap.DSN) == "" {
			errs = append(errs, fmt.Errorf("storage.thread_map.dsn is required for the %s driver", c.Storage.ThreadMap.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.thread_map.driver %q is not supported", c.Storage.ThreadMap.Driver))
	}

	switch strings.ToLower(c.Storage.Roster.Driver) {
	case "memory":
	case "sqlite", "postgres", "postgresql", "cockroach", "cockroachdb":
		if strings.TrimSpace(c.Storage.Roster.DSN) == "" {
			errs = append(errs, fmt.Errorf("storage.roster.dsn is required for the %s driver", c.Storage.Roster.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.roster.driver %q is not supported", c.Storage.Roster.Driver))
	}

	l := c.Linking
	if l.MinTTLMinutes < 1 {
		errs = append(errs, fmt.Errorf("linking.min_ttl_minutes must be at least 1"))
	}
	if l.MaxTTLMinutes < l.MinTTLMinutes {
		errs = append(errs, fmt.Errorf("linking.max_ttl_minutes must be >= min_ttl_minutes"))
	}
	if l.DefaultTTLMinutes < l.MinTTLMinutes || l.DefaultTTLMinutes > l.MaxTTLMinutes {
		errs = append(errs, fmt.Errorf("linking.default_ttl_minutes must be within [min_ttl_minutes, max_ttl_minutes]"))
	}
	if l.RetainExpired < 0 {
		errs = append(errs, fmt.Errorf("linking.retain_expired must not be negative"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text"))
	}

	if r := c.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("observability.tracing.sampling_rate must be within [0, 1]"))
	}

	return errors.Join(errs...)
}

// AdminEnabled reports whether the /admin API is enabled.
func (c *Config) AdminEnabled() bool {
	return strings.TrimSpace(c.Auth.JWTSecret) != ""
}
