// Package config loads the notification fabric configuration from defaults,
// an optional YAML file and NOTIFY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go-notification-ws/internal/infrastructure/logger"
)

// EnvPrefix is prepended to every environment override, e.g. NOTIFY_AUTH_SECRET.
const EnvPrefix = "NOTIFY"

// Config holds all configuration for the server and the watch client.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Hub    HubConfig    `mapstructure:"hub"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Log    LogConfig    `mapstructure:"log"`
	Client ClientConfig `mapstructure:"client"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	WSPath          string        `mapstructure:"ws_path"`
	SSEPath         string        `mapstructure:"sse_path"`
}

// AuthConfig selects the key material used to verify bearer tokens.
// Secret enables HS256, JWKSURL enables RS256; at least one is required.
type AuthConfig struct {
	Issuer      string        `mapstructure:"issuer"`
	Audience    string        `mapstructure:"audience"`
	Secret      string        `mapstructure:"secret"`
	JWKSURL     string        `mapstructure:"jwks_url"`
	JWKSTimeout time.Duration `mapstructure:"jwks_timeout"`
}

// HubConfig tunes per-connection buffers, deadlines and limits.
type HubConfig struct {
	SendBuffer        int           `mapstructure:"send_buffer"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	PongWait          time.Duration `mapstructure:"pong_wait"`
	ReadLimit         int64         `mapstructure:"read_limit"`
	ControlRate       float64       `mapstructure:"control_rate"`
	ControlBurst      int           `mapstructure:"control_burst"`
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval"`
}

// RedisConfig enables the cross-replica broadcast relay.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// LogConfig mirrors logger.Config with a textual level.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ClientConfig drives the watch CLI's reconnection agent.
type ClientConfig struct {
	URL      string        `mapstructure:"url"`
	Channel  string        `mapstructure:"channel"`
	Backoff  time.Duration `mapstructure:"backoff"`
	Token    string        `mapstructure:"token"`
	Subject  string        `mapstructure:"subject"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	// Streaming responses outlive any fixed write timeout; the hub sets its
	// own per-write deadlines.
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.sse_path", "/sse")

	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.jwks_timeout", 5*time.Second)

	v.SetDefault("hub.send_buffer", 256)
	v.SetDefault("hub.write_timeout", 10*time.Second)
	v.SetDefault("hub.pong_wait", 60*time.Second)
	v.SetDefault("hub.read_limit", 32*1024)
	v.SetDefault("hub.control_rate", 20.0)
	v.SetDefault("hub.control_burst", 40)
	v.SetDefault("hub.keepalive_interval", 30*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "notify:broadcast")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("client.url", "ws://localhost:8080/ws")
	v.SetDefault("client.channel", "vms")
	v.SetDefault("client.backoff", 3*time.Second)
	v.SetDefault("client.token", "")
	v.SetDefault("client.subject", "watch-cli")
	v.SetDefault("client.token_ttl", 15*time.Minute)
}

// New returns a viper instance with defaults and env overrides wired.
// configFile may be empty, in which case ./configs/config.yaml and
// ./config.yaml are tried.
func New(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (if any) into v and decodes the result.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the server-side settings.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("server.ws_path %q must start with /", c.Server.WSPath)
	}
	if c.Server.SSEPath != "" && !strings.HasPrefix(c.Server.SSEPath, "/") {
		return fmt.Errorf("server.sse_path %q must start with /", c.Server.SSEPath)
	}
	if c.Auth.Secret == "" && c.Auth.JWKSURL == "" {
		return errors.New("auth: one of auth.secret or auth.jwks_url is required")
	}
	if c.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub.send_buffer must be positive, got %d", c.Hub.SendBuffer)
	}
	if c.Hub.WriteTimeout <= 0 {
		return fmt.Errorf("hub.write_timeout must be positive, got %s", c.Hub.WriteTimeout)
	}
	if c.Hub.PongWait <= 0 {
		return fmt.Errorf("hub.pong_wait must be positive, got %s", c.Hub.PongWait)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis.enabled is set")
	}
	return nil
}

// ValidateClient checks the settings the watch CLI depends on.
func (c *Config) ValidateClient() error {
	if c.Client.URL == "" {
		return errors.New("client.url is required")
	}
	if c.Client.Channel == "" {
		return errors.New("client.channel is required")
	}
	if c.Client.Backoff <= 0 {
		return fmt.Errorf("client.backoff must be positive, got %s", c.Client.Backoff)
	}
	if c.Client.Token == "" && c.Auth.Secret == "" {
		return errors.New("client.token or auth.secret is required")
	}
	return nil
}

// LoggerConfig converts the log section into a logger.Config carrying the
// default container fields.
func (c *Config) LoggerConfig() (*logger.Config, error) {
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	lc := logger.NewDefaultConfig()
	lc.Level = level
	lc.Format = c.Log.Format
	lc.Output = c.Log.Output
	lc.FilePath = c.Log.FilePath
	lc.MaxSize = c.Log.MaxSize
	lc.MaxBackups = c.Log.MaxBackups
	lc.MaxAge = c.Log.MaxAge
	lc.Compress = c.Log.Compress
	return lc, nil
}
