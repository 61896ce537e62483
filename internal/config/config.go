// Package config defines the top-level configuration for offerstream and
// provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by OFFERSTREAM_* environment variables.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Generator GeneratorConfig `toml:"generator"`
	Broadcast BroadcastConfig `toml:"broadcast"`
	Client    ClientConfig    `toml:"client"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Snapshot  SnapshotConfig  `toml:"snapshot"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ServerConfig holds the HTTP API and push channel listener settings.
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is the number of /api requests allowed per client IP per
	// RateLimitWindow. Zero disables limiting; limiting also needs redis.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
	// AdminToken is required by POST endpoints when set.
	AdminToken string `toml:"admin_token"`
}

// GeneratorConfig drives the background mutation loop.
type GeneratorConfig struct {
	Enabled    bool    `toml:"enabled"`
	SeedData   bool    `toml:"seed_data"`
	SessionIDs []int64 `toml:"session_ids"`
	// RandomSeed makes the mutation sequence reproducible. Zero picks a
	// random seed at startup.
	RandomSeed           uint64   `toml:"random_seed"`
	MinInterval          duration `toml:"min_interval"`
	MaxInterval          duration `toml:"max_interval"`
	RecoveryDelay        duration `toml:"recovery_delay"`
	MaxChangesPerSession int      `toml:"max_changes_per_session"`
}

// BroadcastConfig sizes the hub queues.
type BroadcastConfig struct {
	QueueSize      int      `toml:"queue_size"`
	SendBufferSize int      `toml:"send_buffer_size"`
	SinkQueueSize  int      `toml:"sink_queue_size"`
	SinkTimeout    duration `toml:"sink_timeout"`
}

// ClientConfig configures the viewer's connection to a server.
type ClientConfig struct {
	// ServerURL is the HTTP base of the server, e.g. "http://localhost:5160".
	// The push channel URL is derived from it unless WSURL is set.
	ServerURL       string   `toml:"server_url"`
	WSURL           string   `toml:"ws_url"`
	InitialSession  int64    `toml:"initial_session"`
	BaseDelay       duration `toml:"base_delay"`
	MaxDelay        duration `toml:"max_delay"`
	MaxAttempts     int      `toml:"max_attempts"`
	DialTimeout     duration `toml:"dial_timeout"`
	HTTPTimeout     duration `toml:"http_timeout"`
	SummaryInterval duration `toml:"summary_interval"`
}

// RedisConfig holds Redis connection parameters and relay names.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	URL          string `toml:"url"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	Channel      string `toml:"channel"`
	Stream       string `toml:"stream"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// PostgresConfig holds the journal database connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SnapshotConfig schedules the export jobs. Both need s3; archival also
// needs postgres.
type SnapshotConfig struct {
	Enabled          bool     `toml:"enabled"`
	Interval         duration `toml:"interval"`
	ArchiveEnabled   bool     `toml:"archive_enabled"`
	ArchiveRetention duration `toml:"archive_retention"`
	ArchiveCron      string   `toml:"archive_cron"`
}

// NotifyConfig routes pipeline job failure alerts to chat webhooks.
type NotifyConfig struct {
	Enabled        bool     `toml:"enabled"`
	DiscordWebhook string   `toml:"discord_webhook"`
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
	// Cooldown suppresses repeats of the same event. Zero sends every alert.
	Cooldown duration `toml:"cooldown"`
}

// duration wraps time.Duration so TOML strings like "750ms" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with sensible defaults for local
// development.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:            "",
			Port:            5160,
			CORSOrigins:     []string{"http://localhost:4200"},
			RateLimit:       0,
			RateLimitWindow: duration{time.Minute},
		},
		Generator: GeneratorConfig{
			Enabled:              true,
			SeedData:             true,
			SessionIDs:           []int64{1, 2, 3},
			MinInterval:          duration{300 * time.Millisecond},
			MaxInterval:          duration{900 * time.Millisecond},
			RecoveryDelay:        duration{5 * time.Second},
			MaxChangesPerSession: 3,
		},
		Broadcast: BroadcastConfig{
			QueueSize:      1024,
			SendBufferSize: 256,
			SinkQueueSize:  1024,
			SinkTimeout:    duration{2 * time.Second},
		},
		Client: ClientConfig{
			ServerURL:       "http://localhost:5160",
			InitialSession:  1,
			BaseDelay:       duration{time.Second},
			MaxDelay:        duration{30 * time.Second},
			MaxAttempts:     10,
			DialTimeout:     duration{15 * time.Second},
			HTTPTimeout:     duration{10 * time.Second},
			SummaryInterval: duration{5 * time.Second},
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			Channel:      "ch:offers",
			Stream:       "stream:offers",
			StreamMaxLen: 10000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "offerstream",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "offerstream",
			ForcePathStyle: true,
		},
		Snapshot: SnapshotConfig{
			Interval:         duration{5 * time.Minute},
			ArchiveRetention: duration{7 * 24 * time.Hour},
			ArchiveCron:      "0 3 * * *",
		},
		Notify: NotifyConfig{
			Cooldown: duration{15 * time.Minute},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// Operating modes.
const (
	ModeServer = "server"
	ModeViewer = "viewer"
	ModeFull   = "full"
)

var validModes = map[string]bool{
	ModeServer: true,
	ModeViewer: true,
	ModeFull:   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsServer reports whether the mode hosts the store and HTTP API.
func (c *Config) RunsServer() bool {
	m := strings.ToLower(c.Mode)
	return m == ModeServer || m == ModeFull
}

// RunsViewer reports whether the mode hosts a viewer replica.
func (c *Config) RunsViewer() bool {
	m := strings.ToLower(c.Mode)
	return m == ModeViewer || m == ModeFull
}

// PushURL returns the push channel URL the viewer dials.
func (c *ClientConfig) PushURL() (string, error) {
	if c.WSURL != "" {
		return c.WSURL, nil
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("config: parse client.server_url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("config: client.server_url must be http or https, got %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Validate checks the configuration for consistency and returns all problems
// found joined into one error.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, viewer, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.RunsServer() {
		errs = append(errs, c.validateServer()...)
	}
	if c.RunsViewer() {
		errs = append(errs, c.validateClient()...)
	}

	if c.Redis.Enabled && c.Redis.URL == "" && c.Redis.Addr == "" {
		errs = append(errs, "redis: url or addr must be set when enabled")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.Snapshot.Enabled {
		if !c.S3.Enabled {
			errs = append(errs, "snapshot: requires s3.enabled")
		}
		if c.Snapshot.Interval.Duration <= 0 {
			errs = append(errs, "snapshot: interval must be > 0")
		}
	}
	if c.Snapshot.ArchiveEnabled {
		if !c.S3.Enabled || !c.Postgres.Enabled {
			errs = append(errs, "snapshot: archive_enabled requires s3.enabled and postgres.enabled")
		}
		if c.Snapshot.ArchiveRetention.Duration <= 0 {
			errs = append(errs, "snapshot: archive_retention must be > 0")
		}
		if _, err := cron.ParseStandard(c.Snapshot.ArchiveCron); err != nil {
			errs = append(errs, fmt.Sprintf("snapshot: archive_cron %q: %v", c.Snapshot.ArchiveCron, err))
		}
	}

	if c.Notify.Enabled {
		if c.Notify.DiscordWebhook == "" && c.Notify.TelegramToken == "" {
			errs = append(errs, "notify: requires discord_webhook or telegram_token")
		}
		if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
			errs = append(errs, "notify: telegram_token requires telegram_chat_id")
		}
		if c.Notify.Cooldown.Duration < 0 {
			errs = append(errs, "notify: cooldown must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validateServer() []string {
	var errs []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 {
		if c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
		if !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit requires redis.enabled")
		}
	}

	g := c.Generator
	if g.Enabled {
		if len(g.SessionIDs) == 0 {
			errs = append(errs, "generator: session_ids must not be empty")
		}
		if g.MinInterval.Duration <= 0 || g.MaxInterval.Duration < g.MinInterval.Duration {
			errs = append(errs, "generator: need 0 < min_interval <= max_interval")
		}
		if g.RecoveryDelay.Duration <= 0 {
			errs = append(errs, "generator: recovery_delay must be > 0")
		}
		if g.MaxChangesPerSession < 0 {
			errs = append(errs, "generator: max_changes_per_session must be >= 0")
		}
	}

	if c.Broadcast.QueueSize < 0 || c.Broadcast.SendBufferSize < 0 || c.Broadcast.SinkQueueSize < 0 {
		errs = append(errs, "broadcast: queue sizes must be >= 0")
	}
	return errs
}

func (c *Config) validateClient() []string {
	var errs []string
	cl := c.Client
	if cl.ServerURL == "" {
		errs = append(errs, "client: server_url must not be empty")
	} else if _, err := cl.PushURL(); err != nil {
		errs = append(errs, err.Error())
	}
	if cl.InitialSession <= 0 {
		errs = append(errs, "client: initial_session must be positive")
	}
	if cl.BaseDelay.Duration <= 0 || cl.MaxDelay.Duration < cl.BaseDelay.Duration {
		errs = append(errs, "client: need 0 < base_delay <= max_delay")
	}
	if cl.MaxAttempts < 1 {
		errs = append(errs, "client: max_attempts must be >= 1")
	}
	return errs
}
