package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies OFFERSTREAM_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known OFFERSTREAM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setStr(&cfg.Server.Host, "OFFERSTREAM_SERVER_HOST")
	setInt(&cfg.Server.Port, "OFFERSTREAM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "OFFERSTREAM_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "OFFERSTREAM_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "OFFERSTREAM_SERVER_RATE_LIMIT_WINDOW")
	setStr(&cfg.Server.AdminToken, "OFFERSTREAM_SERVER_ADMIN_TOKEN")

	// ── Generator ──
	setBool(&cfg.Generator.Enabled, "OFFERSTREAM_GENERATOR_ENABLED")
	setBool(&cfg.Generator.SeedData, "OFFERSTREAM_GENERATOR_SEED_DATA")
	setInt64Slice(&cfg.Generator.SessionIDs, "OFFERSTREAM_GENERATOR_SESSION_IDS")
	setUint64(&cfg.Generator.RandomSeed, "OFFERSTREAM_GENERATOR_RANDOM_SEED")
	setDuration(&cfg.Generator.MinInterval, "OFFERSTREAM_GENERATOR_MIN_INTERVAL")
	setDuration(&cfg.Generator.MaxInterval, "OFFERSTREAM_GENERATOR_MAX_INTERVAL")
	setDuration(&cfg.Generator.RecoveryDelay, "OFFERSTREAM_GENERATOR_RECOVERY_DELAY")
	setInt(&cfg.Generator.MaxChangesPerSession, "OFFERSTREAM_GENERATOR_MAX_CHANGES_PER_SESSION")

	// ── Broadcast ──
	setInt(&cfg.Broadcast.QueueSize, "OFFERSTREAM_BROADCAST_QUEUE_SIZE")
	setInt(&cfg.Broadcast.SendBufferSize, "OFFERSTREAM_BROADCAST_SEND_BUFFER_SIZE")
	setInt(&cfg.Broadcast.SinkQueueSize, "OFFERSTREAM_BROADCAST_SINK_QUEUE_SIZE")
	setDuration(&cfg.Broadcast.SinkTimeout, "OFFERSTREAM_BROADCAST_SINK_TIMEOUT")

	// ── Client ──
	setStr(&cfg.Client.ServerURL, "OFFERSTREAM_CLIENT_SERVER_URL")
	setStr(&cfg.Client.WSURL, "OFFERSTREAM_CLIENT_WS_URL")
	setInt64(&cfg.Client.InitialSession, "OFFERSTREAM_CLIENT_INITIAL_SESSION")
	setDuration(&cfg.Client.BaseDelay, "OFFERSTREAM_CLIENT_BASE_DELAY")
	setDuration(&cfg.Client.MaxDelay, "OFFERSTREAM_CLIENT_MAX_DELAY")
	setInt(&cfg.Client.MaxAttempts, "OFFERSTREAM_CLIENT_MAX_ATTEMPTS")
	setDuration(&cfg.Client.DialTimeout, "OFFERSTREAM_CLIENT_DIAL_TIMEOUT")
	setDuration(&cfg.Client.HTTPTimeout, "OFFERSTREAM_CLIENT_HTTP_TIMEOUT")
	setDuration(&cfg.Client.SummaryInterval, "OFFERSTREAM_CLIENT_SUMMARY_INTERVAL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "OFFERSTREAM_REDIS_ENABLED")
	setStr(&cfg.Redis.URL, "OFFERSTREAM_REDIS_URL")
	setStr(&cfg.Redis.Addr, "OFFERSTREAM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OFFERSTREAM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OFFERSTREAM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OFFERSTREAM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OFFERSTREAM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OFFERSTREAM_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Channel, "OFFERSTREAM_REDIS_CHANNEL")
	setStr(&cfg.Redis.Stream, "OFFERSTREAM_REDIS_STREAM")
	setInt64(&cfg.Redis.StreamMaxLen, "OFFERSTREAM_REDIS_STREAM_MAX_LEN")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "OFFERSTREAM_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "OFFERSTREAM_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "OFFERSTREAM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OFFERSTREAM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OFFERSTREAM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OFFERSTREAM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OFFERSTREAM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OFFERSTREAM_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OFFERSTREAM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OFFERSTREAM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OFFERSTREAM_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "OFFERSTREAM_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "OFFERSTREAM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OFFERSTREAM_S3_REGION")
	setStr(&cfg.S3.Bucket, "OFFERSTREAM_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "OFFERSTREAM_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "OFFERSTREAM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OFFERSTREAM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "OFFERSTREAM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "OFFERSTREAM_S3_FORCE_PATH_STYLE")

	// ── Snapshot ──
	setBool(&cfg.Snapshot.Enabled, "OFFERSTREAM_SNAPSHOT_ENABLED")
	setDuration(&cfg.Snapshot.Interval, "OFFERSTREAM_SNAPSHOT_INTERVAL")
	setBool(&cfg.Snapshot.ArchiveEnabled, "OFFERSTREAM_SNAPSHOT_ARCHIVE_ENABLED")
	setDuration(&cfg.Snapshot.ArchiveRetention, "OFFERSTREAM_SNAPSHOT_ARCHIVE_RETENTION")
	setStr(&cfg.Snapshot.ArchiveCron, "OFFERSTREAM_SNAPSHOT_ARCHIVE_CRON")

	// ── Notify ──
	setBool(&cfg.Notify.Enabled, "OFFERSTREAM_NOTIFY_ENABLED")
	setStr(&cfg.Notify.DiscordWebhook, "OFFERSTREAM_NOTIFY_DISCORD_WEBHOOK")
	setStr(&cfg.Notify.TelegramToken, "OFFERSTREAM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OFFERSTREAM_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "OFFERSTREAM_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "OFFERSTREAM_NOTIFY_COOLDOWN")

	// ── Top-level ──
	setStr(&cfg.Mode, "OFFERSTREAM_MODE")
	setStr(&cfg.LogLevel, "OFFERSTREAM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present, non-empty and parses.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		if cleaned := splitList(v); len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setInt64Slice replaces dst only when every element parses.
func setInt64Slice(dst *[]int64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := splitList(v)
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return
		}
		out = append(out, n)
	}
	if len(out) > 0 {
		*dst = out
	}
}
