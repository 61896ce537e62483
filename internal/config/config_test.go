package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offerstream.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	cfg.Mode = ModeFull
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "full"

[server]
port = 9000

[generator]
session_ids = [7, 8]
min_interval = "100ms"
max_interval = "250ms"

[client]
server_url = "http://offers.internal:9000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeFull, cfg.Mode)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []int64{7, 8}, cfg.Generator.SessionIDs)
	assert.Equal(t, 100*time.Millisecond, cfg.Generator.MinInterval.Duration)
	assert.Equal(t, 5*time.Second, cfg.Generator.RecoveryDelay.Duration, "untouched keys keep defaults")
	assert.Equal(t, []string{"http://localhost:4200"}, cfg.Server.CORSOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeTOML(t, "[server]\nprot = 1\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.prot")
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5160, cfg.Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OFFERSTREAM_MODE", "viewer")
	t.Setenv("OFFERSTREAM_SERVER_PORT", "7001")
	t.Setenv("OFFERSTREAM_SERVER_CORS_ORIGINS", " http://a , ,http://b")
	t.Setenv("OFFERSTREAM_GENERATOR_SESSION_IDS", "4,5")
	t.Setenv("OFFERSTREAM_GENERATOR_RANDOM_SEED", "42")
	t.Setenv("OFFERSTREAM_CLIENT_MAX_DELAY", "45s")
	t.Setenv("OFFERSTREAM_REDIS_ENABLED", "true")
	t.Setenv("OFFERSTREAM_CLIENT_MAX_ATTEMPTS", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ModeViewer, cfg.Mode)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.CORSOrigins)
	assert.Equal(t, []int64{4, 5}, cfg.Generator.SessionIDs)
	assert.Equal(t, uint64(42), cfg.Generator.RandomSeed)
	assert.Equal(t, 45*time.Second, cfg.Client.MaxDelay.Duration)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 10, cfg.Client.MaxAttempts, "unparsable values are ignored")
}

func TestInvalidSessionListIgnored(t *testing.T) {
	t.Setenv("OFFERSTREAM_GENERATOR_SESSION_IDS", "1,x")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, cfg.Generator.SessionIDs)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Server.Port = 0
	cfg.Generator.MaxInterval = duration{time.Millisecond}
	cfg.Snapshot.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "snapshot: requires s3.enabled")
}

func TestValidateServerChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 70000
	cfg.Server.RateLimit = 10
	cfg.Generator.MaxInterval = duration{time.Millisecond}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server: port must be 1-65535")
	assert.Contains(t, err.Error(), "rate_limit requires redis.enabled")
	assert.Contains(t, err.Error(), "min_interval <= max_interval")
}

func TestValidateArchiveNeedsStores(t *testing.T) {
	cfg := Defaults()
	cfg.Snapshot.ArchiveEnabled = true
	cfg.Snapshot.ArchiveCron = "daily"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive_enabled requires")
	assert.Contains(t, err.Error(), `archive_cron "daily"`)

	cfg.Snapshot.ArchiveCron = "@daily"
	cfg.S3.Enabled = true
	cfg.Postgres.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestValidateNotify(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify: requires discord_webhook or telegram_token")

	cfg.Notify.TelegramToken = "bot-token"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram_token requires telegram_chat_id")

	cfg.Notify.TelegramChatID = "42"
	assert.NoError(t, cfg.Validate())
}

func TestViewerOnlyIgnoresServerSettings(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = ModeViewer
	cfg.Server.Port = 0
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.RunsViewer())
	assert.False(t, cfg.RunsServer())
}

func TestPushURL(t *testing.T) {
	c := ClientConfig{ServerURL: "http://localhost:5160"}
	got, err := c.PushURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:5160/ws", got)

	c = ClientConfig{ServerURL: "https://offers.example.com/base/"}
	got, err = c.PushURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://offers.example.com/base/ws", got)

	c = ClientConfig{ServerURL: "http://x", WSURL: "ws://elsewhere/push"}
	got, err = c.PushURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://elsewhere/push", got)

	c = ClientConfig{ServerURL: "ftp://x"}
	_, err = c.PushURL()
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Password = "hunter2"
	cfg.Redis.URL = "redis://:hunter2@cache:6379/0"
	cfg.Postgres.DSN = "postgres://app:pw@db:5432/offers"
	cfg.S3.SecretKey = "s3cr3t"
	cfg.Notify.DiscordWebhook = "https://discord.com/api/webhooks/1/abc"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Redis.Password)
	assert.NotContains(t, out.Redis.URL, "hunter2")
	assert.Contains(t, out.Redis.URL, "cache:6379")
	assert.Equal(t, "postgres://app:***@db:5432/offers", out.Postgres.DSN)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Empty(t, out.S3.AccessKey, "empty secrets stay empty")
	assert.Equal(t, "***", out.Notify.DiscordWebhook)

	out.Server.CORSOrigins[0] = "mutated"
	assert.Equal(t, "http://localhost:4200", cfg.Server.CORSOrigins[0])
	assert.Equal(t, "hunter2", cfg.Redis.Password)
}
