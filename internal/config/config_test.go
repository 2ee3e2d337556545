package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
server:
  port: 8080
  read_timeout_seconds: 10
  write_timeout_seconds: 10
database:
  mongodb:
    uri: mongodb://localhost:27017
tracking:
  pixel_base_url: https://t.example.com
transport:
  provider: resend
  resend:
    api_key: re_test
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "mailwave", cfg.Database.MongoDB.Database)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 5, cfg.Scheduler.CampaignLimit)
	assert.Equal(t, 2, cfg.Scheduler.ABTestLimit)
	assert.Equal(t, 100, cfg.Dispatch.BatchSize)
	assert.Equal(t, "https://t.example.com", cfg.Tracking.ClickBaseURL)
	assert.Equal(t, 90*24*time.Hour, cfg.Tracking.TTL())
	assert.False(t, cfg.Broker.Enabled())
	assert.False(t, cfg.Database.Postgres.Enabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CRON_SECRET", "s3cret")
	t.Setenv("BROKER_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := LoadConfig(writeConfig(t, minimalYAML+`
broker:
  type: kafka
  kafka:
    group_id: tracking
    retry:
      multiplier: 2
`))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Scheduler.TriggerSecret)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "campaign_events", cfg.Broker.Kafka.CampaignEventsTopic)
}

func TestLoadFromEnvironmentOnly(t *testing.T) {
	t.Setenv("DATABASE_MONGODB_URI", "mongodb://mongo:27017")
	t.Setenv("TRACKING_PIXEL_BASE_URL", "https://t.example.com")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RESEND_API_KEY", "re_env")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, time.Duration(15), cfg.Server.ReadTimeoutSeconds)
	assert.Equal(t, "re_env", cfg.Transport.Resend.APIKey)
	assert.Equal(t, "resend", cfg.Transport.Provider)
	assert.Equal(t, 25*time.Second, cfg.Scheduler.LockTTL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidateStatic(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: 8080, ReadTimeoutSeconds: time.Second, WriteTimeoutSeconds: time.Second},
			Database:  DatabaseConfig{MongoDB: MongoDBConfig{URI: "mongodb://m", Database: "mailwave"}},
			Tracking:  TrackingConfig{PixelBaseURL: "https://t"},
			Transport: TransportConfig{Provider: "ses"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"unknown provider", func(c *Config) { c.Transport.Provider = "smtp" }, "transport.provider"},
		{"relative pixel url", func(c *Config) { c.Tracking.PixelBaseURL = "/t" }, "tracking.pixel_base_url"},
		{"missing mongo", func(c *Config) { c.Database.MongoDB.URI = "" }, "database.mongodb.uri"},
		{"unknown broker", func(c *Config) { c.Broker.Type = "rabbitmq" }, "broker.type"},
		{"kafka without brokers", func(c *Config) { c.Broker.Type = "kafka" }, "broker.kafka.brokers"},
		{"rate limit without rps", func(c *Config) { c.Transport.RateLimit.Enabled = true }, "transport.rate_limit.rps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := ValidateStatic(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
