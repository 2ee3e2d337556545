package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"mailwave/internal/constants"
)

// envBindings maps config keys to the environment variables that override
// them. Secrets use the names the providers document.
var envBindings = [][2]string{
	{"broker.kafka.brokers", "BROKER_KAFKA_BROKERS"},
	{"broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID"},
	{"broker.kafka.campaign_events_topic", "BROKER_KAFKA_CAMPAIGN_EVENTS_TOPIC"},
	{"broker.kafka.delivery_events_topic", "BROKER_KAFKA_DELIVERY_EVENTS_TOPIC"},
	{"broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC"},
	{"broker.kafka.auto_create_topics", "BROKER_KAFKA_AUTO_CREATE_TOPICS"},

	{"database.postgres.host", "DATABASE_POSTGRES_HOST"},
	{"database.postgres.port", "DATABASE_POSTGRES_PORT"},
	{"database.postgres.user", "DATABASE_POSTGRES_USER"},
	{"database.postgres.password", "DATABASE_POSTGRES_PASSWORD"},
	{"database.postgres.dbname", "DATABASE_POSTGRES_DBNAME"},
	{"database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE"},
	{"database.redis.host", "DATABASE_REDIS_HOST"},
	{"database.redis.port", "DATABASE_REDIS_PORT"},
	{"database.redis.password", "DATABASE_REDIS_PASSWORD"},
	{"database.redis.db", "DATABASE_REDIS_DB"},
	{"database.mongodb.uri", "DATABASE_MONGODB_URI"},
	{"database.mongodb.database", "DATABASE_MONGODB_DATABASE"},

	{"server.port", "SERVER_PORT"},
	{"server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS"},
	{"server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS"},
	{"logging.level", "LOGGING_LEVEL"},
	{"logging.format", "LOGGING_FORMAT"},
	{"tracing.enabled", "TRACING_ENABLED"},
	{"tracing.service_name", "TRACING_SERVICE_NAME"},
	{"tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT"},
	{"tracing.otlp.insecure", "TRACING_OTLP_INSECURE"},

	{"scheduler.trigger_secret", "CRON_SECRET"},
	{"scheduler.interval", "SCHEDULER_INTERVAL"},
	{"dispatch.from_email", "DISPATCH_FROM_EMAIL"},
	{"tracking.pixel_base_url", "TRACKING_PIXEL_BASE_URL"},
	{"tracking.click_base_url", "TRACKING_CLICK_BASE_URL"},
	{"tracking.webhook_secret", "TRACKING_WEBHOOK_SECRET"},
	{"personalize.store_url", "STORE_URL"},

	{"transport.provider", "TRANSPORT_PROVIDER"},
	{"transport.resend.api_key", "RESEND_API_KEY"},
	{"transport.ses.region", "AWS_REGION"},
	{"transport.ses.access_key_id", "AWS_ACCESS_KEY_ID"},
	{"transport.ses.secret_access_key", "AWS_SECRET_ACCESS_KEY"},
}

var defaults = map[string]interface{}{
	"server.port":                        8080,
	"server.read_timeout_seconds":        15,
	"server.write_timeout_seconds":       300,
	"database.mongodb.database":          constants.DefaultMongoDBName,
	"broker.kafka.campaign_events_topic": constants.TopicCampaignEvents,
	"broker.kafka.delivery_events_topic": constants.TopicDeliveryEvents,
	"scheduler.interval":                 constants.DefaultSchedulerInterval,
	"scheduler.campaign_limit":           constants.DefaultCampaignLimit,
	"scheduler.ab_test_limit":            constants.DefaultABTestLimit,
	"scheduler.lock_ttl":                 constants.DefaultSchedulerLockTTL,
	"dispatch.batch_concurrency":         constants.DefaultBatchParallel,
	"transport.provider":                 constants.ProviderResend,
}

// LoadConfig reads configFile, layers the environment over it and validates
// the result. An empty path loads from the environment alone.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, b := range envBindings {
		_ = v.BindEnv(b[0], b[1])
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if brokers := splitList(v.GetString("BROKER_KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Broker.Kafka.Brokers = brokers
	}

	normalize(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// normalize fills values that depend on other settings or must stay in range.
func normalize(cfg *Config) {
	if cfg.Dispatch.BatchSize <= 0 || cfg.Dispatch.BatchSize > constants.MaxBatchSize {
		cfg.Dispatch.BatchSize = constants.MaxBatchSize
	}
	if cfg.Tracking.ClickBaseURL == "" {
		cfg.Tracking.ClickBaseURL = cfg.Tracking.PixelBaseURL
	}
	if cfg.Scheduler.CampaignLimit <= 0 {
		cfg.Scheduler.CampaignLimit = constants.DefaultCampaignLimit
	}
	if cfg.Scheduler.ABTestLimit <= 0 {
		cfg.Scheduler.ABTestLimit = constants.DefaultABTestLimit
	}
	if cfg.Scheduler.Interval <= 0 {
		cfg.Scheduler.Interval = constants.DefaultSchedulerInterval
	}
	if cfg.Scheduler.LockTTL <= 0 {
		cfg.Scheduler.LockTTL = constants.DefaultSchedulerLockTTL
	}
	if cfg.Dispatch.BatchConcurrency <= 0 {
		cfg.Dispatch.BatchConcurrency = constants.DefaultBatchParallel
	}
}
