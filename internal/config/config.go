package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
	Scheduler      SchedulerConfig      `mapstructure:"scheduler"`
	Dispatch       DispatchConfig       `mapstructure:"dispatch"`
	Tracking       TrackingConfig       `mapstructure:"tracking"`
	Personalize    PersonalizeConfig    `mapstructure:"personalize"`
	Transport      TransportConfig      `mapstructure:"transport"`
	Segments       SegmentsConfig       `mapstructure:"segments"`
	API            APIConfig            `mapstructure:"api"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Enabled reports whether a Postgres connection was configured.
func (c PostgresConfig) Enabled() bool { return c.Host != "" }

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Enabled() bool { return c.Host != "" }

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// Enabled reports whether events should be published at all.
func (c BrokerConfig) Enabled() bool { return c.Type != "" && c.Type != "none" }

type KafkaConfig struct {
	Brokers             []string    `mapstructure:"brokers"`
	GroupID             string      `mapstructure:"group_id"`
	CampaignEventsTopic string      `mapstructure:"campaign_events_topic"`
	DeliveryEventsTopic string      `mapstructure:"delivery_events_topic"`
	DLQTopic            string      `mapstructure:"dlq_topic"`
	AutoCreateTopics    bool        `mapstructure:"auto_create_topics"`
	Retry               RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	CampaignLimit int           `mapstructure:"campaign_limit"`
	ABTestLimit   int           `mapstructure:"ab_test_limit"`
	TriggerSecret string        `mapstructure:"trigger_secret"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
}

type DispatchConfig struct {
	FromEmail        string `mapstructure:"from_email"`
	BatchSize        int    `mapstructure:"batch_size"`
	BatchConcurrency int    `mapstructure:"batch_concurrency"`
}

type TrackingConfig struct {
	PixelBaseURL string `mapstructure:"pixel_base_url"`
	ClickBaseURL string `mapstructure:"click_base_url"`
	TTLDays      int    `mapstructure:"ttl_days"`
	// WebhookSecret is the bearer token the transport webhook must present.
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// TTL is the lifetime of a tracking record.
func (c TrackingConfig) TTL() time.Duration {
	if c.TTLDays <= 0 {
		return 90 * 24 * time.Hour
	}
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

type PersonalizeConfig struct {
	StoreURL               string `mapstructure:"store_url"`
	ProductCacheTTLSeconds int    `mapstructure:"product_cache_ttl_seconds"`
}

type TransportConfig struct {
	Provider  string          `mapstructure:"provider"`
	Resend    ResendConfig    `mapstructure:"resend"`
	SES       SESConfig       `mapstructure:"ses"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ResendConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SESConfig struct {
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	ConfigurationSet string `mapstructure:"configuration_set"`
}

type SegmentsConfig struct {
	AutoSyncEnabled bool `mapstructure:"auto_sync_enabled"`
}

type APIConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
