package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	ShutdownTimeout    = 15 * time.Second
)

const (
	DefaultMongoDBName = "mailwave"

	CollectionContacts  = "contacts"
	CollectionSegments  = "segments"
	CollectionCampaigns = "campaigns"
	CollectionABTests   = "abtests"
	CollectionProducts  = "products"
	CollectionTracking  = "email_tracking"

	ContactCursorBatchSize = 500
)

const (
	TopicCampaignEvents = "campaign_events"
	TopicDeliveryEvents = "delivery_events"
	TopicDeliveryDLQ    = "delivery_events_dlq"
	EventSourceDispatch = "dispatch-service"
	EventSourceTracking = "tracking-service"
)

const (
	// TrackingTTL is how long tracking records live before the TTL index removes them.
	TrackingTTL        = 90 * 24 * time.Hour
	TrackingTTLSeconds = 7776000
)

const (
	MaxBatchSize          = 100
	DefaultBatchParallel  = 10
	DefaultSampleLimit    = 10
	MaxProductsPerBlock   = 4
	DefaultProductLimit   = 4
	PreviewPercentDecimal = 2
)

const (
	DefaultSchedulerInterval = 30 * time.Second
	DefaultCampaignLimit     = 5
	DefaultABTestLimit       = 2
	DefaultSchedulerLockTTL  = 25 * time.Second
	SchedulerLockName        = "scheduler:tick"
)

const (
	CacheKeyPrefixProducts = "products:"
	DefaultProductCacheTTL = 10 * time.Minute
)

const (
	ProviderResend = "resend"
	ProviderSES    = "ses"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)
