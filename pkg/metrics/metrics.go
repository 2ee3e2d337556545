package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SegmentCompilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segment_compiles_total",
			Help: "Total number of segment rule compilations (count)",
		},
		[]string{"logic"},
	)

	SegmentRulesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segment_rules_dropped_total",
			Help: "Total number of malformed segment rules dropped during compilation (count)",
		},
		[]string{"reason"},
	)

	AudienceQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audience_query_duration_ms",
			Help:    "Duration of audience store queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"operation"},
	)

	SegmentSyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segment_syncs_total",
			Help: "Total number of segment count synchronizations (count)",
		},
		[]string{"status"},
	)

	DispatchRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_runs_total",
			Help: "Total number of dispatch runs by kind and terminal status (count)",
		},
		[]string{"kind", "status"},
	)

	DispatchRecipientsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_recipients_total",
			Help: "Total number of recipients processed by outcome (count)",
		},
		[]string{"kind", "outcome"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_duration_ms",
			Help:    "Duration of a full dispatch run in milliseconds",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 15000, 60000, 300000, 900000},
		},
		[]string{"kind"},
	)

	TransportSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_sends_total",
			Help: "Total number of transport send calls (count)",
		},
		[]string{"provider", "status"},
	)

	TransportSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transport_send_duration_ms",
			Help:    "Duration of transport send calls in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"provider", "mode"},
	)

	TrackingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_events_total",
			Help: "Total number of tracking events recorded (count)",
		},
		[]string{"event", "status"},
	)

	PixelMissingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "personalize_pixel_missing_total",
			Help: "Total number of messages without a closing body tag for the open pixel (count)",
		},
	)

	ProductLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "product_lookups_total",
			Help: "Total number of product catalog lookups (count)",
		},
		[]string{"source", "status"},
	)

	SchedulerTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total number of scheduler ticks (count)",
		},
		[]string{"result"},
	)

	SchedulerItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_items_total",
			Help: "Total number of due items processed by the scheduler (count)",
		},
		[]string{"kind", "status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"topic", "status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

var (
	registerCommonOnce sync.Once
)

func registerCommon() {
	registerCommonOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
		prometheus.MustRegister(RateLimitRequestsTotal)
		prometheus.MustRegister(DatabaseQueriesTotal)
		prometheus.MustRegister(DatabaseQueryDuration)
		prometheus.MustRegister(KafkaMessagesWrittenTotal)
	})
}

func RegisterDispatchMetrics() {
	registerCommon()
	prometheus.MustRegister(SegmentCompilesTotal)
	prometheus.MustRegister(SegmentRulesDroppedTotal)
	prometheus.MustRegister(AudienceQueryDuration)
	prometheus.MustRegister(SegmentSyncsTotal)
	prometheus.MustRegister(DispatchRunsTotal)
	prometheus.MustRegister(DispatchRecipientsTotal)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(TransportSendsTotal)
	prometheus.MustRegister(TransportSendDuration)
	prometheus.MustRegister(PixelMissingTotal)
	prometheus.MustRegister(ProductLookupsTotal)
	prometheus.MustRegister(SchedulerTicksTotal)
	prometheus.MustRegister(SchedulerItemsTotal)
}

func RegisterTrackingMetrics() {
	registerCommon()
	prometheus.MustRegister(TrackingEventsTotal)
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
}

func IncRuleDropped(reason string) {
	SegmentRulesDroppedTotal.WithLabelValues(reason).Inc()
}

func ObserveAudienceQuery(operation string, duration time.Duration) {
	AudienceQueryDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func ObserveDispatch(kind, status string, duration time.Duration) {
	DispatchRunsTotal.WithLabelValues(kind, status).Inc()
	DispatchDuration.WithLabelValues(kind).Observe(float64(duration.Milliseconds()))
}

func IncRecipient(kind, outcome string) {
	DispatchRecipientsTotal.WithLabelValues(kind, outcome).Inc()
}

func ObserveTransportSend(provider, mode, status string, duration time.Duration) {
	TransportSendsTotal.WithLabelValues(provider, status).Inc()
	TransportSendDuration.WithLabelValues(provider, mode).Observe(float64(duration.Milliseconds()))
}

func IncTrackingEvent(event, status string) {
	TrackingEventsTotal.WithLabelValues(event, status).Inc()
}

func IncProductLookup(source, status string) {
	ProductLookupsTotal.WithLabelValues(source, status).Inc()
}

func IncSchedulerItem(kind, status string) {
	SchedulerItemsTotal.WithLabelValues(kind, status).Inc()
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}
