// Package metrics provides Prometheus metrics for the Vine service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthFlowsTotal tracks authorization flow outcomes by method
	AuthFlowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "auth",
			Name:      "flows_total",
			Help:      "Total number of authorization flows by auth scheme and status",
		},
		[]string{"environment_id", "integration_id", "auth_scheme", "status"},
	)

	// AuthFlowDuration tracks end-to-end authorization flow duration in seconds
	AuthFlowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vine",
			Subsystem: "auth",
			Name:      "flow_duration_seconds",
			Help:      "Duration of authorization flows in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"environment_id", "integration_id", "auth_scheme"},
	)

	// TokenExchangesTotal tracks OAuth token exchange requests
	TokenExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "auth",
			Name:      "token_exchanges_total",
			Help:      "Total number of OAuth token exchange requests",
		},
		[]string{"integration_id", "status"},
	)

	// ConnectionUpserts tracks connection upserts by action
	ConnectionUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "connections",
			Name:      "upserts_total",
			Help:      "Total number of connection upserts by action (created or updated)",
		},
		[]string{"environment_id", "integration_id", "action"},
	)

	// ConnectTokensIssued tracks connect token creation
	ConnectTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "connect_tokens",
			Name:      "issued_total",
			Help:      "Total number of connect tokens issued",
		},
	)

	// SyncRunsTotal tracks sync run outcomes
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "syncs",
			Name:      "runs_total",
			Help:      "Total number of sync runs by status",
		},
		[]string{"environment_id", "integration_id", "collection_key", "status"},
	)

	// SyncRunDuration tracks sync run duration in seconds
	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vine",
			Subsystem: "syncs",
			Name:      "run_duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"environment_id", "integration_id", "collection_key"},
	)

	// SyncSchedulesActive tracks the number of unpaused sync schedules
	SyncSchedulesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vine",
			Subsystem: "syncs",
			Name:      "schedules_active",
			Help:      "Number of sync schedules currently running",
		},
	)

	// WebSocketConnections tracks currently open publisher websocket connections
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vine",
			Subsystem: "publisher",
			Name:      "websocket_connections",
			Help:      "Number of open websocket connections",
		},
	)

	// PublisherMessagesTotal tracks messages delivered to websocket clients
	PublisherMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "publisher",
			Name:      "messages_total",
			Help:      "Total number of messages delivered to websocket clients",
		},
		[]string{"event", "status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vine",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// DatabaseQueryDuration tracks database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vine",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	// RedisOperationDuration tracks Redis operation duration
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vine",
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis operations in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"operation"},
	)
)

// RecordAuthFlow records an authorization flow outcome
func RecordAuthFlow(environmentID, integrationID, authScheme, status string, durationSeconds float64) {
	AuthFlowsTotal.WithLabelValues(environmentID, integrationID, authScheme, status).Inc()
	AuthFlowDuration.WithLabelValues(environmentID, integrationID, authScheme).Observe(durationSeconds)
}

// RecordTokenExchange records an OAuth token exchange attempt
func RecordTokenExchange(integrationID, status string) {
	TokenExchangesTotal.WithLabelValues(integrationID, status).Inc()
}

// RecordConnectionUpsert records a connection upsert by action
func RecordConnectionUpsert(environmentID, integrationID, action string) {
	ConnectionUpserts.WithLabelValues(environmentID, integrationID, action).Inc()
}

// RecordSyncRun records a sync run outcome
func RecordSyncRun(environmentID, integrationID, collectionKey, status string, durationSeconds float64) {
	SyncRunsTotal.WithLabelValues(environmentID, integrationID, collectionKey, status).Inc()
	SyncRunDuration.WithLabelValues(environmentID, integrationID, collectionKey).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
