// Package webhooks emits connection lifecycle events for external webhook
// delivery. Emission is fire-and-forget: delivery, retries, and subscriber
// management belong to the consumer of the topic, not this service.
package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/vine/pkg/metrics"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Event names
const (
	EventConnectionCreated = "connection.created"
	EventConnectionUpdated = "connection.updated"
	EventConnectionDeleted = "connection.deleted"
)

// ConnectionEvent is the payload published for connection lifecycle changes
type ConnectionEvent struct {
	SchemaVersion string    `json:"schema_version"`
	Event         string    `json:"event"`
	EnvironmentID uuid.UUID `json:"environment_id"`
	ConnectionID  uuid.UUID `json:"connection_id"`
	IntegrationID uuid.UUID `json:"integration_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// Producer is the subset of the Kafka producer the emitter needs
type Producer interface {
	Publish(ctx context.Context, key string, headers map[string]string, value []byte) error
}

// Emitter publishes connection lifecycle events
type Emitter struct {
	producer Producer
	topic    string
	logger   ectologger.Logger
}

// NewEmitter creates a new webhook event emitter
func NewEmitter(producer Producer, topic string, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// EmitConnectionEvent publishes a connection lifecycle event. Errors are
// logged and swallowed: a failed webhook emission never rolls back the
// change it describes.
func (e *Emitter) EmitConnectionEvent(ctx context.Context, connection *models.Connection, name string) {
	ctx, span := tracing.StartSpan(ctx, "webhooks.Emitter.EmitConnectionEvent")
	defer span.End()

	event := ConnectionEvent{
		SchemaVersion: SchemaVersion,
		Event:         name,
		EnvironmentID: connection.EnvironmentID,
		ConnectionID:  connection.ID,
		IntegrationID: connection.IntegrationID,
		Timestamp:     time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to serialize connection event")
		return
	}

	headers := map[string]string{
		"event":          name,
		"environment_id": connection.EnvironmentID.String(),
	}
	if traceParent := tracing.GetTraceParent(ctx); traceParent != "" {
		headers["traceparent"] = traceParent
	}

	start := time.Now()
	err = e.producer.Publish(ctx, connection.EnvironmentID.String()+":"+connection.ID.String(), headers, payload)
	if err != nil {
		metrics.RecordKafkaPublish(e.topic, "error", time.Since(start).Seconds())
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event":         name,
			"connection_id": connection.ID,
		}).Error("Failed to emit connection event")
		return
	}

	metrics.RecordKafkaPublish(e.topic, "success", time.Since(start).Seconds())
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"event":         name,
		"connection_id": connection.ID,
	}).Debugf("Emitted %s", name)
}
