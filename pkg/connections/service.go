// Package connections owns the durable credential grants produced by
// authorization flows: the atomic upsert that turns a completed handshake
// into a Connection row, and the post-upsert hook that fans out webhook
// events and sync initialization.
package connections

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/vine/pkg/metrics"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/repositories"
	"github.com/Ramsey-B/vine/pkg/tracing"
	"github.com/Ramsey-B/vine/pkg/webhooks"
)

// SyncInitializer prepares sync state for a connection/collection pair.
// Implemented by the sync scheduler; must be idempotent.
type SyncInitializer interface {
	InitializeSync(ctx context.Context, connection *models.Connection, collection models.Collection, activityID uuid.UUID) error
}

// ActivityLinker attaches a connection to an in-flight activity and appends
// log entries to it.
type ActivityLinker interface {
	LinkConnection(ctx context.Context, activityID, connectionID uuid.UUID)
	Log(ctx context.Context, activityID uuid.UUID, level models.LogLevel, message string, payload map[string]any)
}

// Service upserts connections and runs the connection hook
type Service struct {
	connections repositories.ConnectionRepo
	collections repositories.CollectionRepo
	emitter     *webhooks.Emitter
	syncs       SyncInitializer
	activities  ActivityLinker
	logger      ectologger.Logger
}

// NewService creates a new connection service
func NewService(
	connections repositories.ConnectionRepo,
	collections repositories.CollectionRepo,
	emitter *webhooks.Emitter,
	syncs SyncInitializer,
	activities ActivityLinker,
	logger ectologger.Logger,
) *Service {
	return &Service{
		connections: connections,
		collections: collections,
		emitter:     emitter,
		syncs:       syncs,
		activities:  activities,
		logger:      logger,
	}
}

// Upsert persists the connection atomically and reports whether it was
// created or updated. On success the connection is linked to the activity
// and the hook runs; hook failures are logged but never surfaced, since the
// credentials are already durable.
func (s *Service) Upsert(ctx context.Context, connection *models.Connection, activityID uuid.UUID) (models.UpsertAction, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectionService.Upsert")
	defer span.End()

	action, err := s.connections.Upsert(ctx, connection)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id":  connection.ID,
			"integration_id": connection.IntegrationID,
		}).Error("failed to upsert connection")
		return "", err
	}

	metrics.RecordConnectionUpsert(connection.EnvironmentID.String(), connection.IntegrationID.String(), string(action))
	s.activities.LinkConnection(ctx, activityID, connection.ID)

	s.runHook(ctx, connection, action, activityID)

	return action, nil
}

// GetByID returns a connection by id
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectionService.GetByID")
	defer span.End()

	return s.connections.GetByID(ctx, id)
}

// List returns connections, optionally filtered by integration
func (s *Service) List(ctx context.Context, integrationID *uuid.UUID) ([]models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectionService.List")
	defer span.End()

	return s.connections.List(ctx, integrationID)
}

// Delete soft-deletes a connection
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectionService.Delete")
	defer span.End()

	connection, err := s.connections.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.connections.Delete(ctx, id); err != nil {
		return err
	}

	s.emitter.EmitConnectionEvent(ctx, connection, webhooks.EventConnectionDeleted)
	return nil
}

// runHook fans out the side effects of a successful upsert: the webhook
// event and sync initialization for every enabled collection. Each side
// effect fails independently; none of them can undo the upsert.
func (s *Service) runHook(ctx context.Context, connection *models.Connection, action models.UpsertAction, activityID uuid.UUID) {
	ctx, span := tracing.StartSpan(ctx, "ConnectionService.runHook")
	defer span.End()

	event := webhooks.EventConnectionCreated
	if action == models.UpsertActionUpdated {
		event = webhooks.EventConnectionUpdated
	}
	s.emitter.EmitConnectionEvent(ctx, connection, event)

	collections, err := s.collections.ListEnabledByIntegration(ctx, connection.IntegrationID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": connection.ID,
		}).Error("failed to list collections for sync initialization")
		s.activities.Log(ctx, activityID, models.LogLevelError,
			"Failed to initialize syncs for connection", map[string]any{"connection_id": connection.ID.String()})
		return
	}

	for _, collection := range collections {
		if err := s.syncs.InitializeSync(ctx, connection, collection, activityID); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"connection_id":  connection.ID,
				"collection_key": collection.UniqueKey,
			}).Error("failed to initialize sync")
		}
	}
}
