package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

const syncsTable = "syncs"

var syncStruct = database.NewStruct(new(models.Sync))

// SyncRepository handles database operations for syncs
type SyncRepository struct {
	*Repository
}

// NewSyncRepository creates a new sync repository
func NewSyncRepository(db database.DB, logger ectologger.Logger) *SyncRepository {
	return &SyncRepository{
		Repository: NewRepository(db, logger),
	}
}

// Upsert creates the sync row for (connection, collection) if it does not
// exist yet. An existing row is left untouched so repeated initialization
// keeps the sync's state.
func (r *SyncRepository) Upsert(ctx context.Context, sync *models.Sync) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRepository.Upsert")
	defer span.End()

	if sync.ID == uuid.Nil {
		sync.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(syncsTable).
		Cols("id", "environment_id", "connection_id", "integration_id", "collection_key",
			"status", "frequency", "last_synced_at", "created_at", "updated_at").
		Values(sync.ID, sync.EnvironmentID, sync.ConnectionID, sync.IntegrationID, sync.CollectionKey,
			sync.Status, sync.Frequency, sync.LastSyncedAt,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"))
	ib.SQL("ON CONFLICT (connection_id, collection_key) DO UPDATE SET updated_at = NOW()")
	ib.Returning("id", "status", "frequency", "created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).
		Scan(&sync.ID, &sync.Status, &sync.Frequency, &sync.CreatedAt, &sync.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id":  sync.ConnectionID,
			"collection_key": sync.CollectionKey,
		}).Error("failed to upsert sync")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert sync")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"sync_id":        sync.ID,
		"connection_id":  sync.ConnectionID,
		"collection_key": sync.CollectionKey,
	}).Debugf("Upserted %s", syncsTable)
	return nil
}

// Get retrieves the sync for (connection, collection)
func (r *SyncRepository) Get(ctx context.Context, connectionID uuid.UUID, collectionKey string) (*models.Sync, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncRepository.Get")
	defer span.End()

	sb := syncStruct.SelectFrom(syncsTable)
	sb.Where(sb.Equal("connection_id", connectionID), sb.Equal("collection_key", collectionKey), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	var sync models.Sync
	err := r.DB().GetContext(ctx, &sync, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "sync for collection '%s' does not exist", collectionKey)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id":  connectionID,
			"collection_key": collectionKey,
		}).Error("failed to get sync")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sync")
	}

	return &sync, nil
}

// ListByConnection retrieves all syncs for a connection
func (r *SyncRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]models.Sync, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncRepository.ListByConnection")
	defer span.End()

	sb := syncStruct.SelectFrom(syncsTable)
	sb.Where(sb.Equal("connection_id", connectionID), sb.IsNull("deleted_at"))
	sb.OrderBy("collection_key")

	query, args := sb.Build()
	var syncs []models.Sync
	err := r.DB().SelectContext(ctx, &syncs, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": connectionID,
		}).Error("failed to list syncs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list syncs")
	}

	return syncs, nil
}

// UpdateStatus sets the sync's status
func (r *SyncRepository) UpdateStatus(ctx context.Context, connectionID uuid.UUID, collectionKey string, status models.SyncStatus) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRepository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncsTable).
		Set(
			ub.Assign("status", status),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("connection_id", connectionID), ub.Equal("collection_key", collectionKey), ub.IsNull("deleted_at"))
	ub.SQL("RETURNING id")

	query, args := ub.Build()
	var id uuid.UUID
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "sync for collection '%s' does not exist", collectionKey)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id":  connectionID,
			"collection_key": collectionKey,
			"status":         status,
		}).Error("failed to update sync status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update sync status")
	}

	return nil
}

// UpdateFrequency sets the sync's frequency
func (r *SyncRepository) UpdateFrequency(ctx context.Context, connectionID uuid.UUID, collectionKey string, frequency string) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRepository.UpdateFrequency")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncsTable).
		Set(
			ub.Assign("frequency", frequency),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("connection_id", connectionID), ub.Equal("collection_key", collectionKey), ub.IsNull("deleted_at"))
	ub.SQL("RETURNING id")

	query, args := ub.Build()
	var id uuid.UUID
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "sync for collection '%s' does not exist", collectionKey)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id":  connectionID,
			"collection_key": collectionKey,
		}).Error("failed to update sync frequency")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update sync frequency")
	}

	return nil
}

// SetLastSyncedAt records the completion time of the latest successful run
func (r *SyncRepository) SetLastSyncedAt(ctx context.Context, connectionID uuid.UUID, collectionKey string, lastSyncedAt int64) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRepository.SetLastSyncedAt")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncsTable).
		Set(
			ub.Assign("last_synced_at", lastSyncedAt),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("connection_id", connectionID), ub.Equal("collection_key", collectionKey), ub.IsNull("deleted_at"))

	query, args := ub.Build()
	_, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id":  connectionID,
			"collection_key": collectionKey,
		}).Error("failed to set last synced at")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set last synced at")
	}

	return nil
}
