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

const syncSchedulesTable = "sync_schedules"

var syncScheduleStruct = database.NewStruct(new(models.SyncSchedule))

// SyncScheduleRepository handles database operations for sync schedules
type SyncScheduleRepository struct {
	*Repository
}

// NewSyncScheduleRepository creates a new sync schedule repository
func NewSyncScheduleRepository(db database.DB, logger ectologger.Logger) *SyncScheduleRepository {
	return &SyncScheduleRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new sync schedule. The unique constraint on
// (connection_id, collection_key) enforces one live schedule per sync.
func (r *SyncScheduleRepository) Create(ctx context.Context, schedule *models.SyncSchedule) error {
	ctx, span := tracing.StartSpan(ctx, "SyncScheduleRepository.Create")
	defer span.End()

	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(syncSchedulesTable).
		Cols("id", "environment_id", "connection_id", "collection_key", "frequency",
			"phase_offset_ms", "status", "created_at", "updated_at").
		Values(schedule.ID, schedule.EnvironmentID, schedule.ConnectionID, schedule.CollectionKey,
			schedule.Frequency, schedule.Offset, schedule.Status,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&schedule.CreatedAt, &schedule.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sync_schedule_id": schedule.ID,
			"connection_id":    schedule.ConnectionID,
			"collection_key":   schedule.CollectionKey,
		}).Error("failed to create sync schedule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create sync schedule")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"sync_schedule_id": schedule.ID,
	}).Debugf("Created %s", syncSchedulesTable)
	return nil
}

// Get retrieves the schedule for (connection, collection), or nil if the
// sync has never been scheduled
func (r *SyncScheduleRepository) Get(ctx context.Context, connectionID uuid.UUID, collectionKey string) (*models.SyncSchedule, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncScheduleRepository.Get")
	defer span.End()

	sb := syncScheduleStruct.SelectFrom(syncSchedulesTable)
	sb.Where(sb.Equal("connection_id", connectionID), sb.Equal("collection_key", collectionKey))

	query, args := sb.Build()
	var schedule models.SyncSchedule
	err := r.DB().GetContext(ctx, &schedule, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id":  connectionID,
			"collection_key": collectionKey,
		}).Error("failed to get sync schedule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sync schedule")
	}

	return &schedule, nil
}

// UpdateStatus sets the schedule's status
func (r *SyncScheduleRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SyncScheduleStatus) error {
	ctx, span := tracing.StartSpan(ctx, "SyncScheduleRepository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncSchedulesTable).
		Set(
			ub.Assign("status", status),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id))
	ub.SQL("RETURNING id")

	query, args := ub.Build()
	var updatedID uuid.UUID
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&updatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "sync schedule %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sync_schedule_id": id,
			"status":           status,
		}).Error("failed to update sync schedule status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update sync schedule status")
	}

	return nil
}

// UpdateTiming sets the schedule's frequency and phase offset
func (r *SyncScheduleRepository) UpdateTiming(ctx context.Context, id uuid.UUID, frequency string, offsetMs int64) error {
	ctx, span := tracing.StartSpan(ctx, "SyncScheduleRepository.UpdateTiming")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncSchedulesTable).
		Set(
			ub.Assign("frequency", frequency),
			ub.Assign("phase_offset_ms", offsetMs),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id))
	ub.SQL("RETURNING id")

	query, args := ub.Build()
	var updatedID uuid.UUID
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&updatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "sync schedule %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sync_schedule_id": id,
		}).Error("failed to update sync schedule timing")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update sync schedule timing")
	}

	return nil
}
