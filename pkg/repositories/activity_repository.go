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

const (
	activitiesTable   = "activities"
	activityLogsTable = "activity_logs"
)

var (
	activityStruct    = database.NewStruct(new(models.Activity))
	activityLogStruct = database.NewStruct(new(models.ActivityLog))
)

// ActivityRepository handles database operations for activities and their logs
type ActivityRepository struct {
	*Repository
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db database.DB, logger ectologger.Logger) *ActivityRepository {
	return &ActivityRepository{
		Repository: NewRepository(db, logger),
	}
}

// CreateActivity creates a new activity
func (r *ActivityRepository) CreateActivity(ctx context.Context, activity *models.Activity) error {
	ctx, span := tracing.StartSpan(ctx, "ActivityRepository.CreateActivity")
	defer span.End()

	if activity.ID == uuid.Nil {
		activity.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(activitiesTable).
		Cols("id", "environment_id", "integration_id", "connection_id", "connect_token_id",
			"collection_key", "action_key", "level", "action", "timestamp", "created_at", "updated_at").
		Values(activity.ID, activity.EnvironmentID, activity.IntegrationID, activity.ConnectionID,
			activity.ConnectTokenID, activity.CollectionKey, activity.ActionKey, activity.Level,
			activity.Action, activity.Timestamp, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&activity.CreatedAt, &activity.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"activity_id": activity.ID,
		}).Error("failed to create activity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create activity")
	}

	return nil
}

// SetConnectionID attaches the connection created by the handshake to its
// activity after upsert. The reference is weak: activities outlive
// connections and never own them.
func (r *ActivityRepository) SetConnectionID(ctx context.Context, activityID, connectionID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ActivityRepository.SetConnectionID")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(activitiesTable).
		Set(
			ub.Assign("connection_id", connectionID),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", activityID))

	query, args := ub.Build()
	_, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"activity_id":   activityID,
			"connection_id": connectionID,
		}).Error("failed to set activity connection")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set activity connection")
	}

	return nil
}

// FindByConnectToken returns the id of the activity tracking a handshake, or
// uuid.Nil when none exists.
func (r *ActivityRepository) FindByConnectToken(ctx context.Context, connectTokenID uuid.UUID) (uuid.UUID, error) {
	ctx, span := tracing.StartSpan(ctx, "ActivityRepository.FindByConnectToken")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id").From(activitiesTable)
	sb.Where(sb.Equal("connect_token_id", connectTokenID))
	sb.OrderBy("timestamp").Desc()
	sb.Limit(1)

	query, args := sb.Build()
	var id uuid.UUID
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connect_token_id": connectTokenID,
		}).Error("failed to find activity for connect token")
		return uuid.Nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find activity")
	}

	return id, nil
}

// CreateLog appends a log entry under an activity
func (r *ActivityRepository) CreateLog(ctx context.Context, log *models.ActivityLog) error {
	ctx, span := tracing.StartSpan(ctx, "ActivityRepository.CreateLog")
	defer span.End()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(activityLogsTable).
		Cols("id", "activity_id", "level", "message", "payload", "timestamp", "created_at").
		Values(log.ID, log.ActivityID, log.Level, log.Message, log.Payload, log.Timestamp,
			sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&log.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"activity_id": log.ActivityID,
		}).Error("failed to create activity log")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create activity log")
	}

	return nil
}

// ListLogs retrieves the log entries for an activity in order
func (r *ActivityRepository) ListLogs(ctx context.Context, activityID uuid.UUID) ([]models.ActivityLog, error) {
	ctx, span := tracing.StartSpan(ctx, "ActivityRepository.ListLogs")
	defer span.End()

	sb := activityLogStruct.SelectFrom(activityLogsTable)
	sb.Where(sb.Equal("activity_id", activityID))
	sb.OrderBy("timestamp")

	query, args := sb.Build()
	var logs []models.ActivityLog
	err := r.DB().SelectContext(ctx, &logs, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"activity_id": activityID,
		}).Error("failed to list activity logs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list activity logs")
	}

	return logs, nil
}

// ListByConnection retrieves the activities referencing a connection
func (r *ActivityRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]models.Activity, error) {
	ctx, span := tracing.StartSpan(ctx, "ActivityRepository.ListByConnection")
	defer span.End()

	sb := activityStruct.SelectFrom(activitiesTable)
	sb.Where(sb.Equal("connection_id", connectionID))
	sb.OrderBy("timestamp").Desc()

	query, args := sb.Build()
	var activities []models.Activity
	err := r.DB().SelectContext(ctx, &activities, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": connectionID,
		}).Error("failed to list activities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list activities")
	}

	return activities, nil
}
