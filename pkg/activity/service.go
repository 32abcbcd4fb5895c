// Package activity records the audit trail for authorization handshakes and
// sync operations. Activity writes are best-effort: a failed audit write is
// logged but never fails the operation it describes.
package activity

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/repositories"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

// Service creates activities and appends log entries to them
type Service struct {
	activities repositories.ActivityRepo
	logger     ectologger.Logger
}

// NewService creates a new activity service
func NewService(activities repositories.ActivityRepo, logger ectologger.Logger) *Service {
	return &Service{activities: activities, logger: logger}
}

// StartParams identifies what an activity tracks
type StartParams struct {
	EnvironmentID  uuid.UUID
	IntegrationID  *uuid.UUID
	ConnectionID   *uuid.UUID
	ConnectTokenID *uuid.UUID
	CollectionKey  *string
	Action         models.LogAction
}

// Start creates a new activity and returns its id. Returns uuid.Nil on
// failure; callers pass the id through to Log which tolerates it.
func (s *Service) Start(ctx context.Context, params StartParams) uuid.UUID {
	ctx, span := tracing.StartSpan(ctx, "ActivityService.Start")
	defer span.End()

	activity := &models.Activity{
		ID:             uuid.New(),
		EnvironmentID:  params.EnvironmentID,
		IntegrationID:  params.IntegrationID,
		ConnectionID:   params.ConnectionID,
		ConnectTokenID: params.ConnectTokenID,
		CollectionKey:  params.CollectionKey,
		Action:         params.Action,
		Level:          models.LogLevelInfo,
		Timestamp:      time.Now().UTC(),
	}

	if err := s.activities.CreateActivity(ctx, activity); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to create activity")
		return uuid.Nil
	}

	return activity.ID
}

// Log appends an entry to an activity. A nil activity id is a no-op so
// callers never need to branch on whether the activity exists.
func (s *Service) Log(ctx context.Context, activityID uuid.UUID, level models.LogLevel, message string, payload map[string]any) {
	if activityID == uuid.Nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "ActivityService.Log")
	defer span.End()

	log := &models.ActivityLog{
		ID:         uuid.New(),
		ActivityID: activityID,
		Level:      level,
		Message:    message,
		Timestamp:  time.Now().UTC(),
	}
	if payload != nil {
		log.Payload = database.NewJSONB(payload)
	}

	if err := s.activities.CreateLog(ctx, log); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"activity_id": activityID,
			"message":     message,
		}).Error("failed to write activity log")
	}
}

// LinkConnection attaches the upserted connection to the activity's weak
// reference
func (s *Service) LinkConnection(ctx context.Context, activityID, connectionID uuid.UUID) {
	if activityID == uuid.Nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "ActivityService.LinkConnection")
	defer span.End()

	if err := s.activities.SetConnectionID(ctx, activityID, connectionID); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"activity_id":   activityID,
			"connection_id": connectionID,
		}).Error("failed to link activity to connection")
	}
}

// FindByConnectToken resolves the activity tracking a handshake. Returns
// uuid.Nil when no activity was recorded; Log tolerates the nil id.
func (s *Service) FindByConnectToken(ctx context.Context, connectTokenID uuid.UUID) uuid.UUID {
	ctx, span := tracing.StartSpan(ctx, "ActivityService.FindByConnectToken")
	defer span.End()

	id, err := s.activities.FindByConnectToken(ctx, connectTokenID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connect_token_id": connectTokenID,
		}).Error("failed to find activity for connect token")
		return uuid.Nil
	}

	return id
}
