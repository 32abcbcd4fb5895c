package repositories

import (
	"context"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/google/uuid"
)

// ConnectTokenRepo defines the interface for connect token repository operations
type ConnectTokenRepo interface {
	Create(ctx context.Context, token *models.ConnectToken) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ConnectToken, error)
	GetByIDUnscoped(ctx context.Context, id uuid.UUID) (*models.ConnectToken, error)
	Update(ctx context.Context, token *models.ConnectToken) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ConnectionRepo defines the interface for connection repository operations
type ConnectionRepo interface {
	Upsert(ctx context.Context, connection *models.Connection) (models.UpsertAction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, error)
	List(ctx context.Context, integrationID *uuid.UUID) ([]models.Connection, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// IntegrationRepo defines the interface for integration repository operations
type IntegrationRepo interface {
	Create(ctx context.Context, integration *models.Integration) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Integration, error)
	GetByIDUnscoped(ctx context.Context, id uuid.UUID) (*models.Integration, error)
	GetByKey(ctx context.Context, uniqueKey string) (*models.Integration, error)
	List(ctx context.Context) ([]models.Integration, error)
}

// CollectionRepo defines the interface for collection repository operations
type CollectionRepo interface {
	GetByKey(ctx context.Context, integrationID uuid.UUID, uniqueKey string) (*models.Collection, error)
	ListByIntegration(ctx context.Context, integrationID uuid.UUID) ([]models.Collection, error)
	ListEnabledByIntegration(ctx context.Context, integrationID uuid.UUID) ([]models.Collection, error)
}

// ActionRepo defines the interface for action repository operations
type ActionRepo interface {
	ListEnabledByIntegration(ctx context.Context, integrationID uuid.UUID) ([]models.Action, error)
}

// SyncRepo defines the interface for sync repository operations
type SyncRepo interface {
	Upsert(ctx context.Context, sync *models.Sync) error
	Get(ctx context.Context, connectionID uuid.UUID, collectionKey string) (*models.Sync, error)
	ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]models.Sync, error)
	UpdateStatus(ctx context.Context, connectionID uuid.UUID, collectionKey string, status models.SyncStatus) error
	UpdateFrequency(ctx context.Context, connectionID uuid.UUID, collectionKey string, frequency string) error
	SetLastSyncedAt(ctx context.Context, connectionID uuid.UUID, collectionKey string, lastSyncedAt int64) error
}

// SyncRunRepo defines the interface for sync run repository operations
type SyncRunRepo interface {
	Create(ctx context.Context, run *models.SyncRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SyncRun, error)
	List(ctx context.Context, connectionID uuid.UUID, collectionKey string) ([]models.SyncRun, error)
	SetWorkflowRunID(ctx context.Context, id uuid.UUID, workflowRunID string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SyncRunStatus) error
	MarkSucceeded(ctx context.Context, id uuid.UUID, added, updated, deleted int, durationMs int64) error
	MarkFailed(ctx context.Context, id uuid.UUID, durationMs int64) error
}

// SyncScheduleRepo defines the interface for sync schedule repository operations
type SyncScheduleRepo interface {
	Create(ctx context.Context, schedule *models.SyncSchedule) error
	Get(ctx context.Context, connectionID uuid.UUID, collectionKey string) (*models.SyncSchedule, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SyncScheduleStatus) error
	UpdateTiming(ctx context.Context, id uuid.UUID, frequency string, offsetMs int64) error
}

// ActivityRepo defines the interface for activity repository operations
type ActivityRepo interface {
	CreateActivity(ctx context.Context, activity *models.Activity) error
	SetConnectionID(ctx context.Context, activityID, connectionID uuid.UUID) error
	FindByConnectToken(ctx context.Context, connectTokenID uuid.UUID) (uuid.UUID, error)
	CreateLog(ctx context.Context, log *models.ActivityLog) error
	ListLogs(ctx context.Context, activityID uuid.UUID) ([]models.ActivityLog, error)
	ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]models.Activity, error)
}
