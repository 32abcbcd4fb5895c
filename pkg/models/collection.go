package models

import (
	"time"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/google/uuid"
)

// Collection is a syncable data set exposed by an integration
type Collection struct {
	ID                   uuid.UUID                `db:"id" json:"id"`
	EnvironmentID        uuid.UUID                `db:"environment_id" json:"environment_id"`
	IntegrationID        uuid.UUID                `db:"integration_id" json:"integration_id"`
	UniqueKey            string                   `db:"unique_key" json:"unique_key"`
	IsEnabled            bool                     `db:"is_enabled" json:"is_enabled"`
	RequiredScopes       database.JSONB[[]string] `db:"required_scopes" json:"required_scopes,omitempty"`
	AutoStartSync        bool                     `db:"auto_start_sync" json:"auto_start_sync"`
	DefaultSyncFrequency string                   `db:"default_sync_frequency" json:"default_sync_frequency"`
	CreatedAt            time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time                `db:"updated_at" json:"updated_at"`
	DeletedAt            *time.Time               `db:"deleted_at" json:"deleted_at,omitempty"`
}

// TableName returns the database table name
func (Collection) TableName() string {
	return "collections"
}
