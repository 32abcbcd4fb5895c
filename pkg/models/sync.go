package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus represents the status of a sync relationship
type SyncStatus string

const (
	SyncStatusRunning SyncStatus = "running"
	SyncStatusStopped SyncStatus = "stopped"
	SyncStatusError   SyncStatus = "error"
)

// Sync is a recurring data-synchronization relationship between a
// Connection and a Collection. Created lazily the first time a collection
// becomes active for a connection.
type Sync struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	EnvironmentID uuid.UUID  `db:"environment_id" json:"environment_id"`
	ConnectionID  uuid.UUID  `db:"connection_id" json:"connection_id"`
	IntegrationID uuid.UUID  `db:"integration_id" json:"integration_id"`
	CollectionKey string     `db:"collection_key" json:"collection_key"`
	Status        SyncStatus `db:"status" json:"status"`
	Frequency     string     `db:"frequency" json:"frequency"`
	LastSyncedAt  *int64     `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// TableName returns the database table name
func (Sync) TableName() string {
	return "syncs"
}
