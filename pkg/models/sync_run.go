package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncRunStatus represents the status of an individual sync execution
type SyncRunStatus string

const (
	SyncRunStatusRunning   SyncRunStatus = "running"
	SyncRunStatusStopped   SyncRunStatus = "stopped"
	SyncRunStatusSucceeded SyncRunStatus = "succeeded"
	SyncRunStatusFailed    SyncRunStatus = "failed"
)

// Terminal reports whether the status is final. Terminal runs are immutable;
// a new schedule firing always creates a new run.
func (s SyncRunStatus) Terminal() bool {
	return s == SyncRunStatusSucceeded || s == SyncRunStatusFailed || s == SyncRunStatusStopped
}

// SyncRunType distinguishes the kind of sync execution
type SyncRunType string

const (
	SyncRunTypeInitial     SyncRunType = "initial"
	SyncRunTypeIncremental SyncRunType = "incremental"
	SyncRunTypeFull        SyncRunType = "full"
)

// SyncRun tracks a single execution of a sync, created once per schedule
// firing or manual trigger
type SyncRun struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	EnvironmentID  uuid.UUID     `db:"environment_id" json:"environment_id"`
	ConnectionID   uuid.UUID     `db:"connection_id" json:"connection_id"`
	CollectionKey  string        `db:"collection_key" json:"collection_key"`
	WorkflowRunID  *string       `db:"workflow_run_id" json:"workflow_run_id,omitempty"`
	Status         SyncRunStatus `db:"status" json:"status"`
	Type           SyncRunType   `db:"type" json:"type"`
	RecordsAdded   *int          `db:"records_added" json:"records_added,omitempty"`
	RecordsUpdated *int          `db:"records_updated" json:"records_updated,omitempty"`
	RecordsDeleted *int          `db:"records_deleted" json:"records_deleted,omitempty"`
	DurationMs     *int64        `db:"duration_ms" json:"duration_ms,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (SyncRun) TableName() string {
	return "sync_runs"
}
