package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncScheduleStatus represents the status of a recurring schedule
type SyncScheduleStatus string

const (
	SyncScheduleStatusRunning SyncScheduleStatus = "running"
	SyncScheduleStatusPaused  SyncScheduleStatus = "paused"
)

// SyncSchedule is the timing descriptor driving recurring sync execution.
// Offset is the phase offset in milliseconds within the interval, anchored
// to wall-clock time so a re-created schedule reproduces the same firing
// instants. One live schedule per Sync.
type SyncSchedule struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	EnvironmentID uuid.UUID          `db:"environment_id" json:"environment_id"`
	ConnectionID  uuid.UUID          `db:"connection_id" json:"connection_id"`
	CollectionKey string             `db:"collection_key" json:"collection_key"`
	Frequency     string             `db:"frequency" json:"frequency"`
	Offset        int64              `db:"phase_offset_ms" json:"phase_offset_ms"`
	Status        SyncScheduleStatus `db:"status" json:"status"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (SyncSchedule) TableName() string {
	return "sync_schedules"
}
