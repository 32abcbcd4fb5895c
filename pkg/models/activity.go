package models

import (
	"time"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/google/uuid"
)

// LogLevel represents the severity of an activity log entry
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogAction categorizes what kind of operation an activity tracks
type LogAction string

const (
	LogActionConnect LogAction = "connect"
	LogActionSync    LogAction = "sync"
	LogActionAction  LogAction = "action"
)

// Activity is the audit trail for one logical operation (an authorization
// handshake, a sync, an action invocation). ConnectionID is a weak reference:
// it is nullable and set after the connection is upserted, never before.
type Activity struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	EnvironmentID  uuid.UUID  `db:"environment_id" json:"environment_id"`
	IntegrationID  *uuid.UUID `db:"integration_id" json:"integration_id,omitempty"`
	ConnectionID   *uuid.UUID `db:"connection_id" json:"connection_id,omitempty"`
	ConnectTokenID *uuid.UUID `db:"connect_token_id" json:"connect_token_id,omitempty"`
	CollectionKey  *string    `db:"collection_key" json:"collection_key,omitempty"`
	ActionKey      *string    `db:"action_key" json:"action_key,omitempty"`
	Level          LogLevel   `db:"level" json:"level"`
	Action         LogAction  `db:"action" json:"action"`
	Timestamp      time.Time  `db:"timestamp" json:"timestamp"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Activity) TableName() string {
	return "activities"
}

// ActivityLog is a single timestamped entry under an Activity
type ActivityLog struct {
	ID         uuid.UUID                      `db:"id" json:"id"`
	ActivityID uuid.UUID                      `db:"activity_id" json:"activity_id"`
	Level      LogLevel                       `db:"level" json:"level"`
	Message    string                         `db:"message" json:"message"`
	Payload    database.JSONB[map[string]any] `db:"payload" json:"payload,omitempty"`
	Timestamp  time.Time                      `db:"timestamp" json:"timestamp"`
	CreatedAt  time.Time                      `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (ActivityLog) TableName() string {
	return "activity_logs"
}
