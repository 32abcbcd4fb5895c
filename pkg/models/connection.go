package models

import (
	"time"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/google/uuid"
)

// Connection is a durable credential grant to a third-party account.
// Credentials are opaque provider-shaped JSON; encryption at rest is owned
// by the persistence layer, not this service.
type Connection struct {
	ID            uuid.UUID                      `db:"id" json:"id"`
	EnvironmentID uuid.UUID                      `db:"environment_id" json:"environment_id"`
	IntegrationID uuid.UUID                      `db:"integration_id" json:"integration_id"`
	AuthScheme    AuthScheme                     `db:"auth_scheme" json:"auth_scheme"`
	Credentials   database.JSONB[map[string]any] `db:"credentials" json:"-"`
	Configuration database.JSONB[map[string]any] `db:"configuration" json:"configuration,omitempty"`
	Inclusions    database.JSONB[map[string]any] `db:"inclusions" json:"inclusions,omitempty"`
	Exclusions    database.JSONB[map[string]any] `db:"exclusions" json:"exclusions,omitempty"`
	Metadata      database.JSONB[map[string]any] `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time                      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time                      `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time                     `db:"deleted_at" json:"deleted_at,omitempty"`
}

// TableName returns the database table name
func (Connection) TableName() string {
	return "connections"
}

// UpsertAction classifies the result of a connection upsert
type UpsertAction string

const (
	UpsertActionCreated UpsertAction = "created"
	UpsertActionUpdated UpsertAction = "updated"
)
