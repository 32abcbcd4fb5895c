package models

import (
	"time"

	"github.com/google/uuid"
)

// Integration is a provider enabled for an environment, carrying the
// environment's own OAuth app credentials and scope overrides
type Integration struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	EnvironmentID      uuid.UUID  `db:"environment_id" json:"environment_id"`
	UniqueKey          string     `db:"unique_key" json:"unique_key"`
	ProviderKey        string     `db:"provider_key" json:"provider_key"`
	IsEnabled          bool       `db:"is_enabled" json:"is_enabled"`
	AuthScheme         AuthScheme `db:"auth_scheme" json:"auth_scheme"`
	OAuthClientID      *string    `db:"oauth_client_id" json:"oauth_client_id,omitempty"`
	OAuthClientSecret  *string    `db:"oauth_client_secret" json:"-"`
	OAuthScopes        *string    `db:"oauth_scopes" json:"oauth_scopes,omitempty"`
	UseTestCredentials bool       `db:"use_test_credentials" json:"use_test_credentials"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt          *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// TableName returns the database table name
func (Integration) TableName() string {
	return "integrations"
}
