package models

import (
	"time"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/google/uuid"
)

// ConnectToken is the ephemeral authorization-handshake record. It is created
// with a bounded TTL, mutated at most twice during the redirect chain (once to
// attach client/redirect context, once to attach the PKCE verifier or OAuth1
// request-token secret) and deleted as soon as a Connection is upserted.
// Every read path checks ExpiresAt before proceeding.
type ConnectToken struct {
	ID                 uuid.UUID                      `db:"id" json:"id"`
	EnvironmentID      uuid.UUID                      `db:"environment_id" json:"environment_id"`
	IntegrationID      uuid.UUID                      `db:"integration_id" json:"integration_id"`
	ConnectionID       *uuid.UUID                     `db:"connection_id" json:"connection_id,omitempty"`
	ExpiresAt          int64                          `db:"expires_at" json:"expires_at"`
	Configuration      database.JSONB[map[string]any] `db:"configuration" json:"configuration,omitempty"`
	Inclusions         database.JSONB[map[string]any] `db:"inclusions" json:"inclusions,omitempty"`
	Exclusions         database.JSONB[map[string]any] `db:"exclusions" json:"exclusions,omitempty"`
	Metadata           database.JSONB[map[string]any] `db:"metadata" json:"metadata,omitempty"`
	CodeVerifier       *string                        `db:"code_verifier" json:"-"`
	RequestTokenSecret *string                        `db:"request_token_secret" json:"-"`
	WebsocketClientID  *string                        `db:"websocket_client_id" json:"websocket_client_id,omitempty"`
	RedirectURL        *string                        `db:"redirect_url" json:"redirect_url,omitempty"`
	PrefersDarkMode    bool                           `db:"prefers_dark_mode" json:"prefers_dark_mode"`
	CreatedAt          time.Time                      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time                      `db:"updated_at" json:"updated_at"`
	DeletedAt          *time.Time                     `db:"deleted_at" json:"deleted_at,omitempty"`
}

// TableName returns the database table name
func (ConnectToken) TableName() string {
	return "connect_tokens"
}

// Expired reports whether the token's TTL has elapsed
func (t *ConnectToken) Expired(now time.Time) bool {
	return t.ExpiresAt < now.Unix()
}
