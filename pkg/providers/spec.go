// Package providers holds the declarative per-provider specifications that
// drive authorization and sync behavior. Specifications are external input
// and are consumed read-only.
package providers

import "github.com/Ramsey-B/vine/pkg/models"

// Specification describes a third-party provider: its auth protocol, URL
// templates (which may contain ${configuration.KEY} placeholders), scopes,
// and the collections/actions it exposes.
type Specification struct {
	UniqueKey   string           `json:"unique_key"`
	Name        string           `json:"name"`
	BaseURL     string           `json:"base_url"`
	Auth        AuthSpec         `json:"auth"`
	Collections []CollectionSpec `json:"collections,omitempty"`
	Actions     []ActionSpec     `json:"actions,omitempty"`
}

// AuthSpec describes how to authorize against the provider. Fields beyond
// Scheme are populated only for the schemes that use them.
type AuthSpec struct {
	Scheme   models.AuthScheme `json:"scheme"`
	HelpLink *string           `json:"help_link,omitempty"`

	// OAuth (1 and 2)
	AuthorizationURL      string            `json:"authorization_url,omitempty"`
	AuthorizationParams   map[string]string `json:"authorization_params,omitempty"`
	ScopeSeparator        *string           `json:"scope_separator,omitempty"`
	DefaultScopes         []string          `json:"default_scopes,omitempty"`
	TokenURL              string            `json:"token_url,omitempty"`
	TokenParams           map[string]string `json:"token_params,omitempty"`
	RedirectURIMetadata   []string          `json:"redirect_uri_metadata,omitempty"`
	TokenResponseMetadata []string          `json:"token_response_metadata,omitempty"`

	// OAuth2 only
	DisablePKCE            bool    `json:"disable_pkce,omitempty"`
	RefreshURL             *string `json:"refresh_url,omitempty"`
	TokenRequestAuthMethod string  `json:"token_request_auth_method,omitempty"`

	// OAuth1 only
	RequestURL        string            `json:"request_url,omitempty"`
	RequestParams     map[string]string `json:"request_params,omitempty"`
	RequestHTTPMethod string            `json:"request_http_method,omitempty"`
	TokenHTTPMethod   string            `json:"token_http_method,omitempty"`
	SignatureMethod   string            `json:"signature_method,omitempty"`
}

// OAuth1 signature methods
const (
	SignatureMethodHMACSHA1  = "HMAC-SHA1"
	SignatureMethodRSASHA1   = "RSA-SHA1"
	SignatureMethodPlaintext = "PLAINTEXT"
)

// TokenRequestAuthMethodBasic sends the client credentials in a Basic
// Authorization header on the token request instead of the request body
const TokenRequestAuthMethodBasic = "basic"

// CollectionSpec describes a syncable data set exposed by the provider
type CollectionSpec struct {
	UniqueKey            string   `json:"unique_key"`
	RequiredScopes       []string `json:"required_scopes,omitempty"`
	AutoStartSync        bool     `json:"auto_start_sync,omitempty"`
	DefaultSyncFrequency string   `json:"default_sync_frequency,omitempty"`
}

// ActionSpec describes a one-shot operation exposed by the provider
type ActionSpec struct {
	UniqueKey      string   `json:"unique_key"`
	RequiredScopes []string `json:"required_scopes,omitempty"`
}
