package models

// AuthScheme identifies the authorization protocol an integration uses
type AuthScheme string

const (
	AuthSchemeOAuth2         AuthScheme = "oauth2"
	AuthSchemeOAuth1         AuthScheme = "oauth1"
	AuthSchemeApiKey         AuthScheme = "api_key"
	AuthSchemeBasic          AuthScheme = "basic"
	AuthSchemeServiceAccount AuthScheme = "service_account"
	AuthSchemeNone           AuthScheme = "none"
)

// Valid reports whether the scheme is one of the supported protocols
func (s AuthScheme) Valid() bool {
	switch s {
	case AuthSchemeOAuth2, AuthSchemeOAuth1, AuthSchemeApiKey, AuthSchemeBasic, AuthSchemeServiceAccount, AuthSchemeNone:
		return true
	}
	return false
}
