package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Ramsey-B/vine/pkg/models"
)

// Credential envelopes are scheme-tagged maps persisted on the connection.
// Every envelope carries a "type" discriminator so downstream consumers can
// interpret the credentials without consulting the integration.

// ParseOAuth2Credentials normalizes a raw token response into the oauth2
// envelope. The full raw response is retained under "raw".
func ParseOAuth2Credentials(raw map[string]any) (map[string]any, error) {
	accessToken, _ := raw["access_token"].(string)
	if accessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", ErrTokenExchangeFailed)
	}

	credentials := map[string]any{
		"type":         string(models.AuthSchemeOAuth2),
		"access_token": accessToken,
		"raw":          raw,
	}
	if refreshToken, ok := raw["refresh_token"].(string); ok && refreshToken != "" {
		credentials["refresh_token"] = refreshToken
	}
	if expiresAt := parseTokenExpiration(raw); !expiresAt.IsZero() {
		credentials["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
	}
	return credentials, nil
}

// parseTokenExpiration resolves the token's expiry from either an absolute
// expires_at or a relative expires_in. Returns the zero time when the
// response carries neither.
func parseTokenExpiration(raw map[string]any) time.Time {
	switch v := raw["expires_at"].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	case float64:
		return time.Unix(int64(v), 0)
	}

	switch v := raw["expires_in"].(type) {
	case string:
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Now().Add(time.Duration(secs) * time.Second)
		}
	case float64:
		return time.Now().Add(time.Duration(v) * time.Second)
	}

	return time.Time{}
}

// ParseOAuth1Credentials normalizes an OAuth1 access-token result into the
// oauth1 envelope.
func ParseOAuth1Credentials(token, tokenSecret string, raw map[string]any) (map[string]any, error) {
	if token == "" || tokenSecret == "" {
		return nil, fmt.Errorf("%w: access token result missing oauth_token or oauth_token_secret", ErrTokenExchangeFailed)
	}

	return map[string]any{
		"type":               string(models.AuthSchemeOAuth1),
		"oauth_token":        token,
		"oauth_token_secret": tokenSecret,
		"raw":                raw,
	}, nil
}

// APIKeyCredentials builds the api_key envelope.
func APIKeyCredentials(apiKey string) map[string]any {
	return map[string]any{
		"type":    string(models.AuthSchemeApiKey),
		"api_key": apiKey,
	}
}

// BasicCredentials builds the basic envelope.
func BasicCredentials(username, password string) map[string]any {
	return map[string]any{
		"type":     string(models.AuthSchemeBasic),
		"username": username,
		"password": password,
	}
}

// ServiceAccountCredentials builds the service_account envelope around the
// provider-shaped key material.
func ServiceAccountCredentials(key map[string]any) map[string]any {
	return map[string]any{
		"type": string(models.AuthSchemeServiceAccount),
		"key":  key,
	}
}

// NoneCredentials is the envelope for providers that need no credentials.
func NoneCredentials() map[string]any {
	return map[string]any{
		"type": string(models.AuthSchemeNone),
	}
}
