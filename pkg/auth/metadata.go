package auth

import (
	"net/url"
	"strings"

	"github.com/Ramsey-B/vine/pkg/providers"
)

// MetadataFromCallback extracts the provider spec's whitelisted
// redirect_uri_metadata keys from the OAuth callback query. Anything not on
// the whitelist is dropped.
func MetadataFromCallback(query url.Values, spec *providers.AuthSpec) map[string]any {
	if len(query) == 0 || len(spec.RedirectURIMetadata) == 0 {
		return map[string]any{}
	}

	metadata := map[string]any{}
	for _, key := range spec.RedirectURIMetadata {
		if value := query.Get(key); value != "" {
			metadata[key] = value
		}
	}
	return metadata
}

// MetadataFromTokenResponse extracts the whitelisted token_response_metadata
// keys from the raw token response. Whitelist entries may use dot notation
// to reach nested values; only string and bool leaves are kept.
func MetadataFromTokenResponse(raw map[string]any, spec *providers.AuthSpec) map[string]any {
	if len(raw) == 0 || len(spec.TokenResponseMetadata) == 0 {
		return map[string]any{}
	}

	metadata := map[string]any{}
	for _, key := range spec.TokenResponseMetadata {
		value := lookupDotNotation(raw, key)
		switch value.(type) {
		case string, bool:
			metadata[key] = value
		}
	}
	return metadata
}

func lookupDotNotation(obj map[string]any, key string) any {
	var current any = obj
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}
