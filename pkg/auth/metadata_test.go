package auth

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/vine/pkg/providers"
)

func TestMetadataFromCallback_WhitelistOnly(t *testing.T) {
	query := url.Values{
		"realmId": []string{"12345"},
		"state":   []string{"abc"},
		"code":    []string{"secret"},
	}
	spec := &providers.AuthSpec{RedirectURIMetadata: []string{"realmId", "instance_url"}}

	metadata := MetadataFromCallback(query, spec)
	assert.Equal(t, map[string]any{"realmId": "12345"}, metadata)
}

func TestMetadataFromCallback_EmptyWhitelist(t *testing.T) {
	query := url.Values{"realmId": []string{"12345"}}
	spec := &providers.AuthSpec{}

	assert.Empty(t, MetadataFromCallback(query, spec))
}

func TestMetadataFromTokenResponse_DotNotation(t *testing.T) {
	raw := map[string]any{
		"access_token": "secret",
		"instance_url": "https://acme.example.com",
		"team": map[string]any{
			"id":      "T123",
			"members": float64(8),
		},
		"enterprise": true,
	}
	spec := &providers.AuthSpec{
		TokenResponseMetadata: []string{"instance_url", "team.id", "team.members", "enterprise", "missing.path"},
	}

	metadata := MetadataFromTokenResponse(raw, spec)
	assert.Equal(t, map[string]any{
		"instance_url": "https://acme.example.com",
		"team.id":      "T123",
		"enterprise":   true,
	}, metadata)
}

func TestMetadataFromTokenResponse_EmptyInputs(t *testing.T) {
	spec := &providers.AuthSpec{TokenResponseMetadata: []string{"instance_url"}}

	assert.Empty(t, MetadataFromTokenResponse(nil, spec))
	assert.Empty(t, MetadataFromTokenResponse(map[string]any{"a": "b"}, &providers.AuthSpec{}))
}
