package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/providers"
)

func TestResolveScopes_UnionAndDedupe(t *testing.T) {
	staticScopes := "read, write"
	integration := &models.Integration{OAuthScopes: &staticScopes}
	spec := &providers.Specification{
		Auth: providers.AuthSpec{DefaultScopes: []string{"openid", "read"}},
	}
	collections := []models.Collection{
		{RequiredScopes: database.NewJSONB([]string{"contacts.read", "write"})},
	}
	actions := []models.Action{
		{RequiredScopes: database.NewJSONB([]string{"contacts.write"})},
	}

	scopes := ResolveScopes(integration, spec, collections, actions)
	assert.Equal(t, []string{"contacts.read", "contacts.write", "openid", "read", "write"}, scopes)
}

func TestResolveScopes_OrderInsensitive(t *testing.T) {
	integration := &models.Integration{}
	spec := &providers.Specification{
		Auth: providers.AuthSpec{DefaultScopes: []string{"b", "a"}},
	}

	first := ResolveScopes(integration, spec, nil, nil)
	spec.Auth.DefaultScopes = []string{"a", "b"}
	second := ResolveScopes(integration, spec, nil, nil)

	assert.Equal(t, first, second)
}

func TestResolveScopes_TrimsAndSkipsEmpty(t *testing.T) {
	staticScopes := " read ,, write "
	integration := &models.Integration{OAuthScopes: &staticScopes}
	spec := &providers.Specification{}

	scopes := ResolveScopes(integration, spec, nil, nil)
	assert.Equal(t, []string{"read", "write"}, scopes)
}

func TestJoinScopes(t *testing.T) {
	scopes := []string{"read", "write"}

	assert.Equal(t, "read write", JoinScopes(scopes, nil))

	comma := ","
	assert.Equal(t, "read,write", JoinScopes(scopes, &comma))

	empty := ""
	assert.Equal(t, "read write", JoinScopes(scopes, &empty))
}
