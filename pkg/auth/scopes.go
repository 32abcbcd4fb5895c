package auth

import (
	"sort"
	"strings"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/providers"
)

// ResolveScopes computes the full scope set for an authorization request:
// the integration's static scopes, the provider's default scopes, and the
// required scopes of every enabled collection and action. The result is
// de-duplicated and sorted, so equal inputs always produce equal requests.
func ResolveScopes(
	integration *models.Integration,
	spec *providers.Specification,
	collections []models.Collection,
	actions []models.Action,
) []string {
	set := map[string]struct{}{}

	add := func(scopes ...string) {
		for _, scope := range scopes {
			scope = strings.TrimSpace(scope)
			if scope != "" {
				set[scope] = struct{}{}
			}
		}
	}

	if integration.OAuthScopes != nil {
		add(strings.Split(*integration.OAuthScopes, ",")...)
	}
	add(spec.Auth.DefaultScopes...)
	for _, collection := range collections {
		add(collection.RequiredScopes.Data...)
	}
	for _, action := range actions {
		add(action.RequiredScopes.Data...)
	}

	scopes := make([]string, 0, len(set))
	for scope := range set {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}

// JoinScopes renders a scope list using the provider's separator, defaulting
// to a single space.
func JoinScopes(scopes []string, separator *string) string {
	sep := " "
	if separator != nil && *separator != "" {
		sep = *separator
	}
	return strings.Join(scopes, sep)
}
