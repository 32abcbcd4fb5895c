package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/providers"
)

// buildOAuth2Endpoint resolves the provider's URL templates against the
// handshake configuration and selects the token-request auth style.
func buildOAuth2Endpoint(spec *providers.AuthSpec, configuration map[string]string) (oauth2.Endpoint, error) {
	authorizeURL, err := InterpolateURL(spec.AuthorizationURL, configuration)
	if err != nil {
		return oauth2.Endpoint{}, err
	}
	tokenURL, err := InterpolateURL(spec.TokenURL, configuration)
	if err != nil {
		return oauth2.Endpoint{}, err
	}

	authStyle := oauth2.AuthStyleInParams
	if spec.TokenRequestAuthMethod == providers.TokenRequestAuthMethodBasic {
		authStyle = oauth2.AuthStyleInHeader
	}

	return oauth2.Endpoint{
		AuthURL:   authorizeURL.String(),
		TokenURL:  tokenURL.String(),
		AuthStyle: authStyle,
	}, nil
}

// BuildAuthorizationURL constructs the provider authorization redirect for
// an OAuth2 handshake. The handshake id rides as the state parameter and the
// PKCE challenge is attached unless the provider disables it.
func BuildAuthorizationURL(
	integration *models.Integration,
	spec *providers.AuthSpec,
	configuration map[string]string,
	callbackURL, scope, state, codeVerifier string,
) (string, error) {
	if grantType, ok := spec.TokenParams["grant_type"]; ok && grantType != "authorization_code" {
		return "", fmt.Errorf("%w: unsupported grant type %q", ErrUnsupportedAuthScheme, grantType)
	}
	if integration.OAuthClientID == nil || integration.OAuthClientSecret == nil {
		return "", fmt.Errorf("%w: integration %s has no oauth client credentials", ErrCredentialsMissing, integration.UniqueKey)
	}

	endpoint, err := buildOAuth2Endpoint(spec, configuration)
	if err != nil {
		return "", err
	}

	config := &oauth2.Config{
		ClientID:     *integration.OAuthClientID,
		ClientSecret: *integration.OAuthClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  callbackURL,
	}

	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("scope", scope)}
	for key, value := range spec.AuthorizationParams {
		opts = append(opts, oauth2.SetAuthURLParam(key, value))
	}
	if !spec.DisablePKCE {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", CodeChallengeS256(codeVerifier)),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}

	return config.AuthCodeURL(state, opts...), nil
}

// ExchangeCode trades the authorization code for tokens. The request is made
// directly rather than through oauth2.Config.Exchange because downstream
// metadata extraction needs the complete raw response body, which the oauth2
// Token type does not expose.
func ExchangeCode(
	ctx context.Context,
	httpClient *http.Client,
	integration *models.Integration,
	spec *providers.AuthSpec,
	configuration map[string]string,
	callbackURL, code, codeVerifier string,
) (map[string]any, error) {
	endpoint, err := buildOAuth2Endpoint(spec, configuration)
	if err != nil {
		return nil, err
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", callbackURL)
	for key, value := range spec.TokenParams {
		if key != "grant_type" {
			data.Set(key, value)
		}
	}
	if !spec.DisablePKCE {
		data.Set("code_verifier", codeVerifier)
	}
	if endpoint.AuthStyle != oauth2.AuthStyleInHeader {
		data.Set("client_id", *integration.OAuthClientID)
		data.Set("client_secret", *integration.OAuthClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if endpoint.AuthStyle == oauth2.AuthStyleInHeader {
		req.SetBasicAuth(*integration.OAuthClientID, *integration.OAuthClientSecret)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read token response: %v", ErrTokenExchangeFailed, err)
	}

	raw, err := parseTokenResponseBody(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		if errCode, ok := raw["error"].(string); ok && errCode != "" {
			description, _ := raw["error_description"].(string)
			return nil, fmt.Errorf("%w: %s (%s)", ErrTokenExchangeFailed, errCode, description)
		}
		return nil, fmt.Errorf("%w: token endpoint returned status %d", ErrTokenExchangeFailed, resp.StatusCode)
	}

	return raw, nil
}

// parseTokenResponseBody decodes a token response as JSON or, for providers
// that still answer form-encoded, as a query string.
func parseTokenResponseBody(contentType string, body []byte) (map[string]any, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "text/plain" {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse token response: %v", ErrTokenExchangeFailed, err)
		}
		raw := make(map[string]any, len(values))
		for key := range values {
			raw[key] = values.Get(key)
		}
		return raw, nil
	}

	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to decode token response: %v", ErrTokenExchangeFailed, err)
	}
	return raw, nil
}
