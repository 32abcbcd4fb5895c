package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dghubble/oauth1"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/providers"
)

// OAuth1RequestToken is the temporary credential pair from the first leg of
// the OAuth1 dance. The secret is persisted on the handshake so the access
// token exchange can sign with it after the redirect returns.
type OAuth1RequestToken struct {
	Token  string
	Secret string
}

func newOAuth1Config(httpClient *http.Client, integration *models.Integration, spec *providers.AuthSpec, callbackURL string) (*oauth1.Config, error) {
	if integration.OAuthClientID == nil || integration.OAuthClientSecret == nil {
		return nil, fmt.Errorf("%w: integration %s has no oauth client credentials", ErrCredentialsMissing, integration.UniqueKey)
	}

	config := &oauth1.Config{
		ConsumerKey:    *integration.OAuthClientID,
		ConsumerSecret: *integration.OAuthClientSecret,
		CallbackURL:    callbackURL,
		Endpoint: oauth1.Endpoint{
			RequestTokenURL: spec.RequestURL,
			AuthorizeURL:    spec.AuthorizationURL,
			AccessTokenURL:  spec.TokenURL,
		},
		// Without this the library falls back to http.DefaultClient, which
		// has no timeout; a hung provider would pin the request.
		HTTPClient: httpClient,
	}

	switch spec.SignatureMethod {
	case providers.SignatureMethodRSASHA1:
		key, err := parseRSAPrivateKey(*integration.OAuthClientSecret)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCredentialsMissing, err)
		}
		config.Signer = &oauth1.RSASigner{PrivateKey: key}
	case providers.SignatureMethodPlaintext:
		config.Signer = &plaintextSigner{consumerSecret: *integration.OAuthClientSecret}
	default:
		// HMAC-SHA1 is the library default
	}

	return config, nil
}

// OAuth1RequestTokenStep obtains temporary credentials from the provider's
// request token endpoint.
func OAuth1RequestTokenStep(httpClient *http.Client, integration *models.Integration, spec *providers.AuthSpec, callbackURL string) (*OAuth1RequestToken, error) {
	config, err := newOAuth1Config(httpClient, integration, spec, callbackURL)
	if err != nil {
		return nil, err
	}

	token, secret, err := config.RequestToken()
	if err != nil {
		return nil, fmt.Errorf("%w: request token step: %v", ErrTokenExchangeFailed, err)
	}

	return &OAuth1RequestToken{Token: token, Secret: secret}, nil
}

// OAuth1AuthorizationURL constructs the provider authorization redirect for
// an obtained request token, carrying the resolved scopes and any extra
// authorization params the provider requires.
func OAuth1AuthorizationURL(
	integration *models.Integration,
	spec *providers.AuthSpec,
	requestToken, scope string,
) (string, error) {
	config, err := newOAuth1Config(nil, integration, spec, "")
	if err != nil {
		return "", err
	}

	authorizationURL, err := config.AuthorizationURL(requestToken)
	if err != nil {
		return "", fmt.Errorf("failed to build authorization url: %w", err)
	}

	query := authorizationURL.Query()
	if scope != "" {
		query.Set("scope", scope)
	}
	for key, value := range spec.AuthorizationParams {
		query.Set(key, value)
	}
	authorizationURL.RawQuery = query.Encode()

	return authorizationURL.String(), nil
}

// OAuth1AccessToken trades the authorized request token and verifier for
// token credentials.
func OAuth1AccessToken(
	httpClient *http.Client,
	integration *models.Integration,
	spec *providers.AuthSpec,
	oauthToken, requestSecret, verifier string,
) (map[string]any, error) {
	config, err := newOAuth1Config(httpClient, integration, spec, "")
	if err != nil {
		return nil, err
	}

	accessToken, accessSecret, err := config.AccessToken(oauthToken, requestSecret, verifier)
	if err != nil {
		return nil, fmt.Errorf("%w: access token step: %v", ErrTokenExchangeFailed, err)
	}

	raw := map[string]any{
		"oauth_token":        accessToken,
		"oauth_token_secret": accessSecret,
	}
	return ParseOAuth1Credentials(accessToken, accessSecret, raw)
}

// plaintextSigner implements the PLAINTEXT signature method: the signature
// is the encoded consumer secret and token secret, no digest.
type plaintextSigner struct {
	consumerSecret string
}

func (s *plaintextSigner) Name() string {
	return "PLAINTEXT"
}

func (s *plaintextSigner) Sign(tokenSecret, _ string) (string, error) {
	return percentEncode(s.consumerSecret) + "&" + percentEncode(tokenSecret), nil
}

// percentEncode applies RFC 3986 encoding as OAuth1 signatures require;
// QueryEscape alone would emit '+' for spaces.
func percentEncode(input string) string {
	return strings.ReplaceAll(url.QueryEscape(input), "+", "%20")
}

func parseRSAPrivateKey(pemEncoded string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemEncoded))
	if block == nil {
		return nil, fmt.Errorf("oauth client secret is not a PEM-encoded RSA private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}
