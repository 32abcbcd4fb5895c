package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/vine/pkg/auth"
	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/providers"
)

func testLogger() ectologger.Logger {
	return zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
}

type fakeTokenRepo struct {
	tokens  map[uuid.UUID]*models.ConnectToken
	deleted []uuid.UUID
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: map[uuid.UUID]*models.ConnectToken{}}
}

func (r *fakeTokenRepo) Create(_ context.Context, token *models.ConnectToken) error {
	copied := *token
	r.tokens[token.ID] = &copied
	return nil
}

func (r *fakeTokenRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ConnectToken, error) {
	return r.GetByIDUnscoped(ctx, id)
}

func (r *fakeTokenRepo) GetByIDUnscoped(_ context.Context, id uuid.UUID) (*models.ConnectToken, error) {
	token, ok := r.tokens[id]
	if !ok {
		return nil, nil
	}
	copied := *token
	return &copied, nil
}

func (r *fakeTokenRepo) Update(_ context.Context, token *models.ConnectToken) error {
	copied := *token
	r.tokens[token.ID] = &copied
	return nil
}

func (r *fakeTokenRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.tokens, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type fakeIntegrationRepo struct {
	integrations map[uuid.UUID]*models.Integration
}

func (r *fakeIntegrationRepo) Create(_ context.Context, integration *models.Integration) error {
	r.integrations[integration.ID] = integration
	return nil
}

func (r *fakeIntegrationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	return r.GetByIDUnscoped(ctx, id)
}

func (r *fakeIntegrationRepo) GetByIDUnscoped(_ context.Context, id uuid.UUID) (*models.Integration, error) {
	return r.integrations[id], nil
}

func (r *fakeIntegrationRepo) GetByKey(_ context.Context, _ string) (*models.Integration, error) {
	return nil, nil
}

func (r *fakeIntegrationRepo) List(_ context.Context) ([]models.Integration, error) {
	return nil, nil
}

type fakeCollectionRepo struct {
	collections []models.Collection
}

func (r *fakeCollectionRepo) GetByKey(_ context.Context, _ uuid.UUID, _ string) (*models.Collection, error) {
	return nil, nil
}

func (r *fakeCollectionRepo) ListByIntegration(_ context.Context, _ uuid.UUID) ([]models.Collection, error) {
	return r.collections, nil
}

func (r *fakeCollectionRepo) ListEnabledByIntegration(_ context.Context, _ uuid.UUID) ([]models.Collection, error) {
	return r.collections, nil
}

type fakeActionRepo struct {
	actions []models.Action
}

func (r *fakeActionRepo) ListEnabledByIntegration(_ context.Context, _ uuid.UUID) ([]models.Action, error) {
	return r.actions, nil
}

type fakeSpecStore struct {
	specs map[string]*providers.Specification
}

func (s *fakeSpecStore) GetSpec(_ context.Context, providerKey string) (*providers.Specification, error) {
	return s.specs[providerKey], nil
}

func (s *fakeSpecStore) List(_ context.Context) ([]providers.Specification, error) {
	return nil, nil
}

type fakeUpserter struct {
	connections []*models.Connection
	action      models.UpsertAction
}

func (u *fakeUpserter) Upsert(_ context.Context, connection *models.Connection, _ uuid.UUID) (models.UpsertAction, error) {
	copied := *connection
	u.connections = append(u.connections, &copied)
	if u.action == "" {
		return models.UpsertActionCreated, nil
	}
	return u.action, nil
}

type fakeActivities struct {
	activityID uuid.UUID
	messages   []string
}

func (a *fakeActivities) FindByConnectToken(_ context.Context, _ uuid.UUID) uuid.UUID {
	return a.activityID
}

func (a *fakeActivities) Log(_ context.Context, _ uuid.UUID, _ models.LogLevel, message string, _ map[string]any) {
	a.messages = append(a.messages, message)
}

type flowFixture struct {
	service     *auth.Service
	tokens      *fakeTokenRepo
	connections *fakeUpserter
	activities  *fakeActivities

	token       *models.ConnectToken
	integration *models.Integration
	spec        *providers.Specification
}

func newFlowFixture(t *testing.T, scheme models.AuthScheme, authSpec providers.AuthSpec) *flowFixture {
	t.Helper()

	clientID := "client-id"
	clientSecret := "client-secret"
	scopes := "read,write"

	integration := &models.Integration{
		ID:                uuid.New(),
		EnvironmentID:     uuid.New(),
		UniqueKey:         "hubspot",
		ProviderKey:       "hubspot",
		IsEnabled:         true,
		AuthScheme:        scheme,
		OAuthClientID:     &clientID,
		OAuthClientSecret: &clientSecret,
		OAuthScopes:       &scopes,
	}

	wsClientID := "ws-client-1"
	redirectURL := "https://app.example.com/done"
	token := &models.ConnectToken{
		ID:                uuid.New(),
		EnvironmentID:     integration.EnvironmentID,
		IntegrationID:     integration.ID,
		ExpiresAt:         time.Now().Add(30 * time.Minute).Unix(),
		Configuration:     database.NewJSONB(map[string]any{}),
		WebsocketClientID: &wsClientID,
		RedirectURL:       &redirectURL,
	}

	authSpec.Scheme = scheme
	spec := &providers.Specification{
		UniqueKey: "hubspot",
		Name:      "HubSpot",
		Auth:      authSpec,
	}

	f := &flowFixture{
		tokens:      newFakeTokenRepo(),
		connections: &fakeUpserter{},
		activities:  &fakeActivities{activityID: uuid.New()},
		token:       token,
		integration: integration,
		spec:        spec,
	}
	require.NoError(t, f.tokens.Create(context.Background(), token))

	f.service = auth.NewService(
		f.tokens,
		&fakeIntegrationRepo{integrations: map[uuid.UUID]*models.Integration{integration.ID: integration}},
		&fakeCollectionRepo{},
		&fakeActionRepo{},
		&fakeSpecStore{specs: map[string]*providers.Specification{"hubspot": spec}},
		f.connections,
		f.activities,
		testLogger(),
		auth.Config{
			CallbackURL:       "https://vine.example.com/oauth/callback",
			CredentialFormURL: "https://vine.example.com/connect",
		},
	)
	return f
}

func TestAuthorize_OAuth2Redirect(t *testing.T) {
	f := newFlowFixture(t, models.AuthSchemeOAuth2, providers.AuthSpec{
		AuthorizationURL: "https://provider.example.com/oauth/authorize",
		TokenURL:         "https://provider.example.com/oauth/token",
	})

	result, err := f.service.Authorize(context.Background(), f.token.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Empty(t, result.Completed)

	redirect, parseErr := url.Parse(result.RedirectURL)
	require.NoError(t, parseErr)
	assert.Equal(t, "provider.example.com", redirect.Host)
	assert.Equal(t, "/oauth/authorize", redirect.Path)

	query := redirect.Query()
	assert.Equal(t, f.token.ID.String(), query.Get("state"))
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "https://vine.example.com/oauth/callback", query.Get("redirect_uri"))
	assert.Equal(t, "read write", query.Get("scope"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))

	// The verifier is persisted on the handshake and the challenge derives
	// from it.
	stored, getErr := f.tokens.GetByIDUnscoped(context.Background(), f.token.ID)
	require.NoError(t, getErr)
	require.NotNil(t, stored.CodeVerifier)
	assert.Equal(t, auth.CodeChallengeS256(*stored.CodeVerifier), query.Get("code_challenge"))
}

func TestAuthorize_OAuth2MissingConfiguration(t *testing.T) {
	f := newFlowFixture(t, models.AuthSchemeOAuth2, providers.AuthSpec{
		AuthorizationURL: "https://${configuration.subdomain}.example.com/authorize",
		TokenURL:         "https://${configuration.subdomain}.example.com/token",
	})

	_, err := f.service.Authorize(context.Background(), f.token.ID)
	require.Error(t, err)

	var ferr *auth.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "Missing configuration fields", ferr.Message)
	assert.Equal(t, "ws-client-1", ferr.WSClientID)
	assert.Empty(t, f.connections.connections)
}

func TestAuthorize_CredentialFormSchemes(t *testing.T) {
	for _, scheme := range []models.AuthScheme{models.AuthSchemeApiKey, models.AuthSchemeBasic, models.AuthSchemeServiceAccount} {
		t.Run(string(scheme), func(t *testing.T) {
			f := newFlowFixture(t, scheme, providers.AuthSpec{})

			result, err := f.service.Authorize(context.Background(), f.token.ID)
			require.NoError(t, err)
			assert.Equal(t,
				"https://vine.example.com/connect/"+string(scheme)+"/"+f.token.ID.String(),
				result.RedirectURL)
			assert.Empty(t, f.connections.connections)
		})
	}
}

func TestAuthorize_NoneCompletesImmediately(t *testing.T) {
	f := newFlowFixture(t, models.AuthSchemeNone, providers.AuthSpec{})

	result, err := f.service.Authorize(context.Background(), f.token.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Completed)
	assert.Empty(t, result.RedirectURL)
	assert.Equal(t, models.UpsertActionCreated, result.Completed.Action)
	assert.Equal(t, "ws-client-1", result.Completed.WSClientID)
	assert.Equal(t, "https://app.example.com/done", result.Completed.RedirectURL)

	require.Len(t, f.connections.connections, 1)
	connection := f.connections.connections[0]
	assert.Equal(t, result.Completed.ConnectionID, connection.ID)
	assert.Equal(t, models.AuthSchemeNone, connection.AuthScheme)
	assert.Equal(t, string(models.AuthSchemeNone), connection.Credentials.Data["type"])

	// The handshake is retired once the connection is durable.
	assert.Contains(t, f.tokens.deleted, f.token.ID)
}

func TestAuthorize_ExpiredToken(t *testing.T) {
	f := newFlowFixture(t, models.AuthSchemeOAuth2, providers.AuthSpec{
		AuthorizationURL: "https://provider.example.com/authorize",
		TokenURL:         "https://provider.example.com/token",
	})
	f.token.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	require.NoError(t, f.tokens.Update(context.Background(), f.token))

	_, err := f.service.Authorize(context.Background(), f.token.ID)
	require.Error(t, err)

	var ferr *auth.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "Connect token expired", ferr.Message)
	assert.Empty(t, f.connections.connections)
}

func TestAuthorize_UnknownToken(t *testing.T) {
	f := newFlowFixture(t, models.AuthSchemeOAuth2, providers.AuthSpec{})

	_, err := f.service.Authorize(context.Background(), uuid.New())
	require.Error(t, err)

	var ferr *auth.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "Invalid connect token", ferr.Message)
}

func TestAuthorize_DisabledIntegration(t *testing.T) {
	f := newFlowFixture(t, models.AuthSchemeOAuth2, providers.AuthSpec{})
	f.integration.IsEnabled = false

	_, err := f.service.Authorize(context.Background(), f.token.ID)
	require.Error(t, err)

	var ferr *auth.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "Integration is disabled", ferr.Message)
}

func TestHandleOAuthCallback_OAuth2(t *testing.T) {
	var tokenRequest url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		tokenRequest = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-123",
			"refresh_token": "refresh-456",
			"expires_in":    3600,
			"token_type":    "bearer",
			"realm":         map[string]any{"id": "realm-789"},
		})
	}))
	defer server.Close()

	f := newFlowFixture(t, models.AuthSchemeOAuth2, providers.AuthSpec{
		AuthorizationURL:      "https://provider.example.com/authorize",
		TokenURL:              server.URL,
		RedirectURIMetadata:   []string{"realmId"},
		TokenResponseMetadata: []string{"realm.id"},
	})

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	f.token.CodeVerifier = &verifier
	require.NoError(t, f.tokens.Update(context.Background(), f.token))

	query := url.Values{
		"code":    {"auth-code"},
		"state":   {f.token.ID.String()},
		"realmId": {"realm-789"},
	}
	result, err := f.service.HandleOAuthCallback(context.Background(), f.token.ID.String(), query)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.UpsertActionCreated, result.Action)

	// The exchange carried the code and PKCE verifier.
	assert.Equal(t, "auth-code", tokenRequest.Get("code"))
	assert.Equal(t, verifier, tokenRequest.Get("code_verifier"))
	assert.Equal(t, "authorization_code", tokenRequest.Get("grant_type"))

	require.Len(t, f.connections.connections, 1)
	connection := f.connections.connections[0]
	assert.Equal(t, "access-123", connection.Credentials.Data["access_token"])
	assert.Equal(t, "refresh-456", connection.Credentials.Data["refresh_token"])
	assert.NotEmpty(t, connection.Credentials.Data["expires_at"])

	// Whitelisted metadata from both the redirect and the token response
	// lands on the connection configuration.
	assert.Equal(t, "realm-789", connection.Configuration.Data["realmId"])
	assert.Equal(t, "realm-789", connection.Configuration.Data["realm.id"])

	assert.Contains(t, f.tokens.deleted, f.token.ID)
}

func TestAuthorize_OAuth1(t *testing.T) {
	var requestTokenAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestTokenAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("oauth_token=request-token-1&oauth_token_secret=request-secret-1&oauth_callback_confirmed=true"))
	}))
	defer server.Close()

	f := newFlowFixture(t, models.AuthSchemeOAuth1, providers.AuthSpec{
		AuthorizationURL: "https://provider.example.com/oauth/authorize",
		RequestURL:       server.URL + "/oauth/request",
		TokenURL:         server.URL + "/oauth/access",
	})

	result, err := f.service.Authorize(context.Background(), f.token.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Empty(t, result.Completed)

	// The request token leg is signed and carries the callback with the
	// handshake state.
	assert.Contains(t, requestTokenAuth, `oauth_consumer_key="client-id"`)
	assert.Contains(t, requestTokenAuth, "oauth_callback=")

	redirect, parseErr := url.Parse(result.RedirectURL)
	require.NoError(t, parseErr)
	assert.Equal(t, "provider.example.com", redirect.Host)
	assert.Equal(t, "/oauth/authorize", redirect.Path)
	assert.Equal(t, "request-token-1", redirect.Query().Get("oauth_token"))
	assert.Equal(t, "read write", redirect.Query().Get("scope"))

	// The token secret is persisted so the access token exchange can sign
	// with it after the redirect returns.
	stored, getErr := f.tokens.GetByIDUnscoped(context.Background(), f.token.ID)
	require.NoError(t, getErr)
	require.NotNil(t, stored.RequestTokenSecret)
	assert.Equal(t, "request-secret-1", *stored.RequestTokenSecret)
}

func TestHandleOAuthCallback_OAuth1(t *testing.T) {
	var accessTokenAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessTokenAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("oauth_token=access-token-1&oauth_token_secret=access-secret-1"))
	}))
	defer server.Close()

	f := newFlowFixture(t, models.AuthSchemeOAuth1, providers.AuthSpec{
		AuthorizationURL: "https://provider.example.com/oauth/authorize",
		RequestURL:       server.URL + "/oauth/request",
		TokenURL:         server.URL + "/oauth/access",
	})

	requestSecret := "request-secret-1"
	f.token.RequestTokenSecret = &requestSecret
	require.NoError(t, f.tokens.Update(context.Background(), f.token))

	query := url.Values{
		"oauth_token":    {"request-token-1"},
		"oauth_verifier": {"verifier-1"},
	}
	result, err := f.service.HandleOAuthCallback(context.Background(), f.token.ID.String(), query)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.UpsertActionCreated, result.Action)

	assert.Contains(t, accessTokenAuth, `oauth_token="request-token-1"`)
	assert.Contains(t, accessTokenAuth, `oauth_verifier="verifier-1"`)

	require.Len(t, f.connections.connections, 1)
	connection := f.connections.connections[0]
	assert.Equal(t, string(models.AuthSchemeOAuth1), connection.Credentials.Data["type"])
	assert.Equal(t, "access-token-1", connection.Credentials.Data["oauth_token"])
	assert.Equal(t, "access-secret-1", connection.Credentials.Data["oauth_token_secret"])

	assert.Contains(t, f.tokens.deleted, f.token.ID)
}

func TestHandleOAuthCallback_OAuth1MissingVerifier(t *testing.T) {
	f := newFlowFixture(t, models.AuthSchemeOAuth1, providers.AuthSpec{
		AuthorizationURL: "https://provider.example.com/oauth/authorize",
		RequestURL:       "https://provider.example.com/oauth/request",
		TokenURL:         "https://provider.example.com/oauth/access",
	})

	requestSecret := "request-secret-1"
	f.token.RequestTokenSecret = &requestSecret
	require.NoError(t, f.tokens.Update(context.Background(), f.token))

	_, err := f.service.HandleOAuthCallback(context.Background(), f.token.ID.String(),
		url.Values{"oauth_token": {"request-token-1"}})
	require.Error(t, err)

	var ferr *auth.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Empty(t, f.connections.connections)
}

func TestHandleOAuthCallback_ReconnectKeepsConnectionID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "access-123"})
	}))
	defer server.Close()

	f := newFlowFixture(t, models.AuthSchemeOAuth2, providers.AuthSpec{
		AuthorizationURL: "https://provider.example.com/authorize",
		TokenURL:         server.URL,
	})

	existingID := uuid.New()
	verifier := "reconnect-verifier-reconnect-verifier-reconnect"
	f.token.ConnectionID = &existingID
	f.token.CodeVerifier = &verifier
	require.NoError(t, f.tokens.Update(context.Background(), f.token))

	result, err := f.service.HandleOAuthCallback(context.Background(), f.token.ID.String(),
		url.Values{"code": {"auth-code"}})
	require.NoError(t, err)
	assert.Equal(t, existingID, result.ConnectionID)
}

func TestHandleOAuthCallback_ProviderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "code expired",
		})
	}))
	defer server.Close()

	f := newFlowFixture(t, models.AuthSchemeOAuth2, providers.AuthSpec{
		AuthorizationURL: "https://provider.example.com/authorize",
		TokenURL:         server.URL,
	})

	verifier := "rejected-verifier-rejected-verifier-rejected-ve"
	f.token.CodeVerifier = &verifier
	require.NoError(t, f.tokens.Update(context.Background(), f.token))

	_, err := f.service.HandleOAuthCallback(context.Background(), f.token.ID.String(),
		url.Values{"code": {"auth-code"}})
	require.Error(t, err)

	// Provider detail never reaches the client.
	var ferr *auth.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, auth.DefaultErrorMessage, ferr.Message)
	assert.NotContains(t, ferr.Message, "invalid_grant")
	assert.Empty(t, f.connections.connections)
}

func TestHandleOAuthCallback_BadState(t *testing.T) {
	f := newFlowFixture(t, models.AuthSchemeOAuth2, providers.AuthSpec{})

	_, err := f.service.HandleOAuthCallback(context.Background(), "not-a-uuid", url.Values{})
	require.Error(t, err)

	var ferr *auth.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "Invalid connect token", ferr.Message)
}

func TestSubmitAPIKey(t *testing.T) {
	f := newFlowFixture(t, models.AuthSchemeApiKey, providers.AuthSpec{})

	result, err := f.service.SubmitAPIKey(context.Background(), f.token.ID, "sk-test-key")
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, f.connections.connections, 1)
	connection := f.connections.connections[0]
	assert.Equal(t, "sk-test-key", connection.Credentials.Data["api_key"])
	assert.Equal(t, string(models.AuthSchemeApiKey), connection.Credentials.Data["type"])
}

func TestSubmitAPIKey_EmptyRejected(t *testing.T) {
	f := newFlowFixture(t, models.AuthSchemeApiKey, providers.AuthSpec{})

	_, err := f.service.SubmitAPIKey(context.Background(), f.token.ID, "")
	require.Error(t, err)

	var ferr *auth.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "Credentials missing or invalid", ferr.Message)
	assert.Empty(t, f.connections.connections)
}

func TestSubmitBasic_SchemeMismatchRejected(t *testing.T) {
	f := newFlowFixture(t, models.AuthSchemeApiKey, providers.AuthSpec{})

	_, err := f.service.SubmitBasic(context.Background(), f.token.ID, "user", "pass")
	require.Error(t, err)

	var ferr *auth.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "Unsupported auth scheme", ferr.Message)
}

func TestSubmitServiceAccount(t *testing.T) {
	f := newFlowFixture(t, models.AuthSchemeServiceAccount, providers.AuthSpec{})

	key := map[string]any{"project_id": "proj-1", "private_key": "pem"}
	result, err := f.service.SubmitServiceAccount(context.Background(), f.token.ID, key)
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, f.connections.connections, 1)
	credentials := f.connections.connections[0].Credentials.Data
	assert.Equal(t, string(models.AuthSchemeServiceAccount), credentials["type"])
	assert.Equal(t, key, credentials["key"])
}
