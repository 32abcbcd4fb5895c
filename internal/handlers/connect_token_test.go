package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/vine/config"
	"github.com/Ramsey-B/vine/internal/handlers"
	"github.com/Ramsey-B/vine/pkg/activity"
	"github.com/Ramsey-B/vine/pkg/appctx"
	"github.com/Ramsey-B/vine/pkg/models"
)

type fakeTokenRepo struct {
	tokens map[uuid.UUID]*models.ConnectToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: map[uuid.UUID]*models.ConnectToken{}}
}

func (r *fakeTokenRepo) Create(_ context.Context, token *models.ConnectToken) error {
	copied := *token
	r.tokens[token.ID] = &copied
	return nil
}

func (r *fakeTokenRepo) GetByID(_ context.Context, id uuid.UUID) (*models.ConnectToken, error) {
	token, ok := r.tokens[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "connect token not found")
	}
	return token, nil
}

func (r *fakeTokenRepo) GetByIDUnscoped(ctx context.Context, id uuid.UUID) (*models.ConnectToken, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeTokenRepo) Update(_ context.Context, token *models.ConnectToken) error {
	r.tokens[token.ID] = token
	return nil
}

func (r *fakeTokenRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.tokens, id)
	return nil
}

type fakeIntegrationRepo struct {
	integration *models.Integration
}

func (r *fakeIntegrationRepo) Create(_ context.Context, _ *models.Integration) error { return nil }

func (r *fakeIntegrationRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Integration, error) {
	if r.integration == nil || r.integration.ID != id {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "integration not found")
	}
	return r.integration, nil
}

func (r *fakeIntegrationRepo) GetByIDUnscoped(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeIntegrationRepo) GetByKey(_ context.Context, uniqueKey string) (*models.Integration, error) {
	if r.integration == nil || r.integration.UniqueKey != uniqueKey {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "integration not found")
	}
	return r.integration, nil
}

func (r *fakeIntegrationRepo) List(_ context.Context) ([]models.Integration, error) {
	return nil, nil
}

type fakeConnectionRepo struct {
	connections map[uuid.UUID]*models.Connection
}

func (r *fakeConnectionRepo) Upsert(_ context.Context, _ *models.Connection) (models.UpsertAction, error) {
	return models.UpsertActionCreated, nil
}

func (r *fakeConnectionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Connection, error) {
	connection, ok := r.connections[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "connection not found")
	}
	return connection, nil
}

func (r *fakeConnectionRepo) List(_ context.Context, _ *uuid.UUID) ([]models.Connection, error) {
	return nil, nil
}

func (r *fakeConnectionRepo) Delete(_ context.Context, _ uuid.UUID) error { return nil }

type fakeActivityRepo struct {
	activities []*models.Activity
}

func (r *fakeActivityRepo) CreateActivity(_ context.Context, a *models.Activity) error {
	r.activities = append(r.activities, a)
	return nil
}

func (r *fakeActivityRepo) SetConnectionID(_ context.Context, _, _ uuid.UUID) error { return nil }

func (r *fakeActivityRepo) FindByConnectToken(_ context.Context, _ uuid.UUID) (uuid.UUID, error) {
	return uuid.Nil, nil
}

func (r *fakeActivityRepo) CreateLog(_ context.Context, _ *models.ActivityLog) error { return nil }

func (r *fakeActivityRepo) ListLogs(_ context.Context, _ uuid.UUID) ([]models.ActivityLog, error) {
	return nil, nil
}

func (r *fakeActivityRepo) ListByConnection(_ context.Context, _ uuid.UUID) ([]models.Activity, error) {
	return nil, nil
}

type handlerFixture struct {
	handler      *handlers.ConnectTokenHandler
	echo         *echo.Echo
	tokens       *fakeTokenRepo
	integrations *fakeIntegrationRepo
	connections  *fakeConnectionRepo
	activities   *fakeActivityRepo

	environmentID uuid.UUID
	integration   *models.Integration
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	environmentID := uuid.New()
	integration := &models.Integration{
		ID:            uuid.New(),
		EnvironmentID: environmentID,
		UniqueKey:     "hubspot",
		ProviderKey:   "hubspot",
		IsEnabled:     true,
		AuthScheme:    models.AuthSchemeOAuth2,
	}

	f := &handlerFixture{
		echo:          echo.New(),
		tokens:        newFakeTokenRepo(),
		integrations:  &fakeIntegrationRepo{integration: integration},
		connections:   &fakeConnectionRepo{connections: map[uuid.UUID]*models.Connection{}},
		activities:    &fakeActivityRepo{},
		environmentID: environmentID,
		integration:   integration,
	}

	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
	cfg := &config.Config{
		ServerURL:                  "https://vine.example.com",
		ConnectTokenMinMinutes:     30,
		ConnectTokenMaxMinutes:     10080,
		ConnectTokenDefaultMinutes: 60,
	}
	f.handler = handlers.NewConnectTokenHandler(
		f.tokens, f.integrations, f.connections, activity.NewService(f.activities, logger), cfg)
	return f
}

func (f *handlerFixture) request(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(appctx.SetEnvironmentID(req.Context(), f.environmentID.String()))
	rec := httptest.NewRecorder()
	return f.echo.NewContext(req, rec), rec
}

func TestCreateConnectToken(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"integration_id":"` + f.integration.ID.String() + `","redirect_url":"https://app.example.com/done"}`
	c, rec := f.request(t, http.MethodPost, "/connect-tokens", body)

	require.NoError(t, f.handler.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ID         uuid.UUID `json:"id"`
		ExpiresAt  int64     `json:"expires_at"`
		ConnectURL string    `json:"connect_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.ConnectURL, "https://vine.example.com/oauth/authorize?token="+resp.ID.String())

	// Default TTL is 60 minutes, stored as epoch seconds.
	expected := time.Now().Add(60 * time.Minute).Unix()
	assert.InDelta(t, expected, resp.ExpiresAt, 5)

	require.Contains(t, f.tokens.tokens, resp.ID)
	require.Len(t, f.activities.activities, 1)
	assert.Equal(t, models.LogActionConnect, f.activities.activities[0].Action)
}

func TestCreateConnectToken_ByIntegrationKey(t *testing.T) {
	f := newHandlerFixture(t)

	c, rec := f.request(t, http.MethodPost, "/connect-tokens", `{"integration_key":"hubspot"}`)
	require.NoError(t, f.handler.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateConnectToken_TTLBounds(t *testing.T) {
	tests := []struct {
		name string
		mins int
	}{
		{"below minimum", 5},
		{"above maximum", 20000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)

			body := `{"integration_id":"` + f.integration.ID.String() + `","expires_in_mins":` +
				jsonInt(tt.mins) + `}`
			c, _ := f.request(t, http.MethodPost, "/connect-tokens", body)

			err := f.handler.Create(c)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
			assert.Empty(t, f.tokens.tokens)
		})
	}
}

func TestCreateConnectToken_InvalidRedirectURL(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"integration_id":"` + f.integration.ID.String() + `","redirect_url":"not a url"}`
	c, _ := f.request(t, http.MethodPost, "/connect-tokens", body)

	err := f.handler.Create(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestCreateConnectToken_MissingIntegration(t *testing.T) {
	f := newHandlerFixture(t)

	c, _ := f.request(t, http.MethodPost, "/connect-tokens", `{}`)

	err := f.handler.Create(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestCreateConnectToken_ReconnectWrongIntegration(t *testing.T) {
	f := newHandlerFixture(t)

	connection := &models.Connection{
		ID:            uuid.New(),
		EnvironmentID: f.environmentID,
		IntegrationID: uuid.New(),
	}
	f.connections.connections[connection.ID] = connection

	body := `{"integration_id":"` + f.integration.ID.String() + `","connection_id":"` + connection.ID.String() + `"}`
	c, _ := f.request(t, http.MethodPost, "/connect-tokens", body)

	err := f.handler.Create(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestCreateConnectToken_Unauthenticated(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/connect-tokens", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := f.echo.NewContext(req, rec)

	err := f.handler.Create(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, httperror.GetStatusCode(err))
}

func TestGetConnectToken_Expired(t *testing.T) {
	f := newHandlerFixture(t)

	token := &models.ConnectToken{
		ID:            uuid.New(),
		EnvironmentID: f.environmentID,
		IntegrationID: f.integration.ID,
		ExpiresAt:     time.Now().Add(-time.Minute).Unix(),
	}
	require.NoError(t, f.tokens.Create(context.Background(), token))

	c, _ := f.request(t, http.MethodGet, "/connect-tokens/"+token.ID.String(), "")
	c.SetParamNames("id")
	c.SetParamValues(token.ID.String())

	err := f.handler.Get(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func jsonInt(v int) string {
	b, _ := json.Marshal(v)
	return string(b)
}
