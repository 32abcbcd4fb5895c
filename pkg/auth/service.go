// Package auth runs authorization flows: it turns an ephemeral connect
// token handshake into a durable connection, across every supported auth
// scheme. All provider detail stays inside this package; callers only ever
// see sanitized FlowErrors.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/vine/pkg/appctx"
	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/metrics"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/providers"
	"github.com/Ramsey-B/vine/pkg/repositories"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

// ConnectionUpserter persists a completed handshake as a connection
type ConnectionUpserter interface {
	Upsert(ctx context.Context, connection *models.Connection, activityID uuid.UUID) (models.UpsertAction, error)
}

// ActivityRecorder locates and appends to the handshake's audit trail
type ActivityRecorder interface {
	FindByConnectToken(ctx context.Context, connectTokenID uuid.UUID) uuid.UUID
	Log(ctx context.Context, activityID uuid.UUID, level models.LogLevel, message string, payload map[string]any)
}

// Config holds the flow engine's external endpoints
type Config struct {
	// CallbackURL is the public OAuth redirect endpoint registered with
	// providers.
	CallbackURL string
	// CredentialFormURL is the hosted form where api_key, basic and
	// service_account flows collect credentials. Rendering is external; this
	// service only redirects to it.
	CredentialFormURL string
	// HTTPClient is used for provider token exchanges. Defaults to a client
	// with a 30s timeout.
	HTTPClient *http.Client
}

// Service dispatches authorization flows by auth scheme
type Service struct {
	tokens       repositories.ConnectTokenRepo
	integrations repositories.IntegrationRepo
	collections  repositories.CollectionRepo
	actions      repositories.ActionRepo
	specs        providers.Store
	connections  ConnectionUpserter
	activities   ActivityRecorder
	logger       ectologger.Logger
	config       Config
}

// NewService creates a new auth flow service
func NewService(
	tokens repositories.ConnectTokenRepo,
	integrations repositories.IntegrationRepo,
	collections repositories.CollectionRepo,
	actions repositories.ActionRepo,
	specs providers.Store,
	connections ConnectionUpserter,
	activities ActivityRecorder,
	logger ectologger.Logger,
	config Config,
) *Service {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Service{
		tokens:       tokens,
		integrations: integrations,
		collections:  collections,
		actions:      actions,
		specs:        specs,
		connections:  connections,
		activities:   activities,
		logger:       logger,
		config:       config,
	}
}

// AuthorizeResult is the outcome of starting a flow: either a redirect to
// follow, or a completed connection for schemes with no provider round trip.
type AuthorizeResult struct {
	RedirectURL string
	Completed   *CallbackResult
}

// CallbackResult is the outcome of a finished flow
type CallbackResult struct {
	ConnectionID uuid.UUID
	Action       models.UpsertAction
	WSClientID   string
	RedirectURL  string
}

// flowContext is the resolved state every flow step works from
type flowContext struct {
	token       *models.ConnectToken
	integration *models.Integration
	spec        *providers.Specification
	activityID  uuid.UUID
	wsClientID  string
	redirectURL string
	startedAt   time.Time
}

// Authorize starts the flow for a connect token. OAuth schemes return a
// provider redirect, credential-form schemes return the hosted form URL, and
// the none scheme completes immediately.
func (s *Service) Authorize(ctx context.Context, tokenID uuid.UUID) (*AuthorizeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "AuthService.Authorize")
	defer span.End()

	ctx, fc, ferr := s.loadFlowContext(ctx, tokenID)
	if ferr != nil {
		return nil, ferr
	}

	s.activities.Log(ctx, fc.activityID, models.LogLevelInfo,
		fmt.Sprintf("Initiating %s authorization flow for %s", fc.integration.AuthScheme, fc.spec.Name), nil)

	switch fc.integration.AuthScheme {
	case models.AuthSchemeOAuth2:
		redirect, err := s.oauth2Authorize(ctx, fc)
		if err != nil {
			return nil, err
		}
		return &AuthorizeResult{RedirectURL: redirect}, nil
	case models.AuthSchemeOAuth1:
		redirect, err := s.oauth1Authorize(ctx, fc)
		if err != nil {
			return nil, err
		}
		return &AuthorizeResult{RedirectURL: redirect}, nil
	case models.AuthSchemeApiKey, models.AuthSchemeBasic, models.AuthSchemeServiceAccount:
		return &AuthorizeResult{RedirectURL: s.credentialFormURL(fc)}, nil
	case models.AuthSchemeNone:
		result, err := s.finishFlow(ctx, fc, NoneCredentials(), nil, "Connection created without credentials")
		if err != nil {
			return nil, err
		}
		return &AuthorizeResult{Completed: result}, nil
	default:
		return nil, s.fail(ctx, fc, fmt.Errorf("%w: %s", ErrUnsupportedAuthScheme, fc.integration.AuthScheme), nil)
	}
}

// HandleOAuthCallback finishes an OAuth flow from the provider redirect. The
// state parameter carries the connect token id issued at authorize time.
func (s *Service) HandleOAuthCallback(ctx context.Context, state string, query url.Values) (*CallbackResult, error) {
	ctx, span := tracing.StartSpan(ctx, "AuthService.HandleOAuthCallback")
	defer span.End()

	tokenID, err := uuid.Parse(state)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("invalid state parameter on oauth callback")
		return nil, newFlowError(ErrTokenInvalid, "", "")
	}

	ctx, fc, ferr := s.loadFlowContext(ctx, tokenID)
	if ferr != nil {
		return nil, ferr
	}

	s.activities.Log(ctx, fc.activityID, models.LogLevelInfo,
		fmt.Sprintf("OAuth callback received from %s", fc.spec.Name), nil)

	switch fc.integration.AuthScheme {
	case models.AuthSchemeOAuth2:
		return s.oauth2Callback(ctx, fc, query)
	case models.AuthSchemeOAuth1:
		return s.oauth1Callback(ctx, fc, query)
	default:
		return nil, s.fail(ctx, fc, fmt.Errorf("%w: callback for %s", ErrUnsupportedAuthScheme, fc.integration.AuthScheme), nil)
	}
}

// SubmitAPIKey finishes an api_key flow with the key collected from the
// hosted form.
func (s *Service) SubmitAPIKey(ctx context.Context, tokenID uuid.UUID, apiKey string) (*CallbackResult, error) {
	ctx, span := tracing.StartSpan(ctx, "AuthService.SubmitAPIKey")
	defer span.End()

	ctx, fc, ferr := s.loadFlowContext(ctx, tokenID)
	if ferr != nil {
		return nil, ferr
	}
	if fc.integration.AuthScheme != models.AuthSchemeApiKey {
		return nil, s.fail(ctx, fc, fmt.Errorf("%w: expected api_key, integration uses %s", ErrUnsupportedAuthScheme, fc.integration.AuthScheme), nil)
	}
	if apiKey == "" {
		return nil, s.fail(ctx, fc, fmt.Errorf("%w: api key is empty", ErrCredentialsMissing), nil)
	}

	return s.finishFlow(ctx, fc, APIKeyCredentials(apiKey), nil, "Connection created with API key credentials")
}

// SubmitBasic finishes a basic flow with the collected username/password.
func (s *Service) SubmitBasic(ctx context.Context, tokenID uuid.UUID, username, password string) (*CallbackResult, error) {
	ctx, span := tracing.StartSpan(ctx, "AuthService.SubmitBasic")
	defer span.End()

	ctx, fc, ferr := s.loadFlowContext(ctx, tokenID)
	if ferr != nil {
		return nil, ferr
	}
	if fc.integration.AuthScheme != models.AuthSchemeBasic {
		return nil, s.fail(ctx, fc, fmt.Errorf("%w: expected basic, integration uses %s", ErrUnsupportedAuthScheme, fc.integration.AuthScheme), nil)
	}
	if username == "" {
		return nil, s.fail(ctx, fc, fmt.Errorf("%w: username is empty", ErrCredentialsMissing), nil)
	}

	return s.finishFlow(ctx, fc, BasicCredentials(username, password), nil, "Connection created with basic credentials")
}

// SubmitServiceAccount finishes a service_account flow with provider-shaped
// key material.
func (s *Service) SubmitServiceAccount(ctx context.Context, tokenID uuid.UUID, key map[string]any) (*CallbackResult, error) {
	ctx, span := tracing.StartSpan(ctx, "AuthService.SubmitServiceAccount")
	defer span.End()

	ctx, fc, ferr := s.loadFlowContext(ctx, tokenID)
	if ferr != nil {
		return nil, ferr
	}
	if fc.integration.AuthScheme != models.AuthSchemeServiceAccount {
		return nil, s.fail(ctx, fc, fmt.Errorf("%w: expected service_account, integration uses %s", ErrUnsupportedAuthScheme, fc.integration.AuthScheme), nil)
	}
	if len(key) == 0 {
		return nil, s.fail(ctx, fc, fmt.Errorf("%w: service account key is empty", ErrCredentialsMissing), nil)
	}

	return s.finishFlow(ctx, fc, ServiceAccountCredentials(key), nil, "Connection created with service account credentials")
}

// loadFlowContext resolves everything a flow step needs from the token id
// and scopes the context to the handshake's environment. The token is looked
// up unscoped because redirect endpoints carry no authenticated environment.
func (s *Service) loadFlowContext(ctx context.Context, tokenID uuid.UUID) (context.Context, *flowContext, *FlowError) {
	token, err := s.tokens.GetByIDUnscoped(ctx, tokenID)
	if err != nil || token == nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connect_token_id": tokenID,
		}).Error("failed to load connect token")
		return ctx, nil, newFlowError(ErrTokenInvalid, "", "")
	}

	ctx = appctx.SetEnvironmentID(ctx, token.EnvironmentID.String())

	fc := &flowContext{
		token:      token,
		activityID: s.activities.FindByConnectToken(ctx, token.ID),
		startedAt:  time.Now(),
	}
	if token.WebsocketClientID != nil {
		fc.wsClientID = *token.WebsocketClientID
	}
	if token.RedirectURL != nil {
		fc.redirectURL = *token.RedirectURL
	}

	if token.Expired(time.Now()) {
		return ctx, nil, s.fail(ctx, fc, ErrTokenExpired, nil)
	}

	integration, err := s.integrations.GetByIDUnscoped(ctx, token.IntegrationID)
	if err != nil || integration == nil {
		return ctx, nil, s.fail(ctx, fc, fmt.Errorf("failed to load integration %s: %w", token.IntegrationID, err), nil)
	}
	fc.integration = integration

	if !integration.IsEnabled {
		return ctx, nil, s.fail(ctx, fc, ErrIntegrationDisabled, nil)
	}

	spec, err := s.specs.GetSpec(ctx, integration.ProviderKey)
	if err != nil || spec == nil {
		return ctx, nil, s.fail(ctx, fc, fmt.Errorf("failed to load provider spec %s: %w", integration.ProviderKey, err), nil)
	}
	fc.spec = spec

	return ctx, fc, nil
}

func (s *Service) oauth2Authorize(ctx context.Context, fc *flowContext) (string, error) {
	authSpec := &fc.spec.Auth
	configuration := stringConfiguration(fc.token.Configuration.Data)

	if len(ExtractConfigurationKeys(authSpec.AuthorizationURL)) > 0 || len(ExtractConfigurationKeys(authSpec.TokenURL)) > 0 {
		if MissesInterpolationParam(authSpec.AuthorizationURL, configuration) ||
			MissesInterpolationParam(authSpec.TokenURL, configuration) {
			return "", s.fail(ctx, fc, ErrMissingConfiguration, map[string]any{
				"authorization_url": authSpec.AuthorizationURL,
				"token_url":         authSpec.TokenURL,
				"configuration":     fc.token.Configuration.Data,
			})
		}
	}

	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return "", s.fail(ctx, fc, err, nil)
	}
	fc.token.CodeVerifier = &verifier
	if err := s.tokens.Update(ctx, fc.token); err != nil {
		return "", s.fail(ctx, fc, fmt.Errorf("failed to persist code verifier: %w", err), nil)
	}

	scope, ferr := s.resolveScope(ctx, fc)
	if ferr != nil {
		return "", ferr
	}

	authorizationURL, err := BuildAuthorizationURL(
		fc.integration, authSpec, configuration,
		s.config.CallbackURL, scope, fc.token.ID.String(), verifier,
	)
	if err != nil {
		return "", s.fail(ctx, fc, err, nil)
	}

	s.activities.Log(ctx, fc.activityID, models.LogLevelInfo,
		"Redirecting to OAuth authorization URL", map[string]any{"authorization_url": authorizationURL})

	return authorizationURL, nil
}

func (s *Service) oauth1Authorize(ctx context.Context, fc *flowContext) (string, error) {
	authSpec := &fc.spec.Auth

	callbackURL := s.config.CallbackURL + "?" + url.Values{"state": {fc.token.ID.String()}}.Encode()
	requestToken, err := OAuth1RequestTokenStep(s.config.HTTPClient, fc.integration, authSpec, callbackURL)
	if err != nil {
		return "", s.fail(ctx, fc, err, nil)
	}

	fc.token.RequestTokenSecret = &requestToken.Secret
	if err := s.tokens.Update(ctx, fc.token); err != nil {
		return "", s.fail(ctx, fc, fmt.Errorf("failed to persist request token secret: %w", err), nil)
	}

	scope, ferr := s.resolveScope(ctx, fc)
	if ferr != nil {
		return "", ferr
	}

	authorizationURL, err := OAuth1AuthorizationURL(fc.integration, authSpec, requestToken.Token, scope)
	if err != nil {
		return "", s.fail(ctx, fc, err, nil)
	}

	s.activities.Log(ctx, fc.activityID, models.LogLevelInfo,
		"Redirecting to OAuth authorization URL", map[string]any{"authorization_url": authorizationURL})

	return authorizationURL, nil
}

func (s *Service) oauth2Callback(ctx context.Context, fc *flowContext, query url.Values) (*CallbackResult, error) {
	authSpec := &fc.spec.Auth

	code := query.Get("code")
	if code == "" {
		return nil, s.fail(ctx, fc, fmt.Errorf("%w: missing code parameter", ErrTokenExchangeFailed), nil)
	}
	if fc.token.CodeVerifier == nil {
		return nil, s.fail(ctx, fc, fmt.Errorf("%w: handshake has no code verifier", ErrTokenInvalid), nil)
	}

	configuration := stringConfiguration(fc.token.Configuration.Data)
	callbackMetadata := MetadataFromCallback(query, authSpec)

	raw, err := ExchangeCode(ctx, s.config.HTTPClient, fc.integration, authSpec, configuration,
		s.config.CallbackURL, code, *fc.token.CodeVerifier)
	if err != nil {
		metrics.RecordTokenExchange(fc.integration.ID.String(), "error")
		return nil, s.fail(ctx, fc, err, nil)
	}
	metrics.RecordTokenExchange(fc.integration.ID.String(), "success")

	credentials, err := ParseOAuth2Credentials(raw)
	if err != nil {
		return nil, s.fail(ctx, fc, err, nil)
	}

	tokenMetadata := MetadataFromTokenResponse(raw, authSpec)
	extra := mergeMetadata(tokenMetadata, callbackMetadata)

	return s.finishFlow(ctx, fc, credentials, extra, "Connection created with OAuth2 credentials")
}

func (s *Service) oauth1Callback(ctx context.Context, fc *flowContext, query url.Values) (*CallbackResult, error) {
	authSpec := &fc.spec.Auth

	oauthToken := query.Get("oauth_token")
	oauthVerifier := query.Get("oauth_verifier")
	if oauthToken == "" || oauthVerifier == "" {
		return nil, s.fail(ctx, fc, fmt.Errorf("%w: missing oauth_token or oauth_verifier", ErrTokenExchangeFailed), nil)
	}
	if fc.token.RequestTokenSecret == nil {
		return nil, s.fail(ctx, fc, fmt.Errorf("%w: handshake has no request token secret", ErrTokenInvalid), nil)
	}

	callbackMetadata := MetadataFromCallback(query, authSpec)

	credentials, err := OAuth1AccessToken(s.config.HTTPClient, fc.integration, authSpec, oauthToken, *fc.token.RequestTokenSecret, oauthVerifier)
	if err != nil {
		metrics.RecordTokenExchange(fc.integration.ID.String(), "error")
		return nil, s.fail(ctx, fc, err, nil)
	}
	metrics.RecordTokenExchange(fc.integration.ID.String(), "success")

	return s.finishFlow(ctx, fc, credentials, callbackMetadata, "Connection created with OAuth1 credentials")
}

// finishFlow upserts the connection, retires the handshake, and reports the
// outcome. Reconnects reuse the token's connection id; fresh flows mint one.
func (s *Service) finishFlow(
	ctx context.Context,
	fc *flowContext,
	credentials map[string]any,
	extraConfiguration map[string]any,
	successMessage string,
) (*CallbackResult, error) {
	connectionID := uuid.New()
	if fc.token.ConnectionID != nil {
		connectionID = *fc.token.ConnectionID
	}

	configuration := mergeMetadata(fc.token.Configuration.Data, extraConfiguration)

	connection := &models.Connection{
		ID:            connectionID,
		EnvironmentID: fc.token.EnvironmentID,
		IntegrationID: fc.integration.ID,
		AuthScheme:    fc.integration.AuthScheme,
		Credentials:   database.NewJSONB(credentials),
		Configuration: database.NewJSONB(configuration),
		Inclusions:    fc.token.Inclusions,
		Exclusions:    fc.token.Exclusions,
		Metadata:      fc.token.Metadata,
	}

	action, err := s.connections.Upsert(ctx, connection, fc.activityID)
	if err != nil {
		return nil, s.fail(ctx, fc, fmt.Errorf("failed to upsert connection: %w", err), nil)
	}

	s.activities.Log(ctx, fc.activityID, models.LogLevelInfo, successMessage, nil)

	if err := s.tokens.Delete(ctx, fc.token.ID); err != nil {
		// The connection is durable; a leftover token only wastes a row
		// until it expires.
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connect_token_id": fc.token.ID,
		}).Warn("failed to delete connect token after flow completion")
	}

	metrics.RecordAuthFlow(
		fc.token.EnvironmentID.String(),
		fc.integration.ID.String(),
		string(fc.integration.AuthScheme),
		"success",
		time.Since(fc.startedAt).Seconds(),
	)

	return &CallbackResult{
		ConnectionID: connectionID,
		Action:       action,
		WSClientID:   fc.wsClientID,
		RedirectURL:  fc.redirectURL,
	}, nil
}

// resolveScope computes and renders the scope set for an OAuth request
func (s *Service) resolveScope(ctx context.Context, fc *flowContext) (string, *FlowError) {
	collections, err := s.collections.ListEnabledByIntegration(ctx, fc.integration.ID)
	if err != nil {
		return "", s.fail(ctx, fc, fmt.Errorf("failed to list collections: %w", err), nil)
	}
	actions, err := s.actions.ListEnabledByIntegration(ctx, fc.integration.ID)
	if err != nil {
		return "", s.fail(ctx, fc, fmt.Errorf("failed to list actions: %w", err), nil)
	}

	scopes := ResolveScopes(fc.integration, fc.spec, collections, actions)
	return JoinScopes(scopes, fc.spec.Auth.ScopeSeparator), nil
}

func (s *Service) credentialFormURL(fc *flowContext) string {
	return fmt.Sprintf("%s/%s/%s", s.config.CredentialFormURL, fc.integration.AuthScheme, fc.token.ID)
}

// fail is the single translation boundary between internal failures and
// client-facing errors: full detail goes to the log and the activity trail,
// the caller gets only the sanitized message.
func (s *Service) fail(ctx context.Context, fc *flowContext, err error, payload map[string]any) *FlowError {
	fields := map[string]any{
		"connect_token_id": fc.token.ID,
	}
	if fc.integration != nil {
		fields["integration_id"] = fc.integration.ID
	}
	s.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("authorization flow failed")

	ferr := newFlowError(err, fc.wsClientID, fc.redirectURL)
	s.activities.Log(ctx, fc.activityID, models.LogLevelError, ferr.Message, payload)

	scheme := ""
	integrationID := ""
	if fc.integration != nil {
		scheme = string(fc.integration.AuthScheme)
		integrationID = fc.integration.ID.String()
	}
	metrics.RecordAuthFlow(
		fc.token.EnvironmentID.String(), integrationID, scheme, "error",
		time.Since(fc.startedAt).Seconds(),
	)

	return ferr
}

// mergeMetadata overlays extra keys onto a base map without mutating either
func mergeMetadata(base, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}
