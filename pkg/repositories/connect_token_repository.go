package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

const connectTokensTable = "connect_tokens"

var connectTokenStruct = database.NewStruct(new(models.ConnectToken))

// ConnectTokenRepository handles database operations for connect tokens
type ConnectTokenRepository struct {
	*Repository
}

// NewConnectTokenRepository creates a new connect token repository
func NewConnectTokenRepository(db database.DB, logger ectologger.Logger) *ConnectTokenRepository {
	return &ConnectTokenRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new connect token
func (r *ConnectTokenRepository) Create(ctx context.Context, token *models.ConnectToken) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectTokenRepository.Create")
	defer span.End()

	environmentID, err := GetEnvironmentID(ctx)
	if err != nil {
		return err
	}
	token.EnvironmentID = environmentID

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(connectTokensTable).
		Cols("id", "environment_id", "integration_id", "connection_id", "expires_at", "configuration",
			"inclusions", "exclusions", "metadata", "websocket_client_id", "redirect_url",
			"prefers_dark_mode", "created_at", "updated_at").
		Values(token.ID, token.EnvironmentID, token.IntegrationID, token.ConnectionID, token.ExpiresAt,
			token.Configuration, token.Inclusions, token.Exclusions, token.Metadata,
			token.WebsocketClientID, token.RedirectURL, token.PrefersDarkMode,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connect_token_id": token.ID,
		}).Error("failed to create connect token")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create connect token")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"connect_token_id": token.ID,
	}).Debugf("Created %s", connectTokensTable)
	return nil
}

// GetByID retrieves a live connect token by ID (environment-scoped).
// Deleted tokens are never returned; expiry is the caller's check.
func (r *ConnectTokenRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ConnectToken, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectTokenRepository.GetByID")
	defer span.End()

	environmentID, err := GetEnvironmentID(ctx)
	if err != nil {
		return nil, err
	}

	sb := connectTokenStruct.SelectFrom(connectTokensTable)
	sb.Where(sb.Equal("environment_id", environmentID), sb.Equal("id", id), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	var token models.ConnectToken
	err = r.DB().GetContext(ctx, &token, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "connect token %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connect_token_id": id,
		}).Error("failed to get connect token by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get connect token by ID")
	}

	return &token, nil
}

// GetByIDUnscoped retrieves a live connect token by ID without requiring an
// environment on the context. Provider callbacks arrive with no session, so
// the token id itself is the only correlation handle.
func (r *ConnectTokenRepository) GetByIDUnscoped(ctx context.Context, id uuid.UUID) (*models.ConnectToken, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectTokenRepository.GetByIDUnscoped")
	defer span.End()

	sb := connectTokenStruct.SelectFrom(connectTokensTable)
	sb.Where(sb.Equal("id", id), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	var token models.ConnectToken
	err := r.DB().GetContext(ctx, &token, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "connect token %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connect_token_id": id,
		}).Error("failed to get connect token by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get connect token by ID")
	}

	return &token, nil
}

// Update persists the mutable handshake fields (client/redirect context,
// PKCE verifier, OAuth1 request-token secret, configuration)
func (r *ConnectTokenRepository) Update(ctx context.Context, token *models.ConnectToken) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectTokenRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(connectTokensTable).
		Set(
			ub.Assign("connection_id", token.ConnectionID),
			ub.Assign("configuration", token.Configuration),
			ub.Assign("inclusions", token.Inclusions),
			ub.Assign("exclusions", token.Exclusions),
			ub.Assign("metadata", token.Metadata),
			ub.Assign("code_verifier", token.CodeVerifier),
			ub.Assign("request_token_secret", token.RequestTokenSecret),
			ub.Assign("websocket_client_id", token.WebsocketClientID),
			ub.Assign("redirect_url", token.RedirectURL),
			ub.Assign("prefers_dark_mode", token.PrefersDarkMode),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("environment_id", token.EnvironmentID), ub.Equal("id", token.ID), ub.IsNull("deleted_at"))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&token.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "connect token %s does not exist", token.ID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connect_token_id": token.ID,
		}).Error("failed to update connect token")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update connect token")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"connect_token_id": token.ID,
	}).Debugf("Updated %s", connectTokensTable)
	return nil
}

// Delete soft-deletes a connect token. Tokens are single-use: deletion is
// the final step of a successful handshake and is idempotent.
func (r *ConnectTokenRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectTokenRepository.Delete")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(connectTokensTable).
		Set(
			ub.Assign("deleted_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id), ub.IsNull("deleted_at"))

	query, args := ub.Build()
	_, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connect_token_id": id,
		}).Error("failed to delete connect token")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete connect token")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"connect_token_id": id,
	}).Debugf("Deleted %s", connectTokensTable)
	return nil
}
