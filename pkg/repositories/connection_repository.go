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

const connectionsTable = "connections"

var connectionStruct = database.NewStruct(new(models.Connection))

// ConnectionRepository handles database operations for connections
type ConnectionRepository struct {
	*Repository
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db database.DB, logger ectologger.Logger) *ConnectionRepository {
	return &ConnectionRepository{
		Repository: NewRepository(db, logger),
	}
}

// Upsert atomically creates or updates a connection keyed by id within its
// environment. Concurrent upserts for the same id serialize at the database:
// first writer wins on created_at, last writer wins on the mutable fields.
// The returned action reports whether the row was created or updated.
func (r *ConnectionRepository) Upsert(ctx context.Context, connection *models.Connection) (models.UpsertAction, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.Upsert")
	defer span.End()

	if connection.ID == uuid.Nil {
		connection.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(connectionsTable).
		Cols("id", "environment_id", "integration_id", "auth_scheme", "credentials", "configuration",
			"inclusions", "exclusions", "metadata", "created_at", "updated_at").
		Values(connection.ID, connection.EnvironmentID, connection.IntegrationID, connection.AuthScheme,
			connection.Credentials, connection.Configuration, connection.Inclusions,
			connection.Exclusions, connection.Metadata,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"))

	ub := ib.OnConflict("id", "environment_id")
	ub.Set(
		ub.Assign("auth_scheme", database.Excluded("auth_scheme")),
		ub.Assign("credentials", database.Excluded("credentials")),
		ub.Assign("configuration", database.Excluded("configuration")),
		ub.Assign("inclusions", database.Excluded("inclusions")),
		ub.Assign("exclusions", database.Excluded("exclusions")),
		ub.Assign("metadata", database.Excluded("metadata")),
		ub.Assign("deleted_at", nil),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ib.Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&connection.CreatedAt, &connection.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id":  connection.ID,
			"integration_id": connection.IntegrationID,
		}).Error("failed to upsert connection")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert connection")
	}

	// created_at and updated_at are set from the same NOW() on insert, so a
	// fresh row always has identical timestamps
	action := models.UpsertActionUpdated
	if connection.CreatedAt.Equal(connection.UpdatedAt) {
		action = models.UpsertActionCreated
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"connection_id": connection.ID,
		"action":        action,
	}).Debugf("Upserted %s", connectionsTable)
	return action, nil
}

// GetByID retrieves a live connection by ID (environment-scoped)
func (r *ConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.GetByID")
	defer span.End()

	environmentID, err := GetEnvironmentID(ctx)
	if err != nil {
		return nil, err
	}

	sb := connectionStruct.SelectFrom(connectionsTable)
	sb.Where(sb.Equal("environment_id", environmentID), sb.Equal("id", id), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	var connection models.Connection
	err = r.DB().GetContext(ctx, &connection, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "connection %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": id,
		}).Error("failed to get connection by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get connection by ID")
	}

	return &connection, nil
}

// List retrieves all live connections for the current environment, optionally
// filtered by integration
func (r *ConnectionRepository) List(ctx context.Context, integrationID *uuid.UUID) ([]models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.List")
	defer span.End()

	environmentID, err := GetEnvironmentID(ctx)
	if err != nil {
		return nil, err
	}

	sb := connectionStruct.SelectFrom(connectionsTable)
	sb.Where(sb.Equal("environment_id", environmentID), sb.IsNull("deleted_at"))
	if integrationID != nil {
		sb.Where(sb.Equal("integration_id", *integrationID))
	}
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	var connections []models.Connection
	err = r.DB().SelectContext(ctx, &connections, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list connections")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list connections")
	}

	return connections, nil
}

// Delete soft-deletes a connection by ID (environment-scoped)
func (r *ConnectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectionRepository.Delete")
	defer span.End()

	environmentID, err := GetEnvironmentID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(connectionsTable).
		Set(
			ub.Assign("deleted_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("environment_id", environmentID), ub.Equal("id", id), ub.IsNull("deleted_at"))
	ub.SQL("RETURNING id")

	query, args := ub.Build()
	var deletedID uuid.UUID
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&deletedID)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "connection %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id": id,
		}).Error("failed to delete connection")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete connection")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"connection_id": id,
	}).Debugf("Deleted %s", connectionsTable)
	return nil
}
