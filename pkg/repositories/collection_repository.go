package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

const collectionsTable = "collections"

var collectionStruct = database.NewStruct(new(models.Collection))

// CollectionRepository handles database operations for collections
type CollectionRepository struct {
	*Repository
}

// NewCollectionRepository creates a new collection repository
func NewCollectionRepository(db database.DB, logger ectologger.Logger) *CollectionRepository {
	return &CollectionRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetByKey retrieves a collection by integration and unique key
func (r *CollectionRepository) GetByKey(ctx context.Context, integrationID uuid.UUID, uniqueKey string) (*models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepository.GetByKey")
	defer span.End()

	sb := collectionStruct.SelectFrom(collectionsTable)
	sb.Where(sb.Equal("integration_id", integrationID), sb.Equal("unique_key", uniqueKey), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	var collection models.Collection
	err := r.DB().GetContext(ctx, &collection, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "collection '%s' does not exist", uniqueKey)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": integrationID,
			"collection_key": uniqueKey,
		}).Error("failed to get collection by key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get collection by key")
	}

	return &collection, nil
}

// ListByIntegration retrieves all collections for an integration
func (r *CollectionRepository) ListByIntegration(ctx context.Context, integrationID uuid.UUID) ([]models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepository.ListByIntegration")
	defer span.End()

	sb := collectionStruct.SelectFrom(collectionsTable)
	sb.Where(sb.Equal("integration_id", integrationID), sb.IsNull("deleted_at"))
	sb.OrderBy("unique_key")

	query, args := sb.Build()
	var collections []models.Collection
	err := r.DB().SelectContext(ctx, &collections, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": integrationID,
		}).Error("failed to list collections")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list collections")
	}

	return collections, nil
}

// ListEnabledByIntegration retrieves the enabled collections for an integration
func (r *CollectionRepository) ListEnabledByIntegration(ctx context.Context, integrationID uuid.UUID) ([]models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepository.ListEnabledByIntegration")
	defer span.End()

	sb := collectionStruct.SelectFrom(collectionsTable)
	sb.Where(sb.Equal("integration_id", integrationID), sb.Equal("is_enabled", true), sb.IsNull("deleted_at"))
	sb.OrderBy("unique_key")

	query, args := sb.Build()
	var collections []models.Collection
	err := r.DB().SelectContext(ctx, &collections, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": integrationID,
		}).Error("failed to list enabled collections")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list enabled collections")
	}

	return collections, nil
}
