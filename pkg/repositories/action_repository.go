package repositories

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

const actionsTable = "actions"

var actionStruct = database.NewStruct(new(models.Action))

// ActionRepository handles database operations for actions
type ActionRepository struct {
	*Repository
}

// NewActionRepository creates a new action repository
func NewActionRepository(db database.DB, logger ectologger.Logger) *ActionRepository {
	return &ActionRepository{
		Repository: NewRepository(db, logger),
	}
}

// ListEnabledByIntegration retrieves the enabled actions for an integration
func (r *ActionRepository) ListEnabledByIntegration(ctx context.Context, integrationID uuid.UUID) ([]models.Action, error) {
	ctx, span := tracing.StartSpan(ctx, "ActionRepository.ListEnabledByIntegration")
	defer span.End()

	sb := actionStruct.SelectFrom(actionsTable)
	sb.Where(sb.Equal("integration_id", integrationID), sb.Equal("is_enabled", true), sb.IsNull("deleted_at"))
	sb.OrderBy("unique_key")

	query, args := sb.Build()
	var actions []models.Action
	err := r.DB().SelectContext(ctx, &actions, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"integration_id": integrationID,
		}).Error("failed to list enabled actions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list enabled actions")
	}

	return actions, nil
}
