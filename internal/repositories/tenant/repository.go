// Package tenant enumerates the tenants known to the service. There is no
// tenants table; a tenant exists once it owns at least one entity.
package tenant

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Repository lists tenant IDs for cross-tenant jobs
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new tenant repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListIDs returns every tenant that owns at least one company or person.
func (r *Repository) ListIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "tenant.Repository.ListIDs")
	defer span.End()

	query := `
		SELECT tenant_id FROM companies
		UNION
		SELECT tenant_id FROM people
		ORDER BY tenant_id`

	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list tenant ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list tenants")
	}

	return ids, nil
}
