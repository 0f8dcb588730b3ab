// Package companydomain persists verified domain ownership. A domain maps to
// exactly one company; a company may own several domains.
package companydomain

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var columns = []string{"id", "tenant_id", "company_id", "domain", "verified", "created_at"}

// Repository handles company domain persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new company domain repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create records a domain as owned by a company. The unique index on
// (tenant_id, domain) rejects a second owner.
func (r *Repository) Create(ctx context.Context, domain *models.CompanyDomain) (*models.CompanyDomain, error) {
	ctx, span := tracing.StartSpan(ctx, "companydomain.Repository.Create")
	defer span.End()

	if domain.ID == "" {
		domain.ID = uuid.New().String()
	}
	domain.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("company_domains")
	sb.Cols(columns...)
	sb.Values(domain.ID, domain.TenantID, domain.CompanyID, domain.Domain, domain.Verified, domain.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"domain": domain.Domain}).Error("Failed to create company domain")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create company domain")
	}

	return domain, nil
}

// ListByTenant returns every domain record for the tenant. The batch scanner
// groups them by company to find shared-domain pairs.
func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]models.CompanyDomain, error) {
	ctx, span := tracing.StartSpan(ctx, "companydomain.Repository.ListByTenant")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("company_domains")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("domain ASC")

	query, args := sb.Build()
	var records []models.CompanyDomain
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list company domains")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list company domains")
	}

	return records, nil
}
