// Package company persists canonical company records. Lookups used for
// matching are tombstone-aware: a company with merged_into set never comes
// back from the FindLive*/ScanLive*/ListLive methods.
package company

import (
	"context"
	"fmt"
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

var columns = []string{"id", "tenant_id", "name", "normalized_name", "website", "linkedin_url", "data_quality", "merged_into", "merged_at", "created_at", "updated_at"}

// Repository handles company persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new company repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the database handle so callers can open transactions.
func (r *Repository) DB() database.DB {
	return r.db
}

// Create creates a new company
func (r *Repository) Create(ctx context.Context, company *models.Company) (*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Create")
	defer span.End()

	if company.ID == "" {
		company.ID = uuid.New().String()
	}
	company.CreatedAt = time.Now().UTC()
	company.UpdatedAt = company.CreatedAt
	if company.DataQuality == "" {
		company.DataQuality = models.DataQualityProvisional
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("companies")
	sb.Cols(columns...)
	sb.Values(company.ID, company.TenantID, company.Name, company.NormalizedName, company.Website, company.LinkedInURL, company.DataQuality, company.MergedInto, company.MergedAt, company.CreatedAt, company.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"company_id": company.ID}).Error("Failed to create company")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create company")
	}

	return company, nil
}

// Get retrieves a company by ID, tombstoned or not
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("companies")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var company models.Company
	if err := r.db.GetContext(ctx, &company, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("company %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get company")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get company")
	}

	return &company, nil
}

// FindLiveByNormalizedName finds a live company with an exactly matching
// normalized name. Returns nil when there is none.
func (r *Repository) FindLiveByNormalizedName(ctx context.Context, tenantID string, normalizedName string) (*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.FindLiveByNormalizedName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("companies")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("normalized_name", normalizedName),
		sb.IsNull("merged_into"),
	)
	sb.Limit(1)

	return r.findOne(ctx, sb)
}

// FindLiveByLinkedInURL finds a live company by its LinkedIn URL. Returns nil
// when there is none.
func (r *Repository) FindLiveByLinkedInURL(ctx context.Context, tenantID string, linkedInURL string) (*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.FindLiveByLinkedInURL")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("companies")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("linkedin_url", linkedInURL),
		sb.IsNull("merged_into"),
	)
	sb.Limit(1)

	return r.findOne(ctx, sb)
}

// FindLiveByDomain finds the live company that owns a verified domain.
// Returns nil when no company owns it.
func (r *Repository) FindLiveByDomain(ctx context.Context, tenantID string, domain string) (*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.FindLiveByDomain")
	defer span.End()

	query := `
		SELECT c.id, c.tenant_id, c.name, c.normalized_name, c.website, c.linkedin_url, c.data_quality, c.merged_into, c.merged_at, c.created_at, c.updated_at
		FROM companies c
		JOIN company_domains d ON d.company_id = c.id AND d.tenant_id = c.tenant_id
		WHERE c.tenant_id = $1
		AND d.domain = $2
		AND c.merged_into IS NULL
		LIMIT 1
	`

	var company models.Company
	if err := r.db.GetContext(ctx, &company, query, tenantID, domain); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find company by domain")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find company by domain")
	}

	return &company, nil
}

// ScanLiveByNamePrefix returns live companies whose normalized name starts
// with the given prefix, capped at limit rows. Used as the cheap pre-filter
// for fuzzy name matching.
func (r *Repository) ScanLiveByNamePrefix(ctx context.Context, tenantID string, prefix string, limit int) ([]models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.ScanLiveByNamePrefix")
	defer span.End()

	if limit < 1 || limit > 100 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("companies")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Like("normalized_name", likePrefix(prefix)),
		sb.IsNull("merged_into"),
	)
	sb.OrderBy("normalized_name ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var companies []models.Company
	if err := r.db.SelectContext(ctx, &companies, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to scan companies by name prefix")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to scan companies")
	}

	return companies, nil
}

// ListLive returns every live company for the tenant. The batch duplicate
// scanner is the only caller; it holds the full set in memory.
func (r *Repository) ListLive(ctx context.Context, tenantID string) ([]models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.ListLive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("companies")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("merged_into"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var companies []models.Company
	if err := r.db.SelectContext(ctx, &companies, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list live companies")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list companies")
	}

	return companies, nil
}

// LockLive takes a row lock on a live company for the duration of the
// current transaction. A conflict means a concurrent merge tombstoned the
// company between the caller's precondition check and its transaction.
func (r *Repository) LockLive(ctx context.Context, tenantID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.LockLive")
	defer span.End()

	query := `
		SELECT id FROM companies
		WHERE id = $1
		AND tenant_id = $2
		AND merged_into IS NULL
		FOR UPDATE
	`

	var locked string
	if err := r.db.GetContext(ctx, &locked, query, id, tenantID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("company %s is already merged", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"company_id": id}).Error("Failed to lock company")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock company")
	}

	return nil
}

// Tombstone marks a company as merged into another. The merged_into IS NULL
// guard makes the call safe against concurrent merges: zero rows affected
// means someone else tombstoned it first.
func (r *Repository) Tombstone(ctx context.Context, tenantID string, id string, mergedInto string, mergedAt time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Tombstone")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("companies")
	sb.Set(
		sb.Assign("merged_into", mergedInto),
		sb.Assign("merged_at", mergedAt),
		sb.Assign("updated_at", mergedAt),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("merged_into"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"company_id": id}).Error("Failed to tombstone company")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to tombstone company")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("company %s is already merged", id))
	}

	return nil
}

func (r *Repository) findOne(ctx context.Context, sb *sqlbuilder.SelectBuilder) (*models.Company, error) {
	query, args := sb.Build()
	var company models.Company
	if err := r.db.GetContext(ctx, &company, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find company")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find company")
	}
	return &company, nil
}

// likePrefix escapes LIKE wildcards in the prefix and appends the trailing %.
func likePrefix(prefix string) string {
	escaped := make([]rune, 0, len(prefix)+1)
	for _, r := range prefix {
		if r == '%' || r == '_' || r == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, r)
	}
	return string(escaped) + "%"
}
