// Package person persists canonical person records with the same
// tombstone-aware lookup surface as the company repository.
package person

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

var columns = []string{"id", "tenant_id", "first_name", "last_name", "normalized_name", "email", "linkedin_url", "company_id", "data_quality", "merged_into", "merged_at", "created_at", "updated_at"}

// Repository handles person persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new person repository
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

// Create creates a new person
func (r *Repository) Create(ctx context.Context, person *models.Person) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Create")
	defer span.End()

	if person.ID == "" {
		person.ID = uuid.New().String()
	}
	person.CreatedAt = time.Now().UTC()
	person.UpdatedAt = person.CreatedAt
	if person.DataQuality == "" {
		person.DataQuality = models.DataQualityProvisional
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("people")
	sb.Cols(columns...)
	sb.Values(person.ID, person.TenantID, person.FirstName, person.LastName, person.NormalizedName, person.Email, person.LinkedInURL, person.CompanyID, person.DataQuality, person.MergedInto, person.MergedAt, person.CreatedAt, person.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": person.ID}).Error("Failed to create person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create person")
	}

	return person, nil
}

// Get retrieves a person by ID, tombstoned or not
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("people")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("person %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get person")
	}

	return &person, nil
}

// FindLiveByEmail finds a live person by exact email. Returns nil when there
// is none. Emails are stored lowercased, so the caller normalizes first.
func (r *Repository) FindLiveByEmail(ctx context.Context, tenantID string, email string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindLiveByEmail")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("people")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("email", email),
		sb.IsNull("merged_into"),
	)
	sb.Limit(1)

	return r.findOne(ctx, sb)
}

// FindLiveByLinkedInURL finds a live person by LinkedIn URL. Returns nil when
// there is none.
func (r *Repository) FindLiveByLinkedInURL(ctx context.Context, tenantID string, linkedInURL string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindLiveByLinkedInURL")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("people")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("linkedin_url", linkedInURL),
		sb.IsNull("merged_into"),
	)
	sb.Limit(1)

	return r.findOne(ctx, sb)
}

// ListLiveByNormalizedName returns all live people sharing a normalized name.
// Several people can legitimately share one; disambiguation is the matcher's
// job.
func (r *Repository) ListLiveByNormalizedName(ctx context.Context, tenantID string, normalizedName string) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.ListLiveByNormalizedName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("people")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("normalized_name", normalizedName),
		sb.IsNull("merged_into"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var people []models.Person
	if err := r.db.SelectContext(ctx, &people, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list people by normalized name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list people")
	}

	return people, nil
}

// ListLive returns every live person for the tenant, for batch scanning.
func (r *Repository) ListLive(ctx context.Context, tenantID string) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.ListLive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("people")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("merged_into"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var people []models.Person
	if err := r.db.SelectContext(ctx, &people, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list live people")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list people")
	}

	return people, nil
}

// LockLive takes a row lock on a live person for the duration of the current
// transaction. A conflict means a concurrent merge tombstoned the person
// between the caller's precondition check and its transaction.
func (r *Repository) LockLive(ctx context.Context, tenantID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.LockLive")
	defer span.End()

	query := `
		SELECT id FROM people
		WHERE id = $1
		AND tenant_id = $2
		AND merged_into IS NULL
		FOR UPDATE
	`

	var locked string
	if err := r.db.GetContext(ctx, &locked, query, id, tenantID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("person %s is already merged", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": id}).Error("Failed to lock person")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock person")
	}

	return nil
}

// Tombstone marks a person as merged into another. Zero rows affected means a
// concurrent merge won the race; the caller must treat that as a conflict.
func (r *Repository) Tombstone(ctx context.Context, tenantID string, id string, mergedInto string, mergedAt time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Tombstone")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("people")
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
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": id}).Error("Failed to tombstone person")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to tombstone person")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("person %s is already merged", id))
	}

	return nil
}

func (r *Repository) findOne(ctx context.Context, sb *sqlbuilder.SelectBuilder) (*models.Person, error) {
	query, args := sb.Build()
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find person")
	}
	return &person, nil
}
