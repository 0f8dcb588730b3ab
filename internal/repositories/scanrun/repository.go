// Package scanrun records duplicate detection passes so operators can watch
// the quadratic scan cost grow with tenant size.
package scanrun

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

// Repository handles scan run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new scan run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Start records the beginning of a detection pass.
func (r *Repository) Start(ctx context.Context, tenantID string) (*models.ScanRun, error) {
	ctx, span := tracing.StartSpan(ctx, "scanrun.Repository.Start")
	defer span.End()

	run := &models.ScanRun{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Status:    models.ScanRunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("scan_runs")
	sb.Cols("id", "tenant_id", "status", "started_at")
	sb.Values(run.ID, run.TenantID, run.Status, run.StartedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to start scan run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start scan run")
	}

	return run, nil
}

// Finish records the outcome of a detection pass.
func (r *Repository) Finish(ctx context.Context, run *models.ScanRun) error {
	ctx, span := tracing.StartSpan(ctx, "scanrun.Repository.Finish")
	defer span.End()

	now := time.Now().UTC()
	run.CompletedAt = &now

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("scan_runs")
	sb.Set(
		sb.Assign("companies_scanned", run.CompaniesScanned),
		sb.Assign("people_scanned", run.PeopleScanned),
		sb.Assign("pairs_compared", run.PairsCompared),
		sb.Assign("candidates_found", run.CandidatesFound),
		sb.Assign("candidates_inserted", run.CandidatesInserted),
		sb.Assign("status", run.Status),
		sb.Assign("error", run.Error),
		sb.Assign("completed_at", run.CompletedAt),
	)
	sb.Where(
		sb.Equal("id", run.ID),
		sb.Equal("tenant_id", run.TenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Failed to finish scan run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish scan run")
	}

	return nil
}
