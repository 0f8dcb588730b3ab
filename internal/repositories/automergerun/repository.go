// Package automergerun records auto-merge policy runs. One row per run,
// written regardless of outcome.
package automergerun

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

// Repository handles auto-merge run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new auto-merge run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends the summary record for one policy run.
func (r *Repository) Create(ctx context.Context, run *models.AutoMergeRun) (*models.AutoMergeRun, error) {
	ctx, span := tracing.StartSpan(ctx, "automergerun.Repository.Create")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.CompletedAt == nil {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("auto_merge_runs")
	sb.Cols("id", "tenant_id", "examined", "merged", "skipped", "errored", "dry_run", "started_at", "completed_at")
	sb.Values(run.ID, run.TenantID, run.Examined, run.Merged, run.Skipped, run.Errored, run.DryRun, run.StartedAt, run.CompletedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create auto-merge run record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create auto-merge run record")
	}

	return run, nil
}
