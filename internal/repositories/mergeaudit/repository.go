// Package mergeaudit persists the append-only record of completed merges.
// Rows are never updated or deleted.
package mergeaudit

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

var columns = []string{"id", "tenant_id", "entity_kind", "primary_id", "absorbed_ids", "performed_by", "performed_at"}

// Repository handles merge audit persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge audit repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends one audit record. Runs inside the merge transaction when the
// caller's context carries one.
func (r *Repository) Create(ctx context.Context, audit *models.MergeAudit) (*models.MergeAudit, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeaudit.Repository.Create")
	defer span.End()

	if audit.ID == "" {
		audit.ID = uuid.New().String()
	}
	if audit.PerformedAt.IsZero() {
		audit.PerformedAt = time.Now().UTC()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_audits")
	sb.Cols(columns...)
	sb.Values(audit.ID, audit.TenantID, audit.EntityKind, audit.PrimaryID, audit.AbsorbedIDs, audit.PerformedBy, audit.PerformedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"primary_id": audit.PrimaryID}).Error("Failed to create merge audit")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge audit")
	}

	return audit, nil
}

// ListByEntity returns the audit trail touching an entity, newest first.
func (r *Repository) ListByEntity(ctx context.Context, tenantID string, entityID string) ([]models.MergeAudit, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeaudit.Repository.ListByEntity")
	defer span.End()

	query := `
		SELECT id, tenant_id, entity_kind, primary_id, absorbed_ids, performed_by, performed_at
		FROM merge_audits
		WHERE tenant_id = $1
		AND (primary_id = $2 OR absorbed_ids @> to_jsonb($2::text))
		ORDER BY performed_at DESC
	`

	var audits []models.MergeAudit
	if err := r.db.SelectContext(ctx, &audits, query, tenantID, entityID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge audits")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge audits")
	}

	return audits, nil
}
