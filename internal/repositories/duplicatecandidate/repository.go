// Package duplicatecandidate persists suspected-duplicate pairs found by the
// batch scanner and consumed by reviewers or the auto-merge policy.
package duplicatecandidate

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

var columns = []string{"id", "tenant_id", "entity_kind", "entity_a_id", "entity_b_id", "confidence", "reasons", "status", "created_at", "updated_at", "resolved_at", "resolved_by"}

// Repository handles duplicate candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new duplicate candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new pending candidate.
func (r *Repository) Create(ctx context.Context, candidate *models.DuplicateCandidate) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.Create")
	defer span.End()

	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}
	candidate.CreatedAt = time.Now().UTC()
	candidate.UpdatedAt = candidate.CreatedAt
	if candidate.Status == "" {
		candidate.Status = models.DuplicateCandidateStatusPending
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("duplicate_candidates")
	sb.Cols(columns...)
	sb.Values(candidate.ID, candidate.TenantID, candidate.EntityKind, candidate.EntityAID, candidate.EntityBID, candidate.Confidence, candidate.Reasons, candidate.Status, candidate.CreatedAt, candidate.UpdatedAt, candidate.ResolvedAt, candidate.ResolvedBy)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": candidate.ID}).Error("Failed to create duplicate candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create duplicate candidate")
	}

	return candidate, nil
}

// Get retrieves a candidate by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("duplicate_candidates")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var candidate models.DuplicateCandidate
	if err := r.db.GetContext(ctx, &candidate, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("duplicate candidate %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get duplicate candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get duplicate candidate")
	}

	return &candidate, nil
}

// HasAnyByPair reports whether any candidate, pending or resolved, covers the
// unordered pair. Dismissed pairs are not re-queued by later scans.
func (r *Repository) HasAnyByPair(ctx context.Context, tenantID string, kind models.EntityKind, entityA, entityB string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.HasAnyByPair")
	defer span.End()

	query := `
		SELECT COUNT(1)
		FROM duplicate_candidates
		WHERE tenant_id = $1
		AND entity_kind = $2
		AND ((entity_a_id = $3 AND entity_b_id = $4) OR (entity_a_id = $4 AND entity_b_id = $3))
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, tenantID, kind, entityA, entityB); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count duplicate candidates by pair")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count duplicate candidates")
	}

	return count > 0, nil
}

// ListPending returns pending candidates for review, strongest first.
func (r *Repository) ListPending(ctx context.Context, tenantID string, kind models.EntityKind, page, pageSize int) ([]models.DuplicateCandidate, int, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.ListPending")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	where := func(sb *sqlbuilder.SelectBuilder) []string {
		conds := []string{
			sb.Equal("tenant_id", tenantID),
			sb.Equal("status", models.DuplicateCandidateStatusPending),
		}
		if kind != "" {
			conds = append(conds, sb.Equal("entity_kind", kind))
		}
		return conds
	}

	countBuilder := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countBuilder.Select("COUNT(1)")
	countBuilder.From("duplicate_candidates")
	countBuilder.Where(where(countBuilder)...)

	query, args := countBuilder.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count pending duplicate candidates")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count duplicate candidates")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("duplicate_candidates")
	sb.Where(where(sb)...)
	sb.OrderBy("confidence DESC", "created_at ASC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	var candidates []models.DuplicateCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending duplicate candidates")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate candidates")
	}

	return candidates, total, nil
}

// ListPendingAboveConfidence returns pending candidates at or above a
// confidence floor, strongest first, capped at limit. The auto-merge policy's
// run cap is enforced here.
func (r *Repository) ListPendingAboveConfidence(ctx context.Context, tenantID string, kinds []models.EntityKind, minConfidence float64, limit int) ([]models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.ListPendingAboveConfidence")
	defer span.End()

	if limit < 1 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("duplicate_candidates")
	conds := []string{
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.DuplicateCandidateStatusPending),
		sb.GreaterEqualThan("confidence", minConfidence),
	}
	if len(kinds) > 0 {
		conds = append(conds, sb.In("entity_kind", kindsToAny(kinds)...))
	}
	sb.Where(conds...)
	sb.OrderBy("confidence DESC", "created_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var candidates []models.DuplicateCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list candidates above confidence")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate candidates")
	}

	return candidates, nil
}

// Resolve closes a candidate with the given outcome.
func (r *Repository) Resolve(ctx context.Context, tenantID string, id string, status models.DuplicateCandidateStatus, resolvedBy *string) error {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.Resolve")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("duplicate_candidates")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("resolved_at", now),
		sb.Assign("resolved_by", resolvedBy),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.DuplicateCandidateStatusPending),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve duplicate candidate")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve duplicate candidate")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("pending duplicate candidate %s not found", id))
	}

	return nil
}

// ResolveForEntities closes every pending candidate touching any of the given
// entity ids. Called after a merge so stale suspicions about tombstoned
// records do not linger in the review queue.
func (r *Repository) ResolveForEntities(ctx context.Context, tenantID string, kind models.EntityKind, entityIDs []string, status models.DuplicateCandidateStatus, resolvedBy *string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.ResolveForEntities")
	defer span.End()

	if len(entityIDs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("duplicate_candidates")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("resolved_at", now),
		sb.Assign("resolved_by", resolvedBy),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_kind", kind),
		sb.Equal("status", models.DuplicateCandidateStatusPending),
		sb.Or(
			sb.In("entity_a_id", idsToAny(entityIDs)...),
			sb.In("entity_b_id", idsToAny(entityIDs)...),
		),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve candidates for entities")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve duplicate candidates")
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// ExpireStale marks pending candidates created before the cutoff as expired.
// Idempotent: re-running after a partial failure is safe.
func (r *Repository) ExpireStale(ctx context.Context, tenantID string, cutoff time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.ExpireStale")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("duplicate_candidates")
	sb.Set(
		sb.Assign("status", models.DuplicateCandidateStatusExpired),
		sb.Assign("resolved_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.DuplicateCandidateStatusPending),
		sb.LessThan("created_at", cutoff),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to expire stale candidates")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to expire stale candidates")
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// Stats aggregates the candidate backlog for a tenant.
func (r *Repository) Stats(ctx context.Context, tenantID string) (*models.DuplicateStats, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatecandidate.Repository.Stats")
	defer span.End()

	stats := &models.DuplicateStats{
		ByStatus:     map[string]int{},
		ByEntityKind: map[string]int{},
		ScoreBuckets: map[string]int{},
	}

	type statusRow struct {
		Status string `db:"status"`
		Kind   string `db:"entity_kind"`
		Count  int    `db:"count"`
	}
	var rows []statusRow
	query := `
		SELECT status, entity_kind, COUNT(1) AS count
		FROM duplicate_candidates
		WHERE tenant_id = $1
		GROUP BY status, entity_kind
	`
	if err := r.db.SelectContext(ctx, &rows, query, tenantID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to aggregate candidate stats")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate candidate stats")
	}
	for _, row := range rows {
		stats.Total += row.Count
		stats.ByStatus[row.Status] += row.Count
		stats.ByEntityKind[row.Kind] += row.Count
	}

	type bucketRow struct {
		Bucket string `db:"bucket"`
		Count  int    `db:"count"`
	}
	var buckets []bucketRow
	query = `
		SELECT CASE
			WHEN confidence >= 0.95 THEN '0.95+'
			WHEN confidence >= 0.90 THEN '0.90-0.95'
			WHEN confidence >= 0.80 THEN '0.80-0.90'
			ELSE '<0.80'
		END AS bucket, COUNT(1) AS count
		FROM duplicate_candidates
		WHERE tenant_id = $1
		AND status = $2
		GROUP BY 1
	`
	if err := r.db.SelectContext(ctx, &buckets, query, tenantID, models.DuplicateCandidateStatusPending); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to aggregate candidate score buckets")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate candidate stats")
	}
	for _, row := range buckets {
		stats.ScoreBuckets[row.Bucket] = row.Count
	}

	type pendingRow struct {
		AvgConfidence *float64   `db:"avg_confidence"`
		OldestPending *time.Time `db:"oldest_pending"`
	}
	var pending pendingRow
	query = `
		SELECT AVG(confidence) AS avg_confidence, MIN(created_at) AS oldest_pending
		FROM duplicate_candidates
		WHERE tenant_id = $1
		AND status = $2
	`
	if err := r.db.GetContext(ctx, &pending, query, tenantID, models.DuplicateCandidateStatusPending); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to aggregate pending candidate stats")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate candidate stats")
	}
	if pending.AvgConfidence != nil {
		stats.PendingAvgConfidence = *pending.AvgConfidence
	}
	stats.OldestPendingAt = pending.OldestPending

	return stats, nil
}

func kindsToAny(kinds []models.EntityKind) []any {
	result := make([]any, len(kinds))
	for i, kind := range kinds {
		result[i] = kind
	}
	return result
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
