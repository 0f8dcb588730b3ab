// Package merging folds duplicate entities into a surviving record. Every
// foreign reference to a duplicate is rewritten to the survivor, the
// duplicate is tombstoned, and one audit row is appended, all inside a single
// transaction: a concurrent reader never observes a half-merged entity.
package merging

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// referenceRewrite names one foreign key that must follow a merged entity to
// its survivor. Adding a referencing table is a data change here, not new
// control flow.
type referenceRewrite struct {
	Table  string
	Column string
}

var companyReferences = []referenceRewrite{
	{Table: "company_domains", Column: "company_id"},
	{Table: "people", Column: "company_id"},
	{Table: "employment_history", Column: "company_id"},
	{Table: "deal_participants", Column: "company_id"},
	{Table: "contacts", Column: "company_id"},
	{Table: "activity_log", Column: "company_id"},
}

var personReferences = []referenceRewrite{
	{Table: "employment_history", Column: "person_id"},
	{Table: "deal_participants", Column: "person_id"},
	{Table: "contacts", Column: "person_id"},
	{Table: "activity_log", Column: "author_id"},
	{Table: "email_attempts", Column: "author_id"},
}

// CompanyStore is the company persistence surface the engine needs.
type CompanyStore interface {
	Get(ctx context.Context, tenantID string, id string) (*models.Company, error)
	LockLive(ctx context.Context, tenantID string, id string) error
	Tombstone(ctx context.Context, tenantID string, id string, mergedInto string, mergedAt time.Time) error
}

// PersonStore is the person persistence surface the engine needs.
type PersonStore interface {
	Get(ctx context.Context, tenantID string, id string) (*models.Person, error)
	LockLive(ctx context.Context, tenantID string, id string) error
	Tombstone(ctx context.Context, tenantID string, id string, mergedInto string, mergedAt time.Time) error
}

// AuditStore appends merge audit records.
type AuditStore interface {
	Create(ctx context.Context, audit *models.MergeAudit) (*models.MergeAudit, error)
}

// CandidateResolver closes pending duplicate candidates after a merge.
type CandidateResolver interface {
	ResolveForEntities(ctx context.Context, tenantID string, kind models.EntityKind, entityIDs []string, status models.DuplicateCandidateStatus, resolvedBy *string) (int, error)
}

// MergeEmitter publishes the post-commit merge event.
type MergeEmitter interface {
	EmitEntityMerged(ctx context.Context, tenantID string, kind models.EntityKind, result *models.MergeResult, actor string) error
}

// MergeProjector mirrors the merge into the graph database.
type MergeProjector interface {
	UpsertCompany(ctx context.Context, company *models.Company) error
	UpsertPerson(ctx context.Context, person *models.Person) error
	ProjectMerge(ctx context.Context, tenantID string, kind models.EntityKind, result *models.MergeResult) error
}

// Engine handles entity merging
type Engine struct {
	db         database.DB
	logger     ectologger.Logger
	companies  CompanyStore
	people     PersonStore
	audits     AuditStore
	candidates CandidateResolver
	emitter    MergeEmitter
	projector  MergeProjector
}

// NewEngine creates a new merge engine. The emitter and projector are
// optional; pass nil to skip event emission or graph projection.
func NewEngine(
	db database.DB,
	logger ectologger.Logger,
	companies CompanyStore,
	people PersonStore,
	audits AuditStore,
	candidates CandidateResolver,
	emitter MergeEmitter,
	projector MergeProjector,
) *Engine {
	return &Engine{
		db:         db,
		logger:     logger,
		companies:  companies,
		people:     people,
		audits:     audits,
		candidates: candidates,
		emitter:    emitter,
		projector:  projector,
	}
}

// MergeCompanies merges duplicate companies into the primary.
func (e *Engine) MergeCompanies(ctx context.Context, tenantID string, primaryID string, duplicateIDs []string, actor string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.MergeCompanies")
	defer span.End()

	liveCheck := func(ctx context.Context, id string) error {
		company, err := e.companies.Get(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if company.IsMerged() {
			return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("company %s is already merged into %s", id, *company.MergedInto))
		}
		return nil
	}

	return e.merge(ctx, tenantID, models.EntityKindCompany, primaryID, duplicateIDs, actor, companyReferences, liveCheck, e.companies.LockLive, e.companies.Tombstone)
}

// MergePeople merges duplicate people into the primary.
func (e *Engine) MergePeople(ctx context.Context, tenantID string, primaryID string, duplicateIDs []string, actor string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.MergePeople")
	defer span.End()

	liveCheck := func(ctx context.Context, id string) error {
		person, err := e.people.Get(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if person.IsMerged() {
			return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("person %s is already merged into %s", id, *person.MergedInto))
		}
		return nil
	}

	return e.merge(ctx, tenantID, models.EntityKindPerson, primaryID, duplicateIDs, actor, personReferences, liveCheck, e.people.LockLive, e.people.Tombstone)
}

type lockLiveFunc func(ctx context.Context, tenantID string, id string) error

type tombstoneFunc func(ctx context.Context, tenantID string, id string, mergedInto string, mergedAt time.Time) error

func (e *Engine) merge(
	ctx context.Context,
	tenantID string,
	kind models.EntityKind,
	primaryID string,
	duplicateIDs []string,
	actor string,
	references []referenceRewrite,
	liveCheck func(ctx context.Context, id string) error,
	lockLive lockLiveFunc,
	tombstone tombstoneFunc,
) (*models.MergeResult, error) {
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"entity_kind": kind,
		"primary_id":  primaryID,
		"duplicates":  len(duplicateIDs),
	})

	// Preconditions run before any mutation. A failure here leaves the
	// tenant's data untouched.
	if err := validateIDs(primaryID, duplicateIDs); err != nil {
		return nil, err
	}
	if err := liveCheck(ctx, primaryID); err != nil {
		return nil, err
	}
	for _, duplicateID := range duplicateIDs {
		if err := liveCheck(ctx, duplicateID); err != nil {
			return nil, err
		}
	}

	ctxTx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	// Re-check the primary under a row lock. The pre-transaction liveCheck
	// leaves a window where a concurrent merge can tombstone the primary;
	// without this guard two racing merges could form a chain where the
	// survivor is itself merged.
	if err := lockLive(ctxTx, tenantID, primaryID); err != nil {
		return nil, err
	}

	mergedAt := time.Now().UTC()
	for _, duplicateID := range duplicateIDs {
		for _, ref := range references {
			if err := e.rewriteReference(ctxTx, tenantID, ref, duplicateID, primaryID); err != nil {
				return nil, err
			}
		}

		// The tombstone update carries a merged_into IS NULL guard, so a
		// concurrent merge that won the race surfaces here as a conflict and
		// rolls the whole transaction back.
		if err := tombstone(ctxTx, tenantID, duplicateID, primaryID, mergedAt); err != nil {
			return nil, err
		}
	}

	audit := &models.MergeAudit{
		TenantID:    tenantID,
		EntityKind:  kind,
		PrimaryID:   primaryID,
		AbsorbedIDs: database.NewJSONB(duplicateIDs),
		PerformedAt: mergedAt,
	}
	if actor != "" {
		audit.PerformedBy = &actor
	}
	audit, err = e.audits.Create(ctxTx, audit)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		log.WithError(err).Error("Failed to commit merge transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit merge")
	}

	result := &models.MergeResult{
		SurvivorID:  primaryID,
		AbsorbedIDs: duplicateIDs,
		AuditID:     audit.ID,
	}

	log.WithFields(map[string]any{"audit_id": audit.ID}).Info("Merge completed")

	e.afterCommit(ctx, tenantID, kind, result, actor)

	return result, nil
}

// afterCommit runs the best-effort follow-ups. The merge is already durable;
// failures here are logged and swallowed.
func (e *Engine) afterCommit(ctx context.Context, tenantID string, kind models.EntityKind, result *models.MergeResult, actor string) {
	if e.candidates != nil {
		ids := append([]string{result.SurvivorID}, result.AbsorbedIDs...)
		resolvedBy := actor
		if resolvedBy == "" {
			resolvedBy = "merge-engine"
		}
		if _, err := e.candidates.ResolveForEntities(ctx, tenantID, kind, ids, models.DuplicateCandidateStatusMerged, &resolvedBy); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to resolve duplicate candidates after merge")
		}
	}

	if e.emitter != nil {
		if err := e.emitter.EmitEntityMerged(ctx, tenantID, kind, result, actor); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to emit merge event")
		}
	}

	if e.projector != nil {
		// The survivor node is upserted first so the merge edges have a live
		// target even when the entity never reached the graph before.
		if err := e.upsertSurvivor(ctx, tenantID, kind, result.SurvivorID); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to upsert survivor into graph")
		}
		if err := e.projector.ProjectMerge(ctx, tenantID, kind, result); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to project merge into graph")
		}
	}
}

func (e *Engine) upsertSurvivor(ctx context.Context, tenantID string, kind models.EntityKind, survivorID string) error {
	switch kind {
	case models.EntityKindPerson:
		person, err := e.people.Get(ctx, tenantID, survivorID)
		if err != nil {
			return err
		}
		return e.projector.UpsertPerson(ctx, person)
	default:
		company, err := e.companies.Get(ctx, tenantID, survivorID)
		if err != nil {
			return err
		}
		return e.projector.UpsertCompany(ctx, company)
	}
}

func (e *Engine) rewriteReference(ctx context.Context, tenantID string, ref referenceRewrite, fromID, toID string) error {
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(ref.Table)
	sb.Set(sb.Assign(ref.Column, toID))
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal(ref.Column, fromID),
	)

	query, args := sb.Build()
	if _, err := e.db.ExecContext(ctx, query, args...); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table":  ref.Table,
			"column": ref.Column,
		}).Error("Failed to rewrite reference")
		return httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to rewrite %s.%s", ref.Table, ref.Column))
	}

	return nil
}

func validateIDs(primaryID string, duplicateIDs []string) error {
	if primaryID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "primary id is required")
	}
	if len(duplicateIDs) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "at least one duplicate id is required")
	}

	seen := make(map[string]bool, len(duplicateIDs))
	for _, id := range duplicateIDs {
		if id == "" {
			return httperror.NewHTTPError(http.StatusBadRequest, "duplicate ids must not be empty")
		}
		if id == primaryID {
			return httperror.NewHTTPError(http.StatusBadRequest, "primary id must not appear in duplicate ids")
		}
		if seen[id] {
			return httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("duplicate id %s appears more than once", id))
		}
		seen[id] = true
	}

	return nil
}
