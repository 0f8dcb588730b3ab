// Package automerge merges the highest-confidence pending duplicate
// candidates without human review. The policy is deliberately conservative:
// a strict confidence floor, a per-run cap, and a liveness re-check before
// every merge.
package automerge

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Config controls one auto-merge pass.
type Config struct {
	// MinConfidence is the floor below which candidates are never auto-merged.
	MinConfidence float64
	// MaxPerRun caps how many candidates one pass may merge.
	MaxPerRun int
	// DryRun logs what would merge and marks the candidates skipped
	// instead of merging them.
	DryRun bool
	// Kinds restricts the pass to the given entity kinds. Empty means both.
	Kinds []models.EntityKind
}

// DefaultConfig returns the production auto-merge policy.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.98,
		MaxPerRun:     50,
	}
}

// CandidateSource supplies and resolves pending candidates.
type CandidateSource interface {
	ListPendingAboveConfidence(ctx context.Context, tenantID string, kinds []models.EntityKind, minConfidence float64, limit int) ([]models.DuplicateCandidate, error)
	Resolve(ctx context.Context, tenantID string, id string, status models.DuplicateCandidateStatus, resolvedBy *string) error
}

// EntityReader checks whether an entity still exists and is live.
type EntityReader interface {
	Get(ctx context.Context, tenantID string, id string) (*models.Company, error)
}

// PersonEntityReader mirrors EntityReader for people.
type PersonEntityReader interface {
	Get(ctx context.Context, tenantID string, id string) (*models.Person, error)
}

// Merger performs the actual transactional merges.
type Merger interface {
	MergeCompanies(ctx context.Context, tenantID string, primaryID string, duplicateIDs []string, actor string) (*models.MergeResult, error)
	MergePeople(ctx context.Context, tenantID string, primaryID string, duplicateIDs []string, actor string) (*models.MergeResult, error)
}

// RunStore persists auto-merge run summaries.
type RunStore interface {
	Create(ctx context.Context, run *models.AutoMergeRun) (*models.AutoMergeRun, error)
}

// RunEmitter publishes the post-run summary event.
type RunEmitter interface {
	EmitAutoMergeCompleted(ctx context.Context, run *models.AutoMergeRun) error
}

// Policy decides which pending candidates are safe to merge unattended.
type Policy struct {
	logger     ectologger.Logger
	candidates CandidateSource
	companies  EntityReader
	people     PersonEntityReader
	merger     Merger
	runs       RunStore
	emitter    RunEmitter
}

// NewPolicy creates the auto-merge policy. The run store and emitter are
// optional; pass nil to skip run bookkeeping or event emission.
func NewPolicy(
	logger ectologger.Logger,
	candidates CandidateSource,
	companies EntityReader,
	people PersonEntityReader,
	merger Merger,
	runs RunStore,
	emitter RunEmitter,
) *Policy {
	return &Policy{
		logger:     logger,
		candidates: candidates,
		companies:  companies,
		people:     people,
		merger:     merger,
		runs:       runs,
		emitter:    emitter,
	}
}

// Run executes one auto-merge pass for a tenant. Per-candidate failures are
// counted and logged, never abort the pass. The actor is recorded on every
// merge audit and candidate resolution.
func (p *Policy) Run(ctx context.Context, tenantID string, actor string, cfg Config) (*models.AutoMergeRun, error) {
	ctx, span := tracing.StartSpan(ctx, "automerge.Policy.Run")
	defer span.End()

	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultConfig().MinConfidence
	}
	if cfg.MaxPerRun <= 0 {
		cfg.MaxPerRun = DefaultConfig().MaxPerRun
	}
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = []models.EntityKind{models.EntityKindCompany, models.EntityKindPerson}
	}

	run := &models.AutoMergeRun{
		TenantID:  tenantID,
		DryRun:    cfg.DryRun,
		StartedAt: time.Now().UTC(),
	}

	candidates, err := p.candidates.ListPendingAboveConfidence(ctx, tenantID, kinds, cfg.MinConfidence, cfg.MaxPerRun)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		candidate := &candidates[i]
		run.Examined++

		outcome := p.process(ctx, tenantID, actor, cfg, candidate)
		switch outcome {
		case outcomeMerged:
			run.Merged++
		case outcomeSkipped:
			run.Skipped++
		case outcomeErrored:
			run.Errored++
		}
	}

	completed := time.Now().UTC()
	run.CompletedAt = &completed

	if p.runs != nil {
		persisted, err := p.runs.Create(ctx, run)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to record auto-merge run")
		} else {
			run = persisted
		}
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"examined":  run.Examined,
		"merged":    run.Merged,
		"skipped":   run.Skipped,
		"errored":   run.Errored,
		"dry_run":   run.DryRun,
	}).Info("Auto-merge run completed")

	if p.emitter != nil {
		if err := p.emitter.EmitAutoMergeCompleted(ctx, run); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to emit auto-merge summary event")
		}
	}

	return run, nil
}

type outcome int

const (
	outcomeMerged outcome = iota
	outcomeSkipped
	outcomeErrored
)

func (p *Policy) process(ctx context.Context, tenantID, actor string, cfg Config, candidate *models.DuplicateCandidate) outcome {
	survivorID, absorbedID, reason, err := p.pickSurvivor(ctx, tenantID, candidate)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"candidate_id": candidate.ID,
		}).Error("Failed to evaluate auto-merge candidate")
		return outcomeErrored
	}
	if reason != "" {
		metrics.AutoMergeSkipsTotal.WithLabelValues(reason).Inc()
		if err := p.candidates.Resolve(ctx, tenantID, candidate.ID, models.DuplicateCandidateStatusSkipped, &actor); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"candidate_id": candidate.ID,
			}).Warn("Failed to mark candidate skipped")
		}
		return outcomeSkipped
	}

	if cfg.DryRun {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"candidate_id": candidate.ID,
			"survivor_id":  survivorID,
			"absorbed_id":  absorbedID,
			"confidence":   candidate.Confidence,
		}).Info("Dry run: candidate would auto-merge")
		if err := p.candidates.Resolve(ctx, tenantID, candidate.ID, models.DuplicateCandidateStatusSkipped, &actor); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"candidate_id": candidate.ID,
			}).Warn("Failed to mark candidate skipped")
		}
		return outcomeSkipped
	}

	if err := p.mergePair(ctx, tenantID, candidate.EntityKind, survivorID, absorbedID, actor); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"candidate_id": candidate.ID,
			"survivor_id":  survivorID,
			"absorbed_id":  absorbedID,
		}).Error("Auto-merge failed")
		return outcomeErrored
	}

	// The merge engine resolves every pending candidate touching the pair,
	// this one included, as part of its post-commit work.
	metrics.MergesTotal.WithLabelValues(string(candidate.EntityKind), "auto").Inc()
	return outcomeMerged
}

// pickSurvivor re-checks both entities are still live and chooses the
// survivor: higher data quality wins, the older record breaks ties. A
// non-empty reason means the candidate must be skipped.
func (p *Policy) pickSurvivor(ctx context.Context, tenantID string, candidate *models.DuplicateCandidate) (survivorID, absorbedID, skipReason string, err error) {
	switch candidate.EntityKind {
	case models.EntityKindCompany:
		a, err := p.getCompany(ctx, tenantID, candidate.EntityAID)
		if err != nil {
			return "", "", "", err
		}
		b, err := p.getCompany(ctx, tenantID, candidate.EntityBID)
		if err != nil {
			return "", "", "", err
		}
		if a == nil || b == nil {
			return "", "", "entity_missing", nil
		}
		if a.IsMerged() || b.IsMerged() {
			return "", "", "entity_not_live", nil
		}
		if companyOutranks(b, a) {
			a, b = b, a
		}
		return a.ID, b.ID, "", nil

	case models.EntityKindPerson:
		a, err := p.getPerson(ctx, tenantID, candidate.EntityAID)
		if err != nil {
			return "", "", "", err
		}
		b, err := p.getPerson(ctx, tenantID, candidate.EntityBID)
		if err != nil {
			return "", "", "", err
		}
		if a == nil || b == nil {
			return "", "", "entity_missing", nil
		}
		if a.IsMerged() || b.IsMerged() {
			return "", "", "entity_not_live", nil
		}
		if personOutranks(b, a) {
			a, b = b, a
		}
		return a.ID, b.ID, "", nil

	default:
		return "", "", "unknown_entity_kind", nil
	}
}

func (p *Policy) mergePair(ctx context.Context, tenantID string, kind models.EntityKind, survivorID, absorbedID, actor string) error {
	switch kind {
	case models.EntityKindCompany:
		_, err := p.merger.MergeCompanies(ctx, tenantID, survivorID, []string{absorbedID}, actor)
		return err
	default:
		_, err := p.merger.MergePeople(ctx, tenantID, survivorID, []string{absorbedID}, actor)
		return err
	}
}

func (p *Policy) getCompany(ctx context.Context, tenantID, id string) (*models.Company, error) {
	company, err := p.companies.Get(ctx, tenantID, id)
	if isNotFound(err) {
		return nil, nil
	}
	return company, err
}

func (p *Policy) getPerson(ctx context.Context, tenantID, id string) (*models.Person, error) {
	person, err := p.people.Get(ctx, tenantID, id)
	if isNotFound(err) {
		return nil, nil
	}
	return person, err
}

func isNotFound(err error) bool {
	return err != nil && httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound
}

func companyOutranks(a, b *models.Company) bool {
	if a.DataQuality.Rank() != b.DataQuality.Rank() {
		return a.DataQuality.Rank() > b.DataQuality.Rank()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func personOutranks(a, b *models.Person) bool {
	if a.DataQuality.Rank() != b.DataQuality.Rank() {
		return a.DataQuality.Rank() > b.DataQuality.Rank()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
