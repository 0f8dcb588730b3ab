// Package dedupe finds suspected duplicates across a tenant's live entities.
// Scanning is read-only; the only write is queueing pending candidates for
// review or auto-merge.
package dedupe

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// CompanyLister enumerates live companies for scanning.
type CompanyLister interface {
	ListLive(ctx context.Context, tenantID string) ([]models.Company, error)
}

// DomainLister enumerates domain ownership for scanning.
type DomainLister interface {
	ListByTenant(ctx context.Context, tenantID string) ([]models.CompanyDomain, error)
}

// PersonLister enumerates live people for scanning.
type PersonLister interface {
	ListLive(ctx context.Context, tenantID string) ([]models.Person, error)
}

// CandidateStore persists and inspects duplicate candidates.
type CandidateStore interface {
	Create(ctx context.Context, candidate *models.DuplicateCandidate) (*models.DuplicateCandidate, error)
	HasAnyByPair(ctx context.Context, tenantID string, kind models.EntityKind, entityA, entityB string) (bool, error)
	ExpireStale(ctx context.Context, tenantID string, cutoff time.Time) (int, error)
	Stats(ctx context.Context, tenantID string) (*models.DuplicateStats, error)
}

// RunRecorder persists scan run summaries.
type RunRecorder interface {
	Start(ctx context.Context, tenantID string) (*models.ScanRun, error)
	Finish(ctx context.Context, run *models.ScanRun) error
}

// ScanEmitter publishes the post-scan summary event.
type ScanEmitter interface {
	EmitDuplicatesDetected(ctx context.Context, run *models.ScanRun) error
}

// Config carries the scanner thresholds. Defaults follow DefaultConfig.
type Config struct {
	// ScoreFloor is the minimum confidence a pair needs to be reported.
	ScoreFloor float64
	// SharedDomainConfidence is assigned when two companies own a domain in common.
	SharedDomainConfidence float64
	// NameSimilarityMin gates fuzzy company-name pairs.
	NameSimilarityMin float64
	// NameSimilarityDiscount scales fuzzy company-name confidence.
	NameSimilarityDiscount float64
	// SharedIdentifierConfidence is assigned for an identical identifier URL.
	SharedIdentifierConfidence float64
	// PersonNameBaseConfidence is the floor for people sharing a normalized name.
	PersonNameBaseConfidence float64
	// PersonSharedEmployerConfidence boosts namesakes at the same employer.
	PersonSharedEmployerConfidence float64
	// StaleCandidateMaxAge is how long a pending candidate may wait before expiry.
	StaleCandidateMaxAge time.Duration
}

// DefaultConfig returns the production scanner thresholds.
func DefaultConfig() Config {
	return Config{
		ScoreFloor:                     0.70,
		SharedDomainConfidence:         0.95,
		NameSimilarityMin:              0.90,
		NameSimilarityDiscount:         0.85,
		SharedIdentifierConfidence:     0.95,
		PersonNameBaseConfidence:       0.60,
		PersonSharedEmployerConfidence: 0.85,
		StaleCandidateMaxAge:           30 * 24 * time.Hour,
	}
}

// Scanner finds duplicate pairs among a tenant's live entities.
type Scanner struct {
	logger     ectologger.Logger
	companies  CompanyLister
	domains    DomainLister
	people     PersonLister
	candidates CandidateStore
	runs       RunRecorder
	emitter    ScanEmitter
	scorer     *matching.Scorer
	config     Config
}

// NewScanner creates a new duplicate scanner. The run recorder and emitter
// are optional; pass nil to skip run bookkeeping or event emission.
func NewScanner(
	logger ectologger.Logger,
	companies CompanyLister,
	domains DomainLister,
	people PersonLister,
	candidates CandidateStore,
	runs RunRecorder,
	emitter ScanEmitter,
	config Config,
) *Scanner {
	if config.ScoreFloor <= 0 {
		config = DefaultConfig()
	}
	return &Scanner{
		logger:     logger,
		companies:  companies,
		domains:    domains,
		people:     people,
		candidates: candidates,
		runs:       runs,
		emitter:    emitter,
		scorer:     matching.NewScorer(),
		config:     config,
	}
}

// FindDuplicateCompanies compares every unordered pair of live companies and
// returns the pairs scoring at or above minConfidence, strongest first. The
// comparison is O(n²) in the number of live companies.
func (s *Scanner) FindDuplicateCompanies(ctx context.Context, tenantID string, minConfidence float64) ([]models.DuplicatePair, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Scanner.FindDuplicateCompanies")
	defer span.End()

	pairs, _, _, err := s.scanCompanies(ctx, tenantID, minConfidence)
	return pairs, err
}

// FindDuplicatePeople buckets live people by normalized name and compares
// pairs within each bucket. Exact bucketing avoids the quadratic cost for the
// common case of distinct names.
func (s *Scanner) FindDuplicatePeople(ctx context.Context, tenantID string, minConfidence float64) ([]models.DuplicatePair, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Scanner.FindDuplicatePeople")
	defer span.End()

	pairs, _, _, err := s.scanPeople(ctx, tenantID, minConfidence)
	return pairs, err
}

// RunDetection scans both entity kinds and queues new pending candidates. A
// pair is skipped when any candidate, pending or already reviewed, covers it.
func (s *Scanner) RunDetection(ctx context.Context, tenantID string, minConfidence float64) (*models.ScanRun, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Scanner.RunDetection")
	defer span.End()

	started := time.Now()

	run := &models.ScanRun{TenantID: tenantID, Status: models.ScanRunStatusRunning, StartedAt: started.UTC()}
	if s.runs != nil {
		persisted, err := s.runs.Start(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		run = persisted
	}

	companyPairs, companiesScanned, companyComparisons, err := s.scanCompanies(ctx, tenantID, minConfidence)
	if err != nil {
		return nil, s.failRun(ctx, run, err)
	}
	personPairs, peopleScanned, personComparisons, err := s.scanPeople(ctx, tenantID, minConfidence)
	if err != nil {
		return nil, s.failRun(ctx, run, err)
	}

	run.CompaniesScanned = companiesScanned
	run.PeopleScanned = peopleScanned
	run.PairsCompared = companyComparisons + personComparisons
	run.CandidatesFound = len(companyPairs) + len(personPairs)

	inserted := 0
	for _, pair := range append(companyPairs, personPairs...) {
		queued, err := s.queueCandidate(ctx, tenantID, pair)
		if err != nil {
			return nil, s.failRun(ctx, run, err)
		}
		if queued {
			inserted++
			metrics.CandidatesInserted.WithLabelValues(string(pair.EntityKind)).Inc()
		}
	}
	run.CandidatesInserted = inserted
	run.Status = models.ScanRunStatusCompleted

	if s.runs != nil {
		if err := s.runs.Finish(ctx, run); err != nil {
			return nil, err
		}
	}

	metrics.ScanDuration.Observe(time.Since(started).Seconds())
	metrics.ScanPairsCompared.Add(float64(run.PairsCompared))

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":           tenantID,
		"companies_scanned":   run.CompaniesScanned,
		"people_scanned":      run.PeopleScanned,
		"candidates_found":    run.CandidatesFound,
		"candidates_inserted": run.CandidatesInserted,
	}).Info("Duplicate detection run completed")

	if s.emitter != nil {
		if err := s.emitter.EmitDuplicatesDetected(ctx, run); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to emit scan summary event")
		}
	}

	return run, nil
}

// CleanupResult reports a stale-candidate sweep.
type CleanupResult struct {
	Removed int      `json:"removed"`
	Errors  []string `json:"errors"`
}

// CleanupStale expires pending candidates older than the configured max age.
// Safe to re-run at any time.
func (s *Scanner) CleanupStale(ctx context.Context, tenantID string) (*CleanupResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Scanner.CleanupStale")
	defer span.End()

	cutoff := time.Now().UTC().Add(-s.config.StaleCandidateMaxAge)
	result := &CleanupResult{Errors: []string{}}

	removed, err := s.candidates.ExpireStale(ctx, tenantID, cutoff)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}
	result.Removed = removed

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"removed":   removed,
	}).Info("Expired stale duplicate candidates")

	return result, nil
}

// Stats returns the candidate backlog summary for a tenant.
func (s *Scanner) Stats(ctx context.Context, tenantID string) (*models.DuplicateStats, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Scanner.Stats")
	defer span.End()

	return s.candidates.Stats(ctx, tenantID)
}

func (s *Scanner) scanCompanies(ctx context.Context, tenantID string, minConfidence float64) ([]models.DuplicatePair, int, int, error) {
	if minConfidence <= 0 {
		minConfidence = s.config.ScoreFloor
	}

	companies, err := s.companies.ListLive(ctx, tenantID)
	if err != nil {
		return nil, 0, 0, err
	}

	domainsByCompany := map[string]map[string]bool{}
	if s.domains != nil {
		domainRecords, err := s.domains.ListByTenant(ctx, tenantID)
		if err != nil {
			return nil, 0, 0, err
		}
		for _, record := range domainRecords {
			if domainsByCompany[record.CompanyID] == nil {
				domainsByCompany[record.CompanyID] = map[string]bool{}
			}
			domainsByCompany[record.CompanyID][record.Domain] = true
		}
	}

	var pairs []models.DuplicatePair
	compared := 0
	for i := 0; i < len(companies); i++ {
		for j := i + 1; j < len(companies); j++ {
			compared++
			pair := s.scoreCompanyPair(&companies[i], &companies[j], domainsByCompany)
			if pair != nil && pair.Confidence >= minConfidence {
				pairs = append(pairs, *pair)
			}
		}
	}

	sortPairs(pairs)
	return pairs, len(companies), compared, nil
}

// scoreCompanyPair keeps the strongest signal for the pair, mirroring the
// interactive matcher: signals corroborate, they do not stack.
func (s *Scanner) scoreCompanyPair(a, b *models.Company, domainsByCompany map[string]map[string]bool) *models.DuplicatePair {
	best := 0.0
	var reasons []string

	if shared := sharedDomain(domainsByCompany[a.ID], domainsByCompany[b.ID]); shared != "" {
		best = s.config.SharedDomainConfidence
		reasons = append(reasons, fmt.Sprintf("both own domain %q", shared))
	}

	if a.NormalizedName != "" && b.NormalizedName != "" {
		similarity := s.scorer.Similarity(a.NormalizedName, b.NormalizedName)
		if similarity >= s.config.NameSimilarityMin {
			confidence := similarity * s.config.NameSimilarityDiscount
			reasons = append(reasons, fmt.Sprintf("name similarity %.2f", similarity))
			if confidence > best {
				best = confidence
			}
		}
	}

	if a.LinkedInURL != nil && b.LinkedInURL != nil && *a.LinkedInURL != "" && *a.LinkedInURL == *b.LinkedInURL {
		reasons = append(reasons, "same linkedin url")
		if s.config.SharedIdentifierConfidence > best {
			best = s.config.SharedIdentifierConfidence
		}
	}

	if best == 0 {
		return nil
	}

	return &models.DuplicatePair{
		EntityKind: models.EntityKindCompany,
		EntityAID:  a.ID,
		EntityBID:  b.ID,
		Confidence: best,
		Reasons:    reasons,
	}
}

func (s *Scanner) scanPeople(ctx context.Context, tenantID string, minConfidence float64) ([]models.DuplicatePair, int, int, error) {
	if minConfidence <= 0 {
		minConfidence = s.config.ScoreFloor
	}

	people, err := s.people.ListLive(ctx, tenantID)
	if err != nil {
		return nil, 0, 0, err
	}

	buckets := map[string][]models.Person{}
	for _, person := range people {
		if person.NormalizedName == "" {
			continue
		}
		buckets[person.NormalizedName] = append(buckets[person.NormalizedName], person)
	}

	var pairs []models.DuplicatePair
	compared := 0
	for _, bucket := range buckets {
		if len(bucket) < 2 {
			continue
		}
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				compared++
				pair := s.scorePersonPair(&bucket[i], &bucket[j])
				if pair.Confidence >= minConfidence {
					pairs = append(pairs, *pair)
				}
			}
		}
	}

	sortPairs(pairs)
	return pairs, len(people), compared, nil
}

func (s *Scanner) scorePersonPair(a, b *models.Person) *models.DuplicatePair {
	confidence := s.config.PersonNameBaseConfidence
	reasons := []string{fmt.Sprintf("same normalized name %q", a.NormalizedName)}

	if a.CompanyID != nil && b.CompanyID != nil && *a.CompanyID == *b.CompanyID {
		confidence = s.config.PersonSharedEmployerConfidence
		reasons = append(reasons, "same current employer")
	}

	if a.LinkedInURL != nil && b.LinkedInURL != nil && *a.LinkedInURL != "" && *a.LinkedInURL == *b.LinkedInURL {
		confidence = s.config.SharedIdentifierConfidence
		reasons = append(reasons, "same linkedin url")
	}

	return &models.DuplicatePair{
		EntityKind: models.EntityKindPerson,
		EntityAID:  a.ID,
		EntityBID:  b.ID,
		Confidence: confidence,
		Reasons:    reasons,
	}
}

// queueCandidate inserts a pending candidate unless the pair is already
// covered, in either ordering, by a previous candidate.
func (s *Scanner) queueCandidate(ctx context.Context, tenantID string, pair models.DuplicatePair) (bool, error) {
	exists, err := s.candidates.HasAnyByPair(ctx, tenantID, pair.EntityKind, pair.EntityAID, pair.EntityBID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	candidate := &models.DuplicateCandidate{
		TenantID:   tenantID,
		EntityKind: pair.EntityKind,
		EntityAID:  pair.EntityAID,
		EntityBID:  pair.EntityBID,
		Confidence: pair.Confidence,
		Reasons:    database.NewJSONB(pair.Reasons),
		Status:     models.DuplicateCandidateStatusPending,
	}
	if _, err := s.candidates.Create(ctx, candidate); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Scanner) failRun(ctx context.Context, run *models.ScanRun, cause error) error {
	run.Status = models.ScanRunStatusFailed
	message := cause.Error()
	run.Error = &message
	if s.runs != nil {
		if err := s.runs.Finish(ctx, run); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to record failed scan run")
		}
	}
	return cause
}

func sortPairs(pairs []models.DuplicatePair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Confidence > pairs[j].Confidence
	})
}

func sharedDomain(a, b map[string]bool) string {
	for domain := range a {
		if b[domain] {
			return domain
		}
	}
	return ""
}
