package matching

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// CompanyReader is the read surface the company matcher needs. Lookups only
// return live records; tombstoned companies never match.
type CompanyReader interface {
	FindLiveByDomain(ctx context.Context, tenantID, domain string) (*models.Company, error)
	FindLiveByNormalizedName(ctx context.Context, tenantID, normalizedName string) (*models.Company, error)
	FindLiveByLinkedInURL(ctx context.Context, tenantID, linkedInURL string) (*models.Company, error)
	ScanLiveByNamePrefix(ctx context.Context, tenantID, prefix string, limit int) ([]models.Company, error)
}

// CompanyMatcher scores an inbound company record against existing companies.
type CompanyMatcher struct {
	logger ectologger.Logger
	reader CompanyReader
	scorer *Scorer
}

func NewCompanyMatcher(logger ectologger.Logger, reader CompanyReader) *CompanyMatcher {
	return &CompanyMatcher{
		logger: logger,
		reader: reader,
		scorer: NewScorer(),
	}
}

// Match evaluates every company signal for the record and returns the best
// candidate. Signals are alternatives, not additive: an entity's confidence
// is the strongest single piece of evidence for it, never a sum.
func (m *CompanyMatcher) Match(ctx context.Context, tenantID string, record models.CompanyRecord, cfg MatchConfig) (*models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.CompanyMatcher.Match")
	defer span.End()

	signals := make([]models.MatchSignal, 0, 4)

	// Strongest signal: a domain the company is known to own. The explicit
	// domain wins over one derived from the website.
	domain := normalizers.DomainFromURL(record.Domain)
	if domain == "" {
		domain = normalizers.DomainFromURL(record.Website)
	}
	if domain != "" {
		owner, err := m.reader.FindLiveByDomain(ctx, tenantID, domain)
		if err != nil {
			return nil, err
		}
		if owner != nil {
			signals = append(signals, models.MatchSignal{
				EntityID:   owner.ID,
				Confidence: cfg.VerifiedDomainConfidence,
				Reason:     fmt.Sprintf("owns verified domain %q", domain),
			})
		}
	}

	normalizedName := normalizers.CompanyName(record.Name)
	if normalizedName != "" {
		match, err := m.reader.FindLiveByNormalizedName(ctx, tenantID, normalizedName)
		if err != nil {
			return nil, err
		}
		if match != nil {
			signals = append(signals, models.MatchSignal{
				EntityID:   match.ID,
				Confidence: cfg.ExactNameConfidence,
				Reason:     fmt.Sprintf("exact normalized name %q", normalizedName),
			})
		}
	}

	if identifierURL := strings.TrimSpace(record.LinkedInURL); identifierURL != "" {
		match, err := m.reader.FindLiveByLinkedInURL(ctx, tenantID, identifierURL)
		if err != nil {
			return nil, err
		}
		if match != nil {
			signals = append(signals, models.MatchSignal{
				EntityID:   match.ID,
				Confidence: cfg.IdentifierURLConfidence,
				Reason:     "same linkedin url",
			})
		}
	}

	// Fuzzy names are expensive and weak, so they only run when nothing above
	// is strong enough to auto-link on its own.
	if bestConfidence(signals) < cfg.AutoLinkThreshold && normalizedName != "" {
		fuzzySignals, err := m.fuzzyNameSignals(ctx, tenantID, normalizedName, cfg)
		if err != nil {
			return nil, err
		}
		signals = append(signals, fuzzySignals...)
	}

	result := collectResult(signals)

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"signal_count": len(signals),
		"confidence":   result.Confidence,
	}).Debug("Company match evaluated")

	return result, nil
}

// fuzzyNameSignals scans companies sharing the name's prefix and scores the
// close ones, discounted because edit distance is weaker evidence than an
// exact key.
func (m *CompanyMatcher) fuzzyNameSignals(ctx context.Context, tenantID, normalizedName string, cfg MatchConfig) ([]models.MatchSignal, error) {
	prefix := namePrefix(normalizedName, cfg.PrefixLength)

	candidates, err := m.reader.ScanLiveByNamePrefix(ctx, tenantID, prefix, cfg.PrefixScanLimit)
	if err != nil {
		return nil, err
	}

	var signals []models.MatchSignal
	for _, candidate := range candidates {
		similarity := m.scorer.Similarity(normalizedName, candidate.NormalizedName)
		if similarity < cfg.FuzzyMinSimilarity {
			continue
		}
		signals = append(signals, models.MatchSignal{
			EntityID:   candidate.ID,
			Confidence: similarity * cfg.FuzzyDiscount,
			Reason:     fmt.Sprintf("name similarity %.2f to %q", similarity, candidate.NormalizedName),
		})
	}
	return signals, nil
}

// namePrefix returns the first n runes of a normalized name.
func namePrefix(normalizedName string, n int) string {
	runes := []rune(normalizedName)
	if len(runes) <= n {
		return normalizedName
	}
	return string(runes[:n])
}
