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

// PersonReader is the read surface the person matcher needs.
type PersonReader interface {
	FindLiveByEmail(ctx context.Context, tenantID, email string) (*models.Person, error)
	FindLiveByLinkedInURL(ctx context.Context, tenantID, linkedInURL string) (*models.Person, error)
	ListLiveByNormalizedName(ctx context.Context, tenantID, normalizedName string) ([]models.Person, error)
}

// EmployerReader resolves a person's employer to an existing company, either
// by name or by email domain. The company reader satisfies this.
type EmployerReader interface {
	FindLiveByNormalizedName(ctx context.Context, tenantID, normalizedName string) (*models.Company, error)
	FindLiveByDomain(ctx context.Context, tenantID, domain string) (*models.Company, error)
}

// PersonMatcher scores an inbound person record against existing people.
type PersonMatcher struct {
	logger    ectologger.Logger
	people    PersonReader
	companies EmployerReader
}

func NewPersonMatcher(logger ectologger.Logger, people PersonReader, companies EmployerReader) *PersonMatcher {
	return &PersonMatcher{
		logger:    logger,
		people:    people,
		companies: companies,
	}
}

// Match evaluates the person signals in order of strength. An email hit is
// near-certain identity, so when one fires the identifier url lookup is
// skipped. Name-only matches are a last resort and only fire when no other
// signal produced anything.
func (m *PersonMatcher) Match(ctx context.Context, tenantID string, record models.PersonRecord, cfg MatchConfig) (*models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.PersonMatcher.Match")
	defer span.End()

	signals := make([]models.MatchSignal, 0, 4)

	email := normalizers.Email(record.Email)
	emailMatched := false
	if email != "" {
		match, err := m.people.FindLiveByEmail(ctx, tenantID, email)
		if err != nil {
			return nil, err
		}
		if match != nil {
			emailMatched = true
			signals = append(signals, models.MatchSignal{
				EntityID:   match.ID,
				Confidence: cfg.EmailConfidence,
				Reason:     "same email address",
			})
		}
	}

	if !emailMatched {
		if identifierURL := strings.TrimSpace(record.LinkedInURL); identifierURL != "" {
			match, err := m.people.FindLiveByLinkedInURL(ctx, tenantID, identifierURL)
			if err != nil {
				return nil, err
			}
			if match != nil {
				signals = append(signals, models.MatchSignal{
					EntityID:   match.ID,
					Confidence: cfg.PersonIdentifierConfidence,
					Reason:     "same linkedin url",
				})
			}
		}
	}

	normalizedName := normalizers.PersonName(record.FirstName, record.LastName)
	var namesakes []models.Person
	if normalizedName != "" {
		var err error
		namesakes, err = m.people.ListLiveByNormalizedName(ctx, tenantID, normalizedName)
		if err != nil {
			return nil, err
		}
	}

	if len(namesakes) > 0 {
		employerSignals, err := m.employerSignals(ctx, tenantID, record, email, namesakes, cfg)
		if err != nil {
			return nil, err
		}
		signals = append(signals, employerSignals...)
	}

	// Name alone is too weak to stand next to anything else.
	if len(signals) == 0 {
		for _, namesake := range namesakes {
			signals = append(signals, models.MatchSignal{
				EntityID:   namesake.ID,
				Confidence: cfg.NameOnlyConfidence,
				Reason:     fmt.Sprintf("name match %q with no corroborating signal", normalizedName),
			})
		}
	}

	result := collectResult(signals)

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"signal_count": len(signals),
		"confidence":   result.Confidence,
	}).Debug("Person match evaluated")

	return result, nil
}

// employerSignals corroborates a name match with the person's employer. The
// employer is resolved from the stated company name first, then from the
// email domain.
func (m *PersonMatcher) employerSignals(ctx context.Context, tenantID string, record models.PersonRecord, email string, namesakes []models.Person, cfg MatchConfig) ([]models.MatchSignal, error) {
	var signals []models.MatchSignal

	if employerName := normalizers.CompanyName(record.CompanyName); employerName != "" {
		employer, err := m.companies.FindLiveByNormalizedName(ctx, tenantID, employerName)
		if err != nil {
			return nil, err
		}
		if employer != nil {
			for _, namesake := range namesakes {
				if namesake.CompanyID != nil && *namesake.CompanyID == employer.ID {
					signals = append(signals, models.MatchSignal{
						EntityID:   namesake.ID,
						Confidence: cfg.NameWithEmployerConfidence,
						Reason:     fmt.Sprintf("same name at employer %q", employerName),
					})
				}
			}
		}
	}

	if domain := normalizers.DomainFromEmail(email); domain != "" {
		employer, err := m.companies.FindLiveByDomain(ctx, tenantID, domain)
		if err != nil {
			return nil, err
		}
		if employer != nil {
			for _, namesake := range namesakes {
				if namesake.CompanyID != nil && *namesake.CompanyID == employer.ID {
					signals = append(signals, models.MatchSignal{
						EntityID:   namesake.ID,
						Confidence: cfg.NameWithEmailDomainConfidence,
						Reason:     fmt.Sprintf("same name at company owning email domain %q", domain),
					})
				}
			}
		}
	}

	return signals, nil
}
