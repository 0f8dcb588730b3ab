package matching

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Service bundles the matchers with routing so callers get an actionable
// decision in one call.
type Service struct {
	logger    ectologger.Logger
	companies *CompanyMatcher
	people    *PersonMatcher
	config    MatchConfig
}

// NewService creates the match service. The config supplies the default
// thresholds; per-call overrides are not supported, change the config and
// restart instead.
func NewService(logger ectologger.Logger, companies *CompanyMatcher, people *PersonMatcher, config MatchConfig) *Service {
	return &Service{
		logger:    logger,
		companies: companies,
		people:    people,
		config:    config,
	}
}

// FindCompanyMatches scores an inbound company record and routes the result.
func (s *Service) FindCompanyMatches(ctx context.Context, tenantID string, record models.CompanyRecord) (*models.RoutedMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.FindCompanyMatches")
	defer span.End()

	started := time.Now()
	result, err := s.companies.Match(ctx, tenantID, record, s.config)
	if err != nil {
		return nil, err
	}

	routed := Route(result, s.config)
	s.observe(ctx, tenantID, models.EntityKindCompany, routed, started)
	return routed, nil
}

// FindPersonMatches scores an inbound person record and routes the result.
func (s *Service) FindPersonMatches(ctx context.Context, tenantID string, record models.PersonRecord) (*models.RoutedMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.FindPersonMatches")
	defer span.End()

	started := time.Now()
	result, err := s.people.Match(ctx, tenantID, record, s.config)
	if err != nil {
		return nil, err
	}

	routed := Route(result, s.config)
	s.observe(ctx, tenantID, models.EntityKindPerson, routed, started)
	return routed, nil
}

func (s *Service) observe(ctx context.Context, tenantID string, kind models.EntityKind, routed *models.RoutedMatch, started time.Time) {
	metrics.MatchRequestsTotal.WithLabelValues(string(kind), string(routed.Action)).Inc()
	metrics.MatchDuration.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"entity_kind": kind,
		"action":      routed.Action,
		"confidence":  routed.Confidence,
	}).Info("Match request routed")
}
