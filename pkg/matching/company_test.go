package matching

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func newTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeCompanyReader struct {
	byDomain map[string]*models.Company
	byName   map[string]*models.Company
	byURL    map[string]*models.Company
	scan     []models.Company
	err      error

	scanCalls int
	gotPrefix string
	gotLimit  int
}

func (f *fakeCompanyReader) FindLiveByDomain(_ context.Context, _, domain string) (*models.Company, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byDomain[domain], nil
}

func (f *fakeCompanyReader) FindLiveByNormalizedName(_ context.Context, _, normalizedName string) (*models.Company, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byName[normalizedName], nil
}

func (f *fakeCompanyReader) FindLiveByLinkedInURL(_ context.Context, _, linkedInURL string) (*models.Company, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byURL[linkedInURL], nil
}

func (f *fakeCompanyReader) ScanLiveByNamePrefix(_ context.Context, _, prefix string, limit int) ([]models.Company, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.scanCalls++
	f.gotPrefix = prefix
	f.gotLimit = limit
	return f.scan, nil
}

func TestCompanyMatcher(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultMatchConfig()

	t.Run("should match on verified domain from the website", func(t *testing.T) {
		reader := &fakeCompanyReader{
			byDomain: map[string]*models.Company{
				"acme.com": {ID: "company-1", NormalizedName: "acme"},
			},
		}
		matcher := NewCompanyMatcher(newTestLogger(), reader)

		result, err := matcher.Match(ctx, "tenant-1", models.CompanyRecord{
			Name:    "Acme Corp.",
			Website: "https://www.Acme.com/about",
		}, cfg)
		require.NoError(t, err)

		assert.Equal(t, "company-1", result.EntityID)
		assert.Equal(t, cfg.VerifiedDomainConfidence, result.Confidence)
		require.Len(t, result.Signals, 1)
		assert.Contains(t, result.Signals[0].Reason, "acme.com")
	})

	t.Run("should prefer the explicit domain over the website", func(t *testing.T) {
		reader := &fakeCompanyReader{
			byDomain: map[string]*models.Company{
				"acme.io": {ID: "company-2"},
			},
		}
		matcher := NewCompanyMatcher(newTestLogger(), reader)

		result, err := matcher.Match(ctx, "tenant-1", models.CompanyRecord{
			Name:    "Acme",
			Domain:  "acme.io",
			Website: "https://unrelated.example.com",
		}, cfg)
		require.NoError(t, err)

		assert.Equal(t, "company-2", result.EntityID)
		assert.Equal(t, cfg.VerifiedDomainConfidence, result.Confidence)
	})

	t.Run("should match on exact normalized name", func(t *testing.T) {
		reader := &fakeCompanyReader{
			byName: map[string]*models.Company{
				"acme": {ID: "company-3", NormalizedName: "acme"},
			},
		}
		matcher := NewCompanyMatcher(newTestLogger(), reader)

		result, err := matcher.Match(ctx, "tenant-1", models.CompanyRecord{Name: "Acme Corp."}, cfg)
		require.NoError(t, err)

		assert.Equal(t, "company-3", result.EntityID)
		assert.Equal(t, cfg.ExactNameConfidence, result.Confidence)
	})

	t.Run("should match on linkedin url", func(t *testing.T) {
		reader := &fakeCompanyReader{
			byURL: map[string]*models.Company{
				"https://linkedin.com/company/acme": {ID: "company-4"},
			},
		}
		matcher := NewCompanyMatcher(newTestLogger(), reader)

		result, err := matcher.Match(ctx, "tenant-1", models.CompanyRecord{
			Name:        "Totally Different Name",
			LinkedInURL: "  https://linkedin.com/company/acme  ",
		}, cfg)
		require.NoError(t, err)

		assert.Equal(t, "company-4", result.EntityID)
		assert.Equal(t, cfg.IdentifierURLConfidence, result.Confidence)
	})

	t.Run("should keep the strongest signal instead of summing them", func(t *testing.T) {
		company := &models.Company{ID: "company-5", NormalizedName: "acme"}
		reader := &fakeCompanyReader{
			byDomain: map[string]*models.Company{"acme.com": company},
			byName:   map[string]*models.Company{"acme": company},
		}
		matcher := NewCompanyMatcher(newTestLogger(), reader)

		result, err := matcher.Match(ctx, "tenant-1", models.CompanyRecord{
			Name:    "Acme Inc",
			Website: "https://acme.com",
		}, cfg)
		require.NoError(t, err)

		assert.Equal(t, "company-5", result.EntityID)
		assert.Equal(t, cfg.VerifiedDomainConfidence, result.Confidence)
		assert.Len(t, result.Signals, 2)
	})

	t.Run("should skip the fuzzy scan once a signal can auto link", func(t *testing.T) {
		reader := &fakeCompanyReader{
			byDomain: map[string]*models.Company{
				"acme.com": {ID: "company-6"},
			},
			scan: []models.Company{{ID: "company-7", NormalizedName: "acme solutions"}},
		}
		matcher := NewCompanyMatcher(newTestLogger(), reader)

		_, err := matcher.Match(ctx, "tenant-1", models.CompanyRecord{
			Name:    "Acme Solutions",
			Website: "https://acme.com",
		}, cfg)
		require.NoError(t, err)

		assert.Zero(t, reader.scanCalls)
	})

	t.Run("should discount fuzzy name similarity", func(t *testing.T) {
		reader := &fakeCompanyReader{
			scan: []models.Company{
				{ID: "company-8", NormalizedName: "acme solutions"},
			},
		}
		matcher := NewCompanyMatcher(newTestLogger(), reader)

		result, err := matcher.Match(ctx, "tenant-1", models.CompanyRecord{Name: "Akme Solutions"}, cfg)
		require.NoError(t, err)

		assert.Equal(t, "company-8", result.EntityID)
		assert.InDelta(t, (13.0/14.0)*cfg.FuzzyDiscount, result.Confidence, 0.0001)
		assert.Equal(t, 1, reader.scanCalls)
		assert.Equal(t, "akme", reader.gotPrefix)
		assert.Equal(t, cfg.PrefixScanLimit, reader.gotLimit)
	})

	t.Run("should ignore fuzzy candidates below the similarity floor", func(t *testing.T) {
		reader := &fakeCompanyReader{
			scan: []models.Company{
				{ID: "company-9", NormalizedName: "completely unrelated enterprises"},
			},
		}
		matcher := NewCompanyMatcher(newTestLogger(), reader)

		result, err := matcher.Match(ctx, "tenant-1", models.CompanyRecord{Name: "Acme Solutions"}, cfg)
		require.NoError(t, err)

		assert.Empty(t, result.EntityID)
		assert.Empty(t, result.Signals)
	})

	t.Run("should use the full name as prefix when it is short", func(t *testing.T) {
		reader := &fakeCompanyReader{}
		matcher := NewCompanyMatcher(newTestLogger(), reader)

		_, err := matcher.Match(ctx, "tenant-1", models.CompanyRecord{Name: "Ab"}, cfg)
		require.NoError(t, err)

		assert.Equal(t, "ab", reader.gotPrefix)
	})

	t.Run("should return an empty result when nothing matches", func(t *testing.T) {
		matcher := NewCompanyMatcher(newTestLogger(), &fakeCompanyReader{})

		result, err := matcher.Match(ctx, "tenant-1", models.CompanyRecord{Name: "Nobody Knows This Company"}, cfg)
		require.NoError(t, err)

		assert.Empty(t, result.EntityID)
		assert.Zero(t, result.Confidence)
	})

	t.Run("should propagate reader errors", func(t *testing.T) {
		reader := &fakeCompanyReader{err: assert.AnError}
		matcher := NewCompanyMatcher(newTestLogger(), reader)

		_, err := matcher.Match(ctx, "tenant-1", models.CompanyRecord{Name: "Acme", Website: "https://acme.com"}, cfg)
		assert.Error(t, err)
	})
}
