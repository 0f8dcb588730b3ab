package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func newTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func strptr(s string) *string { return &s }

type fakeCompanyLister struct {
	companies []models.Company
	err       error
}

func (f *fakeCompanyLister) ListLive(_ context.Context, _ string) ([]models.Company, error) {
	return f.companies, f.err
}

type fakeDomainLister struct {
	domains []models.CompanyDomain
}

func (f *fakeDomainLister) ListByTenant(_ context.Context, _ string) ([]models.CompanyDomain, error) {
	return f.domains, nil
}

type fakePersonLister struct {
	people []models.Person
}

func (f *fakePersonLister) ListLive(_ context.Context, _ string) ([]models.Person, error) {
	return f.people, nil
}

type fakeCandidateStore struct {
	existing  map[string]bool
	created   []models.DuplicateCandidate
	expired   int
	createErr error
}

func pairKey(a, b string) string {
	if a < b {
		return a + ":" + b
	}
	return b + ":" + a
}

func (f *fakeCandidateStore) Create(_ context.Context, candidate *models.DuplicateCandidate) (*models.DuplicateCandidate, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, *candidate)
	return candidate, nil
}

func (f *fakeCandidateStore) HasAnyByPair(_ context.Context, _ string, _ models.EntityKind, entityA, entityB string) (bool, error) {
	return f.existing[pairKey(entityA, entityB)], nil
}

func (f *fakeCandidateStore) ExpireStale(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.expired, nil
}

func (f *fakeCandidateStore) Stats(_ context.Context, _ string) (*models.DuplicateStats, error) {
	return &models.DuplicateStats{Total: len(f.created)}, nil
}

type fakeRunRecorder struct {
	started  int
	finished []models.ScanRun
}

func (f *fakeRunRecorder) Start(_ context.Context, tenantID string) (*models.ScanRun, error) {
	f.started++
	return &models.ScanRun{ID: "run-1", TenantID: tenantID, Status: models.ScanRunStatusRunning, StartedAt: time.Now().UTC()}, nil
}

func (f *fakeRunRecorder) Finish(_ context.Context, run *models.ScanRun) error {
	f.finished = append(f.finished, *run)
	return nil
}

func newTestScanner(companies *fakeCompanyLister, domains *fakeDomainLister, people *fakePersonLister, candidates *fakeCandidateStore, runs *fakeRunRecorder) *Scanner {
	var recorder RunRecorder
	if runs != nil {
		recorder = runs
	}
	return NewScanner(newTestLogger(), companies, domains, people, candidates, recorder, nil, DefaultConfig())
}

func TestFindDuplicateCompanies(t *testing.T) {
	ctx := context.Background()

	t.Run("should flag companies sharing an owned domain", func(t *testing.T) {
		scanner := newTestScanner(
			&fakeCompanyLister{companies: []models.Company{
				{ID: "c1", NormalizedName: "acme"},
				{ID: "c2", NormalizedName: "acme holdings"},
			}},
			&fakeDomainLister{domains: []models.CompanyDomain{
				{CompanyID: "c1", Domain: "acme.com"},
				{CompanyID: "c2", Domain: "acme.com"},
			}},
			&fakePersonLister{}, &fakeCandidateStore{}, nil,
		)

		pairs, err := scanner.FindDuplicateCompanies(ctx, "tenant-1", 0)
		require.NoError(t, err)

		require.Len(t, pairs, 1)
		assert.Equal(t, 0.95, pairs[0].Confidence)
		assert.Contains(t, pairs[0].Reasons[0], "acme.com")
	})

	t.Run("should flag near-identical names with a discount", func(t *testing.T) {
		scanner := newTestScanner(
			&fakeCompanyLister{companies: []models.Company{
				{ID: "c1", NormalizedName: "acme solutions"},
				{ID: "c2", NormalizedName: "akme solutions"},
			}},
			&fakeDomainLister{}, &fakePersonLister{}, &fakeCandidateStore{}, nil,
		)

		pairs, err := scanner.FindDuplicateCompanies(ctx, "tenant-1", 0)
		require.NoError(t, err)

		require.Len(t, pairs, 1)
		assert.InDelta(t, (13.0/14.0)*0.85, pairs[0].Confidence, 0.0001)
	})

	t.Run("should keep the strongest signal per pair", func(t *testing.T) {
		url := "https://linkedin.com/company/acme"
		scanner := newTestScanner(
			&fakeCompanyLister{companies: []models.Company{
				{ID: "c1", NormalizedName: "acme solutions", LinkedInURL: &url},
				{ID: "c2", NormalizedName: "acme solution", LinkedInURL: &url},
			}},
			&fakeDomainLister{}, &fakePersonLister{}, &fakeCandidateStore{}, nil,
		)

		pairs, err := scanner.FindDuplicateCompanies(ctx, "tenant-1", 0)
		require.NoError(t, err)

		require.Len(t, pairs, 1)
		assert.Equal(t, 0.95, pairs[0].Confidence)
		assert.Len(t, pairs[0].Reasons, 2)
	})

	t.Run("should drop pairs below the floor", func(t *testing.T) {
		scanner := newTestScanner(
			&fakeCompanyLister{companies: []models.Company{
				{ID: "c1", NormalizedName: "alpha industries"},
				{ID: "c2", NormalizedName: "zeta logistics"},
			}},
			&fakeDomainLister{}, &fakePersonLister{}, &fakeCandidateStore{}, nil,
		)

		pairs, err := scanner.FindDuplicateCompanies(ctx, "tenant-1", 0)
		require.NoError(t, err)

		assert.Empty(t, pairs)
	})

	t.Run("should sort pairs strongest first", func(t *testing.T) {
		scanner := newTestScanner(
			&fakeCompanyLister{companies: []models.Company{
				{ID: "c1", NormalizedName: "acme solutions"},
				{ID: "c2", NormalizedName: "akme solutions"},
				{ID: "c3", NormalizedName: "acme solutions"},
			}},
			&fakeDomainLister{}, &fakePersonLister{}, &fakeCandidateStore{}, nil,
		)

		pairs, err := scanner.FindDuplicateCompanies(ctx, "tenant-1", 0)
		require.NoError(t, err)

		require.NotEmpty(t, pairs)
		for i := 1; i < len(pairs); i++ {
			assert.GreaterOrEqual(t, pairs[i-1].Confidence, pairs[i].Confidence)
		}
	})
}

func TestFindDuplicatePeople(t *testing.T) {
	ctx := context.Background()

	t.Run("should only compare people sharing a normalized name", func(t *testing.T) {
		scanner := newTestScanner(
			&fakeCompanyLister{}, &fakeDomainLister{},
			&fakePersonLister{people: []models.Person{
				{ID: "p1", NormalizedName: "jane doe"},
				{ID: "p2", NormalizedName: "jane doe"},
				{ID: "p3", NormalizedName: "john smith"},
			}},
			&fakeCandidateStore{}, nil,
		)

		pairs, err := scanner.FindDuplicatePeople(ctx, "tenant-1", 0.5)
		require.NoError(t, err)

		require.Len(t, pairs, 1)
		assert.Equal(t, models.EntityKindPerson, pairs[0].EntityKind)
		assert.Equal(t, 0.60, pairs[0].Confidence)
	})

	t.Run("should boost namesakes at the same employer", func(t *testing.T) {
		scanner := newTestScanner(
			&fakeCompanyLister{}, &fakeDomainLister{},
			&fakePersonLister{people: []models.Person{
				{ID: "p1", NormalizedName: "jane doe", CompanyID: strptr("c1")},
				{ID: "p2", NormalizedName: "jane doe", CompanyID: strptr("c1")},
			}},
			&fakeCandidateStore{}, nil,
		)

		pairs, err := scanner.FindDuplicatePeople(ctx, "tenant-1", 0)
		require.NoError(t, err)

		require.Len(t, pairs, 1)
		assert.Equal(t, 0.85, pairs[0].Confidence)
	})

	t.Run("should treat a shared identifier url as near certain", func(t *testing.T) {
		scanner := newTestScanner(
			&fakeCompanyLister{}, &fakeDomainLister{},
			&fakePersonLister{people: []models.Person{
				{ID: "p1", NormalizedName: "jane doe", LinkedInURL: strptr("https://linkedin.com/in/janedoe")},
				{ID: "p2", NormalizedName: "jane doe", LinkedInURL: strptr("https://linkedin.com/in/janedoe")},
			}},
			&fakeCandidateStore{}, nil,
		)

		pairs, err := scanner.FindDuplicatePeople(ctx, "tenant-1", 0)
		require.NoError(t, err)

		require.Len(t, pairs, 1)
		assert.Equal(t, 0.95, pairs[0].Confidence)
	})

	t.Run("should drop base-confidence namesakes below the default floor", func(t *testing.T) {
		scanner := newTestScanner(
			&fakeCompanyLister{}, &fakeDomainLister{},
			&fakePersonLister{people: []models.Person{
				{ID: "p1", NormalizedName: "jane doe"},
				{ID: "p2", NormalizedName: "jane doe"},
			}},
			&fakeCandidateStore{}, nil,
		)

		pairs, err := scanner.FindDuplicatePeople(ctx, "tenant-1", 0)
		require.NoError(t, err)

		assert.Empty(t, pairs)
	})
}

func TestRunDetection(t *testing.T) {
	ctx := context.Background()

	t.Run("should queue new candidates and record the run", func(t *testing.T) {
		candidates := &fakeCandidateStore{existing: map[string]bool{}}
		runs := &fakeRunRecorder{}
		scanner := newTestScanner(
			&fakeCompanyLister{companies: []models.Company{
				{ID: "c1", NormalizedName: "acme"},
				{ID: "c2", NormalizedName: "acme holdings"},
			}},
			&fakeDomainLister{domains: []models.CompanyDomain{
				{CompanyID: "c1", Domain: "acme.com"},
				{CompanyID: "c2", Domain: "acme.com"},
			}},
			&fakePersonLister{people: []models.Person{
				{ID: "p1", NormalizedName: "jane doe", CompanyID: strptr("c1")},
				{ID: "p2", NormalizedName: "jane doe", CompanyID: strptr("c1")},
			}},
			candidates, runs,
		)

		run, err := scanner.RunDetection(ctx, "tenant-1", 0)
		require.NoError(t, err)

		assert.Equal(t, models.ScanRunStatusCompleted, run.Status)
		assert.Equal(t, 2, run.CompaniesScanned)
		assert.Equal(t, 2, run.PeopleScanned)
		assert.Equal(t, 2, run.PairsCompared)
		assert.Equal(t, 2, run.CandidatesFound)
		assert.Equal(t, 2, run.CandidatesInserted)
		require.Len(t, candidates.created, 2)
		assert.Equal(t, models.DuplicateCandidateStatusPending, candidates.created[0].Status)
		assert.Equal(t, 1, runs.started)
		require.Len(t, runs.finished, 1)
	})

	t.Run("should not re-queue a pair with any prior candidate", func(t *testing.T) {
		candidates := &fakeCandidateStore{existing: map[string]bool{pairKey("c1", "c2"): true}}
		scanner := newTestScanner(
			&fakeCompanyLister{companies: []models.Company{
				{ID: "c1", NormalizedName: "acme"},
				{ID: "c2", NormalizedName: "acme holdings"},
			}},
			&fakeDomainLister{domains: []models.CompanyDomain{
				{CompanyID: "c1", Domain: "acme.com"},
				{CompanyID: "c2", Domain: "acme.com"},
			}},
			&fakePersonLister{}, candidates, nil,
		)

		run, err := scanner.RunDetection(ctx, "tenant-1", 0)
		require.NoError(t, err)

		assert.Equal(t, 1, run.CandidatesFound)
		assert.Zero(t, run.CandidatesInserted)
		assert.Empty(t, candidates.created)
	})

	t.Run("should mark the run failed when listing blows up", func(t *testing.T) {
		runs := &fakeRunRecorder{}
		scanner := newTestScanner(
			&fakeCompanyLister{err: assert.AnError},
			&fakeDomainLister{}, &fakePersonLister{}, &fakeCandidateStore{}, runs,
		)

		_, err := scanner.RunDetection(ctx, "tenant-1", 0)
		require.Error(t, err)

		require.Len(t, runs.finished, 1)
		assert.Equal(t, models.ScanRunStatusFailed, runs.finished[0].Status)
		require.NotNil(t, runs.finished[0].Error)
	})
}

func TestCleanupStale(t *testing.T) {
	candidates := &fakeCandidateStore{expired: 3}
	scanner := newTestScanner(&fakeCompanyLister{}, &fakeDomainLister{}, &fakePersonLister{}, candidates, nil)

	result, err := scanner.CleanupStale(context.Background(), "tenant-1")
	require.NoError(t, err)

	assert.Equal(t, 3, result.Removed)
	assert.Empty(t, result.Errors)
}
