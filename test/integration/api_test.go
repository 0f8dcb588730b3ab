package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/automerge"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/routes/duplicate"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/match"
	"github.com/Ramsey-B/clover/pkg/routes/merge"
	"github.com/Ramsey-B/clover/pkg/server"
)

const testTenant = "tenant-1"

func newTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type companyReader struct {
	byDomain map[string]*models.Company
	byName   map[string]*models.Company
	byURL    map[string]*models.Company
}

func (f *companyReader) FindLiveByDomain(_ context.Context, _, domain string) (*models.Company, error) {
	return f.byDomain[domain], nil
}

func (f *companyReader) FindLiveByNormalizedName(_ context.Context, _, name string) (*models.Company, error) {
	return f.byName[name], nil
}

func (f *companyReader) FindLiveByLinkedInURL(_ context.Context, _, url string) (*models.Company, error) {
	return f.byURL[url], nil
}

func (f *companyReader) ScanLiveByNamePrefix(_ context.Context, _, _ string, _ int) ([]models.Company, error) {
	return nil, nil
}

type personReader struct {
	byEmail map[string]*models.Person
}

func (f *personReader) FindLiveByEmail(_ context.Context, _, email string) (*models.Person, error) {
	return f.byEmail[email], nil
}

func (f *personReader) FindLiveByLinkedInURL(_ context.Context, _, _ string) (*models.Person, error) {
	return nil, nil
}

func (f *personReader) ListLiveByNormalizedName(_ context.Context, _, _ string) ([]models.Person, error) {
	return nil, nil
}

type companyStore struct {
	companies  map[string]*models.Company
	tombstoned []string
}

func (f *companyStore) Get(_ context.Context, _ string, id string) (*models.Company, error) {
	company, ok := f.companies[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "company %s not found", id)
	}
	return company, nil
}

func (f *companyStore) LockLive(_ context.Context, _ string, id string) error {
	company, ok := f.companies[id]
	if !ok || company.IsMerged() {
		return httperror.NewHTTPErrorf(http.StatusConflict, "company %s is already merged", id)
	}
	return nil
}

func (f *companyStore) Tombstone(_ context.Context, _ string, id string, _ string, _ time.Time) error {
	f.tombstoned = append(f.tombstoned, id)
	return nil
}

func (f *companyStore) ListLive(_ context.Context, _ string) ([]models.Company, error) {
	var live []models.Company
	for _, company := range f.companies {
		if !company.IsMerged() {
			live = append(live, *company)
		}
	}
	return live, nil
}

type personStore struct{}

func (f *personStore) Get(_ context.Context, _ string, id string) (*models.Person, error) {
	return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "person %s not found", id)
}

func (f *personStore) LockLive(_ context.Context, _ string, _ string) error {
	return nil
}

func (f *personStore) Tombstone(_ context.Context, _ string, _ string, _ string, _ time.Time) error {
	return nil
}

func (f *personStore) ListLive(_ context.Context, _ string) ([]models.Person, error) {
	return nil, nil
}

type auditStore struct {
	created []models.MergeAudit
}

func (f *auditStore) Create(_ context.Context, audit *models.MergeAudit) (*models.MergeAudit, error) {
	stored := *audit
	stored.ID = uuid.NewString()
	f.created = append(f.created, stored)
	return &stored, nil
}

func (f *auditStore) ListByEntity(_ context.Context, _ string, entityID string) ([]models.MergeAudit, error) {
	var matched []models.MergeAudit
	for _, audit := range f.created {
		if audit.PrimaryID == entityID {
			matched = append(matched, audit)
		}
	}
	return matched, nil
}

type domainStore struct {
	domains []models.CompanyDomain
}

func (f *domainStore) ListByTenant(_ context.Context, _ string) ([]models.CompanyDomain, error) {
	return f.domains, nil
}

// candidateStore backs the scanner, the review endpoints, and the auto-merge
// policy in one in-memory map.
type candidateStore struct {
	candidates map[string]*models.DuplicateCandidate
}

func newCandidateStore() *candidateStore {
	return &candidateStore{candidates: map[string]*models.DuplicateCandidate{}}
}

func (f *candidateStore) Create(_ context.Context, candidate *models.DuplicateCandidate) (*models.DuplicateCandidate, error) {
	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	f.candidates[candidate.ID] = candidate
	return candidate, nil
}

func (f *candidateStore) Get(_ context.Context, _ string, id string) (*models.DuplicateCandidate, error) {
	candidate, ok := f.candidates[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "duplicate candidate %s not found", id)
	}
	return candidate, nil
}

func (f *candidateStore) HasAnyByPair(_ context.Context, _ string, kind models.EntityKind, entityA, entityB string) (bool, error) {
	for _, candidate := range f.candidates {
		if candidate.EntityKind != kind {
			continue
		}
		if (candidate.EntityAID == entityA && candidate.EntityBID == entityB) ||
			(candidate.EntityAID == entityB && candidate.EntityBID == entityA) {
			return true, nil
		}
	}
	return false, nil
}

func (f *candidateStore) ListPending(_ context.Context, _ string, kind models.EntityKind, page, pageSize int) ([]models.DuplicateCandidate, int, error) {
	var pending []models.DuplicateCandidate
	for _, candidate := range f.candidates {
		if candidate.Status != models.DuplicateCandidateStatusPending {
			continue
		}
		if kind != "" && candidate.EntityKind != kind {
			continue
		}
		pending = append(pending, *candidate)
	}
	return pending, len(pending), nil
}

func (f *candidateStore) ListPendingAboveConfidence(_ context.Context, _ string, _ []models.EntityKind, minConfidence float64, limit int) ([]models.DuplicateCandidate, error) {
	var matched []models.DuplicateCandidate
	for _, candidate := range f.candidates {
		if candidate.Status == models.DuplicateCandidateStatusPending && candidate.Confidence >= minConfidence {
			matched = append(matched, *candidate)
		}
		if len(matched) == limit {
			break
		}
	}
	return matched, nil
}

func (f *candidateStore) Resolve(_ context.Context, _ string, id string, status models.DuplicateCandidateStatus, resolvedBy *string) error {
	candidate, ok := f.candidates[id]
	if !ok || candidate.Status != models.DuplicateCandidateStatusPending {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "pending duplicate candidate %s not found", id)
	}
	candidate.Status = status
	candidate.ResolvedBy = resolvedBy
	return nil
}

func (f *candidateStore) ExpireStale(_ context.Context, _ string, cutoff time.Time) (int, error) {
	expired := 0
	for _, candidate := range f.candidates {
		if candidate.Status == models.DuplicateCandidateStatusPending && candidate.CreatedAt.Before(cutoff) {
			candidate.Status = models.DuplicateCandidateStatusExpired
			expired++
		}
	}
	return expired, nil
}

func (f *candidateStore) Stats(_ context.Context, _ string) (*models.DuplicateStats, error) {
	stats := &models.DuplicateStats{
		ByStatus:     map[string]int{},
		ByEntityKind: map[string]int{},
		ScoreBuckets: map[string]int{},
	}
	for _, candidate := range f.candidates {
		stats.Total++
		stats.ByStatus[string(candidate.Status)]++
		stats.ByEntityKind[string(candidate.EntityKind)]++
	}
	return stats, nil
}

func (f *candidateStore) ResolveForEntities(_ context.Context, _ string, kind models.EntityKind, entityIDs []string, status models.DuplicateCandidateStatus, resolvedBy *string) (int, error) {
	ids := map[string]bool{}
	for _, id := range entityIDs {
		ids[id] = true
	}
	resolved := 0
	for _, candidate := range f.candidates {
		if candidate.Status != models.DuplicateCandidateStatusPending || candidate.EntityKind != kind {
			continue
		}
		if ids[candidate.EntityAID] || ids[candidate.EntityBID] {
			candidate.Status = status
			candidate.ResolvedBy = resolvedBy
			resolved++
		}
	}
	return resolved, nil
}

// testApp assembles the full application over in-memory stores and a sqlmock
// connection, so requests exercise the real middleware, routing, validation,
// and error rendering.
type testApp struct {
	t          *testing.T
	srv        *server.Server
	mock       sqlmock.Sqlmock
	companies  *companyStore
	audits     *auditStore
	candidates *candidateStore
}

func newTestApp(t *testing.T, companies *companyStore, domains *domainStore, reader *companyReader) *testApp {
	t.Helper()
	logger := newTestLogger()

	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDb.Close() })
	sqlxDb := sqlx.NewDb(mockDb, "postgres")
	db := database.NewDatabaseInstance(sqlxDb, logger)

	if companies == nil {
		companies = &companyStore{companies: map[string]*models.Company{}}
	}
	if domains == nil {
		domains = &domainStore{}
	}
	if reader == nil {
		reader = &companyReader{}
	}

	audits := &auditStore{}
	candidates := newCandidateStore()
	peopleStore := &personStore{}

	matchService := matching.NewService(
		logger,
		matching.NewCompanyMatcher(logger, reader),
		matching.NewPersonMatcher(logger, &personReader{}, reader),
		matching.DefaultMatchConfig(),
	)

	engine := merging.NewEngine(db, logger, companies, peopleStore, audits, candidates, nil, nil)
	scanner := dedupe.NewScanner(logger, companies, domains, peopleStore, candidates, nil, nil, dedupe.DefaultConfig())
	policy := automerge.NewPolicy(logger, candidates, companies, peopleStore, engine, nil, nil)

	srv := server.New(server.Config{
		AppName:      "clover-test",
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST"},
	}, logger, server.Handlers{
		Match:     match.NewHandler(matchService),
		Merge:     merge.NewHandler(engine, audits),
		Duplicate: duplicate.NewHandler(scanner, policy, candidates, engine, automerge.DefaultConfig()),
		Health:    health.NewChecker(sqlxDb, nil, "test"),
	})

	return &testApp{t: t, srv: srv, mock: mock, companies: companies, audits: audits, candidates: candidates}
}

func (a *testApp) request(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	a.srv.ServeHTTP(rec, req)
	return rec
}

func tenantHeaders() map[string]string {
	return map[string]string{"X-Tenant-ID": testTenant}
}

func (a *testApp) expectCompanyMergeSQL(primaryID, duplicateID string) {
	a.mock.ExpectBegin()
	for _, table := range []string{"company_domains", "people", "employment_history", "deal_participants", "contacts", "activity_log"} {
		a.mock.ExpectExec("UPDATE " + table + " SET").
			WithArgs(primaryID, testTenant, duplicateID).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	a.mock.ExpectCommit()
}

func TestMatchAPI(t *testing.T) {
	t.Run("should reject requests without a tenant header", func(t *testing.T) {
		app := newTestApp(t, nil, nil, nil)

		rec := app.request(http.MethodPost, "/api/v1/matches/companies", models.CompanyRecord{Name: "Acme"}, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should auto link a company on a verified domain", func(t *testing.T) {
		reader := &companyReader{byDomain: map[string]*models.Company{
			"acme.com": {ID: "company-1", NormalizedName: "acme"},
		}}
		app := newTestApp(t, nil, nil, reader)

		rec := app.request(http.MethodPost, "/api/v1/matches/companies", models.CompanyRecord{
			Name:    "Acme Corp.",
			Website: "https://www.acme.com",
		}, tenantHeaders())

		require.Equal(t, http.StatusOK, rec.Code)
		var routed models.RoutedMatch
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &routed))
		assert.Equal(t, models.MatchActionAutoLink, routed.Action)
		assert.Equal(t, "company-1", routed.EntityID)
		assert.Equal(t, 0.95, routed.Confidence)
	})

	t.Run("should reject a company match without a name", func(t *testing.T) {
		app := newTestApp(t, nil, nil, nil)

		rec := app.request(http.MethodPost, "/api/v1/matches/companies", models.CompanyRecord{Website: "https://acme.com"}, tenantHeaders())

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should route an unmatched record to create new", func(t *testing.T) {
		app := newTestApp(t, nil, nil, nil)

		rec := app.request(http.MethodPost, "/api/v1/matches/companies", models.CompanyRecord{Name: "Nobody Knows Us"}, tenantHeaders())

		require.Equal(t, http.StatusOK, rec.Code)
		var routed models.RoutedMatch
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &routed))
		assert.Equal(t, models.MatchActionCreateNew, routed.Action)
		assert.Empty(t, routed.EntityID)
	})
}

func TestMergeAPI(t *testing.T) {
	t.Run("should merge companies end to end", func(t *testing.T) {
		primaryID := uuid.NewString()
		duplicateID := uuid.NewString()
		companies := &companyStore{companies: map[string]*models.Company{
			primaryID:   {ID: primaryID, TenantID: testTenant},
			duplicateID: {ID: duplicateID, TenantID: testTenant},
		}}
		app := newTestApp(t, companies, nil, nil)
		app.expectCompanyMergeSQL(primaryID, duplicateID)

		headers := tenantHeaders()
		headers["X-User-ID"] = "reviewer-1"
		rec := app.request(http.MethodPost, "/api/v1/merges/companies", models.MergeRequest{
			PrimaryID:    primaryID,
			DuplicateIDs: []string{duplicateID},
		}, headers)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var result models.MergeResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, primaryID, result.SurvivorID)
		assert.Equal(t, []string{duplicateID}, result.AbsorbedIDs)

		assert.Equal(t, []string{duplicateID}, companies.tombstoned)
		require.Len(t, app.audits.created, 1)
		require.NotNil(t, app.audits.created[0].PerformedBy)
		assert.Equal(t, "reviewer-1", *app.audits.created[0].PerformedBy)
		assert.NoError(t, app.mock.ExpectationsWereMet())
	})

	t.Run("should reject a merge request with a malformed id", func(t *testing.T) {
		app := newTestApp(t, nil, nil, nil)

		rec := app.request(http.MethodPost, "/api/v1/merges/companies", models.MergeRequest{
			PrimaryID:    "not-a-uuid",
			DuplicateIDs: []string{uuid.NewString()},
		}, tenantHeaders())

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should surface a conflict when the duplicate is already merged", func(t *testing.T) {
		primaryID := uuid.NewString()
		duplicateID := uuid.NewString()
		mergedInto := uuid.NewString()
		companies := &companyStore{companies: map[string]*models.Company{
			primaryID:   {ID: primaryID, TenantID: testTenant},
			duplicateID: {ID: duplicateID, TenantID: testTenant, MergedInto: &mergedInto},
		}}
		app := newTestApp(t, companies, nil, nil)

		rec := app.request(http.MethodPost, "/api/v1/merges/companies", models.MergeRequest{
			PrimaryID:    primaryID,
			DuplicateIDs: []string{duplicateID},
		}, tenantHeaders())

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestDuplicateAPI(t *testing.T) {
	t.Run("should scan and queue pending candidates", func(t *testing.T) {
		companyA := uuid.NewString()
		companyB := uuid.NewString()
		companies := &companyStore{companies: map[string]*models.Company{
			companyA: {ID: companyA, TenantID: testTenant, NormalizedName: "acme"},
			companyB: {ID: companyB, TenantID: testTenant, NormalizedName: "acme holdings"},
		}}
		domains := &domainStore{domains: []models.CompanyDomain{
			{CompanyID: companyA, Domain: "acme.com"},
			{CompanyID: companyB, Domain: "acme.com"},
		}}
		app := newTestApp(t, companies, domains, nil)

		rec := app.request(http.MethodPost, "/api/v1/duplicates/scan", nil, tenantHeaders())

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var run models.ScanRun
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
		assert.Equal(t, 1, run.CandidatesInserted)
		assert.Len(t, app.candidates.candidates, 1)
	})

	t.Run("should dismiss a pending candidate", func(t *testing.T) {
		app := newTestApp(t, nil, nil, nil)
		candidate := &models.DuplicateCandidate{
			ID:         uuid.NewString(),
			TenantID:   testTenant,
			EntityKind: models.EntityKindCompany,
			EntityAID:  uuid.NewString(),
			EntityBID:  uuid.NewString(),
			Confidence: 0.9,
			Status:     models.DuplicateCandidateStatusPending,
		}
		app.candidates.candidates[candidate.ID] = candidate

		rec := app.request(http.MethodPost, "/api/v1/duplicates/candidates/"+candidate.ID+"/dismiss", nil, tenantHeaders())

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, models.DuplicateCandidateStatusDismissed, candidate.Status)
	})

	t.Run("should accept a candidate by merging into the chosen survivor", func(t *testing.T) {
		primaryID := uuid.NewString()
		duplicateID := uuid.NewString()
		companies := &companyStore{companies: map[string]*models.Company{
			primaryID:   {ID: primaryID, TenantID: testTenant},
			duplicateID: {ID: duplicateID, TenantID: testTenant},
		}}
		app := newTestApp(t, companies, nil, nil)
		candidate := &models.DuplicateCandidate{
			ID:         uuid.NewString(),
			TenantID:   testTenant,
			EntityKind: models.EntityKindCompany,
			EntityAID:  primaryID,
			EntityBID:  duplicateID,
			Confidence: 0.95,
			Status:     models.DuplicateCandidateStatusPending,
		}
		app.candidates.candidates[candidate.ID] = candidate
		app.expectCompanyMergeSQL(primaryID, duplicateID)

		rec := app.request(http.MethodPost, "/api/v1/duplicates/candidates/"+candidate.ID+"/accept",
			duplicate.AcceptRequest{PrimaryID: primaryID}, tenantHeaders())

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, models.DuplicateCandidateStatusMerged, candidate.Status)
		assert.Equal(t, []string{duplicateID}, companies.tombstoned)
	})

	t.Run("should reject accepting with a survivor outside the pair", func(t *testing.T) {
		app := newTestApp(t, nil, nil, nil)
		candidate := &models.DuplicateCandidate{
			ID:         uuid.NewString(),
			TenantID:   testTenant,
			EntityKind: models.EntityKindCompany,
			EntityAID:  uuid.NewString(),
			EntityBID:  uuid.NewString(),
			Confidence: 0.95,
			Status:     models.DuplicateCandidateStatusPending,
		}
		app.candidates.candidates[candidate.ID] = candidate

		rec := app.request(http.MethodPost, "/api/v1/duplicates/candidates/"+candidate.ID+"/accept",
			duplicate.AcceptRequest{PrimaryID: uuid.NewString()}, tenantHeaders())

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should reject an auto merge run that loosens the policy", func(t *testing.T) {
		app := newTestApp(t, nil, nil, nil)
		lowered := 0.5

		rec := app.request(http.MethodPost, "/api/v1/duplicates/automerge",
			duplicate.AutoMergeRequest{MinConfidence: &lowered}, tenantHeaders())

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthAPI(t *testing.T) {
	app := newTestApp(t, nil, nil, nil)

	rec := app.request(http.MethodGet, "/api/v1/health/live", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}
