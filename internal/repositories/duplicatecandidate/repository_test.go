package duplicatecandidate

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

func newTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDb.Close() })
	db := database.NewDatabaseInstance(sqlx.NewDb(mockDb, "postgres"), newTestLogger())
	return NewRepository(db, newTestLogger()), mock
}

func candidateColumns() []string {
	return []string{"id", "tenant_id", "entity_kind", "entity_a_id", "entity_b_id", "confidence", "reasons", "status", "created_at", "updated_at", "resolved_at", "resolved_by"}
}

func candidateRow(id string, confidence float64) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(candidateColumns()).
		AddRow(id, "tenant-1", "company", "c1", "c2", confidence, []byte(`["both own domain \"acme.com\""]`), "pending", now, now, nil, nil)
}

func TestCreate(t *testing.T) {
	t.Run("should assign an id and pending status", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec("INSERT INTO duplicate_candidates").
			WillReturnResult(sqlmock.NewResult(0, 1))

		candidate := &models.DuplicateCandidate{
			TenantID:   "tenant-1",
			EntityKind: models.EntityKindCompany,
			EntityAID:  "c1",
			EntityBID:  "c2",
			Confidence: 0.95,
			Reasons:    database.NewJSONB([]string{"both own domain \"acme.com\""}),
		}
		created, err := repo.Create(context.Background(), candidate)
		require.NoError(t, err)

		assert.NotEmpty(t, created.ID)
		assert.Equal(t, models.DuplicateCandidateStatusPending, created.Status)
		assert.False(t, created.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should wrap insert failures as internal errors", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec("INSERT INTO duplicate_candidates").
			WillReturnError(assert.AnError)

		_, err := repo.Create(context.Background(), &models.DuplicateCandidate{TenantID: "tenant-1"})
		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, httperror.GetStatusCode(err))
	})
}

func TestGet(t *testing.T) {
	t.Run("should return 404 when the candidate does not exist", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery("SELECT .* FROM duplicate_candidates").
			WillReturnRows(sqlmock.NewRows(candidateColumns()))

		_, err := repo.Get(context.Background(), "tenant-1", "missing")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("should return the candidate", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery("SELECT .* FROM duplicate_candidates").
			WithArgs("cand-1", "tenant-1").
			WillReturnRows(candidateRow("cand-1", 0.95))

		candidate, err := repo.Get(context.Background(), "tenant-1", "cand-1")
		require.NoError(t, err)

		assert.Equal(t, "cand-1", candidate.ID)
		assert.Equal(t, models.EntityKindCompany, candidate.EntityKind)
		assert.Equal(t, []string{"both own domain \"acme.com\""}, candidate.Reasons.Data)
	})
}

func TestHasAnyByPair(t *testing.T) {
	t.Run("should match the pair regardless of ordering", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery("SELECT COUNT").
			WithArgs("tenant-1", "company", "c2", "c1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		exists, err := repo.HasAnyByPair(context.Background(), "tenant-1", models.EntityKindCompany, "c2", "c1")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("should report false when no candidate covers the pair", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery("SELECT COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		exists, err := repo.HasAnyByPair(context.Background(), "tenant-1", models.EntityKindCompany, "c1", "c2")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestResolve(t *testing.T) {
	t.Run("should close a pending candidate", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec("UPDATE duplicate_candidates SET").
			WillReturnResult(sqlmock.NewResult(0, 1))

		resolvedBy := "user-1"
		err := repo.Resolve(context.Background(), "tenant-1", "cand-1", models.DuplicateCandidateStatusDismissed, &resolvedBy)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should return 404 when the candidate is not pending", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec("UPDATE duplicate_candidates SET").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Resolve(context.Background(), "tenant-1", "cand-1", models.DuplicateCandidateStatusDismissed, nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})
}

func TestResolveForEntities(t *testing.T) {
	t.Run("should report how many candidates were closed", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec("UPDATE duplicate_candidates SET").
			WillReturnResult(sqlmock.NewResult(0, 3))

		resolvedBy := "merge-engine"
		count, err := repo.ResolveForEntities(context.Background(), "tenant-1", models.EntityKindCompany, []string{"c1", "c2"}, models.DuplicateCandidateStatusMerged, &resolvedBy)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("should be a no-op for an empty id list", func(t *testing.T) {
		repo, mock := newTestRepository(t)

		count, err := repo.ResolveForEntities(context.Background(), "tenant-1", models.EntityKindCompany, nil, models.DuplicateCandidateStatusMerged, nil)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestExpireStale(t *testing.T) {
	repo, mock := newTestRepository(t)
	mock.ExpectExec("UPDATE duplicate_candidates SET").
		WillReturnResult(sqlmock.NewResult(0, 7))

	count, err := repo.ExpireStale(context.Background(), "tenant-1", time.Now().UTC().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestListPendingAboveConfidence(t *testing.T) {
	repo, mock := newTestRepository(t)
	mock.ExpectQuery("SELECT .* FROM duplicate_candidates").
		WillReturnRows(candidateRow("cand-1", 0.99))

	candidates, err := repo.ListPendingAboveConfidence(context.Background(), "tenant-1", []models.EntityKind{models.EntityKindCompany}, 0.98, 50)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "cand-1", candidates[0].ID)
}
