package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/employee-batch-service/internal/apperrors"
	"github.com/cyderes/employee-batch-service/internal/models"
)

// testStorageContract runs the behaviour every backend must share against store.
// Subtests scope their rows by a tenant derived from the test name, so one store
// serves all of them.
func testStorageContract(t *testing.T, store Storage) {
	t.Run("create and get", func(t *testing.T) {
		ctx := context.Background()
		tenant := tenantFor(t)

		_, err := store.CreateJob(ctx, models.IngestionJob{TenantID: tenant, JobID: "j1", TotalRecords: 3, ExpiresAt: 1900000000})
		require.NoError(t, err)

		job, err := store.GetJob(ctx, tenant, "j1")
		require.NoError(t, err)
		assert.Equal(t, 3, job.TotalRecords)
		assert.Equal(t, int64(1900000000), job.ExpiresAt)
		assert.Equal(t, models.JobStatePending, job.State())
	})

	t.Run("create never overwrites", func(t *testing.T) {
		ctx := context.Background()
		tenant := tenantFor(t)

		_, err := store.CreateJob(ctx, models.IngestionJob{TenantID: tenant, JobID: "j1", TotalRecords: 3})
		require.NoError(t, err)
		started := time.Now().UTC().Truncate(time.Millisecond)
		_, err = store.StartJob(ctx, tenant, "j1", started)
		require.NoError(t, err)

		_, err = store.CreateJob(ctx, models.IngestionJob{TenantID: tenant, JobID: "j1", TotalRecords: 9})
		assert.ErrorIs(t, err, ErrJobExists)

		job, err := store.GetJob(ctx, tenant, "j1")
		require.NoError(t, err)
		assert.Equal(t, 3, job.TotalRecords)
		require.NotNil(t, job.StartedAt)
		assert.True(t, started.Equal(*job.StartedAt))
	})

	t.Run("start once", func(t *testing.T) {
		ctx := context.Background()
		tenant := tenantFor(t)

		_, err := store.CreateJob(ctx, models.IngestionJob{TenantID: tenant, JobID: "j1", TotalRecords: 1})
		require.NoError(t, err)

		started := time.Now().UTC().Truncate(time.Millisecond)
		job, err := store.StartJob(ctx, tenant, "j1", started)
		require.NoError(t, err)
		assert.Equal(t, models.JobStateRunning, job.State())
		assert.Equal(t, 1, job.TotalRecords)

		_, err = store.StartJob(ctx, tenant, "j1", started.Add(time.Minute))
		assert.ErrorIs(t, err, ErrAlreadyStarted)

		_, err = store.StartJob(ctx, tenant, "missing", started)
		assert.ErrorIs(t, err, ErrAlreadyStarted)

		job, err = store.GetJob(ctx, tenant, "j1")
		require.NoError(t, err)
		assert.True(t, started.Equal(*job.StartedAt))
	})

	t.Run("update patches supplied fields", func(t *testing.T) {
		ctx := context.Background()
		tenant := tenantFor(t)

		_, err := store.CreateJob(ctx, models.IngestionJob{TenantID: tenant, JobID: "j1", TotalRecords: 3})
		require.NoError(t, err)
		started := time.Now().UTC().Truncate(time.Millisecond)
		_, err = store.StartJob(ctx, tenant, "j1", started)
		require.NoError(t, err)

		finished := started.Add(time.Second)
		job, err := store.UpdateJob(ctx, tenant, "j1", models.JobUpdate{
			FinishedAt:       &finished,
			ProcessedRecords: intPtr(3),
			SucceededCount:   intPtr(1),
			DuplicateIDs:     []string{"E2"},
			InvalidPhoneIDs:  []string{"E3"},
			FailedIDs:        []string{},
		})
		require.NoError(t, err)
		assert.Equal(t, models.JobStateCompleted, job.State())
		assert.Equal(t, 3, job.TotalRecords)
		assert.True(t, started.Equal(*job.StartedAt))

		got, err := store.GetJob(ctx, tenant, "j1")
		require.NoError(t, err)
		assert.Equal(t, 3, *got.ProcessedRecords)
		assert.Equal(t, 1, *got.SucceededCount)
		assert.Equal(t, []string{"E2"}, got.DuplicateIDs)
		assert.Equal(t, []string{"E3"}, got.InvalidPhoneIDs)
		assert.Empty(t, got.FailedIDs)
	})

	t.Run("get is tenant scoped", func(t *testing.T) {
		ctx := context.Background()
		tenant := tenantFor(t)

		_, err := store.CreateJob(ctx, models.IngestionJob{TenantID: tenant, JobID: "j1", TotalRecords: 1})
		require.NoError(t, err)

		_, err = store.GetJob(ctx, tenant+"-other", "j1")
		assert.True(t, apperrors.IsStorageType(err, apperrors.StorageRecordNotFound))
	})

	t.Run("insert rejects duplicates per tenant", func(t *testing.T) {
		ctx := context.Background()
		tenant := tenantFor(t)
		phone := "+15551234567"
		rec := models.BatchRecord{ExternalID: "E1", FirstName: "A", LastName: "B", PhoneNumber: &phone}

		require.NoError(t, store.InsertRecord(ctx, tenant, rec))
		assert.ErrorIs(t, store.InsertRecord(ctx, tenant, rec), ErrDuplicate)
		assert.NoError(t, store.InsertRecord(ctx, tenant+"-other", rec))
	})
}

func tenantFor(t *testing.T) string {
	return strings.ReplaceAll(t.Name(), "/", "-")
}

func TestMemoryStorage_Contract(t *testing.T) {
	testStorageContract(t, NewMemoryStorage())
}
