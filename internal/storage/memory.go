package storage

import (
	"context"
	"sync"
	"time"

	"github.com/cyderes/employee-batch-service/internal/models"
)

type jobKey struct{ tenantID, jobID string }

type recordKey struct{ tenantID, externalID string }

// MemoryStorage is an in-process Storage used for local runs and tests
type MemoryStorage struct {
	mu      sync.Mutex
	jobs    map[jobKey]models.IngestionJob
	records map[recordKey]models.BatchRecord
}

// NewMemoryStorage creates an empty in-memory store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		jobs:    make(map[jobKey]models.IngestionJob),
		records: make(map[recordKey]models.BatchRecord),
	}
}

func (m *MemoryStorage) CreateJob(_ context.Context, job models.IngestionJob) (*models.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobKey{job.TenantID, job.JobID}
	if _, exists := m.jobs[key]; exists {
		return nil, ErrJobExists
	}
	m.jobs[key] = job
	out := job
	return &out, nil
}

func (m *MemoryStorage) StartJob(_ context.Context, tenantID, jobID string, startedAt time.Time) (*models.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobKey{tenantID, jobID}
	job, ok := m.jobs[key]
	if !ok || job.StartedAt != nil {
		return nil, ErrAlreadyStarted
	}
	job.StartedAt = &startedAt
	m.jobs[key] = job

	out := job
	return &out, nil
}

func (m *MemoryStorage) UpdateJob(_ context.Context, tenantID, jobID string, update models.JobUpdate) (*models.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobKey{tenantID, jobID}
	job, ok := m.jobs[key]
	if !ok {
		// upsert semantics, same as the remote backends
		job = models.IngestionJob{TenantID: tenantID, JobID: jobID}
	}
	update.Apply(&job)
	m.jobs[key] = job

	out := job
	return &out, nil
}

func (m *MemoryStorage) GetJob(_ context.Context, tenantID, jobID string) (*models.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobKey{tenantID, jobID}]
	if !ok {
		return nil, jobNotFound(tenantID, jobID)
	}
	return &job, nil
}

func (m *MemoryStorage) InsertRecord(_ context.Context, tenantID string, rec models.BatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{tenantID, rec.ExternalID}
	if _, exists := m.records[key]; exists {
		return ErrDuplicate
	}
	m.records[key] = rec
	return nil
}

// Record returns a stored record, for assertions in tests
func (m *MemoryStorage) Record(tenantID, externalID string) (models.BatchRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordKey{tenantID, externalID}]
	return rec, ok
}

func (m *MemoryStorage) EnsureSchema(context.Context) error { return nil }

func (m *MemoryStorage) Close() error { return nil }
