package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cyderes/employee-batch-service/internal/apperrors"
	"github.com/cyderes/employee-batch-service/internal/config"
	"github.com/cyderes/employee-batch-service/internal/models"
)

// ErrDuplicate is returned by InsertRecord when (tenant, externalId) already exists
var ErrDuplicate = errors.New("record already exists")

// ErrJobExists is returned by CreateJob when (tenant, jobId) is already in the ledger
var ErrJobExists = errors.New("job already exists")

// ErrAlreadyStarted is returned by StartJob when the job is missing or its processing already began
var ErrAlreadyStarted = errors.New("job is missing or already started")

// Ledger persists the lifecycle of ingestion jobs, keyed by (tenantId, jobId)
type Ledger interface {
	// CreateJob inserts a new job and never overwrites an existing one
	CreateJob(ctx context.Context, job models.IngestionJob) (*models.IngestionJob, error)
	// StartJob sets startedAt on an existing job whose startedAt is unset
	StartJob(ctx context.Context, tenantID, jobID string, startedAt time.Time) (*models.IngestionJob, error)
	// UpdateJob patches only the fields set on update and returns the resulting job
	UpdateJob(ctx context.Context, tenantID, jobID string, update models.JobUpdate) (*models.IngestionJob, error)
	GetJob(ctx context.Context, tenantID, jobID string) (*models.IngestionJob, error)
}

// RecordStore inserts batch records with a uniqueness constraint on (tenantId, externalId)
type RecordStore interface {
	InsertRecord(ctx context.Context, tenantID string, rec models.BatchRecord) error
}

// Storage interface defines the contract for data storage
type Storage interface {
	Ledger
	RecordStore
	// EnsureSchema creates tables or indexes the backend relies on
	EnsureSchema(ctx context.Context) error
	Close() error
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	var (
		store Storage
		err   error
	)
	switch cfg.Type {
	case "dynamodb":
		store, err = NewDynamoDBStorage(cfg)
	case "mongodb":
		store, err = NewMongoDBStorage(ctx, cfg)
	case "postgresql":
		store, err = NewPostgreSQLStorage(ctx, cfg)
	case "memory":
		store = NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	return store, nil
}

func jobNotFound(tenantID, jobID string) error {
	return apperrors.Storage(apperrors.StorageRecordNotFound,
		fmt.Sprintf("No job %q found for tenant %q.", jobID, tenantID), nil)
}

func unexpected(message string, err error) error {
	return apperrors.Storage(apperrors.StorageUnexpected, message, err)
}
