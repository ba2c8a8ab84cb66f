package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/cyderes/employee-batch-service/internal/config"
	"github.com/cyderes/employee-batch-service/internal/models"
)

// PostgreSQLStorage implements Storage interface on PostgreSQL
type PostgreSQLStorage struct {
	db           *sql.DB
	jobsTable    string
	recordsTable string
}

// NewPostgreSQLStorage opens and pings a PostgreSQL connection pool
func NewPostgreSQLStorage(ctx context.Context, cfg config.StorageConfig) (*PostgreSQLStorage, error) {
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}

	return &PostgreSQLStorage{
		db:           db,
		jobsTable:    pq.QuoteIdentifier(cfg.JobsTable),
		recordsTable: pq.QuoteIdentifier(cfg.RecordsTable),
	}, nil
}

// EnsureSchema creates both tables if they don't exist
func (p *PostgreSQLStorage) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			tenant_id         TEXT NOT NULL,
			job_id            TEXT NOT NULL,
			total_records     INT NOT NULL DEFAULT 0,
			processed_records INT,
			started_at        TIMESTAMPTZ,
			finished_at       TIMESTAMPTZ,
			succeeded_count   INT,
			duplicate_ids     TEXT[],
			invalid_phone_ids TEXT[],
			failed_ids        TEXT[],
			expires_at        BIGINT,
			PRIMARY KEY (tenant_id, job_id)
		);
		CREATE TABLE IF NOT EXISTS %s (
			tenant_id    TEXT NOT NULL,
			external_id  TEXT NOT NULL,
			first_name   TEXT NOT NULL,
			last_name    TEXT NOT NULL,
			phone_number TEXT,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, external_id)
		);
	`, p.jobsTable, p.recordsTable))
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

const jobColumns = `tenant_id, job_id, total_records, processed_records, started_at, finished_at,
	succeeded_count, duplicate_ids, invalid_phone_ids, failed_ids, expires_at`

// CreateJob inserts the ledger row, reporting ErrJobExists on a key conflict
func (p *PostgreSQLStorage) CreateJob(ctx context.Context, job models.IngestionJob) (*models.IngestionJob, error) {
	q := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, job_id) DO NOTHING;
	`, p.jobsTable, jobColumns)

	res, err := p.db.ExecContext(ctx, q,
		job.TenantID,
		job.JobID,
		job.TotalRecords,
		job.ProcessedRecords,
		job.StartedAt,
		job.FinishedAt,
		job.SucceededCount,
		pq.Array(job.DuplicateIDs),
		pq.Array(job.InvalidPhoneIDs),
		pq.Array(job.FailedIDs),
		nullableUnix(job.ExpiresAt),
	)
	if err != nil {
		return nil, unexpected("Could not create job.", fmt.Errorf("failed to store job %s: %w", job.JobID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, unexpected("Could not create job.", fmt.Errorf("failed to store job %s: %w", job.JobID, err))
	}
	if n == 0 {
		return nil, ErrJobExists
	}
	return &job, nil
}

// StartJob only matches a row whose started_at is still NULL
func (p *PostgreSQLStorage) StartJob(ctx context.Context, tenantID, jobID string, startedAt time.Time) (*models.IngestionJob, error) {
	q := fmt.Sprintf(`
		UPDATE %s SET started_at = $3
		WHERE tenant_id = $1 AND job_id = $2 AND started_at IS NULL
		RETURNING %s;
	`, p.jobsTable, jobColumns)

	job, err := scanJob(p.db.QueryRowContext(ctx, q, tenantID, jobID, startedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlreadyStarted
	}
	if err != nil {
		return nil, unexpected("Could not start job.", fmt.Errorf("failed to start job %s: %w", jobID, err))
	}
	return job, nil
}

// UpdateJob coalesces every NULL parameter to the current column value
func (p *PostgreSQLStorage) UpdateJob(ctx context.Context, tenantID, jobID string, update models.JobUpdate) (*models.IngestionJob, error) {
	if update.IsEmpty() {
		return p.GetJob(ctx, tenantID, jobID)
	}

	q := fmt.Sprintf(`
		INSERT INTO %[1]s AS j (tenant_id, job_id, processed_records, started_at, finished_at,
			succeeded_count, duplicate_ids, invalid_phone_ids, failed_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, job_id) DO UPDATE SET
			processed_records = COALESCE(EXCLUDED.processed_records, j.processed_records),
			started_at        = COALESCE(EXCLUDED.started_at, j.started_at),
			finished_at       = COALESCE(EXCLUDED.finished_at, j.finished_at),
			succeeded_count   = COALESCE(EXCLUDED.succeeded_count, j.succeeded_count),
			duplicate_ids     = COALESCE(EXCLUDED.duplicate_ids, j.duplicate_ids),
			invalid_phone_ids = COALESCE(EXCLUDED.invalid_phone_ids, j.invalid_phone_ids),
			failed_ids        = COALESCE(EXCLUDED.failed_ids, j.failed_ids)
		RETURNING %[2]s;
	`, p.jobsTable, jobColumns)

	row := p.db.QueryRowContext(ctx, q,
		tenantID,
		jobID,
		update.ProcessedRecords,
		update.StartedAt,
		update.FinishedAt,
		update.SucceededCount,
		pq.Array(update.DuplicateIDs),
		pq.Array(update.InvalidPhoneIDs),
		pq.Array(update.FailedIDs),
	)

	job, err := scanJob(row)
	if err != nil {
		return nil, unexpected("Could not update job.", fmt.Errorf("failed to update job %s: %w", jobID, err))
	}
	return job, nil
}

// GetJob fetches one job row by its composite key
func (p *PostgreSQLStorage) GetJob(ctx context.Context, tenantID, jobID string) (*models.IngestionJob, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 AND job_id = $2;`, jobColumns, p.jobsTable)

	job, err := scanJob(p.db.QueryRowContext(ctx, q, tenantID, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobNotFound(tenantID, jobID)
	}
	if err != nil {
		return nil, unexpected("Could not load job.", fmt.Errorf("failed to get job %s: %w", jobID, err))
	}
	return job, nil
}

func scanJob(row *sql.Row) (*models.IngestionJob, error) {
	var (
		job        models.IngestionJob
		processed  sql.NullInt64
		succeeded  sql.NullInt64
		startedAt  sql.NullTime
		finishedAt sql.NullTime
		expiresAt  sql.NullInt64
	)
	if err := row.Scan(
		&job.TenantID,
		&job.JobID,
		&job.TotalRecords,
		&processed,
		&startedAt,
		&finishedAt,
		&succeeded,
		pq.Array(&job.DuplicateIDs),
		pq.Array(&job.InvalidPhoneIDs),
		pq.Array(&job.FailedIDs),
		&expiresAt,
	); err != nil {
		return nil, err
	}

	job.ProcessedRecords = nullableIntToPtr(processed)
	job.SucceededCount = nullableIntToPtr(succeeded)
	job.StartedAt = nullableTimeToPtr(startedAt)
	job.FinishedAt = nullableTimeToPtr(finishedAt)
	job.ExpiresAt = expiresAt.Int64
	return &job, nil
}

// InsertRecord inserts a row and reports ErrDuplicate when the key already exists
func (p *PostgreSQLStorage) InsertRecord(ctx context.Context, tenantID string, rec models.BatchRecord) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (tenant_id, external_id, first_name, last_name, phone_number)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (tenant_id, external_id) DO NOTHING;
	`, p.recordsTable)

	res, err := p.db.ExecContext(ctx, q, tenantID, rec.ExternalID, rec.FirstName, rec.LastName, rec.Phone())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to store record %s: %w", rec.ExternalID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read result for record %s: %w", rec.ExternalID, err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}

func nullableIntToPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullableTimeToPtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullableUnix(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v > 0}
}

// Close closes the connection pool
func (p *PostgreSQLStorage) Close() error {
	return p.db.Close()
}
