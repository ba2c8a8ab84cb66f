package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/cyderes/employee-batch-service/internal/apperrors"
	"github.com/cyderes/employee-batch-service/internal/config"
	"github.com/cyderes/employee-batch-service/internal/metrics"
	"github.com/cyderes/employee-batch-service/internal/models"
	"github.com/cyderes/employee-batch-service/internal/storage"
	"github.com/cyderes/employee-batch-service/internal/validation"
)

// ErrNotStarted marks a Process failure that happened before any record was
// touched, so the job can safely be processed again.
var ErrNotStarted = errors.New("job not started")

// ErrAlreadyStarted is returned by Process when the job's processing already began
// elsewhere, or the job is not in the ledger. Running it again would overwrite
// the outcome of that earlier run.
var ErrAlreadyStarted = storage.ErrAlreadyStarted

// Store is the storage capability the service needs
type Store interface {
	storage.Ledger
	storage.RecordStore
}

// Service admits batches, processes them in the background and answers status queries
type Service struct {
	config   config.IngestionConfig
	store    Store
	launcher Launcher
	limiter  *rate.Limiter
	logger   zerolog.Logger
	jobTTL   time.Duration
	now      func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithLauncher replaces the default in-process launcher
func WithLauncher(l Launcher) Option {
	return func(s *Service) { s.launcher = l }
}

// WithJobTTL sets how long ledger entries are kept before the store expires them
func WithJobTTL(ttl time.Duration) Option {
	return func(s *Service) { s.jobTTL = ttl }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new ingestion service. Unless WithLauncher is given, background
// work runs on a GoroutineLauncher bounded by cfg.MaxDuration.
func NewService(cfg config.IngestionConfig, store Store, logger zerolog.Logger, opts ...Option) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 1
	}

	s := &Service{
		config: cfg,
		store:  store,
		logger: logger.With().Str("component", "ingestion").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	if cfg.WritesPerSecond > 0 {
		burst := int(cfg.WritesPerSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.WritesPerSecond), burst)
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.launcher == nil {
		s.launcher = NewGoroutineLauncher(s, cfg.MaxDuration, s.logger)
	}
	return s
}

// Admit validates the body and writes a pending ledger entry. It does not launch processing.
func (s *Service) Admit(ctx context.Context, tenantID, jobID string, body []byte) (*models.IngestionJob, []models.BatchRecord, error) {
	if tenantID == "" {
		return nil, nil, apperrors.Request("Could not locate client id in token.")
	}
	if jobID == "" {
		return nil, nil, apperrors.Request("Could not determine a trace id for the request.")
	}

	records, err := validation.ParseBatch(body)
	if err != nil {
		reason := "unknown"
		if appErr, ok := apperrors.As(err); ok {
			reason = string(appErr.Kind)
		}
		metrics.JobsRejected.WithLabelValues(reason).Inc()
		return nil, nil, err
	}

	job := models.IngestionJob{
		TenantID:     tenantID,
		JobID:        jobID,
		TotalRecords: len(records),
	}
	if s.jobTTL > 0 {
		job.ExpiresAt = s.now().Add(s.jobTTL).Unix()
	}

	created, err := s.store.CreateJob(ctx, job)
	if errors.Is(err, storage.ErrJobExists) {
		metrics.JobsRejected.WithLabelValues("JobExists").Inc()
		s.logger.Warn().Str("tenant_id", tenantID).Str("job_id", jobID).Msg("job id already in use")
		return nil, nil, apperrors.JobExists(jobID, err)
	}
	if err != nil {
		return nil, nil, err
	}

	metrics.JobsAdmitted.Inc()
	s.logger.Info().
		Str("tenant_id", tenantID).
		Str("job_id", jobID).
		Int("total_records", created.TotalRecords).
		Msg("batch admitted")

	return created, records, nil
}

// Submit admits a batch and hands it to the launcher. The response never waits for processing.
func (s *Service) Submit(ctx context.Context, tenantID, jobID string, body []byte) (*models.SubmitResponse, error) {
	job, records, err := s.Admit(ctx, tenantID, jobID, body)
	if err != nil {
		return nil, err
	}

	if err := s.launcher.Launch(ctx, *job, records); err != nil {
		// the ledger entry stays pending
		return nil, fmt.Errorf("failed to launch job %s: %w", job.JobID, err)
	}

	return &models.SubmitResponse{
		TenantID:     job.TenantID,
		JobID:        job.JobID,
		TotalRecords: job.TotalRecords,
	}, nil
}

// Drain waits for detached work started by this process, when the launcher tracks it
func (s *Service) Drain(ctx context.Context) error {
	if w, ok := s.launcher.(interface{ Wait(context.Context) error }); ok {
		return w.Wait(ctx)
	}
	return nil
}

// Process runs the background phase: mark running, classify every record, finalize.
func (s *Service) Process(ctx context.Context, job models.IngestionJob, records []models.BatchRecord) (*models.IngestionJob, error) {
	logger := s.logger.With().Str("tenant_id", job.TenantID).Str("job_id", job.JobID).Logger()
	start := s.now()

	_, err := backoff.RetryWithData(func() (*models.IngestionJob, error) {
		started, err := s.store.StartJob(ctx, job.TenantID, job.JobID, start)
		if errors.Is(err, storage.ErrAlreadyStarted) {
			return nil, backoff.Permanent(err)
		}
		return started, err
	}, s.retryPolicy(ctx))
	if errors.Is(err, ErrAlreadyStarted) {
		metrics.JobsFinalized.WithLabelValues("skipped").Inc()
		logger.Warn().Msg("job already started; skipping")
		return nil, fmt.Errorf("job %s: %w", job.JobID, err)
	}
	if err != nil {
		metrics.JobsFinalized.WithLabelValues("unfinalized").Inc()
		logger.Error().Err(err).Msg("failed to mark job running")
		return nil, fmt.Errorf("%w: failed to mark job %s running: %w", ErrNotStarted, job.JobID, err)
	}

	out := newOutcomes(len(records))
	valid := make([]models.BatchRecord, 0, len(records))
	for _, rec := range records {
		if validation.HasValidPhone(rec) {
			valid = append(valid, rec)
			continue
		}
		logger.Info().Err(apperrors.InvalidPhoneNumber(rec.ExternalID)).Str("external_id", rec.ExternalID).Msg("record skipped")
		out.record(rec.ExternalID, outcomeInvalidPhone)
	}

	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)
	for _, rec := range valid {
		g.Go(func() error {
			out.record(rec.ExternalID, s.insert(ctx, logger, job.TenantID, rec))
			return nil
		})
	}
	_ = g.Wait()

	summary := out.summarize()
	processed := len(records)
	finished := s.now()
	if finished.Before(start) {
		finished = start
	}

	final, err := s.updateJob(ctx, job, models.JobUpdate{
		FinishedAt:       &finished,
		ProcessedRecords: &processed,
		SucceededCount:   &summary.succeeded,
		DuplicateIDs:     summary.duplicates,
		InvalidPhoneIDs:  summary.invalidPhone,
		FailedIDs:        summary.failed,
	})

	metrics.JobDuration.Observe(finished.Sub(start).Seconds())
	metrics.RecordOutcomes.WithLabelValues(outcomeSucceeded.String()).Add(float64(summary.succeeded))
	metrics.RecordOutcomes.WithLabelValues(outcomeDuplicate.String()).Add(float64(len(summary.duplicates)))
	metrics.RecordOutcomes.WithLabelValues(outcomeInvalidPhone.String()).Add(float64(len(summary.invalidPhone)))
	metrics.RecordOutcomes.WithLabelValues(outcomeFailed.String()).Add(float64(len(summary.failed)))

	if err != nil {
		metrics.JobsFinalized.WithLabelValues("unfinalized").Inc()
		logger.Error().
			Err(err).
			Int("succeeded", summary.succeeded).
			Int("duplicates", len(summary.duplicates)).
			Int("invalid_phone", len(summary.invalidPhone)).
			Int("failed", len(summary.failed)).
			Msg("failed to finalize job; left running for reconciliation")
		return nil, fmt.Errorf("failed to finalize job %s: %w", job.JobID, err)
	}

	metrics.JobsFinalized.WithLabelValues("completed").Inc()
	logger.Info().
		Int("total_records", job.TotalRecords).
		Int("processed_records", processed).
		Int("succeeded", summary.succeeded).
		Int("duplicates", len(summary.duplicates)).
		Int("invalid_phone", len(summary.invalidPhone)).
		Int("failed", len(summary.failed)).
		Dur("duration", finished.Sub(start)).
		Msg("batch processing finished")

	return final, nil
}

// insert stores one record, retrying transient failures. Duplicates are never retried.
func (s *Service) insert(ctx context.Context, logger zerolog.Logger, tenantID string, rec models.BatchRecord) outcome {
	attempt := 0
	op := func() error {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		attempt++
		if attempt > 1 {
			metrics.InsertRetries.Inc()
		}

		err := s.store.InsertRecord(ctx, tenantID, rec)
		if errors.Is(err, storage.ErrDuplicate) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, s.retryPolicy(ctx))
	switch {
	case err == nil:
		return outcomeSucceeded
	case errors.Is(err, storage.ErrDuplicate):
		return outcomeDuplicate
	default:
		logger.Warn().
			Err(err).
			Str("external_id", rec.ExternalID).
			Int("attempts", attempt).
			Msg("record insert failed")
		return outcomeFailed
	}
}

func (s *Service) updateJob(ctx context.Context, job models.IngestionJob, update models.JobUpdate) (*models.IngestionJob, error) {
	return backoff.RetryWithData(func() (*models.IngestionJob, error) {
		return s.store.UpdateJob(ctx, job.TenantID, job.JobID, update)
	}, s.retryPolicy(ctx))
}

func (s *Service) retryPolicy(ctx context.Context) backoff.BackOff {
	retries := uint64(s.config.RetryCount - 1)
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.config.RetryBackoff), retries),
		ctx,
	)
}
