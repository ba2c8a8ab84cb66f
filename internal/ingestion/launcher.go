package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyderes/employee-batch-service/internal/metrics"
	"github.com/cyderes/employee-batch-service/internal/models"
)

// Launcher starts the background phase of an admitted job. Launch must return
// without waiting for processing to finish.
type Launcher interface {
	Launch(ctx context.Context, job models.IngestionJob, records []models.BatchRecord) error
}

// LauncherFunc adapts a function to Launcher
type LauncherFunc func(ctx context.Context, job models.IngestionJob, records []models.BatchRecord) error

func (f LauncherFunc) Launch(ctx context.Context, job models.IngestionJob, records []models.BatchRecord) error {
	return f(ctx, job, records)
}

// Processor runs the background phase of a job
type Processor interface {
	Process(ctx context.Context, job models.IngestionJob, records []models.BatchRecord) (*models.IngestionJob, error)
}

// GoroutineLauncher processes jobs on detached goroutines inside this process
type GoroutineLauncher struct {
	processor   Processor
	maxDuration time.Duration
	logger      zerolog.Logger
	wg          sync.WaitGroup
}

// NewGoroutineLauncher creates a launcher whose jobs are cut off after maxDuration
func NewGoroutineLauncher(p Processor, maxDuration time.Duration, logger zerolog.Logger) *GoroutineLauncher {
	if maxDuration <= 0 {
		maxDuration = 15 * time.Minute
	}
	return &GoroutineLauncher{
		processor:   p,
		maxDuration: maxDuration,
		logger:      logger,
	}
}

// Launch detaches from the request context so the job outlives the response
func (l *GoroutineLauncher) Launch(ctx context.Context, job models.IngestionJob, records []models.BatchRecord) error {
	detached := context.WithoutCancel(ctx)

	l.wg.Add(1)
	metrics.JobsInFlight.Inc()
	go func() {
		defer l.wg.Done()
		defer metrics.JobsInFlight.Dec()
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error().
					Str("tenant_id", job.TenantID).
					Str("job_id", job.JobID).
					Str("panic", fmt.Sprint(r)).
					Msg("background job panicked")
			}
		}()

		runCtx, cancel := context.WithTimeout(detached, l.maxDuration)
		defer cancel()

		if _, err := l.processor.Process(runCtx, job, records); err != nil {
			l.logger.Error().
				Err(err).
				Str("tenant_id", job.TenantID).
				Str("job_id", job.JobID).
				Msg("background job did not finalize")
		}
	}()

	return nil
}

// Wait blocks until all launched jobs return or ctx is done
func (l *GoroutineLauncher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
