package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/cyderes/employee-batch-service/internal/ingestion"
)

// Worker processes job messages delivered by an SQS event source
type Worker struct {
	processor   ingestion.Processor
	maxDuration time.Duration
	logger      zerolog.Logger
}

// NewWorker creates a worker that cuts each job off after maxDuration
func NewWorker(p ingestion.Processor, maxDuration time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		processor:   p,
		maxDuration: maxDuration,
		logger:      logger.With().Str("component", "worker").Logger(),
	}
}

// Handle processes each message in turn. Only jobs that failed before touching any
// record are reported back for redelivery. A redelivered message whose job already
// started is acknowledged, since a second run would classify that job's own records
// as duplicates.
func (w *Worker) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse

	for _, msg := range event.Records {
		var jm JobMessage
		if err := json.Unmarshal([]byte(msg.Body), &jm); err != nil {
			w.logger.Error().Err(err).Str("message_id", msg.MessageId).Msg("dropping malformed job message")
			continue
		}

		if err := w.process(ctx, jm); err != nil {
			logger := w.logger.With().
				Err(err).
				Str("tenant_id", jm.Job.TenantID).
				Str("job_id", jm.Job.JobID).
				Logger()
			if errors.Is(err, ingestion.ErrNotStarted) {
				logger.Warn().Msg("job not started; requesting redelivery")
				resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
					ItemIdentifier: msg.MessageId,
				})
				continue
			}
			if errors.Is(err, ingestion.ErrAlreadyStarted) {
				logger.Info().Msg("job already started; acknowledging message")
				continue
			}
			logger.Error().Msg("job did not finalize")
		}
	}

	return resp, nil
}

func (w *Worker) process(ctx context.Context, jm JobMessage) error {
	if w.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.maxDuration)
		defer cancel()
	}
	_, err := w.processor.Process(ctx, jm.Job, jm.Records)
	return err
}
