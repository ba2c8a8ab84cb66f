package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"

	"github.com/cyderes/employee-batch-service/internal/models"
)

// MaxMessageBytes is the SQS message body limit
const MaxMessageBytes = 256 * 1024

// JobMessage carries an admitted job and its records to the worker
type JobMessage struct {
	Job     models.IngestionJob  `json:"job"`
	Records []models.BatchRecord `json:"records"`
}

// SQSAPI is the subset of the SQS client used by the launcher
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSLauncher hands admitted jobs to the worker Lambda through a queue
type SQSLauncher struct {
	client   SQSAPI
	queueURL string
	logger   zerolog.Logger
}

// NewSQSLauncher creates a launcher using the default AWS credential chain
func NewSQSLauncher(ctx context.Context, queueURL, region string, logger zerolog.Logger) (*SQSLauncher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for SQS: %w", err)
	}
	return NewSQSLauncherWithClient(sqs.NewFromConfig(awsCfg), queueURL, logger), nil
}

// NewSQSLauncherWithClient creates a launcher on an existing client
func NewSQSLauncherWithClient(client SQSAPI, queueURL string, logger zerolog.Logger) *SQSLauncher {
	return &SQSLauncher{
		client:   client,
		queueURL: queueURL,
		logger:   logger.With().Str("component", "sqs_launcher").Logger(),
	}
}

// Launch enqueues the job. Oversized batches are refused rather than split.
func (l *SQSLauncher) Launch(ctx context.Context, job models.IngestionJob, records []models.BatchRecord) error {
	body, err := json.Marshal(JobMessage{Job: job, Records: records})
	if err != nil {
		return fmt.Errorf("failed to marshal job message %s: %w", job.JobID, err)
	}
	if len(body) > MaxMessageBytes {
		return fmt.Errorf("job message %s is %d bytes, over the %d byte queue limit", job.JobID, len(body), MaxMessageBytes)
	}

	out, err := l.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(l.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"tenantId": {DataType: aws.String("String"), StringValue: aws.String(job.TenantID)},
			"jobId":    {DataType: aws.String("String"), StringValue: aws.String(job.JobID)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send job message %s: %w", job.JobID, err)
	}

	l.logger.Debug().
		Str("tenant_id", job.TenantID).
		Str("job_id", job.JobID).
		Str("message_id", aws.ToString(out.MessageId)).
		Msg("job enqueued")
	return nil
}
