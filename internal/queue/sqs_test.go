package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/employee-batch-service/internal/models"
)

// MockSQS is a mock implementation of SQSAPI
type MockSQS struct {
	mock.Mock
}

func (m *MockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	if out, ok := args.Get(0).(*sqs.SendMessageOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestSQSLauncher_Launch(t *testing.T) {
	client := new(MockSQS)
	var sent *sqs.SendMessageInput
	client.On("SendMessage", mock.Anything, mock.AnythingOfType("*sqs.SendMessageInput")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*sqs.SendMessageInput) }).
		Return(&sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil)

	launcher := NewSQSLauncherWithClient(client, "https://sqs.local/jobs", zerolog.Nop())
	job := models.IngestionJob{TenantID: "tenant-a", JobID: "trace-1", TotalRecords: 1}
	records := []models.BatchRecord{{ExternalID: "E1", FirstName: "A", LastName: "B"}}

	require.NoError(t, launcher.Launch(context.Background(), job, records))

	require.NotNil(t, sent)
	assert.Equal(t, "https://sqs.local/jobs", aws.ToString(sent.QueueUrl))
	assert.Equal(t, "trace-1", aws.ToString(sent.MessageAttributes["jobId"].StringValue))

	var msg JobMessage
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(sent.MessageBody)), &msg))
	assert.Equal(t, job, msg.Job)
	assert.Equal(t, records, msg.Records)
	client.AssertExpectations(t)
}

func TestSQSLauncher_Launch_SendError(t *testing.T) {
	client := new(MockSQS)
	client.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	launcher := NewSQSLauncherWithClient(client, "https://sqs.local/jobs", zerolog.Nop())
	err := launcher.Launch(context.Background(), models.IngestionJob{JobID: "trace-1"}, nil)

	assert.ErrorContains(t, err, "access denied")
}

func TestSQSLauncher_Launch_Oversized(t *testing.T) {
	client := new(MockSQS)
	launcher := NewSQSLauncherWithClient(client, "https://sqs.local/jobs", zerolog.Nop())

	records := []models.BatchRecord{{ExternalID: "E1", FirstName: strings.Repeat("x", MaxMessageBytes), LastName: "B"}}
	err := launcher.Launch(context.Background(), models.IngestionJob{JobID: "trace-1"}, records)

	assert.ErrorContains(t, err, "queue limit")
	client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}
