package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/dynamodb/expression"

	"github.com/cyderes/employee-batch-service/internal/config"
	"github.com/cyderes/employee-batch-service/internal/models"
)

// recordItem is the DynamoDB layout of an inserted employee record
type recordItem struct {
	TenantID    string    `dynamodbav:"tenantId"`
	ExternalID  string    `dynamodbav:"externalId"`
	FirstName   string    `dynamodbav:"firstName"`
	LastName    string    `dynamodbav:"lastName"`
	PhoneNumber string    `dynamodbav:"phoneNumber,omitempty"`
	CreatedAt   time.Time `dynamodbav:"createdAt"`
}

// DynamoDBStorage implements Storage interface using AWS DynamoDB
type DynamoDBStorage struct {
	client       dynamodbiface.DynamoDBAPI
	jobsTable    string
	recordsTable string
}

// NewDynamoDBStorage creates a new DynamoDB storage instance
func NewDynamoDBStorage(cfg config.StorageConfig) (*DynamoDBStorage, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return newDynamoDBStorage(dynamodb.New(sess), cfg.JobsTable, cfg.RecordsTable), nil
}

func newDynamoDBStorage(client dynamodbiface.DynamoDBAPI, jobsTable, recordsTable string) *DynamoDBStorage {
	return &DynamoDBStorage{
		client:       client,
		jobsTable:    jobsTable,
		recordsTable: recordsTable,
	}
}

// EnsureSchema creates both tables if they don't exist and enables TTL on the jobs table
func (d *DynamoDBStorage) EnsureSchema(ctx context.Context) error {
	if err := d.ensureTable(ctx, d.jobsTable, "tenantId", "jobId"); err != nil {
		return err
	}
	if err := d.ensureTable(ctx, d.recordsTable, "tenantId", "externalId"); err != nil {
		return err
	}

	_, err := d.client.UpdateTimeToLiveWithContext(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(d.jobsTable),
		TimeToLiveSpecification: &dynamodb.TimeToLiveSpecification{
			AttributeName: aws.String("ttl"),
			Enabled:       aws.Bool(true),
		},
	})
	var aerr awserr.Error
	if err != nil && !(errors.As(err, &aerr) && aerr.Code() == "ValidationException") {
		// ValidationException means TTL is already enabled
		return fmt.Errorf("failed to enable TTL on %s: %w", d.jobsTable, err)
	}
	return nil
}

// ensureTable creates a table keyed by (hashKey, rangeKey) if it doesn't exist
func (d *DynamoDBStorage) ensureTable(ctx context.Context, table, hashKey, rangeKey string) error {
	_, err := d.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err == nil {
		return nil // Table already exists
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String(hashKey), KeyType: aws.String(dynamodb.KeyTypeHash)},
			{AttributeName: aws.String(rangeKey), KeyType: aws.String(dynamodb.KeyTypeRange)},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String(hashKey), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
			{AttributeName: aws.String(rangeKey), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
		},
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
	}

	if _, err := d.client.CreateTableWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	return d.client.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
}

func (d *DynamoDBStorage) jobKey(tenantID, jobID string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"tenantId": {S: aws.String(tenantID)},
		"jobId":    {S: aws.String(jobID)},
	}
}

// CreateJob writes the full ledger item unless the key is already taken
func (d *DynamoDBStorage) CreateJob(ctx context.Context, job models.IngestionJob) (*models.IngestionJob, error) {
	item, err := dynamodbattribute.MarshalMap(job)
	if err != nil {
		return nil, unexpected("Could not encode job.", fmt.Errorf("failed to marshal job %s: %w", job.JobID, err))
	}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.jobsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrJobExists
		}
		return nil, unexpected("Could not create job.", fmt.Errorf("failed to store job %s: %w", job.JobID, err))
	}

	return &job, nil
}

// UpdateJob sets only the supplied attributes and returns the item after the update
func (d *DynamoDBStorage) UpdateJob(ctx context.Context, tenantID, jobID string, update models.JobUpdate) (*models.IngestionJob, error) {
	if update.IsEmpty() {
		return d.GetJob(ctx, tenantID, jobID)
	}

	expr, err := expression.NewBuilder().WithUpdate(updateExpression(update)).Build()
	if err != nil {
		return nil, unexpected("Could not encode job update.", fmt.Errorf("failed to build update for job %s: %w", jobID, err))
	}

	result, err := d.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.jobsTable),
		Key:                       d.jobKey(tenantID, jobID),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              aws.String(dynamodb.ReturnValueAllNew),
	})
	if err != nil {
		return nil, unexpected("Could not update job.", fmt.Errorf("failed to update job %s: %w", jobID, err))
	}

	var job models.IngestionJob
	if err := dynamodbattribute.UnmarshalMap(result.Attributes, &job); err != nil {
		return nil, unexpected("Could not decode job.", fmt.Errorf("failed to unmarshal job %s: %w", jobID, err))
	}
	return &job, nil
}

// StartJob sets startedAt on an existing item that has not been started
func (d *DynamoDBStorage) StartJob(ctx context.Context, tenantID, jobID string, startedAt time.Time) (*models.IngestionJob, error) {
	cond := expression.And(
		expression.AttributeExists(expression.Name("jobId")),
		expression.AttributeNotExists(expression.Name("startedAt")),
	)
	update := expression.Set(expression.Name("startedAt"), expression.Value(startedAt))

	expr, err := expression.NewBuilder().WithCondition(cond).WithUpdate(update).Build()
	if err != nil {
		return nil, unexpected("Could not encode job update.", fmt.Errorf("failed to build start for job %s: %w", jobID, err))
	}

	result, err := d.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.jobsTable),
		Key:                       d.jobKey(tenantID, jobID),
		ConditionExpression:       expr.Condition(),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              aws.String(dynamodb.ReturnValueAllNew),
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrAlreadyStarted
		}
		return nil, unexpected("Could not start job.", fmt.Errorf("failed to start job %s: %w", jobID, err))
	}

	var job models.IngestionJob
	if err := dynamodbattribute.UnmarshalMap(result.Attributes, &job); err != nil {
		return nil, unexpected("Could not decode job.", fmt.Errorf("failed to unmarshal job %s: %w", jobID, err))
	}
	return &job, nil
}

func isConditionFailed(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}

func updateExpression(u models.JobUpdate) expression.UpdateBuilder {
	var b expression.UpdateBuilder
	if u.ProcessedRecords != nil {
		b = b.Set(expression.Name("processedRecords"), expression.Value(*u.ProcessedRecords))
	}
	if u.StartedAt != nil {
		b = b.Set(expression.Name("startedAt"), expression.Value(*u.StartedAt))
	}
	if u.FinishedAt != nil {
		b = b.Set(expression.Name("finishedAt"), expression.Value(*u.FinishedAt))
	}
	if u.SucceededCount != nil {
		b = b.Set(expression.Name("succeededCount"), expression.Value(*u.SucceededCount))
	}
	if u.DuplicateIDs != nil {
		b = b.Set(expression.Name("duplicateIds"), expression.Value(u.DuplicateIDs))
	}
	if u.InvalidPhoneIDs != nil {
		b = b.Set(expression.Name("invalidPhoneIds"), expression.Value(u.InvalidPhoneIDs))
	}
	if u.FailedIDs != nil {
		b = b.Set(expression.Name("failedIds"), expression.Value(u.FailedIDs))
	}
	return b
}

// GetJob retrieves a job by its composite key
func (d *DynamoDBStorage) GetJob(ctx context.Context, tenantID, jobID string) (*models.IngestionJob, error) {
	result, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.jobsTable),
		Key:            d.jobKey(tenantID, jobID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, unexpected("Could not load job.", fmt.Errorf("failed to get job %s: %w", jobID, err))
	}

	if result.Item == nil {
		return nil, jobNotFound(tenantID, jobID)
	}

	var job models.IngestionJob
	if err := dynamodbattribute.UnmarshalMap(result.Item, &job); err != nil {
		return nil, unexpected("Could not decode job.", fmt.Errorf("failed to unmarshal job %s: %w", jobID, err))
	}
	return &job, nil
}

// InsertRecord writes a record unless (tenantId, externalId) already exists
func (d *DynamoDBStorage) InsertRecord(ctx context.Context, tenantID string, rec models.BatchRecord) error {
	item, err := dynamodbattribute.MarshalMap(recordItem{
		TenantID:    tenantID,
		ExternalID:  rec.ExternalID,
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		PhoneNumber: rec.Phone(),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.ExternalID, err)
	}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.recordsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(externalId)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to store record %s: %w", rec.ExternalID, err)
	}
	return nil
}

// Close closes the DynamoDB connection
func (d *DynamoDBStorage) Close() error {
	// DynamoDB client doesn't need explicit closing
	return nil
}
