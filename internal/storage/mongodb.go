package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cyderes/employee-batch-service/internal/config"
	"github.com/cyderes/employee-batch-service/internal/models"
)

// MongoDBStorage implements Storage interface using MongoDB collections
type MongoDBStorage struct {
	client  *mongo.Client
	jobs    *mongo.Collection
	records *mongo.Collection
}

// NewMongoDBStorage connects to MongoDB and binds the jobs and records collections
func NewMongoDBStorage(ctx context.Context, cfg config.StorageConfig) (*MongoDBStorage, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.MongoDatabase)
	return &MongoDBStorage{
		client:  client,
		jobs:    db.Collection(cfg.JobsTable),
		records: db.Collection(cfg.RecordsTable),
	}, nil
}

// EnsureSchema creates the unique key indexes and the TTL index on jobs
func (m *MongoDBStorage) EnsureSchema(ctx context.Context) error {
	_, err := m.jobs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "jobId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("tenant_job"),
		},
		{
			Keys:    bson.D{{Key: "expiresAtDate", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create job indexes: %w", err)
	}

	_, err = m.records.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenantId", Value: 1}, {Key: "externalId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("tenant_external_id"),
	})
	if err != nil {
		return fmt.Errorf("failed to create record index: %w", err)
	}
	return nil
}

func jobFilter(tenantID, jobID string) bson.D {
	return bson.D{{Key: "tenantId", Value: tenantID}, {Key: "jobId", Value: jobID}}
}

// CreateJob inserts the ledger document; the unique tenant_job index rejects a reused key
func (m *MongoDBStorage) CreateJob(ctx context.Context, job models.IngestionJob) (*models.IngestionJob, error) {
	doc, err := bson.Marshal(job)
	if err != nil {
		return nil, unexpected("Could not encode job.", fmt.Errorf("failed to marshal job %s: %w", job.JobID, err))
	}
	var document bson.M
	if err := bson.Unmarshal(doc, &document); err != nil {
		return nil, unexpected("Could not encode job.", err)
	}
	if job.ExpiresAt > 0 {
		// TTL indexes only honour date values
		document["expiresAtDate"] = time.Unix(job.ExpiresAt, 0).UTC()
	}

	_, err = m.jobs.InsertOne(ctx, document)
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrJobExists
	}
	if err != nil {
		return nil, unexpected("Could not create job.", fmt.Errorf("failed to store job %s: %w", job.JobID, err))
	}
	return &job, nil
}

// StartJob sets startedAt only while the field is absent
func (m *MongoDBStorage) StartJob(ctx context.Context, tenantID, jobID string, startedAt time.Time) (*models.IngestionJob, error) {
	filter := append(jobFilter(tenantID, jobID), bson.E{Key: "startedAt", Value: bson.D{{Key: "$exists", Value: false}}})
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "startedAt", Value: startedAt}}}}

	var job models.IngestionJob
	err := m.jobs.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrAlreadyStarted
	}
	if err != nil {
		return nil, unexpected("Could not start job.", fmt.Errorf("failed to start job %s: %w", jobID, err))
	}
	return &job, nil
}

// UpdateJob applies a $set of the supplied fields and returns the updated document
func (m *MongoDBStorage) UpdateJob(ctx context.Context, tenantID, jobID string, update models.JobUpdate) (*models.IngestionJob, error) {
	if update.IsEmpty() {
		return m.GetJob(ctx, tenantID, jobID)
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	result := m.jobs.FindOneAndUpdate(ctx, jobFilter(tenantID, jobID), bson.D{{Key: "$set", Value: setDocument(update)}}, opts)

	var job models.IngestionJob
	if err := result.Decode(&job); err != nil {
		return nil, unexpected("Could not update job.", fmt.Errorf("failed to update job %s: %w", jobID, err))
	}
	return &job, nil
}

func setDocument(u models.JobUpdate) bson.D {
	var set bson.D
	if u.ProcessedRecords != nil {
		set = append(set, bson.E{Key: "processedRecords", Value: *u.ProcessedRecords})
	}
	if u.StartedAt != nil {
		set = append(set, bson.E{Key: "startedAt", Value: *u.StartedAt})
	}
	if u.FinishedAt != nil {
		set = append(set, bson.E{Key: "finishedAt", Value: *u.FinishedAt})
	}
	if u.SucceededCount != nil {
		set = append(set, bson.E{Key: "succeededCount", Value: *u.SucceededCount})
	}
	if u.DuplicateIDs != nil {
		set = append(set, bson.E{Key: "duplicateIds", Value: u.DuplicateIDs})
	}
	if u.InvalidPhoneIDs != nil {
		set = append(set, bson.E{Key: "invalidPhoneIds", Value: u.InvalidPhoneIDs})
	}
	if u.FailedIDs != nil {
		set = append(set, bson.E{Key: "failedIds", Value: u.FailedIDs})
	}
	return set
}

// GetJob retrieves a job by tenant and id
func (m *MongoDBStorage) GetJob(ctx context.Context, tenantID, jobID string) (*models.IngestionJob, error) {
	var job models.IngestionJob
	err := m.jobs.FindOne(ctx, jobFilter(tenantID, jobID)).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, jobNotFound(tenantID, jobID)
	}
	if err != nil {
		return nil, unexpected("Could not load job.", fmt.Errorf("failed to get job %s: %w", jobID, err))
	}
	return &job, nil
}

// InsertRecord relies on the unique (tenantId, externalId) index for duplicate detection
func (m *MongoDBStorage) InsertRecord(ctx context.Context, tenantID string, rec models.BatchRecord) error {
	_, err := m.records.InsertOne(ctx, bson.D{
		{Key: "tenantId", Value: tenantID},
		{Key: "externalId", Value: rec.ExternalID},
		{Key: "firstName", Value: rec.FirstName},
		{Key: "lastName", Value: rec.LastName},
		{Key: "phoneNumber", Value: rec.Phone()},
		{Key: "createdAt", Value: time.Now().UTC()},
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to store record %s: %w", rec.ExternalID, err)
	}
	return nil
}

// Close disconnects the MongoDB client
func (m *MongoDBStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
