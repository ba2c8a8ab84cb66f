package models

import "time"

// BatchRecord is one employee entry of a submitted batch
type BatchRecord struct {
	ExternalID  string  `json:"externalId" validate:"required"`
	FirstName   string  `json:"firstName" validate:"required"`
	LastName    string  `json:"lastName" validate:"required"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
}

// Phone returns the submitted phone number, or "" when the field was omitted
func (r BatchRecord) Phone() string {
	if r.PhoneNumber == nil {
		return ""
	}
	return *r.PhoneNumber
}

// JobState is derived from the ledger timestamps and never persisted
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
)

// IngestionJob is the ledger entry tracking the processing of one batch
type IngestionJob struct {
	TenantID         string     `json:"tenantId" dynamodbav:"tenantId" bson:"tenantId"`
	JobID            string     `json:"jobId" dynamodbav:"jobId" bson:"jobId"`
	TotalRecords     int        `json:"totalRecords" dynamodbav:"totalRecords" bson:"totalRecords"`
	ProcessedRecords *int       `json:"processedRecords,omitempty" dynamodbav:"processedRecords,omitempty" bson:"processedRecords,omitempty"`
	StartedAt        *time.Time `json:"startedAt,omitempty" dynamodbav:"startedAt,omitempty" bson:"startedAt,omitempty"`
	FinishedAt       *time.Time `json:"finishedAt,omitempty" dynamodbav:"finishedAt,omitempty" bson:"finishedAt,omitempty"`
	SucceededCount   *int       `json:"succeededCount,omitempty" dynamodbav:"succeededCount,omitempty" bson:"succeededCount,omitempty"`
	DuplicateIDs     []string   `json:"duplicateIds" dynamodbav:"duplicateIds,omitempty" bson:"duplicateIds,omitempty"`
	InvalidPhoneIDs  []string   `json:"invalidPhoneIds" dynamodbav:"invalidPhoneIds,omitempty" bson:"invalidPhoneIds,omitempty"`
	FailedIDs        []string   `json:"failedIds" dynamodbav:"failedIds,omitempty" bson:"failedIds,omitempty"`
	ExpiresAt        int64      `json:"-" dynamodbav:"ttl,omitempty" bson:"ttl,omitempty"`
}

// State reports where the job is in its lifecycle
func (j IngestionJob) State() JobState {
	switch {
	case j.FinishedAt != nil:
		return JobStateCompleted
	case j.StartedAt != nil:
		return JobStateRunning
	default:
		return JobStatePending
	}
}

// JobUpdate is a partial patch of a ledger entry. Nil fields are left untouched.
type JobUpdate struct {
	ProcessedRecords *int
	StartedAt        *time.Time
	FinishedAt       *time.Time
	SucceededCount   *int
	DuplicateIDs     []string
	InvalidPhoneIDs  []string
	FailedIDs        []string
}

// IsEmpty reports whether the update carries no fields
func (u JobUpdate) IsEmpty() bool {
	return u.ProcessedRecords == nil && u.StartedAt == nil && u.FinishedAt == nil &&
		u.SucceededCount == nil && u.DuplicateIDs == nil && u.InvalidPhoneIDs == nil && u.FailedIDs == nil
}

// Apply patches the job in place with the non-nil fields of the update
func (u JobUpdate) Apply(job *IngestionJob) {
	if u.ProcessedRecords != nil {
		job.ProcessedRecords = u.ProcessedRecords
	}
	if u.StartedAt != nil {
		job.StartedAt = u.StartedAt
	}
	if u.FinishedAt != nil {
		job.FinishedAt = u.FinishedAt
	}
	if u.SucceededCount != nil {
		job.SucceededCount = u.SucceededCount
	}
	if u.DuplicateIDs != nil {
		job.DuplicateIDs = u.DuplicateIDs
	}
	if u.InvalidPhoneIDs != nil {
		job.InvalidPhoneIDs = u.InvalidPhoneIDs
	}
	if u.FailedIDs != nil {
		job.FailedIDs = u.FailedIDs
	}
}

// SubmitResponse is returned to the client on admission
type SubmitResponse struct {
	TenantID     string `json:"tenantId"`
	JobID        string `json:"jobId"`
	TotalRecords int    `json:"totalRecords"`
}

// JobView is the status representation of a job, with its derived state
type JobView struct {
	IngestionJob
	State JobState `json:"state"`
}

// NewJobView wraps a job for the status endpoint. Id lists render as empty
// arrays until the job is finalized.
func NewJobView(job IngestionJob) JobView {
	for _, ids := range []*[]string{&job.DuplicateIDs, &job.InvalidPhoneIDs, &job.FailedIDs} {
		if *ids == nil {
			*ids = []string{}
		}
	}
	return JobView{IngestionJob: job, State: job.State()}
}
