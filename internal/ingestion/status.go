package ingestion

import (
	"context"
	"fmt"

	"github.com/cyderes/employee-batch-service/internal/apperrors"
	"github.com/cyderes/employee-batch-service/internal/models"
)

// Status returns the caller's job. The lookup is always keyed by the tenant from
// the caller's identity, so another tenant's job reads as not found.
func (s *Service) Status(ctx context.Context, tenantID, jobID string) (*models.IngestionJob, error) {
	if jobID == "" {
		return nil, apperrors.MissingParameter("id")
	}
	if tenantID == "" {
		return nil, apperrors.Request("Could not locate client id in token.")
	}

	job, err := s.store.GetJob(ctx, tenantID, jobID)
	if apperrors.IsStorageType(err, apperrors.StorageRecordNotFound) {
		return nil, apperrors.NotFound(fmt.Sprintf("No job with id %q.", jobID))
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}
