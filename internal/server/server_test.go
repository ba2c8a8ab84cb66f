package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/employee-batch-service/internal/apperrors"
	"github.com/cyderes/employee-batch-service/internal/auth"
	"github.com/cyderes/employee-batch-service/internal/config"
	"github.com/cyderes/employee-batch-service/internal/ingestion"
	"github.com/cyderes/employee-batch-service/internal/models"
	"github.com/cyderes/employee-batch-service/internal/storage"
)

// MockService is a mock implementation of BatchService
type MockService struct {
	mock.Mock
}

func (m *MockService) Submit(ctx context.Context, tenantID, jobID string, body []byte) (*models.SubmitResponse, error) {
	args := m.Called(ctx, tenantID, jobID, body)
	if r, ok := args.Get(0).(*models.SubmitResponse); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockService) Status(ctx context.Context, tenantID, jobID string) (*models.IngestionJob, error) {
	args := m.Called(ctx, tenantID, jobID)
	if j, ok := args.Get(0).(*models.IngestionJob); ok {
		return j, args.Error(1)
	}
	return nil, args.Error(1)
}

func localAuth(tenant string) Option {
	return WithAuth(auth.Middleware(nil, auth.MiddlewareConfig{DisableAuth: true, LocalTenant: tenant}))
}

func newTestServer(svc BatchService, opts ...Option) *Server {
	return NewServer(config.ServerConfig{Port: 0}, svc, zerolog.Nop(), opts...)
}

func do(t *testing.T, h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(new(MockService))

	rec := do(t, s.Handler(), http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(new(MockService), WithMetrics())

	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "batch_ingestion_")
}

func TestHandleSubmit_UsesTenantAndRequestID(t *testing.T) {
	svc := new(MockService)
	svc.On("Submit", mock.Anything, "tenant-a", "trace-123", []byte(`[]`)).
		Return(&models.SubmitResponse{TenantID: "tenant-a", JobID: "trace-123", TotalRecords: 0}, nil)
	s := newTestServer(svc, localAuth("tenant-a"))

	rec := do(t, s.Handler(), http.MethodPost, "/batches", `[]`, map[string]string{"X-Request-ID": "trace-123"})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "trace-123", body["jobId"])
	assert.Equal(t, "tenant-a", body["tenantId"])
	svc.AssertExpectations(t)
}

func TestHandleSubmit_LegacyPath(t *testing.T) {
	svc := new(MockService)
	svc.On("Submit", mock.Anything, "tenant-a", mock.AnythingOfType("string"), mock.Anything).
		Return(&models.SubmitResponse{TenantID: "tenant-a", JobID: "x", TotalRecords: 1}, nil)
	s := newTestServer(svc, localAuth("tenant-a"))

	rec := do(t, s.Handler(), http.MethodPost, "/employees", `[{}]`, map[string]string{"X-Amzn-Trace-Id": "Root=1-abc"})

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertCalled(t, "Submit", mock.Anything, "tenant-a", "Root=1-abc", []byte(`[{}]`))
}

func TestHandleSubmit_ErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantTag    string
	}{
		{"empty body", apperrors.EmptyBody(), http.StatusBadRequest, "EmptyBody"},
		{"duplicates", apperrors.DuplicateIDInBatch([]string{"E1"}), http.StatusBadRequest, "DuplicateIdInBatch"},
		{"storage", apperrors.Storage(apperrors.StorageUnexpected, "Could not create job.", errors.New("dynamo down")), http.StatusInternalServerError, "StorageError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			s := newTestServer(svc, localAuth("tenant-a"))

			rec := do(t, s.Handler(), http.MethodPost, "/batches", `[]`, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantTag, body["_tag"])
			assert.NotContains(t, rec.Body.String(), "dynamo down")
		})
	}
}

func TestHandleSubmit_UntaggedErrorIsGeneric500(t *testing.T) {
	svc := new(MockService)
	svc.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("failed to launch job: queue secret=abc"))
	s := newTestServer(svc, localAuth("tenant-a"))

	rec := do(t, s.Handler(), http.MethodPost, "/batches", `[]`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, unexpectedMessage, rec.Body.String())
}

func TestHandleSubmit_Panic(t *testing.T) {
	svc := new(MockService)
	svc.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("nil map") })
	s := newTestServer(svc, localAuth("tenant-a"))

	rec := do(t, s.Handler(), http.MethodPost, "/batches", `[]`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, unexpectedMessage, rec.Body.String())
}

func TestHandleSubmit_RequiresAuth(t *testing.T) {
	svc := new(MockService)
	s := newTestServer(svc, WithAuth(auth.Middleware(nil, auth.MiddlewareConfig{})))

	rec := do(t, s.Handler(), http.MethodPost, "/batches", `[]`, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleSubmit_MethodNotAllowed(t *testing.T) {
	s := newTestServer(new(MockService), localAuth("tenant-a"))

	rec := do(t, s.Handler(), http.MethodDelete, "/batches", "", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleStatus_MissingID(t *testing.T) {
	svc := new(MockService)
	svc.On("Status", mock.Anything, "tenant-a", "").Return(nil, apperrors.MissingParameter("id"))
	s := newTestServer(svc, localAuth("tenant-a"))

	rec := do(t, s.Handler(), http.MethodGet, "/batches", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "MissingParameter", body["_tag"])
	assert.Equal(t, "Missing required query parameter 'id'.", body["message"])
}

func TestHandleStatus_Found(t *testing.T) {
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := new(MockService)
	svc.On("Status", mock.Anything, "tenant-a", "trace-1").
		Return(&models.IngestionJob{TenantID: "tenant-a", JobID: "trace-1", TotalRecords: 2, StartedAt: &started}, nil)
	s := newTestServer(svc, localAuth("tenant-a"))

	rec := do(t, s.Handler(), http.MethodGet, "/processes?id=trace-1", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "running", body["state"])
	assert.Equal(t, float64(2), body["totalRecords"])
	assert.Equal(t, []any{}, body["duplicateIds"])
	assert.NotContains(t, body, "processedRecords")
}

// End to end against the real service and in-memory storage.
func TestBatchLifecycle(t *testing.T) {
	store := storage.NewMemoryStorage()
	svc := ingestion.NewService(config.IngestionConfig{
		Concurrency:  2,
		RetryCount:   3,
		RetryBackoff: time.Millisecond,
		MaxDuration:  time.Minute,
	}, store, zerolog.Nop())
	s := newTestServer(svc, localAuth("tenant-a"))

	batch := `[
		{"externalId":"E1","firstName":"A","lastName":"B","phoneNumber":"+15551234567"},
		{"externalId":"E2","firstName":"C","lastName":"D","phoneNumber":"not-a-number"}
	]`
	rec := do(t, s.Handler(), http.MethodPost, "/batches", batch, map[string]string{"X-Request-ID": "trace-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["totalRecords"])

	require.NoError(t, svc.Drain(context.Background()))

	rec = do(t, s.Handler(), http.MethodGet, "/batches?id=trace-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "completed", body["state"])
	assert.Equal(t, float64(1), body["succeededCount"])
	assert.Equal(t, []any{"E2"}, body["invalidPhoneIds"])

	rec = do(t, s.Handler(), http.MethodPost, "/batches",
		`[{"externalId":"E1","firstName":"A","lastName":"B"},{"externalId":"E1","firstName":"A","lastName":"B"}]`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []any{"E1"}, decodeBody(t, rec)["duplicateIds"])

	other := newTestServer(svc, localAuth("tenant-b"))
	rec = do(t, other.Handler(), http.MethodGet, "/batches?id=trace-1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decodeBody(t, rec)["_tag"])
}

func TestHandleSubmit_ReusedRequestIDConflicts(t *testing.T) {
	store := storage.NewMemoryStorage()
	svc := ingestion.NewService(config.IngestionConfig{
		Concurrency:  2,
		RetryCount:   1,
		RetryBackoff: time.Millisecond,
		MaxDuration:  time.Minute,
	}, store, zerolog.Nop())
	s := newTestServer(svc, localAuth("tenant-a"))
	headers := map[string]string{"X-Request-ID": "trace-1"}

	rec := do(t, s.Handler(), http.MethodPost, "/batches",
		`[{"externalId":"E1","firstName":"A","lastName":"B","phoneNumber":"+15551234567"}]`, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, svc.Drain(context.Background()))

	rec = do(t, s.Handler(), http.MethodPost, "/batches",
		`[{"externalId":"E9","firstName":"A","lastName":"B"},{"externalId":"E10","firstName":"A","lastName":"B"}]`, headers)

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "RequestError", body["_tag"])
	assert.Equal(t, "trace-1", body["jobId"])

	require.NoError(t, svc.Drain(context.Background()))
	job, err := store.GetJob(context.Background(), "tenant-a", "trace-1")
	require.NoError(t, err)
	assert.Equal(t, 1, job.TotalRecords)
	assert.Equal(t, 1, *job.SucceededCount)
	_, inserted := store.Record("tenant-a", "E9")
	assert.False(t, inserted)
}
