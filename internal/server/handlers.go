package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cyderes/employee-batch-service/internal/apperrors"
	"github.com/cyderes/employee-batch-service/internal/auth"
	"github.com/cyderes/employee-batch-service/internal/models"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSubmit admits a batch and answers before any record is processed
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, &apperrors.Error{
				Kind:    apperrors.KindRequest,
				Message: "Request body is too large.",
				Status:  http.StatusRequestEntityTooLarge,
				Cause:   err,
			})
			return
		}
		writeError(w, r, &apperrors.Error{
			Kind:    apperrors.KindRequest,
			Message: "Could not read request body.",
			Status:  http.StatusBadRequest,
			Cause:   err,
		})
		return
	}

	resp, err := s.service.Submit(r.Context(), auth.TenantFromContext(r.Context()), RequestIDFromContext(r.Context()), body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStatus returns the caller's job with its derived state
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.Status(r.Context(), auth.TenantFromContext(r.Context()), r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewJobView(*job))
}
