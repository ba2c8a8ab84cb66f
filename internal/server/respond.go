package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cyderes/employee-batch-service/internal/apperrors"
)

const unexpectedMessage = "An unexpected error occurred."

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders tagged errors as structured bodies. Causes are logged, never
// written; anything untagged becomes a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())

	appErr, ok := apperrors.As(err)
	if !ok {
		logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg("unhandled error")
		writeUnexpected(w)
		return
	}

	event := logger.Warn()
	if appErr.Status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.
		Err(err).
		Int("status", appErr.Status).
		Str("tag", string(appErr.Kind)).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Msg(appErr.Message)

	writeJSON(w, appErr.Status, appErr.Body())
}

func writeUnexpected(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(unexpectedMessage))
}
