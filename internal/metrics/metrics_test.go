package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstrument_CountsByStatus(t *testing.T) {
	handler := Instrument("test_route", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("test_route", http.MethodGet, "418"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	after := testutil.ToFloat64(HTTPRequests.WithLabelValues("test_route", http.MethodGet, "418"))

	assert.Equal(t, before+1, after)
}

func TestHandler_ExposesNamespace(t *testing.T) {
	JobsAdmitted.Inc()

	resp := httptest.NewRecorder()
	Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "batch_ingestion_jobs_admitted_total")
}
