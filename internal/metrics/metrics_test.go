package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(wheelsCreated)
	RecordWheelCreated()
	assert.Equal(t, before+1, testutil.ToFloat64(wheelsCreated))

	fails := testutil.ToFloat64(renderFailures.WithLabelValues("legacy"))
	RecordRenderFailure("legacy")
	assert.Equal(t, fails+1, testutil.ToFloat64(renderFailures.WithLabelValues("legacy")))

	errs := testutil.ToFloat64(analysisAttempts.WithLabelValues("ollama", "wheel", "error"))
	RecordAnalysis("ollama", "wheel", 0.2, false)
	assert.Equal(t, errs+1, testutil.ToFloat64(analysisAttempts.WithLabelValues("ollama", "wheel", "error")))

	labels := testutil.ToFloat64(unparsableLabels)
	RecordUnparsableLabels(0)
	RecordUnparsableLabels(2)
	assert.Equal(t, labels+2, testutil.ToFloat64(unparsableLabels))

	sessions := testutil.ToFloat64(activeSessions)
	SessionStarted()
	SessionStarted()
	SessionEnded()
	assert.Equal(t, sessions+1, testutil.ToFloat64(activeSessions))
	SessionEnded()
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordDashboardRequest("/healthcheck", "200")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "wheelbot_dashboard_requests_total"))
}
