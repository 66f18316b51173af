package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/metrics"
)

func TestMetrics_Counters(t *testing.T) {
	m := metrics.New()
	m.Issued("verification_code", "rotated")
	m.Issued("verification_code", "rotated")
	m.Validated("access_token", "revoked")
	m.Authenticated("bearer")

	n, err := testutil.GatherAndCount(m.Registry(),
		"auth_credentials_issued_total",
		"auth_credential_validations_total",
		"auth_request_authentications_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.Issued("k", "created")
		m.Validated("k", "ok")
		m.Authenticated("none")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := metrics.New()
	m.Authenticated("api_key")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `auth_request_authentications_total{method="api_key"} 1`)
}
