package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashguard/internal/domain/models"
	"dashguard/pkg/logger"
)

const feodoFixture = `[
  {"ip_address":"203.0.113.10","port":443,"status":"online","hostname":null,"as_number":64500,
   "as_name":"EXAMPLE-AS","country":"DE","first_seen":"2026-04-01 08:15:00","last_online":"2026-05-19","malware":"QakBot"},
  {"ip_address":"203.0.113.11","port":8080,"status":"offline","hostname":null,"as_number":64501,
   "as_name":"","country":"","first_seen":"not a date","last_online":"","malware":"Emotet"},
  {"ip_address":"","port":0,"status":"offline","country":"US","first_seen":"2026-04-01 08:15:00","malware":"Dridex"}
]`

func TestFeodoLoader_Load(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feodoFixture))
	}))
	defer srv.Close()

	threats, err := NewFeodoLoader(srv.URL, logger.NewNop()).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, threats, 2)

	online := threats[0]
	assert.Equal(t, "feodo-203.0.113.10", online.ID)
	assert.Equal(t, "203.0.113.10", online.IP)
	assert.Equal(t, models.SeverityHigh, online.Severity)
	assert.Equal(t, models.ThreatTypeMalware, online.Type)
	assert.True(t, online.IsActive)
	assert.Equal(t, 95, online.Confidence)
	assert.Equal(t, 2026, online.DateAdded.Year())
	assert.Contains(t, online.Tags, "qakbot")
	assert.Contains(t, online.Description, "EXAMPLE-AS")
	require.NotNil(t, online.Location)
	assert.Equal(t, "Germany", online.Location.Country)
	assert.False(t, online.HasCoordinates())

	offline := threats[1]
	assert.Equal(t, models.SeverityMedium, offline.Severity)
	assert.False(t, offline.IsActive)
	assert.Nil(t, offline.Location)
	assert.False(t, offline.DateAdded.IsZero())
}

func TestFeodoLoader_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFeodoLoader(srv.URL, logger.NewNop()).Load(context.Background())
	assert.ErrorContains(t, err, "unexpected status code: 503")
}
