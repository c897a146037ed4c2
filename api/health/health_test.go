package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLiveReportsUptime(t *testing.T) {
	p := NewProbe()
	start := p.started
	p.now = func() time.Time { return start.Add(90*time.Second + 400*time.Millisecond) }

	rec := httptest.NewRecorder()
	p.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","uptime":"1m30s"}`, rec.Body.String())
}

func TestReadinessFollowsState(t *testing.T) {
	p := NewProbe()

	check := func(code int, body string) {
		t.Helper()
		rec := httptest.NewRecorder()
		p.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, code, rec.Code)
		assert.JSONEq(t, body, rec.Body.String())
	}

	check(http.StatusServiceUnavailable, `{"status":"not ready"}`)
	p.SetReady(true)
	check(http.StatusOK, `{"status":"ready"}`)
	p.SetReady(false)
	check(http.StatusServiceUnavailable, `{"status":"not ready"}`)
}
