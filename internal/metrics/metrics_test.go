package metrics

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector(reg), reg
}

func TestRecordRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordRequest(http.MethodGet, "/questions", 200, 10*time.Millisecond)
	c.RecordRequest(http.MethodGet, "/questions", 200, 20*time.Millisecond)
	c.RecordRequest(http.MethodPost, "/auth/login", 401, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("GET", "/questions", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("POST", "/auth/login", "401")))
}

func TestRecordEviction(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordEviction()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.evictions))
}

func TestRecordVote(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordVote("echo", "applied")
	c.RecordVote("optimistic", "failed")
	c.RecordVote("optimistic", "failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.votes.WithLabelValues("echo", "applied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.votes.WithLabelValues("optimistic", "failed")))
}

func TestRecordRefresh(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordRefresh("question-list", nil)
	c.RecordRefresh("question-list", errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshes.WithLabelValues("question-list", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshes.WithLabelValues("question-list", "error")))
}

func TestWriteText(t *testing.T) {
	c, reg := newTestCollector(t)
	c.RecordEviction()

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))

	assert.Contains(t, buf.String(), "qaclient_session_evictions_total 1")
}

func TestHandler(t *testing.T) {
	c, reg := newTestCollector(t)
	c.RecordVote("echo", "applied")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `qaclient_votes_total{mode="echo",outcome="applied"} 1`)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	// must not panic
	r.RecordRequest("GET", "/", 200, time.Second)
	r.RecordEviction()
	r.RecordVote("echo", "applied")
	r.RecordRefresh("x", nil)
}
