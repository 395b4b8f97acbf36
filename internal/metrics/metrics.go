// Package metrics collects client-side Prometheus metrics.
//
// WHY METRICS IN A CLIENT?
// The interesting failures of this client are invisible in the UI: a token
// evicted twice, a vote rolled back, a sibling view that failed to refresh.
// Counting them gives `qaclient --metrics` (and the stub server's /metrics
// endpoint) something concrete to look at.
package metrics

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Recorder is the interface the transport, session, vote and propagate
// packages record through. Collector implements it against Prometheus; Nop
// drops everything.
type Recorder interface {
	RecordRequest(method, route string, status int, d time.Duration)
	RecordEviction()
	RecordVote(mode, outcome string)
	RecordRefresh(view string, err error)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	evictions prometheus.Counter
	votes     *prometheus.CounterVec
	refreshes *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qaclient_requests_total",
			Help: "API requests by method, route and status code (0 = transport failure).",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qaclient_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qaclient_session_evictions_total",
			Help: "Sessions evicted after the server rejected the credential.",
		}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qaclient_votes_total",
			Help: "Vote attempts by reconciliation mode and outcome.",
		}, []string{"mode", "outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qaclient_view_refreshes_total",
			Help: "Sibling view refreshes triggered by a mutation, by view and result.",
		}, []string{"view", "result"}),
	}

	reg.MustRegister(c.requests, c.latency, c.evictions, c.votes, c.refreshes)
	return c
}

// RecordRequest records one API call. status is 0 when no response arrived.
func (c *Collector) RecordRequest(method, route string, status int, d time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) RecordEviction() {
	c.evictions.Inc()
}

// RecordVote records a finished vote. outcome is "applied", "failed" or "rejected".
func (c *Collector) RecordVote(mode, outcome string) {
	c.votes.WithLabelValues(mode, outcome).Inc()
}

func (c *Collector) RecordRefresh(view string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.refreshes.WithLabelValues(view, result).Inc()
}

// Nop is a Recorder that records nothing.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordRequest(string, string, int, time.Duration) {}
func (Nop) RecordEviction()                                 {}
func (Nop) RecordVote(string, string)                       {}
func (Nop) RecordRefresh(string, error)                     {}

// Handler returns an HTTP handler serving the gathered metrics.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// WriteText writes every gathered metric family to w in the Prometheus text
// exposition format.
func WriteText(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
