// Package metrics exposes prometheus counters for the classification and
// submission pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache lookup outcomes.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Channel attempt outcomes.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the pipeline counters.
type Metrics struct {
	cacheRequests      *prometheus.CounterVec
	classifications    *prometheus.CounterVec
	submissionAttempts *prometheus.CounterVec
	statusChecks       *prometheus.CounterVec
}

// New registers the counters on registerer, or on the default registerer when nil.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "customs_cache_requests_total",
				Help: "Classification cache lookups by result.",
			},
			[]string{"result"}, // hit | miss | error
		),
		classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "customs_classifications_total",
				Help: "Classification results by method and flagged state.",
			},
			[]string{"method", "flagged"},
		),
		submissionAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "customs_submission_attempts_total",
				Help: "Declaration delivery attempts by channel and result.",
			},
			[]string{"channel", "result"},
		),
		statusChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "customs_status_checks_total",
				Help: "Remote declaration status checks by result.",
			},
			[]string{"result"},
		),
	}

	registerer.MustRegister(
		m.cacheRequests,
		m.classifications,
		m.submissionAttempts,
		m.statusChecks,
	)

	return m
}

// CacheRequest counts one cache lookup.
func (m *Metrics) CacheRequest(result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// Classification counts one classification result.
func (m *Metrics) Classification(method string, flagged bool) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(method, strconv.FormatBool(flagged)).Inc()
}

// SubmissionAttempt counts one delivery attempt on a channel.
func (m *Metrics) SubmissionAttempt(channel string, err error) {
	if m == nil {
		return
	}
	m.submissionAttempts.WithLabelValues(channel, outcome(err)).Inc()
}

// StatusCheck counts one remote status query.
func (m *Metrics) StatusCheck(err error) {
	if m == nil {
		return
	}
	m.statusChecks.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
