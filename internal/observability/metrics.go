package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gebn/uno-usage-scraper/internal/credential"
)

// Metrics centralizes Prometheus instrumentation for the scraper.
type Metrics struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	samplesStored prometheus.Counter
	windowGaps    prometheus.Counter

	notifications *prometheus.CounterVec

	credentialState prometheus.Gauge
}

// NewMetrics builds a metrics container backed by the provided registry. If no
// registry is supplied, a new one is created.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{registry: reg}

	m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uno_scrape_runs_total",
		Help: "Scrape runs grouped by terminal outcome",
	}, []string{"outcome"})
	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "uno_scrape_run_seconds",
		Help:    "Durations of scrape runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	m.samplesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uno_samples_stored_total",
		Help: "Hourly usage samples durably committed",
	})
	m.windowGaps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uno_window_gaps_total",
		Help: "Window hours the portal had no reading for",
	})

	m.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uno_notifications_total",
		Help: "Notification publishes grouped by kind and status",
	}, []string{"kind", "status"})

	m.credentialState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "uno_credential_state",
		Help: "Portal credential lifecycle state (0 ok, 1 warning, 2 expired)",
	})

	reg.MustRegister(m.runs, m.runDuration, m.samplesStored, m.windowGaps, m.notifications, m.credentialState)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRun records a completed scrape run and its terminal outcome.
func (m *Metrics) ObserveRun(duration time.Duration, outcome string) {
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *Metrics) AddSamplesStored(n int) {
	m.samplesStored.Add(float64(n))
}

func (m *Metrics) AddWindowGaps(n int) {
	m.windowGaps.Add(float64(n))
}

// RecordNotification counts a publish attempt of the given kind.
func (m *Metrics) RecordNotification(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.notifications.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) SetCredentialState(state credential.State) {
	m.credentialState.Set(float64(state))
}
