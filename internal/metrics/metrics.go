package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "domologica"

const (
	resultSuccess = "success"
	resultError   = "error"
)

// Metrics records gateway activity on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	polls         *prometheus.CounterVec
	pollDuration  prometheus.Histogram
	lastPoll      prometheus.Gauge
	commands      *prometheus.CounterVec
	metadataFetch *prometheus.CounterVec
	elements      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Status document polls by result.",
			},
			[]string{"result"},
		),
		pollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_duration_seconds",
				Help:      "Time to fetch and parse the status document.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		lastPoll: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_successful_poll_timestamp_seconds",
				Help:      "Unix time of the last successful poll.",
			},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Commands sent to the gateway by action and result.",
			},
			[]string{"action", "result"},
		),
		metadataFetch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metadata_fetches_total",
				Help:      "Element metadata fetches by result.",
			},
			[]string{"result"},
		),
		elements: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "elements",
				Help:      "Elements in the last status document.",
			},
		),
	}

	m.registry.MustRegister(m.polls, m.pollDuration, m.lastPoll, m.commands, m.metadataFetch, m.elements)
	return m
}

func (m *Metrics) ObservePoll(elapsed time.Duration, err error) {
	m.polls.WithLabelValues(result(err)).Inc()
	if err != nil {
		return
	}
	m.pollDuration.Observe(elapsed.Seconds())
	m.lastPoll.SetToCurrentTime()
}

func (m *Metrics) ObserveCommand(action string, err error) {
	m.commands.WithLabelValues(action, result(err)).Inc()
}

func (m *Metrics) ObserveMetadataFetch(err error) {
	m.metadataFetch.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) SetElements(n int) {
	m.elements.Set(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}
