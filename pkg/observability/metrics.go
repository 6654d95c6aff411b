package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records run lifecycle metrics.
type Metrics struct {
	transitions *prometheus.CounterVec
	events      *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	state       *prometheus.GaugeVec
	duration    prometheus.Histogram

	mu      sync.Mutex
	started time.Time
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_transitions_total",
				Help: "Run state transitions taken by the controller",
			},
			[]string{"from", "to"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_stream_events_total",
				Help: "Stream events applied to the run, by kind",
			},
			[]string{"kind"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_runs_total",
				Help: "Runs that reached a terminal state, by outcome",
			},
			[]string{"outcome"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tether_run_state",
				Help: "1 for the current run state, 0 otherwise",
			},
			[]string{"state"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tether_run_duration_seconds",
				Help:    "Wall time from start to completion or failure",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
	}

	for _, c := range []prometheus.Collector{m.transitions, m.events, m.outcomes, m.state, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	m.setState(domain.StateIdle)
	return m, nil
}

// Hooks returns lifecycle hooks that update the metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition:  m.observeTransition,
		OnStreamEvent: m.observeEvent,
	}
}

func (m *Metrics) observeTransition(ctx context.Context, tr domain.Transition) {
	m.transitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
	m.setState(tr.To)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case tr.To == domain.StateStarting:
		m.started = tr.At
	case tr.To.IsTerminal():
		m.outcomes.WithLabelValues(string(tr.To)).Inc()
		if !m.started.IsZero() {
			m.duration.Observe(tr.At.Sub(m.started).Seconds())
			m.started = time.Time{}
		}
	}
}

func (m *Metrics) observeEvent(ctx context.Context, ev domain.StreamEvent) {
	m.events.WithLabelValues(string(ev.Kind)).Inc()
}

func (m *Metrics) setState(current domain.RunState) {
	for _, s := range domain.AllStates() {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(string(s)).Set(v)
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
