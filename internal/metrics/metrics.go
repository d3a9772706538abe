// Package metrics exposes Prometheus collectors for store dispatches.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/ESETdropout/kframe/internal/engine"
)

const namespace = "kframe"

const storeSubsystem = "store"

// unknownActionLabel replaces the action label of unregistered actions so
// arbitrary names cannot grow the label space.
const unknownActionLabel = "<unknown>"

// Recorder holds the dispatch collectors. It implements
// engine.MetricsRecorder.
type Recorder struct {
	// DispatchTotal counts dispatch attempts.
	// Labels: action, outcome (ok, unknown_action, reentrant, error, init)
	DispatchTotal *prometheus.CounterVec

	// DispatchDurationSeconds measures handler-to-listener time.
	// Labels: action
	DispatchDurationSeconds *prometheus.HistogramVec

	// NotifiedObservers is the number of observers notified per dispatch.
	NotifiedObservers prometheus.Histogram

	// ChangedKeys is the number of top-level keys the diff reported.
	ChangedKeys prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. Passing nil uses a fresh registry.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Recorder{
		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: storeSubsystem,
				Name:      "dispatch_total",
				Help:      "Total dispatch attempts by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		DispatchDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: storeSubsystem,
				Name:      "dispatch_duration_seconds",
				Help:      "Dispatch duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
			},
			[]string{"action"},
		),
		NotifiedObservers: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: storeSubsystem,
			Name:      "notified_observers",
			Help:      "Observers notified per dispatch",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		ChangedKeys: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: storeSubsystem,
			Name:      "changed_keys",
			Help:      "Top-level keys changed per dispatch",
			Buckets:   []float64{0, 1, 2, 4, 8, 16},
		}),
		gatherer: reg,
	}
}

// ObserveDispatch implements engine.MetricsRecorder.
func (r *Recorder) ObserveDispatch(action string, outcome engine.Outcome, elapsed time.Duration, changed, notified int) {
	if outcome == engine.OutcomeUnknown {
		action = unknownActionLabel
	}
	r.DispatchTotal.WithLabelValues(action, string(outcome)).Inc()
	if outcome != engine.OutcomeOK && outcome != engine.OutcomeInitialize {
		return
	}
	r.DispatchDurationSeconds.WithLabelValues(action).Observe(elapsed.Seconds())
	r.NotifiedObservers.Observe(float64(notified))
	if outcome == engine.OutcomeOK {
		r.ChangedKeys.Observe(float64(changed))
	}
}

// WriteText writes every collected metric in the Prometheus text format.
func (r *Recorder) WriteText(w io.Writer) error {
	families, err := r.gatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

var _ engine.MetricsRecorder = (*Recorder)(nil)
