package contentgraph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records reconciliation and cascade outcomes. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	FanOutTasks     *prometheus.CounterVec
	Reconciliations *prometheus.CounterVec
	Removals        *prometheus.CounterVec
	RemovalDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FanOutTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contentgraph_fanout_tasks_total",
			Help: "Total number of fan-out tasks by operation and result",
		}, []string{"operation", "result"}),
		Reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contentgraph_reconciliations_total",
			Help: "Total number of association reconciliations by kind and result",
		}, []string{"kind", "result"}),
		Removals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contentgraph_removals_total",
			Help: "Total number of entity removals by entity and result",
		}, []string{"entity", "result"}),
		RemovalDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contentgraph_removal_duration_seconds",
			Help:    "Duration of entity removals including their cascade",
			Buckets: prometheus.DefBuckets,
		}, []string{"entity"}),
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *Metrics) observeTask(op string, err error) {
	if m == nil {
		return
	}
	m.FanOutTasks.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) observeReconcile(kind string, err error) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(kind, resultLabel(err)).Inc()
}

// trackRemoval returns a func that records the removal outcome when called
// (e.g. defer).
func (m *Metrics) trackRemoval(entity string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	return func(err error) {
		m.Removals.WithLabelValues(entity, resultLabel(err)).Inc()
		m.RemovalDuration.WithLabelValues(entity).Observe(time.Since(start).Seconds())
	}
}
