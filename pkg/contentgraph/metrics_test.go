package contentgraph

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.observeTask("op", nil)
	m.observeTask("op", errors.New("x"))
	m.observeReconcile("features", nil)
	m.trackRemoval("image")(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FanOutTasks.WithLabelValues("op", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FanOutTasks.WithLabelValues("op", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciliations.WithLabelValues("features", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Removals.WithLabelValues("image", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RemovalDuration))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeTask("op", nil)
		m.observeReconcile("blocks", nil)
		m.trackRemoval("content")(errors.New("x"))
	})
}
