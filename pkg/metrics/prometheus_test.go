package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordTick("snapshot", "ok")
	r.RecordTick("snapshot", "ok")
	r.RecordTriggerDropped("snapshot")
	r.RecordDispatch("telegram", true)
	r.RecordDispatch("wechat", false)
	r.RecordAlert("crash", "fired")
	r.RecordAlert("crash", "suppressed")
	r.RecordAssessment("ok", 2)
	r.RecordStage("collecting", 150*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ticks.WithLabelValues("snapshot", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dropped.WithLabelValues("snapshot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dispatch.WithLabelValues("telegram", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dispatch.WithLabelValues("wechat", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alerts.WithLabelValues("crash", "suppressed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.assessments.WithLabelValues("ok")))
}

func TestNewWithRegistry_Isolated(t *testing.T) {
	// two recorders on separate registries must not collide
	assert.NotPanics(t, func() {
		NewWithRegistry(prometheus.NewRegistry())
		NewWithRegistry(prometheus.NewRegistry())
	})
}
