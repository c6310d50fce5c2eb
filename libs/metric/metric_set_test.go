package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestMetric() *MetricSet {
	m := NewMetricSet()
	m.metrics["TEST"] = &mockMetricItem{name: "TEST"}
	return m
}

func TestMetricSet_HasMetrics(t *testing.T) {
	metric := newTestMetric()

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.False(t, metric.HasMetrics("FTEST"), "shouldn't contain label(FTEST)")
}

func TestMetricSet_SetMetrics(t *testing.T) {
	metric := newTestMetric()

	mockItem := &mockMetricItem{name: "TEST"}
	assert.ErrorIs(t, metric.SetMetrics("TEST", mockItem), ErrMetricLabelExist, "label(TEST) is taken")

	assert.Nil(t, metric.SetMetrics("TEST1", mockItem), "label(TEST1) should be set")

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.True(t, metric.HasMetrics("TEST1"), "should contain label(TEST1)")
	assert.Equal(t, []string{"TEST", "TEST1"}, metric.Labels())
}

func TestMetricSet_Snapshot(t *testing.T) {
	metric := newTestMetric()

	assert.Nil(t, metric.GetMetrics("MISSING"))
	assert.Equal(t, map[string]string{"TEST": "TEST"}, metric.Snapshot())
}
