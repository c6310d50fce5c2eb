package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummary(t *testing.T) {
	tests := []struct {
		data                  []float64
		max, min, median, avg float64
	}{
		{nil, -1, -1, -1, -1},
		{[]float64{3}, 3, 3, 3, 3},
		{[]float64{4, 1, 3}, 4, 1, 3, 8.0 / 3},
		{[]float64{4, 1, 3, 2}, 4, 1, 2.5, 2.5},
	}

	for i, tc := range tests {
		assert.Equal(t, tc.max, Max(tc.data...), "max tc #%d", i)
		assert.Equal(t, tc.min, Min(tc.data...), "min tc #%d", i)
		assert.Equal(t, tc.median, Median(tc.data...), "median tc #%d", i)
		assert.InDelta(t, tc.avg, Avg(tc.data...), 1e-9, "avg tc #%d", i)
	}
}

func TestMedian_KeepsOrder(t *testing.T) {
	data := []float64{5, 1, 4}
	Median(data...)
	assert.Equal(t, []float64{5, 1, 4}, data)
}

func TestSplitAndTrimEmpty(t *testing.T) {
	assert.Equal(t, []string{}, SplitAndTrimEmpty("", ",", " "))
	assert.Equal(t, []string{"agent_0", "agent_1"}, SplitAndTrimEmpty(" agent_0, ,agent_1 ,", ",", " "))
}
