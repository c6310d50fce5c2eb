package metric

// MetricItem - every module exposing metrics implements one MetricItem
// rendering its current values as a JSON object.
type MetricItem interface {
	JSONString() string
}

type mockMetricItem struct {
	name string
}

func (mock *mockMetricItem) JSONString() string {
	return mock.name
}
