// Package benchmark times the phases of a behaviour: the local phase computing
// the payload and the consensus phase waiting for the round to resolve.
package benchmark

import (
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	metrics "github.com/rcrowley/go-metrics"
)

const (
	PhaseLocal     = "local"
	PhaseConsensus = "consensus"

	sampleSize  = 1028
	sampleAlpha = 0.015
)

// Tool keeps one duration histogram per (behaviour, phase). Histograms are
// used instead of go-metrics timers because a timer's meter starts a
// process-wide ticking goroutine.
type Tool struct {
	mtx      sync.Mutex
	registry metrics.Registry
	order    []string
}

func NewTool() *Tool {
	return &Tool{registry: metrics.NewRegistry()}
}

// SplitName splits a timer name into its behaviour id and phase.
func SplitName(name string) (behaviourID, phase string) {
	idx := strings.LastIndex(name, "/")
	if idx < 0 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}

// Measure returns the measurement handle of behaviourID.
func (t *Tool) Measure(behaviourID string) *Measurement {
	return &Measurement{tool: t, id: behaviourID}
}

func (t *Tool) histogram(name string) metrics.Histogram {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if h, ok := t.registry.Get(name).(metrics.Histogram); ok {
		return h
	}
	h := metrics.NewHistogram(metrics.NewExpDecaySample(sampleSize, sampleAlpha))
	if err := t.registry.Register(name, h); err != nil {
		return metrics.NilHistogram{}
	}
	t.order = append(t.order, name)
	return h
}

// Measurement times the phases of one behaviour.
type Measurement struct {
	tool *Tool
	id   string
}

// Local starts timing the local phase; call the returned func to stop.
func (m *Measurement) Local() func() {
	return m.start(PhaseLocal)
}

// Consensus starts timing the consensus phase; call the returned func to stop.
func (m *Measurement) Consensus() func() {
	return m.start(PhaseConsensus)
}

func (m *Measurement) start(phase string) func() {
	h := m.tool.histogram(m.id + "/" + phase)
	begin := time.Now()
	var once sync.Once
	return func() {
		once.Do(func() { h.Update(int64(time.Since(begin))) })
	}
}

// PhaseSummary is expressed in seconds.
type PhaseSummary struct {
	Count  int64   `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
	Total  float64 `json:"total"`
}

// Summary returns the statistics of every measured behaviour/phase.
func (t *Tool) Summary() map[string]PhaseSummary {
	t.mtx.Lock()
	names := append([]string{}, t.order...)
	t.mtx.Unlock()
	sort.Strings(names)

	res := make(map[string]PhaseSummary, len(names))
	for _, name := range names {
		h, ok := t.registry.Get(name).(metrics.Histogram)
		if !ok {
			continue
		}
		snap := h.Snapshot()
		res[name] = PhaseSummary{
			Count:  snap.Count(),
			Mean:   snap.Mean() / float64(time.Second),
			Median: snap.Percentile(0.5) / float64(time.Second),
			Max:    float64(snap.Max()) / float64(time.Second),
			Min:    float64(snap.Min()) / float64(time.Second),
			Total:  float64(snap.Sum()) / float64(time.Second),
		}
	}
	return res
}

// JSONString makes the tool a metric item.
func (t *Tool) JSONString() string {
	s, _ := jsoniter.MarshalToString(t.Summary())
	return s
}
