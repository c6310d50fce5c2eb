package consensus

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"roundabci/types"
)

func newConsensusMetric() *consensusMetric {
	return &consensusMetric{
		RoundID:     types.RoundIDZero,
		LastEvent:   "",
		Resolutions: 0,
	}
}

type consensusMetric struct {
	mtx sync.Mutex

	RoundID        types.RoundID   `json:"current_round"`
	Kind           types.RoundKind `json:"current_kind"`
	Period         int64           `json:"period"`
	RoundStartTime time.Time       `json:"round_start_time"`

	Resolutions int         `json:"resolutions"`
	LastEvent   types.Event `json:"last_event"`
	NoMajority  int         `json:"no_majority"`
	Timeouts    int         `json:"timeouts"`

	Halted bool   `json:"halted"`
	Fatal  string `json:"fatal,omitempty"`
}

func (cm *consensusMetric) JSONString() string {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	s, _ := jsoniter.MarshalToString(cm)
	return s
}

func (cm *consensusMetric) MarkRound(id types.RoundID, kind types.RoundKind, period int64) {
	cm.mtx.Lock()
	cm.RoundID, cm.Kind, cm.Period = id, kind, period
	cm.RoundStartTime = time.Now()
	cm.mtx.Unlock()
}

func (cm *consensusMetric) MarkResolution(event types.Event) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Resolutions++
	cm.LastEvent = event
	switch event {
	case types.EventNoMajority:
		cm.NoMajority++
	case types.EventRoundTimeout:
		cm.Timeouts++
	}
}

func (cm *consensusMetric) MarkHalted() {
	cm.mtx.Lock()
	cm.Halted = true
	cm.mtx.Unlock()
}

func (cm *consensusMetric) MarkFatal(err error) {
	cm.mtx.Lock()
	cm.Fatal = err.Error()
	cm.mtx.Unlock()
}
