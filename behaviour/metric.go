package behaviour

import (
	"sync"

	jsoniter "github.com/json-iterator/go"

	"roundabci/types"
)

func newOrchestratorMetric() *orchestratorMetric {
	return &orchestratorMetric{}
}

type orchestratorMetric struct {
	mtx sync.RWMutex

	Behaviour string        `json:"current_behaviour"`
	RoundID   types.RoundID `json:"current_round"`

	Started  int `json:"behaviours_started"`
	Finished int `json:"behaviours_finished"`
	Failed   int `json:"behaviours_failed"`

	Halted  bool   `json:"halted"`
	Aborted string `json:"aborted,omitempty"`
}

func (om *orchestratorMetric) JSONString() string {
	om.mtx.RLock()
	defer om.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(om)
	return s
}

func (om *orchestratorMetric) MarkBehaviour(id string, round types.RoundID) {
	om.mtx.Lock()
	defer om.mtx.Unlock()
	om.Behaviour, om.RoundID = id, round
	om.Started++
}

func (om *orchestratorMetric) MarkBehaviourDone() {
	om.mtx.Lock()
	defer om.mtx.Unlock()
	om.Finished++
}

func (om *orchestratorMetric) MarkBehaviourError() {
	om.mtx.Lock()
	defer om.mtx.Unlock()
	om.Failed++
}

func (om *orchestratorMetric) MarkHalted() {
	om.mtx.Lock()
	defer om.mtx.Unlock()
	om.Halted = true
}

func (om *orchestratorMetric) MarkAborted(err error) {
	om.mtx.Lock()
	defer om.mtx.Unlock()
	om.Aborted = err.Error()
}
