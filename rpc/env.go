package rpc

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/tendermint/tendermint/libs/cmap"

	"roundabci/consensus"
	"roundabci/libs/metric"
	"roundabci/ordering"
	"roundabci/types"
)

var (
	env  *Environment
	json = jsoniter.Config{SortMapKeys: true, EscapeHTML: false}.Froze()
)

func SetEnvironment(e *Environment) {
	env = e
}

type Environment struct {
	Agents *types.AgentSet
	// Replicas maps agent id to its *consensus.RoundSequence
	Replicas *cmap.CMap
	Ordering *ordering.LocalService

	MetricSet *metric.MetricSet
}

// replica resolves the sequence of agent, the first agent when empty.
func (e *Environment) replica(agent string) (*consensus.RoundSequence, error) {
	if agent == "" {
		agent = e.Agents.GetByIndex(0).String()
	}
	v := e.Replicas.Get(agent)
	if v == nil {
		return nil, fmt.Errorf("unknown agent %q", agent)
	}
	return v.(*consensus.RoundSequence), nil
}

// jsonString encodes v the way the synchronized data stores it.
func jsonString(v interface{}) string {
	s, err := json.MarshalToString(v)
	if err != nil {
		return fmt.Sprintf("%q", err.Error())
	}
	return s
}
