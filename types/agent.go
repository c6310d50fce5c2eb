package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// AgentID is the stable identity of one participant of the run.
type AgentID string

func (id AgentID) String() string {
	return string(id)
}

func (id AgentID) ValidateBasic() error {
	if strings.TrimSpace(string(id)) == "" {
		return errors.New("empty agent id")
	}
	return nil
}

// AgentSet is the fixed, ordered set of agents taking part in a run.
//
// NOTE: Not goroutine-safe. Every round keeps its own copy.
type AgentSet struct {
	Agents []AgentID `json:"agents"`

	index map[AgentID]int
}

// NewAgentSet builds a set from ids, keeping the given order.
// The ids must be unique, otherwise the function panics.
func NewAgentSet(ids []AgentID) *AgentSet {
	set := &AgentSet{
		Agents: make([]AgentID, 0, len(ids)),
		index:  make(map[AgentID]int, len(ids)),
	}

	for _, id := range ids {
		if _, dup := set.index[id]; dup {
			panic(fmt.Sprintf("duplicate agent %v", id))
		}
		set.index[id] = len(set.Agents)
		set.Agents = append(set.Agents, id)
	}

	return set
}

func (set *AgentSet) ValidateBasic() error {
	if set.IsNilOrEmpty() {
		return errors.New("agent set is nil or empty")
	}

	for idx, id := range set.Agents {
		if err := id.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid agent #%d: %w", idx, err)
		}
	}

	return nil
}

// IsNilOrEmpty returns true if agent set is nil or empty.
func (set *AgentSet) IsNilOrEmpty() bool {
	return set == nil || len(set.Agents) == 0
}

// Has returns true if id is a member of the set.
func (set *AgentSet) Has(id AgentID) bool {
	if set == nil {
		return false
	}
	_, ok := set.index[id]
	return ok
}

// GetByID returns the index of the agent, or -1 if it is unknown.
func (set *AgentSet) GetByID(id AgentID) int {
	if idx, ok := set.index[id]; ok {
		return idx
	}
	return -1
}

// GetByIndex returns the id at index, or "" if index is out of range.
func (set *AgentSet) GetByIndex(index int) AgentID {
	if index < 0 || index >= len(set.Agents) {
		return ""
	}
	return set.Agents[index]
}

// Size returns the number of agents in the set.
func (set *AgentSet) Size() int {
	if set == nil {
		return 0
	}
	return len(set.Agents)
}

func (set *AgentSet) Copy() *AgentSet {
	return NewAgentSet(set.Agents)
}

func (set *AgentSet) String() string {
	if set == nil {
		return "nil-AgentSet"
	}
	ids := make([]string, len(set.Agents))
	for i, id := range set.Agents {
		ids[i] = string(id)
	}
	return fmt.Sprintf("AgentSet{%s}", strings.Join(ids, " "))
}
