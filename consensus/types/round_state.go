package types

import (
	"fmt"

	"roundabci/types"
)

//-----------------------------------------------------------------------------
// RoundStatus enum type

// RoundStatus enumerates the life of a round instance
type RoundStatus uint8

const (
	RoundStatusCollecting = RoundStatus(0x01) // accepting payloads
	RoundStatusResolved   = RoundStatus(0x02) // event produced, collection frozen
	RoundStatusDegenerate = RoundStatus(0x03) // no collection phase
)

func (s RoundStatus) String() string {
	switch s {
	case RoundStatusCollecting:
		return "Collecting"
	case RoundStatusResolved:
		return "Resolved"
	case RoundStatusDegenerate:
		return "Degenerate"
	default:
		return "Unknown"
	}
}

// RoundState is a read-only snapshot of the round an agent replica is in.
type RoundState struct {
	RoundID types.RoundID   `json:"round_id"`
	Kind    types.RoundKind `json:"kind"`
	Status  RoundStatus     `json:"status"`
	Period  int64           `json:"period"`

	Collected int `json:"collected"`
	Threshold int `json:"threshold"`

	Halted bool `json:"halted"`
}

func (rs RoundState) String() string {
	return fmt.Sprintf("RoundState{#%d %v %v period=%d %d/%d halted=%v}",
		rs.RoundID, rs.Kind, rs.Status, rs.Period, rs.Collected, rs.Threshold, rs.Halted)
}

// Resolution is the outcome of one round instance.
type Resolution struct {
	RoundID types.RoundID   `json:"round_id"`
	Kind    types.RoundKind `json:"kind"`
	Event   types.Event     `json:"event"`
	Next    types.RoundKind `json:"next"`

	// Selection is the agreed value, set only on a quorum resolution
	Selection interface{} `json:"selection,omitempty"`
}
