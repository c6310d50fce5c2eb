package behaviour

import (
	"context"

	"github.com/tendermint/tendermint/libs/cmap"
	"github.com/tendermint/tendermint/libs/log"

	"roundabci/activity"
	"roundabci/cas"
	cstypes "roundabci/consensus/types"
	"roundabci/libs/benchmark"
	"roundabci/state"
	"roundabci/types"
)

// Behaviour is the procedure an agent runs while the round it matches is
// active. It never blocks on I/O itself: every external operation is returned
// as a Step, the orchestrator performs it and calls Next again with the Outcome.
//
// The first call gets a zero Outcome. After SubmitPayload the next call gets
// the round Resolution. Returning Done ends the behaviour.
type Behaviour interface {
	BehaviourID() string
	MatchingRound() types.RoundKind
	Next(ctx context.Context, outcome Outcome) (Step, error)
}

// Factory builds the behaviour of a round instance.
type Factory func(bctx *Context) Behaviour

// Outcome is the result of the previous step.
type Outcome struct {
	Result interface{}
	Err    error

	// Resolution is set once the round the payload was submitted to resolved
	Resolution *cstypes.Resolution
}

// Context carries everything a behaviour may use. It is built by the
// orchestrator for every round instance; behaviours never reach for globals.
type Context struct {
	AgentID types.AgentID
	Round   cstypes.RoundState

	Data       *state.SynchronizedData
	Activities activity.Provider
	Store      cas.Store
	LocalState *cmap.CMap
	Params     map[string]interface{}

	Logger    log.Logger
	Benchmark *benchmark.Tool
}

// Param returns the configured parameter key.
func (c *Context) Param(key string) (interface{}, bool) {
	v, ok := c.Params[key]
	return v, ok
}

// BaseBehaviour implements the identity part of Behaviour.
type BaseBehaviour struct {
	id    string
	round types.RoundKind

	Ctx *Context
}

func NewBaseBehaviour(id string, round types.RoundKind, bctx *Context) BaseBehaviour {
	return BaseBehaviour{id: id, round: round, Ctx: bctx}
}

func (b BaseBehaviour) BehaviourID() string { return b.id }

func (b BaseBehaviour) MatchingRound() types.RoundKind { return b.round }
