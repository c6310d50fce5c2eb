package consensus

import (
	"fmt"
	"time"

	"github.com/tendermint/tendermint/libs/log"

	"roundabci/types"
)

const (
	pingRound     = types.RoundKind("PingRound")
	finishedRound = types.RoundKind("FinishedPingRound")
	resetRound    = types.RoundKind("ResetRound")

	participantsKey = "participant_to_ping_round"
	messageKey      = "ping_message"
)

func makeAgents(n int) *types.AgentSet {
	ids := make([]types.AgentID, n)
	for i := range ids {
		ids[i] = types.AgentID(fmt.Sprintf("agent_%d", i))
	}
	return types.NewAgentSet(ids)
}

func makePingApp(transitions TransitionFunction, options ...AppOption) (*App, error) {
	return NewApp(
		"ping",
		pingRound,
		[]RoundSpec{
			CollectSameUntilThreshold(pingRound, participantsKey, messageKey),
			DegenerateRound(finishedRound),
		},
		transitions,
		[]types.RoundKind{finishedRound},
		options...,
	)
}

func defaultPingTransitions() TransitionFunction {
	return TransitionFunction{
		pingRound: {
			types.EventDone:         finishedRound,
			types.EventNoMajority:   pingRound,
			types.EventRoundTimeout: pingRound,
		},
	}
}

func mustPingApp() *App {
	app, err := makePingApp(defaultPingTransitions(),
		SetEventTimeouts(map[types.Event]time.Duration{types.EventRoundTimeout: 30 * time.Second}))
	if err != nil {
		panic(err)
	}
	return app
}

func newTestSequence(app *App, agents *types.AgentSet, options ...SequenceOption) *RoundSequence {
	rs := NewRoundSequence(app, agents, options...)
	rs.SetLogger(log.TestingLogger())
	return rs
}

func payloadTx(id types.RoundID, sender types.AgentID, value interface{}) types.Tx {
	return &types.PayloadTx{RoundID: id, Payload: types.NewPayload(sender, value)}
}
