// Package ping is a minimal app: every agent pings an HTTP endpoint and the
// agents agree on the reply.
package ping

import (
	"net/http"
	"time"

	"roundabci/activity"
	"roundabci/behaviour"
	"roundabci/consensus"
	"roundabci/types"
)

const (
	AppName = "ping"

	PingRound         types.RoundKind = "PingRound"
	FinishedPingRound types.RoundKind = "FinishedPingRound"

	ParticipantToPingRoundKey = "participant_to_ping_round"
	PingMessageKey            = "ping_message"

	// PingActivity is the activity the behaviour calls.
	PingActivity = "ping"
)

// Transitions of the ping app.
func Transitions() consensus.TransitionFunction {
	return consensus.TransitionFunction{
		PingRound: {
			types.EventNoMajority:   PingRound,
			types.EventRoundTimeout: PingRound,
			types.EventDone:         FinishedPingRound,
		},
		FinishedPingRound: {},
	}
}

// NewApp builds the ping app. A positive roundTimeout bounds PingRound.
func NewApp(roundTimeout time.Duration) (*consensus.App, error) {
	var options []consensus.AppOption
	if roundTimeout > 0 {
		options = append(options, consensus.SetEventTimeouts(map[types.Event]time.Duration{
			types.EventRoundTimeout: roundTimeout,
		}))
	}

	return consensus.NewApp(
		AppName,
		PingRound,
		[]consensus.RoundSpec{
			consensus.CollectSameUntilThreshold(PingRound, ParticipantToPingRoundKey, PingMessageKey),
			consensus.DegenerateRound(FinishedPingRound),
		},
		Transitions(),
		[]types.RoundKind{FinishedPingRound},
		options...,
	)
}

// NewRegistry maps PingRound to PingBehaviour.
func NewRegistry() *behaviour.Registry {
	r := behaviour.NewRegistry()
	if err := r.Register(PingRound, NewPingBehaviour); err != nil {
		panic(err)
	}
	return r
}

// CoingeckoPingSpec is the public endpoint used when no ping activity is
// configured.
func CoingeckoPingSpec() activity.APISpec {
	return activity.APISpec{
		URL:          "https://api.coingecko.com/api/v3/ping",
		Method:       http.MethodGet,
		Headers:      map[string]string{"Accept": "application/json"},
		ResponseKey:  "gecko_says",
		ResponseType: activity.ResponseTypeStr,
		Timeout:      10 * time.Second,
		Retries:      2,
		RetryWait:    500 * time.Millisecond,
	}
}
