package ping

import (
	"context"

	"github.com/pkg/errors"

	"roundabci/behaviour"
	"roundabci/cas"
)

const (
	stepPing = iota
	stepStore
	stepLoad
	stepSubmit
	stepDone
)

// PingBehaviour pings the configured endpoint, round-trips the reply through
// the content-addressed store and submits it.
type PingBehaviour struct {
	behaviour.BaseBehaviour

	step int
}

func NewPingBehaviour(bctx *behaviour.Context) behaviour.Behaviour {
	return &PingBehaviour{BaseBehaviour: behaviour.NewBaseBehaviour("ping", PingRound, bctx)}
}

func (b *PingBehaviour) Next(_ context.Context, outcome behaviour.Outcome) (behaviour.Step, error) {
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	logger := b.Ctx.Logger

	switch b.step {
	case stepPing:
		b.step = stepStore
		return behaviour.CallActivity{Name: PingActivity}, nil

	case stepStore:
		msg, ok := outcome.Result.(string)
		if !ok {
			return nil, errors.Errorf("unexpected ping reply %v", outcome.Result)
		}
		logger.Info("got ping reply", "message", msg)
		b.step = stepLoad
		return behaviour.PutObject{Object: map[string]interface{}{PingMessageKey: msg}}, nil

	case stepLoad:
		hash, ok := outcome.Result.(cas.ContentHash)
		if !ok {
			return nil, errors.Errorf("unexpected content hash %v", outcome.Result)
		}
		logger.Info("ping message stored", "hash", hash)
		b.step = stepSubmit
		return behaviour.GetObject{Hash: hash}, nil

	case stepSubmit:
		obj, ok := outcome.Result.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("unexpected object %v", outcome.Result)
		}
		msg, ok := obj[PingMessageKey]
		if !ok {
			return nil, errors.Errorf("object has no %s", PingMessageKey)
		}
		logger.Info("got message from store", "message", msg)
		b.step = stepDone
		return behaviour.SubmitPayload{Value: msg}, nil

	default:
		if outcome.Resolution != nil {
			logger.Info("ping round resolved", "event", outcome.Resolution.Event,
				"selection", outcome.Resolution.Selection)
		}
		return behaviour.Done{}, nil
	}
}
