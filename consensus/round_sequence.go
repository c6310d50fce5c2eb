package consensus

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	cstypes "roundabci/consensus/types"
	"roundabci/libs/metric"
	"roundabci/state"
	"roundabci/types"
)

// events fired by the RoundSequence
const (
	EventNewRound      = "NewRound"      // data: cstypes.RoundState
	EventRoundResolved = "RoundResolved" // data: cstypes.Resolution
	EventHalted        = "Halted"        // data: cstypes.RoundState
	EventFatal         = "Fatal"         // data: error
)

// RoundSequence is one agent's replica of the app state machine.
// It consumes the ordered tx log through DeliverTx; every replica fed the same
// log goes through the same rounds and ends with the same synchronized data.
//
//	enter round ──> collect txs ──> resolve(event) ──> commit writes
//	     ^                                                 │
//	     └──────────── Advance(kind, event) <──────────────┘
//
// A final round halts the sequence, a missing transition makes it fatal.
type RoundSequence struct {
	service.BaseService

	app       *App
	agents    *types.AgentSet
	threshold int
	data      *state.SynchronizedData

	mtx         sync.RWMutex
	round       *Round
	resolutions []cstypes.Resolution
	halted      bool
	fatal       error

	// listeners run with the sequence locked and must not call back into it
	eventSwitch events.EventSwitch
	metric      *consensusMetric
}

type SequenceOption func(*RoundSequence)

// SetThreshold overrides the default supermajority threshold.
func SetThreshold(threshold int) SequenceOption {
	return func(rs *RoundSequence) {
		rs.threshold = types.ResolveThreshold(rs.agents.Size(), threshold)
	}
}

// SetSynchronizedData replaces the in-memory store the sequence starts with.
func SetSynchronizedData(data *state.SynchronizedData) SequenceOption {
	return func(rs *RoundSequence) {
		rs.data = data
	}
}

// NewRoundSequence builds a replica positioned in the app's initial round.
func NewRoundSequence(app *App, agents *types.AgentSet, options ...SequenceOption) *RoundSequence {
	rs := &RoundSequence{
		app:         app,
		agents:      agents,
		threshold:   types.Threshold(agents.Size()),
		resolutions: []cstypes.Resolution{},
		eventSwitch: events.NewEventSwitch(),
		metric:      newConsensusMetric(),
	}
	rs.BaseService = *service.NewBaseService(nil, "ROUND_SEQUENCE", rs)

	for _, opt := range options {
		opt(rs)
	}
	if rs.data == nil {
		rs.data = state.NewSynchronizedData()
	}

	rs.mtx.Lock()
	rs.enterRound(types.RoundIDZero.Next(), app.InitialRound())
	rs.mtx.Unlock()
	return rs
}

func (rs *RoundSequence) SetLogger(logger log.Logger) {
	rs.Logger = logger
	rs.eventSwitch.SetLogger(logger.With("module", "events"))
	rs.mtx.Lock()
	if rs.round != nil {
		rs.round.SetLogger(logger)
	}
	rs.mtx.Unlock()
}

func (rs *RoundSequence) OnStart() error {
	return rs.eventSwitch.Start()
}

func (rs *RoundSequence) OnStop() {
	if err := rs.eventSwitch.Stop(); err != nil {
		rs.Logger.Error("failed trying to stop eventSwitch", "error", err)
	}
}

// AddListener subscribes cb to every event of the sequence.
func (rs *RoundSequence) AddListener(listenerID string, cb events.EventCallback) error {
	for _, ev := range []string{EventNewRound, EventRoundResolved, EventHalted, EventFatal} {
		if err := rs.eventSwitch.AddListenerForEvent(listenerID, ev, cb); err != nil {
			return err
		}
	}
	return nil
}

func (rs *RoundSequence) RemoveListener(listenerID string) {
	rs.eventSwitch.RemoveListener(listenerID)
}

// DeliverTx applies the next tx of the ordered log. Txs targeting another
// round height are discarded. The returned error concerns the tx only; the
// sequence itself keeps going.
func (rs *RoundSequence) DeliverTx(tx types.Tx) error {
	rs.mtx.Lock()
	defer rs.mtx.Unlock()

	if rs.halted || rs.fatal != nil {
		return nil
	}
	if err := tx.ValidateBasic(); err != nil {
		return err
	}
	if tx.Round() != rs.round.ID() {
		rs.Logger.Debug("discard tx for another round", "tx", tx.Round(), "round", rs.round.ID())
		return nil
	}

	var (
		event *types.Event
		err   error
	)
	switch tx := tx.(type) {
	case *types.PayloadTx:
		event, err = rs.round.Submit(tx.Payload)

	case *types.TimeoutTx:
		spec := rs.round.Spec()
		if tx.Event == spec.DoneEvent || tx.Event == spec.NoMajorityEvent || tx.Event == types.EventError {
			rs.Logger.Info("discard timeout on a resolving event", "round", rs.round.ID(), "event", tx.Event)
			return nil
		}
		if !rs.app.HasTransition(rs.round.Kind(), tx.Event) {
			rs.Logger.Debug("discard timeout without transition", "round", rs.round.ID(), "event", tx.Event)
			return nil
		}
		event = rs.round.Timeout(tx.Event)

	case *types.ErrorTx:
		if !rs.app.HasTransition(rs.round.Kind(), types.EventError) {
			rs.Logger.Debug("discard error report without transition", "round", rs.round.ID(), "sender", tx.Sender)
			return nil
		}
		event, err = rs.round.ReportError(tx.Sender, tx.Reason)

	default:
		return errors.Errorf("unknown tx type %T", tx)
	}

	if err != nil {
		rs.Logger.Info("tx rejected", "round", rs.round.ID(), "type", tx.Type(), "err", err)
		return err
	}
	if event != nil {
		rs.resolve(*event)
	}
	return nil
}

// enterRound must be called with the lock held.
func (rs *RoundSequence) enterRound(id types.RoundID, kind types.RoundKind) {
	spec, ok := rs.app.Round(kind)
	if !ok {
		rs.fail(errors.Wrapf(types.ErrInvalidApp, "unknown round %v", kind))
		return
	}
	if err := rs.app.CheckPreConditions(kind, rs.data); err != nil {
		rs.fail(err)
		return
	}

	rs.round = NewRound(id, spec, rs.agents, rs.threshold)
	rs.round.SetLogger(rs.Logger)
	rs.metric.MarkRound(id, kind, rs.data.Period())
	rs.Logger.Info("enter round", "round", id, "kind", kind, "period", rs.data.Period())
	rs.eventSwitch.FireEvent(EventNewRound, rs.roundState())

	if rs.app.IsFinal(kind) {
		if err := rs.app.CheckPostConditions(kind, rs.data); err != nil {
			rs.fail(err)
			return
		}
		rs.halted = true
		rs.metric.MarkHalted()
		rs.Logger.Info("reached final round", "round", id, "kind", kind)
		rs.eventSwitch.FireEvent(EventHalted, rs.roundState())
		return
	}

	if spec.Degenerate {
		rs.resolve(*rs.round.Finish())
	}
}

// resolve commits the round outcome and moves to the next round.
// Must be called with the lock held.
func (rs *RoundSequence) resolve(event types.Event) {
	round := rs.round

	if writes := round.Writes(); len(writes) > 0 {
		if err := rs.data.Update(writes); err != nil {
			rs.fail(errors.Wrapf(err, "commit round %d", round.ID()))
			return
		}
	}

	next, err := rs.app.Advance(round.Kind(), event)
	res := cstypes.Resolution{
		RoundID:   round.ID(),
		Kind:      round.Kind(),
		Event:     event,
		Next:      next,
		Selection: round.Selection(),
	}
	rs.resolutions = append(rs.resolutions, res)
	rs.metric.MarkResolution(event)
	rs.Logger.Info("round resolved", "round", round.ID(), "kind", round.Kind(), "event", event, "next", next)
	rs.eventSwitch.FireEvent(EventRoundResolved, res)

	if err != nil {
		rs.fail(err)
		return
	}

	// re-entering the initial round from elsewhere starts a new period
	if next == rs.app.InitialRound() && round.Kind() != next {
		if err := rs.data.ResetPeriod(rs.app.CrossPeriodPersistedKeys()); err != nil {
			rs.fail(errors.Wrap(err, "reset period"))
			return
		}
	}
	rs.enterRound(round.ID().Next(), next)
}

func (rs *RoundSequence) fail(err error) {
	rs.fatal = err
	rs.metric.MarkFatal(err)
	rs.Logger.Error("round sequence failed", "err", err)
	rs.eventSwitch.FireEvent(EventFatal, err)
}

func (rs *RoundSequence) roundState() cstypes.RoundState {
	return cstypes.RoundState{
		RoundID:   rs.round.ID(),
		Kind:      rs.round.Kind(),
		Status:    rs.round.Status(),
		Period:    rs.data.Period(),
		Collected: rs.round.Collection().Size(),
		Threshold: rs.threshold,
		Halted:    rs.halted,
	}
}

// RoundState returns a snapshot of the current round.
func (rs *RoundSequence) RoundState() cstypes.RoundState {
	rs.mtx.RLock()
	defer rs.mtx.RUnlock()
	return rs.roundState()
}

// Resolution returns the outcome of the round with the given height.
func (rs *RoundSequence) Resolution(id types.RoundID) (cstypes.Resolution, bool) {
	rs.mtx.RLock()
	defer rs.mtx.RUnlock()
	// heights are contiguous from 1
	idx := int(id.Int64()) - 1
	if idx < 0 || idx >= len(rs.resolutions) {
		return cstypes.Resolution{}, false
	}
	return rs.resolutions[idx], true
}

func (rs *RoundSequence) Resolutions() []cstypes.Resolution {
	rs.mtx.RLock()
	defer rs.mtx.RUnlock()
	res := make([]cstypes.Resolution, len(rs.resolutions))
	copy(res, rs.resolutions)
	return res
}

// Audit returns the audit trail of the current round.
func (rs *RoundSequence) Audit() []cstypes.AuditEntry {
	rs.mtx.RLock()
	defer rs.mtx.RUnlock()
	return rs.round.Collection().Audit()
}

func (rs *RoundSequence) Halted() bool {
	rs.mtx.RLock()
	defer rs.mtx.RUnlock()
	return rs.halted
}

// Err returns the error that made the sequence fatal, if any.
func (rs *RoundSequence) Err() error {
	rs.mtx.RLock()
	defer rs.mtx.RUnlock()
	return rs.fatal
}

func (rs *RoundSequence) Data() *state.SynchronizedData { return rs.data }

func (rs *RoundSequence) App() *App { return rs.app }

func (rs *RoundSequence) Agents() *types.AgentSet { return rs.agents }

func (rs *RoundSequence) Threshold() int { return rs.threshold }

func (rs *RoundSequence) Metric() metric.MetricItem { return rs.metric }
