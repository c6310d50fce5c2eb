package behaviour

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/cmap"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	"roundabci/activity"
	"roundabci/cas"
	"roundabci/consensus"
	cstypes "roundabci/consensus/types"
	"roundabci/libs/benchmark"
	"roundabci/libs/metric"
	"roundabci/ordering"
	"roundabci/types"
)

// Orchestrator drives the behaviours of one agent. It follows the agent's
// replica: for every round the replica enters it runs the matching behaviour,
// broadcasts the payload, and waits for the replica to resolve the round.
//
//	RoundState ──> Factory(ctx) ──> Next ... Next ──> SubmitPayload
//	    ^                                                  │
//	    │                              broadcast PayloadTx │
//	    └──────────── replica resolves the round <─────────┘
//
// A failing behaviour is reported with an ErrorTx when the app declares
// ERROR for the round; otherwise the agent stops and Err returns the cause.
type Orchestrator struct {
	service.BaseService

	agentID     types.AgentID
	seq         *consensus.RoundSequence
	registry    *Registry
	broadcaster ordering.Broadcaster

	activities activity.Provider
	store      cas.Store
	localState *cmap.CMap
	params     map[string]interface{}
	bench      *benchmark.Tool

	clock   *RoundClock
	changes *notifier

	mtx    sync.Mutex
	err    error
	cancel context.CancelFunc
	done   chan struct{}

	metric *orchestratorMetric
}

type OrchestratorOption func(*Orchestrator)

func SetActivities(p activity.Provider) OrchestratorOption {
	return func(o *Orchestrator) { o.activities = p }
}

func SetStore(s cas.Store) OrchestratorOption {
	return func(o *Orchestrator) { o.store = s }
}

func SetParams(params map[string]interface{}) OrchestratorOption {
	return func(o *Orchestrator) { o.params = params }
}

func SetBenchmark(tool *benchmark.Tool) OrchestratorOption {
	return func(o *Orchestrator) { o.bench = tool }
}

func NewOrchestrator(
	agentID types.AgentID,
	seq *consensus.RoundSequence,
	registry *Registry,
	broadcaster ordering.Broadcaster,
	options ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		agentID:     agentID,
		seq:         seq,
		registry:    registry,
		broadcaster: broadcaster,
		activities:  activity.NewRegistry(),
		store:       cas.NewMemStore(),
		localState:  cmap.NewCMap(),
		params:      map[string]interface{}{},
		bench:       benchmark.NewTool(),
		clock:       NewRoundClock(),
		changes:     newNotifier(),
		done:        make(chan struct{}),
		metric:      newOrchestratorMetric(),
	}
	o.BaseService = *service.NewBaseService(nil, "ORCHESTRATOR", o)

	for _, option := range options {
		option(o)
	}
	return o
}

func (o *Orchestrator) SetLogger(logger log.Logger) {
	o.Logger = logger
	o.clock.SetLogger(logger)
}

func (o *Orchestrator) listenerID() string {
	return "orchestrator/" + o.agentID.String()
}

func (o *Orchestrator) OnStart() error {
	if err := o.registry.Validate(o.seq.App()); err != nil {
		return err
	}
	if !o.seq.Agents().Has(o.agentID) {
		return errors.Wrapf(types.ErrUnknownSender, "%v", o.agentID)
	}
	if err := o.seq.AddListener(o.listenerID(), func(events.EventData) { o.changes.Notify() }); err != nil {
		return err
	}
	if err := o.clock.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.mtx.Lock()
	o.cancel = cancel
	o.mtx.Unlock()

	go o.timeoutRoutine(ctx)
	go o.runRoutine(ctx)
	o.Logger.Info("orchestrator started", "agent", o.agentID)
	return nil
}

func (o *Orchestrator) OnStop() {
	o.mtx.Lock()
	cancel := o.cancel
	o.mtx.Unlock()
	if cancel != nil {
		cancel()
	}
	<-o.done

	o.seq.RemoveListener(o.listenerID())
	if err := o.clock.Stop(); err != nil {
		o.Logger.Error("failed trying to stop round clock", "error", err)
	}
	o.Logger.Info("orchestrator stopped", "agent", o.agentID)
}

// Done is closed once the agent halted on a final round, aborted, or stopped.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Err returns the cause of an aborted run.
func (o *Orchestrator) Err() error {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.err
}

func (o *Orchestrator) Metric() metric.MetricItem { return o.metric }

func (o *Orchestrator) Benchmark() *benchmark.Tool { return o.bench }

func (o *Orchestrator) abort(err error) {
	o.mtx.Lock()
	o.err = err
	o.mtx.Unlock()
	o.metric.MarkAborted(err)
	o.Logger.Error("agent run aborted", "agent", o.agentID, "err", err)
}

// runRoutine runs one behaviour per entered round until the replica halts.
func (o *Orchestrator) runRoutine(ctx context.Context) {
	defer close(o.done)

	last := types.RoundIDZero
	for {
		changed := o.changes.Wait()

		if err := o.seq.Err(); err != nil {
			o.abort(errors.Wrap(err, "replica failed"))
			return
		}
		st := o.seq.RoundState()
		if st.Halted {
			o.metric.MarkHalted()
			o.Logger.Info("run finished", "agent", o.agentID, "round", st.RoundID, "kind", st.Kind)
			return
		}

		if st.RoundID != last && st.Status == cstypes.RoundStatusCollecting {
			last = st.RoundID
			err := o.runRound(ctx, st)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				o.abort(err)
				return
			}
			continue
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return
		}
	}
}

// moved reports whether the replica left round id.
func (o *Orchestrator) moved(id types.RoundID) bool {
	_, resolved := o.seq.Resolution(id)
	return resolved || o.seq.Err() != nil
}

func (o *Orchestrator) runRound(ctx context.Context, st cstypes.RoundState) error {
	factory, ok := o.registry.Get(st.Kind)
	if !ok {
		return errors.Wrapf(ErrNoFactory, "%v", st.Kind)
	}

	roundCtx, cancelRound := context.WithCancel(ctx)
	defer cancelRound()
	go o.watchRound(roundCtx, cancelRound, st.RoundID)

	o.clock.Schedule(st.RoundID, o.seq.App().TimeoutFor(st.Kind))

	bctx := &Context{
		AgentID:    o.agentID,
		Round:      st,
		Data:       o.seq.Data(),
		Activities: o.activities,
		Store:      o.store,
		LocalState: o.localState,
		Params:     o.params,
		Logger:     o.Logger.With("round", st.RoundID, "kind", st.Kind),
		Benchmark:  o.bench,
	}
	b := factory(bctx)
	o.metric.MarkBehaviour(b.BehaviourID(), st.RoundID)
	o.Logger.Debug("behaviour started", "behaviour", b.BehaviourID(), "round", st.RoundID)

	measure := o.bench.Measure(b.BehaviourID())
	stopLocal := measure.Local()
	defer stopLocal()

	var (
		outcome   Outcome
		submitted bool
	)
	for {
		step, err := b.Next(roundCtx, outcome)
		if err != nil {
			if ctx.Err() != nil || o.moved(st.RoundID) {
				// the round resolved without us, follow the replica
				return nil
			}
			return o.reportError(ctx, st, b, err)
		}

		switch s := step.(type) {
		case CallActivity:
			res, err := o.activities.Call(roundCtx, s.Name, s.Request)
			outcome = Outcome{Result: res, Err: err}

		case PutObject:
			hash, err := o.store.Put(roundCtx, s.Object)
			outcome = Outcome{Result: hash, Err: err}

		case GetObject:
			var obj interface{}
			err := o.store.Get(roundCtx, s.Hash, &obj)
			outcome = Outcome{Result: obj, Err: err}

		case SubmitPayload:
			stopLocal()
			stopConsensus := measure.Consensus()
			res, err := o.submit(ctx, roundCtx, st.RoundID, s.Value)
			stopConsensus()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			submitted = true
			outcome = Outcome{Resolution: res}

		case Done:
			stopLocal()
			if !submitted {
				if _, err := o.waitRoundEnd(ctx, st.RoundID); err != nil && ctx.Err() == nil {
					return err
				}
			}
			o.metric.MarkBehaviourDone()
			o.Logger.Debug("behaviour done", "behaviour", b.BehaviourID(), "round", st.RoundID)
			return nil

		default:
			return errors.Errorf("unknown step %T", step)
		}
	}
}

// submit broadcasts the payload and waits for the resolution of round id.
// The wait is bound to ctx, not roundCtx: a resolved round cancels roundCtx
// but the resolution must still be read.
func (o *Orchestrator) submit(ctx, roundCtx context.Context, id types.RoundID, value interface{}) (*cstypes.Resolution, error) {
	tx := &types.PayloadTx{RoundID: id, Payload: types.NewPayload(o.agentID, value)}
	if err := o.broadcaster.Broadcast(roundCtx, tx); err != nil && !o.moved(id) {
		if errors.Is(err, ordering.ErrTxInLog) {
			o.Logger.Debug("payload already ordered", "round", id)
		} else {
			return nil, errors.Wrap(err, "broadcast payload")
		}
	}
	return o.waitRoundEnd(ctx, id)
}

func (o *Orchestrator) reportError(ctx context.Context, st cstypes.RoundState, b Behaviour, cause error) error {
	o.metric.MarkBehaviourError()
	if !o.seq.App().HasTransition(st.Kind, types.EventError) {
		return errors.Wrapf(cause, "behaviour %s", b.BehaviourID())
	}

	o.Logger.Info("behaviour failed, reporting error", "behaviour", b.BehaviourID(), "round", st.RoundID, "err", cause)
	tx := &types.ErrorTx{RoundID: st.RoundID, Sender: o.agentID, Reason: cause.Error()}
	if err := o.broadcaster.Broadcast(ctx, tx); err != nil && !errors.Is(err, ordering.ErrTxInLog) {
		return errors.Wrap(err, "broadcast error report")
	}
	_, err := o.waitRoundEnd(ctx, st.RoundID)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// waitRoundEnd blocks until the replica resolved round id.
func (o *Orchestrator) waitRoundEnd(ctx context.Context, id types.RoundID) (*cstypes.Resolution, error) {
	for {
		changed := o.changes.Wait()
		if res, ok := o.seq.Resolution(id); ok {
			return &res, nil
		}
		if err := o.seq.Err(); err != nil {
			return nil, errors.Wrap(err, "replica failed")
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// watchRound cancels the behaviour of round id once the replica moved on.
func (o *Orchestrator) watchRound(ctx context.Context, cancel context.CancelFunc, id types.RoundID) {
	for {
		changed := o.changes.Wait()
		if o.moved(id) {
			cancel()
			return
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return
		}
	}
}

// timeoutRoutine turns elapsed round timers into TimeoutTxs. Every agent
// broadcasts its own; the log keeps the first one.
func (o *Orchestrator) timeoutRoutine(ctx context.Context) {
	for {
		select {
		case ti := <-o.clock.Chan():
			if o.moved(ti.RoundID) {
				continue
			}
			tx := &types.TimeoutTx{RoundID: ti.RoundID, Event: ti.Event}
			err := o.broadcaster.Broadcast(ctx, tx)
			switch {
			case err == nil:
				o.Logger.Info("round timed out", "round", ti.RoundID, "event", ti.Event)
			case errors.Is(err, ordering.ErrTxInLog):
			default:
				o.Logger.Error("failed to broadcast timeout", "round", ti.RoundID, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
