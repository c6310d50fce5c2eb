package consensus

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"roundabci/state"
	"roundabci/types"
)

// RoundSpec declares how a round kind collects and resolves.
type RoundSpec struct {
	Kind       types.RoundKind
	Degenerate bool

	// CollectionKey receives the sender -> value map, SelectionKey the agreed value.
	CollectionKey string
	SelectionKey  string

	DoneEvent       types.Event
	NoMajorityEvent types.Event
}

// CollectSameUntilThreshold declares a round that resolves once threshold
// agents submitted the same value.
func CollectSameUntilThreshold(kind types.RoundKind, collectionKey, selectionKey string) RoundSpec {
	return RoundSpec{
		Kind:            kind,
		CollectionKey:   collectionKey,
		SelectionKey:    selectionKey,
		DoneEvent:       types.EventDone,
		NoMajorityEvent: types.EventNoMajority,
	}
}

// DegenerateRound declares a round without collection phase.
func DegenerateRound(kind types.RoundKind) RoundSpec {
	return RoundSpec{Kind: kind, Degenerate: true, DoneEvent: types.EventDone}
}

// TransitionFunction maps (round, event) to the next round.
type TransitionFunction map[types.RoundKind]map[types.Event]types.RoundKind

// App is the declarative round state machine. It is validated once by NewApp
// and never mutated afterwards.
type App struct {
	name string

	initialRound  types.RoundKind
	initialStates map[types.RoundKind]struct{}
	rounds        map[types.RoundKind]RoundSpec
	transitions   TransitionFunction
	finalStates   map[types.RoundKind]struct{}

	eventTimeouts            map[types.Event]time.Duration
	crossPeriodPersistedKeys []string
	dbPreConditions          map[types.RoundKind][]string
	dbPostConditions         map[types.RoundKind][]string
}

type AppOption func(*App)

// SetInitialStates declares the rounds the app may be started from.
// The initial round is always one of them.
func SetInitialStates(kinds ...types.RoundKind) AppOption {
	return func(app *App) {
		for _, k := range kinds {
			app.initialStates[k] = struct{}{}
		}
	}
}

func SetEventTimeouts(timeouts map[types.Event]time.Duration) AppOption {
	return func(app *App) {
		for ev, d := range timeouts {
			app.eventTimeouts[ev] = d
		}
	}
}

func SetCrossPeriodPersistedKeys(keys ...string) AppOption {
	return func(app *App) {
		app.crossPeriodPersistedKeys = append(app.crossPeriodPersistedKeys, keys...)
	}
}

// SetDBPreConditions declares keys that must be present when entering a round.
func SetDBPreConditions(conds map[types.RoundKind][]string) AppOption {
	return func(app *App) {
		for k, keys := range conds {
			app.dbPreConditions[k] = append(app.dbPreConditions[k], keys...)
		}
	}
}

// SetDBPostConditions declares keys that must be present when reaching a final round.
func SetDBPostConditions(conds map[types.RoundKind][]string) AppOption {
	return func(app *App) {
		for k, keys := range conds {
			app.dbPostConditions[k] = append(app.dbPostConditions[k], keys...)
		}
	}
}

// NewApp builds and validates an app.
func NewApp(
	name string,
	initialRound types.RoundKind,
	rounds []RoundSpec,
	transitions TransitionFunction,
	finalStates []types.RoundKind,
	options ...AppOption,
) (*App, error) {
	app := &App{
		name:             name,
		initialRound:     initialRound,
		initialStates:    map[types.RoundKind]struct{}{initialRound: {}},
		rounds:           make(map[types.RoundKind]RoundSpec, len(rounds)),
		transitions:      TransitionFunction{},
		finalStates:      make(map[types.RoundKind]struct{}, len(finalStates)),
		eventTimeouts:    make(map[types.Event]time.Duration),
		dbPreConditions:  make(map[types.RoundKind][]string),
		dbPostConditions: make(map[types.RoundKind][]string),
	}

	for _, spec := range rounds {
		if _, dup := app.rounds[spec.Kind]; dup {
			return nil, errors.Wrapf(types.ErrInvalidApp, "round %v declared twice", spec.Kind)
		}
		if spec.DoneEvent.IsEmpty() {
			spec.DoneEvent = types.EventDone
		}
		if !spec.Degenerate && spec.NoMajorityEvent.IsEmpty() {
			spec.NoMajorityEvent = types.EventNoMajority
		}
		app.rounds[spec.Kind] = spec
	}
	for from, edges := range transitions {
		cp := make(map[types.Event]types.RoundKind, len(edges))
		for ev, to := range edges {
			cp[ev] = to
		}
		app.transitions[from] = cp
	}
	for _, k := range finalStates {
		app.finalStates[k] = struct{}{}
	}
	for _, option := range options {
		option(app)
	}

	if err := app.ValidateBasic(); err != nil {
		return nil, err
	}
	return app, nil
}

// ValidateBasic checks the invariants of the transition table.
func (app *App) ValidateBasic() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.Wrapf(types.ErrInvalidApp, "%s: "+format, append([]interface{}{app.name}, args...)...)
	}

	if len(app.rounds) == 0 {
		return invalid("no rounds")
	}
	for k := range app.initialStates {
		if _, ok := app.rounds[k]; !ok {
			return invalid("initial state %v is not a round", k)
		}
	}

	for kind, spec := range app.rounds {
		_, final := app.finalStates[kind]
		edges := app.transitions[kind]

		if final {
			if !spec.Degenerate {
				return invalid("final state %v must be degenerate", kind)
			}
			if len(edges) > 0 {
				return invalid("final state %v has outgoing transitions", kind)
			}
			continue
		}

		if !spec.Degenerate && (spec.CollectionKey == "" || spec.SelectionKey == "") {
			return invalid("round %v needs collection and selection keys", kind)
		}
		// the done event is the only one every non-final round is sure to produce
		if _, ok := edges[spec.DoneEvent]; !ok {
			return invalid("round %v has no transition for its done event %v", kind, spec.DoneEvent)
		}
	}

	for from, edges := range app.transitions {
		if _, ok := app.rounds[from]; !ok {
			return invalid("transition from unknown round %v", from)
		}
		for ev, to := range edges {
			if ev.IsEmpty() {
				return invalid("round %v has a transition on the empty event", from)
			}
			if _, ok := app.rounds[to]; !ok {
				return invalid("transition %v --%v--> unknown round %v", from, ev, to)
			}
		}
	}

	for k := range app.finalStates {
		if _, ok := app.rounds[k]; !ok {
			return invalid("final state %v is not a round", k)
		}
	}
	if app.IsFinal(app.initialRound) {
		return invalid("initial round %v is final", app.initialRound)
	}

	if err := app.checkDegenerateCycles(); err != nil {
		return err
	}

	reserved := map[types.Event]struct{}{types.EventError: {}}
	for _, spec := range app.rounds {
		reserved[spec.DoneEvent] = struct{}{}
		if !spec.NoMajorityEvent.IsEmpty() {
			reserved[spec.NoMajorityEvent] = struct{}{}
		}
	}
	for ev, d := range app.eventTimeouts {
		if d <= 0 {
			return invalid("timeout of %v must be positive, got %v", ev, d)
		}
		// these events carry a resolution, a timer cannot produce one
		if _, ok := reserved[ev]; ok {
			return invalid("event %v resolves rounds and cannot be a timeout", ev)
		}
	}
	return nil
}

// checkDegenerateCycles rejects chains of pass-through rounds that loop
// without ever waiting for a submission.
func (app *App) checkDegenerateCycles() error {
	for kind, spec := range app.rounds {
		if !spec.Degenerate || app.IsFinal(kind) {
			continue
		}
		cur := kind
		for steps := 0; ; steps++ {
			if steps > len(app.rounds) {
				return errors.Wrapf(types.ErrInvalidApp, "%s: degenerate rounds loop through %v", app.name, kind)
			}
			s := app.rounds[cur]
			if !s.Degenerate || app.IsFinal(cur) {
				break
			}
			cur = app.transitions[cur][s.DoneEvent]
		}
	}
	return nil
}

func (app *App) Name() string { return app.name }

func (app *App) InitialRound() types.RoundKind { return app.initialRound }

func (app *App) IsInitial(kind types.RoundKind) bool {
	_, ok := app.initialStates[kind]
	return ok
}

func (app *App) IsFinal(kind types.RoundKind) bool {
	_, ok := app.finalStates[kind]
	return ok
}

// Round returns the declaration of kind.
func (app *App) Round(kind types.RoundKind) (RoundSpec, bool) {
	spec, ok := app.rounds[kind]
	return spec, ok
}

// Rounds returns every round kind in ascending order.
func (app *App) Rounds() []types.RoundKind {
	kinds := make([]types.RoundKind, 0, len(app.rounds))
	for k := range app.rounds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Advance resolves the next round. A missing entry is a configuration bug
// and is reported as NoTransitionError.
func (app *App) Advance(current types.RoundKind, event types.Event) (types.RoundKind, error) {
	next, ok := app.transitions[current][event]
	if !ok {
		return "", NoTransition(current, event)
	}
	return next, nil
}

// HasTransition reports whether (kind, event) is declared.
func (app *App) HasTransition(kind types.RoundKind, event types.Event) bool {
	_, ok := app.transitions[kind][event]
	return ok
}

// Events returns the events kind declares, in ascending order.
func (app *App) Events(kind types.RoundKind) []types.Event {
	evs := make([]types.Event, 0, len(app.transitions[kind]))
	for ev := range app.transitions[kind] {
		evs = append(evs, ev)
	}
	sort.Slice(evs, func(i, j int) bool { return evs[i] < evs[j] })
	return evs
}

// TimeoutFor returns the timed events kind declares a transition for.
func (app *App) TimeoutFor(kind types.RoundKind) map[types.Event]time.Duration {
	res := map[types.Event]time.Duration{}
	for ev := range app.transitions[kind] {
		if d, ok := app.eventTimeouts[ev]; ok {
			res[ev] = d
		}
	}
	return res
}

func (app *App) CrossPeriodPersistedKeys() []string {
	return append([]string{}, app.crossPeriodPersistedKeys...)
}

// CheckPreConditions verifies the keys kind needs on entry.
func (app *App) CheckPreConditions(kind types.RoundKind, data *state.SynchronizedData) error {
	return checkKeys(app.dbPreConditions[kind], kind, "pre", data)
}

// CheckPostConditions verifies the keys final round kind promises.
func (app *App) CheckPostConditions(kind types.RoundKind, data *state.SynchronizedData) error {
	return checkKeys(app.dbPostConditions[kind], kind, "post", data)
}

func checkKeys(keys []string, kind types.RoundKind, which string, data *state.SynchronizedData) error {
	for _, k := range keys {
		if !data.Has(k) {
			return errors.Wrapf(types.ErrMissingKey, "%s-condition of %v: %s", which, kind, k)
		}
	}
	return nil
}

// NoTransition builds the error returned for an absent (round, event) pair.
func NoTransition(kind types.RoundKind, event types.Event) error {
	return types.NoTransitionError{Round: kind, Event: event}
}

func (app *App) String() string {
	return fmt.Sprintf("App{%s initial=%v rounds=%d}", app.name, app.initialRound, len(app.rounds))
}
