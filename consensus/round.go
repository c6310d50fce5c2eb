package consensus

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	cstypes "roundabci/consensus/types"
	"roundabci/types"
)

// Round is one instance of a round kind. It collects payloads, one per agent,
// and resolves at most once. After resolution the collection is frozen.
type Round struct {
	id        types.RoundID
	spec      RoundSpec
	agents    *types.AgentSet
	threshold int

	collection *cstypes.Collection

	errorOrder   []types.AgentID
	errorReasons map[types.AgentID]string

	event     *types.Event
	writes    map[string]interface{}
	selection interface{}

	logger log.Logger
}

func NewRound(id types.RoundID, spec RoundSpec, agents *types.AgentSet, threshold int) *Round {
	return &Round{
		id:           id,
		spec:         spec,
		agents:       agents,
		threshold:    threshold,
		collection:   cstypes.NewCollection(),
		errorReasons: make(map[types.AgentID]string),
		logger:       log.NewNopLogger(),
	}
}

func (r *Round) SetLogger(logger log.Logger) {
	r.logger = logger
}

// Submit records payload and evaluates the collection. It returns the event
// when this submission resolved the round.
func (r *Round) Submit(payload types.Payload) (*types.Event, error) {
	if r.spec.Degenerate {
		return nil, types.ErrDegenerateRound
	}
	if !r.agents.Has(payload.Sender) {
		return nil, errors.Wrapf(types.ErrUnknownSender, "%v in round %v", payload.Sender, r.spec.Kind)
	}
	if err := payload.ValidateBasic(); err != nil {
		return nil, err
	}

	if r.Resolved() {
		r.collection.Record(payload)
		r.logger.Debug("late payload recorded", "round", r.id, "sender", payload.Sender)
		return nil, nil
	}

	if replaced := r.collection.Upsert(payload); replaced {
		r.logger.Debug("payload replaced", "round", r.id, "sender", payload.Sender)
	}
	return r.evaluate()
}

// ReportError counts the failure of sender's behaviour for this round.
func (r *Round) ReportError(sender types.AgentID, reason string) (*types.Event, error) {
	if !r.agents.Has(sender) {
		return nil, errors.Wrapf(types.ErrUnknownSender, "%v in round %v", sender, r.spec.Kind)
	}
	if r.Resolved() {
		return nil, nil
	}
	if _, ok := r.errorReasons[sender]; !ok {
		r.errorOrder = append(r.errorOrder, sender)
	}
	r.errorReasons[sender] = reason

	if len(r.errorOrder) >= r.threshold {
		return r.resolve(types.EventError, nil, nil), nil
	}
	if r.spec.Degenerate {
		return nil, nil
	}
	return r.evaluate()
}

// Timeout resolves the round with event unless it already resolved.
func (r *Round) Timeout(event types.Event) *types.Event {
	if r.Resolved() {
		return nil
	}
	return r.resolve(event, nil, nil)
}

// Finish resolves a degenerate round with its done event.
func (r *Round) Finish() *types.Event {
	if r.Resolved() {
		return nil
	}
	return r.resolve(r.spec.DoneEvent, nil, nil)
}

func (r *Round) evaluate() (*types.Event, error) {
	key, value, count, err := largestGroup(r.collection.Payloads())
	if err != nil {
		return nil, err
	}

	if count >= r.threshold {
		collected := make(map[string]interface{}, r.collection.Size())
		for sender, v := range r.collection.Values() {
			collected[string(sender)] = v
		}
		writes := map[string]interface{}{
			r.spec.CollectionKey: collected,
			r.spec.SelectionKey:  value,
		}
		r.logger.Debug("round reached threshold", "round", r.id, "selection", key, "votes", count)
		return r.resolve(r.spec.DoneEvent, writes, value), nil
	}

	if r.participants() == r.agents.Size() {
		return r.resolve(r.spec.NoMajorityEvent, nil, nil), nil
	}
	return nil, nil
}

// participants counts the agents that either submitted or reported an error.
func (r *Round) participants() int {
	n := r.collection.Size()
	for _, sender := range r.errorOrder {
		if !r.collection.Has(sender) {
			n++
		}
	}
	return n
}

func (r *Round) resolve(event types.Event, writes map[string]interface{}, selection interface{}) *types.Event {
	r.event = &event
	r.writes = writes
	r.selection = selection
	return r.event
}

// largestGroup groups payloads by canonical value. Ties go to the smallest key.
func largestGroup(payloads []types.Payload) (key string, value interface{}, count int, err error) {
	counts := map[string]int{}
	values := map[string]interface{}{}
	for _, p := range payloads {
		k, err := p.Key()
		if err != nil {
			return "", nil, 0, err
		}
		if _, ok := values[k]; !ok {
			values[k] = p.Value
		}
		counts[k]++
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[k] > count {
			key, value, count = k, values[k], counts[k]
		}
	}
	return key, value, count, nil
}

func (r *Round) ID() types.RoundID { return r.id }

func (r *Round) Kind() types.RoundKind { return r.spec.Kind }

func (r *Round) Spec() RoundSpec { return r.spec }

func (r *Round) Threshold() int { return r.threshold }

func (r *Round) Resolved() bool { return r.event != nil }

// Event returns the resolution event, nil while collecting.
func (r *Round) Event() *types.Event { return r.event }

// Writes returns the keys the resolution commits to the synchronized data.
func (r *Round) Writes() map[string]interface{} { return r.writes }

func (r *Round) Selection() interface{} { return r.selection }

func (r *Round) Collection() *cstypes.Collection { return r.collection }

// ErrorReports returns the reporting agents in arrival order.
func (r *Round) ErrorReports() []types.AgentID {
	return append([]types.AgentID{}, r.errorOrder...)
}

func (r *Round) Status() cstypes.RoundStatus {
	switch {
	case r.Resolved():
		return cstypes.RoundStatusResolved
	case r.spec.Degenerate:
		return cstypes.RoundStatusDegenerate
	default:
		return cstypes.RoundStatusCollecting
	}
}

func (r *Round) String() string {
	return fmt.Sprintf("Round{#%d %v %v %d/%d}", r.id, r.spec.Kind, r.Status(), r.collection.Size(), r.threshold)
}
