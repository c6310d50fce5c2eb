package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cstypes "roundabci/consensus/types"
	"roundabci/types"
)

func newPingRound(n, threshold int) (*Round, *types.AgentSet) {
	agents := makeAgents(n)
	spec := CollectSameUntilThreshold(pingRound, participantsKey, messageKey)
	return NewRound(types.RoundID(1), spec, agents, threshold), agents
}

func submitAll(t *testing.T, r *Round, agents *types.AgentSet, values []interface{}) []*types.Event {
	events := make([]*types.Event, 0, len(values))
	for i, v := range values {
		ev, err := r.Submit(types.NewPayload(agents.GetByIndex(i), v))
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func TestRound_ReachThreshold(t *testing.T) {
	r, agents := newPingRound(4, 3)

	events := submitAll(t, r, agents, []interface{}{"A", "A", "A", "B"})
	assert.Nil(t, events[0])
	assert.Nil(t, events[1])
	require.NotNil(t, events[2], "third equal value should resolve the round")
	assert.Equal(t, types.EventDone, *events[2])
	assert.Nil(t, events[3], "late payload must not resolve again")

	assert.Equal(t, cstypes.RoundStatusResolved, r.Status())
	assert.Equal(t, "A", r.Selection())

	writes := r.Writes()
	require.Contains(t, writes, participantsKey)
	require.Contains(t, writes, messageKey)
	assert.Equal(t, "A", writes[messageKey])
	collected := writes[participantsKey].(map[string]interface{})
	assert.Len(t, collected, 3, "collection is the snapshot at the resolving moment")
	assert.NotContains(t, collected, string(agents.GetByIndex(3)))

	audit := r.Collection().Audit()
	require.Len(t, audit, 4)
	assert.True(t, audit[3].Frozen)
	assert.Equal(t, 3, r.Collection().Size())
}

func TestRound_NoMajority(t *testing.T) {
	r, agents := newPingRound(4, 3)

	events := submitAll(t, r, agents, []interface{}{"A", "B", "C", "D"})
	for _, ev := range events[:3] {
		assert.Nil(t, ev)
	}
	require.NotNil(t, events[3])
	assert.Equal(t, types.EventNoMajority, *events[3])
	assert.Empty(t, r.Writes())
	assert.Nil(t, r.Selection())
}

func TestRound_UnknownSender(t *testing.T) {
	r, _ := newPingRound(4, 3)

	ev, err := r.Submit(types.NewPayload("stranger", "A"))
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, types.ErrUnknownSender)
	assert.Equal(t, 0, r.Collection().Size())
	assert.Empty(t, r.Collection().Audit())

	ev, err = r.ReportError("stranger", "boom")
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, types.ErrUnknownSender)
}

func TestRound_ResubmitReplaces(t *testing.T) {
	r, agents := newPingRound(4, 3)
	a0, a1, a2 := agents.GetByIndex(0), agents.GetByIndex(1), agents.GetByIndex(2)

	_, err := r.Submit(types.NewPayload(a0, "B"))
	require.NoError(t, err)
	_, err = r.Submit(types.NewPayload(a1, "A"))
	require.NoError(t, err)
	ev, err := r.Submit(types.NewPayload(a0, "A"))
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, 2, r.Collection().Size())

	p, ok := r.Collection().Get(a0)
	require.True(t, ok)
	assert.Equal(t, "A", p.Value)
	assert.Equal(t, a0, r.Collection().Payloads()[0].Sender, "first insertion position is kept")

	ev, err = r.Submit(types.NewPayload(a2, "A"))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, types.EventDone, *ev)
}

func TestRound_CanonicalGrouping(t *testing.T) {
	r, agents := newPingRound(3, 3)

	events := submitAll(t, r, agents, []interface{}{
		map[string]interface{}{"a": 1, "b": []interface{}{"x"}},
		map[string]interface{}{"b": []interface{}{"x"}, "a": 1},
		map[string]interface{}{"a": 1, "b": []interface{}{"x"}},
	})
	require.NotNil(t, events[2])
	assert.Equal(t, types.EventDone, *events[2])
}

func TestRound_Deterministic(t *testing.T) {
	orders := [][]interface{}{
		{"A", "A", "A", "B"},
		{"B", "A", "A", "A"},
		{"A", "B", "A", "A"},
	}
	for _, values := range orders {
		r, agents := newPingRound(4, 3)
		submitAll(t, r, agents, values)
		require.True(t, r.Resolved())
		assert.Equal(t, types.EventDone, *r.Event())
		assert.Equal(t, "A", r.Selection())
	}
}

func TestLargestGroup_TieBreak(t *testing.T) {
	payloads := []types.Payload{
		types.NewPayload("agent_0", "B"),
		types.NewPayload("agent_1", "A"),
		types.NewPayload("agent_2", "B"),
		types.NewPayload("agent_3", "A"),
	}
	key, value, count, err := largestGroup(payloads)
	require.NoError(t, err)
	assert.Equal(t, `"A"`, key)
	assert.Equal(t, "A", value)
	assert.Equal(t, 2, count)
}

func TestRound_ErrorReports(t *testing.T) {
	r, agents := newPingRound(4, 3)

	for i := 0; i < 2; i++ {
		ev, err := r.ReportError(agents.GetByIndex(i), "activity failed")
		require.NoError(t, err)
		assert.Nil(t, ev)
	}
	ev, err := r.ReportError(agents.GetByIndex(2), "activity failed")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, types.EventError, *ev)
	assert.Len(t, r.ErrorReports(), 3)
	assert.Empty(t, r.Writes())
}

func TestRound_ErrorsCountAsParticipation(t *testing.T) {
	r, agents := newPingRound(4, 3)

	_, err := r.ReportError(agents.GetByIndex(0), "boom")
	require.NoError(t, err)
	_, err = r.Submit(types.NewPayload(agents.GetByIndex(1), "A"))
	require.NoError(t, err)
	_, err = r.Submit(types.NewPayload(agents.GetByIndex(2), "B"))
	require.NoError(t, err)
	ev, err := r.Submit(types.NewPayload(agents.GetByIndex(3), "A"))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, types.EventNoMajority, *ev)
}

func TestRound_Timeout(t *testing.T) {
	r, agents := newPingRound(4, 3)

	submitAll(t, r, agents, []interface{}{"A"})
	ev := r.Timeout(types.EventRoundTimeout)
	require.NotNil(t, ev)
	assert.Equal(t, types.EventRoundTimeout, *ev)
	assert.Nil(t, r.Timeout(types.EventRoundTimeout), "a resolved round ignores further timeouts")

	ev, err := r.Submit(types.NewPayload(agents.GetByIndex(1), "A"))
	assert.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, 1, r.Collection().Size())
}

func TestRound_Degenerate(t *testing.T) {
	agents := makeAgents(4)
	r := NewRound(types.RoundID(1), DegenerateRound(finishedRound), agents, 3)
	assert.Equal(t, cstypes.RoundStatusDegenerate, r.Status())

	_, err := r.Submit(types.NewPayload(agents.GetByIndex(0), "A"))
	assert.ErrorIs(t, err, types.ErrDegenerateRound)

	ev := r.Finish()
	require.NotNil(t, ev)
	assert.Equal(t, types.EventDone, *ev)
	assert.Nil(t, r.Finish())
}

func TestRound_ThresholdOne(t *testing.T) {
	r, agents := newPingRound(4, 1)

	events := submitAll(t, r, agents, []interface{}{"A", "B"})
	require.NotNil(t, events[0], "first submission reaches a threshold of one")
	assert.Equal(t, types.EventDone, *events[0])
	assert.Nil(t, events[1])
	assert.Equal(t, "A", r.Selection())
}
