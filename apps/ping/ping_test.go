package ping

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"roundabci/activity"
	"roundabci/cas"
	"roundabci/config"
	"roundabci/node"
	"roundabci/types"
)

const moonMessage = "(V3) To the Moon!"

type cleanupFunc func()

func newPingServer(reply func(call int64) string) (*httptest.Server, cleanupFunc) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"gecko_says": %q}`, reply(n))
	}))
	return srv, srv.Close
}

func testConfig(url string) *config.Config {
	cfg := config.TestConfig()
	spec := CoingeckoPingSpec()
	spec.URL = url
	spec.Timeout = time.Second
	cfg.Activities = map[string]activity.APISpec{PingActivity: spec}
	return cfg
}

func runNode(t *testing.T, cfg *config.Config) *node.Node {
	app, err := NewApp(cfg.RoundTimeout)
	require.NoError(t, err)

	n, err := node.NewNode(cfg, app, NewRegistry(), log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, n.Wait(ctx))
	return n
}

func TestNewApp(t *testing.T) {
	app, err := NewApp(0)
	require.NoError(t, err)
	assert.Equal(t, PingRound, app.InitialRound())
	assert.True(t, app.IsFinal(FinishedPingRound))
	assert.Empty(t, app.TimeoutFor(PingRound))

	next, err := app.Advance(PingRound, types.EventDone)
	require.NoError(t, err)
	assert.Equal(t, FinishedPingRound, next)

	app, err = NewApp(time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, app.TimeoutFor(PingRound)[types.EventRoundTimeout])

	assert.NoError(t, NewRegistry().Validate(app))
	assert.NoError(t, CoingeckoPingSpec().ValidateBasic())
}

func TestPingApp(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	srv, cleanup := newPingServer(func(int64) string { return moonMessage })
	defer cleanup()

	n := runNode(t, testConfig(srv.URL+"/api/v3/ping"))
	defer n.Stop() // nolint:errcheck

	hash := n.Replicas()[0].Sequence.Data().Hash()
	for _, r := range n.Replicas() {
		seq := r.Sequence
		assert.True(t, seq.Halted(), "agent %v", r.ID)
		assert.Equal(t, FinishedPingRound, seq.RoundState().Kind)

		msg, ok := seq.Data().GetString(PingMessageKey)
		require.True(t, ok)
		assert.Equal(t, moonMessage, msg)

		participants, err := seq.Data().Collection(ParticipantToPingRoundKey)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(participants), 3)
		assert.Equal(t, hash, seq.Data().Hash())

		// the message went through the agent's own store
		h, _, err := cas.Hash(map[string]interface{}{PingMessageKey: moonMessage})
		require.NoError(t, err)
		has, err := r.Store.Has(h)
		require.NoError(t, err)
		assert.True(t, has)
	}

	labels := n.MetricSet().Labels()
	assert.Contains(t, labels, "ordering")
	assert.Contains(t, labels, "consensus/agent_0")
	assert.Contains(t, labels, "benchmark/agent_3")
}

func TestPingApp_NoMajorityRetry(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	// every agent gets a different reply in the first round
	srv, cleanup := newPingServer(func(call int64) string {
		if call <= 4 {
			return fmt.Sprintf("reply %d", call)
		}
		return moonMessage
	})
	defer cleanup()

	n := runNode(t, testConfig(srv.URL))
	defer n.Stop() // nolint:errcheck

	for _, r := range n.Replicas() {
		var events []types.Event
		for _, res := range r.Sequence.Resolutions() {
			events = append(events, res.Event)
		}
		assert.Equal(t, []types.Event{types.EventNoMajority, types.EventDone}, events)
		msg, _ := r.Sequence.Data().GetString(PingMessageKey)
		assert.Equal(t, moonMessage, msg)
	}
}

func TestPingApp_ActivityFailure(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	app, err := NewApp(0)
	require.NoError(t, err)
	n, err := node.NewNode(cfg, app, NewRegistry(), log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start())
	defer n.Stop() // nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = n.Wait(ctx)
	require.Error(t, err)
	var activityErr *types.ActivityError
	assert.ErrorAs(t, err, &activityErr)
	assert.ErrorIs(t, err, activity.ErrUnexpectedStatus)
}
