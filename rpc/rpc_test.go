package rpc

import (
	"context"
	stdjson "encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/cmap"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"roundabci/consensus"
	"roundabci/libs/metric"
	"roundabci/ordering"
	"roundabci/types"
)

const (
	voteRound types.RoundKind = "VoteRound"
	doneRound types.RoundKind = "DoneRound"
)

type cleanupFunc func()

func setupEnv(t *testing.T) (*Environment, cleanupFunc) {
	app, err := consensus.NewApp(
		"vote",
		voteRound,
		[]consensus.RoundSpec{
			consensus.CollectSameUntilThreshold(voteRound, "votes", "vote"),
			consensus.DegenerateRound(doneRound),
		},
		consensus.TransitionFunction{voteRound: {
			types.EventDone:         doneRound,
			types.EventRoundTimeout: voteRound,
		}},
		[]types.RoundKind{doneRound},
	)
	require.NoError(t, err)

	agents := types.NewAgentSet([]types.AgentID{"agent_0", "agent_1", "agent_2", "agent_3"})
	e := &Environment{
		Agents:    agents,
		Replicas:  cmap.NewCMap(),
		Ordering:  ordering.NewLocalService(),
		MetricSet: metric.NewMetricSet(),
	}
	e.Ordering.SetLogger(log.TestingLogger())
	require.NoError(t, e.MetricSet.SetMetrics("ordering", e.Ordering.Metric()))

	for _, id := range agents.Agents {
		seq := consensus.NewRoundSequence(app, agents)
		seq.SetLogger(log.TestingLogger())
		require.NoError(t, e.Ordering.Subscribe(id.String(), seq))
		e.Replicas.Set(id.String(), seq)
	}
	require.NoError(t, e.Ordering.Start())
	SetEnvironment(e)

	return e, func() {
		_ = e.Ordering.Stop()
		SetEnvironment(nil)
	}
}

func TestRoundState(t *testing.T) {
	_, cleanup := setupEnv(t)
	defer cleanup()

	res, err := RoundState(&rpctypes.Context{}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RoundID)
	assert.Equal(t, string(voteRound), res.Kind)
	assert.Equal(t, 3, res.Threshold)
	assert.False(t, res.Halted)

	_, err = RoundState(&rpctypes.Context{}, "agent_9")
	assert.Error(t, err)
}

func TestResolutionsAndSyncData(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()

	// every replica gets the same log
	for i := 0; i < 3; i++ {
		tx := &types.PayloadTx{RoundID: 1, Payload: types.NewPayload(e.Agents.GetByIndex(i), "yes")}
		for _, id := range e.Agents.Agents {
			seq, err := e.replica(id.String())
			require.NoError(t, err)
			require.NoError(t, seq.DeliverTx(tx))
		}
	}

	res, err := Resolutions(&rpctypes.Context{}, "agent_1")
	require.NoError(t, err)
	require.Len(t, res.Resolutions, 1)
	assert.Equal(t, string(types.EventDone), res.Resolutions[0].Event)
	assert.Equal(t, `"yes"`, res.Resolutions[0].Selection)

	data, err := SyncData(&rpctypes.Context{}, "agent_1")
	require.NoError(t, err)
	assert.Equal(t, `"yes"`, data.Values["vote"])
	assert.NotEmpty(t, data.Hash)

	state, err := RoundState(&rpctypes.Context{}, "agent_1")
	require.NoError(t, err)
	assert.True(t, state.Halted)
}

func TestBroadcastTimeout(t *testing.T) {
	_, cleanup := setupEnv(t)
	defer cleanup()

	res, err := BroadcastTimeout(&rpctypes.Context{}, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Hash)

	_, err = BroadcastTimeout(&rpctypes.Context{}, 1)
	assert.ErrorIs(t, err, ordering.ErrTxInLog)

	_, err = BroadcastTimeout(&rpctypes.Context{}, 0)
	assert.Error(t, err)

	info, err := OrderingInfo(&rpctypes.Context{})
	require.NoError(t, err)
	assert.Equal(t, 1, info.Size)
}

func TestJSONMetrics(t *testing.T) {
	_, cleanup := setupEnv(t)
	defer cleanup()

	res, err := JSONMetrics(&rpctypes.Context{}, "")
	require.NoError(t, err)
	assert.Contains(t, res.Metrics, "ordering")

	res, err = JSONMetrics(&rpctypes.Context{}, "missing")
	require.NoError(t, err)
	assert.Empty(t, res.Metrics)
}

func TestStartServer(t *testing.T) {
	_, cleanup := setupEnv(t)
	defer cleanup()

	listener, err := StartServer("tcp://127.0.0.1:0", log.TestingLogger())
	require.NoError(t, err)
	defer listener.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet,
		fmt.Sprintf("http://%s/round_state?agent=%%22agent_0%%22", listener.Addr()), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rpcResp rpctypes.RPCResponse
	require.NoError(t, stdjson.Unmarshal(body, &rpcResp))
	require.Nil(t, rpcResp.Error)
	var state ResultRoundState
	require.NoError(t, tmjson.Unmarshal(rpcResp.Result, &state))
	assert.Equal(t, "agent_0", state.Agent)
	assert.Equal(t, voteRound.String(), state.Kind)
	assert.EqualValues(t, 1, state.RoundID)
}
