package ordering

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"roundabci/types"
)

type cleanupFunc func()

// ----- utility func -----

type recorder struct {
	mtx sync.Mutex
	txs []types.Tx
}

func (r *recorder) DeliverTx(tx types.Tx) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.txs = append(r.txs, tx)
	return nil
}

func (r *recorder) Txs() []types.Tx {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]types.Tx{}, r.txs...)
}

func newLocalService(t *testing.T, options ...LocalServiceOption) (*LocalService, cleanupFunc) {
	ls := NewLocalService(options...)
	ls.SetLogger(log.TestingLogger())
	require.NoError(t, ls.Start())
	return ls, func() { _ = ls.Stop() }
}

func makeTxs(count int, round types.RoundID) []types.Tx {
	txs := make([]types.Tx, count)
	for i := range txs {
		txs[i] = &types.PayloadTx{
			RoundID: round,
			Payload: types.NewPayload(types.AgentID(fmt.Sprintf("agent_%d", i%4)), fmt.Sprintf("value_%d", i)),
		}
	}
	return txs
}

func broadcastTxs(t *testing.T, ls Service, txs []types.Tx) {
	for i, tx := range txs {
		if err := ls.Broadcast(context.Background(), tx); err != nil {
			t.Fatalf("broadcast failed: %v while broadcasting #%d tx", err, i)
		}
	}
}

func waitDelivered(t *testing.T, ls *LocalService, n int64) {
	require.Eventually(t, func() bool { return ls.Delivered() >= n }, 5*time.Second, 5*time.Millisecond)
}

// ----- tests -----

func TestLocalService_SameOrderForEverySubscriber(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	r1, r2 := &recorder{}, &recorder{}
	ls := NewLocalService()
	ls.SetLogger(log.TestingLogger())
	require.NoError(t, ls.Subscribe("agent_0", r1))
	require.NoError(t, ls.Subscribe("agent_1", r2))
	require.NoError(t, ls.Start())
	defer ls.Stop() // nolint:errcheck

	txs := makeTxs(20, 1)
	var wg sync.WaitGroup
	for _, half := range [][]types.Tx{txs[:10], txs[10:]} {
		wg.Add(1)
		go func(part []types.Tx) {
			defer wg.Done()
			for _, tx := range part {
				assert.NoError(t, ls.Broadcast(context.Background(), tx))
			}
		}(half)
	}
	wg.Wait()
	waitDelivered(t, ls, 20)

	assert.Len(t, r1.Txs(), 20)
	assert.Equal(t, r1.Txs(), r2.Txs())
	assert.Equal(t, ls.Txs(), r1.Txs())
}

func TestLocalService_Dedup(t *testing.T) {
	ls, cleanup := newLocalService(t)
	defer cleanup()

	tx := &types.TimeoutTx{RoundID: 1, Event: types.EventRoundTimeout}
	require.NoError(t, ls.Broadcast(context.Background(), tx))
	err := ls.Broadcast(context.Background(), &types.TimeoutTx{RoundID: 1, Event: types.EventRoundTimeout})
	assert.Equal(t, ErrTxInLog, err)
	assert.Equal(t, 1, ls.Size())

	require.NoError(t, ls.Broadcast(context.Background(), &types.TimeoutTx{RoundID: 2, Event: types.EventRoundTimeout}))
	assert.Equal(t, 2, ls.Size())
}

func TestLocalService_Subscribe(t *testing.T) {
	rec := &recorder{}
	ls, cleanup := newLocalService(t)
	defer cleanup()

	require.NoError(t, ls.Subscribe("agent_0", rec))
	assert.Equal(t, ErrSubscriberExists, ls.Subscribe("agent_0", rec))

	ls.Unsubscribe("agent_0")
	assert.NoError(t, ls.Subscribe("agent_0", rec))
}

func TestLocalService_FlushDelivered(t *testing.T) {
	ls, cleanup := newLocalService(t)
	defer cleanup()
	rec := &recorder{}
	require.NoError(t, ls.Subscribe("agent_0", rec))

	txs := makeTxs(5, 1)
	broadcastTxs(t, ls, txs)
	waitDelivered(t, ls, 5)
	assert.Equal(t, 5, ls.Size())
	assert.True(t, ls.TxsBytes() > 0)

	ls.Flush()
	assert.Equal(t, 0, ls.Size())
	assert.Equal(t, int64(0), ls.TxsBytes())

	// flushed txs can be ordered again and the routine keeps delivering
	broadcastTxs(t, ls, txs[:1])
	waitDelivered(t, ls, 6)
	assert.Len(t, rec.Txs(), 6)
}

func TestLocalService_PreCheck(t *testing.T) {
	agents := types.NewAgentSet([]types.AgentID{"agent_0", "agent_1"})
	testCases := []struct {
		name  string
		check PreCheckFunc
		tx    types.Tx
	}{
		{
			name:  "unknown sender",
			check: PreCheckSenders(agents),
			tx:    &types.PayloadTx{RoundID: 1, Payload: types.NewPayload("agent_9", "A")},
		},
		{
			name:  "unknown error reporter",
			check: PreCheckSenders(agents),
			tx:    &types.ErrorTx{RoundID: 1, Sender: "agent_9", Reason: "boom"},
		},
		{
			name:  "too large",
			check: PreCheckMaxBytes(16),
			tx:    &types.PayloadTx{RoundID: 1, Payload: types.NewPayload("agent_0", "a value that does not fit")},
		},
		{
			name:  "combined",
			check: PreCheckAll(PreCheckMaxBytes(1024), PreCheckSenders(agents)),
			tx:    &types.PayloadTx{RoundID: 1, Payload: types.NewPayload("agent_9", "A")},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ls, cleanup := newLocalService(t, SetPreCheck(tc.check))
			defer cleanup()

			err := ls.Broadcast(context.Background(), tc.tx)
			require.Error(t, err)
			assert.True(t, IsPreCheckError(err))
			assert.Equal(t, 0, ls.Size())
		})
	}

	ls, cleanup := newLocalService(t, SetPreCheck(PreCheckSenders(agents)))
	defer cleanup()
	assert.NoError(t, ls.Broadcast(context.Background(), &types.TimeoutTx{RoundID: 1, Event: types.EventRoundTimeout}))
}

func TestLocalService_TooLarge(t *testing.T) {
	err := PreCheckMaxBytes(16)(&types.PayloadTx{RoundID: 1, Payload: types.NewPayload("agent_0", "a value that does not fit")})
	var tooLarge ErrTxTooLarge
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(16), tooLarge.Max)
}

func TestLocalService_CancelledContext(t *testing.T) {
	ls, cleanup := newLocalService(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, ls.Broadcast(ctx, makeTxs(1, 1)[0]))
	assert.Equal(t, 0, ls.Size())
}

func TestLocalService_Metric(t *testing.T) {
	ls, cleanup := newLocalService(t)
	defer cleanup()
	require.NoError(t, ls.Subscribe("agent_0", &recorder{}))

	broadcastTxs(t, ls, makeTxs(3, 1))
	waitDelivered(t, ls, 3)

	assert.Contains(t, ls.Metric().JSONString(), `"delivered":3`)
	assert.Contains(t, ls.Metric().JSONString(), `"subscribers":1`)
}
