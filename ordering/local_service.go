package ordering

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	"roundabci/libs/metric"
	"roundabci/types"
)

// LocalService is an in-process sequencer. Broadcast appends to a single
// list; one routine walks the list and hands every tx to every subscriber,
// so all subscribers observe the same total order.
type LocalService struct {
	service.BaseService

	// Atomic integers
	txsBytes  int64 // total size of the log, in bytes
	delivered int64 // number of txs handed to subscribers

	mtx    sync.Mutex // serializes dedup check and append
	txs    *clist.CList
	txsMap sync.Map // tx hash -> *clist.CElement
	seq    int64

	preCheck PreCheckFunc

	subMtx      sync.RWMutex
	subscribers map[string]Deliverer

	metric *orderingMetric
}

type LocalServiceOption func(*LocalService)

func SetPreCheck(precheck PreCheckFunc) LocalServiceOption {
	return func(ls *LocalService) {
		ls.preCheck = precheck
	}
}

func NewLocalService(options ...LocalServiceOption) *LocalService {
	ls := &LocalService{
		txs:         clist.New(),
		subscribers: make(map[string]Deliverer),
		metric:      newOrderingMetric(),
	}
	ls.BaseService = *service.NewBaseService(nil, "ORDERING", ls)

	for _, option := range options {
		option(ls)
	}
	return ls
}

func (ls *LocalService) SetLogger(logger log.Logger) {
	ls.Logger = logger
}

func (ls *LocalService) OnStart() error {
	go ls.deliverRoutine()
	ls.Logger.Info("ordering deliver routine started.")
	return nil
}

func (ls *LocalService) Subscribe(subscriberID string, d Deliverer) error {
	ls.subMtx.Lock()
	defer ls.subMtx.Unlock()
	if _, ok := ls.subscribers[subscriberID]; ok {
		return ErrSubscriberExists
	}
	ls.subscribers[subscriberID] = d
	ls.metric.MarkSubscribers(len(ls.subscribers))
	return nil
}

func (ls *LocalService) Unsubscribe(subscriberID string) {
	ls.subMtx.Lock()
	delete(ls.subscribers, subscriberID)
	ls.metric.MarkSubscribers(len(ls.subscribers))
	ls.subMtx.Unlock()
}

func (ls *LocalService) Broadcast(ctx context.Context, tx types.Tx) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.ValidateBasic(); err != nil {
		return err
	}
	if ls.preCheck != nil {
		if err := ls.preCheck(tx); err != nil {
			return ErrPreCheck{err}
		}
	}

	key := TxKey(tx)

	ls.mtx.Lock()
	defer ls.mtx.Unlock()

	if _, ok := ls.txsMap.Load(key); ok {
		return ErrTxInLog
	}
	ls.seq++
	logTx := &logTx{seq: ls.seq, tx: tx, size: types.ComputeSize(tx)}
	ls.addTx(key, logTx)

	ls.Logger.Debug("ordered tx", "seq", logTx.seq, "tx", tx)
	return nil
}

// addTx pushes tx to the back of the log and updates the lookup table.
func (ls *LocalService) addTx(key string, logTx *logTx) {
	e := ls.txs.PushBack(logTx)
	ls.txsMap.Store(key, e)
	atomic.AddInt64(&ls.txsBytes, logTx.size)
	ls.metric.MarkTxs(ls.txs.Len(), atomic.LoadInt64(&ls.txsBytes))
}

func (ls *LocalService) Size() int {
	return ls.txs.Len()
}

func (ls *LocalService) TxsBytes() int64 {
	return atomic.LoadInt64(&ls.txsBytes)
}

// Delivered returns how many txs were handed to the subscribers so far.
func (ls *LocalService) Delivered() int64 {
	return atomic.LoadInt64(&ls.delivered)
}

// Flush removes the delivered prefix of the log, together with its dedup
// entries. Txs not yet delivered stay.
func (ls *LocalService) Flush() {
	ls.mtx.Lock()
	defer ls.mtx.Unlock()

	for e := ls.txs.Front(); e != nil; {
		logTx := e.Value.(*logTx)
		if !logTx.isDelivered() {
			break
		}
		next := e.Next()
		ls.txs.Remove(e)
		ls.txsMap.Delete(TxKey(logTx.tx))
		atomic.AddInt64(&ls.txsBytes, -logTx.size)
		e = next
	}
	ls.metric.MarkTxs(ls.txs.Len(), atomic.LoadInt64(&ls.txsBytes))
}

// Txs returns the txs currently kept in the log, in order.
func (ls *LocalService) Txs() []types.Tx {
	res := make([]types.Tx, 0, ls.txs.Len())
	for e := ls.txs.Front(); e != nil; e = e.Next() {
		res = append(res, e.Value.(*logTx).tx)
	}
	return res
}

func (ls *LocalService) Metric() metric.MetricItem {
	return ls.metric
}

func (ls *LocalService) deliverRoutine() {
	var next *clist.CElement

	for {
		if !ls.IsRunning() {
			return
		}

		if next == nil {
			select {
			case <-ls.txs.WaitChan():
				if next = ls.txs.Front(); next == nil {
					continue
				}
				// front may be a flushed remnant if the log was emptied concurrently
				if next.Value.(*logTx).isDelivered() {
					next = ls.skipDelivered(next)
					if next == nil {
						continue
					}
				}
			case <-ls.Quit():
				return
			}
		}

		logTx := next.Value.(*logTx)
		ls.deliver(logTx)

		select {
		// NextWaitChan is closed once next has a successor or is removed
		case <-next.NextWaitChan():
			next = next.Next()
		case <-ls.Quit():
			return
		}
	}
}

func (ls *LocalService) skipDelivered(e *clist.CElement) *clist.CElement {
	for e != nil && e.Value.(*logTx).isDelivered() {
		e = e.Next()
	}
	return e
}

func (ls *LocalService) deliver(logTx *logTx) {
	ls.subMtx.RLock()
	ids := make([]string, 0, len(ls.subscribers))
	for id := range ls.subscribers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	subs := make([]Deliverer, len(ids))
	for i, id := range ids {
		subs[i] = ls.subscribers[id]
	}
	ls.subMtx.RUnlock()

	for i, d := range subs {
		if err := d.DeliverTx(logTx.tx); err != nil {
			ls.Logger.Debug("subscriber rejected tx", "subscriber", ids[i], "seq", logTx.seq, "err", err)
		}
	}
	logTx.markDelivered()
	n := atomic.AddInt64(&ls.delivered, 1)
	ls.metric.MarkDelivered(n)
}

// ------------------------------

type logTx struct {
	seq  int64
	size int64
	tx   types.Tx

	delivered int32
}

func (l *logTx) markDelivered() {
	atomic.StoreInt32(&l.delivered, 1)
}

func (l *logTx) isDelivered() bool {
	return atomic.LoadInt32(&l.delivered) == 1
}

// TxKey is the hex hash used as the key in maps.
func TxKey(tx types.Tx) string {
	return tx.Hash().String()
}
