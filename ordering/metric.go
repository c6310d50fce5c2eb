package ordering

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
)

func newOrderingMetric() *orderingMetric {
	return &orderingMetric{}
}

type orderingMetric struct {
	mtx         sync.RWMutex
	TxsNum      int   `json:"txs_num"`     // txs kept in the log
	TxsBytes    int64 `json:"txs_bytes"`   // size of the txs kept in the log
	Delivered   int64 `json:"delivered"`   // txs handed to subscribers
	Subscribers int   `json:"subscribers"` // replicas consuming the log
}

func (om *orderingMetric) JSONString() string {
	om.mtx.RLock()
	defer om.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(om)
	return s
}

func (om *orderingMetric) MarkTxs(num int, bytes int64) {
	om.mtx.Lock()
	defer om.mtx.Unlock()
	om.TxsNum = num
	om.TxsBytes = bytes
}

func (om *orderingMetric) MarkDelivered(n int64) {
	om.mtx.Lock()
	defer om.mtx.Unlock()
	om.Delivered = n
}

func (om *orderingMetric) MarkSubscribers(n int) {
	om.mtx.Lock()
	defer om.mtx.Unlock()
	om.Subscribers = n
}
