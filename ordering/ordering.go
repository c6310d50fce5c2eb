package ordering

import (
	"context"

	"roundabci/types"
)

// Broadcaster submits txs to the ordered log shared by all agents.
type Broadcaster interface {
	// Broadcast appends tx to the log. It returns once tx is ordered, not
	// once it is delivered.
	Broadcast(ctx context.Context, tx types.Tx) error
}

// Deliverer consumes the ordered log. Txs are delivered one at a time in
// log order; a returned error concerns the tx only.
type Deliverer interface {
	DeliverTx(tx types.Tx) error
}

// Service totally orders the txs of every agent and delivers the log to
// every subscriber in the same order.
type Service interface {
	Broadcaster

	Subscribe(subscriberID string, d Deliverer) error
	Unsubscribe(subscriberID string)

	// Size returns the number of txs kept in the log
	Size() int
	// TxsBytes returns the total size of the txs kept in the log
	TxsBytes() int64
	// Flush drops the txs that were already delivered
	Flush()
}

//--------------------------------------------------------------------------------

// PreCheckFunc is an optional filter executed before a tx enters the log.
type PreCheckFunc func(types.Tx) error

// PreCheckMaxBytes checks that the size of the tx is smaller or equal to the
// expected maxBytes.
func PreCheckMaxBytes(maxBytes int64) PreCheckFunc {
	return func(tx types.Tx) error {
		if size := types.ComputeSize(tx); size > maxBytes {
			return ErrTxTooLarge{Max: maxBytes, Actual: size}
		}
		return nil
	}
}

// PreCheckSenders rejects payload and error txs from agents outside agents.
func PreCheckSenders(agents *types.AgentSet) PreCheckFunc {
	return func(tx types.Tx) error {
		var sender types.AgentID
		switch tx := tx.(type) {
		case *types.PayloadTx:
			sender = tx.Payload.Sender
		case *types.ErrorTx:
			sender = tx.Sender
		default:
			return nil
		}
		if !agents.Has(sender) {
			return types.ErrUnknownSender
		}
		return nil
	}
}

// PreCheckAll runs every check in order and returns the first failure.
func PreCheckAll(checks ...PreCheckFunc) PreCheckFunc {
	return func(tx types.Tx) error {
		for _, check := range checks {
			if err := check(tx); err != nil {
				return err
			}
		}
		return nil
	}
}
