package rpc

import (
	"context"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"roundabci/types"
)

type ResultOrdering struct {
	Size      int   `json:"size"`
	Bytes     int64 `json:"bytes"`
	Delivered int64 `json:"delivered"`
}

func OrderingInfo(ctx *rpctypes.Context) (*ResultOrdering, error) {
	return &ResultOrdering{
		Size:      env.Ordering.Size(),
		Bytes:     env.Ordering.TxsBytes(),
		Delivered: env.Ordering.Delivered(),
	}, nil
}

type ResultBroadcastTx struct {
	Hash tmbytes.HexBytes `json:"hash"`
}

// BroadcastTimeout orders a ROUND_TIMEOUT for round, forcing every replica
// still collecting it to move on.
func BroadcastTimeout(ctx *rpctypes.Context, round int64) (*ResultBroadcastTx, error) {
	tx := &types.TimeoutTx{RoundID: types.RoundID(round), Event: types.EventRoundTimeout}
	if err := tx.ValidateBasic(); err != nil {
		return nil, err
	}
	reqCtx := context.Background()
	if ctx != nil {
		reqCtx = ctx.Context()
	}
	if err := env.Ordering.Broadcast(reqCtx, tx); err != nil {
		return nil, err
	}
	return &ResultBroadcastTx{Hash: tx.Hash()}, nil
}
