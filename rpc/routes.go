package rpc

import rpc "github.com/tendermint/tendermint/rpc/jsonrpc/server"

var Routes = map[string]*rpc.RPCFunc{
	// replica
	"round_state": rpc.NewRPCFunc(RoundState, "agent"),
	"sync_data":   rpc.NewRPCFunc(SyncData, "agent"),
	"resolutions": rpc.NewRPCFunc(Resolutions, "agent"),

	// ordering
	"ordering":          rpc.NewRPCFunc(OrderingInfo, ""),
	"broadcast_timeout": rpc.NewRPCFunc(BroadcastTimeout, "round"),

	"metrics": rpc.NewRPCFunc(JSONMetrics, "label"),
}
