package rpc

import (
	"net"
	"net/http"

	"github.com/tendermint/tendermint/libs/log"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"
)

// StartServer serves Routes over HTTP, URI and websocket at listenAddr
// (e.g. tcp://127.0.0.1:26657). Close the listener to stop it.
func StartServer(listenAddr string, logger log.Logger) (net.Listener, error) {
	config := rpcserver.DefaultConfig()

	mux := http.NewServeMux()
	wm := rpcserver.NewWebsocketManager(Routes,
		rpcserver.ReadLimit(config.MaxBodyBytes),
	)
	wm.SetLogger(logger.With("protocol", "websocket"))
	mux.HandleFunc("/websocket", wm.WebsocketHandler)
	rpcserver.RegisterRPCFuncs(mux, Routes, logger)

	listener, err := rpcserver.Listen(listenAddr, config)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := rpcserver.Serve(listener, mux, logger, config); err != nil {
			logger.Info("rpc server stopped", "reason", err)
		}
	}()
	logger.Info("rpc server started", "addr", listener.Addr())
	return listener, nil
}
