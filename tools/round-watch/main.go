package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	jsonrpc "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"roundabci/libs/utils"
	"roundabci/rpc"
)

const (
	sendTimeout = 10 * time.Second
)

var (
	target   string
	agents   string
	interval time.Duration
)

func connect(host string) (*websocket.Conn, *http.Response, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	return websocket.DefaultDialer.Dial(u.String(), nil)
}

// watcher polls the round state of every agent over one websocket.
type watcher struct {
	conn   *websocket.Conn
	agents []string
	last   map[string]rpc.ResultRoundState
	reqID  int

	logger log.Logger
}

func (w *watcher) roundState(agent string) (*rpc.ResultRoundState, error) {
	params, err := jsoniter.Marshal(map[string]string{"agent": agent})
	if err != nil {
		return nil, err
	}
	w.reqID++
	req := jsonrpc.RPCRequest{
		JSONRPC: "2.0",
		ID:      jsonrpc.JSONRPCIntID(w.reqID),
		Method:  "round_state",
		Params:  params,
	}

	if err := w.conn.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil {
		return nil, err
	}
	if err := w.conn.WriteJSON(req); err != nil {
		return nil, errors.Wrap(err, "send request")
	}

	var resp jsonrpc.RPCResponse
	if err := w.conn.SetReadDeadline(time.Now().Add(sendTimeout)); err != nil {
		return nil, err
	}
	if err := w.conn.ReadJSON(&resp); err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	res := new(rpc.ResultRoundState)
	if err := tmjson.Unmarshal(resp.Result, res); err != nil {
		return nil, errors.Wrap(err, "decode round state")
	}
	return res, nil
}

// poll reports the agents whose state changed and whether every agent stopped.
func (w *watcher) poll() (bool, error) {
	stopped := 0
	for _, agent := range w.agents {
		st, err := w.roundState(agent)
		if err != nil {
			return false, errors.Wrapf(err, "agent %s", agent)
		}
		if prev, ok := w.last[agent]; !ok || prev != *st {
			w.logger.Info("round state", "agent", agent, "round", st.RoundID, "kind", st.Kind,
				"status", st.Status, "collected", fmt.Sprintf("%d/%d", st.Collected, st.Threshold),
				"period", st.Period, "halted", st.Halted)
			if st.Error != "" {
				w.logger.Error("replica failed", "agent", agent, "err", st.Error)
			}
		}
		w.last[agent] = *st
		if st.Halted || st.Error != "" {
			stopped++
		}
	}
	return stopped == len(w.agents), nil
}

func run(cmd *cobra.Command, args []string) error {
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout))

	c, _, err := connect(target)
	if err != nil {
		return errors.Wrapf(err, "connect to %s", target)
	}
	defer c.Close()

	w := &watcher{
		conn:   c,
		agents: utils.SplitAndTrimEmpty(agents, ",", " "),
		last:   make(map[string]rpc.ResultRoundState),
		logger: logger,
	}
	if len(w.agents) == 0 {
		return errors.New("no agents to watch")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		done, err := w.poll()
		if err != nil {
			return err
		}
		if done {
			logger.Info("every agent stopped")
			break
		}
	}

	return c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "round-watch",
		Short: "Follow the rounds of a running node over its RPC websocket",
		RunE:  run,
	}
	rootCmd.Flags().StringVar(&target, "target", "127.0.0.1:26657", "RPC host:port")
	rootCmd.Flags().StringVar(&agents, "agents", "agent_0,agent_1,agent_2,agent_3", "comma separated agents to watch")
	rootCmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "polling interval")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
