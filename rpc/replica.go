package rpc

import (
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultRoundState struct {
	Agent     string `json:"agent"`
	RoundID   int64  `json:"round_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Period    int64  `json:"period"`
	Collected int    `json:"collected"`
	Threshold int    `json:"threshold"`
	Halted    bool   `json:"halted"`
	Error     string `json:"error,omitempty"`
}

func RoundState(ctx *rpctypes.Context, agent string) (*ResultRoundState, error) {
	seq, err := env.replica(agent)
	if err != nil {
		return nil, err
	}
	st := seq.RoundState()
	res := &ResultRoundState{
		Agent:     agent,
		RoundID:   st.RoundID.Int64(),
		Kind:      st.Kind.String(),
		Status:    st.Status.String(),
		Period:    st.Period,
		Collected: st.Collected,
		Threshold: st.Threshold,
		Halted:    st.Halted,
	}
	if err := seq.Err(); err != nil {
		res.Error = err.Error()
	}
	return res, nil
}

type ResultSyncData struct {
	Period int64            `json:"period"`
	Hash   tmbytes.HexBytes `json:"hash"`
	// Values are JSON encoded
	Values map[string]string `json:"values"`
}

func SyncData(ctx *rpctypes.Context, agent string) (*ResultSyncData, error) {
	seq, err := env.replica(agent)
	if err != nil {
		return nil, err
	}
	data := seq.Data()
	res := &ResultSyncData{
		Period: data.Period(),
		Hash:   data.Hash(),
		Values: make(map[string]string),
	}
	for k, v := range data.Snapshot() {
		res.Values[k] = jsonString(v)
	}
	return res, nil
}

type ResultResolution struct {
	RoundID   int64  `json:"round_id"`
	Kind      string `json:"kind"`
	Event     string `json:"event"`
	Next      string `json:"next"`
	Selection string `json:"selection,omitempty"`
}

type ResultResolutions struct {
	Resolutions []ResultResolution `json:"resolutions"`
}

func Resolutions(ctx *rpctypes.Context, agent string) (*ResultResolutions, error) {
	seq, err := env.replica(agent)
	if err != nil {
		return nil, err
	}
	res := &ResultResolutions{Resolutions: []ResultResolution{}}
	for _, r := range seq.Resolutions() {
		item := ResultResolution{
			RoundID: r.RoundID.Int64(),
			Kind:    r.Kind.String(),
			Event:   r.Event.String(),
			Next:    r.Next.String(),
		}
		if r.Selection != nil {
			item.Selection = jsonString(r.Selection)
		}
		res.Resolutions = append(res.Resolutions, item)
	}
	return res, nil
}
