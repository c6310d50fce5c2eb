package activity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"roundabci/types"
)

func newPingServer(t *testing.T, failures int32) (*httptest.Server, *int32) {
	calls := new(int32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		if n <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "secret", r.Header.Get("x-cg-demo-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"gecko_says":"(V3) To the Moon!","meta":{"rank":1}}`))
	}))
	return srv, calls
}

func TestRegistry_Call(t *testing.T) {
	r := NewRegistry()
	r.SetLogger(log.TestingLogger())

	require.NoError(t, r.Register("echo", func(ctx context.Context, req interface{}) (interface{}, error) {
		return req, nil
	}))
	require.NoError(t, r.Register("fail", func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	}))
	assert.ErrorIs(t, r.Register("echo", func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, nil
	}), ErrActivityExists)
	assert.Equal(t, []string{"echo", "fail"}, r.Names())

	res, err := r.Call(context.Background(), "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", res)

	_, err = r.Call(context.Background(), "fail", nil)
	var ae *types.ActivityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "fail", ae.Name)
	assert.EqualError(t, ae.Err, "boom")

	_, err = r.Call(context.Background(), "missing", nil)
	require.ErrorAs(t, err, &ae)
	assert.ErrorIs(t, err, ErrUnknownActivity)
}

func TestAPISpec_Call(t *testing.T) {
	srv, _ := newPingServer(t, 0)
	defer srv.Close()

	spec := APISpec{
		URL:          srv.URL + "/api/v3/ping",
		Method:       "get",
		Headers:      map[string]string{"x-cg-demo-api-key": "secret"},
		ResponseKey:  "gecko_says",
		ResponseType: ResponseTypeStr,
	}
	require.NoError(t, spec.ValidateBasic())

	res, err := spec.Call(context.Background(), srv.Client())
	require.NoError(t, err)
	assert.Equal(t, "(V3) To the Moon!", res)

	spec.ResponseKey, spec.ResponseType = "meta:rank", ResponseTypeInt
	res, err = spec.Call(context.Background(), srv.Client())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res)
}

func TestAPISpec_Retry(t *testing.T) {
	srv, calls := newPingServer(t, 2)
	defer srv.Close()

	spec := APISpec{
		URL:         srv.URL,
		Headers:     map[string]string{"x-cg-demo-api-key": "secret"},
		ResponseKey: "gecko_says",
		Retries:     2,
		RetryWait:   time.Millisecond,
	}
	res, err := spec.Func(srv.Client())(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "(V3) To the Moon!", res)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))

	spec.Retries = 0
	srv2, _ := newPingServer(t, 1)
	defer srv2.Close()
	spec.URL = srv2.URL
	_, err = spec.Call(context.Background(), srv2.Client())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestAPISpec_ProcessResponse(t *testing.T) {
	body := []byte(`{"a":{"b":[1,2]},"s":"x","f":1.5,"ok":true}`)

	testCases := []struct {
		key, typ string
		want     interface{}
		err      error
	}{
		{"s", ResponseTypeStr, "x", nil},
		{"f", ResponseTypeFloat, 1.5, nil},
		{"ok", ResponseTypeBool, true, nil},
		{"a:b", ResponseTypeList, []interface{}{float64(1), float64(2)}, nil},
		{"a", ResponseTypeDict, map[string]interface{}{"b": []interface{}{float64(1), float64(2)}}, nil},
		{"f", ResponseTypeInt, nil, ErrResponseType},
		{"s", ResponseTypeInt, nil, ErrResponseType},
		{"a:c", "", nil, ErrMissingResponseKey},
		{"s:c", "", nil, ErrMissingResponseKey},
	}
	for _, tc := range testCases {
		res, err := APISpec{ResponseKey: tc.key, ResponseType: tc.typ}.ProcessResponse(body)
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err, "key %s", tc.key)
			continue
		}
		require.NoError(t, err, "key %s", tc.key)
		assert.Equal(t, tc.want, res, "key %s", tc.key)
	}
}

func TestAPISpec_ValidateBasic(t *testing.T) {
	assert.Error(t, APISpec{URL: "ftp://example.org"}.ValidateBasic())
	assert.Error(t, APISpec{URL: "http://example.org", Method: "DELETE"}.ValidateBasic())
	assert.Error(t, APISpec{URL: "http://example.org", ResponseType: "tuple"}.ValidateBasic())
	assert.Error(t, APISpec{URL: "http://example.org", Retries: -1}.ValidateBasic())
	assert.NoError(t, APISpec{URL: "https://api.coingecko.com/api/v3/ping"}.ValidateBasic())
}
