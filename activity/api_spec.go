package activity

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

const (
	ResponseTypeStr   = "str"
	ResponseTypeInt   = "int"
	ResponseTypeFloat = "float"
	ResponseTypeDict  = "dict"
	ResponseTypeList  = "list"
	ResponseTypeBool  = "bool"

	responseKeySeparator = ":"
)

var (
	ErrUnexpectedStatus   = errors.New("unexpected http status")
	ErrMissingResponseKey = errors.New("response key not found")
	ErrResponseType       = errors.New("response has unexpected type")
)

// APISpec describes a JSON HTTP endpoint and how to extract the interesting
// part of its response.
type APISpec struct {
	URL        string            `mapstructure:"url" json:"url"`
	Method     string            `mapstructure:"method" json:"method"`
	Headers    map[string]string `mapstructure:"headers" json:"headers"`
	Parameters map[string]string `mapstructure:"parameters" json:"parameters"`

	// ResponseKey is a ':' separated path into the decoded response body
	ResponseKey  string `mapstructure:"response_key" json:"response_key"`
	ResponseType string `mapstructure:"response_type" json:"response_type"`

	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
	Retries   int           `mapstructure:"retries" json:"retries"`
	RetryWait time.Duration `mapstructure:"retry_wait" json:"retry_wait"`
}

func (s APISpec) ValidateBasic() error {
	u, err := url.Parse(s.URL)
	if err != nil {
		return errors.Wrap(err, "invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	switch strings.ToUpper(s.Method) {
	case "", http.MethodGet, http.MethodPost:
	default:
		return fmt.Errorf("unsupported method %q", s.Method)
	}
	switch s.ResponseType {
	case "", ResponseTypeStr, ResponseTypeInt, ResponseTypeFloat, ResponseTypeDict, ResponseTypeList, ResponseTypeBool:
	default:
		return fmt.Errorf("unknown response type %q", s.ResponseType)
	}
	if s.Retries < 0 {
		return errors.New("retries can't be negative")
	}
	return nil
}

// Func adapts s to an activity. A nil client means http.DefaultClient.
func (s APISpec) Func(client *http.Client) Func {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		return s.Call(ctx, client)
	}
}

// Call performs the request, retrying up to Retries times with a doubling
// wait, and returns the processed response.
func (s APISpec) Call(ctx context.Context, client *http.Client) (interface{}, error) {
	wait := s.RetryWait
	var lastErr error
	for attempt := 0; attempt <= s.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(wait):
				wait *= 2
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := s.do(ctx, client)
		if err == nil {
			return s.ProcessResponse(body)
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (s APISpec) do(ctx context.Context, client *http.Client) ([]byte, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	method := strings.ToUpper(s.Method)
	if method == "" {
		method = http.MethodGet
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return nil, err
	}
	if len(s.Parameters) > 0 {
		q := u.Query()
		for k, v := range s.Parameters {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrUnexpectedStatus, "%d: %s", resp.StatusCode, truncate(body, 128))
	}
	return body, nil
}

// ProcessResponse decodes body and walks ResponseKey.
func (s APISpec) ProcessResponse(body []byte) (interface{}, error) {
	var decoded interface{}
	if err := jsoniter.Unmarshal(body, &decoded); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}

	if s.ResponseKey != "" {
		for _, key := range strings.Split(s.ResponseKey, responseKeySeparator) {
			obj, ok := decoded.(map[string]interface{})
			if !ok {
				return nil, errors.Wrapf(ErrMissingResponseKey, "%s", key)
			}
			if decoded, ok = obj[key]; !ok {
				return nil, errors.Wrapf(ErrMissingResponseKey, "%s", key)
			}
		}
	}
	return convert(decoded, s.ResponseType)
}

func convert(v interface{}, responseType string) (interface{}, error) {
	mismatch := func() error {
		return errors.Wrapf(ErrResponseType, "want %s, got %T", responseType, v)
	}
	switch responseType {
	case "":
		return v, nil
	case ResponseTypeStr:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ResponseTypeInt:
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			return int64(f), nil
		}
	case ResponseTypeFloat:
		if f, ok := v.(float64); ok {
			return f, nil
		}
	case ResponseTypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ResponseTypeDict:
		if m, ok := v.(map[string]interface{}); ok {
			return m, nil
		}
	case ResponseTypeList:
		if l, ok := v.([]interface{}); ok {
			return l, nil
		}
	}
	return nil, mismatch()
}

func truncate(bz []byte, n int) string {
	if len(bz) <= n {
		return string(bz)
	}
	return string(bz[:n]) + "..."
}
