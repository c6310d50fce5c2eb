// Package activity provides the external operations behaviours call while
// computing their payloads. Every failure reaches the behaviour as a
// *types.ActivityError naming the activity.
package activity

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/cmap"
	"github.com/tendermint/tendermint/libs/log"

	"roundabci/types"
)

var (
	ErrUnknownActivity = errors.New("unknown activity")
	ErrActivityExists  = errors.New("activity already registered")
)

// Provider runs named activities.
type Provider interface {
	Call(ctx context.Context, name string, request interface{}) (interface{}, error)
}

// Func is a single activity.
type Func func(ctx context.Context, request interface{}) (interface{}, error)

// Registry is a Provider dispatching to registered Funcs. It is safe for
// concurrent use; all agents of a process may share one.
type Registry struct {
	funcs *cmap.CMap

	logger log.Logger
}

var _ Provider = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{funcs: cmap.NewCMap(), logger: log.NewNopLogger()}
}

func (r *Registry) SetLogger(logger log.Logger) {
	r.logger = logger
}

func (r *Registry) Register(name string, fn Func) error {
	if name == "" || fn == nil {
		return errors.New("activity needs a name and a func")
	}
	if r.funcs.Has(name) {
		return errors.Wrapf(ErrActivityExists, "%s", name)
	}
	r.funcs.Set(name, fn)
	return nil
}

// Names returns the registered activities in ascending order.
func (r *Registry) Names() []string {
	names := r.funcs.Keys()
	sort.Strings(names)
	return names
}

func (r *Registry) Call(ctx context.Context, name string, request interface{}) (interface{}, error) {
	v := r.funcs.Get(name)
	if v == nil {
		return nil, &types.ActivityError{Name: name, Err: ErrUnknownActivity}
	}
	if err := ctx.Err(); err != nil {
		return nil, &types.ActivityError{Name: name, Err: err}
	}

	res, err := v.(Func)(ctx, request)
	if err != nil {
		r.logger.Info("activity failed", "activity", name, "err", err)
		var ae *types.ActivityError
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, &types.ActivityError{Name: name, Err: err}
	}
	r.logger.Debug("activity done", "activity", name)
	return res, nil
}
