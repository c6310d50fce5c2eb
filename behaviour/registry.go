package behaviour

import (
	"github.com/pkg/errors"

	"roundabci/consensus"
	"roundabci/types"
)

var (
	ErrNoFactory     = errors.New("no behaviour registered for round")
	ErrFactoryExists = errors.New("behaviour already registered for round")
)

// Registry binds round kinds to behaviour factories.
type Registry struct {
	factories map[types.RoundKind]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[types.RoundKind]Factory)}
}

func (r *Registry) Register(kind types.RoundKind, f Factory) error {
	if f == nil {
		return errors.Errorf("nil factory for %v", kind)
	}
	if _, ok := r.factories[kind]; ok {
		return errors.Wrapf(ErrFactoryExists, "%v", kind)
	}
	r.factories[kind] = f
	return nil
}

func (r *Registry) Get(kind types.RoundKind) (Factory, bool) {
	f, ok := r.factories[kind]
	return f, ok
}

// Validate checks the registry against app: every collecting round needs a
// factory and every factory must belong to a round of the app.
func (r *Registry) Validate(app *consensus.App) error {
	for _, kind := range app.Rounds() {
		spec, _ := app.Round(kind)
		if spec.Degenerate {
			continue
		}
		if _, ok := r.factories[kind]; !ok {
			return errors.Wrapf(ErrNoFactory, "%v", kind)
		}
	}
	for kind := range r.factories {
		spec, ok := app.Round(kind)
		if !ok {
			return errors.Errorf("behaviour registered for unknown round %v", kind)
		}
		if spec.Degenerate {
			return errors.Errorf("behaviour registered for degenerate round %v", kind)
		}
	}
	return nil
}
