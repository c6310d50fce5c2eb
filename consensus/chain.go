package consensus

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"roundabci/types"
)

// Chain composes apps into one. mapping connects a final state of one app
// to an initial state of another; the mapped final states disappear and every
// transition into them is redirected. The first app provides the initial round.
func Chain(apps []*App, mapping map[types.RoundKind]types.RoundKind, options ...AppOption) (*App, error) {
	if len(apps) == 0 {
		return nil, errors.Wrap(types.ErrInvalidApp, "chain of no apps")
	}

	var (
		names       = make([]string, 0, len(apps))
		rounds      = []RoundSpec{}
		seen        = map[types.RoundKind]RoundSpec{}
		transitions = TransitionFunction{}
		finals      = map[types.RoundKind]struct{}{}
		initials    = []types.RoundKind{}
		timeouts    = map[types.Event]time.Duration{}
		pre         = map[types.RoundKind][]string{}
		post        = map[types.RoundKind][]string{}
		crossPeriod = []string{}
	)

	for _, app := range apps {
		names = append(names, app.name)
		for _, kind := range app.Rounds() {
			spec := app.rounds[kind]
			if prev, ok := seen[kind]; ok {
				if prev != spec {
					return nil, errors.Wrapf(types.ErrInvalidApp, "round %v declared differently by %s", kind, app.name)
				}
				continue
			}
			seen[kind] = spec
			rounds = append(rounds, spec)
		}
		for from, edges := range app.transitions {
			if transitions[from] == nil {
				transitions[from] = map[types.Event]types.RoundKind{}
			}
			for ev, to := range edges {
				transitions[from][ev] = to
			}
		}
		for k := range app.finalStates {
			finals[k] = struct{}{}
		}
		for k := range app.initialStates {
			initials = append(initials, k)
		}
		for ev, d := range app.eventTimeouts {
			if prev, ok := timeouts[ev]; ok && prev != d {
				return nil, errors.Wrapf(types.ErrInvalidApp, "event %v has conflicting timeouts %v and %v", ev, prev, d)
			}
			timeouts[ev] = d
		}
		for k, keys := range app.dbPreConditions {
			pre[k] = append(pre[k], keys...)
		}
		for k, keys := range app.dbPostConditions {
			post[k] = append(post[k], keys...)
		}
		crossPeriod = append(crossPeriod, app.crossPeriodPersistedKeys...)
	}

	for from, to := range mapping {
		if _, ok := finals[from]; !ok {
			return nil, errors.Wrapf(types.ErrInvalidApp, "chain maps %v which is not a final state", from)
		}
		if _, ok := seen[to]; !ok {
			return nil, errors.Wrapf(types.ErrInvalidApp, "chain maps %v to unknown round %v", from, to)
		}
		isInitial := false
		for _, k := range initials {
			if k == to {
				isInitial = true
				break
			}
		}
		if !isInitial {
			return nil, errors.Wrapf(types.ErrInvalidApp, "chain maps %v to %v which is not an initial state", from, to)
		}
	}

	// drop the mapped finals and redirect the edges into them
	kept := rounds[:0]
	for _, spec := range rounds {
		if _, mapped := mapping[spec.Kind]; !mapped {
			kept = append(kept, spec)
		}
	}
	for _, edges := range transitions {
		for ev, to := range edges {
			if target, mapped := mapping[to]; mapped {
				edges[ev] = target
			}
		}
	}
	finalKinds := make([]types.RoundKind, 0, len(finals))
	for k := range finals {
		if _, mapped := mapping[k]; !mapped {
			finalKinds = append(finalKinds, k)
		}
	}
	for k := range mapping {
		delete(pre, k)
		delete(post, k)
	}

	opts := []AppOption{
		SetInitialStates(initials...),
		SetEventTimeouts(timeouts),
		SetDBPreConditions(pre),
		SetDBPostConditions(post),
		SetCrossPeriodPersistedKeys(crossPeriod...),
	}
	opts = append(opts, options...)

	return NewApp(strings.Join(names, "+"), apps[0].initialRound, kept, transitions, finalKinds, opts...)
}
