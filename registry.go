// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Registry tracks named endpoints and drives collective lifecycle
// operations. All methods are safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	eps map[string]*Endpoint
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{eps: make(map[string]*Endpoint)}
}

// Put registers ep under its name. Registering a name twice is an error;
// close and Remove the old endpoint first.
func (r *Registry) Put(ep *Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.eps[ep.Name()]; ok {
		return fmt.Errorf("endpoint: %q already registered", ep.Name())
	}
	r.eps[ep.Name()] = ep
	return nil
}

// Get returns the endpoint registered under name, or nil.
func (r *Registry) Get(name string) *Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eps[name]
}

// Lookup resolves name against registered names first, then aliases.
func (r *Registry) Lookup(name string) *Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ep, ok := r.eps[name]; ok {
		return ep
	}
	for _, ep := range r.eps {
		if ep.Alias() == name {
			return ep
		}
	}
	return nil
}

// Remove unregisters name and returns the endpoint, or nil if absent. The
// endpoint is not closed; that remains the caller's call.
func (r *Registry) Remove(name string) *Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep := r.eps[name]
	delete(r.eps, name)
	return ep
}

// Endpoints returns a snapshot of the registered endpoints.
func (r *Registry) Endpoints() []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Endpoint, 0, len(r.eps))
	for _, ep := range r.eps {
		out = append(out, ep)
	}
	return out
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.eps)
}

// OpenAll opens every registered endpoint, waits for each open cycle to
// settle and returns the aggregated failures, if any.
func (r *Registry) OpenAll() error {
	eps := r.Endpoints()
	futs := make([]*Future, len(eps))
	for i, ep := range eps {
		futs[i] = ep.Open()
	}
	var err error
	for _, f := range futs {
		err = multierr.Append(err, f.Err())
	}
	return err
}

// CloseAll closes every registered endpoint and waits for teardown.
// Ordinary endpoints close first and in parallel; system endpoints follow,
// so control-plane calls they carry (deregistration and the like) still
// find them open while everything else drains.
func (r *Registry) CloseAll(graceful bool) error {
	var system []*Endpoint
	var futs []*Future
	for _, ep := range r.Endpoints() {
		if ep.System() {
			system = append(system, ep)
			continue
		}
		futs = append(futs, ep.Close(graceful))
	}
	var err error
	for _, f := range futs {
		err = multierr.Append(err, f.Err())
	}
	for _, ep := range system {
		err = multierr.Append(err, ep.Close(graceful).Err())
	}
	return err
}
