// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
)

// Invoker executes one invocation and returns its completion handle. The
// returned future must settle eventually and must not be nil. Invoke must
// not block the caller; long work belongs behind the future.
type Invoker interface {
	Invoke(ctx context.Context, req *Request) *Future
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req *Request) *Future

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, req *Request) *Future {
	return f(ctx, req)
}

// OptionResolver produces the per-call options for a request. Resolve runs
// once per request that arrives without options already attached.
type OptionResolver interface {
	Resolve(req *Request) (*Options, error)
}

// OptionResolverFunc adapts a function to the OptionResolver interface.
type OptionResolverFunc func(req *Request) (*Options, error)

// Resolve calls f.
func (f OptionResolverFunc) Resolve(req *Request) (*Options, error) {
	return f(req)
}

// Hooks binds resource acquisition and release to an endpoint's lifecycle.
// Hooks kick work off and return a completion handle; they must not block.
// A nil hook, or a hook returning a nil future, counts as immediate success.
type Hooks struct {
	Open  func() *Future
	Close func() *Future
}

// CompletionFunc observes every finished invocation, rejected or executed,
// with the request and its final result. Failures inside the hook are the
// collaborator's responsibility; panics are contained and logged.
type CompletionFunc func(req *Request, res *Result)

// Endpoint couples a lifecycle state machine to an invocation pipeline.
//
// An Endpoint starts Closed. Open acquires resources through the open hook
// and moves it to Opened; Invoke admits work only while Opened; Close drains
// in-flight work (when graceful), releases resources through the close hook
// and returns to Closed. All lifecycle operations are safe to call
// concurrently and return futures that settle when the cycle completes.
type Endpoint struct {
	name      string
	alias     string
	service   string
	system    bool
	chain     Invoker
	hooks     Hooks
	resolver  OptionResolver
	onDone    CompletionFunc
	rejectErr error
	logger    *slog.Logger
	metrics   *Metrics

	state  state
	drain  drainTracker
	openF  atomic.Pointer[Future]
	closeF atomic.Pointer[Future]
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithAlias sets a secondary lookup name used by Registry.
func WithAlias(alias string) Option {
	return func(e *Endpoint) { e.alias = alias }
}

// WithService sets the service path the endpoint fronts, the identity
// handed to the option resolver. Defaults to the endpoint name.
func WithService(path string) Option {
	return func(e *Endpoint) { e.service = path }
}

// WithSystem marks the endpoint as a system endpoint. System endpoints
// bypass the admission check so control-plane calls (deregistration,
// health) still go out while the process drains or the endpoint closes.
func WithSystem() Option {
	return func(e *Endpoint) { e.system = true }
}

// WithHooks sets the resource hooks run on open and close.
func WithHooks(h Hooks) Option {
	return func(e *Endpoint) { e.hooks = h }
}

// WithResolver sets the per-call option resolver.
func WithResolver(r OptionResolver) Option {
	return func(e *Endpoint) { e.resolver = r }
}

// WithCompletion sets the completion hook invoked after every invocation.
func WithCompletion(fn CompletionFunc) Option {
	return func(e *Endpoint) { e.onDone = fn }
}

// WithShutdownError sets the base error carried by admission rejections.
// Defaults to ErrUnavailable.
func WithShutdownError(err error) Option {
	return func(e *Endpoint) { e.rejectErr = err }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Endpoint) { e.logger = l }
}

// WithMetrics attaches a collector set. Without it, instrumentation is off.
func WithMetrics(m *Metrics) Option {
	return func(e *Endpoint) { e.metrics = m }
}

// New returns a Closed endpoint named name that delegates execution to
// chain. A nil chain is allowed for lifecycle-only endpoints; invoking one
// fails with ErrNoInvoker.
func New(name string, chain Invoker, opts ...Option) *Endpoint {
	e := &Endpoint{
		name:      name,
		chain:     chain,
		rejectErr: ErrUnavailable,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.service == "" {
		e.service = name
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("endpoint", name)
	return e
}

// Name returns the endpoint name.
func (e *Endpoint) Name() string { return e.name }

// Alias returns the secondary lookup name, if any.
func (e *Endpoint) Alias() string { return e.alias }

// Service returns the service path the endpoint fronts.
func (e *Endpoint) Service() string { return e.service }

// System reports whether the endpoint bypasses admission checks.
func (e *Endpoint) System() bool { return e.system }

// Status returns the current lifecycle status.
func (e *Endpoint) Status() Status { return e.state.load() }

// InFlight returns the number of admitted, not yet released invocations.
func (e *Endpoint) InFlight() int64 { return e.drain.count() }

// Open begins resource acquisition and returns the open-completion future.
//
// Exactly one caller wins the Closed -> Opening transition, installs fresh
// lifecycle futures and runs the open hook. Concurrent callers that observe
// Opening or Opened share the winner's future. Open from Closing fails with
// ErrIllegalState.
//
// If the hook fails, the future settles with the hook's error and a forced
// close runs to release whatever the hook partially acquired. If a
// concurrent close interrupted the cycle, or the hook succeeded but the
// Opening -> Opened transition was lost, the future settles with
// ErrIllegalState.
func (e *Endpoint) Open() *Future {
	if e.state.cas(Closed, Opening) {
		fut := NewFuture()
		e.openF.Store(fut)
		e.closeF.Store(nil)
		e.drain.reset()
		e.metrics.transitioned(e.name, Opening)
		e.logger.Debug("opening")

		e.runOpen().whenDone(func(_ *Result, err error) {
			if e.openF.Load() != fut || (err == nil && !e.state.cas(Opening, Opened)) {
				fut.Complete(nil, fmt.Errorf("%w: open interrupted", ErrIllegalState))
				return
			}
			if err != nil {
				e.logger.Warn("open failed", "err", err)
				fut.Complete(nil, err)
				// Corrective close: settle the failed cycle back to Closed.
				e.Close(false)
				return
			}
			e.metrics.transitioned(e.name, Opened)
			e.logger.Info("opened")
			fut.Complete(nil, nil)
		})
		return fut
	}

	// Lost the transition: another caller owns the cycle. The winner
	// publishes its future right after winning the CAS; a reader landing in
	// that gap yields until the handle appears or the status moves on.
	for {
		switch st := e.state.load(); st {
		case Opening, Opened:
			if f := e.openF.Load(); f != nil {
				return f
			}
			runtime.Gosched()
		default:
			return Failed(fmt.Errorf("%w: open from %s", ErrIllegalState, st))
		}
	}
}

// Close begins shutdown and returns the close-completion future. A graceful
// close waits for in-flight invocations to drain before the close hook
// runs; a forced close releases the drain immediately. Close futures always
// settle successfully once teardown finishes.
//
// Close during Opening waits for the in-progress open to settle, then moves
// straight to Closed without running the close hook: the interrupted cycle
// never confirmed its resources, and its own failure path releases them.
// Close on a Closing or Closed endpoint returns the existing close future,
// or an immediate success if the endpoint was never opened.
func (e *Endpoint) Close(graceful bool) *Future {
	if e.state.cas(Opening, Closing) {
		fut := NewFuture()
		e.closeF.Store(fut)
		e.metrics.transitioned(e.name, Closing)
		e.logger.Debug("closing", "graceful", graceful, "openInterrupted", true)

		settle := func(*Result, error) {
			// Drop the interrupted cycle's open handle before the status
			// settles so a joiner of the next cycle can never adopt it.
			e.openF.Store(nil)
			e.state.force(Closed)
			e.metrics.transitioned(e.name, Closed)
			e.logger.Info("closed")
			fut.Complete(nil, nil)
		}
		if open := e.openF.Load(); open != nil {
			open.whenDone(settle)
		} else {
			settle(nil, nil)
		}
		return fut
	}

	if e.state.cas(Opened, Closing) {
		fut := NewFuture()
		e.closeF.Store(fut)
		e.metrics.transitioned(e.name, Closing)
		e.logger.Debug("closing", "graceful", graceful, "inflight", e.drain.count())

		drainF := e.drain.begin()
		drainF.whenDone(func(*Result, error) {
			e.runClose().whenDone(func(_ *Result, err error) {
				if err != nil {
					e.logger.Warn("close hook failed", "err", err)
				}
				e.openF.Store(nil)
				e.state.force(Closed)
				e.metrics.transitioned(e.name, Closed)
				e.logger.Info("closed")
				fut.Complete(nil, nil)
			})
		})
		// Force the drain for non-graceful closes, and for graceful ones
		// with nothing in flight. A release racing this line is settled by
		// the future's resolve-once semantics.
		if !graceful || e.drain.count() == 0 {
			drainF.Complete(nil, nil)
		}
		return fut
	}

	for {
		switch st := e.state.load(); st {
		case Closing:
			if f := e.closeF.Load(); f != nil {
				return f
			}
			// The closing owner has not published its future yet.
			runtime.Gosched()
		case Closed:
			if f := e.closeF.Load(); f != nil {
				return f
			}
			// Never opened; nothing to tear down.
			return Resolved(nil)
		default:
			return Failed(fmt.Errorf("%w: close from %s", ErrIllegalState, st))
		}
	}
}

// runOpen acquires the endpoint's resources. The resolver is consulted once
// per open cycle with the endpoint's own identity, so expensive resolution
// (remote configuration, method matching) is warm before the first request;
// a resolution failure fails the cycle like any other acquisition failure.
func (e *Endpoint) runOpen() *Future {
	if e.resolver != nil {
		if _, err := e.resolver.Resolve(&Request{Service: e.service}); err != nil {
			return Failed(fmt.Errorf("resolve %s: %w", e.service, err))
		}
	}
	if e.hooks.Open == nil {
		return Resolved(nil)
	}
	if f := e.hooks.Open(); f != nil {
		return f
	}
	return Resolved(nil)
}

func (e *Endpoint) runClose() *Future {
	if e.hooks.Close == nil {
		return Resolved(nil)
	}
	if f := e.hooks.Close(); f != nil {
		return f
	}
	return Resolved(nil)
}
