// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"errors"
	"fmt"
)

var errNilFuture = errors.New("endpoint: invoker returned nil future")

// Invoke runs req through the endpoint and returns the outcome future.
//
// Admission: requests are refused while the process drains or the endpoint
// is not Opened, unless the endpoint is a system endpoint. Refused requests
// still reach the completion hook, carrying a synthesized failure result.
//
// Admitted requests are counted in flight until their invoker settles. The
// outcome future settles only after the in-flight release and the
// completion hook have both run, so a drain observed as complete implies
// all bookkeeping for the drained requests is done.
func (e *Endpoint) Invoke(ctx context.Context, req *Request) *Future {
	if (Draining() || e.state.load() != Opened) && !e.system {
		return e.refuse(req)
	}

	e.drain.admit()
	e.metrics.admitted(e.name)

	out := NewFuture()
	e.dispatch(ctx, req).whenDone(func(res *Result, err error) {
		e.drain.release()
		if res == nil {
			res = failure(err)
		}
		e.metrics.released(e.name, res.Err)
		e.finish(req, res)
		out.Complete(res, err)
	})
	return out
}

// Call invokes req and blocks for the outcome. If ctx ends first, Call
// returns the context error; the invocation itself keeps running and is
// still released and reported through the completion hook.
func (e *Endpoint) Call(ctx context.Context, req *Request) (*Result, error) {
	f := e.Invoke(ctx, req)
	select {
	case <-f.Done():
		return f.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// refuse rejects req at admission. Options are attached best-effort so the
// completion hook sees the same shape as an executed request; resolver
// failures here are swallowed because the rejection error already stands.
func (e *Endpoint) refuse(req *Request) *Future {
	if req.Options == nil && e.resolver != nil {
		if opts, err := e.resolver.Resolve(req); err == nil {
			req.Options = opts
		}
	}
	err := &Error{Endpoint: e.name, Method: req.Method, Err: e.rejectErr}
	res := failure(err)
	e.metrics.refused(e.name)
	e.logger.Debug("refused", "request", req.ID, "method", req.Method)
	e.finish(req, res)

	out := NewFuture()
	out.Complete(res, err)
	return out
}

// dispatch resolves options and hands req to the chain. Synchronous
// failures are canonicalized into *Error; failures the chain reports
// through its future pass through with their kind untouched.
func (e *Endpoint) dispatch(ctx context.Context, req *Request) (fut *Future) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("invoker panic", "request", req.ID, "panic", r)
			fut = Failed(invocationError(e.name, req, fmt.Errorf("invoker panic: %v", r)))
		}
	}()

	if req.Options == nil && e.resolver != nil {
		opts, err := e.resolver.Resolve(req)
		if err != nil {
			return Failed(invocationError(e.name, req, err))
		}
		req.Options = opts
	}
	if e.chain == nil {
		return Failed(invocationError(e.name, req, ErrNoInvoker))
	}
	if fut = e.chain.Invoke(ctx, req); fut == nil {
		return Failed(invocationError(e.name, req, errNilFuture))
	}
	return fut
}

// finish runs the completion hook. A panicking hook is contained so the
// pipeline's bookkeeping and the outcome future stay intact.
func (e *Endpoint) finish(req *Request, res *Result) {
	if e.onDone == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("completion hook panic", "request", req.ID, "panic", r)
		}
	}()
	e.onDone(req, res)
}
