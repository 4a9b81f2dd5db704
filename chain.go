// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HandlerInvoker adapts a RawHandler into an Invoker. Each invocation runs
// on its own goroutine, mirroring how the ZAP server dispatches requests.
type HandlerInvoker struct {
	Handler RawHandler
}

// Invoke runs the handler and settles the returned future with its outcome.
func (h *HandlerInvoker) Invoke(ctx context.Context, req *Request) *Future {
	out := NewFuture()
	go func() {
		data, err := h.Handler(ctx, req.Payload)
		if err != nil {
			out.Complete(failure(err), err)
			return
		}
		out.Complete(&Result{Payload: data}, nil)
	}()
	return out
}

// ClientInvoker is the consumer-side chain: it dials on open, hangs up on
// close and forwards invocations over the dialed client. Wire it into an
// endpoint with its Hooks so connection lifetime follows endpoint lifetime:
//
//	inv := endpoint.NewClientInvoker("localhost:9000")
//	ep := endpoint.New("trade", inv, endpoint.WithHooks(inv.Hooks()))
type ClientInvoker struct {
	addr        string
	dialOpts    []DialOption
	dialTimeout time.Duration

	mu     sync.Mutex
	client Client
}

// NewClientInvoker returns a ClientInvoker targeting addr. The connection
// is not dialed until the owning endpoint opens.
func NewClientInvoker(addr string, opts ...DialOption) *ClientInvoker {
	return &ClientInvoker{
		addr:        addr,
		dialOpts:    opts,
		dialTimeout: 10 * time.Second,
	}
}

// SetDialTimeout bounds the dial performed by the open hook.
func (c *ClientInvoker) SetDialTimeout(d time.Duration) {
	c.dialTimeout = d
}

// Hooks returns lifecycle hooks that dial on open and hang up on close.
func (c *ClientInvoker) Hooks() Hooks {
	return Hooks{Open: c.dial, Close: c.hangup}
}

func (c *ClientInvoker) dial() *Future {
	out := NewFuture()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
		defer cancel()
		cl, err := Dial(ctx, c.addr, c.dialOpts...)
		if err != nil {
			out.Complete(nil, fmt.Errorf("dial %s: %w", c.addr, err))
			return
		}
		c.mu.Lock()
		c.client = cl
		c.mu.Unlock()
		out.Complete(nil, nil)
	}()
	return out
}

func (c *ClientInvoker) hangup() *Future {
	out := NewFuture()
	go func() {
		c.mu.Lock()
		cl := c.client
		c.client = nil
		c.mu.Unlock()
		if cl != nil {
			out.Complete(nil, cl.Close())
			return
		}
		out.Complete(nil, nil)
	}()
	return out
}

// Invoke forwards req over the dialed client. A per-call timeout from the
// resolved options bounds the wire call, and resolved metadata merges into
// the request with request-level keys winning.
func (c *ClientInvoker) Invoke(ctx context.Context, req *Request) *Future {
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()
	if cl == nil {
		return Failed(fmt.Errorf("client %s: not connected", c.addr))
	}

	out := NewFuture()
	go func() {
		callCtx := ctx
		if req.Options != nil && req.Options.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, req.Options.Timeout)
			defer cancel()
		}
		mergeMetadata(req)
		data, err := cl.CallRaw(callCtx, req.wire(), req.Payload)
		if err != nil {
			out.Complete(failure(err), err)
			return
		}
		out.Complete(&Result{Payload: data}, nil)
	}()
	return out
}

// mergeMetadata folds resolved option metadata into req. Request keys win.
func mergeMetadata(req *Request) {
	if req.Options == nil || len(req.Options.Metadata) == 0 {
		return
	}
	if req.Metadata == nil {
		req.Metadata = make(map[string]string, len(req.Options.Metadata))
	}
	for k, v := range req.Options.Metadata {
		if _, ok := req.Metadata[k]; !ok {
			req.Metadata[k] = v
		}
	}
}
