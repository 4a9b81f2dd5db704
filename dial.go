// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/multierr"
)

// Dial connects to an RPC server using the default transport (ZAP).
// Transports registered by build tags are selected with WithTransport.
func Dial(ctx context.Context, addr string, opts ...DialOption) (Client, error) {
	o := &dialOptions{
		transport: DefaultTransport,
	}
	for _, opt := range opts {
		opt(o)
	}

	dial, _, ok := lookupTransport(o.transport)
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", o.transport)
	}
	return dial(ctx, addr, o)
}

// Listen creates an RPC server using the default transport (ZAP). Every
// service registered on the returned Server is backed by an Endpoint.
func Listen(addr string, opts ...ServerOption) (Server, error) {
	o := &serverOptions{
		transport: DefaultTransport,
	}
	for _, opt := range opts {
		opt(o)
	}

	_, listen, ok := lookupTransport(o.transport)
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", o.transport)
	}
	if listen == nil {
		return nil, fmt.Errorf("transport %s: server side not supported", o.transport)
	}
	return listen(addr, o)
}

// dialZAP creates a ZAP client
func dialZAP(ctx context.Context, addr string, o *dialOptions) (Client, error) {
	conn, err := ZAPDial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &zapClient{
		conn:  conn,
		codec: o.codec,
	}, nil
}

// listenZAP creates a ZAP server
func listenZAP(addr string, o *serverOptions) (Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	core := newServerCore(o)
	s := &zapServer{core: core}
	s.server = NewZAPServer(listener, ZAPHandlerFunc(core.dispatch))
	s.server.logger = core.logger
	return s, nil
}

// zapClient implements Client using ZAP transport
type zapClient struct {
	conn  *ZAPConn
	codec Codec
}

func (c *zapClient) Call(ctx context.Context, method string, args, reply interface{}) error {
	var payload []byte
	if args != nil {
		var err error
		if payload, err = encodeWith(c.codec, args); err != nil {
			return fmt.Errorf("encode args: %w", err)
		}
	}

	resp, err := c.conn.Call(ctx, method, payload)
	if err != nil {
		return err
	}

	if reply != nil && len(resp) > 0 {
		if err := decodeWith(c.codec, resp, reply); err != nil {
			return fmt.Errorf("decode reply: %w", err)
		}
	}
	return nil
}

func (c *zapClient) CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error) {
	return c.conn.Call(ctx, method, payload)
}

func (c *zapClient) Notify(ctx context.Context, method string, args interface{}) error {
	var payload []byte
	if args != nil {
		var err error
		if payload, err = encodeWith(c.codec, args); err != nil {
			return fmt.Errorf("encode args: %w", err)
		}
	}

	return c.conn.Notify(ctx, method, payload)
}

func (c *zapClient) Close() error {
	return c.conn.Close()
}

// zapServer implements Server over the ZAP transport. Requests decoded off
// the wire dispatch through the endpoint registry, so admission and drain
// semantics hold for every call.
type zapServer struct {
	core     *serverCore
	server   *ZAPServer
	stopOnce sync.Once
	stopErr  error
}

func (s *zapServer) Register(service string, chain Invoker, opts ...Option) (*Endpoint, error) {
	return s.core.Register(service, chain, opts...)
}

func (s *zapServer) RegisterRaw(method string, handler RawHandler) error {
	return s.core.RegisterRaw(method, handler)
}

func (s *zapServer) RegisterEndpoint(ep *Endpoint) error {
	return s.core.RegisterEndpoint(ep)
}

func (s *zapServer) Endpoint(service string) *Endpoint {
	return s.core.Endpoint(service)
}

func (s *zapServer) Serve(ctx context.Context) error {
	return s.server.Serve(ctx)
}

// Shutdown drains and closes all endpoints, then stops the transport,
// waiting for responses already owed to clients to reach the wire. If ctx
// ends first, the transport is torn down immediately; failing the in-flight
// wire calls releases the drains the graceful close waits on.
func (s *zapServer) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.core.closeEndpoints(true) }()

	select {
	case err := <-done:
		return multierr.Append(err, s.shutdown())
	case <-ctx.Done():
		return multierr.Append(ctx.Err(), s.stop())
	}
}

func (s *zapServer) Close() error {
	return multierr.Append(s.core.closeEndpoints(false), s.stop())
}

func (s *zapServer) stop() error {
	s.stopOnce.Do(func() { s.stopErr = s.server.Close() })
	return s.stopErr
}

func (s *zapServer) shutdown() error {
	s.stopOnce.Do(func() { s.stopErr = s.server.Shutdown() })
	return s.stopErr
}

func (s *zapServer) Addr() string {
	return s.server.Addr().String()
}
