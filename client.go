// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"io"
	"log/slog"
)

// Client is the protocol-agnostic RPC client interface. Application code
// should use this interface, or wrap it in a ClientInvoker to get lifecycle
// management on top.
type Client interface {
	// Call makes a synchronous RPC call
	Call(ctx context.Context, method string, args, reply interface{}) error

	// CallRaw makes a call with raw bytes (for zero-copy scenarios)
	CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error)

	// Notify sends a one-way message (no response expected)
	Notify(ctx context.Context, method string, args interface{}) error

	// Close closes the connection
	Close() error
}

// Server is the protocol-agnostic RPC server interface. Every registered
// service is backed by an Endpoint, so admission, draining and lifecycle
// semantics apply uniformly across transports.
type Server interface {
	// Register creates an endpoint for service backed by chain, opens it
	// and waits for the open cycle to settle.
	Register(service string, chain Invoker, opts ...Option) (*Endpoint, error)

	// RegisterRaw registers a raw byte handler as a single-operation
	// service named method.
	RegisterRaw(method string, handler RawHandler) error

	// RegisterEndpoint registers a pre-built endpoint, opens it and waits
	// for the open cycle to settle. Use it for endpoints that need options
	// Register does not apply, such as system endpoints.
	RegisterEndpoint(ep *Endpoint) error

	// Endpoint returns the endpoint registered for service, or nil.
	Endpoint(service string) *Endpoint

	// Serve starts serving requests (blocks until context cancelled)
	Serve(ctx context.Context) error

	// Shutdown closes all endpoints gracefully, waiting for in-flight
	// requests to drain, then stops the transport. If ctx ends first the
	// transport is torn down immediately and ctx's error returned.
	Shutdown(ctx context.Context) error

	// Close force-closes all endpoints and stops the transport.
	Close() error

	// Addr returns the server's listen address
	Addr() string
}

// RawHandler handles raw byte RPC calls (for zero-copy)
type RawHandler func(ctx context.Context, payload []byte) ([]byte, error)

// Codec encodes/decodes RPC messages
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// Transport represents the underlying transport mechanism
type Transport interface {
	io.Closer
	Send(ctx context.Context, data []byte) error
	Recv(ctx context.Context) ([]byte, error)
}

// DialOption configures client connections
type DialOption func(*dialOptions)

type dialOptions struct {
	codec     Codec
	transport string // "zap", "grpc", "json", "ws"
}

// WithCodec sets a custom codec
func WithCodec(c Codec) DialOption {
	return func(o *dialOptions) { o.codec = c }
}

// WithTransport explicitly sets the transport type
func WithTransport(t string) DialOption {
	return func(o *dialOptions) { o.transport = t }
}

// ServerOption configures servers
type ServerOption func(*serverOptions)

type serverOptions struct {
	codec     Codec
	transport string
	logger    *slog.Logger
	metrics   *Metrics
}

// WithServerCodec sets a custom codec for the server
func WithServerCodec(c Codec) ServerOption {
	return func(o *serverOptions) { o.codec = c }
}

// WithServerTransport explicitly sets the transport type for the server
func WithServerTransport(t string) ServerOption {
	return func(o *serverOptions) { o.transport = t }
}

// WithServerLogger sets the logger shared by the server and the endpoints
// it registers. Defaults to slog.Default.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// WithServerMetrics attaches a collector set shared by all endpoints the
// server registers.
func WithServerMetrics(m *Metrics) ServerOption {
	return func(o *serverOptions) { o.metrics = m }
}
