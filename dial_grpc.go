//go:build grpc

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

func init() {
	// Register gRPC transport when build tag is enabled
	registerTransport(TransportGRPC, dialGRPC, listenGRPC)
}

// rawCodec hands message bytes to grpc untouched. Both halves of this
// transport force it, so no generated stubs or proto descriptors are
// needed; the endpoint codec handles typed values above the wire.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	}
	return nil, fmt.Errorf("raw codec: unsupported type %T", v)
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec: unsupported type %T", v)
	}
	*b = data
	return nil
}

func (rawCodec) Name() string { return "raw" }

// grpcPath maps a wire name onto gRPC's /service/method form, splitting at
// the first dot the way server-side dispatch does.
func grpcPath(wire string) string {
	if i := strings.IndexByte(wire, '.'); i >= 0 {
		return "/" + wire[:i] + "/" + wire[i+1:]
	}
	return "/" + wire + "/"
}

func dialGRPC(ctx context.Context, addr string, o *dialOptions) (Client, error) {
	conn, err := grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &grpcClient{conn: conn, codec: o.codec}, nil
}

// grpcClient implements Client over a gRPC ClientConn. Typed calls encode
// through the endpoint codec and travel as raw frames.
type grpcClient struct {
	conn  *grpc.ClientConn
	codec Codec
}

func (c *grpcClient) Call(ctx context.Context, method string, args, reply interface{}) error {
	data, err := encodeWith(c.codec, args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	resp, err := c.CallRaw(ctx, method, data)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	return decodeWith(c.codec, resp, reply)
}

func (c *grpcClient) CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error) {
	var resp []byte
	if err := c.conn.Invoke(ctx, grpcPath(method), payload, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Notify calls and discards the response. gRPC has no one-way calls, so
// unlike ZAP notifications this blocks until the server answers.
func (c *grpcClient) Notify(ctx context.Context, method string, args interface{}) error {
	data, err := encodeWith(c.codec, args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	var resp []byte
	return c.conn.Invoke(ctx, grpcPath(method), data, &resp)
}

func (c *grpcClient) Close() error {
	return c.conn.Close()
}

func listenGRPC(addr string, o *serverOptions) (Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &grpcServer{core: newServerCore(o), ln: ln}
	s.srv = grpc.NewServer(
		grpc.ForceServerCodec(rawCodec{}),
		grpc.UnknownServiceHandler(s.handle),
	)
	return s, nil
}

// grpcServer implements Server on a grpc.Server without generated stubs:
// every call lands in the unknown-service handler and dispatches through
// the endpoint registry like the other transports.
type grpcServer struct {
	core *serverCore
	ln   net.Listener
	srv  *grpc.Server
}

// handle serves one unary call from the unknown-service path. The gRPC
// /service/method name flattens back to wire form before dispatch.
func (s *grpcServer) handle(_ interface{}, stream grpc.ServerStream) error {
	full, ok := grpc.MethodFromServerStream(stream)
	if !ok {
		return status.Error(codes.Internal, "no method in stream")
	}
	var payload []byte
	if err := stream.RecvMsg(&payload); err != nil {
		return err
	}
	wire := strings.Replace(strings.TrimPrefix(full, "/"), "/", ".", 1)
	data, err := s.core.dispatch(stream.Context(), wire, payload)
	if err != nil {
		return status.Error(grpcCode(err), err.Error())
	}
	return stream.SendMsg(data)
}

// grpcCode maps dispatch failures onto gRPC status codes.
func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, errUnknownMethod):
		return codes.Unimplemented
	case errors.Is(err, ErrUnavailable):
		return codes.Unavailable
	case errors.Is(err, ErrIllegalState):
		return codes.FailedPrecondition
	}
	return codes.Unknown
}

func (s *grpcServer) Register(service string, chain Invoker, opts ...Option) (*Endpoint, error) {
	return s.core.Register(service, chain, opts...)
}

func (s *grpcServer) RegisterRaw(method string, handler RawHandler) error {
	return s.core.RegisterRaw(method, handler)
}

func (s *grpcServer) RegisterEndpoint(ep *Endpoint) error {
	return s.core.RegisterEndpoint(ep)
}

func (s *grpcServer) Endpoint(service string) *Endpoint {
	return s.core.Endpoint(service)
}

func (s *grpcServer) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.srv.Stop() })
	defer stop()
	if err := s.srv.Serve(s.ln); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

func (s *grpcServer) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.core.closeEndpoints(true) }()

	select {
	case err := <-done:
		s.srv.GracefulStop()
		return err
	case <-ctx.Done():
		s.srv.Stop()
		return ctx.Err()
	}
}

func (s *grpcServer) Close() error {
	err := s.core.closeEndpoints(false)
	s.srv.Stop()
	return err
}

func (s *grpcServer) Addr() string {
	return s.ln.Addr().String()
}
