// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// errUnknownMethod reports a wire method with no registered endpoint.
// Transports map it onto their protocol's not-found shape.
var errUnknownMethod = errors.New("unknown method")

// serverCore is the transport-independent half of a Server: the endpoint
// registry, the registration flow and wire-method dispatch. Transport
// servers embed one and feed it decoded (method, payload) pairs.
type serverCore struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *Metrics
	codec    Codec
}

func newServerCore(o *serverOptions) *serverCore {
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &serverCore{
		registry: NewRegistry(),
		logger:   logger,
		metrics:  o.metrics,
		codec:    o.codec,
	}
}

// Register builds an endpoint for service around chain, applies the
// server-wide logger and metrics, opens it and waits for the open cycle to
// settle. A failed open unregisters the endpoint again.
func (s *serverCore) Register(service string, chain Invoker, opts ...Option) (*Endpoint, error) {
	base := make([]Option, 0, len(opts)+2)
	base = append(base, WithLogger(s.logger))
	if s.metrics != nil {
		base = append(base, WithMetrics(s.metrics))
	}
	ep := New(service, chain, append(base, opts...)...)
	if err := s.RegisterEndpoint(ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// RegisterEndpoint registers a pre-built endpoint, opens it and waits for
// the open cycle to settle. A failed open unregisters the endpoint again.
func (s *serverCore) RegisterEndpoint(ep *Endpoint) error {
	if err := s.registry.Put(ep); err != nil {
		return err
	}
	if err := ep.Open().Err(); err != nil {
		s.registry.Remove(ep.Name())
		return err
	}
	return nil
}

// RegisterRaw registers handler as a single-operation service named method.
func (s *serverCore) RegisterRaw(method string, handler RawHandler) error {
	_, err := s.Register(method, &HandlerInvoker{Handler: handler})
	return err
}

// Endpoint returns the endpoint registered for service, or nil.
func (s *serverCore) Endpoint(service string) *Endpoint {
	return s.registry.Get(service)
}

// dispatch routes a decoded wire call through its endpoint and blocks for
// the outcome. Exact service names win; otherwise "service.method" splits
// at the first dot. Admission, draining and completion hooks all apply
// before the response bytes leave this function.
func (s *serverCore) dispatch(ctx context.Context, wire string, payload []byte) ([]byte, error) {
	service, method := wire, ""
	ep := s.registry.Lookup(service)
	if ep == nil {
		if i := strings.IndexByte(wire, '.'); i >= 0 {
			service, method = wire[:i], wire[i+1:]
			ep = s.registry.Lookup(service)
		}
	}
	if ep == nil {
		return nil, fmt.Errorf("%w: %s", errUnknownMethod, wire)
	}

	res, err := ep.Call(ctx, NewRequest(service, method, payload))
	if err != nil {
		return nil, err
	}
	return res.Payload, nil
}

// closeEndpoints tears down every registered endpoint and waits.
func (s *serverCore) closeEndpoints(graceful bool) error {
	return s.registry.CloseAll(graceful)
}
