//go:build json

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

func init() {
	// Register JSON-RPC transport when build tag is enabled
	registerTransport(TransportJSON, dialJSON, listenJSON)
}

func dialJSON(ctx context.Context, addr string, o *dialOptions) (Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("json dial: %w", err)
	}
	return &jsonClient{base: u, codec: o.codec}, nil
}

// jsonClient implements Client over JSON-RPC 2.0 HTTP. Connections are per
// request, so Dial only validates the address.
type jsonClient struct {
	base  *url.URL
	codec Codec
}

func (c *jsonClient) Call(ctx context.Context, method string, args, reply interface{}) error {
	u := *c.base
	return SendJSONRequest(ctx, &u, method, args, reply)
}

// CallRaw sends payload as the params value. On this transport the payload
// must be valid JSON; the reply is the raw result value.
func (c *jsonClient) CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error) {
	params := json.RawMessage(payload)
	if len(payload) == 0 {
		params = json.RawMessage("null")
	}
	var reply json.RawMessage
	u := *c.base
	if err := SendJSONRequest(ctx, &u, method, &params, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Notify sends a JSON-RPC notification: a request without an id, so no
// response is expected or read.
func (c *jsonClient) Notify(ctx context.Context, method string, args interface{}) error {
	params, err := encodeWith(c.codec, args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	body, err := json.Marshal(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"method":  json.RawMessage(fmt.Sprintf("%q", method)),
		"params":  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := newHTTPClient().Do(req)
	if err != nil {
		return err
	}
	return CleanlyCloseBody(resp.Body)
}

func (c *jsonClient) Close() error {
	return nil
}

func listenJSON(addr string, o *serverOptions) (Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &jsonServer{core: newServerCore(o), ln: ln}
	s.http = &http.Server{Handler: http.HandlerFunc(s.handle)}
	return s, nil
}

// jsonServer implements Server over JSON-RPC 2.0 HTTP. Wire methods
// dispatch through the endpoint registry like every other transport.
type jsonServer struct {
	core     *serverCore
	ln       net.Listener
	http     *http.Server
	stopOnce sync.Once
	stopErr  error
}

type jsonRequest struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

func (s *jsonServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req jsonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json-rpc request", http.StatusBadRequest)
		return
	}

	data, err := s.core.dispatch(r.Context(), req.Method, req.Params)

	// Notifications carry no id and get no response body.
	if len(req.ID) == 0 || string(req.ID) == "null" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      req.ID,
	}
	if err != nil {
		msg, merr := json.Marshal(err.Error())
		if merr != nil {
			msg = []byte(`"internal error"`)
		}
		resp["error"] = json.RawMessage(fmt.Sprintf(`{"code":-32000,"message":%s}`, msg))
	} else {
		// Handlers on this transport produce JSON result values.
		if len(data) == 0 {
			data = []byte("null")
		}
		resp["result"] = json.RawMessage(data)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.core.logger.Debug("jsonrpc response write failed", "err", err)
	}
}

func (s *jsonServer) Register(service string, chain Invoker, opts ...Option) (*Endpoint, error) {
	return s.core.Register(service, chain, opts...)
}

func (s *jsonServer) RegisterRaw(method string, handler RawHandler) error {
	return s.core.RegisterRaw(method, handler)
}

func (s *jsonServer) RegisterEndpoint(ep *Endpoint) error {
	return s.core.RegisterEndpoint(ep)
}

func (s *jsonServer) Endpoint(service string) *Endpoint {
	return s.core.Endpoint(service)
}

func (s *jsonServer) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.stop() })
	defer stop()
	if err := s.http.Serve(s.ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *jsonServer) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.core.closeEndpoints(true) }()

	select {
	case err := <-done:
		return multierr.Append(err, s.http.Shutdown(ctx))
	case <-ctx.Done():
		return multierr.Append(ctx.Err(), s.stop())
	}
}

func (s *jsonServer) Close() error {
	return multierr.Append(s.core.closeEndpoints(false), s.stop())
}

func (s *jsonServer) stop() error {
	s.stopOnce.Do(func() { s.stopErr = s.http.Close() })
	return s.stopErr
}

func (s *jsonServer) Addr() string {
	return s.ln.Addr().String()
}
