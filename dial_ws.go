//go:build ws

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
)

// ErrWSClosed is returned when operating on a closed WebSocket connection.
var ErrWSClosed = errors.New("ws: connection closed")

func init() {
	// Register WebSocket transport when build tag is enabled
	registerTransport(TransportWS, dialWS, listenWS)
}

// WebSocket messages are already length-delimited, so frames reuse the ZAP
// body layout without the length prefix:
//
//	request:  [1 type][4 reqID][2 methodLen][method][payload]
//	response: [1 type][4 reqID][payload]
//	notify:   [1 type][2 methodLen][method][payload]

func dialWS(ctx context.Context, addr string, o *dialOptions) (Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	c := &wsClient{
		conn:     conn,
		codec:    o.codec,
		readDone: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// wsClient implements Client over a WebSocket connection.
type wsClient struct {
	conn     *websocket.Conn
	codec    Codec
	writeMu  sync.Mutex
	pending  sync.Map // requestID -> chan *ZAPResponse
	nextID   atomic.Uint32
	closed   atomic.Bool
	readDone chan struct{}
}

func (c *wsClient) Call(ctx context.Context, method string, args, reply interface{}) error {
	var payload []byte
	if args != nil {
		var err error
		if payload, err = encodeWith(c.codec, args); err != nil {
			return fmt.Errorf("encode args: %w", err)
		}
	}

	resp, err := c.CallRaw(ctx, method, payload)
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

func (c *wsClient) CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrWSClosed
	}

	requestID := c.nextID.Add(1)
	respCh := make(chan *ZAPResponse, 1)
	c.pending.Store(requestID, respCh)
	defer c.pending.Delete(requestID)

	methodBytes := []byte(method)
	buf := make([]byte, 1+4+2+len(methodBytes)+len(payload))
	buf[0] = byte(MsgRequest)
	binary.BigEndian.PutUint32(buf[1:5], requestID)
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(methodBytes)))
	copy(buf[7:], methodBytes)
	copy(buf[7+len(methodBytes):], payload)

	c.writeMu.Lock()
	err := c.conn.WriteMessage(websocket.BinaryMessage, buf)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("ws write: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.Err != nil {
			return nil, resp.Err
		}
		return resp.Data, nil
	case <-c.readDone:
		return nil, ErrWSClosed
	}
}

func (c *wsClient) Notify(ctx context.Context, method string, args interface{}) error {
	if c.closed.Load() {
		return ErrWSClosed
	}

	var payload []byte
	if args != nil {
		var err error
		if payload, err = encodeWith(c.codec, args); err != nil {
			return fmt.Errorf("encode args: %w", err)
		}
	}

	methodBytes := []byte(method)
	buf := make([]byte, 1+2+len(methodBytes)+len(payload))
	buf[0] = byte(MsgNotify)
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(methodBytes)))
	copy(buf[3:], methodBytes)
	copy(buf[3+len(methodBytes):], payload)

	c.writeMu.Lock()
	err := c.conn.WriteMessage(websocket.BinaryMessage, buf)
	c.writeMu.Unlock()
	return err
}

func (c *wsClient) readLoop() {
	defer close(c.readDone)

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if len(msg) < 5 {
			continue
		}

		msgType := MessageType(msg[0])
		requestID := binary.BigEndian.Uint32(msg[1:5])
		payload := msg[5:]

		if ch, ok := c.pending.Load(requestID); ok {
			respCh := ch.(chan *ZAPResponse)
			switch msgType {
			case MsgResponse:
				respCh <- &ZAPResponse{Data: payload}
			case MsgError:
				respCh <- &ZAPResponse{Err: errors.New(string(payload))}
			}
		}
	}
}

func (c *wsClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func listenWS(addr string, o *serverOptions) (Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &wsServer{core: newServerCore(o), ln: ln}
	s.http = &http.Server{Handler: s}
	return s, nil
}

// wsServer implements Server over WebSocket connections. Each upgraded
// connection runs its own read loop; requests dispatch through the endpoint
// registry like every other transport.
type wsServer struct {
	core     *serverCore
	ln       net.Listener
	http     *http.Server
	upgrader websocket.Upgrader
	conns    sync.Map
	stopOnce sync.Once
	stopErr  error
}

func (s *wsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.core.logger.Debug("ws upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	s.handleConn(r.Context(), conn)
}

func (s *wsServer) handleConn(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	s.conns.Store(conn, struct{}{})
	defer s.conns.Delete(conn)

	var writeMu sync.Mutex
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if len(msg) < 1 {
			continue
		}

		switch MessageType(msg[0]) {
		case MsgRequest:
			if len(msg) < 7 {
				continue
			}
			requestID := binary.BigEndian.Uint32(msg[1:5])
			methodLen := binary.BigEndian.Uint16(msg[5:7])
			if len(msg) < 7+int(methodLen) {
				continue
			}
			method := string(msg[7 : 7+methodLen])
			payload := msg[7+methodLen:]

			go func() {
				data, err := s.core.dispatch(ctx, method, payload)
				s.sendResponse(conn, &writeMu, requestID, data, err)
			}()

		case MsgNotify:
			if len(msg) < 3 {
				continue
			}
			methodLen := binary.BigEndian.Uint16(msg[1:3])
			if len(msg) < 3+int(methodLen) {
				continue
			}
			method := string(msg[3 : 3+methodLen])
			payload := msg[3+methodLen:]
			go s.core.dispatch(ctx, method, payload)
		}
	}
}

func (s *wsServer) sendResponse(conn *websocket.Conn, writeMu *sync.Mutex, requestID uint32, data []byte, err error) {
	var msgType MessageType
	var payload []byte
	if err != nil {
		msgType = MsgError
		payload = []byte(err.Error())
	} else {
		msgType = MsgResponse
		payload = data
	}

	buf := make([]byte, 1+4+len(payload))
	buf[0] = byte(msgType)
	binary.BigEndian.PutUint32(buf[1:5], requestID)
	copy(buf[5:], payload)

	writeMu.Lock()
	defer writeMu.Unlock()
	if werr := conn.WriteMessage(websocket.BinaryMessage, buf); werr != nil {
		s.core.logger.Debug("ws response write failed", "request", requestID, "err", werr)
	}
}

func (s *wsServer) Register(service string, chain Invoker, opts ...Option) (*Endpoint, error) {
	return s.core.Register(service, chain, opts...)
}

func (s *wsServer) RegisterRaw(method string, handler RawHandler) error {
	return s.core.RegisterRaw(method, handler)
}

func (s *wsServer) RegisterEndpoint(ep *Endpoint) error {
	return s.core.RegisterEndpoint(ep)
}

func (s *wsServer) Endpoint(service string) *Endpoint {
	return s.core.Endpoint(service)
}

func (s *wsServer) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.stop() })
	defer stop()
	if err := s.http.Serve(s.ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *wsServer) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.core.closeEndpoints(true) }()

	select {
	case err := <-done:
		return multierr.Append(err, s.stop())
	case <-ctx.Done():
		return multierr.Append(ctx.Err(), s.stop())
	}
}

func (s *wsServer) Close() error {
	return multierr.Append(s.core.closeEndpoints(false), s.stop())
}

// stop closes the HTTP listener and every upgraded connection; upgraded
// connections are hijacked from the HTTP server, so it cannot close them
// itself.
func (s *wsServer) stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.http.Close()
		s.conns.Range(func(key, _ interface{}) bool {
			key.(*websocket.Conn).Close()
			return true
		})
	})
	return s.stopErr
}

func (s *wsServer) Addr() string {
	return s.ln.Addr().String()
}
