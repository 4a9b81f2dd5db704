// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestSendJSONRequest(t *testing.T) {
	var gotMethod, gotHeader, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Method string          `json:"method"`
			ID     json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotMethod = req.Method
		gotHeader = r.Header.Get("X-Tenant")
		gotQuery = r.URL.Query().Get("chain")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":{"height":42}}`, req.ID)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var reply struct {
		Height int `json:"height"`
	}
	err = SendJSONRequest(context.Background(), u, "chain.height", struct{}{}, &reply,
		WithQueryParam("chain", "X"), WithHeader("X-Tenant", "t1"))
	if err != nil {
		t.Fatalf("SendJSONRequest: %v", err)
	}

	if reply.Height != 42 {
		t.Errorf("height = %d, want 42", reply.Height)
	}
	if gotMethod != "chain.height" {
		t.Errorf("method = %q, want %q", gotMethod, "chain.height")
	}
	if gotHeader != "t1" {
		t.Errorf("X-Tenant = %q, want %q", gotHeader, "t1")
	}
	if gotQuery != "X" {
		t.Errorf("chain = %q, want %q", gotQuery, "X")
	}
}

func TestSendJSONRequestErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"no route to service"}}`)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	var reply json.RawMessage
	err := SendJSONRequest(context.Background(), u, "trade.submit", nil, &reply)
	if err == nil || !strings.Contains(err.Error(), "no route to service") {
		t.Fatalf("err = %v, want the server's error message", err)
	}
}

func TestSendJSONRequestBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	var reply json.RawMessage
	err := SendJSONRequest(context.Background(), u, "trade.submit", nil, &reply)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err = %v, want status failure", err)
	}
}

func TestSendJSONRequestRetriesTransportErrors(t *testing.T) {
	// Grab a port with nothing on it so every attempt is refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u, _ := url.Parse(srv.URL)
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var reply json.RawMessage
	err := SendJSONRequest(ctx, u, "trade.submit", nil, &reply)
	if err == nil || !strings.Contains(err.Error(), "after 3 retries") {
		t.Fatalf("err = %v, want exhausted retries", err)
	}
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{io.EOF, true},
		{fmt.Errorf("read failed: %w", io.EOF), true},
		{errors.New("read tcp 127.0.0.1: connection reset by peer"), true},
		{errors.New("dial tcp 127.0.0.1: connection refused"), true},
		{errors.New("write tcp 127.0.0.1: broken pipe"), true},
		{errors.New("no route to host"), false},
	}
	for _, c := range cases {
		if got := isRetryableError(c.err); got != c.want {
			t.Errorf("isRetryableError(%v) = %t, want %t", c.err, got, c.want)
		}
	}
}

func TestCleanlyCloseBody(t *testing.T) {
	if err := CleanlyCloseBody(nil); err != nil {
		t.Fatalf("nil body: %v", err)
	}
	if err := CleanlyCloseBody(io.NopCloser(strings.NewReader("leftover"))); err != nil {
		t.Fatalf("unread body: %v", err)
	}
}
