// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/keymesh/lib/codec"
	"github.com/bureau-foundation/keymesh/lib/testutil"
)

// sendRequest connects to a Unix socket, sends a CBOR request, and
// returns the decoded response envelope.
func sendRequest(t *testing.T, socketPath string, request any) Response {
	t.Helper()

	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to socket: %v", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return response
}

// startServer registers handlers, serves on a fresh socket, and stops
// the server when the test ends.
func startServer(t *testing.T, register func(*SocketServer)) string {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "node.sock")
	server := NewSocketServer(socketPath, testutil.Logger(t))
	register(server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "server shutdown"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})

	select {
	case <-server.Ready():
	case err := <-done:
		t.Fatalf("Serve exited early: %v", err)
	}
	return socketPath
}

type echoRequest struct {
	Action string `cbor:"action"`
	Text   string `cbor:"text"`
}

type echoResponse struct {
	Text string `cbor:"text"`
}

func echoHandler(_ context.Context, raw []byte) (any, error) {
	var request echoRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	if request.Text == "" {
		return nil, errors.New("text is required")
	}
	return echoResponse{Text: strings.ToUpper(request.Text)}, nil
}

func TestSocketServerDispatch(t *testing.T) {
	socketPath := startServer(t, func(server *SocketServer) {
		server.Handle("echo", echoHandler)
		server.Handle("ping", func(context.Context, []byte) (any, error) { return nil, nil })
	})

	response := sendRequest(t, socketPath, map[string]any{"action": "echo", "text": "hello"})
	if !response.OK {
		t.Fatalf("echo failed: %s", response.Error)
	}
	var echoed echoResponse
	if err := codec.Unmarshal(response.Data, &echoed); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if echoed.Text != "HELLO" {
		t.Errorf("echo = %q", echoed.Text)
	}

	response = sendRequest(t, socketPath, map[string]any{"action": "ping"})
	if !response.OK || len(response.Data) != 0 {
		t.Errorf("ping response = %+v, want bare ok", response)
	}
}

func TestSocketServerErrors(t *testing.T) {
	socketPath := startServer(t, func(server *SocketServer) {
		server.Handle("echo", echoHandler)
	})

	tests := []struct {
		name    string
		request any
		want    string
	}{
		{"unknown action", map[string]any{"action": "launch"}, `unknown action "launch"`},
		{"missing action", map[string]any{"text": "x"}, "missing required field: action"},
		{"not a map", []int{1, 2}, "invalid request"},
		{"handler error", map[string]any{"action": "echo"}, "text is required"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			response := sendRequest(t, socketPath, test.request)
			if response.OK {
				t.Fatal("expected failure")
			}
			if !strings.Contains(response.Error, test.want) {
				t.Errorf("error = %q, want it to contain %q", response.Error, test.want)
			}
		})
	}
}

func TestSocketServerPermissions(t *testing.T) {
	socketPath := startServer(t, func(*SocketServer) {})

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("socket mode = %o, want 600", perm)
	}
}

func TestHandleDuplicatePanics(t *testing.T) {
	server := NewSocketServer("/unused", testutil.Logger(t))
	server.Handle("status", func(context.Context, []byte) (any, error) { return nil, nil })

	defer func() {
		if recover() == nil {
			t.Fatal("duplicate Handle did not panic")
		}
	}()
	server.Handle("status", func(context.Context, []byte) (any, error) { return nil, nil })
}
