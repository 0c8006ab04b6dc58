// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

// mockHTTPServer implements HTTPServer for testing.
type mockHTTPServer struct {
	serveErr     error
	serveBlocks  bool
	shutdownErr  error
	shutdownSeen atomic.Bool
	release      chan struct{}
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{serveBlocks: true, release: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	if m.serveBlocks {
		<-m.release
		return http.ErrServerClosed
	}
	return m.serveErr
}

func (m *mockHTTPServer) Shutdown(ctx context.Context) error {
	m.shutdownSeen.Store(true)
	close(m.release)
	return m.shutdownErr
}

func TestServeGracefulShutdown(t *testing.T) {
	mock := newMockHTTPServer()
	svc := NewHTTPServerService(mock, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx)
	}()

	// Let the serve goroutine start, then request shutdown.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled after graceful shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	if !mock.shutdownSeen.Load() {
		t.Error("Shutdown was never called")
	}
}

func TestServeReturnsStartupError(t *testing.T) {
	mock := &mockHTTPServer{serveErr: errors.New("bind: address already in use")}
	svc := NewHTTPServerService(mock, time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("expected startup failure to propagate")
	}
	if !errors.Is(err, mock.serveErr) {
		t.Errorf("expected wrapped startup error, got %v", err)
	}
}

func TestServeTreatsServerClosedAsClean(t *testing.T) {
	mock := &mockHTTPServer{serveErr: http.ErrServerClosed}
	svc := NewHTTPServerService(mock, time.Second)

	if err := svc.Serve(context.Background()); err != nil {
		t.Errorf("ErrServerClosed must map to nil, got %v", err)
	}
}

func TestServeShutdownFailure(t *testing.T) {
	mock := newMockHTTPServer()
	mock.shutdownErr = errors.New("connections still draining")
	svc := NewHTTPServerService(mock, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil || !errors.Is(err, mock.shutdownErr) {
			t.Errorf("expected shutdown error to propagate, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestNewHTTPServerServiceDefaultsTimeout(t *testing.T) {
	svc := NewHTTPServerService(newMockHTTPServer(), 0)
	if svc.shutdownTimeout <= 0 {
		t.Error("zero timeout must fall back to a positive default")
	}
}

func TestString(t *testing.T) {
	svc := NewHTTPServerService(newMockHTTPServer(), time.Second)
	if svc.String() != "http-server" {
		t.Errorf("unexpected service name %q", svc.String())
	}
}
