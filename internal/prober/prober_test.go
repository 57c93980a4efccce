package prober

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hibernaut/hibernaut/internal/core/domain"
)

func TestTCPProber_WaitReadySucceedsOnOpenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	p := New(nil)

	err = p.WaitReady(context.Background(), port, time.Now().Add(2*time.Second), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitReady: unexpected error: %v", err)
	}
}

func TestTCPProber_WaitReadyTimesOutOnClosedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() // nothing will ever accept on this port again

	p := New(nil)
	err = p.WaitReady(context.Background(), port, time.Now().Add(80*time.Millisecond), 20*time.Millisecond)
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
	if !errors.Is(err, domain.ErrTCPProbeTimedOut) {
		t.Fatalf("expected errors.Is to match ErrTCPProbeTimedOut, got %v", err)
	}
}

func TestTCPProber_WaitReadyRespectsContextCancellation(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := New(nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err = p.WaitReady(ctx, port, time.Now().Add(5*time.Second), 10*time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
