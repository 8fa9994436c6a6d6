package engine

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestAwaitReadyListeningPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
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
	p := &Process{}
	if err := p.AwaitReady(port, 2*time.Second); err != nil {
		t.Fatalf("AwaitReady on a listening port: %v", err)
	}
}

func TestAwaitReadyTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	p := &Process{}
	start := time.Now()
	err = p.AwaitReady(port, 400*time.Millisecond)
	if !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("AwaitReady overran its timeout: %s", elapsed)
	}
}

func TestStartMissingBinary(t *testing.T) {
	_, err := Start(context.Background(), filepath.Join(t.TempDir(), "no-such-engine"), "config.json")
	if !errors.Is(err, ErrEngineSpawn) {
		t.Fatalf("expected ErrEngineSpawn, got %v", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	var nilProc *Process
	nilProc.Stop()
	(&Process{}).Stop()

	if runtime.GOOS == "windows" {
		t.Skip("script fixture is POSIX-only")
	}
	script := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 60\n"), 0755); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	p, err := Start(context.Background(), script, "config.json")
	if err != nil {
		t.Fatalf("start fixture: %v", err)
	}
	p.Stop()
	p.Stop()
}
