package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"time"
)

const (
	// DefaultReadyTimeout bounds the wait for the engine's local inbound.
	DefaultReadyTimeout = 8 * time.Second
	readyPollInterval   = 200 * time.Millisecond
)

var (
	// ErrEngineSpawn means the engine binary could not be started at all.
	ErrEngineSpawn = errors.New("engine failed to start")
	// ErrEngineNotReady means the engine process started but its local
	// inbound port never accepted a connection within the readiness timeout.
	ErrEngineNotReady = errors.New("engine local port did not become ready")
)

// Process owns a running forwarding-engine process between spawn and
// teardown. It is not shared; exactly one caller stops it.
type Process struct {
	cmd     *exec.Cmd
	stopped bool
}

// Start spawns the engine against the given config file. The engine's own
// diagnostics are suppressed; its readiness is observed through the inbound
// port, not its output.
func Start(ctx context.Context, binPath, configPath string) (*Process, error) {
	cmd := exec.CommandContext(ctx, binPath, "run", "-c", configPath)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEngineSpawn, binPath, err)
	}
	return &Process{cmd: cmd}, nil
}

// AwaitReady polls the loopback port until it accepts a TCP connection or the
// timeout elapses. It never waits past the timeout plus one poll interval.
func (p *Process) AwaitReady(port int, timeout time.Duration) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, readyPollInterval)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(readyPollInterval)
	}
	return fmt.Errorf("%w: %s within %s", ErrEngineNotReady, addr, timeout)
}

// Stop terminates the engine and reaps it. It is idempotent: a nil handle, a
// never-started process, or a second call is a no-op, and termination errors
// are swallowed because a process that is already gone is not a failure.
func (p *Process) Stop() {
	if p == nil || p.cmd == nil || p.cmd.Process == nil || p.stopped {
		return
	}
	p.stopped = true
	_ = p.cmd.Process.Kill()
	_, _ = p.cmd.Process.Wait()
}
