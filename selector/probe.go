package selector

import (
	"context"
	"io"
	"os/exec"
	"runtime"
	"time"
)

const probeGuardTimeout = 4 * time.Second

// Prober answers whether a host looks reachable. The answer is a boolean
// signal only: probe-mechanism failures (tool missing, permission denied,
// timeout) count as unreachable and are never surfaced as errors, so a broken
// probe tool can disqualify candidates but can never abort selection.
type Prober interface {
	Probe(ctx context.Context, host string) bool
}

// PingProber shells out to the platform ping with a single echo request and a
// short timeout.
type PingProber struct{}

func (PingProber) Probe(ctx context.Context, host string) bool {
	if host == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, probeGuardTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "ping", "-n", "1", "-w", "1500", host)
	} else {
		cmd = exec.CommandContext(ctx, "ping", "-c", "1", "-W", "2", host)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run() == nil
}
