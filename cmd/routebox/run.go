package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"routebox/config"
	"routebox/engine"
	"routebox/selector"
	"routebox/subscription"

	"github.com/sirupsen/logrus"
)

// stdoutProbeReporter mirrors every reachability probe to the user so a slow
// or failed selection is never silent.
type stdoutProbeReporter struct{}

func (stdoutProbeReporter) ProbeResult(name, host string, ok bool) {
	if ok {
		fmt.Printf("[OK] ping %s (%s)\n", name, host)
	} else {
		fmt.Printf("[FAIL] ping %s (%s)\n", name, host)
	}
}

func cmdRun(ctx context.Context, args []string) (int, error) {
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		return 2, fmt.Errorf("run requires a command, usage: routebox run <command> [args...]")
	}

	paths, st, err := loadEnvironment()
	if err != nil {
		return 1, err
	}
	if st.Subscription.URL == "" {
		return 1, fmt.Errorf("no subscription url, run: routebox login-sub --url <URL>")
	}

	raw, err := subscription.ReadCached(paths.SubscriptionFile)
	if err != nil {
		logrus.Infoln("[Run] no cached subscription, fetching")
		raw, err = subscription.Fetch(ctx, st.Subscription.URL, paths.SubscriptionFile)
		if err != nil {
			return 1, err
		}
	}
	nodes, err := subscription.Parse(raw)
	if err != nil {
		return 1, err
	}

	node, err := selector.Select(ctx, nodes, st.Runtime.SelectedNode, selector.PingProber{}, stdoutProbeReporter{})
	if err != nil {
		return 1, err
	}
	logrus.Infof("[Run] using node %q (%s)", node.Name, node.Server)
	if node.Name != st.Runtime.SelectedNode {
		st.Runtime.SelectedNode = node.Name
		if err := config.Save(paths, st); err != nil {
			logrus.Warnf("[Run] cannot persist node preference: %v", err)
		}
	}

	rawConfig, err := engine.Synthesize(st, &node)
	if err != nil {
		return 1, err
	}
	if err := engine.WriteConfig(paths.EngineConfigFile, rawConfig); err != nil {
		return 1, err
	}

	binPath := config.ResolveEnginePath(paths, st.Engine.Path)
	proc, err := engine.Start(ctx, binPath, paths.EngineConfigFile)
	if err != nil {
		return 1, err
	}
	defer proc.Stop()

	if err := proc.AwaitReady(st.Proxy.MixedPort, engine.DefaultReadyTimeout); err != nil {
		return 1, err
	}
	logrus.Infof("[Run] engine ready on 127.0.0.1:%d", st.Proxy.MixedPort)

	return runWrapped(ctx, st, args)
}

func runWrapped(ctx context.Context, st *config.Settings, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), proxyEnv(st)...)

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 1, fmt.Errorf("run %s: %w", args[0], err)
}

// proxyEnv builds the proxy environment for the wrapped command. Both upper
// and lower case spellings are set because tools disagree on which they read.
func proxyEnv(st *config.Settings) []string {
	httpProxy := fmt.Sprintf("http://127.0.0.1:%d", st.Proxy.MixedPort)
	socksProxy := fmt.Sprintf("socks5://127.0.0.1:%d", st.Proxy.MixedPort)
	noProxy := strings.Join(st.Routing.NoProxy, ",")
	return []string{
		"HTTP_PROXY=" + httpProxy,
		"http_proxy=" + httpProxy,
		"HTTPS_PROXY=" + httpProxy,
		"https_proxy=" + httpProxy,
		"ALL_PROXY=" + socksProxy,
		"all_proxy=" + socksProxy,
		"NO_PROXY=" + noProxy,
		"no_proxy=" + noProxy,
	}
}
