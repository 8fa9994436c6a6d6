package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"routebox/util"

	"github.com/sirupsen/logrus"
)

func main() {
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logrus.SetLevel(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) == 2 && isVersionArg(os.Args[1]) {
		fmt.Println(util.BuildInfo())
		return
	}
	if len(os.Args) == 1 {
		printUsage()
		os.Exit(2)
	}

	code, err := dispatch(ctx, os.Args[1], os.Args[2:])
	if err != nil {
		logrus.Errorln("[Run]", err)
		if code == 0 {
			code = 1
		}
	}
	stop()
	os.Exit(code)
}

func dispatch(ctx context.Context, command string, args []string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "login-sub":
		return 0, cmdLoginSub(ctx, args)
	case "update":
		return 0, cmdUpdate(ctx, args)
	case "list-nodes", "list":
		return 0, cmdListNodes(args)
	case "use-node", "use":
		return 0, cmdUseNode(args)
	case "install-core":
		return 0, cmdInstallCore(ctx, args)
	case "doctor":
		return 0, cmdDoctor(args)
	case "run":
		return cmdRun(ctx, args)
	default:
		printUsage()
		return 2, fmt.Errorf("unknown command: %s", command)
	}
}

func isVersionArg(arg string) bool {
	switch strings.TrimSpace(strings.ToLower(arg)) {
	case "version", "-v", "--version", "-version":
		return true
	default:
		return false
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: routebox <command> [options]

Commands:
  login-sub --url <URL>     Save the subscription URL and fetch it
  update                    Refresh the cached subscription
  list-nodes                List cached nodes and their support status
  use-node <NAME>           Pin the preferred node for run
  install-core [--url URL]  Download and install the forwarding engine
  doctor                    Check the local setup
  run <command> [args...]   Run a command behind the selected node
  version                   Print build information`)
}
