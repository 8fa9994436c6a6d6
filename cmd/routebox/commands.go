package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"routebox/config"
	"routebox/engine"
	"routebox/geoip"
	"routebox/subscription"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func loadEnvironment() (config.Paths, *config.Settings, error) {
	paths, err := config.DefaultPaths()
	if err != nil {
		return config.Paths{}, nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return config.Paths{}, nil, err
	}
	st, err := config.Load(paths)
	if err != nil {
		return config.Paths{}, nil, err
	}
	return paths, st, nil
}

func cmdLoginSub(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("routebox login-sub", flag.ContinueOnError)
	rawURL := fs.String("url", "", "Subscription URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	subURL := strings.TrimSpace(*rawURL)
	if subURL == "" {
		return fmt.Errorf("login-sub requires --url, usage: routebox login-sub --url <URL>")
	}
	parsed, err := url.Parse(subURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("subscription url must be http(s): %s", subURL)
	}

	paths, st, err := loadEnvironment()
	if err != nil {
		return err
	}
	st.Subscription.URL = subURL
	if err := config.Save(paths, st); err != nil {
		return err
	}
	logrus.Infoln("[Sub] subscription url saved")
	return refreshSubscription(ctx, paths, st)
}

func cmdUpdate(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
	}
	paths, st, err := loadEnvironment()
	if err != nil {
		return err
	}
	return refreshSubscription(ctx, paths, st)
}

func refreshSubscription(ctx context.Context, paths config.Paths, st *config.Settings) error {
	if st.Subscription.URL == "" {
		return fmt.Errorf("no subscription url, run: routebox login-sub --url <URL>")
	}
	raw, err := subscription.Fetch(ctx, st.Subscription.URL, paths.SubscriptionFile)
	if err != nil {
		return err
	}
	nodes, err := subscription.Parse(raw)
	if err != nil {
		return err
	}
	usable := 0
	for i := range nodes {
		if nodes[i].Usable() {
			usable++
		}
	}
	logrus.Infof("[Sub] subscription updated: %d nodes, %d supported", len(nodes), usable)
	return nil
}

func cmdListNodes(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
	}
	paths, st, err := loadEnvironment()
	if err != nil {
		return err
	}
	nodes, err := cachedNodes(paths)
	if err != nil {
		return err
	}

	var annotator *geoip.Annotator
	if st.Engine.GeoIPPath != "" {
		annotator, err = geoip.Open(st.Engine.GeoIPPath)
		if err != nil {
			logrus.Warnf("[Sub] geoip annotations disabled: %v", err)
		}
		defer annotator.Close()
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IDX\tNAME\tTYPE\tSUPPORTED\tCOUNTRY")
	for i := range nodes {
		node := &nodes[i]
		supported := "no"
		if node.Usable() {
			supported = "yes"
		}
		marker := ""
		if node.Name == st.Runtime.SelectedNode {
			marker = " *"
		}
		fmt.Fprintf(w, "%d\t%s%s\t%s\t%s\t%s\n", i, node.Name, marker, node.Type, supported, annotator.Country(node.Server))
	}
	return w.Flush()
}

func cmdUseNode(args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("use-node requires NAME, usage: routebox use-node <NAME>")
	}
	name := strings.TrimSpace(args[0])

	paths, st, err := loadEnvironment()
	if err != nil {
		return err
	}
	nodes, err := cachedNodes(paths)
	if err != nil {
		return err
	}

	var node *subscription.ProxyNode
	for i := range nodes {
		if nodes[i].Name == name {
			node = &nodes[i]
			break
		}
	}
	if node == nil {
		return fmt.Errorf("node %q not found, see: routebox list-nodes", name)
	}
	if !node.Usable() {
		return &subscription.UnsupportedNodeError{Name: node.Name, Type: node.Type}
	}
	if node.Protocol() == subscription.ProtocolVMess {
		if err := uuid.Validate(node.UUID); err != nil {
			logrus.Warnf("[Sub] node %q has a malformed vmess uuid, the engine may reject it", node.Name)
		}
	}

	st.Runtime.SelectedNode = node.Name
	if err := config.Save(paths, st); err != nil {
		return err
	}
	logrus.Infof("[Sub] preferred node set to %q", node.Name)
	return nil
}

func cachedNodes(paths config.Paths) ([]subscription.ProxyNode, error) {
	raw, err := subscription.ReadCached(paths.SubscriptionFile)
	if err != nil {
		return nil, err
	}
	return subscription.Parse(raw)
}

func cmdInstallCore(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("routebox install-core", flag.ContinueOnError)
	rawURL := fs.String("url", "", "Direct archive URL, skips release lookup")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	paths, st, err := loadEnvironment()
	if err != nil {
		return err
	}

	var installed string
	if archiveURL := strings.TrimSpace(*rawURL); archiveURL != "" {
		installed, err = engine.InstallFromURL(ctx, archiveURL, paths.BinDir)
	} else {
		installed, err = engine.InstallLatest(ctx, paths.BinDir)
	}
	if err != nil {
		return err
	}

	if version, err := engine.VersionOutput(installed); err != nil {
		logrus.Warnf("[Install] installed engine failed its version check: %v", err)
	} else {
		logrus.Infof("[Install] %s", firstLine(version))
	}

	st.Engine.Path = installed
	if err := config.Save(paths, st); err != nil {
		return err
	}
	logrus.Infof("[Install] engine installed at %s", installed)
	return nil
}

func cmdDoctor(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
	}
	paths, st, err := loadEnvironment()
	if err != nil {
		return err
	}

	report := func(level, format string, v ...any) {
		fmt.Printf("[%s] %s\n", level, fmt.Sprintf(format, v...))
	}

	report("OK", "config: %s", paths.ConfigFile)

	if st.Subscription.URL == "" {
		report("ERR", "subscription: no url, run: routebox login-sub --url <URL>")
	} else {
		report("OK", "subscription: url configured")
	}

	if nodes, err := cachedNodes(paths); err != nil {
		report("WARN", "subscription cache: %v", err)
	} else {
		usable := 0
		for i := range nodes {
			if nodes[i].Usable() {
				usable++
			}
		}
		if usable == 0 {
			report("ERR", "subscription cache: %d nodes, none supported", len(nodes))
		} else {
			report("OK", "subscription cache: %d nodes, %d supported", len(nodes), usable)
		}
		for i := range nodes {
			node := &nodes[i]
			if node.Protocol() != subscription.ProtocolVMess || node.UUID == "" {
				continue
			}
			if err := uuid.Validate(node.UUID); err != nil {
				report("WARN", "node %q has a malformed vmess uuid", node.Name)
			}
		}
		if st.Runtime.SelectedNode != "" {
			found := false
			for i := range nodes {
				if nodes[i].Name == st.Runtime.SelectedNode {
					found = true
					break
				}
			}
			if found {
				report("OK", "preferred node: %s", st.Runtime.SelectedNode)
			} else {
				report("WARN", "preferred node %q is no longer in the subscription", st.Runtime.SelectedNode)
			}
		}
	}

	binPath := config.ResolveEnginePath(paths, st.Engine.Path)
	if version, err := engine.VersionOutput(binPath); err != nil {
		report("ERR", "engine: %s not runnable, run: routebox install-core", binPath)
	} else {
		report("OK", "engine: %s (%s)", binPath, firstLine(version))
	}

	if st.Engine.GeoIPPath != "" {
		if _, err := os.Stat(st.Engine.GeoIPPath); err != nil {
			report("WARN", "geoip database: %v", err)
		} else {
			report("OK", "geoip database: %s", st.Engine.GeoIPPath)
		}
	}

	report("OK", "generated config: %s", paths.EngineConfigFile)

	if portInUse(st.Proxy.MixedPort) {
		report("WARN", "port %d is already accepting connections, another instance may be running", st.Proxy.MixedPort)
	} else {
		report("OK", "port %d is free", st.Proxy.MixedPort)
	}
	return nil
}

// portInUse reports whether something already accepts connections on the
// loopback port. There is no instance lock; a second run rides on whatever
// listener answers, so doctor surfaces the situation instead.
func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 300*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
