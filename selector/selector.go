package selector

import (
	"context"
	"errors"
	"sort"
	"strings"

	"routebox/subscription"
)

var (
	// ErrNoSupportedNodes means the subscription contains no node the
	// forwarding engine can be configured for.
	ErrNoSupportedNodes = errors.New("no supported node found in subscription")
	// ErrNoReachableNode means every usable node failed its probe.
	ErrNoReachableNode = errors.New("no reachable node after probing all candidates")
)

// ProbeReporter receives each probe attempt as it happens, in selection
// order. Operators rely on this trace to diagnose subscription and network
// problems, so it is part of the selection contract rather than incidental
// logging.
type ProbeReporter interface {
	ProbeResult(name, host string, ok bool)
}

// NopReporter discards the probe trace.
type NopReporter struct{}

func (NopReporter) ProbeResult(string, string, bool) {}

// Select picks the first reachable usable node. The sticky name, if it names
// a usable node, is probed first; the rest follow in region-priority order
// with the original subscription order preserved inside each bucket. Probing
// is strictly sequential and stops at the first success.
func Select(ctx context.Context, nodes []subscription.ProxyNode, sticky string, prober Prober, reporter ProbeReporter) (subscription.ProxyNode, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}

	usable := make([]subscription.ProxyNode, 0, len(nodes))
	for _, node := range nodes {
		if node.Usable() {
			usable = append(usable, node)
		}
	}
	if len(usable) == 0 {
		return subscription.ProxyNode{}, ErrNoSupportedNodes
	}

	candidates := orderCandidates(usable, sticky)
	for _, node := range candidates {
		ok := prober.Probe(ctx, node.Server)
		reporter.ProbeResult(node.Name, node.Server, ok)
		if ok {
			return node, nil
		}
	}
	return subscription.ProxyNode{}, ErrNoReachableNode
}

func orderCandidates(usable []subscription.ProxyNode, sticky string) []subscription.ProxyNode {
	candidates := make([]subscription.ProxyNode, 0, len(usable))
	remaining := usable
	if sticky != "" {
		for i, node := range usable {
			if node.Name == sticky {
				candidates = append(candidates, node)
				remaining = make([]subscription.ProxyNode, 0, len(usable)-1)
				remaining = append(remaining, usable[:i]...)
				remaining = append(remaining, usable[i+1:]...)
				break
			}
		}
	}
	rest := append([]subscription.ProxyNode(nil), remaining...)
	sort.SliceStable(rest, func(i, j int) bool {
		return regionPriority(rest[i].Name) < regionPriority(rest[j].Name)
	})
	return append(candidates, rest...)
}

// regionPriority buckets a node by geographic markers in its display name:
// Singapore first, then Korea, then the United States, then everything else.
// Latin markers match case-insensitively as substrings; CJK markers match
// exactly as substrings.
func regionPriority(name string) int {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(name, "新加坡") || strings.Contains(lower, "singapore") || strings.Contains(lower, "sg"):
		return 0
	case strings.Contains(name, "韩国") || strings.Contains(lower, "korea") || strings.Contains(lower, "kr"):
		return 1
	case strings.Contains(name, "美国") || strings.Contains(lower, "united states") ||
		strings.Contains(lower, "usa") || strings.Contains(lower, "us"):
		return 2
	default:
		return 3
	}
}
