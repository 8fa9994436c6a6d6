package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"routebox/config"
	"routebox/subscription"
)

// Synthesize turns one usable node plus local settings into the forwarding
// engine's configuration document. The output is deterministic: the same
// settings and node always yield byte-identical JSON.
func Synthesize(cfg *config.Settings, node *subscription.ProxyNode) ([]byte, error) {
	outbound, err := nodeOutbound(node)
	if err != nil {
		return nil, err
	}

	doc := map[string]any{
		"log": map[string]any{"level": "warn"},
		"inbounds": []any{
			map[string]any{
				"type":        "mixed",
				"tag":         "mixed-in",
				"listen":      "127.0.0.1",
				"listen_port": cfg.Proxy.MixedPort,
			},
		},
		"outbounds": []any{
			outbound,
			map[string]any{"type": "direct", "tag": "direct"},
		},
		"route": map[string]any{
			"rules": []any{
				map[string]any{
					"domain_suffix": cfg.Routing.ProxyDomains,
					"outbound":      "proxy",
				},
			},
			"final": "direct",
		},
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize engine config: %w", err)
	}
	return append(raw, '\n'), nil
}

// nodeOutbound translates the node into a sing-box outbound tagged "proxy".
// Usability (subscription.ProxyNode.Usable) guarantees required fields per
// protocol; anything outside the closed protocol set is unsupported.
func nodeOutbound(node *subscription.ProxyNode) (map[string]any, error) {
	if !node.Usable() {
		return nil, &subscription.UnsupportedNodeError{Name: node.Name, Type: node.Type}
	}

	outbound := map[string]any{
		"tag":         "proxy",
		"server":      node.Server,
		"server_port": node.Port,
	}
	switch node.Protocol() {
	case subscription.ProtocolSOCKS5, subscription.ProtocolSOCKS:
		outbound["type"] = "socks"
		applyCredentials(outbound, node)
	case subscription.ProtocolHTTP:
		outbound["type"] = "http"
		applyCredentials(outbound, node)
	case subscription.ProtocolShadowsocks:
		outbound["type"] = "shadowsocks"
		outbound["method"] = node.Cipher
		outbound["password"] = node.Password
	case subscription.ProtocolVMess:
		outbound["type"] = "vmess"
		outbound["uuid"] = node.UUID
		if node.AlterID != nil {
			outbound["alter_id"] = *node.AlterID
		}
		if node.Cipher != "" {
			outbound["security"] = node.Cipher
		}
		if node.TLS {
			tls := map[string]any{"enabled": true}
			if sni := firstNonEmpty(node.SNI, node.ServerName); sni != "" {
				tls["server_name"] = sni
			}
			outbound["tls"] = tls
		}
		if transport := vmessTransport(node); transport != nil {
			outbound["transport"] = transport
		}
	case subscription.ProtocolUnknown:
		return nil, &subscription.UnsupportedNodeError{Name: node.Name, Type: node.Type}
	}
	return outbound, nil
}

func applyCredentials(outbound map[string]any, node *subscription.ProxyNode) {
	if node.Username != "" {
		outbound["username"] = node.Username
	}
	if node.Password != "" {
		outbound["password"] = node.Password
	}
}

func vmessTransport(node *subscription.ProxyNode) map[string]any {
	switch node.Network {
	case "ws":
		transport := map[string]any{"type": "ws"}
		if node.WSOpts != nil {
			if node.WSOpts.Path != "" {
				transport["path"] = node.WSOpts.Path
			}
			if len(node.WSOpts.Headers) > 0 {
				transport["headers"] = node.WSOpts.Headers
			}
		}
		return transport
	case "grpc":
		transport := map[string]any{"type": "grpc"}
		if node.GRPCOpts != nil && node.GRPCOpts.ServiceName != "" {
			transport["service_name"] = node.GRPCOpts.ServiceName
		}
		return transport
	default:
		// Plain TCP transport emits no transport block.
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// WriteConfig writes the synthesized document where the engine will read it.
// The write must complete before the engine is spawned.
func WriteConfig(path string, raw []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return fmt.Errorf("write engine config %s: %w", path, err)
	}
	return nil
}
