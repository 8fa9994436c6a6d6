package subscription

import (
	"fmt"
	"strings"
)

// Protocol is the closed set of upstream protocols the forwarding engine can
// be configured for. Anything else parses as ProtocolUnknown and is reported
// but never selected.
type Protocol string

const (
	ProtocolSOCKS5      Protocol = "socks5"
	ProtocolSOCKS       Protocol = "socks"
	ProtocolHTTP        Protocol = "http"
	ProtocolShadowsocks Protocol = "ss"
	ProtocolVMess       Protocol = "vmess"
	ProtocolUnknown     Protocol = ""
)

func parseProtocol(raw string) Protocol {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "socks5":
		return ProtocolSOCKS5
	case "socks":
		return ProtocolSOCKS
	case "http":
		return ProtocolHTTP
	case "ss":
		return ProtocolShadowsocks
	case "vmess":
		return ProtocolVMess
	default:
		return ProtocolUnknown
	}
}

// WSOpts carries websocket transport options from the subscription.
type WSOpts struct {
	Path    string            `yaml:"path,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// GRPCOpts carries gRPC transport options from the subscription.
type GRPCOpts struct {
	ServiceName string `yaml:"grpc-service-name,omitempty"`
}

// ProxyNode is one candidate upstream as described by a Clash-style
// subscription entry. It is immutable after parsing.
type ProxyNode struct {
	Name       string    `yaml:"name"`
	Type       string    `yaml:"type"`
	Server     string    `yaml:"server,omitempty"`
	Port       int       `yaml:"port,omitempty"`
	Username   string    `yaml:"username,omitempty"`
	Password   string    `yaml:"password,omitempty"`
	UUID       string    `yaml:"uuid,omitempty"`
	AlterID    *int      `yaml:"alterId,omitempty"`
	Cipher     string    `yaml:"cipher,omitempty"`
	TLS        bool      `yaml:"tls,omitempty"`
	Network    string    `yaml:"network,omitempty"`
	ServerName string    `yaml:"servername,omitempty"`
	SNI        string    `yaml:"sni,omitempty"`
	WSOpts     *WSOpts   `yaml:"ws-opts,omitempty"`
	GRPCOpts   *GRPCOpts `yaml:"grpc-opts,omitempty"`
	Plugin     string    `yaml:"plugin,omitempty"`
}

// Protocol maps the raw subscription type onto the closed protocol set.
func (n *ProxyNode) Protocol() Protocol {
	return parseProtocol(n.Type)
}

// Usable reports whether the node carries every field its protocol requires.
// It is recomputed on demand and never cached.
func (n *ProxyNode) Usable() bool {
	if n.Server == "" || n.Port <= 0 || n.Port > 65535 {
		return false
	}
	switch n.Protocol() {
	case ProtocolSOCKS5, ProtocolSOCKS, ProtocolHTTP:
		return true
	case ProtocolShadowsocks:
		return n.Password != "" && n.Cipher != "" && n.Plugin == ""
	case ProtocolVMess:
		return n.UUID != ""
	default:
		return false
	}
}

// UnsupportedNodeError names a node whose declared protocol the engine cannot
// be configured for, or which lacks required fields.
type UnsupportedNodeError struct {
	Name string
	Type string
}

func (e *UnsupportedNodeError) Error() string {
	return fmt.Sprintf("node %q type %q is not supported (requires socks5/socks/http/ss/vmess with complete fields)", e.Name, e.Type)
}
