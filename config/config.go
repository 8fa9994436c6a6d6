package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultMixedPort = 27890

var defaultProxyDomains = []string{
	"openai.com",
	"api.openai.com",
	"chatgpt.com",
	"oaistatic.com",
	"oaiusercontent.com",
	"openaiapi-site.azureedge.net",
}

var defaultNoProxy = []string{"localhost", "127.0.0.1"}

// Settings is the persisted local configuration. Load always returns a fully
// defaulted record; callers never see partially populated settings.
type Settings struct {
	Subscription SubscriptionSettings `json:"subscription"`
	Engine       EngineSettings       `json:"engine"`
	Proxy        ProxySettings        `json:"proxy"`
	Routing      RoutingSettings      `json:"routing"`
	Runtime      RuntimeSettings      `json:"runtime"`
}

type SubscriptionSettings struct {
	URL string `json:"url,omitempty"`
}

type EngineSettings struct {
	Path      string `json:"path"`
	GeoIPPath string `json:"geoip_path,omitempty"`
}

type ProxySettings struct {
	MixedPort int `json:"mixed_port"`
}

type RoutingSettings struct {
	ProxyDomains []string `json:"proxy_domains"`
	NoProxy      []string `json:"no_proxy"`
}

type RuntimeSettings struct {
	SelectedNode string `json:"selected_node,omitempty"`
}

// Default returns settings with every field populated.
func Default() *Settings {
	return &Settings{
		Engine: EngineSettings{Path: "sing-box"},
		Proxy:  ProxySettings{MixedPort: defaultMixedPort},
		Routing: RoutingSettings{
			ProxyDomains: append([]string(nil), defaultProxyDomains...),
			NoProxy:      append([]string(nil), defaultNoProxy...),
		},
	}
}

// Load reads the settings file, writing a defaulted one first if it does not
// exist yet.
func Load(paths Paths) (*Settings, error) {
	raw, err := os.ReadFile(paths.ConfigFile)
	if os.IsNotExist(err) {
		cfg := Default()
		if err := Save(paths, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", paths.ConfigFile, err)
	}

	var cfg Settings
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", paths.ConfigFile, err)
	}
	normalize(&cfg)
	return &cfg, nil
}

// Save persists the settings, creating parent directories as needed.
func Save(paths Paths, cfg *Settings) error {
	normalize(cfg)
	if err := os.MkdirAll(filepath.Dir(paths.ConfigFile), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(paths.ConfigFile), err)
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}
	raw = append(raw, '\n')
	if err := os.WriteFile(paths.ConfigFile, raw, 0644); err != nil {
		return fmt.Errorf("write %s: %w", paths.ConfigFile, err)
	}
	return nil
}

func normalize(cfg *Settings) {
	cfg.Subscription.URL = strings.TrimSpace(cfg.Subscription.URL)
	cfg.Engine.Path = strings.TrimSpace(cfg.Engine.Path)
	cfg.Engine.GeoIPPath = strings.TrimSpace(cfg.Engine.GeoIPPath)
	cfg.Runtime.SelectedNode = strings.TrimSpace(cfg.Runtime.SelectedNode)
	if cfg.Engine.Path == "" {
		cfg.Engine.Path = "sing-box"
	}
	if cfg.Proxy.MixedPort <= 0 || cfg.Proxy.MixedPort > 65535 {
		cfg.Proxy.MixedPort = defaultMixedPort
	}
	if len(cfg.Routing.ProxyDomains) == 0 {
		cfg.Routing.ProxyDomains = append([]string(nil), defaultProxyDomains...)
	}
	if len(cfg.Routing.NoProxy) == 0 {
		cfg.Routing.NoProxy = append([]string(nil), defaultNoProxy...)
	}
}

// ResolveEnginePath decides which forwarding-engine binary to launch. An
// existing configured path wins; otherwise a binary installed under BinDir is
// preferred, and finally the configured name is left for PATH lookup at exec
// time.
func ResolveEnginePath(paths Paths, configured string) string {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		configured = "sing-box"
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	if _, err := os.Stat(configured); err == nil {
		return configured
	}
	for _, name := range []string{configured, configured + ".exe"} {
		candidate := filepath.Join(paths.BinDir, filepath.Base(name))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return configured
}
