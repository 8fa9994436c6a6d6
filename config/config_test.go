package config

import (
	"os"
	"path/filepath"
	"testing"
)

func testPaths(t *testing.T) Paths {
	t.Helper()
	return pathsUnderRoot(filepath.Join(t.TempDir(), "routebox"))
}

func TestLoadCreatesDefaultedConfig(t *testing.T) {
	paths := testPaths(t)

	cfg, err := Load(paths)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Proxy.MixedPort != defaultMixedPort {
		t.Fatalf("unexpected mixed port: %d", cfg.Proxy.MixedPort)
	}
	if cfg.Engine.Path != "sing-box" {
		t.Fatalf("unexpected engine path: %q", cfg.Engine.Path)
	}
	if len(cfg.Routing.ProxyDomains) == 0 || len(cfg.Routing.NoProxy) == 0 {
		t.Fatalf("routing defaults missing: %+v", cfg.Routing)
	}
	if _, err := os.Stat(paths.ConfigFile); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	paths := testPaths(t)

	cfg := Default()
	cfg.Subscription.URL = "https://example.com/sub"
	cfg.Runtime.SelectedNode = "sg-01"
	if err := Save(paths, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(paths)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Subscription.URL != cfg.Subscription.URL {
		t.Fatalf("subscription url lost: %q", loaded.Subscription.URL)
	}
	if loaded.Runtime.SelectedNode != "sg-01" {
		t.Fatalf("selected node lost: %q", loaded.Runtime.SelectedNode)
	}
}

func TestLoadFillsMissingFields(t *testing.T) {
	paths := testPaths(t)
	if err := os.MkdirAll(filepath.Dir(paths.ConfigFile), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(paths.ConfigFile, []byte(`{"proxy":{"mixed_port":0}}`), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load(paths)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Proxy.MixedPort != defaultMixedPort {
		t.Fatalf("mixed port not defaulted: %d", cfg.Proxy.MixedPort)
	}
	if len(cfg.Routing.ProxyDomains) == 0 {
		t.Fatalf("proxy domains not defaulted")
	}
}

func TestMigrateLegacyRoot(t *testing.T) {
	base := t.TempDir()
	legacy := filepath.Join(base, legacyAppDir)
	newRoot := filepath.Join(base, appDir)
	if err := os.MkdirAll(filepath.Join(legacy, "cache"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(legacy, "config.json"), []byte("{}"), 0644); err != nil {
		t.Fatalf("write legacy config failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(legacy, "cache", "subscription.yaml"), []byte("proxies: []"), 0644); err != nil {
		t.Fatalf("write legacy cache failed: %v", err)
	}

	if err := migrateLegacyRoot(base, newRoot); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(newRoot, "config.json")); err != nil {
		t.Fatalf("config not migrated: %v", err)
	}
	if _, err := os.Stat(filepath.Join(newRoot, "cache", "subscription.yaml")); err != nil {
		t.Fatalf("cache not migrated: %v", err)
	}
}

func TestMigrateDoesNotOverrideExistingRoot(t *testing.T) {
	base := t.TempDir()
	legacy := filepath.Join(base, legacyAppDir)
	newRoot := filepath.Join(base, appDir)
	if err := os.MkdirAll(legacy, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.MkdirAll(newRoot, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(legacy, "config.json"), []byte(`{"legacy":true}`), 0644); err != nil {
		t.Fatalf("write legacy failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(newRoot, "config.json"), []byte(`{"new":true}`), 0644); err != nil {
		t.Fatalf("write new failed: %v", err)
	}

	if err := migrateLegacyRoot(base, newRoot); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(newRoot, "config.json"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(raw) != `{"new":true}` {
		t.Fatalf("existing config overridden: %s", raw)
	}
}

func TestResolveEnginePathPrefersBinDir(t *testing.T) {
	paths := testPaths(t)
	if err := os.MkdirAll(paths.BinDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	installed := filepath.Join(paths.BinDir, "sing-box")
	if err := os.WriteFile(installed, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if got := ResolveEnginePath(paths, "sing-box"); got != installed {
		t.Fatalf("expected %q, got %q", installed, got)
	}
	// A bare name with nothing installed stays as-is for PATH lookup.
	empty := pathsUnderRoot(filepath.Join(t.TempDir(), "other"))
	if got := ResolveEnginePath(empty, "sing-box"); got != "sing-box" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}
