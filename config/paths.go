package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	appDir       = "routebox"
	legacyAppDir = "route-cli"
)

// Paths collects every filesystem location the tool touches. It is built once
// at process start and passed down explicitly; no package performs its own
// config-dir discovery.
type Paths struct {
	ConfigFile       string
	SubscriptionFile string
	GeneratedDir     string
	EngineConfigFile string
	BinDir           string
}

// DefaultPaths resolves the per-user config root and migrates a legacy root
// from the tool's previous name if the current one does not exist yet.
func DefaultPaths() (Paths, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve user config dir: %w", err)
	}
	root := filepath.Join(base, appDir)
	if err := migrateLegacyRoot(base, root); err != nil {
		return Paths{}, err
	}
	return pathsUnderRoot(root), nil
}

func pathsUnderRoot(root string) Paths {
	generated := filepath.Join(root, "generated")
	return Paths{
		ConfigFile:       filepath.Join(root, "config.json"),
		SubscriptionFile: filepath.Join(root, "cache", "subscription.yaml"),
		GeneratedDir:     generated,
		EngineConfigFile: filepath.Join(generated, "sing-box.json"),
		BinDir:           filepath.Join(root, "bin"),
	}
}

// EnsureDirs creates every directory the paths point into.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{
		filepath.Dir(p.ConfigFile),
		filepath.Dir(p.SubscriptionFile),
		p.GeneratedDir,
		p.BinDir,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// migrateLegacyRoot copies the old config tree to the new location on first
// run. An existing new root always wins, even when empty.
func migrateLegacyRoot(base, newRoot string) error {
	if _, err := os.Stat(newRoot); err == nil {
		return nil
	}
	legacyRoot := filepath.Join(base, legacyAppDir)
	if _, err := os.Stat(legacyRoot); err != nil {
		return nil
	}
	if err := copyDirRecursive(legacyRoot, newRoot); err != nil {
		return fmt.Errorf("migrate legacy config from %s to %s: %w", legacyRoot, newRoot, err)
	}
	return nil
}

func copyDirRecursive(src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDirRecursive(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
