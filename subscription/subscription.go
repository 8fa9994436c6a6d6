package subscription

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	fetchTimeout   = 25 * time.Second
	maxBodyBytes   = 8 * 1024 * 1024
	fetchUserAgent = "routebox-subscription/1.0"
)

type clashDocument struct {
	Proxies []ProxyNode `yaml:"proxies"`
}

// Parse decodes a Clash-style subscription body into its node list. An empty
// or absent proxies section is an error: a subscription with no nodes cannot
// serve a run.
func Parse(raw []byte) ([]ProxyNode, error) {
	var doc clashDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid subscription yaml: %w", err)
	}
	if len(doc.Proxies) == 0 {
		return nil, fmt.Errorf("no proxies found in subscription")
	}
	return doc.Proxies, nil
}

// Fetch downloads the raw subscription body and writes it to the cache file.
func Fetch(ctx context.Context, url, cachePath string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build subscription request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	client := &http.Client{Timeout: fetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download subscription from %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("subscription request failed with status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read subscription body: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(cachePath, raw, 0644); err != nil {
		return nil, fmt.Errorf("write subscription cache %s: %w", cachePath, err)
	}
	return raw, nil
}

// ReadCached returns the cached subscription body. A missing cache is an
// actionable error, not an empty result.
func ReadCached(cachePath string) ([]byte, error) {
	raw, err := os.ReadFile(cachePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("subscription cache not found at %s, run `routebox update` first", cachePath)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cachePath, err)
	}
	return raw, nil
}
