package engine

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
)

const (
	latestReleaseAPI = "https://api.github.com/repos/SagerNet/sing-box/releases/latest"
	installUserAgent = "routebox-installer/1.0"
	downloadTimeout  = 10 * time.Minute
	maxArchiveBytes  = 256 * 1024 * 1024
	engineBinaryName = "sing-box"
)

// Release is the subset of the GitHub release payload the installer needs.
type Release struct {
	TagName string         `json:"tag_name"`
	Assets  []ReleaseAsset `json:"assets"`
}

type ReleaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// LatestRelease queries GitHub for the newest engine release.
func LatestRelease(ctx context.Context) (*Release, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, latestReleaseAPI, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", installUserAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query latest engine release: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("latest release request failed with status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read latest release response: %w", err)
	}
	var release Release
	if err := json.Unmarshal(raw, &release); err != nil {
		return nil, fmt.Errorf("parse latest release response: %w", err)
	}
	if release.TagName == "" || len(release.Assets) == 0 {
		return nil, fmt.Errorf("latest release response is incomplete")
	}
	return &release, nil
}

// PickAsset selects the release archive matching the given platform.
func PickAsset(release *Release, goos, goarch string) (ReleaseAsset, error) {
	for _, asset := range release.Assets {
		name := strings.ToLower(asset.Name)
		if asset.BrowserDownloadURL == "" {
			continue
		}
		if !strings.HasSuffix(name, ".zip") && !strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		if strings.Contains(name, goos) && strings.Contains(name, goarch) {
			return asset, nil
		}
	}
	return ReleaseAsset{}, fmt.Errorf("no release asset for %s/%s in %s", goos, goarch, release.TagName)
}

// InstallLatest resolves, downloads, and installs the newest engine build for
// the current platform, returning the installed binary path.
func InstallLatest(ctx context.Context, binDir string) (string, error) {
	release, err := LatestRelease(ctx)
	if err != nil {
		return "", err
	}
	asset, err := PickAsset(release, runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}
	logrus.Infof("[Install] engine release %s asset %s", release.TagName, asset.Name)
	return InstallFromURL(ctx, asset.BrowserDownloadURL, binDir)
}

// InstallFromURL downloads an engine archive and installs its binary under
// binDir.
func InstallFromURL(ctx context.Context, rawURL, binDir string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	requestURL := withGitHubMirror(rawURL)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, requestURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", installUserAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download engine archive from %s: %w", requestURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("engine download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveBytes))
	if err != nil {
		return "", fmt.Errorf("read engine archive: %w", err)
	}
	return installArchive(rawURL, data, binDir)
}

func installArchive(sourceName string, data []byte, binDir string) (string, error) {
	if err := os.MkdirAll(binDir, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", binDir, err)
	}

	var installed string
	var err error
	switch {
	case strings.HasSuffix(strings.ToLower(sourceName), ".tar.gz"):
		installed, err = extractTarGz(data, binDir)
	default:
		installed, err = extractZip(data, binDir)
	}
	if err != nil {
		return "", err
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(installed, 0755); err != nil {
			return "", fmt.Errorf("set engine permissions: %w", err)
		}
	}
	return installed, nil
}

// extractZip pulls the engine binary (and, on Windows, its DLLs) out of a
// release zip, flattening any leading directory.
func extractZip(data []byte, binDir string) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("invalid engine zip archive: %w", err)
	}

	installed := ""
	for _, entry := range archive.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		base := strings.ToLower(path.Base(entry.Name))
		isBinary := base == engineBinaryName || base == engineBinaryName+".exe"
		if !isBinary && !strings.HasSuffix(base, ".dll") {
			continue
		}
		target := filepath.Join(binDir, path.Base(entry.Name))
		if err := writeZipEntry(entry, target); err != nil {
			return "", err
		}
		if isBinary {
			installed = target
		}
	}
	if installed == "" {
		return "", fmt.Errorf("engine binary not found in zip archive")
	}
	return installed, nil
}

func writeZipEntry(entry *zip.File, target string) error {
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("read zip entry %s: %w", entry.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(rc, maxArchiveBytes)); err != nil {
		_ = out.Close()
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	return out.Close()
}

// extractTarGz pulls the engine binary out of a release tarball.
func extractTarGz(data []byte, binDir string) (string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("invalid engine tar.gz archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read engine tarball: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if path.Base(hdr.Name) != engineBinaryName {
			continue
		}
		target := filepath.Join(binDir, engineBinaryName)
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(out, io.LimitReader(tr, maxArchiveBytes)); err != nil {
			_ = out.Close()
			return "", fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
		if err := out.Close(); err != nil {
			return "", err
		}
		return target, nil
	}
	return "", fmt.Errorf("engine binary not found in tar.gz archive")
}

// VersionOutput runs the engine's version command as an install smoke test.
func VersionOutput(binPath string) (string, error) {
	out, err := exec.Command(binPath, "version").Output()
	if err != nil {
		return "", fmt.Errorf("run %s version: %w", binPath, err)
	}
	return strings.TrimSpace(string(out)), nil
}
