package engine

import (
	"net"
	"net/url"
	"os"
	"strings"
)

const githubMirrorEnv = "ROUTEBOX_GITHUB_MIRROR_PREFIX"

func githubMirrorPrefix() string {
	raw := strings.TrimSpace(os.Getenv(githubMirrorEnv))
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return ""
	}
	return strings.TrimRight(raw, "/") + "/"
}

// withGitHubMirror rewrites a GitHub download URL through the configured
// mirror prefix. The API host stays direct: it is generally reachable and
// mirrors often do not proxy it correctly.
func withGitHubMirror(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	prefix := githubMirrorPrefix()
	if prefix == "" || strings.HasPrefix(rawURL, prefix) {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	host := u.Hostname()
	if !isGitHubLikeHost(host) {
		return rawURL
	}
	if strings.EqualFold(host, "api.github.com") {
		return rawURL
	}
	return prefix + rawURL
}

func isGitHubLikeHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(host, ".")))
	if host == "" {
		return false
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "github.com" || host == "raw.githubusercontent.com" {
		return true
	}
	return strings.HasSuffix(host, ".github.com") || strings.HasSuffix(host, ".githubusercontent.com")
}
