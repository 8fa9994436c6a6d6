package engine

import "testing"

func TestWithGitHubMirror(t *testing.T) {
	t.Setenv(githubMirrorEnv, "https://mirror.example.com")

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "release download is rewritten",
			in:   "https://github.com/SagerNet/sing-box/releases/download/v1.9.0/sing-box-1.9.0-linux-amd64.tar.gz",
			want: "https://mirror.example.com/https://github.com/SagerNet/sing-box/releases/download/v1.9.0/sing-box-1.9.0-linux-amd64.tar.gz",
		},
		{
			name: "api host stays direct",
			in:   "https://api.github.com/repos/SagerNet/sing-box/releases/latest",
			want: "https://api.github.com/repos/SagerNet/sing-box/releases/latest",
		},
		{
			name: "non-github host stays direct",
			in:   "https://example.org/sing-box.zip",
			want: "https://example.org/sing-box.zip",
		},
		{
			name: "already mirrored url is untouched",
			in:   "https://mirror.example.com/https://github.com/x",
			want: "https://mirror.example.com/https://github.com/x",
		},
	}
	for _, tc := range cases {
		if got := withGitHubMirror(tc.in); got != tc.want {
			t.Errorf("%s: withGitHubMirror(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestWithGitHubMirrorDisabled(t *testing.T) {
	t.Setenv(githubMirrorEnv, "")
	in := "https://github.com/SagerNet/sing-box/releases/download/v1.9.0/sing-box.zip"
	if got := withGitHubMirror(in); got != in {
		t.Fatalf("without a prefix the url must pass through, got %q", got)
	}

	t.Setenv(githubMirrorEnv, "ftp://mirror.example.com")
	if got := withGitHubMirror(in); got != in {
		t.Fatalf("a non-http prefix must be ignored, got %q", got)
	}
}
