package accelerator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccelerate_HostRules(t *testing.T) {
	t.Parallel()

	acc := Default()
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "vscode legacy cdn",
			in:   "https://az764295.vo.msecnd.net/stable/abc/VSCodeUserSetup-x64-1.85.1.exe",
			want: "https://vscode.cdn.azure.cn/stable/abc/VSCodeUserSetup-x64-1.85.1.exe",
		},
		{
			name: "vscode download origin",
			in:   "https://vscode.download.prss.microsoft.com/dbazure/download/stable/abc/VSCodeUserSetup-x64-1.90.0.exe",
			want: "https://vscode.cdn.azure.cn/dbazure/download/stable/abc/VSCodeUserSetup-x64-1.90.0.exe",
		},
		{
			name: "nodejs dist",
			in:   "https://nodejs.org/dist/v20.11.1/node-v20.11.1-x64.msi",
			want: "https://mirrors.huaweicloud.com/nodejs/v20.11.1/node-v20.11.1-x64.msi",
		},
		{
			name: "python ftp",
			in:   "https://www.python.org/ftp/python/3.12.1/python-3.12.1-amd64.exe",
			want: "https://mirrors.huaweicloud.com/python/3.12.1/python-3.12.1-amd64.exe",
		},
		{
			name: "go downloads",
			in:   "https://go.dev/dl/go1.22.0.windows-amd64.msi",
			want: "https://mirrors.ustc.edu.cn/golang/go1.22.0.windows-amd64.msi",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, acc.Accelerate(tc.in))
		})
	}
}

func TestAccelerate_HostRuleRemovesNeedle(t *testing.T) {
	t.Parallel()

	acc := Default()
	for _, rule := range DefaultHostRules() {
		in := "https://" + rule.Needle + "/some/artifact.exe?sig=abc"
		got := acc.Accelerate(in)
		require.Contains(t, got, rule.Mirror)
		require.NotContains(t, got, rule.Needle)
		require.True(t, strings.HasSuffix(got, "/some/artifact.exe?sig=abc"), "query and filename must survive: %s", got)
	}
}

func TestAccelerate_GitHubReleaseProxy(t *testing.T) {
	t.Parallel()

	in := "https://github.com/git-for-windows/git/releases/download/v2.43.0.windows.1/Git-2.43.0-64-bit.exe"
	require.Equal(t, DefaultProxyBase+in, Default().Accelerate(in))

	custom := New(Config{ProxyBase: "https://proxy.example.com"})
	require.Equal(t, "https://proxy.example.com/"+in, custom.Accelerate(in))
}

func TestAccelerate_GitHubNonReleaseIsIdentity(t *testing.T) {
	t.Parallel()

	in := "https://github.com/obsproject/obs-studio/archive/refs/tags/30.0.tar.gz"
	require.Equal(t, in, Default().Accelerate(in))
}

func TestAccelerate_Identity(t *testing.T) {
	t.Parallel()

	acc := Default()
	for _, in := range []string{
		"",
		"https://cdn.akamai.steamstatic.com/client/installer/SteamSetup.exe",
		"https://get.videolan.org/vlc/3.0.20/win64/vlc-3.0.20-win64.exe",
		"not a url at all",
		"https://example.com/?q=nodejs",
	} {
		require.Equal(t, in, acc.Accelerate(in))
	}
}

func TestAccelerate_HostRulesWinOverProxy(t *testing.T) {
	t.Parallel()

	acc := New(Config{
		HostRules: []HostRule{{Needle: "github.com/acme", Mirror: "mirror.example.com/acme"}},
	})
	in := "https://github.com/acme/tool/releases/download/v1/tool.exe"
	require.Equal(t, "https://mirror.example.com/acme/tool/releases/download/v1/tool.exe", acc.Accelerate(in))
}

func TestAccelerate_NilAcceleratorIsIdentity(t *testing.T) {
	t.Parallel()

	var acc *Accelerator
	require.Equal(t, "https://nodejs.org/dist/x", acc.Accelerate("https://nodejs.org/dist/x"))
}

func FuzzAccelerate(f *testing.F) {
	for _, seed := range []string{
		"https://nodejs.org/dist/v1/x.msi",
		"https://github.com/a/b/releases/download/v1/c.exe",
		"",
	} {
		f.Add(seed)
	}
	acc := Default()
	f.Fuzz(func(t *testing.T, in string) {
		out := acc.Accelerate(in)
		if in == "" && out != "" {
			t.Fatalf("empty input produced %q", out)
		}
		if out != acc.Accelerate(in) {
			t.Fatalf("Accelerate(%q) is not deterministic", in)
		}
	})
}
