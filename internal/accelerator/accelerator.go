// Package accelerator rewrites download URLs onto mirrors and proxies that are
// reachable from restricted networks.
//
// Rewrites are purely syntactic: only the host (or a proxy prefix) changes, so
// the rewritten link always names the same artifact.
package accelerator

import "strings"

// DefaultProxyBase is the release-asset proxy used when none is configured.
const DefaultProxyBase = "https://ghproxy.cn/"

// HostRule swaps Needle for Mirror when Needle occurs in a URL.
type HostRule struct {
	Needle string `mapstructure:"needle"`
	Mirror string `mapstructure:"mirror"`
}

// ProxyRule prefixes URLs whose text contains both Origin and PathMarker.
type ProxyRule struct {
	Origin     string `mapstructure:"origin"`
	PathMarker string `mapstructure:"path_marker"`
}

// Config controls the rule table.
type Config struct {
	HostRules  []HostRule  `mapstructure:"host_rules"`
	ProxyRules []ProxyRule `mapstructure:"proxy_rules"`
	ProxyBase  string      `mapstructure:"proxy_base"`
}

// DefaultHostRules are the mirror substitutions applied when none are configured.
func DefaultHostRules() []HostRule {
	return []HostRule{
		{Needle: "az764295.vo.msecnd.net", Mirror: "vscode.cdn.azure.cn"},
		{Needle: "vscode.download.prss.microsoft.com", Mirror: "vscode.cdn.azure.cn"},
		{Needle: "nodejs.org/dist", Mirror: "mirrors.huaweicloud.com/nodejs"},
		{Needle: "www.python.org/ftp/python", Mirror: "mirrors.huaweicloud.com/python"},
		{Needle: "go.dev/dl", Mirror: "mirrors.ustc.edu.cn/golang"},
	}
}

// DefaultProxyRules match GitHub release asset downloads.
func DefaultProxyRules() []ProxyRule {
	return []ProxyRule{
		{Origin: "github.com", PathMarker: "/releases/download/"},
	}
}

// Accelerator applies the rule table. The zero value rewrites nothing.
type Accelerator struct {
	hostRules  []HostRule
	proxyRules []ProxyRule
	proxyBase  string
}

// New builds an Accelerator, filling unset parts of cfg with defaults.
func New(cfg Config) *Accelerator {
	hostRules := cfg.HostRules
	if len(hostRules) == 0 {
		hostRules = DefaultHostRules()
	}
	proxyRules := cfg.ProxyRules
	if len(proxyRules) == 0 {
		proxyRules = DefaultProxyRules()
	}
	base := strings.TrimSpace(cfg.ProxyBase)
	if base == "" {
		base = DefaultProxyBase
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Accelerator{
		hostRules:  append([]HostRule(nil), hostRules...),
		proxyRules: append([]ProxyRule(nil), proxyRules...),
		proxyBase:  base,
	}
}

// Default returns an Accelerator with the built-in rules.
func Default() *Accelerator {
	return New(Config{})
}

// Accelerate returns the fastest known equivalent of rawURL. Unrecognized and
// empty inputs come back unchanged.
func (a *Accelerator) Accelerate(rawURL string) string {
	if rawURL == "" || a == nil {
		return rawURL
	}
	for _, rule := range a.hostRules {
		if rule.Needle == "" {
			continue
		}
		if strings.Contains(rawURL, rule.Needle) {
			return strings.ReplaceAll(rawURL, rule.Needle, rule.Mirror)
		}
	}
	for _, rule := range a.proxyRules {
		if rule.Origin == "" || rule.PathMarker == "" {
			continue
		}
		if strings.Contains(rawURL, rule.Origin) && strings.Contains(rawURL, rule.PathMarker) {
			return a.proxyBase + rawURL
		}
	}
	return rawURL
}
