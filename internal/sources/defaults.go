package sources

import (
	"time"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// latest is the version reported when a source cannot name one.
const latest = "Latest"

// Config tunes the built-in sources.
type Config struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	VersionCap        int           `mapstructure:"version_cap"`
	NodeSkipTLSVerify bool          `mapstructure:"node_skip_tls_verify"`
	GitHubAPI         string        `mapstructure:"github_api"`
	GitHubToken       string        `mapstructure:"github_token"`
}

func (c Config) versionCap() int {
	if c.VersionCap <= 0 {
		return DefaultVersionCap
	}
	return c.VersionCap
}

func (c Config) githubAPI() string {
	if c.GitHubAPI == "" {
		return DefaultGitHubAPI
	}
	return c.GitHubAPI
}

// DefaultRegistry registers every built-in source against getter.
func DefaultRegistry(getter catalog.Getter, cfg Config) *Registry {
	// Built-in ids are distinct, so registration cannot fail.
	r, _ := NewRegistry(
		NewVSCode(getter, cfg),
		NewGit(getter, cfg),
		NewNodeJS(getter, cfg),
		NewPython(getter, cfg),
		NewVLC(getter, cfg),
		NewOBS(getter, cfg),
		Steam{},
	)
	return r
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
