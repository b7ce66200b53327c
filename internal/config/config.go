// Package config provides agent settings for FORGE with layered precedence.
//
// Settings sources are loaded in the following order (highest precedence first):
//  1. Environment variables (FORGE_* prefix)
//  2. Agent config file (~/.forge/config.yaml, or the path given explicitly)
//  3. Built-in defaults
//
// The execution core never reads configuration directly; it receives a
// *Settings value injected at construction.
//
// IMPORTANT: This package may import internal/constants and internal/errors,
// but MUST NOT import internal/domain or other internal packages.
package config

// Settings is the root settings structure for the FORGE agent.
type Settings struct {
	// AgentName identifies this agent to the orchestrator.
	AgentName string `yaml:"agent_name" mapstructure:"agent_name"`

	// Verbose enables debug-tagged log lines globally. A job can also turn
	// this on per-run through the system.debug variable.
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`

	// WorkDir is the root directory for log pages and staged uploads.
	// Defaults to ~/.forge.
	WorkDir string `yaml:"work_dir" mapstructure:"work_dir"`

	// Proxy holds outbound proxy settings applied to every job.
	Proxy ProxySettings `yaml:"proxy" mapstructure:"proxy"`
}

// ProxySettings configures the outbound proxy copied into each job's
// variable scope at initialization.
type ProxySettings struct {
	// URL is the proxy address. Empty disables proxy handling entirely.
	URL string `yaml:"url" mapstructure:"url"`

	// Username authenticates to the proxy.
	Username string `yaml:"username" mapstructure:"username"`

	// Password authenticates to the proxy. Treated as a secret: registered
	// with the masker and cleared from the process environment after being
	// copied into the job's variable scope.
	Password string `yaml:"password" mapstructure:"password"`
}

// Configured reports whether a proxy is set.
func (p ProxySettings) Configured() bool {
	return p.URL != ""
}
