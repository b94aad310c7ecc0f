package config

// AuthType enumerates supported authentication methods (stringly for YAML compatibility)
type AuthType string

const (
	AuthTypeNone      AuthType = "none"
	AuthTypeDeployKey AuthType = "deploy_key"
	AuthTypeSSHAgent  AuthType = "ssh_agent"
	AuthTypeToken     AuthType = "token"
	AuthTypeBasic     AuthType = "basic"
)

// DefaultDeployKeyEnv is the environment variable holding the PEM deploy key.
const DefaultDeployKeyEnv = "DISTCACHE_DEPLOY_KEY"

// AuthConfig represents authentication configuration for the cache remote.
type AuthConfig struct {
	Type                  AuthType `yaml:"type"` // deploy_key|ssh_agent|token|basic|none
	User                  string   `yaml:"user,omitempty"`
	KeyEnv                string   `yaml:"key_env,omitempty"`
	KeyPath               string   `yaml:"key_path,omitempty"`
	Passphrase            string   `yaml:"passphrase,omitempty"`
	KeyLifetime           string   `yaml:"key_lifetime,omitempty"`
	KnownHosts            string   `yaml:"known_hosts,omitempty"`
	InsecureIgnoreHostKey bool     `yaml:"insecure_ignore_host_key,omitempty"`
	Username              string   `yaml:"username,omitempty"`
	Password              string   `yaml:"password,omitempty"`
	Token                 string   `yaml:"token,omitempty"`
}

// IsZero reports whether no auth method specified.
func (a *AuthConfig) IsZero() bool { return a == nil || a.Type == "" || a.Type == AuthTypeNone }
