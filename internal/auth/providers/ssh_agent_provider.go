package providers

import (
	"fmt"
	"os"

	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/distcache/internal/config"
)

// SSHAgentProvider authenticates through the agent behind SSH_AUTH_SOCK.
type SSHAgentProvider struct{}

// NewSSHAgentProvider creates a new system agent provider.
func NewSSHAgentProvider() *SSHAgentProvider {
	return &SSHAgentProvider{}
}

// Type returns the authentication type this provider handles.
func (p *SSHAgentProvider) Type() config.AuthType {
	return config.AuthTypeSSHAgent
}

// ValidateConfig requires a reachable agent socket.
func (p *SSHAgentProvider) ValidateConfig(_ *config.AuthConfig) error {
	if os.Getenv("SSH_AUTH_SOCK") == "" {
		return fmt.Errorf("ssh_agent authentication requires SSH_AUTH_SOCK")
	}
	return nil
}

// Acquire connects to the system agent.
func (p *SSHAgentProvider) Acquire(authConfig *config.AuthConfig) (*Credential, error) {
	user := authConfig.User
	if user == "" {
		user = gitssh.DefaultUsername
	}
	auth, err := gitssh.NewSSHAgentAuth(user)
	if err != nil {
		return nil, fmt.Errorf("connect to ssh agent: %w", err)
	}
	if err := applyHostKeyPolicy(&auth.HostKeyCallbackHelper, authConfig); err != nil {
		return nil, err
	}
	return &Credential{Auth: auth}, nil
}

// Name returns a human-readable name for this provider.
func (p *SSHAgentProvider) Name() string {
	return "ssh_agent"
}
