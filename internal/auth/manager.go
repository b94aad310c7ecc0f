package auth

import (
	"git.home.luguber.info/inful/distcache/internal/auth/providers"
	"git.home.luguber.info/inful/distcache/internal/config"
	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
)

// Credential is re-exported so callers need only this package.
type Credential = providers.Credential

// Manager provides a high-level interface for authentication operations.
type Manager struct {
	registry *providers.AuthProviderRegistry
}

// NewManager creates a new authentication manager with the standard providers.
func NewManager() *Manager {
	return &Manager{
		registry: providers.NewAuthProviderRegistry(),
	}
}

// NewManagerWithRegistry creates a manager backed by a custom registry.
func NewManagerWithRegistry(registry *providers.AuthProviderRegistry) *Manager {
	return &Manager{registry: registry}
}

// Acquire loads the credential for authCfg. The returned credential must be
// closed as soon as the remote operation finishes.
func (m *Manager) Acquire(authCfg *config.AuthConfig) (*Credential, error) {
	cred, err := m.registry.Acquire(authCfg)
	if err != nil {
		authType := config.AuthTypeNone
		if authCfg != nil {
			authType = authCfg.Type
		}
		return nil, errors.AuthError("failed to acquire cache credential").
			WithCause(err).
			WithContext("auth_type", string(authType)).
			Build()
	}
	return cred, nil
}

// DefaultManager is a package-level instance for convenience.
var DefaultManager = NewManager()

// Acquire is a convenience function that uses the default manager.
func Acquire(authCfg *config.AuthConfig) (*Credential, error) {
	return DefaultManager.Acquire(authCfg)
}
