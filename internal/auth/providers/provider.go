package providers

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/distcache/internal/config"
)

// AuthProvider defines the interface for authentication providers.
// Each provider handles a specific authentication method.
type AuthProvider interface {
	// Type returns the authentication type this provider handles.
	Type() config.AuthType

	// Acquire loads the credential described by authCfg. The caller must Close it.
	Acquire(authCfg *config.AuthConfig) (*Credential, error)

	// ValidateConfig validates the authentication configuration for this provider.
	ValidateConfig(authCfg *config.AuthConfig) error

	// Name returns a human-readable name for this provider (for logging/debugging).
	Name() string
}

// Credential is a loaded authentication method plus whatever must be released
// once the remote operation is done. Auth is nil for unauthenticated remotes.
type Credential struct {
	Auth     transport.AuthMethod
	Type     config.AuthType
	Provider string

	release []func() error
	closed  bool
}

// OnClose registers fn to run when the credential is closed.
func (c *Credential) OnClose(fn func() error) {
	c.release = append(c.release, fn)
}

// Close releases the credential. It is safe to call more than once.
func (c *Credential) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	var errs []error
	for i := len(c.release) - 1; i >= 0; i-- {
		if err := c.release[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.release = nil
	return errors.Join(errs...)
}

// AuthProviderRegistry manages the collection of available auth providers.
type AuthProviderRegistry struct {
	providers map[config.AuthType]AuthProvider
}

// NewAuthProviderRegistry creates a new registry with the standard providers.
func NewAuthProviderRegistry() *AuthProviderRegistry {
	registry := &AuthProviderRegistry{
		providers: make(map[config.AuthType]AuthProvider),
	}

	registry.Register(NewNoneProvider())
	registry.Register(NewDeployKeyProvider())
	registry.Register(NewSSHAgentProvider())
	registry.Register(NewTokenProvider())
	registry.Register(NewBasicProvider())

	return registry
}

// Register adds a provider to the registry.
func (r *AuthProviderRegistry) Register(provider AuthProvider) {
	r.providers[provider.Type()] = provider
}

// GetProvider returns the provider for the given auth type.
func (r *AuthProviderRegistry) GetProvider(authType config.AuthType) (AuthProvider, bool) {
	provider, exists := r.providers[authType]
	return provider, exists
}

// Acquire loads a credential using the appropriate provider.
func (r *AuthProviderRegistry) Acquire(authCfg *config.AuthConfig) (*Credential, error) {
	if authCfg == nil || authCfg.Type == "" {
		authCfg = &config.AuthConfig{Type: config.AuthTypeNone}
	}

	provider, exists := r.GetProvider(authCfg.Type)
	if !exists {
		return nil, &AuthError{
			Type:    authCfg.Type,
			Message: "unsupported authentication type",
		}
	}

	if err := provider.ValidateConfig(authCfg); err != nil {
		return nil, &AuthError{
			Type:    authCfg.Type,
			Message: "configuration validation failed",
			Cause:   err,
		}
	}

	cred, err := provider.Acquire(authCfg)
	if err != nil {
		return nil, &AuthError{
			Type:    authCfg.Type,
			Message: "failed to load credential",
			Cause:   err,
		}
	}
	cred.Type = provider.Type()
	cred.Provider = provider.Name()
	return cred, nil
}

// AuthError represents an authentication-related error.
type AuthError struct {
	Type    config.AuthType
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth error (%s): %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}
