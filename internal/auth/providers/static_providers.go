package providers

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/distcache/internal/config"
)

// NoneProvider serves file:// and anonymous cache remotes.
type NoneProvider struct{}

func NewNoneProvider() *NoneProvider { return &NoneProvider{} }

func (p *NoneProvider) Type() config.AuthType                     { return config.AuthTypeNone }
func (p *NoneProvider) Name() string                              { return "none" }
func (p *NoneProvider) ValidateConfig(_ *config.AuthConfig) error { return nil }

func (p *NoneProvider) Acquire(_ *config.AuthConfig) (*Credential, error) {
	return &Credential{}, nil
}

// TokenProvider pushes over HTTPS with an access token as the password.
// Most forges accept any non-empty username; "token" is used when none is set.
type TokenProvider struct{}

func NewTokenProvider() *TokenProvider { return &TokenProvider{} }

func (p *TokenProvider) Type() config.AuthType { return config.AuthTypeToken }
func (p *TokenProvider) Name() string          { return "token" }

func (p *TokenProvider) ValidateConfig(a *config.AuthConfig) error {
	if a.Token == "" {
		return fmt.Errorf("token authentication requires a token")
	}
	return nil
}

func (p *TokenProvider) Acquire(a *config.AuthConfig) (*Credential, error) {
	if err := p.ValidateConfig(a); err != nil {
		return nil, err
	}
	username := a.Username
	if username == "" {
		username = "token"
	}
	return basicCredential(username, a.Token), nil
}

// BasicProvider pushes over HTTPS with a username and password.
type BasicProvider struct{}

func NewBasicProvider() *BasicProvider { return &BasicProvider{} }

func (p *BasicProvider) Type() config.AuthType { return config.AuthTypeBasic }
func (p *BasicProvider) Name() string          { return "basic" }

func (p *BasicProvider) ValidateConfig(a *config.AuthConfig) error {
	switch {
	case a.Username == "":
		return fmt.Errorf("basic authentication requires a username")
	case a.Password == "":
		return fmt.Errorf("basic authentication requires a password")
	}
	return nil
}

func (p *BasicProvider) Acquire(a *config.AuthConfig) (*Credential, error) {
	if err := p.ValidateConfig(a); err != nil {
		return nil, err
	}
	return basicCredential(a.Username, a.Password), nil
}

func basicCredential(username, password string) *Credential {
	return &Credential{Auth: &http.BasicAuth{Username: username, Password: password}}
}
