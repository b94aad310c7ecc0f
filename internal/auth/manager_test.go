package auth

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/distcache/internal/config"
	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
)

func TestManager_Acquire(t *testing.T) {
	manager := NewManager()

	tests := []struct {
		name        string
		authConfig  *config.AuthConfig
		expectNil   bool
		expectError bool
	}{
		{name: "nil config", authConfig: nil, expectNil: true},
		{name: "none auth", authConfig: &config.AuthConfig{Type: config.AuthTypeNone}, expectNil: true},
		{name: "token auth - valid", authConfig: &config.AuthConfig{Type: config.AuthTypeToken, Token: "test-token"}},
		{name: "token auth - missing token", authConfig: &config.AuthConfig{Type: config.AuthTypeToken}, expectError: true},
		{name: "basic auth - valid", authConfig: &config.AuthConfig{Type: config.AuthTypeBasic, Username: "u", Password: "p"}},
		{name: "basic auth - missing password", authConfig: &config.AuthConfig{Type: config.AuthTypeBasic, Username: "u"}, expectError: true},
		{name: "deploy key - no source", authConfig: &config.AuthConfig{Type: config.AuthTypeDeployKey}, expectError: true},
		{name: "unsupported type", authConfig: &config.AuthConfig{Type: "kerberos"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := manager.Acquire(tt.authConfig)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
				if got := errors.GetCategory(err); got != errors.CategoryAuth {
					t.Fatalf("expected auth category, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer func() { _ = cred.Close() }()
			if tt.expectNil && cred.Auth != nil {
				t.Fatalf("expected no auth method, got %T", cred.Auth)
			}
			if !tt.expectNil && cred.Auth == nil {
				t.Fatalf("expected auth method, got nil")
			}
		})
	}
}

func TestManager_TokenUsesTokenUsername(t *testing.T) {
	cred, err := Acquire(&config.AuthConfig{Type: config.AuthTypeToken, Token: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	basic, ok := cred.Auth.(*http.BasicAuth)
	if !ok {
		t.Fatalf("expected *http.BasicAuth, got %T", cred.Auth)
	}
	if basic.Username != "token" || basic.Password != "secret" {
		t.Fatalf("unexpected basic auth %+v", basic)
	}
	if cred.Provider != "token" || cred.Type != config.AuthTypeToken {
		t.Fatalf("unexpected provider metadata %s/%s", cred.Provider, cred.Type)
	}
}
