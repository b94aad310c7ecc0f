package providers

import (
	"bytes"
	"fmt"
	"os"
	"time"

	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"git.home.luguber.info/inful/distcache/internal/config"
)

const defaultKeyLifetime = 5 * time.Minute

// DeployKeyProvider loads a deploy key supplied out-of-band (environment
// variable or file) into a private in-process agent keyring. The key never
// touches disk and the keyring is emptied when the credential is closed.
type DeployKeyProvider struct {
	lookupEnv func(string) (string, bool)
	readFile  func(string) ([]byte, error)
}

// NewDeployKeyProvider creates a new deploy key provider.
func NewDeployKeyProvider() *DeployKeyProvider {
	return &DeployKeyProvider{lookupEnv: os.LookupEnv, readFile: os.ReadFile}
}

// Type returns the authentication type this provider handles.
func (p *DeployKeyProvider) Type() config.AuthType {
	return config.AuthTypeDeployKey
}

// ValidateConfig checks that a key source is configured.
func (p *DeployKeyProvider) ValidateConfig(authConfig *config.AuthConfig) error {
	if authConfig.KeyEnv == "" && authConfig.KeyPath == "" {
		return fmt.Errorf("deploy key requires key_env or key_path")
	}
	if authConfig.KeyLifetime != "" {
		if d, err := time.ParseDuration(authConfig.KeyLifetime); err != nil || d < time.Second {
			return fmt.Errorf("invalid key_lifetime %q", authConfig.KeyLifetime)
		}
	}
	return nil
}

// Acquire parses the key and loads it into a fresh keyring with a bounded lifetime.
func (p *DeployKeyProvider) Acquire(authConfig *config.AuthConfig) (*Credential, error) {
	pemBytes, err := p.loadKey(authConfig)
	if err != nil {
		return nil, err
	}
	defer wipe(pemBytes)

	var raw any
	if authConfig.Passphrase != "" {
		raw, err = ssh.ParseRawPrivateKeyWithPassphrase(pemBytes, []byte(authConfig.Passphrase))
	} else {
		raw, err = ssh.ParseRawPrivateKey(pemBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("parse deploy key: %w", err)
	}

	lifetime := defaultKeyLifetime
	if authConfig.KeyLifetime != "" {
		lifetime, _ = time.ParseDuration(authConfig.KeyLifetime)
	}

	keyring := agent.NewKeyring()
	if err := keyring.Add(agent.AddedKey{
		PrivateKey:   raw,
		Comment:      "distcache deploy key",
		LifetimeSecs: uint32(lifetime / time.Second),
	}); err != nil {
		return nil, fmt.Errorf("load deploy key into agent: %w", err)
	}

	user := authConfig.User
	if user == "" {
		user = gitssh.DefaultUsername
	}
	auth := &gitssh.PublicKeysCallback{User: user, Callback: keyring.Signers}
	if err := applyHostKeyPolicy(&auth.HostKeyCallbackHelper, authConfig); err != nil {
		_ = keyring.RemoveAll()
		return nil, err
	}

	cred := &Credential{Auth: auth}
	cred.OnClose(keyring.RemoveAll)
	return cred, nil
}

// Name returns a human-readable name for this provider.
func (p *DeployKeyProvider) Name() string {
	return "deploy_key"
}

func (p *DeployKeyProvider) loadKey(authConfig *config.AuthConfig) ([]byte, error) {
	if authConfig.KeyEnv != "" {
		if v, ok := p.lookupEnv(authConfig.KeyEnv); ok && v != "" {
			key := []byte(v)
			// CI secret stores often flatten newlines into literal "\n".
			if !bytes.Contains(key, []byte("\n")) && bytes.Contains(key, []byte(`\n`)) {
				key = unescapeNewlines(key)
			}
			return key, nil
		}
		if authConfig.KeyPath == "" {
			return nil, fmt.Errorf("deploy key environment variable %s is not set", authConfig.KeyEnv)
		}
	}
	data, err := p.readFile(authConfig.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read deploy key file: %w", err)
	}
	return data, nil
}

func applyHostKeyPolicy(helper *gitssh.HostKeyCallbackHelper, authConfig *config.AuthConfig) error {
	switch {
	case authConfig.InsecureIgnoreHostKey:
		helper.HostKeyCallback = ssh.InsecureIgnoreHostKey() // #nosec G106 -- explicit opt-in
	case authConfig.KnownHosts != "":
		cb, err := gitssh.NewKnownHostsCallback(authConfig.KnownHosts)
		if err != nil {
			return fmt.Errorf("load known_hosts %s: %w", authConfig.KnownHosts, err)
		}
		helper.HostKeyCallback = cb
	}
	return nil
}

// unescapeNewlines rewrites literal `\n` sequences to newlines in place and
// zeroes the bytes freed at the end, so no second copy of the key exists.
func unescapeNewlines(b []byte) []byte {
	n := 0
	for i := 0; i < len(b); i++ {
		if b[i] == '\\' && i+1 < len(b) && b[i+1] == 'n' {
			b[n] = '\n'
			i++
		} else {
			b[n] = b[i]
		}
		n++
	}
	wipe(b[n:])
	return b[:n]
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
