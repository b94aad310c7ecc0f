package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/distcache/internal/logfields"
)

// Manager handles a single ephemeral workspace directory.
type Manager struct {
	baseDir string
	prefix  string
	path    string
}

// NewManager creates a workspace manager rooted at baseDir (os.TempDir when empty).
// prefix names the owning stage and becomes part of the directory name.
func NewManager(baseDir, prefix string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if prefix == "" {
		prefix = "distcache"
	}
	return &Manager{baseDir: baseDir, prefix: prefix}
}

// Create creates a uniquely named workspace directory readable only by the current user.
func (m *Manager) Create() error {
	if m.path != "" {
		return fmt.Errorf("workspace already created: %s", m.path)
	}
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return fmt.Errorf("failed to create workspace base directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	dir, err := os.MkdirTemp(m.baseDir, fmt.Sprintf("%s-%s-", m.prefix, timestamp))
	if err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	m.path = dir
	slog.Debug("Created workspace", logfields.Path(dir))
	return nil
}

// GetPath returns the path to the workspace directory
func (m *Manager) GetPath() string {
	return m.path
}

// Cleanup removes the workspace directory. Calling it more than once is a no-op.
func (m *Manager) Cleanup() error {
	if m.path == "" {
		return nil
	}

	if err := os.RemoveAll(m.path); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}

	slog.Debug("Cleaned up workspace", logfields.Path(m.path))
	m.path = ""
	return nil
}

// CreateSubdir creates a subdirectory within the workspace
func (m *Manager) CreateSubdir(name string) (string, error) {
	if m.path == "" {
		return "", fmt.Errorf("workspace not created")
	}

	subdir := filepath.Join(m.path, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}

	return subdir, nil
}
