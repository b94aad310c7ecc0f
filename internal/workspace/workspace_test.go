package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_CreateAndCleanup(t *testing.T) {
	tempBase := t.TempDir()
	mgr := NewManager(tempBase, "distcache-publish")

	if err := mgr.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	wsPath := mgr.GetPath()
	if wsPath == "" {
		t.Fatal("GetPath() returned empty string")
	}
	if !strings.HasPrefix(filepath.Base(wsPath), "distcache-publish-") {
		t.Errorf("Expected prefixed directory, got: %s", wsPath)
	}
	if _, err := os.Stat(wsPath); os.IsNotExist(err) {
		t.Errorf("Workspace directory does not exist: %s", wsPath)
	}

	if err := mgr.Cleanup(); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}
	if _, err := os.Stat(wsPath); !os.IsNotExist(err) {
		t.Errorf("Workspace directory still exists after cleanup: %s", wsPath)
	}
	if mgr.GetPath() != "" {
		t.Errorf("GetPath() should be empty after cleanup")
	}
	if err := mgr.Cleanup(); err != nil {
		t.Errorf("second Cleanup() should be a no-op, got %v", err)
	}
}

func TestManager_UniquePerCreate(t *testing.T) {
	base := t.TempDir()
	a := NewManager(base, "distcache-build")
	b := NewManager(base, "distcache-build")
	if err := a.Create(); err != nil {
		t.Fatal(err)
	}
	if err := b.Create(); err != nil {
		t.Fatal(err)
	}
	if a.GetPath() == b.GetPath() {
		t.Fatalf("expected distinct workspaces, both got %s", a.GetPath())
	}
	if err := a.Create(); err == nil {
		t.Fatalf("expected error creating an already created workspace")
	}
}

func TestManager_CreateSubdir(t *testing.T) {
	mgr := NewManager(t.TempDir(), "")
	if _, err := mgr.CreateSubdir("cache"); err == nil {
		t.Fatal("expected error before Create()")
	}
	if err := mgr.Create(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = mgr.Cleanup() }()

	sub, err := mgr.CreateSubdir("cache")
	if err != nil {
		t.Fatalf("CreateSubdir() failed: %v", err)
	}
	if fi, err := os.Stat(sub); err != nil || !fi.IsDir() {
		t.Fatalf("subdir not created: %v", err)
	}
}
