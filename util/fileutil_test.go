package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/assertions"
)

func TestPathExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "present.db")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	exists, err := PathExists(file)
	if err != nil {
		t.Fatalf("PathExists: %v", err)
	}
	result := assertions.ShouldBeTrue(exists)
	if result != "" {
		t.Errorf("expected present.db to exist: %s", result)
	}

	missing, err := PathExists(filepath.Join(dir, "absent.db"))
	if err != nil {
		t.Fatalf("PathExists: %v", err)
	}
	if missing {
		t.Errorf("expected absent.db to be reported missing")
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("expected %s to be a directory", dir)
	}

	// Idempotent: calling again on an existing directory is not an error.
	if err := EnsureDir(dir); err != nil {
		t.Errorf("EnsureDir on existing dir: %v", err)
	}
}
