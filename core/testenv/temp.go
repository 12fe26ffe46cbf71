package testenv

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

// ShmDir is preferred for test files that are mapped MAP_SHARED.
const ShmDir = "/dev/shm"

// TempDir creates a directory that is removed during cleanup.
// It is placed on tmpfs when ShmDir is writable, so that mapped test files never touch disk.
func TempDir(t testing.TB) string {
	parent := ""
	if unix.Access(ShmDir, unix.W_OK) == nil {
		parent = ShmDir
	}
	dir, e := os.MkdirTemp(parent, "hugeplane-test-*")
	if e != nil {
		t.Fatal(e)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// TempName returns a filename in a fresh TempDir.
func TempName(t testing.TB, name string) string {
	return filepath.Join(TempDir(t), name)
}
