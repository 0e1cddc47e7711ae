package browser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLockProfileIsExclusive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "generator")
	first, err := LockProfile(dir)
	if err != nil {
		t.Fatalf("LockProfile: %v", err)
	}
	if _, err := LockProfile(dir); !errors.Is(err, ErrProfileInUse) {
		t.Fatalf("second lock error = %v, want ErrProfileInUse", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := LockProfile(dir)
	if err != nil {
		t.Fatalf("relock after release: %v", err)
	}
	_ = again.Release()
}

func TestClearCachesKeepsCookies(t *testing.T) {
	dir := t.TempDir()
	p, err := LockProfile(dir)
	if err != nil {
		t.Fatalf("LockProfile: %v", err)
	}
	defer p.Release()

	cache := filepath.Join(dir, "Default", "Cache", "data_0")
	cookies := filepath.Join(dir, "Default", "Cookies")
	for _, path := range []string{cache, cookies} {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if err := p.ClearCaches(); err != nil {
		t.Fatalf("ClearCaches: %v", err)
	}
	if _, err := os.Stat(cache); !os.IsNotExist(err) {
		t.Fatalf("cache still present: %v", err)
	}
	if _, err := os.Stat(cookies); err != nil {
		t.Fatalf("cookies removed: %v", err)
	}
}
