package browser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrProfileInUse is returned when another pipeline holds the profile.
var ErrProfileInUse = errors.New("browser profile in use")

const profileLockName = ".tunesmith.lock"

// cacheDirs are wiped each time a profile is opened.
var cacheDirs = []string{
	filepath.Join("Default", "Cache"),
	filepath.Join("Default", "Code Cache"),
	filepath.Join("Default", "GPUCache"),
}

// Profile is an exclusively locked browser user-data directory.
type Profile struct {
	Dir  string
	lock *flock.Flock
}

// LockProfile creates dir if needed and takes its lock without waiting.
func LockProfile(dir string) (*Profile, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create profile directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, profileLockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock profile %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileInUse, dir)
	}
	return &Profile{Dir: dir, lock: lock}, nil
}

// ClearCaches removes the HTTP, code and GPU caches. Cookies and local
// storage are kept so logins survive.
func (p *Profile) ClearCaches() error {
	var errs []error
	for _, rel := range cacheDirs {
		if err := os.RemoveAll(filepath.Join(p.Dir, rel)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Release drops the lock.
func (p *Profile) Release() error {
	if p == nil || p.lock == nil {
		return nil
	}
	return p.lock.Unlock()
}
