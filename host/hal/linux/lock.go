//go:build linux

package linux

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	vfs "github.com/twpayne/go-vfs"
	"golang.org/x/sys/unix"

	"github.com/ardnew/pciusb/host/hal"
	"github.com/ardnew/pciusb/pkg"
)

// =============================================================================
// Ownership Manager
// =============================================================================

// LockManager implements hal.ResourceManager with one advisory lock file
// per PCI function. A function is owned by whoever holds an exclusive flock
// on its lock file; the file holds the owner's name. A function bound to a
// kernel driver is reported as owned by that driver.
type LockManager struct {
	fs          vfs.FS
	dir         string
	checkDriver bool

	held map[hal.Location]*os.File
	mu   sync.Mutex
}

// LockOption configures a LockManager.
type LockOption func(*LockManager)

// WithoutDriverCheck ignores kernel driver bindings.
func WithoutDriverCheck() LockOption {
	return func(m *LockManager) { m.checkDriver = false }
}

// NewLockManager creates an ownership manager keeping lock files in dir.
func NewLockManager(fs vfs.FS, dir string, opts ...LockOption) *LockManager {
	m := &LockManager{
		fs:          fs,
		dir:         dir,
		checkDriver: true,
		held:        make(map[hal.Location]*os.File),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lockPath returns the lock file of a function.
func (m *LockManager) lockPath(loc hal.Location) string {
	return filepath.Join(m.dir, loc.String()+".lock")
}

// Acquire claims fn for owner without blocking.
func (m *LockManager) Acquire(fn hal.Function, owner string) error {
	loc := fn.Info().Location

	if m.checkDriver {
		if sf, ok := fn.(interface{ Driver() string }); ok {
			if driver := sf.Driver(); driver != "" {
				return &pkg.ConflictError{Object: loc.String(), Owner: driver}
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.held[loc]; ok {
		return &pkg.ConflictError{Object: loc.String(), Owner: readOwner(f)}
	}

	if err := vfs.MkdirAll(m.fs, m.dir, 0o755); err != nil {
		return err
	}
	f, err := m.fs.OpenFile(m.lockPath(loc), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		defer f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return &pkg.ConflictError{Object: loc.String(), Owner: readOwner(f)}
		}
		return fmt.Errorf("lock %s: %w", loc, err)
	}

	if err := writeOwner(f, owner); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return err
	}
	m.held[loc] = f

	pkg.LogDebug(pkg.ComponentHAL, "function acquired", "function", loc.String(), "owner", owner)
	return nil
}

// Release gives up a claim made by Acquire.
func (m *LockManager) Release(fn hal.Function) error {
	loc := fn.Info().Location

	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.held[loc]
	if !ok {
		return fmt.Errorf("%w: %s not acquired", pkg.ErrInvalidState, loc)
	}
	delete(m.held, loc)

	err := errors.Join(
		f.Truncate(0),
		unix.Flock(int(f.Fd()), unix.LOCK_UN),
		f.Close(),
	)
	pkg.LogDebug(pkg.ComponentHAL, "function released", "function", loc.String())
	return err
}

// Held returns the number of functions currently owned.
func (m *LockManager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// Close releases every claim.
func (m *LockManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for loc, f := range m.held {
		err = errors.Join(err, unix.Flock(int(f.Fd()), unix.LOCK_UN), f.Close())
		delete(m.held, loc)
	}
	return err
}

func readOwner(f *os.File) string {
	var buf [256]byte
	n, _ := f.ReadAt(buf[:], 0)
	if owner := strings.TrimSpace(string(buf[:n])); owner != "" {
		return owner
	}
	return "unknown"
}

func writeOwner(f *os.File, owner string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.WriteAt([]byte(owner+"\n"), 0)
	return err
}
