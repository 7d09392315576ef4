package lockfile

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"thumbconv/internal/logging"
)

// Suffix is appended to a destination path to name its sentinel.
const Suffix = ".lock"

// DefaultStaleAfter is the age at which an abandoned sentinel may be reclaimed.
const DefaultStaleAfter = 5 * time.Minute

// Path returns the sentinel path guarding target.
func Path(target string) string {
	return target + Suffix
}

// Option customizes a Manager.
type Option func(*Manager)

// WithStaleAfter overrides the staleness window. Non-positive values keep the default.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.staleAfter = d
		}
	}
}

// WithClock injects the time source used to age sentinels.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger attaches a logger for reclaim and failure diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.NewComponentLogger(logger, "lock")
	}
}

// Manager acquires and releases destination sentinels. It is safe for
// concurrent use; one Manager is normally shared by every worker in a process.
type Manager struct {
	mu         sync.Mutex
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
	held       map[string]*flock.Flock
}

// New constructs a Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		logger:     logging.NewComponentLogger(nil, "lock"),
		held:       make(map[string]*flock.Flock),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StaleAfter reports the configured staleness window.
func (m *Manager) StaleAfter() time.Duration {
	return m.staleAfter
}

// Acquire tries to lock target without blocking. It returns false when a
// fresh sentinel exists, when a stale one is still held by a live owner, or
// when the sentinel cannot be created at all; callers treat every false the
// same way, as "someone else is working on it".
func (m *Manager) Acquire(target string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := Path(target)
	created, exists := m.create(lockPath)
	if created {
		return true
	}
	if !exists {
		return false
	}
	if !m.reclaim(lockPath) {
		return false
	}
	created, _ = m.create(lockPath)
	return created
}

// Release removes the sentinel for target. Removing an absent sentinel is not
// an error.
func (m *Manager) Release(target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := Path(target)
	lk := m.held[lockPath]
	delete(m.held, lockPath)

	// Windows cannot delete a file with an open handle; elsewhere the flock is
	// kept until the sentinel is gone so nobody can reclaim it in between.
	if lk != nil && runtime.GOOS == "windows" {
		_ = lk.Unlock()
	}
	err := os.Remove(lockPath)
	if lk != nil && runtime.GOOS != "windows" {
		_ = lk.Unlock()
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("could not remove lock file", logging.String("path", lockPath), logging.Error(err))
		return err
	}
	return nil
}

// create makes the sentinel with an exclusive create. exists reports whether
// creation failed because a sentinel is already present.
func (m *Manager) create(lockPath string) (created bool, exists bool) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, true
		}
		m.logger.Warn("could not create lock file", logging.String("path", lockPath), logging.Error(err))
		return false, false
	}
	if err := f.Close(); err != nil {
		m.logger.Warn("could not close lock file", logging.String("path", lockPath), logging.Error(err))
	}

	lk := flock.New(lockPath, flock.SetFlag(os.O_RDONLY))
	locked, err := lk.TryLock()
	if err != nil || !locked {
		// The sentinel alone still excludes other writers; only liveness
		// detection past the stale window is lost.
		m.logger.Debug("lock file created without advisory lock", logging.String("path", lockPath), logging.Error(err))
		lk = nil
	}
	m.held[lockPath] = lk
	return true, false
}

// reclaim removes a stale sentinel. It returns true when the path is free again.
func (m *Manager) reclaim(lockPath string) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	age := m.now().Sub(info.ModTime())
	if age < m.staleAfter {
		return false
	}

	lk := flock.New(lockPath, flock.SetFlag(os.O_RDONLY))
	locked, err := lk.TryLock()
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	if !locked {
		m.logger.Info("stale lock file still held by a running conversion",
			logging.String("path", lockPath),
			logging.Duration("age", age),
		)
		return false
	}
	defer func() { _ = lk.Unlock() }()

	// The sentinel may have been replaced between the first stat and the
	// flock; only remove it if it is still the file that was judged stale.
	current, err := os.Stat(lockPath)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	if !os.SameFile(info, current) {
		return false
	}
	if m.now().Sub(current.ModTime()) < m.staleAfter {
		return false
	}
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("could not remove stale lock file", logging.String("path", lockPath), logging.Error(err))
		return false
	}
	m.logger.Info("reclaimed stale lock file", logging.String("path", lockPath), logging.Duration("age", age))
	return true
}
