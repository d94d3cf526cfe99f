package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"streamchat/internal/core"
)

// staleLockAge is how old a lock may get before it is considered abandoned.
const staleLockAge = 30 * time.Minute

// LockFile represents the metadata stored in the lock file.
type LockFile struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	Owner     string    `json:"owner"` // command holding the lock, e.g. "chat"
	Timestamp time.Time `json:"timestamp"`
}

// FileLock guards the data directory against concurrent writers in other
// processes. It lives next to the directory so transactions can swap the
// directory while the lock is held.
type FileLock struct {
	path   string
	file   *os.File
	owner  string
	logger core.Logger
}

// NewFileLock creates a new file lock.
func NewFileLock(path, owner string, logger core.Logger) *FileLock {
	if logger == nil {
		logger = core.NewNopLogger()
	}
	return &FileLock{
		path:   path,
		owner:  owner,
		logger: logger,
	}
}

// LockPath returns the lock file location for a data directory.
func LockPath(dataDir string) string {
	return dataDir + ".lock"
}

// Acquire takes the lock without blocking. A lock left behind by a dead
// process, or older than staleLockAge, is taken over.
func (l *FileLock) Acquire() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return &core.LockError{Operation: "acquire", Message: "open lock file", Err: err}
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			l.logger.Warn("Failed to close lock file", "error", closeErr)
		}

		existing, readErr := l.readLockFile()
		if readErr == nil && l.isStale(existing) {
			l.logger.Warn("Taking over stale lock", "pid", existing.PID, "owner", existing.Owner)
			return l.stealLock()
		}

		if readErr == nil {
			age := time.Since(existing.Timestamp).Round(time.Second)
			return &core.LockError{
				Operation: "acquire",
				Message:   fmt.Sprintf("conversation data locked by %s (PID %d, %v ago)", existing.Owner, existing.PID, age),
				Err:       err,
			}
		}

		return &core.LockError{Operation: "acquire", Message: "lock is held", Err: err}
	}

	l.file = file

	hostname, _ := os.Hostname()
	data, _ := json.MarshalIndent(LockFile{
		PID:       os.Getpid(),
		Hostname:  hostname,
		Owner:     l.owner,
		Timestamp: time.Now(),
	}, "", "  ")

	if err := file.Truncate(0); err != nil {
		return &core.LockError{Operation: "acquire", Message: "truncate lock file", Err: err}
	}
	if _, err := file.Seek(0, 0); err != nil {
		return &core.LockError{Operation: "acquire", Message: "seek lock file", Err: err}
	}
	if _, err := file.Write(data); err != nil {
		return &core.LockError{Operation: "acquire", Message: "write lock metadata", Err: err}
	}

	return nil
}

// Release releases the lock and removes the lock file.
func (l *FileLock) Release() error {
	if l.file == nil {
		return nil
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.logger.Warn("Failed to release flock", "error", err)
	}
	if err := l.file.Close(); err != nil {
		l.logger.Warn("Failed to close lock file", "error", err)
	}
	l.file = nil

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return &core.LockError{Operation: "release", Message: "remove lock file", Err: err}
	}
	return nil
}

func (l *FileLock) readLockFile() (*LockFile, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}

	var lock LockFile
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, err
	}

	return &lock, nil
}

func (l *FileLock) isStale(lock *LockFile) bool {
	process, err := os.FindProcess(lock.PID)
	if err != nil {
		return true
	}

	// FindProcess always succeeds on Unix; signal 0 probes liveness.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return true
	}

	return time.Since(lock.Timestamp) > staleLockAge
}

func (l *FileLock) stealLock() error {
	_ = os.Remove(l.path)
	return l.Acquire()
}
