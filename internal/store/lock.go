package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

const lockFileName = "lock"

// lockFile marks a store directory as in use by one writer.
type lockFile struct {
	path string
}

// lockOwner identifies this process in the lock file as user@host.
func lockOwner() string {
	name := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return name + "@" + host
}

// acquireLock creates the lock file in dir. If one exists and force is
// false, it fails with ErrLocked naming the holder.
func acquireLock(dir string, force bool) (*lockFile, error) {
	path := filepath.Join(dir, lockFileName)
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := f.WriteString(lockOwner())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("write lock file: %w", errors.Join(werr, cerr))
			}
			return &lockFile{path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if !force {
			return nil, fmt.Errorf("%w (held by %s)", ErrLocked, LockHolder(dir))
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("break lock: %w", err)
		}
	}
	return nil, ErrLocked
}

// LockHolder returns the owner recorded in dir's lock file, or "" when the
// store is not locked.
func LockHolder(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, lockFileName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (l *lockFile) release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
