// Package backup installs converted archives on disk without ever leaving the
// original unrecoverable.
//
// New content is staged in a temporary file next to its destination and
// moved into place with a rename. When a backup is requested the original is
// renamed to a ".bak" sibling first; if that fails nothing destructive has
// happened yet. Archives are also guarded by an advisory lock so two
// comiconv processes never rewrite the same file at once.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
)

var (
	// ErrBackup marks a failure to preserve the original archive.
	ErrBackup = errors.New("backup failed")
	// ErrLocked is returned when another process holds the archive lock.
	ErrLocked = errors.New("archive is locked by another process")
)

// Suffix is appended to the original file name to form the backup path.
const Suffix = ".bak"

// Lock is an advisory lock held on an archive while it is converted.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes a non-blocking exclusive lock on path.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

// Path returns a backup path for original that does not exist yet:
// "<file>.bak", then "<file>.bak.1", "<file>.bak.2" and so on.
func Path(original string) string {
	candidate := original + Suffix
	for i := 1; ; i++ {
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
		candidate = original + Suffix + "." + strconv.Itoa(i)
	}
}

// Stage writes new content into a temporary file in dir via write. The file
// is synced and closed before Stage returns; on any error it is removed.
func Stage(dir string, mode fs.FileMode, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	tmpFile, err := os.CreateTemp(dir, ".comiconv-*.tmp")
	if err != nil {
		return "", err
	}
	tmpPath := tmpFile.Name()

	fail := func(err error) (string, error) {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}

	if err := tmpFile.Chmod(mode.Perm()); err != nil {
		return fail(err)
	}
	if err := write(tmpFile); err != nil {
		return fail(err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fail(err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

// Plan describes how a staged archive replaces its original.
type Plan struct {
	// Original is the input archive.
	Original string
	// Dest is where the staged file ends up. It equals Original for an
	// in-place conversion that keeps the container format.
	Dest string
	// Keep renames Original to a backup path before anything is replaced.
	Keep bool
	// Supersede removes Original once Dest is in place, for in-place
	// conversions that change the file name.
	Supersede bool
}

// Replace moves staged into place according to p and returns the backup
// path, if one was made. The staged file is removed when Replace fails.
func Replace(staged string, p Plan) (string, error) {
	var backupPath string
	if p.Keep {
		backupPath = Path(p.Original)
		if err := os.Rename(p.Original, backupPath); err != nil {
			_ = os.Remove(staged)
			return "", fmt.Errorf("%w: %v", ErrBackup, err)
		}
	}

	if err := replaceFile(staged, p.Dest); err != nil {
		_ = os.Remove(staged)
		if backupPath != "" {
			if _, statErr := os.Lstat(p.Original); errors.Is(statErr, fs.ErrNotExist) {
				_ = os.Rename(backupPath, p.Original)
				backupPath = ""
			}
		}
		return backupPath, fmt.Errorf("install %s: %w", filepath.Base(p.Dest), err)
	}

	if p.Supersede && !p.Keep && filepath.Clean(p.Original) != filepath.Clean(p.Dest) {
		if err := os.Remove(p.Original); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("remove superseded %s: %w", filepath.Base(p.Original), err)
		}
	}
	return backupPath, nil
}

// replaceFile renames tmpPath over destPath. A failed rename leaves
// destPath untouched.
func replaceFile(tmpPath, destPath string) error {
	return os.Rename(tmpPath, destPath)
}
