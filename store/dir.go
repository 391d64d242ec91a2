package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	lockFileName  = ".lock"
	lockTimeout   = 5 * time.Second
	lockRetry     = 10 * time.Millisecond
	lockStaleAfer = 2 * time.Minute
)

// Dir is a Storage that keeps one file per key inside a directory. Writes go
// through a temp file and a rename, and batches hold a lock file, so several
// processes can share the directory. Other processes observe changes through
// the file system (see broadcast.Watcher).
type Dir struct {
	root string
}

// NewDir creates the directory if needed and returns a Storage rooted there.
func NewDir(root string) (*Dir, error) {
	err := os.MkdirAll(root, 0o755)
	if err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	return &Dir{root: root}, nil
}

// Root returns the directory holding the key files.
func (d *Dir) Root() string {
	return d.root
}

// KeyFromPath maps a file inside the storage directory back to its key. It
// reports false for temp files, the lock file and anything outside root.
func (d *Dir) KeyFromPath(path string) (string, bool) {
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(d.root) {
		return "", false
	}

	name := filepath.Base(path)
	if validKey(name) != nil {
		return "", false
	}

	return name, true
}

func (d *Dir) Get(key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}

	b, err := os.ReadFile(filepath.Join(d.root, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return b, nil
}

func (d *Dir) Apply(batch Batch) error {
	for k := range batch {
		if err := validKey(k); err != nil {
			return err
		}
	}

	return d.withLock(func() error {
		for _, k := range batch.SortedKeys() {
			path := filepath.Join(d.root, k)

			v := batch[k]
			if v == nil {
				err := os.Remove(path)
				if err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("remove %s: %w", k, err)
				}

				continue
			}

			err := writeFileAtomic(path, v, 0o600)
			if err != nil {
				return fmt.Errorf("write %s: %w", k, err)
			}
		}

		return nil
	})
}

func (d *Dir) Keys() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}

	var keys []string

	for _, e := range entries {
		if e.IsDir() || validKey(e.Name()) != nil {
			continue
		}

		keys = append(keys, e.Name())
	}

	return keys, nil
}

func (d *Dir) Close() error {
	return nil
}

func (d *Dir) withLock(fn func() error) error {
	lockPath := filepath.Join(d.root, lockFileName)
	start := time.Now()

	for {
		lockFile, err := os.OpenFile(
			lockPath,
			os.O_CREATE|os.O_EXCL|os.O_WRONLY,
			0o600,
		)
		if err == nil {
			_ = lockFile.Close()

			defer func() {
				_ = os.Remove(lockPath)
			}()

			return fn()
		}

		if !os.IsExist(err) {
			return fmt.Errorf("acquire storage lock: %w", err)
		}

		if info, serr := os.Stat(lockPath); serr == nil &&
			time.Since(info.ModTime()) > lockStaleAfer {
			_ = os.Remove(lockPath)
			continue
		}

		if time.Since(start) >= lockTimeout {
			return ErrStoreBusy
		}

		time.Sleep(lockRetry)
	}
}

func writeFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	base := filepath.Base(path)

	tempFile, err := os.CreateTemp(parent, "."+base+".tmp-*")
	if err != nil {
		return err
	}

	tempPath := tempFile.Name()
	cleanup := true

	defer func() {
		if cleanup {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err = tempFile.Write(content); err != nil {
		_ = tempFile.Close()
		return err
	}

	if err = tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return err
	}

	if err = tempFile.Chmod(mode); err != nil {
		_ = tempFile.Close()
		return err
	}

	if err = tempFile.Close(); err != nil {
		return err
	}

	if err = os.Rename(tempPath, path); err != nil {
		if runtime.GOOS != "windows" {
			return err
		}

		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			return rerr
		}

		if err = os.Rename(tempPath, path); err != nil {
			return err
		}
	}

	cleanup = false

	return nil
}

// validKey rejects keys that cannot be used as a plain file name in the
// storage directory. Dot-prefixed names are reserved for temp and lock files.
func validKey(key string) error {
	if key == "" ||
		strings.HasPrefix(key, ".") ||
		strings.ContainsAny(key, `/\`) {
		return errInvalidKey.Fmt(key)
	}

	return nil
}
