package objstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jonaylor89/freqmoda/pkg/pathsafe"
)

// LocalFS stores objects on the local filesystem under a root directory plus
// an optional path prefix. Writes are atomic: the new contents are written to
// a sibling temp file and renamed into place, so a concurrent reader always
// sees either the whole previous file or the whole new one, never a partial
// write.
type LocalFS struct {
	root       string
	pathPrefix string
}

// NewLocalFS returns a LocalFS backed by root. The directory is created if
// needed. pathPrefix, if non-empty, is joined under root before any key.
func NewLocalFS(root, pathPrefix string) (*LocalFS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root %q: %w", root, err)
	}
	return &LocalFS{root: root, pathPrefix: pathPrefix}, nil
}

func (l *LocalFS) FullPath(key string) string {
	safe, err := pathsafe.Normalise(key)
	if err != nil {
		safe = "_"
	}
	if l.pathPrefix != "" {
		return filepath.Join(l.root, l.pathPrefix, filepath.FromSlash(safe))
	}
	return filepath.Join(l.root, filepath.FromSlash(safe))
}

func (l *LocalFS) Get(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(l.FullPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	return b, nil
}

func (l *LocalFS) Put(_ context.Context, key string, data []byte) error {
	dest := l.FullPath(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmp := dest + ".tmp-" + uuid.NewString()
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp %q: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp %q: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp %q: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %q -> %q: %w", tmp, dest, err)
	}
	return nil
}

func (l *LocalFS) Delete(_ context.Context, key string) error {
	err := os.Remove(l.FullPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (l *LocalFS) Stat(_ context.Context, key string) (int64, bool, error) {
	fi, err := os.Stat(l.FullPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return fi.Size(), true, nil
}
