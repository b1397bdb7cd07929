package repository

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/staticql/staticql/internal/staticqlerr"
)

// Local is a Repository backed by the OS filesystem, rooted at root. File
// paths passed to its methods are relative to root and always use forward
// slashes: every path is run through filepath.ToSlash before pattern
// matching.
type Local struct {
	root string
}

// NewLocal creates a filesystem-backed repository rooted at root.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) abs(relPath string) string {
	return filepath.Join(l.root, filepath.FromSlash(relPath))
}

func (l *Local) ListFiles(_ context.Context, pattern string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(l.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			return err
		}
		if matched {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, &staticqlerr.IOError{Op: "list", Path: pattern, Err: err}
	}
	return out, nil
}

func (l *Local) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(l.abs(path))
	if err != nil {
		return nil, &staticqlerr.IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

func (l *Local) OpenFileStream(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(l.abs(path))
	if err != nil {
		return nil, &staticqlerr.IOError{Op: "open", Path: path, Err: err}
	}
	return f, nil
}

func (l *Local) WriteFile(_ context.Context, path string, data []byte) error {
	abs := l.abs(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return &staticqlerr.IOError{Op: "mkdir", Path: path, Err: err}
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return &staticqlerr.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.abs(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &staticqlerr.IOError{Op: "stat", Path: path, Err: err}
}

func (l *Local) RemoveFile(_ context.Context, path string) error {
	if err := os.Remove(l.abs(path)); err != nil && !os.IsNotExist(err) {
		return &staticqlerr.IOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

func (l *Local) RemoveDir(_ context.Context, path string) error {
	if err := os.RemoveAll(l.abs(path)); err != nil {
		return &staticqlerr.IOError{Op: "removeDir", Path: path, Err: err}
	}
	return nil
}

// SetResolver is a no-op: Local can always list the filesystem directly.
func (l *Local) SetResolver(ConfigResolver) {}
