package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the managed directory
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute managed root.
func (f *FS) Root() string { return f.root }

// safePath resolves p against the root and rejects any result that escapes
// it (directory traversal). Absolute paths are accepted when they already
// lie under the root.
func (f *FS) safePath(p string) (string, error) {
	if p == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(p)
	if !filepath.IsAbs(cleaned) {
		cleaned = filepath.Join(f.root, cleaned)
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes managed root: %s", p)
	}
	return abs, nil
}

// Walk lists the tree below the root in post-order: a directory always
// follows everything it contains.
func (f *FS) Walk(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == f.root {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, entryOf(p, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: walk: %w", err)
	}

	// WalkDir is pre-order; reversing puts children ahead of their parents.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// IsEmptyDir reports whether path is a directory with no entries.
func (f *FS) IsEmptyDir(path string) (bool, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return false, err
	}
	dir, err := os.Open(abs)
	if err != nil {
		return false, fmt.Errorf("storage: open %s: %w", path, err)
	}
	defer dir.Close()

	info, err := dir.Stat()
	if err != nil {
		return false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return false, nil
	}
	if _, err := dir.Readdirnames(1); err != nil {
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		return false, fmt.Errorf("storage: read dir %s: %w", path, err)
	}
	return false, nil
}

// Remove deletes a file or an empty directory under the root.
func (f *FS) Remove(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: refusing to remove managed root")
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}
	return nil
}

func entryOf(abs string, info fs.FileInfo) Entry {
	e := Entry{Path: abs, Dir: info.IsDir(), ModTime: info.ModTime(), Changed: changedAt(abs)}
	if !e.Dir {
		e.Size = info.Size()
	}
	return e
}
