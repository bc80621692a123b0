// Package storage defines the root-confined filesystem abstraction over the
// managed torrents directory.
package storage

import (
	"context"
	"time"
)

// Entry describes one path found under the managed root.
type Entry struct {
	Path    string    // absolute path
	Dir     bool
	Size    int64
	ModTime time.Time
	Changed time.Time // inode change time; zero where the platform has none
}

// Provider is the interface for managed-root file operations. Every path
// argument may be absolute (under the root) or relative to it.
type Provider interface {
	// Root returns the absolute managed root.
	Root() string
	// Walk returns every path below the root, children before their parent
	// directories. The root itself is not returned.
	Walk(ctx context.Context) ([]Entry, error)
	// IsEmptyDir reports whether path is a directory with no entries.
	IsEmptyDir(path string) (bool, error)
	// Remove deletes a file or an empty directory. The root cannot be removed.
	Remove(path string) error
}
