// Package linkscan decides whether downloaded content is still reachable
// from the media library through hard links.
package linkscan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/seedkeeper/internal/logging"
)

// errStop ends a WalkDir early once a search has its answer.
var errStop = errors.New("linkscan: stop walk")

// Replaced in tests to inject filesystem failures.
var (
	statPath = lstatPath
	walkDir  = filepath.WalkDir
)

// Resolver enumerates hard links within a single volume root. It never
// crosses into another filesystem mounted below that root.
type Resolver struct {
	volume string // absolute path of the data volume
	logger *slog.Logger
}

// New creates a Resolver for the volume rooted at dir. The directory must exist.
func New(dir string, logger *slog.Logger) (*Resolver, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("linkscan: resolve volume: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("linkscan: stat volume: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("linkscan: volume is not a directory: %s", abs)
	}
	return &Resolver{volume: abs, logger: logger}, nil
}

// Volume returns the absolute volume root.
func (r *Resolver) Volume() string { return r.volume }

// HasHardlinkUnder reports whether any regular file in contentPath (a file
// or a directory tree) has a second link that lives under protectedRoot.
//
// Files with a single link are skipped without searching. A missing
// contentPath yields false. Stat failures on individual files count as
// "no match" and are logged; a failure walking contentPath itself or the
// protected root is returned.
func (r *Resolver) HasHardlinkUnder(ctx context.Context, contentPath, protectedRoot string) (bool, error) {
	info, err := os.Lstat(contentPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("linkscan: content path does not exist, probably deleted",
				slog.String("path", contentPath))
			return false, nil
		}
		r.logger.Warn("linkscan: stat content path failed",
			slog.String("path", contentPath), slog.String("error", err.Error()))
		return false, nil
	}

	var candidates map[inodeKey]string
	switch {
	case info.Mode().IsRegular():
		candidates = r.linkedFile(contentPath, nil)
	case info.IsDir():
		candidates, err = r.linkedFiles(ctx, contentPath)
		if err != nil {
			return false, err
		}
	default:
		r.logger.Warn("linkscan: content path is neither file nor directory",
			slog.String("path", contentPath))
		return false, nil
	}
	if len(candidates) == 0 {
		return false, nil
	}

	root, err := r.searchRoot(protectedRoot)
	if err != nil {
		return false, err
	}
	found, err := r.anyFile(ctx, root, func(path string, st fileStat) bool {
		_, ok := candidates[st.key]
		return ok
	})
	if err != nil {
		return false, err
	}
	if found {
		logging.Trace(r.logger, "linkscan: content has hard links in protected root",
			slog.String("path", contentPath), slog.String("root", root))
	}
	return found, nil
}

// Links enumerates every path on the volume that shares the inode of path,
// including path itself.
func (r *Resolver) Links(ctx context.Context, path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("linkscan: resolve path: %w", err)
	}
	st, err := statPath(abs)
	if err != nil {
		return nil, fmt.Errorf("linkscan: %w", err)
	}
	if st.links < 2 {
		return []string{abs}, nil
	}

	var out []string
	_, err = r.anyFile(ctx, r.volume, func(p string, other fileStat) bool {
		if other.key != st.key {
			return false
		}
		out = append(out, p)
		return uint64(len(out)) >= st.links
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// linkedFile adds path to into when it has more than one link.
func (r *Resolver) linkedFile(path string, into map[inodeKey]string) map[inodeKey]string {
	st, err := statPath(path)
	if err != nil {
		r.logger.Warn("linkscan: inode lookup failed", slog.String("path", path), slog.String("error", err.Error()))
		return into
	}
	logging.Trace(r.logger, "linkscan: link count", slog.String("path", path), slog.Uint64("links", st.links))
	if st.links < 2 {
		return into
	}
	if into == nil {
		into = make(map[inodeKey]string)
	}
	into[st.key] = path
	return into
}

// linkedFiles collects every multiply-linked regular file below dir.
func (r *Resolver) linkedFiles(ctx context.Context, dir string) (map[inodeKey]string, error) {
	var out map[inodeKey]string
	err := walkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type().IsRegular() {
			out = r.linkedFile(p, out)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("linkscan: walk %s: %w", dir, err)
	}
	return out, nil
}

// searchRoot returns the directory to enumerate for links under protectedRoot.
// Only paths under protectedRoot can satisfy the search, so the walk is
// limited to it; it must lie on the volume.
func (r *Resolver) searchRoot(protectedRoot string) (string, error) {
	abs, err := filepath.Abs(protectedRoot)
	if err != nil {
		return "", fmt.Errorf("linkscan: resolve protected root: %w", err)
	}
	if !Within(r.volume, abs) {
		return "", fmt.Errorf("linkscan: protected root %s is outside volume %s", abs, r.volume)
	}
	return abs, nil
}

// anyFile walks root and returns true as soon as match accepts a regular
// file. Directories on another device are skipped, as are subtrees that
// cannot be read.
func (r *Resolver) anyFile(ctx context.Context, root string, match func(path string, st fileStat) bool) (bool, error) {
	rootStat, err := statPath(root)
	if err != nil {
		return false, fmt.Errorf("linkscan: %w", err)
	}
	dev := rootStat.key.dev

	err = walkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == root {
				return walkErr
			}
			r.logger.Warn("linkscan: skipping unreadable path", slog.String("path", p), slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}
		st, err := statPath(p)
		if err != nil {
			r.logger.Warn("linkscan: skipping unstatable path", slog.String("path", p), slog.String("error", err.Error()))
			return nil
		}
		if st.key.dev != dev {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if match(p, st) {
			return errStop
		}
		return nil
	})
	if errors.Is(err, errStop) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("linkscan: walk %s: %w", root, err)
	}
	return false, nil
}

// Within reports whether p is root or lies below it. Both must be clean
// absolute paths.
func Within(root, p string) bool {
	root = filepath.Clean(root)
	p = filepath.Clean(p)
	if p == root {
		return true
	}
	if root == string(os.PathSeparator) {
		return strings.HasPrefix(p, root)
	}
	return strings.HasPrefix(p, root+string(os.PathSeparator))
}
