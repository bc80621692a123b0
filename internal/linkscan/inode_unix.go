//go:build unix

package linkscan

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// inodeKey uniquely identifies a file on a mounted filesystem.
type inodeKey struct {
	dev uint64
	ino uint64
}

type fileStat struct {
	key   inodeKey
	links uint64
}

// lstatPath stats path without following a final symlink.
func lstatPath(path string) (fileStat, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return fileStat{}, fmt.Errorf("lstat %s: %w", path, err)
	}
	return fileStat{
		key:   inodeKey{dev: uint64(st.Dev), ino: uint64(st.Ino)},
		links: uint64(st.Nlink),
	}, nil
}
