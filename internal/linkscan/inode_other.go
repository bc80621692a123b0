//go:build !unix

package linkscan

import "errors"

type inodeKey struct {
	dev uint64
	ino uint64
}

type fileStat struct {
	key   inodeKey
	links uint64
}

// lstatPath is unsupported without POSIX inode numbers.
func lstatPath(path string) (fileStat, error) {
	return fileStat{}, errors.New("linkscan: hard link detection requires a unix platform")
}
