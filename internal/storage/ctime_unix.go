//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package storage

import (
	"time"

	"golang.org/x/sys/unix"
)

// changedAt returns the inode change time of path, or zero if it cannot be read.
func changedAt(path string) time.Time {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return time.Time{}
	}
	return time.Unix(st.Ctim.Unix())
}
