//go:build !windows

package collector

import (
	"os"
	"syscall"
)

// stableFileID returns the inode number on POSIX, a stable identity that
// survives rename-based rotation and lets reconcile tell a rotated file
// apart from the one it already has open.
func stableFileID(info os.FileInfo) (uint64, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(stat.Ino), true
}
