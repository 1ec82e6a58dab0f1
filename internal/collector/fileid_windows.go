//go:build windows

package collector

import (
	"os"
	"syscall"
)

// stableFileID returns the file's creation timestamp on Windows, where
// inode numbers aren't a meaningful concept and the creation time is what
// survives a rename-based rotation instead.
func stableFileID(info os.FileInfo) (uint64, bool) {
	stat, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return 0, false
	}
	return uint64(stat.CreationTime.Nanoseconds()), true
}
