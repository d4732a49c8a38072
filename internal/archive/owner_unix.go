//go:build !windows
// +build !windows

package archive

import (
	"archive/tar"
	"os"
	"syscall"
)

// setHeaderOwner records the numeric owner of the source file in the tar
// header. Ownership is informational only, extraction does not change file
// owners.
func setHeaderOwner(hdr *tar.Header, fi os.FileInfo) {
	stat, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}

	hdr.Uid = int(stat.Uid)
	hdr.Gid = int(stat.Gid)
}
