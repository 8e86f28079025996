//go:build linux

package page

import (
	"golang.org/x/sys/unix"

	"github.com/hupe1980/pagedir/internal/fs"
)

// datasync uses fdatasync when the file exposes a descriptor; page files never
// change metadata other than their size, which fdatasync covers.
func datasync(f fs.File) error {
	if fd, ok := f.(interface{ Fd() uintptr }); ok {
		return unix.Fdatasync(int(fd.Fd()))
	}
	return f.Sync()
}
