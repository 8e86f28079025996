//go:build !linux

package page

import "github.com/hupe1980/pagedir/internal/fs"

func datasync(f fs.File) error {
	return f.Sync()
}
