package page

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/fs"
)

// FileStore keeps pages in a single file, block n at offset n*Size.
type FileStore struct {
	f    fs.File
	path string
}

// OpenFileStore opens or creates the page file at path.
func OpenFileStore(fsys fs.FileSystem, path string) (*FileStore, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "page: open %s", path)
	}
	return &FileStore{f: f, path: path}, nil
}

func (s *FileStore) NumBlocks() (BlockNumber, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "page: stat %s", s.path)
	}
	if info.Size()%Size != 0 {
		return 0, errors.AssertionFailedf("page: %s has torn size %d", s.path, info.Size())
	}
	return BlockNumber(info.Size() / Size), nil
}

func (s *FileStore) ReadPage(blkno BlockNumber, dst Page) error {
	n, err := s.f.ReadAt(dst[:Size], int64(blkno)*Size)
	if errors.Is(err, io.EOF) {
		clear(dst[n:])
		return nil
	}
	return err
}

func (s *FileStore) WritePage(blkno BlockNumber, src Page) error {
	_, err := s.f.WriteAt(src[:Size], int64(blkno)*Size)
	return err
}

// Sync flushes written pages to stable storage.
func (s *FileStore) Sync() error {
	return datasync(s.f)
}

func (s *FileStore) Close() error {
	return s.f.Close()
}
