package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/blobstore"
	"github.com/hupe1980/pagedir/internal/page"
	"github.com/hupe1980/pagedir/internal/resource"
)

const (
	// ImagePrefix starts the name of every page image.
	ImagePrefix = "PAGES-"
	// CurrentFileName holds the name of the latest complete image.
	CurrentFileName = "CURRENT"
)

// ErrNotFound is returned when no checkpoint has been written yet.
var ErrNotFound = errors.New("checkpoint not found")

// ImageName returns the blob name of image id.
func ImageName(id uint64) string {
	return fmt.Sprintf("%s%06d.bin", ImagePrefix, id)
}

// parseImageName returns the id of an image name.
func parseImageName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, ImagePrefix) || !strings.HasSuffix(name, ".bin") {
		return 0, false
	}
	var id uint64
	if _, err := fmt.Sscanf(name, ImagePrefix+"%d.bin", &id); err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// Info describes a written or loaded image.
type Info struct {
	ID          uint64
	Name        string
	Pages       int
	Bytes       int64
	Compression Compression
	Duration    time.Duration
}

// Image is a decoded checkpoint.
type Image struct {
	Info
	Pages []page.Page
}

// Store writes page images to a blob store and maintains the CURRENT pointer.
//
// An image blob is written in full before CURRENT is repointed at it, so a crash
// between the two leaves the previous checkpoint current.
type Store struct {
	mu sync.Mutex

	blobs       blobstore.BlobStore
	compression Compression
	workers     int
	rc          *resource.Controller
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCompression sets the page codec for new images. Existing images record
// their own codec.
func WithCompression(c Compression) Option {
	return func(s *Store) {
		s.compression = c
	}
}

// WithConcurrency bounds the goroutines compressing pages.
func WithConcurrency(n int) Option {
	return func(s *Store) {
		s.workers = n
	}
}

// WithResourceController throttles image uploads with rc's IO limiter.
func WithResourceController(rc *resource.Controller) Option {
	return func(s *Store) {
		s.rc = rc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates a checkpoint store over blobs.
func NewStore(blobs blobstore.BlobStore, opts ...Option) *Store {
	s := &Store{
		blobs:       blobs,
		compression: CompressionSnappy,
		workers:     runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes pages as the next image and makes it current.
func (s *Store) Save(ctx context.Context, pages []page.Page) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	ids, err := s.list(ctx)
	if err != nil {
		return Info{}, err
	}
	var id uint64 = 1
	if len(ids) > 0 {
		id = ids[len(ids)-1] + 1
	}

	data, err := encode(ctx, pages, s.compression, s.workers)
	if err != nil {
		return Info{}, err
	}
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return Info{}, err
	}

	name := ImageName(id)
	if err := s.blobs.Put(ctx, name, data); err != nil {
		return Info{}, errors.Wrapf(err, "checkpoint: write %s", name)
	}
	if err := s.blobs.Put(ctx, CurrentFileName, []byte(name)); err != nil {
		return Info{}, errors.Wrap(err, "checkpoint: update CURRENT")
	}

	info := Info{
		ID:          id,
		Name:        name,
		Pages:       len(pages),
		Bytes:       int64(len(data)),
		Compression: s.compression,
		Duration:    time.Since(start),
	}
	if s.logger != nil {
		s.logger.Info("checkpoint written",
			"name", name,
			"pages", info.Pages,
			"bytes", info.Bytes,
			"compression", info.Compression.String(),
			"duration", info.Duration)
	}
	return info, nil
}

// Load reads the current image. It returns ErrNotFound if none was written and
// ErrCorrupted if CURRENT names an image that does not exist.
func (s *Store) Load(ctx context.Context) (*Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := blobstore.ReadAll(ctx, s.blobs, CurrentFileName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "checkpoint: read CURRENT")
	}
	id, ok := parseImageName(string(current))
	if !ok {
		return nil, errors.Wrapf(ErrCorrupted, "CURRENT names %q", current)
	}
	img, err := s.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, errors.Wrapf(ErrCorrupted, "CURRENT names missing image %s", ImageName(id))
	}
	return img, err
}

// LoadID reads image id regardless of CURRENT.
func (s *Store) LoadID(ctx context.Context, id uint64) (*Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, id)
}

func (s *Store) load(ctx context.Context, id uint64) (*Image, error) {
	start := time.Now()
	name := ImageName(id)
	data, err := blobstore.ReadAll(ctx, s.blobs, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "image %s", name)
		}
		return nil, errors.Wrapf(err, "checkpoint: read %s", name)
	}
	pages, c, err := decode(ctx, data, s.workers)
	if err != nil {
		return nil, errors.Wrapf(err, "checkpoint: decode %s", name)
	}
	return &Image{
		Info: Info{
			ID:          id,
			Name:        name,
			Pages:       len(pages),
			Bytes:       int64(len(data)),
			Compression: c,
			Duration:    time.Since(start),
		},
		Pages: pages,
	}, nil
}

// List returns the ids of all stored images in ascending order.
func (s *Store) List(ctx context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(ctx)
}

func (s *Store) list(ctx context.Context) ([]uint64, error) {
	names, err := s.blobs.List(ctx, ImagePrefix)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: list images")
	}
	ids := make([]uint64, 0, len(names))
	for _, name := range names {
		if id, ok := parseImageName(name); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Prune deletes all but the newest keep images. The current image is never
// deleted. It returns the number of deleted images.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.list(ctx)
	if err != nil {
		return 0, err
	}
	var current uint64
	if b, err := blobstore.ReadAll(ctx, s.blobs, CurrentFileName); err == nil {
		current, _ = parseImageName(string(b))
	}

	keep = max(keep, 1)
	if len(ids) <= keep {
		return 0, nil
	}
	deleted := 0
	for _, id := range ids[:len(ids)-keep] {
		if id == current {
			continue
		}
		if err := s.blobs.Delete(ctx, ImageName(id)); err != nil {
			return deleted, errors.Wrapf(err, "checkpoint: delete %s", ImageName(id))
		}
		deleted++
	}
	if s.logger != nil && deleted > 0 {
		s.logger.Debug("pruned checkpoints", "deleted", deleted, "kept", keep)
	}
	return deleted, nil
}
