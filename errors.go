package pagedir

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/blobstore"
	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/checkpoint"
	"github.com/hupe1980/pagedir/internal/deletes"
	"github.com/hupe1980/pagedir/internal/page"
	"github.com/hupe1980/pagedir/internal/resource"
)

var (
	// ErrNotFound is returned when a segment, component file or checkpoint does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrCorrupted is returned when stored state violates an invariant of the
	// directory, or a page or checkpoint fails verification.
	ErrCorrupted = errors.New("directory corrupted")

	// ErrClosed is returned by operations on a closed Directory.
	ErrClosed = errors.New("directory closed")

	// ErrNoBlobStore is returned by Checkpoint when no blob store is configured.
	ErrNoBlobStore = errors.New("no blob store configured")

	// ErrExternalOracle is returned by Begin and Snapshot when transactions are
	// managed by an oracle passed with WithOracle.
	ErrExternalOracle = errors.New("transactions are managed by an external oracle")

	// ErrMemoryLimitExceeded is returned when the memory limit would be exceeded.
	ErrMemoryLimitExceeded = errors.New("memory limit exceeded")
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, chain.ErrNotFound) ||
		errors.Is(err, blobstore.ErrNotFound) ||
		errors.Is(err, checkpoint.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Anything that failed verification.
	if errors.IsAssertionFailure(err) ||
		errors.Is(err, page.ErrChecksumMismatch) ||
		errors.Is(err, checkpoint.ErrCorrupted) ||
		errors.Is(err, checkpoint.ErrChecksumMismatch) ||
		errors.Is(err, deletes.ErrCorrupted) {
		return fmt.Errorf("%w: %w", ErrCorrupted, err)
	}

	if errors.Is(err, resource.ErrMemoryLimitExceeded) {
		return fmt.Errorf("%w: %w", ErrMemoryLimitExceeded, err)
	}

	return err
}
