package chain

import "github.com/cockroachdb/errors"

var (
	// ErrNotFound is returned when no record matches a lookup predicate.
	ErrNotFound = errors.New("chain: record not found")

	// ErrNotEmpty is returned when writing to a byte chain that already holds data.
	ErrNotEmpty = errors.New("chain: byte chain is not empty")
)
