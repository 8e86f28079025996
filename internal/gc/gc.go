package gc

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/catalog"
	"github.com/hupe1980/pagedir/internal/chain"
	"github.com/hupe1980/pagedir/internal/xact"
)

// Stats reports what a collection reclaimed.
type Stats struct {
	// Entries is the number of catalog entries removed, placeholders included.
	Entries int
	// Orphans is the number of removed placeholders.
	Orphans int
	// Chains is the number of byte chains returned to the free space map.
	Chains int
	// Merges is the number of finished merge list entries removed.
	Merges int
}

// Collector reclaims catalog entries no reader can see any more.
type Collector struct {
	cat    *catalog.Catalog
	oracle xact.Oracle
	logger *slog.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger for the collector.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = l
	}
}

// New creates a collector for cat.
func New(cat *catalog.Catalog, oracle xact.Oracle, opts ...Option) *Collector {
	c := &Collector{cat: cat, oracle: oracle}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect removes recyclable entries from the catalog and frees the byte chains they
// own, then drops entries of finished merges.
func (c *Collector) Collect(ctx context.Context) (Stats, error) {
	m := c.cat.Manager()
	removed, err := c.cat.Entries().Retain(ctx, func(e catalog.SegmentMetaEntry) bool {
		return !e.Recyclable(c.oracle, m.CanCleanup)
	})

	// Entries already unlinked must have their chains freed even if the walk was
	// cut short.
	var stats Stats
	for _, e := range removed {
		stats.Entries++
		if e.IsOrphanedDelete() {
			stats.Orphans++
		}
		for _, fe := range e.FreeableChains() {
			if ferr := chain.OpenBytesList(m, fe.StartingBlock).ReturnToFSM(ctx); ferr != nil {
				err = errors.CombineErrors(err, ferr)
				continue
			}
			stats.Chains++
		}
	}
	if err != nil {
		return stats, err
	}

	stats.Merges, err = c.cat.MergeList().GarbageCollect(ctx, c.oracle)
	if err != nil {
		return stats, err
	}

	if c.logger != nil && stats.Entries+stats.Merges > 0 {
		c.logger.Info("garbage collected",
			"entries", stats.Entries,
			"orphans", stats.Orphans,
			"chains", stats.Chains,
			"merges", stats.Merges,
			"free_blocks", m.FreeBlocks(),
		)
	}
	return stats, nil
}
