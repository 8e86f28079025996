package chain

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/page"
)

// AtomicGuard is a private copy of a list. Mutations apply to the copy and become
// visible all at once on Commit. Only one guard per list exists at a time.
type AtomicGuard[T any] struct {
	l      *ItemList[T]
	unlock func()
	header listHeader
	old    []page.BlockNumber
	clone  []page.BlockNumber
	done   bool
}

// Atomically clones the list for a batch of mutations. It blocks while another
// writer holds the list. The guard must be finished with Commit or Abort; Abort
// after Commit is a no-op so it can be deferred.
func (l *ItemList[T]) Atomically(ctx context.Context) (*AtomicGuard[T], error) {
	unlock := l.m.LockWriter(l.header)

	g := &AtomicGuard[T]{l: l, unlock: unlock}
	if err := g.cloneChain(ctx); err != nil {
		l.m.Free(g.clone...)
		unlock()
		return nil, err
	}
	return g, nil
}

func (g *AtomicGuard[T]) cloneChain(ctx context.Context) error {
	m := g.l.m
	h, err := loadHeader(m, g.l.header, itemListMagic)
	if err != nil {
		return err
	}
	g.header = h

	var prev *page.Buffer
	defer func() { prev.Release() }()

	return g.l.walk(ctx, h.start, func(src *page.Buffer) (bool, error) {
		dst, err := m.New()
		if err != nil {
			return false, err
		}
		p := dst.PageMut()
		copy(p, src.Page())
		p.SetNext(page.InvalidBlockNumber)

		g.old = append(g.old, src.Number())
		g.clone = append(g.clone, dst.Number())
		if prev != nil {
			prev.PageMut().SetNext(dst.Number())
			prev.Release()
		}
		prev = dst
		return false, nil
	})
}

func (g *AtomicGuard[T]) check() error {
	if g.done {
		return errors.AssertionFailedf("chain: use of finished atomic guard on list %d", g.l.header)
	}
	return nil
}

// LookupEx returns the first record of the copy satisfying pred and its location.
func (g *AtomicGuard[T]) LookupEx(ctx context.Context, pred func(T) bool) (T, Location, error) {
	if err := g.check(); err != nil {
		var zero T
		return zero, Location{}, err
	}
	return g.l.lookupFrom(ctx, g.clone[0], pred)
}

// List returns every record of the copy.
func (g *AtomicGuard[T]) List(ctx context.Context) ([]T, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	var out []T
	err := g.l.walk(ctx, g.clone[0], func(buf *page.Buffer) (bool, error) {
		items, _, err := g.l.decodePage(buf.Page(), buf.Number())
		out = append(out, items...)
		return false, err
	})
	return out, err
}

// Replace overwrites the record at loc. It reports false, leaving the record in
// place, when the new encoding does not fit on the page.
func (g *AtomicGuard[T]) Replace(loc Location, item T) (bool, error) {
	if err := g.check(); err != nil {
		return false, err
	}
	data, err := g.l.codec.Encode(item)
	if err != nil {
		return false, err
	}
	buf, err := g.l.m.Get(loc.Block, page.LockExclusive)
	if err != nil {
		return false, err
	}
	defer buf.Release()
	if _, ok := buf.Page().Item(loc.Offset); !ok {
		return false, errors.AssertionFailedf("chain: no record at (%d,%d)", loc.Block, loc.Offset)
	}
	return buf.PageMut().ReplaceItem(loc.Offset, data), nil
}

// Delete removes the record at loc. Later records on the same page move down by
// one offset, so locations obtained before a Delete must be looked up again.
func (g *AtomicGuard[T]) Delete(loc Location) error {
	if err := g.check(); err != nil {
		return err
	}
	buf, err := g.l.m.Get(loc.Block, page.LockExclusive)
	if err != nil {
		return err
	}
	defer buf.Release()
	if !buf.PageMut().DeleteItem(loc.Offset) {
		return errors.AssertionFailedf("chain: no record at (%d,%d)", loc.Block, loc.Offset)
	}
	return nil
}

// AddItems appends items to the copy.
func (g *AtomicGuard[T]) AddItems(ctx context.Context, items []T) error {
	if err := g.check(); err != nil {
		return err
	}
	last := g.clone[len(g.clone)-1]
	newLast, err := g.l.appendItems(ctx, last, page.InvalidBlockNumber, items)
	if newLast != last {
		g.collectClone(last)
	}
	return err
}

// collectClone records the pages appended after from.
func (g *AtomicGuard[T]) collectClone(from page.BlockNumber) {
	blkno := from
	for {
		buf, err := g.l.m.Get(blkno, page.LockShare)
		if err != nil {
			return
		}
		next := buf.Page().Next()
		buf.Release()
		if !next.Valid() {
			return
		}
		g.clone = append(g.clone, next)
		blkno = next
	}
}

// Commit publishes the copy. Readers that already started keep walking the old
// pages, which are returned to the free space map and reused once those readers end.
func (g *AtomicGuard[T]) Commit(ctx context.Context) error {
	if err := g.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	h := g.header
	h.start = g.clone[0]
	h.last = g.clone[len(g.clone)-1]
	if err := storeHeader(g.l.m, g.l.header, h); err != nil {
		return err
	}
	g.done = true
	g.l.m.Free(g.old...)
	g.unlock()

	if g.l.logger != nil {
		g.l.logger.Debug("committed list", "header", uint32(g.l.header), "pages", len(g.clone))
	}
	return nil
}

// Abort discards the copy.
func (g *AtomicGuard[T]) Abort() {
	if g == nil || g.done {
		return
	}
	g.done = true
	g.l.m.Free(g.clone...)
	g.unlock()
}
