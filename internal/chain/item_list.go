package chain

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/hupe1980/pagedir/internal/page"
)

// Codec converts records to and from page items.
type Codec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}

// Pinner is implemented by records that reference other chains. ForEachAndPin pins
// the returned blocks alongside the record's own page.
type Pinner interface {
	PinBlocks() []page.BlockNumber
}

// Location addresses a record within a chain.
type Location struct {
	Block  page.BlockNumber
	Offset page.OffsetNumber
}

// ItemList is an insertion-ordered collection of records stored as items on a chain
// of pages. A header page records the first and last page of the chain; swapping
// it is how Atomically publishes a new version of the list.
type ItemList[T any] struct {
	m      *page.Manager
	header page.BlockNumber
	codec  Codec[T]
	logger *slog.Logger
}

// ListOption configures an ItemList.
type ListOption func(*listOptions)

type listOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger for a list.
func WithLogger(l *slog.Logger) ListOption {
	return func(o *listOptions) {
		o.logger = l
	}
}

// CreateItemList allocates a header page and an empty first page.
func CreateItemList[T any](m *page.Manager, codec Codec[T], opts ...ListOption) (*ItemList[T], error) {
	hbuf, err := m.New()
	if err != nil {
		return nil, err
	}
	defer hbuf.Release()

	first, err := m.New()
	if err != nil {
		return nil, err
	}
	start := first.Number()
	first.Release()

	listHeader{magic: itemListMagic, start: start, last: start}.write(hbuf.PageMut())
	return OpenItemList(m, hbuf.Number(), codec, opts...), nil
}

// OpenItemList opens the list rooted at header.
func OpenItemList[T any](m *page.Manager, header page.BlockNumber, codec Codec[T], opts ...ListOption) *ItemList[T] {
	var o listOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &ItemList[T]{m: m, header: header, codec: codec, logger: o.logger}
}

// Header returns the block number of the list's header page.
func (l *ItemList[T]) Header() page.BlockNumber {
	return l.header
}

// decodePage decodes every record on p. Item bytes are copied out of the page.
func (l *ItemList[T]) decodePage(p page.Page, blkno page.BlockNumber) ([]T, []page.OffsetNumber, error) {
	n := p.MaxOffset()
	items := make([]T, 0, n)
	offs := make([]page.OffsetNumber, 0, n)
	for off := page.FirstOffsetNumber; off <= n; off++ {
		raw, ok := p.Item(off)
		if !ok {
			continue
		}
		item, err := l.codec.Decode(append([]byte(nil), raw...))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "chain: decode item (%d,%d)", blkno, off)
		}
		items = append(items, item)
		offs = append(offs, off)
	}
	return items, offs, nil
}

// walk visits each page from start, share-locked and one at a time, taking the lock
// on a page before dropping the previous one.
func (l *ItemList[T]) walk(ctx context.Context, start page.BlockNumber, fn func(buf *page.Buffer) (bool, error)) error {
	if !start.Valid() {
		return nil
	}
	buf, err := l.m.Get(start, page.LockShare)
	if err != nil {
		return err
	}
	defer func() { buf.Release() }()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stop, err := fn(buf)
		if err != nil || stop {
			return err
		}
		next := buf.Page().Next()
		if !next.Valid() {
			return nil
		}
		buf, err = l.m.Exchange(next, buf, page.LockShare)
		if err != nil {
			return err
		}
	}
}

// scanFrom registers a scan and returns the first page of the current version.
func (l *ItemList[T]) scanFrom() (*page.Scan, page.BlockNumber, error) {
	scan := l.m.BeginScan()
	h, err := loadHeader(l.m, l.header, itemListMagic)
	if err != nil {
		scan.End()
		return nil, page.InvalidBlockNumber, err
	}
	return scan, h.start, nil
}

// LookupEx returns the first record satisfying pred and where it is stored.
func (l *ItemList[T]) LookupEx(ctx context.Context, pred func(T) bool) (T, Location, error) {
	scan, start, err := l.scanFrom()
	if err != nil {
		var zero T
		return zero, Location{}, err
	}
	defer scan.End()
	return l.lookupFrom(ctx, start, pred)
}

func (l *ItemList[T]) lookupFrom(ctx context.Context, start page.BlockNumber, pred func(T) bool) (T, Location, error) {
	var (
		found T
		loc   Location
		ok    bool
	)
	err := l.walk(ctx, start, func(buf *page.Buffer) (bool, error) {
		items, offs, err := l.decodePage(buf.Page(), buf.Number())
		if err != nil {
			return false, err
		}
		for i, item := range items {
			if pred(item) {
				found, loc, ok = item, Location{Block: buf.Number(), Offset: offs[i]}, true
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		var zero T
		return zero, Location{}, err
	}
	if !ok {
		var zero T
		return zero, Location{}, errors.Wrapf(ErrNotFound, "list at block %d", l.header)
	}
	return found, loc, nil
}

// Lookup returns the first record satisfying pred.
func (l *ItemList[T]) Lookup(ctx context.Context, pred func(T) bool) (T, error) {
	item, _, err := l.LookupEx(ctx, pred)
	return item, err
}

// ForEach calls visit for every record in insertion order.
func (l *ItemList[T]) ForEach(ctx context.Context, visit func(T) error) error {
	scan, start, err := l.scanFrom()
	if err != nil {
		return err
	}
	defer scan.End()

	return l.walk(ctx, start, func(buf *page.Buffer) (bool, error) {
		items, _, err := l.decodePage(buf.Page(), buf.Number())
		if err != nil {
			return false, err
		}
		for _, item := range items {
			if err := visit(item); err != nil {
				return false, err
			}
		}
		return false, nil
	})
}

// List returns every record.
func (l *ItemList[T]) List(ctx context.Context) ([]T, error) {
	var out []T
	err := l.ForEach(ctx, func(item T) error {
		out = append(out, item)
		return nil
	})
	return out, err
}

// IsEmpty reports whether the list holds no records.
func (l *ItemList[T]) IsEmpty(ctx context.Context) (bool, error) {
	_, err := l.Lookup(ctx, func(T) bool { return true })
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	return false, err
}

// ForEachAndPin enumerates the list and, for every record accepted by accept, pins
// the record's page and the blocks it names through Pinner before calling visit.
// The caller releases the returned pins once it no longer dereferences data reached
// through the visited records.
func (l *ItemList[T]) ForEachAndPin(ctx context.Context, accept func(T) bool, visit func(T)) (*page.PinSet, error) {
	scan, start, err := l.scanFrom()
	if err != nil {
		return nil, err
	}
	defer scan.End()

	pins := page.NewPinSet()
	err = l.walk(ctx, start, func(buf *page.Buffer) (bool, error) {
		items, _, err := l.decodePage(buf.Page(), buf.Number())
		if err != nil {
			return false, err
		}
		for _, item := range items {
			if !accept(item) {
				continue
			}
			if err := l.pin(pins, buf.Number(), item); err != nil {
				return false, err
			}
			visit(item)
		}
		return false, nil
	})
	if err != nil {
		pins.Release()
		return nil, err
	}
	return pins, nil
}

func (l *ItemList[T]) pin(pins *page.PinSet, blkno page.BlockNumber, item T) error {
	blocks := []page.BlockNumber{blkno}
	if p, ok := any(item).(Pinner); ok {
		blocks = append(blocks, p.PinBlocks()...)
	}
	for _, b := range blocks {
		if !b.Valid() || pins.Contains(b) {
			continue
		}
		pin, err := l.m.Pin(b)
		if err != nil {
			return errors.Wrapf(err, "chain: pin block %d", b)
		}
		pins.Add(pin)
	}
	return nil
}

// AddItems appends items, preferring free space on hint when it is a page of this
// list. Existing records are never modified.
func (l *ItemList[T]) AddItems(ctx context.Context, items []T, hint page.BlockNumber) error {
	if len(items) == 0 {
		return nil
	}
	unlock := l.m.LockWriter(l.header)
	defer unlock()

	h, err := loadHeader(l.m, l.header, itemListMagic)
	if err != nil {
		return err
	}
	last, err := l.appendItems(ctx, h.last, hint, items)
	if err != nil {
		return err
	}
	if last != h.last {
		h.last = last
		return storeHeader(l.m, l.header, h)
	}
	return nil
}

func (l *ItemList[T]) encodeAll(items []T) ([][]byte, error) {
	out := make([][]byte, len(items))
	for i, item := range items {
		data, err := l.codec.Encode(item)
		if err != nil {
			return nil, err
		}
		if len(data) > page.MaxItemSize {
			return nil, errors.Wrapf(page.ErrPageFull, "chain: item of %d bytes", len(data))
		}
		out[i] = data
	}
	return out, nil
}

// appendItems places items on hint, then on last, then on new pages linked after
// last. It returns the new last page of the chain.
func (l *ItemList[T]) appendItems(ctx context.Context, last, hint page.BlockNumber, items []T) (page.BlockNumber, error) {
	encoded, err := l.encodeAll(items)
	if err != nil {
		return last, err
	}

	for _, target := range []page.BlockNumber{hint, last} {
		if !target.Valid() || target == l.header || len(encoded) == 0 {
			continue
		}
		buf, err := l.m.Get(target, page.LockExclusive)
		if err != nil {
			return last, err
		}
		p := buf.PageMut()
		for len(encoded) > 0 && p.AddItem(encoded[0]) != page.InvalidOffsetNumber {
			encoded = encoded[1:]
		}
		buf.Release()
	}

	for len(encoded) > 0 {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		nb, err := l.m.New()
		if err != nil {
			return last, err
		}
		p := nb.PageMut()
		for len(encoded) > 0 && p.AddItem(encoded[0]) != page.InvalidOffsetNumber {
			encoded = encoded[1:]
		}

		// Link only once the page is filled; readers reaching it wait on its lock.
		prev, err := l.m.Get(last, page.LockExclusive)
		if err != nil {
			nb.Release()
			return last, err
		}
		prev.PageMut().SetNext(nb.Number())
		prev.Release()
		last = nb.Number()
		nb.Release()
	}
	return last, nil
}

// Retain removes, in place, every record for which keep returns false and returns
// the removed records. Pages left empty are unlinked and freed, except the first.
// When ctx is cancelled part way, the records removed so far are returned with the
// error.
func (l *ItemList[T]) Retain(ctx context.Context, keep func(T) bool) ([]T, error) {
	unlock := l.m.LockWriter(l.header)
	defer unlock()

	h, err := loadHeader(l.m, l.header, itemListMagic)
	if err != nil {
		return nil, err
	}

	var (
		removed []T
		freed   []page.BlockNumber
		prev    *page.Buffer
		done    bool
	)
	defer func() { prev.Release() }()

	cur, err := l.m.Get(h.start, page.LockExclusive)
	if err != nil {
		return nil, err
	}
	lastKept := h.start
	for {
		items, offs, derr := l.decodePage(cur.Page(), cur.Number())
		if derr != nil {
			cur.Release()
			return removed, derr
		}
		var drop []page.OffsetNumber
		for i, item := range items {
			if !keep(item) {
				drop = append(drop, offs[i])
				removed = append(removed, item)
			}
		}
		if len(drop) > 0 {
			cur.PageMut().DeleteItems(drop)
		}

		next := cur.Page().Next()
		if prev != nil && cur.Page().MaxOffset() == 0 {
			prev.PageMut().SetNext(next)
			freed = append(freed, cur.Number())
			cur.Release()
		} else {
			prev.Release()
			prev = cur
			lastKept = cur.Number()
		}
		if !next.Valid() {
			done = true
			break
		}
		if err = ctx.Err(); err != nil {
			break
		}
		cur, err = l.m.Get(next, page.LockExclusive)
		if err != nil {
			break
		}
	}
	prev.Release()

	if done && lastKept != h.last {
		h.last = lastKept
		if serr := storeHeader(l.m, l.header, h); serr != nil && err == nil {
			err = serr
		}
	}
	l.m.Free(freed...)
	if l.logger != nil && (len(removed) > 0 || len(freed) > 0) {
		l.logger.Debug("retained list", "header", uint32(l.header), "removed", len(removed), "freed_pages", len(freed))
	}
	return removed, err
}

// FreeableBlocks returns every block of the list, header included.
func (l *ItemList[T]) FreeableBlocks(ctx context.Context) ([]page.BlockNumber, error) {
	scan, start, err := l.scanFrom()
	if err != nil {
		return nil, err
	}
	defer scan.End()

	blocks := []page.BlockNumber{l.header}
	err = l.walk(ctx, start, func(buf *page.Buffer) (bool, error) {
		blocks = append(blocks, buf.Number())
		return false, nil
	})
	return blocks, err
}
