package pagedir_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/pagedir"
	"github.com/hupe1980/pagedir/blobstore"
)

// Example demonstrates committing a segment and loading it through a snapshot.
func Example() {
	ctx := context.Background()

	dir, err := pagedir.Open(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer dir.Close()

	// Write the segment's files first
	seg := pagedir.SegmentMeta{ID: pagedir.NewSegmentID(), MaxDoc: 100}
	fe, err := dir.WriteComponent(ctx, []byte("postings"))
	if err != nil {
		log.Fatal(err)
	}
	files := map[string]pagedir.FileEntry{pagedir.ComponentPath(seg.ID, pagedir.Postings): fe}

	txn, err := dir.Begin()
	if err != nil {
		log.Fatal(err)
	}
	if _, err := dir.SaveNewMetas(ctx, txn, nil, []pagedir.SegmentMeta{seg}, 1, files); err != nil {
		log.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		log.Fatal(err)
	}

	snap, err := dir.Snapshot(nil)
	if err != nil {
		log.Fatal(err)
	}
	defer snap.Release()

	res, err := dir.LoadMetas(ctx, pagedir.SnapshotPolicy(snap))
	if err != nil {
		log.Fatal(err)
	}
	defer res.Release()

	fmt.Println(len(res.Index.Segments), res.Index.Segments[0].MaxDoc)
	// Output: 1 100
}

// ExampleDirectory_Checkpoint demonstrates restoring a directory from a checkpoint.
func ExampleDirectory_Checkpoint() {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	dir, err := pagedir.Open(ctx, pagedir.WithBlobStore(blobs))
	if err != nil {
		log.Fatal(err)
	}
	info, err := dir.Checkpoint(ctx)
	if err != nil {
		log.Fatal(err)
	}
	_ = dir.Close()

	// An empty page store is filled from the current checkpoint
	restored, err := pagedir.Open(ctx, pagedir.WithBlobStore(blobs))
	if err != nil {
		log.Fatal(err)
	}
	defer restored.Close()

	fmt.Println(info.Name)
	// Output: PAGES-000001.bin
}
