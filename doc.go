// Package pagedir is the segment metadata directory of a search index whose
// immutable segment files live in fixed-size pages.
//
// A Directory records which segments exist, reconciles that record when a commit
// or merge creates and retires segments, and answers which segments a reader
// sees under one of four policies:
//
//   - SnapshotPolicy: the segments visible to an MVCC snapshot
//   - VacuumPolicy: every alive segment
//   - MergeablePolicy: alive segments no running merge consumes
//   - ParallelWorkerPolicy: exactly the segments a leader handed out
//
// Segment component files are stored as byte chains in the same pages. Retired
// segments are reclaimed by GarbageCollect once no reader can see them, and the
// pages can be checkpointed to a blob store (local disk, S3, MinIO).
//
// # Quick Start
//
//	ctx := context.Background()
//	dir, err := pagedir.Open(ctx,
//	    pagedir.WithPageStore(store),
//	    pagedir.WithBlobStore(blobstore.NewLocalStore("./checkpoints")),
//	    pagedir.WithMaintenanceSchedule("@every 5m"),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	defer dir.Close()
//
// Commit a new segment:
//
//	txn, _ := dir.Begin()
//	id := pagedir.NewSegmentID()
//	postings, _ := dir.WriteComponent(ctx, data)
//	files := map[string]pagedir.FileEntry{
//	    pagedir.ComponentPath(id, pagedir.Postings): postings,
//	}
//	next := &pagedir.IndexMeta{
//	    Segments: []pagedir.SegmentMeta{{ID: id, MaxDoc: 100}},
//	    Schema:   schema,
//	    Opstamp:  1,
//	}
//	_, err = dir.SaveMetas(ctx, txn, nil, next, files)
//	_ = txn.Commit()
//
// Read the segments visible to a snapshot:
//
//	snap, _ := dir.Snapshot(nil)
//	defer snap.Release()
//	res, err := dir.LoadMetas(ctx, pagedir.SnapshotPolicy(snap))
//	defer res.Release()
package pagedir
