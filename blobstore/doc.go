// Package blobstore provides the storage targets page checkpoints are written to.
//
// A BlobStore holds named, immutable blobs. Checkpoints write one blob per image
// and then repoint a small CURRENT blob at it, so every implementation must make
// Put atomic with respect to Open.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process maps, for tests and ephemeral directories
//   - LocalStore: files below a root directory, written via temp file + rename
//   - minio.Store: MinIO and other S3-compatible servers
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - s3.DDBCommitStore: S3 with CURRENT committed through DynamoDB
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
