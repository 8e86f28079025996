// Package s3 provides checkpoint BlobStores on Amazon S3.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "pagedir/")
//	dir, err := pagedir.Open(ctx, pagedir.WithBlobStore(store))
//
// S3 has no compare-and-swap, so two writers checkpointing the same prefix can
// overwrite each other's CURRENT. DDBCommitStore moves CURRENT into a DynamoDB
// table with conditional writes:
//
//	commits := s3.NewDDBCommitStore(store, dynamodb.NewFromConfig(cfg), "pagedir-commits", "s3://my-bucket/pagedir/")
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads with CRC32C validation
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
