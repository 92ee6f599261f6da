// Package s3 stores index snapshots in Amazon S3.
//
//	store, err := s3.New(ctx, "my-bucket", "indexes/")
//	if err != nil { ... }
//	err = idx.Backup(ctx, store, "daily.rts")
//
// Reads are ranged GetObject calls; writes go through the SDK's upload
// manager, which switches to multipart uploads for large snapshots.
package s3
