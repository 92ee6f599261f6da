// Package minio stores index snapshots in MinIO or any other
// S3-compatible object store reachable through minio-go.
//
//	store, err := minio.Dial("localhost:9000", key, secret, false, "indexes", "prod/")
//	if err != nil { ... }
//	err = idx.Backup(ctx, store, "daily.rts")
package minio
