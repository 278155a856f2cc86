// Package storage implements the Storage Adapter (spec §4.1): an
// S3/MinIO-compatible object store with streaming multipart upload, backed
// by github.com/minio/minio-go/v7, the way the teacher's internal/archive
// package drives MinIO for HTML archiving.
package storage

import (
	"context"
	"io"
	"time"
)

// ProgressFunc is called after each successful part upload with the running
// totals (spec §4.1 "on_progress").
type ProgressFunc func(totalBytes, uploadedBytes int64, partNumber, totalParts int)

// StreamPutOptions configures a multipart upload (spec §4.1 "stream_put").
type StreamPutOptions struct {
	// TotalSize is the caller's content length for the stream. The S3
	// adapter does not read it: it always spools the stream to a local temp
	// file first and uses the spooled size.
	TotalSize int64
	// PartDelay sleeps between successful parts to smooth network usage.
	PartDelay time.Duration
	// OnProgress is invoked after each successful part.
	OnProgress ProgressFunc
	// ContentType is the object's MIME type; defaults to
	// application/octet-stream.
	ContentType string
}

// Adapter is the Storage Adapter interface every other component depends on
// (spec §4.1). One trait, two implementations possible (S3-compatible here;
// a local-filesystem implementation could short-circuit stream_put to a
// copy/rename per spec §9's design note — not needed since every deployment
// target for this engine has an object store).
type Adapter interface {
	// Put writes a small object atomically.
	Put(ctx context.Context, key string, data []byte) error
	// StreamPut uploads arbitrary-size content via multipart upload with
	// progress callbacks and per-part retry.
	StreamPut(ctx context.Context, key string, r io.Reader, opts StreamPutOptions) error
	// GetStream returns a lazy reader for the object at key. Callers must
	// close it.
	GetStream(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns every key under prefix, paging internally until
	// exhausted.
	List(ctx context.Context, prefix string) ([]string, error)
	// DeletePrefix bulk-deletes every object under prefix, tolerating
	// missing keys.
	DeletePrefix(ctx context.Context, prefix string) error
	// Size sums the sizes of every object under prefix.
	Size(ctx context.Context, prefix string) (int64, error)
	// Exists performs a single HEAD; 404 maps to (false, nil).
	Exists(ctx context.Context, key string) (bool, error)
	// MakeTempDir reserves a local filesystem directory for jobID and
	// returns its path. The adapter owns the directory's lifecycle: it
	// exists once this returns, and is removed by RemoveTempDir.
	MakeTempDir(jobID string) (string, error)
	// RemoveTempDir removes a directory previously returned by MakeTempDir.
	RemoveTempDir(path string) error
	// PublicURL returns an opaque (possibly signed) URL for key.
	PublicURL(ctx context.Context, key string) (string, error)
}
