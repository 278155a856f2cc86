package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/apperrors"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

const minPartSize = 5 * 1024 * 1024 // S3-compatible minimum part size.

// Config configures the S3/MinIO-backed Adapter.
type Config struct {
	Endpoint            string
	AccessKeyID         string
	SecretAccessKey     string
	Bucket              string
	UseSSL              bool
	TempDir             string
	PartSizeBytes       int64
	PartAttempts        int
	RetryBaseDelay      time.Duration
	BufferFallbackBytes int64
	PublicURLExpiry     time.Duration
}

// s3Adapter is the S3/MinIO-compatible Adapter implementation.
type s3Adapter struct {
	client *miniogo.Client
	core   *miniogo.Core
	cfg    Config
	logger logger.Logger
}

// New creates an S3/MinIO-backed Storage Adapter.
func New(cfg Config, log logger.Logger) (Adapter, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.PartAttempts <= 0 {
		cfg.PartAttempts = 4
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 300 * time.Millisecond
	}
	if cfg.BufferFallbackBytes <= 0 {
		cfg.BufferFallbackBytes = 256 * 1024 * 1024
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "dxd-webflow-scraper")
	}

	creds := credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{Creds: creds, Secure: cfg.UseSSL})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	core, err := miniogo.NewCore(cfg.Endpoint, &miniogo.Options{Creds: creds, Secure: cfg.UseSSL})
	if err != nil {
		return nil, fmt.Errorf("create minio core client: %w", err)
	}

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir root: %w", err)
	}

	return &s3Adapter{client: client, core: core, cfg: cfg, logger: log}, nil
}

// Put writes a small object atomically via a single PutObject call.
func (a *s3Adapter) Put(ctx context.Context, key string, data []byte) error {
	_, err := a.client.PutObject(ctx, a.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)),
		miniogo.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return apperrors.WrapWithContextf(err, "put object %s", key)
	}
	return nil
}

// Exists performs a single HEAD, mapping 404 to (false, nil).
func (a *s3Adapter) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.StatObject(ctx, a.cfg.Bucket, key, miniogo.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, apperrors.WrapWithContextf(err, "stat object %s", key)
}

// Size sums the sizes of every object under prefix.
func (a *s3Adapter) Size(ctx context.Context, prefix string) (int64, error) {
	var total int64
	for obj := range a.client.ListObjects(ctx, a.cfg.Bucket, miniogo.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return total, apperrors.WrapWithContextf(obj.Err, "list objects under %s", prefix)
		}
		total += obj.Size
	}
	return total, nil
}

// List returns every key under prefix, paging internally until exhausted.
func (a *s3Adapter) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range a.client.ListObjects(ctx, a.cfg.Bucket, miniogo.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return keys, apperrors.WrapWithContextf(obj.Err, "list objects under %s", prefix)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// DeletePrefix bulk-deletes every object under prefix, tolerating missing
// keys.
func (a *s3Adapter) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := a.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := a.client.RemoveObject(ctx, a.cfg.Bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
			if isNotFound(err) {
				continue
			}
			return apperrors.WrapWithContextf(err, "delete object %s", key)
		}
	}
	return nil
}

// GetStream returns a lazy reader for the object at key.
func (a *s3Adapter) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := a.client.GetObject(ctx, a.cfg.Bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.ErrObjectNotFound
		}
		return nil, apperrors.WrapWithContextf(err, "get object %s", key)
	}
	return obj, nil
}

// PublicURL returns a presigned GET URL valid for the configured expiry.
func (a *s3Adapter) PublicURL(ctx context.Context, key string) (string, error) {
	expiry := a.cfg.PublicURLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	u, err := a.client.PresignedGetObject(ctx, a.cfg.Bucket, key, expiry, nil)
	if err != nil {
		return "", apperrors.WrapWithContextf(err, "presign object %s", key)
	}
	return u.String(), nil
}

// MakeTempDir reserves a local filesystem directory for jobID.
func (a *s3Adapter) MakeTempDir(jobID string) (string, error) {
	dir := filepath.Join(a.cfg.TempDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.WrapWithContextf(err, "make temp dir for job %s", jobID)
	}
	return dir, nil
}

// RemoveTempDir removes a directory previously returned by MakeTempDir.
func (a *s3Adapter) RemoveTempDir(path string) error {
	if path == "" {
		return nil
	}
	return os.RemoveAll(path)
}

// StreamPut uploads arbitrary-size content via multipart upload with
// per-part retry and progress callbacks (spec §4.1).
//
// The stream is first spooled to a local temp file so the HTTP layer has a
// definite content length, matching the spec's "the adapter spools the
// stream to a local temp file first" requirement.
func (a *s3Adapter) StreamPut(ctx context.Context, key string, r io.Reader, opts StreamPutOptions) error {
	spooled, size, err := a.spool(r)
	if err != nil {
		return apperrors.WrapWithContextf(err, "spool upload for %s", key)
	}
	defer os.Remove(spooled)

	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}

	if size <= a.cfg.BufferFallbackBytes {
		// Small enough to attempt multipart, but also eligible for the
		// buffered fallback on signature/checksum errors.
		err := a.multipartUpload(ctx, key, spooled, size, opts)
		if err != nil && isSignatureOrChecksumError(err) {
			a.logger.Warn("multipart upload failed with signature/checksum error, falling back to buffered put",
				logger.String("key", key), logger.Error(err))
			return a.bufferedFallbackPut(ctx, key, spooled, size, opts)
		}
		return err
	}

	return a.multipartUpload(ctx, key, spooled, size, opts)
}

func (a *s3Adapter) spool(r io.Reader) (path string, size int64, err error) {
	f, err := os.CreateTemp(a.cfg.TempDir, "upload-*.spool")
	if err != nil {
		return "", 0, fmt.Errorf("create spool file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(f.Name())
		return "", 0, fmt.Errorf("spool to disk: %w", err)
	}
	return f.Name(), n, nil
}

func (a *s3Adapter) bufferedFallbackPut(ctx context.Context, key, spooled string, size int64, opts StreamPutOptions) error {
	f, err := os.Open(spooled)
	if err != nil {
		return fmt.Errorf("reopen spool for fallback: %w", err)
	}
	defer f.Close()

	_, err = a.client.PutObject(ctx, a.cfg.Bucket, key, f, size, miniogo.PutObjectOptions{ContentType: opts.ContentType})
	if err != nil {
		return apperrors.WrapWithContextf(err, "buffered fallback put %s", key)
	}
	if opts.OnProgress != nil {
		opts.OnProgress(size, size, 1, 1)
	}
	return nil
}

// partSize computes max(5MiB, configured_part_size, ceil(total/10000)) per
// spec §4.1.
func (a *s3Adapter) partSize(total int64) int64 {
	size := minPartSize
	if int(a.cfg.PartSizeBytes) > size {
		size = int(a.cfg.PartSizeBytes)
	}
	const maxParts = 10000
	byCount := int64(math.Ceil(float64(total) / float64(maxParts)))
	if byCount > int64(size) {
		size = int(byCount)
	}
	return int64(size)
}

func (a *s3Adapter) multipartUpload(ctx context.Context, key, spooled string, size int64, opts StreamPutOptions) error {
	uploadID, err := a.core.NewMultipartUpload(ctx, a.cfg.Bucket, key, miniogo.PutObjectOptions{ContentType: opts.ContentType})
	if err != nil {
		return apperrors.WrapWithContextf(err, "create multipart upload for %s", key)
	}

	partSize := a.partSize(size)
	totalParts := int(math.Ceil(float64(size) / float64(partSize)))
	if totalParts == 0 {
		totalParts = 1
	}

	parts, err := a.uploadParts(ctx, key, spooled, size, partSize, totalParts, uploadID, opts)
	if err != nil {
		if abortErr := a.core.AbortMultipartUpload(ctx, a.cfg.Bucket, key, uploadID); abortErr != nil {
			a.logger.Warn("failed to abort multipart upload after failure",
				logger.String("key", key), logger.Error(abortErr))
		}
		return err
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	if _, err := a.core.CompleteMultipartUpload(ctx, a.cfg.Bucket, key, uploadID, parts, miniogo.PutObjectOptions{}); err != nil {
		if abortErr := a.core.AbortMultipartUpload(ctx, a.cfg.Bucket, key, uploadID); abortErr != nil {
			a.logger.Warn("failed to abort multipart upload after completion failure",
				logger.String("key", key), logger.Error(abortErr))
		}
		return apperrors.WrapWithContextf(err, "complete multipart upload for %s", key)
	}

	return nil
}

func (a *s3Adapter) uploadParts(
	ctx context.Context, key, spooled string, size, partSize int64, totalParts int, uploadID string, opts StreamPutOptions,
) ([]miniogo.CompletePart, error) {
	f, err := os.Open(spooled)
	if err != nil {
		return nil, fmt.Errorf("reopen spool for parts: %w", err)
	}
	defer f.Close()

	parts := make([]miniogo.CompletePart, 0, totalParts)
	var uploaded int64

	// opts.PartDelay smooths network usage between parts (spec §4.1
	// "optional part_delay_ms is sleep between parts"). The pause selects on
	// ctx.Done() instead of using a bare time.Sleep so an upload abort via
	// ctx cancellation is honored immediately rather than after the delay.
	for partNumber := 1; partNumber <= totalParts; partNumber++ {
		offset := int64(partNumber-1) * partSize
		length := partSize
		if remaining := size - offset; remaining < length {
			length = remaining
		}

		section := io.NewSectionReader(f, offset, length)
		part, err := a.uploadPartWithRetry(ctx, key, uploadID, partNumber, section, length)
		if err != nil {
			return nil, err
		}
		parts = append(parts, miniogo.CompletePart{PartNumber: partNumber, ETag: part.ETag})

		uploaded += length
		if opts.OnProgress != nil {
			opts.OnProgress(size, uploaded, partNumber, totalParts)
		}
		if opts.PartDelay > 0 && partNumber < totalParts {
			select {
			case <-time.After(opts.PartDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return parts, nil
}

// uploadPartWithRetry retries a single part up to cfg.PartAttempts times
// with exponential backoff (base delay * 2^(n-1)) on retryable errors,
// per spec §4.1 / §5.
func (a *s3Adapter) uploadPartWithRetry(
	ctx context.Context, key, uploadID string, partNumber int, section *io.SectionReader, length int64,
) (miniogo.ObjectPart, error) {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.PartAttempts; attempt++ {
		if _, err := section.Seek(0, io.SeekStart); err != nil {
			return miniogo.ObjectPart{}, fmt.Errorf("rewind part %d: %w", partNumber, err)
		}

		part, err := a.core.PutObjectPart(ctx, a.cfg.Bucket, key, uploadID, partNumber, section, length, miniogo.PutObjectPartOptions{})
		if err == nil {
			return part, nil
		}

		lastErr = err
		if !isRetryable(err) || attempt == a.cfg.PartAttempts {
			break
		}

		backoff := a.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
		backoff += time.Duration(rand.Intn(50)) * time.Millisecond
		a.logger.Warn("retrying multipart upload part",
			logger.String("key", key), logger.Int("part", partNumber),
			logger.Int("attempt", attempt), logger.Error(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return miniogo.ObjectPart{}, ctx.Err()
		}
	}

	return miniogo.ObjectPart{}, apperrors.WrapWithContextf(lastErr, "upload part %d of %s after %d attempts", partNumber, key, a.cfg.PartAttempts)
}
