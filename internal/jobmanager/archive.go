package jobmanager

import (
	"archive/zip"
	"compress/flate"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/storage"
)

// archiveFileName is the local spool file the ZIP is built into before it's
// streamed to object storage (spec §4.5 step 7 "__archive__.zip").
const archiveFileName = "__archive__.zip"

// archivePartDelay smooths network usage between multipart upload parts
// (spec §4.5 step 7 "part_delay_ms ≈ 50").
const archivePartDelay = 50 * time.Millisecond

// buildArchive walks every file under tempDir into a deflate level-9 ZIP at
// <tempDir>/__archive__.zip, entries named relative to tempDir with
// forward-slash separators (spec §4.5 step 7, §6 "Archive on-disk format").
// archive/zip's own DEFLATE support covers fixed-level deflate; no
// third-party compressor is needed here (see DESIGN.md).
func buildArchive(tempDir string) (path string, size int64, err error) {
	zipPath := filepath.Join(tempDir, archiveFileName)

	f, err := os.Create(zipPath)
	if err != nil {
		return "", 0, fmt.Errorf("create archive spool file: %w", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	w.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	walkErr := filepath.Walk(tempDir, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() || p == zipPath {
			return nil
		}

		rel, err := filepath.Rel(tempDir, p)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", p, err)
		}
		entryName := filepath.ToSlash(rel)

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("build zip header for %s: %w", entryName, err)
		}
		header.Name = entryName
		header.Method = zip.Deflate

		entryWriter, err := w.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("create zip entry %s: %w", entryName, err)
		}

		src, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open %s for archiving: %w", p, err)
		}
		defer src.Close()

		if _, err := io.Copy(entryWriter, src); err != nil {
			return fmt.Errorf("write zip entry %s: %w", entryName, err)
		}
		return nil
	})
	if walkErr != nil {
		return "", 0, walkErr
	}

	if err := w.Close(); err != nil {
		return "", 0, fmt.Errorf("finalize archive: %w", err)
	}

	stat, err := os.Stat(zipPath)
	if err != nil {
		return "", 0, fmt.Errorf("stat archive: %w", err)
	}
	return zipPath, stat.Size(), nil
}

// archiveKey builds the object storage key an uploaded archive lives at
// (spec §4.5 step 7 "archives/{crawlId}.zip").
func archiveKey(crawlID string) string {
	return fmt.Sprintf("archives/%s.zip", crawlID)
}

// uploadArchiveProgress is invoked after each part upload with running byte
// totals, adapted to the caller's own throttling (spec §4.5 step 7).
type uploadArchiveProgress func(totalBytes, uploadedBytes int64)

// uploadArchive streams zipPath to storage at archives/{crawlID}.zip (spec
// §4.5 step 7 "stream_put the file to storage").
func uploadArchive(ctx context.Context, adapter storage.Adapter, crawlID, zipPath string, onProgress uploadArchiveProgress) error {
	f, err := os.Open(zipPath)
	if err != nil {
		return fmt.Errorf("open archive for upload: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive for upload: %w", err)
	}

	opts := storage.StreamPutOptions{
		TotalSize:   stat.Size(),
		PartDelay:   archivePartDelay,
		ContentType: "application/zip",
		OnProgress: func(totalBytes, uploadedBytes int64, _, _ int) {
			if onProgress != nil {
				onProgress(totalBytes, uploadedBytes)
			}
		},
	}

	if err := adapter.StreamPut(ctx, archiveKey(crawlID), f, opts); err != nil {
		return fmt.Errorf("upload archive for crawl %s: %w", crawlID, err)
	}
	return nil
}
