package jobmanager

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/storage"
)

func TestBuildArchiveIncludesEveryFileRelativeToTempDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html></html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "js"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "js", "app.js"), []byte("console.log(1)"), 0o644))

	zipPath, size, err := buildArchive(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, archiveFileName), zipPath)
	assert.Greater(t, size, int64(0))

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()

	names := make(map[string]bool)
	for _, f := range r.File {
		names[f.Name] = true
		assert.Equal(t, zip.Deflate, f.Method)
	}
	assert.True(t, names["index.html"])
	assert.True(t, names["js/app.js"])
	assert.False(t, names[archiveFileName], "the archive must not include itself")
}

func TestBuildArchiveRoundTripsContent(t *testing.T) {
	dir := t.TempDir()
	want := "hello from the archived page"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte(want), 0o644))

	zipPath, _, err := buildArchive(dir)
	require.NoError(t, err)

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()
	require.Len(t, r.File, 1)

	rc, err := r.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))
}

type fakeStorageAdapter struct {
	storage.Adapter
	putKey   string
	putData  []byte
	progress []int64
}

func (f *fakeStorageAdapter) StreamPut(_ context.Context, key string, r io.Reader, opts storage.StreamPutOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.putKey = key
	f.putData = data
	if opts.OnProgress != nil {
		opts.OnProgress(opts.TotalSize, int64(len(data)), 1, 1)
	}
	return nil
}

func TestUploadArchiveStreamsToArchivesKey(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "__archive__.zip")
	require.NoError(t, os.WriteFile(zipPath, []byte("fake zip bytes"), 0o644))

	adapter := &fakeStorageAdapter{}
	var seen []int64
	err := uploadArchive(context.Background(), adapter, "crawl-1", zipPath, func(total, uploaded int64) {
		seen = append(seen, uploaded)
	})
	require.NoError(t, err)
	assert.Equal(t, "archives/crawl-1.zip", adapter.putKey)
	assert.Equal(t, "fake zip bytes", string(adapter.putData))
	assert.NotEmpty(t, seen)
}

func TestArchivePartDelayIsSmall(t *testing.T) {
	assert.Less(t, archivePartDelay, time.Second)
}
