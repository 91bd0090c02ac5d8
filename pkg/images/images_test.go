package images_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubohome/cubod/pkg/images"
)

type fakeDownloader struct {
	calls int
	data  []byte
	err   error
}

func (d *fakeDownloader) DownloadImage(context.Context, string) ([]byte, error) {
	d.calls++
	return d.data, d.err
}

func TestFetchStoresImage(t *testing.T) {
	dir := t.TempDir()
	downloader := &fakeDownloader{data: []byte("jpegdata")}
	store, err := images.NewStore(dir, downloader)
	require.NoError(t, err)

	path, err := store.Fetch(context.Background(), "dev-1", "a1", "https://cloud/img.jpg")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "dev-1_a1.jpg"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpegdata"), data)
}

func TestFetchSkipsExistingImage(t *testing.T) {
	dir := t.TempDir()
	downloader := &fakeDownloader{data: []byte("jpegdata")}
	store, err := images.NewStore(dir, downloader)
	require.NoError(t, err)

	_, err = store.Fetch(context.Background(), "dev-1", "a1", "https://cloud/img.jpg")
	require.NoError(t, err)
	_, err = store.Fetch(context.Background(), "dev-1", "a1", "https://cloud/img.jpg")
	require.NoError(t, err)

	assert.Equal(t, 1, downloader.calls)
}

func TestFetchPrunesStaleImages(t *testing.T) {
	dir := t.TempDir()
	downloader := &fakeDownloader{data: []byte("jpegdata")}
	store, err := images.NewStore(dir, downloader)
	require.NoError(t, err)

	// seed old images with distinct modtimes
	for i := 0; i < 6; i++ {
		name := filepath.Join(dir, fmt.Sprintf("dev-1_old%d.jpg", i))
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
		stamp := time.Now().Add(-time.Duration(10-i) * time.Minute)
		require.NoError(t, os.Chtimes(name, stamp, stamp))
	}

	// another device's images are untouched
	other := filepath.Join(dir, "dev-2_keep.jpg")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

	_, err = store.Fetch(context.Background(), "dev-1", "new", "https://cloud/img.jpg")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var dev1 int
	for _, entry := range entries {
		if entry.Name() == "dev-2_keep.jpg" {
			continue
		}
		dev1++
	}

	assert.Equal(t, 5, dev1)
	assert.FileExists(t, other)
	assert.FileExists(t, filepath.Join(dir, "dev-1_new.jpg"))

	// the oldest seeds are gone
	assert.NoFileExists(t, filepath.Join(dir, "dev-1_old0.jpg"))
	assert.NoFileExists(t, filepath.Join(dir, "dev-1_old1.jpg"))
}

func TestFetchSurfacesDownloadError(t *testing.T) {
	dir := t.TempDir()
	downloader := &fakeDownloader{err: fmt.Errorf("boom")}
	store, err := images.NewStore(dir, downloader)
	require.NoError(t, err)

	_, err = store.Fetch(context.Background(), "dev-1", "a1", "https://cloud/img.jpg")
	assert.Error(t, err)
}
