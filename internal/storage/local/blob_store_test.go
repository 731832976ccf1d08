// Package local_test tests the local filesystem frame archive.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tablepilot/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("CreatesMissingBaseDir", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "archive", "frames")
		_, err := local.New(local.Config{BaseDir: base})
		require.NoError(t, err)

		info, err := os.Stat(base)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		tempFile, err := os.CreateTemp(t.TempDir(), "occupied")
		require.NoError(t, err)
		require.NoError(t, tempFile.Close())

		_, err = local.New(local.Config{BaseDir: tempFile.Name()})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		tempDir := t.TempDir()
		// #nosec G302 -- read-only on purpose to trip the boot probe.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		t.Cleanup(func() {
			_ = os.Chmod(tempDir, 0o700)
		})

		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	t.Run("ArchivesFrame", func(t *testing.T) {
		key := "frames/job-1-blocked.png"
		data := []byte("png bytes")
		uri, err := store.PutObject(context.Background(), key, "image/png", data)
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, key), uri)

		// #nosec G304 -- reads back from the controlled temp directory.
		written, err := os.ReadFile(filepath.Join(tempDir, key))
		require.NoError(t, err)
		assert.Equal(t, data, written)
	})

	t.Run("OverwritesOnReArchive", func(t *testing.T) {
		key := "frames/job-2.png"
		_, err := store.PutObject(context.Background(), key, "image/png", []byte("first"))
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), key, "image/png", []byte("second"))
		require.NoError(t, err)

		// #nosec G304 -- reads back from the controlled temp directory.
		written, err := os.ReadFile(filepath.Join(tempDir, key))
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), written)
	})

	t.Run("LeavesNoTempFiles", func(t *testing.T) {
		key := "frames/job-3.png"
		_, err := store.PutObject(context.Background(), key, "image/png", []byte("frame"))
		require.NoError(t, err)

		leftovers, err := filepath.Glob(filepath.Join(tempDir, "frames", ".partial-*"))
		require.NoError(t, err)
		assert.Empty(t, leftovers)
	})

	t.Run("EmptyKey", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), " ", "image/png", []byte("data"))
		assert.Error(t, err)
	})

	t.Run("KeyEscapingRoot", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../outside.png", "image/png", []byte("data"))
		assert.Error(t, err)
	})

	t.Run("NestedKey", func(t *testing.T) {
		key := "frames/2026/02/job-4.png"
		uri, err := store.PutObject(context.Background(), key, "image/png", []byte("nested"))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, key), uri)
	})
}
