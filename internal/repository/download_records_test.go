package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourccey/kiosk-relay/internal/model"
)

func TestDownloadRecordStore_ModelPath(t *testing.T) {
	root := t.TempDir()
	store := NewDownloadRecordStore(root)

	t.Run("nests repo and model under models dir", func(t *testing.T) {
		p, err := store.ModelPath("org/policy", "act v1")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "org", "policy", "act v1"), p)
	})

	t.Run("refuses traversal", func(t *testing.T) {
		_, err := store.ModelPath("../../etc", "passwd")
		assert.Error(t, err)

		_, err = store.ModelPath("org", "..")
		assert.Error(t, err)
	})
}

func TestDownloadRecordStore_Transitions(t *testing.T) {
	root := t.TempDir()
	now := time.UnixMilli(1_700_000_000_000)
	store := NewDownloadRecordStore(root).WithClock(func() time.Time { return now })

	modelPath, err := store.ModelPath("org/policy", "act")
	require.NoError(t, err)
	job := model.DownloadJob{RepoID: "org/policy", ModelName: "act", ModelPath: modelPath}

	t.Run("queue writes requested_at_ms", func(t *testing.T) {
		require.NoError(t, store.Queue(job))

		record, err := store.Read(modelPath)
		require.NoError(t, err)
		assert.Equal(t, model.DownloadStatusQueued, record.Status)
		assert.Equal(t, "desktop_pairing", record.Source)
		assert.Equal(t, now.UnixMilli(), record.RequestedAtMs)
		assert.Zero(t, record.CompletedAtMs)
	})

	t.Run("downloaded sets completed_at_ms", func(t *testing.T) {
		now = now.Add(time.Minute)
		require.NoError(t, store.UpdateStatus(job, model.DownloadStatusDownloaded, ""))

		record, err := store.Read(modelPath)
		require.NoError(t, err)
		assert.Equal(t, model.DownloadStatusDownloaded, record.Status)
		assert.Equal(t, now.UnixMilli(), record.UpdatedAtMs)
		assert.Equal(t, now.UnixMilli(), record.CompletedAtMs)
		assert.Empty(t, record.Error)
	})

	t.Run("failed records the error", func(t *testing.T) {
		require.NoError(t, store.UpdateStatus(job, model.DownloadStatusFailed, "404 Not Found"))

		record, err := store.Read(modelPath)
		require.NoError(t, err)
		assert.Equal(t, model.DownloadStatusFailed, record.Status)
		assert.Equal(t, "404 Not Found", record.Error)
		assert.Zero(t, record.CompletedAtMs)
	})
}
