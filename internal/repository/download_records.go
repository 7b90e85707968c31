package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sourccey/kiosk-relay/internal/config"
	"github.com/sourccey/kiosk-relay/internal/model"
)

const DownloadRecordFile = "download_request.json"

// DownloadRecordStore manages download_request.json files under the models
// directory.
type DownloadRecordStore struct {
	modelsDir string
	now       func() time.Time
}

func NewDownloadRecordStore(modelsDir string) *DownloadRecordStore {
	return &DownloadRecordStore{modelsDir: modelsDir, now: time.Now}
}

// WithClock replaces the timestamp source.
func (s *DownloadRecordStore) WithClock(now func() time.Time) *DownloadRecordStore {
	s.now = now
	return s
}

// ModelPath resolves <models_dir>/<repo_id>/<model_name>. Callers validate
// both names first; a result outside the models directory is still refused.
func (s *DownloadRecordStore) ModelPath(repoID, modelName string) (string, error) {
	root := filepath.Clean(s.modelsDir)
	p := filepath.Join(root, filepath.FromSlash(repoID), modelName)
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("model path escapes models directory")
	}
	return p, nil
}

func recordPath(modelPath string) string {
	return filepath.Join(modelPath, DownloadRecordFile)
}

// Queue creates the model directory and writes the initial queued record.
func (s *DownloadRecordStore) Queue(job model.DownloadJob) error {
	if err := os.MkdirAll(job.ModelPath, 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}
	record := model.DownloadRequestRecord{
		RepoID:        job.RepoID,
		ModelName:     job.ModelName,
		Status:        model.DownloadStatusQueued,
		Source:        config.EventSource,
		RequestedAtMs: s.now().UnixMilli(),
	}
	return writeJSONAtomic(recordPath(job.ModelPath), record)
}

// UpdateStatus rewrites the record with a new status. errMsg is recorded
// only for failed transitions.
func (s *DownloadRecordStore) UpdateStatus(job model.DownloadJob, status model.DownloadStatus, errMsg string) error {
	nowMs := s.now().UnixMilli()
	record := model.DownloadRequestRecord{
		RepoID:      job.RepoID,
		ModelName:   job.ModelName,
		Status:      status,
		Source:      config.EventSource,
		UpdatedAtMs: nowMs,
	}
	switch status {
	case model.DownloadStatusDownloaded:
		record.CompletedAtMs = nowMs
	case model.DownloadStatusFailed:
		record.Error = errMsg
	}
	return writeJSONAtomic(recordPath(job.ModelPath), record)
}

func (s *DownloadRecordStore) Read(modelPath string) (*model.DownloadRequestRecord, error) {
	data, err := os.ReadFile(recordPath(modelPath))
	if err != nil {
		return nil, err
	}
	var record model.DownloadRequestRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode download record: %w", err)
	}
	return &record, nil
}
