package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// SnapshotScript fetches a Hugging Face model repository into a local
// directory. Invoked as: python -c SnapshotScript <repo_id> <local_dir>.
const SnapshotScript = `
import sys
from huggingface_hub import snapshot_download

repo_id = sys.argv[1]
local_dir = sys.argv[2]

snapshot_download(
    repo_id=repo_id,
    repo_type="model",
    local_dir=local_dir,
    local_dir_use_symlinks=False,
)
`

const (
	unknownErrorMessage = "Unknown model download error"
	waitDelay           = 2 * time.Second
)

// SnapshotDownloader runs a Python interpreter with the huggingface_hub
// snapshot script.
type SnapshotDownloader struct {
	PythonPath string
	Script     string
}

func NewSnapshotDownloader(pythonPath string) *SnapshotDownloader {
	return &SnapshotDownloader{PythonPath: pythonPath, Script: SnapshotScript}
}

func (d *SnapshotDownloader) Download(ctx context.Context, repoID, modelPath string) error {
	if err := os.MkdirAll(modelPath, 0o755); err != nil {
		return fmt.Errorf("Failed to create model directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, d.PythonPath, "-c", d.Script, repoID, modelPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("Failed to launch model download process: %w", err)
	}

	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return errors.New(msg)
	}
	if msg := strings.TrimSpace(stdout.String()); msg != "" {
		return errors.New(msg)
	}
	return errors.New(unknownErrorMessage)
}
