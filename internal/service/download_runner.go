package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sourccey/kiosk-relay/internal/config"
	"github.com/sourccey/kiosk-relay/internal/metrics"
	"github.com/sourccey/kiosk-relay/internal/model"
	"github.com/sourccey/kiosk-relay/internal/repository"
)

// Downloader fetches a model snapshot into modelPath.
type Downloader interface {
	Download(ctx context.Context, repoID, modelPath string) error
}

// DownloadRunner executes download jobs in detached goroutines. Each job
// releases its key in PairingState exactly once, whatever the outcome.
type DownloadRunner struct {
	ctx        context.Context
	state      *PairingState
	records    *repository.DownloadRecordStore
	downloader Downloader
	notifier   Notifier

	wg sync.WaitGroup
}

func NewDownloadRunner(
	ctx context.Context,
	state *PairingState,
	records *repository.DownloadRecordStore,
	downloader Downloader,
	notifier Notifier,
) *DownloadRunner {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &DownloadRunner{
		ctx:        ctx,
		state:      state,
		records:    records,
		downloader: downloader,
		notifier:   notifier,
	}
}

// Spawn starts job in the background. The caller must already hold the job
// key via PairingState.BeginDownload and have written the queued record.
func (r *DownloadRunner) Spawn(job model.DownloadJob) {
	r.wg.Add(1)
	metrics.ActiveDownloads.Inc()
	go r.run(job)
}

// Wait blocks until every spawned job has finished.
func (r *DownloadRunner) Wait() {
	r.wg.Wait()
}

func (r *DownloadRunner) run(job model.DownloadJob) {
	final := model.DownloadStatusFailed
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("repo_id", job.RepoID).
				Str("model_name", job.ModelName).
				Interface("panic", rec).
				Msg("model download panicked")
			r.transition(job, model.DownloadStatusFailed, fmt.Sprintf("download panicked: %v", rec))
		}
		if err := r.state.FinishDownload(job.Key()); err != nil {
			log.Warn().Err(err).Str("job", job.Key()).Msg("failed to release download key")
		}
		metrics.ActiveDownloads.Dec()
		metrics.DownloadsTotal.WithLabelValues(string(final)).Inc()
		r.wg.Done()
	}()

	r.transition(job, model.DownloadStatusDownloading, "")

	log.Info().
		Str("repo_id", job.RepoID).
		Str("model_name", job.ModelName).
		Str("path", job.ModelPath).
		Msg("model download started")

	if err := r.downloader.Download(r.ctx, job.RepoID, job.ModelPath); err != nil {
		log.Error().
			Err(err).
			Str("repo_id", job.RepoID).
			Str("model_name", job.ModelName).
			Msg("model download failed")
		r.transition(job, model.DownloadStatusFailed, err.Error())
		return
	}

	final = model.DownloadStatusDownloaded
	r.transition(job, model.DownloadStatusDownloaded, "")
	log.Info().
		Str("repo_id", job.RepoID).
		Str("model_name", job.ModelName).
		Msg("model download finished")
}

func (r *DownloadRunner) transition(job model.DownloadJob, status model.DownloadStatus, errMsg string) {
	if err := r.records.UpdateStatus(job, status, errMsg); err != nil {
		log.Warn().
			Err(err).
			Str("job", job.Key()).
			Str("status", string(status)).
			Msg("failed to write download record")
	}
	r.notifier.Notify(r.ctx, model.EventModelDownload, model.DownloadEvent{
		RepoID:    job.RepoID,
		ModelName: job.ModelName,
		Status:    status,
		Error:     errMsg,
		Source:    config.EventSource,
	})
}
