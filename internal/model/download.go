package model

// DownloadRequestRecord is persisted at <model_path>/download_request.json and
// rewritten on every status transition.
type DownloadRequestRecord struct {
	RepoID        string         `json:"repo_id"`
	ModelName     string         `json:"model_name"`
	Status        DownloadStatus `json:"status"`
	Source        string         `json:"source"`
	RequestedAtMs int64          `json:"requested_at_ms,omitempty"`
	UpdatedAtMs   int64          `json:"updated_at_ms,omitempty"`
	CompletedAtMs int64          `json:"completed_at_ms,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// DownloadJob identifies a single model fetch.
type DownloadJob struct {
	RepoID    string
	ModelName string
	ModelPath string
}

// DownloadJobKey returns "{repo_id}/{model_name}".
func DownloadJobKey(repoID, modelName string) string {
	return repoID + "/" + modelName
}

func (j DownloadJob) Key() string {
	return DownloadJobKey(j.RepoID, j.ModelName)
}

// DownloadEvent is published on every record transition.
type DownloadEvent struct {
	RepoID    string         `json:"repo_id"`
	ModelName string         `json:"model_name"`
	Status    DownloadStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	Source    string         `json:"source"`
}
