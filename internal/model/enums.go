package model

// Action is the value of the "action" field of a wire request.
type Action string

const (
	ActionPair          Action = "pair"
	ActionShowPairing   Action = "show_pairing"
	ActionPing          Action = "ping"
	ActionStartRobot    Action = "start_robot"
	ActionStopRobot     Action = "stop_robot"
	ActionRobotStatus   Action = "robot_status"
	ActionDownloadModel Action = "download_model"
)

type DownloadStatus string

const (
	DownloadStatusQueued      DownloadStatus = "queued"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusDownloaded  DownloadStatus = "downloaded"
	DownloadStatusFailed      DownloadStatus = "failed"
)

// Terminal reports whether no further transition follows s.
func (s DownloadStatus) Terminal() bool {
	return s == DownloadStatusDownloaded || s == DownloadStatusFailed
}

// UI event names published to the local kiosk shell.
const (
	EventPairingOpen   = "kiosk-pairing-open"
	EventPairingClose  = "kiosk-pairing-close"
	EventModelDownload = "kiosk-model-download"
)

const (
	RobotStatusStarted = "started"
	RobotStatusStopped = "stopped"
)
