// Package processhost starts, stops and inspects the robot host process on
// behalf of remote commands.
package processhost

import "context"

// Host is the process management boundary used by the pairing service.
// Messages returned by Start and Stop and errors from all three calls are
// relayed to the remote client verbatim.
type Host interface {
	Start(ctx context.Context, nickname string) (string, error)
	Stop(ctx context.Context, nickname string) (string, error)
	Status(ctx context.Context, nickname string) (string, error)
}

// EventPublisher receives lifecycle events for the local UI.
type EventPublisher interface {
	Notify(ctx context.Context, event string, payload any)
}

const (
	EventHostStartSuccess = "kiosk-host-start-success"
	EventHostStopSuccess  = "kiosk-host-stop-success"
	EventHostStopError    = "kiosk-host-stop-error"
)
